// Package rescan re-runs OCR over the stored screenshots of runs and reports,
// or applies, fields whose recognized text differs from what was saved.
package rescan

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"towerstats/models"
	"towerstats/pkg/ocr"
	"towerstats/pkg/runs"
	"towerstats/pkg/runstore"
	"towerstats/pkg/storage"
)

// Runs is the part of the run store a rescan needs.
type Runs interface {
	List(ctx context.Context, userID uint, opts runstore.ListOptions) ([]models.Run, error)
	Get(ctx context.Context, userID, runID uint) (*models.Run, error)
	Update(ctx context.Context, run *models.Run) error
}

// Change is one field whose recognized text differs from the stored text.
type Change struct {
	Section runs.Section
	Key     runs.Key
	Old     string
	New     string
}

// Result is the outcome for one run.
type Result struct {
	RunID   uint
	Changes []Change
	Applied bool
	Err     error
}

type Rescanner struct {
	Registry   *runs.Registry
	Runs       Runs
	Blobs      *storage.DiskStore
	Recognizer ocr.Recognizer
	OCR        ocr.Options
	Logger     zerolog.Logger
}

// Run rescans runID of userID, or every run of the user when runID is 0.
// With apply, changed runs are re-validated and updated.
func (r *Rescanner) Run(ctx context.Context, userID, runID uint, apply bool) ([]Result, error) {
	ids := []uint{runID}
	if runID == 0 {
		items, err := r.Runs.List(ctx, userID, runstore.ListOptions{})
		if err != nil {
			return nil, err
		}
		ids = ids[:0]
		for _, it := range items {
			ids = append(ids, it.ID)
		}
	}
	out := make([]Result, 0, len(ids))
	for _, id := range ids {
		run, err := r.Runs.Get(ctx, userID, id)
		if err != nil {
			out = append(out, Result{RunID: id, Err: err})
			continue
		}
		res := r.rescan(ctx, run, apply)
		if res.Err != nil {
			r.Logger.Warn().Err(res.Err).Uint("run_id", id).Msg("rescan failed")
		} else {
			r.Logger.Info().Uint("run_id", id).Int("changes", len(res.Changes)).Bool("applied", res.Applied).Msg("run rescanned")
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *Rescanner) rescan(ctx context.Context, run *models.Run, apply bool) Result {
	res := Result{RunID: run.ID}
	screens := make([]ocr.Screen, 0, len(run.Screens))
	for _, sc := range run.Screens {
		data, err := r.read(sc.StorageKey)
		if err != nil {
			res.Err = fmt.Errorf("read screenshot %s: %w", sc.FileName, err)
			return res
		}
		screens = append(screens, ocr.Screen{FileName: sc.FileName, LastModified: sc.LastModified, Data: data})
	}
	if len(screens) == 0 {
		return res
	}
	batch := ocr.NewBatch(r.Recognizer, r.OCR, r.Logger).Run(ctx, screens)
	fresh, _ := r.Registry.MatchAll(r.Registry.Defaults(), batch.Texts()...)

	// Fields OCR did not find keep their stored text.
	merged := r.Registry.FromParsed(run.Values)
	for _, s := range r.Registry.Sections() {
		keys, _ := r.Registry.Keys(s)
		for _, k := range keys {
			now, before := fresh.Get(s, k), merged.Get(s, k)
			if now == "" || now == before {
				continue
			}
			res.Changes = append(res.Changes, Change{Section: s, Key: k, Old: before, New: now})
			merged, _ = r.Registry.Set(merged, s, k, now)
		}
	}
	if len(res.Changes) == 0 || !apply {
		return res
	}
	if err := r.Registry.Validate(merged); err != nil {
		res.Err = err
		return res
	}
	parsed := r.Registry.Parse(merged)
	run.Values = parsed
	run.ApplyHeader(runs.BuildHeader(parsed, run.Recorded, run.RunType))
	if err := r.Runs.Update(ctx, run); err != nil {
		res.Err = err
		return res
	}
	res.Applied = true
	return res
}

func (r *Rescanner) read(key string) ([]byte, error) {
	f, err := r.Blobs.Open(key)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
