// Package ingest turns folders of end-of-run screenshots into stored runs.
//
// Files are grouped into batches by last-modified proximity: consecutive
// screenshots no more than Gap apart belong to the same run. Each batch is
// recognized, matched against the field schema and validated; valid batches
// are handed to a Saver, invalid ones are reported with the validation message.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"towerstats/models"
	"towerstats/pkg/ocr"
	"towerstats/pkg/runs"
)

// DefaultDebounce is how long watch mode waits after the last new file.
const DefaultDebounce = 5 * time.Second

// File is a screenshot on disk.
type File struct {
	Name    string
	Path    string
	ModTime time.Time
}

// Screen is a screenshot ready to be stored. Err is set when OCR failed for it.
type Screen struct {
	ocr.Screen
	Err error
}

// Saver persists a recognized run and its screenshots.
type Saver interface {
	Save(ctx context.Context, run *models.Run, screens []Screen) error
}

// Options configure an Ingester.
type Options struct {
	UserID   uint
	RunType  runs.RunType
	Workers  int           // batches processed concurrently
	Gap      time.Duration // max distance between consecutive screenshots of one run
	Debounce time.Duration
	MoveTo   string // processed files are moved here when set
}

// Outcome reports what happened to one batch.
type Outcome struct {
	Files    []string
	Run      *models.Run
	Warnings []string
	Err      error
}

// Ingester processes screenshot batches. A nil Saver makes it a dry run.
type Ingester struct {
	reg    *runs.Registry
	rec    ocr.Recognizer
	ocr    ocr.Options
	saver  Saver
	opts   Options
	logger zerolog.Logger

	mu   sync.Mutex
	seen map[string]bool
}

func New(reg *runs.Registry, rec ocr.Recognizer, ocrOpts ocr.Options, saver Saver, opts Options, logger zerolog.Logger) *Ingester {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Gap <= 0 {
		opts.Gap = ocr.MaxBatchSpread
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.RunType == "" {
		opts.RunType = runs.RunTypeFarming
	}
	return &Ingester{
		reg:    reg,
		rec:    rec,
		ocr:    ocrOpts,
		saver:  saver,
		opts:   opts,
		logger: logger,
		seen:   make(map[string]bool),
	}
}

// MarkSeen records file names that must not be ingested again.
func (in *Ingester) MarkSeen(names ...string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, n := range names {
		in.seen[n] = true
	}
}

func (in *Ingester) unseen(files []File) []File {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := files[:0:0]
	for _, f := range files {
		if !in.seen[f.Name] {
			out = append(out, f)
		}
	}
	return out
}

// Scan ingests every screenshot in dir that has not been seen yet.
func (in *Ingester) Scan(ctx context.Context, dir string) ([]Outcome, error) {
	files, err := ListImages(dir)
	if err != nil {
		return nil, err
	}
	files = in.unseen(files)
	batches := Group(files, in.opts.Gap)
	in.logger.Info().
		Str("dir", dir).
		Int("files", len(files)).
		Int("batches", len(batches)).
		Int("workers", in.opts.Workers).
		Msg("scanning")
	return in.runPool(ctx, batches), nil
}

// runPool processes batches with a fixed number of workers. Outcomes keep batch order.
func (in *Ingester) runPool(ctx context.Context, batches [][]File) []Outcome {
	out := make([]Outcome, len(batches))
	idx := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < in.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				out[i] = in.Process(ctx, batches[i])
				in.report(out[i])
			}
		}()
	}
	for i := range batches {
		idx <- i
	}
	close(idx)
	wg.Wait()
	return out
}

// Process recognizes one batch and, when it validates, saves it as a run.
func (in *Ingester) Process(ctx context.Context, files []File) Outcome {
	out := Outcome{Files: names(files)}
	// Files are seen whatever the result, so watch mode does not retry them forever.
	defer in.MarkSeen(out.Files...)

	screens := make([]ocr.Screen, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			out.Err = fmt.Errorf("read %s: %w", f.Name, err)
			return out
		}
		screens = append(screens, ocr.Screen{FileName: f.Name, LastModified: f.ModTime, Data: data})
	}
	res := ocr.NewBatch(in.rec, in.ocr, in.logger).Run(ctx, screens)
	out.Warnings = res.Warnings

	fv, _ := in.reg.MatchAll(in.reg.Defaults(), res.Texts()...)
	if err := in.reg.Validate(fv); err != nil {
		out.Err = err
		return out
	}
	parsed := in.reg.Parse(fv)
	run := &models.Run{UserID: in.opts.UserID, Values: parsed}
	run.ApplyHeader(runs.BuildHeader(parsed, res.Earliest().UTC(), in.opts.RunType))
	out.Run = run
	if in.saver == nil {
		return out
	}

	data := make(map[string][]byte, len(screens))
	for _, sc := range screens {
		data[sc.FileName] = sc.Data
	}
	stored := make([]Screen, 0, len(res.Results))
	for _, r := range res.Results {
		stored = append(stored, Screen{
			Screen: ocr.Screen{FileName: r.FileName, LastModified: r.LastModified, Data: data[r.FileName]},
			Err:    r.Err,
		})
	}
	if err := in.saver.Save(ctx, run, stored); err != nil {
		out.Err = err
		return out
	}
	if in.opts.MoveTo != "" {
		for _, f := range files {
			if err := moveFile(f.Path, filepath.Join(in.opts.MoveTo, f.Name)); err != nil {
				in.logger.Warn().Err(err).Str("file", f.Name).Msg("failed to move processed file")
			}
		}
	}
	return out
}

func (in *Ingester) report(o Outcome) {
	switch {
	case o.Err != nil:
		in.logger.Warn().Err(o.Err).Strs("files", o.Files).Msg("batch skipped")
	case in.saver == nil:
		in.logger.Info().
			Strs("files", o.Files).
			Float64("tier", o.Run.Tier).
			Float64("wave", o.Run.Wave).
			Str("run_type", string(o.Run.RunType)).
			Time("recorded", o.Run.Recorded).
			Msg("dry-run: batch is a valid run")
	default:
		in.logger.Info().Uint("run_id", o.Run.ID).Strs("files", o.Files).Msg("run ingested")
	}
	for _, w := range o.Warnings {
		in.logger.Warn().Strs("files", o.Files).Msg(w)
	}
}

// Watch ingests new screenshots as they appear in dir. Pending files are
// processed once no new file has arrived for the debounce window. It returns
// when ctx is done.
func (in *Ingester) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	in.logger.Info().Str("dir", dir).Dur("debounce", in.opts.Debounce).Msg("watching")

	tick := in.opts.Debounce / 4
	if tick < 50*time.Millisecond {
		tick = 50 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := map[string]struct{}{}
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isSupportedExt(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			last = time.Now()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn().Err(err).Msg("watch error")
		case <-ticker.C:
			if len(pending) == 0 || time.Since(last) < in.opts.Debounce {
				continue
			}
			files := make([]File, 0, len(pending))
			for p := range pending {
				f, err := statFile(p)
				if err != nil {
					in.logger.Debug().Err(err).Str("path", p).Msg("pending file vanished")
					continue
				}
				files = append(files, f)
			}
			pending = map[string]struct{}{}
			in.runPool(ctx, Group(in.unseen(files), in.opts.Gap))
		}
	}
}

// ListImages returns the supported screenshots directly inside dir.
func ListImages(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []File
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, File{Name: e.Name(), Path: filepath.Join(dir, e.Name()), ModTime: info.ModTime()})
	}
	return out, nil
}

// Group orders files by modification time and splits them wherever two
// consecutive files are more than gap apart.
func Group(files []File, gap time.Duration) [][]File {
	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ModTime.Before(sorted[j].ModTime) })

	var out [][]File
	var cur []File
	for i, f := range sorted {
		if i > 0 && f.ModTime.Sub(sorted[i-1].ModTime) > gap {
			out = append(out, cur)
			cur = nil
		}
		cur = append(cur, f)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func statFile(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	return File{Name: filepath.Base(path), Path: path, ModTime: info.ModTime()}, nil
}

func isSupportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

func names(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

// moveFile renames src to dst, copying across devices when rename fails.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
