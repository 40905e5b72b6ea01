package ocr

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MaxBatchSpread is how far apart the first and last screenshot of one run
// may be before the batch is flagged.
const MaxBatchSpread = 5 * time.Minute

// WarnSpread is returned when a batch spans more than MaxBatchSpread.
const WarnSpread = "Screenshots were taken more than 5 minutes apart and may belong to different runs."

// Screen is one uploaded screenshot.
type Screen struct {
	FileName     string
	LastModified time.Time
	Data         []byte
}

// Result is the outcome for one screenshot. Exactly one of Text and Err is set.
type Result struct {
	Index        int       `json:"index"`
	FileName     string    `json:"file"`
	LastModified time.Time `json:"lastModified"`
	Text         string    `json:"text,omitempty"`
	Err          error     `json:"-"`
}

// BatchResult holds per-screenshot results ordered by last-modified time.
type BatchResult struct {
	Results  []Result
	Warnings []string
}

// Texts returns the recognized text of every successful screenshot, in order.
func (b BatchResult) Texts() []string {
	out := make([]string, 0, len(b.Results))
	for _, r := range b.Results {
		if r.Err == nil {
			out = append(out, r.Text)
		}
	}
	return out
}

// Failed returns the recognition errors of the batch.
func (b BatchResult) Failed() []*RecognitionError {
	var out []*RecognitionError
	for _, r := range b.Results {
		var rerr *RecognitionError
		if errors.As(r.Err, &rerr) {
			out = append(out, rerr)
		}
	}
	return out
}

// Earliest returns the last-modified time of the first screenshot, or the zero time.
func (b BatchResult) Earliest() time.Time {
	if len(b.Results) == 0 {
		return time.Time{}
	}
	return b.Results[0].LastModified
}

// Options configure a Batch.
type Options struct {
	Workers    int
	Timeout    time.Duration
	Preprocess *PreprocessOptions
}

// Batch recognizes the screenshots of one run concurrently.
type Batch struct {
	rec    Recognizer
	opts   Options
	logger zerolog.Logger
}

func NewBatch(rec Recognizer, opts Options, logger zerolog.Logger) *Batch {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Batch{rec: rec, opts: opts, logger: logger}
}

// Run sorts screens by last-modified time and recognizes them with at most
// Workers in flight. A failing screenshot gets a *RecognitionError in its
// Result; the others are unaffected.
func (b *Batch) Run(ctx context.Context, screens []Screen) BatchResult {
	sorted := make([]Screen, len(screens))
	copy(sorted, screens)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastModified.Before(sorted[j].LastModified)
	})

	results := make([]Result, len(sorted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, sc := range sorted {
		g.Go(func() error {
			results[i] = b.recognizeOne(gctx, i, sc)
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{Results: results}
	if n := len(sorted); n > 1 && sorted[n-1].LastModified.Sub(sorted[0].LastModified) > MaxBatchSpread {
		res.Warnings = append(res.Warnings, WarnSpread)
	}
	b.logger.Info().
		Int("screens", len(sorted)).
		Int("failed", len(res.Failed())).
		Int("warnings", len(res.Warnings)).
		Msg("ocr batch finished")
	return res
}

func (b *Batch) recognizeOne(ctx context.Context, i int, sc Screen) Result {
	r := Result{Index: i, FileName: sc.FileName, LastModified: sc.LastModified}
	start := time.Now()
	text, err := b.recognize(ctx, sc.Data)
	if err != nil {
		r.Err = &RecognitionError{Index: i, FileName: sc.FileName, Err: err}
		b.logger.Warn().Err(err).Int("index", i).Str("file", sc.FileName).Msg("ocr failed")
		return r
	}
	r.Text = text
	b.logger.Debug().
		Int("index", i).
		Str("file", sc.FileName).
		Dur("took", time.Since(start)).
		Str("snippet", snippet(text, 160)).
		Msg("ocr done")
	return r
}

func (b *Batch) recognize(ctx context.Context, data []byte) (string, error) {
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}
	if b.opts.Preprocess != nil {
		p, err := Preprocess(data, *b.opts.Preprocess)
		if err != nil {
			return "", err
		}
		data = p
	}
	return b.rec.Recognize(ctx, data)
}
