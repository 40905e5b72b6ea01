package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"towerstats/models"
	"towerstats/pkg/ocr"
	"towerstats/pkg/runs"
)

// textRecognizer treats file contents as the recognized text.
var textRecognizer = ocr.RecognizerFunc(func(ctx context.Context, img []byte) (string, error) {
	if string(img) == "fail" {
		return "", errors.New("unreadable")
	}
	return string(img), nil
})

type memSaver struct {
	mu    sync.Mutex
	saved []*models.Run
	seen  [][]Screen
	ch    chan *models.Run
}

func (m *memSaver) Save(ctx context.Context, run *models.Run, screens []Screen) error {
	m.mu.Lock()
	run.ID = uint(len(m.saved) + 1)
	m.saved = append(m.saved, run)
	m.seen = append(m.seen, screens)
	m.mu.Unlock()
	if m.ch != nil {
		m.ch <- run
	}
	return nil
}

// reportLines renders every schema field as an OCR line, split in two halves
// the way the game spreads them over two screens.
func reportLines(t *testing.T) (string, string) {
	t.Helper()
	samples := map[runs.Kind]string{
		runs.KindLargeNumber: "1.5K",
		runs.KindInteger:     "3",
		runs.KindIntegerPlus: "12",
		runs.KindTimespan:    "1h 30m",
		runs.KindMultiplier:  "x1.5",
		runs.KindText:        "Boss",
	}
	var lines []string
	for _, s := range runs.Default.Sections() {
		keys, _ := runs.Default.Keys(s)
		for _, k := range keys {
			fc, _ := runs.Default.Config(s, k)
			lines = append(lines, fc.Label+" "+samples[fc.Kind])
		}
	}
	half := len(lines) / 2
	return strings.Join(lines[:half], "\n"), strings.Join(lines[half:], "\n")
}

func writeShot(t *testing.T, dir, name, content string, mtime time.Time) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if err := os.Chtimes(p, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
	return p
}

func newTestIngester(saver Saver, opts Options) *Ingester {
	opts.UserID = 42
	return New(runs.Default, textRecognizer, ocr.Options{Workers: 2}, saver, opts, zerolog.Nop())
}

func TestGroup(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	files := []File{
		{Name: "e", ModTime: t0.Add(20 * time.Minute)},
		{Name: "b", ModTime: t0.Add(time.Minute)},
		{Name: "a", ModTime: t0},
		{Name: "d", ModTime: t0.Add(8 * time.Minute)},
		{Name: "c", ModTime: t0.Add(7 * time.Minute)},
	}
	got := Group(files, 5*time.Minute)
	want := [][]string{{"a", "b"}, {"c", "d"}, {"e"}}
	if len(got) != len(want) {
		t.Fatalf("got %d batches, want %d", len(got), len(want))
	}
	for i := range want {
		if strings.Join(names(got[i]), ",") != strings.Join(want[i], ",") {
			t.Fatalf("batch %d = %v, want %v", i, names(got[i]), want[i])
		}
	}
	if Group(nil, time.Minute) != nil {
		t.Fatalf("no files should give no batches")
	}
}

func TestScanSavesValidBatches(t *testing.T) {
	dir := t.TempDir()
	first, second := reportLines(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	writeShot(t, dir, "a.png", first, t0)
	writeShot(t, dir, "b.png", second, t0.Add(time.Minute))
	writeShot(t, dir, "c.png", "Tier 3", t0.Add(time.Hour))
	writeShot(t, dir, "notes.txt", "ignored", t0)

	saver := &memSaver{}
	in := newTestIngester(saver, Options{Workers: 2, RunType: runs.RunTypeMilestone})
	outcomes, err := in.Scan(context.Background(), dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(outcomes))
	}
	ok := outcomes[0]
	if ok.Err != nil || ok.Run == nil {
		t.Fatalf("first batch should be a run: %+v", ok)
	}
	if ok.Run.UserID != 42 || !ok.Run.Recorded.Equal(t0) || ok.Run.RunType != runs.RunTypeMilestone || ok.Run.Tier != 12 {
		t.Fatalf("unexpected run header: %+v", ok.Run.Header())
	}
	var verr *runs.ValidationError
	if !errors.As(outcomes[1].Err, &verr) {
		t.Fatalf("second batch should fail validation, got %v", outcomes[1].Err)
	}
	if len(saver.saved) != 1 || len(saver.seen[0]) != 2 || saver.seen[0][0].FileName != "a.png" {
		t.Fatalf("unexpected saves: %d", len(saver.saved))
	}

	again, err := in.Scan(context.Background(), dir)
	if err != nil || len(again) != 0 {
		t.Fatalf("rescan should skip seen files, got %d outcomes (%v)", len(again), err)
	}
}

func TestDryRunDoesNotSave(t *testing.T) {
	dir := t.TempDir()
	first, second := reportLines(t)
	t0 := time.Now().Add(-time.Hour)
	writeShot(t, dir, "a.png", first+"\n"+second, t0)

	in := newTestIngester(nil, Options{})
	outcomes, err := in.Scan(context.Background(), dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Err != nil || outcomes[0].Run == nil {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
	if outcomes[0].Run.ID != 0 || outcomes[0].Run.RunType != runs.RunTypeFarming {
		t.Fatalf("dry run should not persist: %+v", outcomes[0].Run.Header())
	}
	if _, err := os.Stat(filepath.Join(dir, "a.png")); err != nil {
		t.Fatalf("dry run must leave files in place: %v", err)
	}
}

func TestFailedScreenshotIsKept(t *testing.T) {
	dir := t.TempDir()
	moved := filepath.Join(t.TempDir(), "done")
	first, second := reportLines(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	writeShot(t, dir, "a.png", first+"\n"+second, t0)
	writeShot(t, dir, "b.png", "fail", t0.Add(30*time.Second))

	saver := &memSaver{}
	in := newTestIngester(saver, Options{MoveTo: moved})
	outcomes, err := in.Scan(context.Background(), dir)
	if err != nil || len(outcomes) != 1 || outcomes[0].Err != nil {
		t.Fatalf("unexpected scan result: %+v %v", outcomes, err)
	}
	screens := saver.seen[0]
	if len(screens) != 2 || screens[0].Err != nil || screens[1].Err == nil {
		t.Fatalf("expected the unreadable screenshot to carry its error: %+v", screens)
	}
	if string(screens[1].Data) != "fail" {
		t.Fatalf("screenshot data lost")
	}
	for _, n := range []string{"a.png", "b.png"} {
		if _, err := os.Stat(filepath.Join(moved, n)); err != nil {
			t.Fatalf("%s not moved: %v", n, err)
		}
	}
}

func TestWatchProcessesAfterDebounce(t *testing.T) {
	dir := t.TempDir()
	saver := &memSaver{ch: make(chan *models.Run, 1)}
	in := newTestIngester(saver, Options{Debounce: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- in.Watch(ctx, dir) }()
	time.Sleep(200 * time.Millisecond)

	first, second := reportLines(t)
	now := time.Now()
	writeShot(t, dir, "a.png", first, now)
	writeShot(t, dir, "b.png", second, now.Add(time.Second))

	select {
	case run := <-saver.ch:
		if run.Tier != 12 {
			t.Fatalf("unexpected run: %+v", run.Header())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not ingest the batch")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch returned %v", err)
	}
}
