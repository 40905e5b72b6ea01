package main

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"towerstats/models"
	"towerstats/pkg/export"
	"towerstats/pkg/ocr"
	"towerstats/pkg/runs"
	"towerstats/pkg/runstore"
	"towerstats/pkg/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type schemaField struct {
	Key   runs.Key  `json:"key"`
	Label string    `json:"label"`
	Kind  runs.Kind `json:"kind"`
}

type schemaSection struct {
	Name   runs.Section  `json:"name"`
	Fields []schemaField `json:"fields"`
}

// schemaHandler describes every section and field so clients can render the edit form.
func schemaHandler(c *gin.Context) {
	reg := runs.Default
	out := make([]schemaSection, 0, len(reg.Sections()))
	for _, s := range reg.Sections() {
		keys, _ := reg.Keys(s)
		sec := schemaSection{Name: s, Fields: make([]schemaField, 0, len(keys))}
		for _, k := range keys {
			fc, _ := reg.Config(s, k)
			sec.Fields = append(sec.Fields, schemaField{Key: k, Label: fc.Label, Kind: fc.Kind})
		}
		out = append(out, sec)
	}
	c.JSON(http.StatusOK, gin.H{"sections": out})
}

type screenOutcome struct {
	File         string    `json:"file"`
	LastModified time.Time `json:"lastModified"`
	Text         string    `json:"text,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// recognizeHandler runs OCR over uploaded screenshots and returns the
// pre-filled field values without storing anything.
func recognizeHandler(c *gin.Context) {
	screens, err := readScreens(c, true)
	if err != nil {
		writeError(c, err)
		return
	}
	l := requestLogger(c)
	batch := ocr.NewBatch(recognizer, ocr.Options{
		Workers:    cfg.OCRWorkers,
		Timeout:    cfg.OCRTimeout,
		Preprocess: &ocr.DefaultPreprocess,
	}, l)
	res := batch.Run(c.Request.Context(), screens)

	fv, assigned := runs.Default.MatchAll(runs.Default.Defaults(), res.Texts()...)
	outcomes := make([]screenOutcome, 0, len(res.Results))
	for _, r := range res.Results {
		o := screenOutcome{File: r.FileName, LastModified: r.LastModified, Text: r.Text}
		if r.Err != nil {
			o.Error = r.Err.Error()
		}
		outcomes = append(outcomes, o)
	}
	l.Info().
		Int("screens", len(screens)).
		Int("failed", len(res.Failed())).
		Int("assigned", len(assigned)).
		Msg("screenshots recognized")
	c.JSON(http.StatusOK, gin.H{
		"fieldValues": fv,
		"screens":     outcomes,
		"warnings":    nonNil(res.Warnings),
		"recorded":    res.Earliest(),
	})
}

func createRunHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	sub, err := readSubmission(c)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx := c.Request.Context()
	run, err := buildRun(runs.Default, user.ID, sub.FieldValues, sub.Meta, earliest(sub.Screens), preferredRunType(ctx, user.ID))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := submitRun(ctx, run, sub.Screens); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRunView(runs.Default, *run, true))
}

func listRunsHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	opts, err := listOptions(c)
	if err != nil {
		writeError(c, err)
		return
	}
	items, err := store.List(c.Request.Context(), user.ID, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]runView, 0, len(items))
	for _, r := range items {
		out = append(out, newRunView(runs.Default, r, false))
	}
	c.JSON(http.StatusOK, out)
}

func getRunHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	id, err := runID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	run, err := store.Get(c.Request.Context(), user.ID, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRunView(runs.Default, *run, true))
}

// updateRunHandler replaces the field values and meta of a run; its screenshots are kept.
func updateRunHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	id, err := runID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var sub submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		writeError(c, badRequest("invalid body: %v", err))
		return
	}
	ctx := c.Request.Context()
	existing, err := store.Get(ctx, user.ID, id)
	if err != nil {
		writeError(c, err)
		return
	}
	run, err := buildRun(runs.Default, user.ID, sub.FieldValues, sub.Meta, existing.Recorded, existing.RunType)
	if err != nil {
		writeError(c, err)
		return
	}
	run.ID = existing.ID
	run.CreatedAt = existing.CreatedAt
	run.Screens = existing.Screens
	if err := store.Update(ctx, run); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRunView(runs.Default, *run, true))
}

func deleteRunHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	id, err := runID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	screens, err := store.Delete(c.Request.Context(), user.ID, id)
	if err != nil {
		writeError(c, err)
		return
	}
	l := requestLogger(c)
	for _, sc := range screens {
		if err := blobs.Delete(sc.StorageKey); err != nil {
			l.Warn().Err(err).Str("key", sc.StorageKey).Msg("failed to delete screenshot blob")
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "run deleted", "screens": len(screens)})
}

func damageShareHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	id, err := runID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	run, err := store.Get(c.Request.Context(), user.ID, id)
	if err != nil {
		writeError(c, err)
		return
	}
	shares, err := runs.Default.DamageShare(run.Values, cfg.DamageShare)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, shares)
}

func exportRunsHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	opts, err := listOptions(c)
	if err != nil {
		writeError(c, err)
		return
	}
	items, err := store.List(c.Request.Context(), user.ID, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	data, err := export.RunsXLSX(runs.Default, items)
	if err != nil {
		writeError(c, err)
		return
	}
	name := "runs-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

// dashboardHandler summarizes the user's farming runs.
func dashboardHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	items, err := store.List(c.Request.Context(), user.ID, runstore.ListOptions{RunType: string(runs.RunTypeFarming)})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard(items))
}

func dashboard(items []models.Run) gin.H {
	headers := make([]runs.Header, len(items))
	for i, r := range items {
		headers[i] = r.Header()
	}
	s := runs.Summarize(headers)
	best := func(b *runs.Best) any {
		if b == nil {
			return nil
		}
		return gin.H{"runId": items[b.Index].ID, "rate": b.Rate, "run": b.Header}
	}
	return gin.H{
		"runs":                    s.Runs,
		"bestCoinsPerHour":        best(s.BestCoins),
		"bestCellsPerHour":        best(s.BestCells),
		"bestRerollShardsPerHour": best(s.BestRerollShards),
		"tiers":                   nonNil(s.Tiers),
		"byTier":                  nonNil(s.ByTier),
	}
}

// screenHandler serves a stored screenshot to the owner of its run.
func screenHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	sc, err := store.Screen(c.Request.Context(), user.ID, key)
	if err != nil {
		writeError(c, err)
		return
	}
	f, err := blobs.Open(sc.StorageKey)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, storage.ErrInvalidKey) {
			c.JSON(http.StatusNotFound, gin.H{"error": "screenshot not found"})
			return
		}
		writeError(c, err)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		writeError(c, err)
		return
	}
	if sc.ContentType != "" {
		c.Header("Content-Type", sc.ContentType)
	}
	http.ServeContent(c.Writer, c.Request, sc.FileName, st.ModTime(), f)
}

type screenView struct {
	Key          string    `json:"key"`
	File         string    `json:"file"`
	URL          string    `json:"url"`
	LastModified time.Time `json:"lastModified"`
	Size         int64     `json:"size"`
	OCRFailed    bool      `json:"ocrFailed,omitempty"`
	FailedReason string    `json:"failedReason,omitempty"`
}

type runView struct {
	ID uint `json:"id"`
	runs.Header
	Values      runs.ParsedValues `json:"values,omitempty"`
	FieldValues runs.FieldValues  `json:"fieldValues,omitempty"`
	Screens     []screenView      `json:"screens,omitempty"`
}

// newRunView renders a run; detail adds the parsed values, the editable text
// and screenshot URLs.
func newRunView(reg *runs.Registry, r models.Run, detail bool) runView {
	v := runView{ID: r.ID, Header: r.Header()}
	if !detail {
		return v
	}
	v.Values = r.Values
	v.FieldValues = reg.FromParsed(r.Values)
	for _, sc := range r.Screens {
		sv := screenView{
			Key:          sc.StorageKey,
			File:         sc.FileName,
			LastModified: sc.LastModified,
			Size:         sc.Size,
			OCRFailed:    sc.OCRFailed,
			FailedReason: sc.FailedReason,
		}
		if blobs != nil {
			sv.URL = blobs.URL(sc.StorageKey)
		}
		v.Screens = append(v.Screens, sv)
	}
	return v
}

func runID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid run id %q", c.Param("id"))
	}
	return uint(id), nil
}

// listOptions reads runType, from, to (RFC 3339) and limit query parameters.
func listOptions(c *gin.Context) (runstore.ListOptions, error) {
	var opts runstore.ListOptions
	if rt := c.Query("runType"); rt != "" {
		opts.RunType = string(runs.ParseRunType(rt))
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &opts.From}, {"to", &opts.To}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, badRequest("invalid %s: %v", p.name, err)
		}
		*p.dst = &t
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, badRequest("invalid limit %q", raw)
		}
		opts.Limit = n
	}
	return opts, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
