package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"towerstats/models"
	"towerstats/pkg/ocr"
	"towerstats/pkg/runs"
	"towerstats/pkg/runstore"
)

// useTestGlobals installs test configuration and restores the previous globals afterwards.
func useTestGlobals(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	prevCfg, prevLogger, prevSecret, prevRec := cfg, logger, jwtSecret, recognizer
	cfg = &Config{
		MaxUploadBytes:  1 << 20,
		ScreenURLPrefix: "/screens",
		OCRWorkers:      2,
		OCRTimeout:      5 * time.Second,
		DamageShare:     runs.DefaultDamageShareOptions,
	}
	logger = zerolog.Nop()
	jwtSecret = []byte("test-secret")
	t.Cleanup(func() {
		cfg, logger, jwtSecret, recognizer = prevCfg, prevLogger, prevSecret, prevRec
	})
}

// completeRecord fills every field of the default schema with a valid value.
func completeRecord(t *testing.T) runs.FieldValues {
	t.Helper()
	samples := map[runs.Kind]string{
		runs.KindLargeNumber: "1.5K",
		runs.KindInteger:     "3",
		runs.KindIntegerPlus: "12",
		runs.KindTimespan:    "1h 30m",
		runs.KindMultiplier:  "x1.5",
		runs.KindText:        "Boss",
	}
	reg := runs.Default
	fv := reg.Defaults()
	for _, s := range reg.Sections() {
		keys, _ := reg.Keys(s)
		for _, k := range keys {
			fc, _ := reg.Config(s, k)
			var err error
			if fv, err = reg.Set(fv, s, k, samples[fc.Kind]); err != nil {
				t.Fatalf("set %s.%s: %v", s, k, err)
			}
		}
	}
	return fv
}

func mustSet(t *testing.T, fv runs.FieldValues, s runs.Section, k runs.Key, text string) runs.FieldValues {
	t.Helper()
	out, err := runs.Default.Set(fv, s, k, text)
	if err != nil {
		t.Fatalf("set %s.%s: %v", s, k, err)
	}
	return out
}

func TestSchemaHandler(t *testing.T) {
	useTestGlobals(t)
	r := gin.New()
	r.GET("/schema", schemaHandler)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schema", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Sections []schemaSection `json:"sections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sections) != 3 || body.Sections[0].Name != runs.SectionBattleReport {
		t.Fatalf("unexpected sections: %+v", body.Sections)
	}
	first := body.Sections[0].Fields[0]
	if first.Key != runs.KeyGameTime || first.Label != "Game Time" || first.Kind != runs.KindTimespan {
		t.Fatalf("unexpected first field: %+v", first)
	}
}

func TestBuildRunRejectsFirstBlankField(t *testing.T) {
	_, err := buildRun(runs.Default, 1, runs.Default.Defaults(), runMeta{}, time.Time{}, runs.RunTypeFarming)
	var verr *runs.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Key != runs.KeyGameTime || verr.Reason != runs.ReasonBlank {
		t.Fatalf("unexpected error: %+v", verr)
	}
	if verr.Error() != "Game Time cannot be blank." {
		t.Fatalf("unexpected message %q", verr.Error())
	}
}

func TestBuildRunDerivesHeader(t *testing.T) {
	fv := completeRecord(t)
	fv = mustSet(t, fv, runs.SectionBattleReport, runs.KeyRealTime, "2h")
	fv = mustSet(t, fv, runs.SectionBattleReport, runs.KeyCoinsEarned, "1M")
	fv = mustSet(t, fv, runs.SectionBattleReport, runs.KeyTier, "14+")
	recorded := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	run, err := buildRun(runs.Default, 7, fv, runMeta{}, recorded, runs.RunTypeFarming)
	if err != nil {
		t.Fatalf("buildRun: %v", err)
	}
	if run.UserID != 7 || !run.Recorded.Equal(recorded) {
		t.Fatalf("unexpected owner or time: %d %v", run.UserID, run.Recorded)
	}
	if run.RunType != runs.RunTypeTournament {
		t.Fatalf("plus tier should force tournament, got %s", run.RunType)
	}
	if run.CoinsPerHour == nil || math.Abs(*run.CoinsPerHour-500000) > 1e-6 {
		t.Fatalf("unexpected coins/hour: %v", run.CoinsPerHour)
	}
	if got := run.Values.Text(runs.SectionBattleReport, runs.KeyTier); got != "14+" {
		t.Fatalf("stored text %q", got)
	}
}

func TestBuildRunMetaOverrides(t *testing.T) {
	fv := completeRecord(t)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	run, err := buildRun(runs.Default, 1, fv, runMeta{Recorded: &at, RunType: "milestone"}, time.Now(), runs.RunTypeFarming)
	if err != nil {
		t.Fatalf("buildRun: %v", err)
	}
	if !run.Recorded.Equal(at) || run.RunType != runs.RunTypeMilestone {
		t.Fatalf("meta ignored: %v %s", run.Recorded, run.RunType)
	}
}

func TestWriteErrorMapping(t *testing.T) {
	useTestGlobals(t)
	cases := []struct {
		err  error
		code int
	}{
		{&runs.ValidationError{Section: runs.SectionBattleReport, Key: runs.KeyWave, Label: "Wave", Reason: runs.ReasonInvalid}, http.StatusBadRequest},
		{&runs.MetricError{Metric: "damage share", Message: "no damage"}, http.StatusBadRequest},
		{runstore.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("create run: %w", runstore.ErrDuplicate), http.StatusConflict},
		{badRequest("bad %s", "input"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		writeError(c, tc.err)
		if rec.Code != tc.code {
			t.Fatalf("%v: status=%d want %d", tc.err, rec.Code, tc.code)
		}
	}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(c, &runs.ValidationError{Section: runs.SectionBattleReport, Key: runs.KeyWave, Label: "Wave", Reason: runs.ReasonInvalid})
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "Invalid value for Wave" || body["key"] != "wave" || body["section"] != "battleReport" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	useTestGlobals(t)
	r := gin.New()
	r.Use(requestID(zerolog.Nop()))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	id := rec.Header().Get(requestIDHeader)
	if id == "" || rec.Body.String() != id {
		t.Fatalf("expected generated id, header=%q body=%q", id, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "abc")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Header().Get(requestIDHeader) != "abc" {
		t.Fatalf("incoming id not kept: %q", rec.Header().Get(requestIDHeader))
	}
}

func TestJWTAuthMiddleware(t *testing.T) {
	useTestGlobals(t)
	r := gin.New()
	r.GET("/me", jwtAuthMiddleware(), meHandler)

	token, err := signToken("alice", "user", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec := performRequest(r, http.MethodGet, "/me", nil, token, "")
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"alice"`)) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := performRequest(r, http.MethodGet, "/me", nil, "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status=%d", rec.Code)
	}
	expired, _ := signToken("alice", "user", -time.Minute)
	if rec := performRequest(r, http.MethodGet, "/me", nil, expired, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: status=%d", rec.Code)
	}
	jwtSecret = []byte("other")
	if rec := performRequest(r, http.MethodGet, "/me", nil, token, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: status=%d", rec.Code)
	}
}

func TestListOptions(t *testing.T) {
	useTestGlobals(t)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/runs?runType=tourney&from=2024-01-01T00:00:00Z&limit=5", nil)
	opts, err := listOptions(c)
	if err != nil {
		t.Fatalf("listOptions: %v", err)
	}
	if opts.RunType != "tournament" || opts.Limit != 5 || opts.From == nil || opts.To != nil {
		t.Fatalf("unexpected options: %+v", opts)
	}

	c.Request = httptest.NewRequest(http.MethodGet, "/runs?limit=x", nil)
	if _, err := listOptions(c); !errors.Is(err, errBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestDashboardReportsRunIDs(t *testing.T) {
	rate := func(v float64) *float64 { return &v }
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	items := []models.Run{
		{ID: 10, Recorded: t0.Add(time.Hour), RunType: runs.RunTypeFarming, Tier: 10, CoinsPerHour: rate(5)},
		{ID: 11, Recorded: t0, RunType: runs.RunTypeFarming, Tier: 11, CoinsPerHour: rate(9)},
	}
	out := dashboard(items)
	best, ok := out["bestCoinsPerHour"].(gin.H)
	if !ok || best["runId"] != uint(11) {
		t.Fatalf("unexpected best coins: %v", out["bestCoinsPerHour"])
	}
	if out["bestCellsPerHour"] != nil {
		t.Fatalf("missing rates should have no best run: %v", out["bestCellsPerHour"])
	}
	if tiers := out["tiers"].([]float64); len(tiers) != 2 || tiers[0] != 10 {
		t.Fatalf("unexpected tiers: %v", tiers)
	}
}

type upload struct {
	name  string
	data  []byte
	mtime time.Time
}

func multipartBody(t *testing.T, files []upload, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	var infos []fileInfo
	for _, f := range files {
		fw, err := mw.CreateFormFile("screenshots", f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(f.data)
		infos = append(infos, fileInfo{Name: f.name, LastModified: f.mtime.UnixMilli()})
	}
	raw, _ := json.Marshal(infos)
	mw.WriteField("fileInfo", string(raw))
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 40
	}
	img.Set(0, 0, color.Gray{Y: 250})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestReadScreens(t *testing.T) {
	useTestGlobals(t)
	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	body, ct := multipartBody(t, []upload{{"a.png", []byte("x"), mtime}}, nil)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/runs/recognize", body)
	c.Request.Header.Set("Content-Type", ct)
	screens, err := readScreens(c, true)
	if err != nil {
		t.Fatalf("readScreens: %v", err)
	}
	if len(screens) != 1 || screens[0].FileName != "a.png" || !screens[0].LastModified.Equal(mtime) {
		t.Fatalf("unexpected screens: %+v", screens)
	}

	cfg.MaxUploadBytes = 4
	body, ct = multipartBody(t, []upload{{"big.png", []byte("0123456789"), mtime}}, nil)
	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/runs/recognize", body)
	c.Request.Header.Set("Content-Type", ct)
	if _, err := readScreens(c, true); !errors.Is(err, errBadRequest) {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestRecognizeHandler(t *testing.T) {
	useTestGlobals(t)
	// The stub tells screenshots apart by the width that survives preprocessing.
	recognizer = ocr.RecognizerFunc(func(ctx context.Context, img []byte) (string, error) {
		conf, err := jpeg.DecodeConfig(bytes.NewReader(img))
		if err != nil {
			return "", err
		}
		switch conf.Width {
		case 10:
			return "Tier 11\nWave 2000\nKilled By Boss", nil
		case 20:
			return "Tier 12", nil
		}
		return "", errors.New("unreadable")
	})
	r := gin.New()
	r.POST("/runs/recognize", recognizeHandler)

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	body, ct := multipartBody(t, []upload{
		{"second.png", solidPNG(t, 20, 8), t0.Add(time.Minute)},
		{"first.png", solidPNG(t, 10, 8), t0},
		{"broken.png", []byte("not an image"), t0.Add(10 * time.Minute)},
	}, nil)
	rec := performRequest(r, http.MethodPost, "/runs/recognize", body, "", ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		FieldValues runs.FieldValues `json:"fieldValues"`
		Screens     []screenOutcome  `json:"screens"`
		Warnings    []string         `json:"warnings"`
		Recorded    time.Time        `json:"recorded"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	br := runs.SectionBattleReport
	if got := resp.FieldValues.Get(br, runs.KeyTier); got != "12" {
		t.Fatalf("later screenshot should win tier, got %q", got)
	}
	if resp.FieldValues.Get(br, runs.KeyWave) != "2000" || resp.FieldValues.Get(br, runs.KeyKilledBy) != "Boss" {
		t.Fatalf("unexpected values: %v", resp.FieldValues[br])
	}
	if len(resp.Screens) != 3 || resp.Screens[0].File != "first.png" || resp.Screens[2].Error == "" {
		t.Fatalf("unexpected screens: %+v", resp.Screens)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0] != ocr.WarnSpread {
		t.Fatalf("expected spread warning, got %v", resp.Warnings)
	}
	if !resp.Recorded.Equal(t0) {
		t.Fatalf("recorded=%v want %v", resp.Recorded, t0)
	}
}

func TestRecognizeHandlerNeedsScreens(t *testing.T) {
	useTestGlobals(t)
	r := gin.New()
	r.POST("/runs/recognize", recognizeHandler)
	body, ct := multipartBody(t, nil, nil)
	rec := performRequest(r, http.MethodPost, "/runs/recognize", body, "", ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}
