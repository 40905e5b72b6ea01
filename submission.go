package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"towerstats/models"
	"towerstats/pkg/ocr"
	"towerstats/pkg/runs"
	"towerstats/pkg/storage"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// fileInfo carries browser-side file metadata that multipart uploads lose.
type fileInfo struct {
	Name         string `json:"name"`
	LastModified int64  `json:"lastModified"` // unix milliseconds
}

// runMeta is the user-editable part of a run besides its field values.
type runMeta struct {
	Recorded *time.Time `json:"recorded"`
	RunType  string     `json:"runType"`
}

type submission struct {
	FieldValues runs.FieldValues `json:"fieldValues"`
	Meta        runMeta          `json:"meta"`
	Screens     []ocr.Screen     `json:"-"`
}

// buildRun validates fv, parses it and derives the run header. The recorded
// time comes from meta, then fallback, then now. The run type comes from
// meta, then preferred.
func buildRun(reg *runs.Registry, userID uint, fv runs.FieldValues, meta runMeta, fallback time.Time, preferred runs.RunType) (*models.Run, error) {
	if err := reg.Validate(fv); err != nil {
		return nil, err
	}
	parsed := reg.Parse(fv)
	recorded := fallback
	if meta.Recorded != nil && !meta.Recorded.IsZero() {
		recorded = *meta.Recorded
	}
	if recorded.IsZero() {
		recorded = time.Now()
	}
	runType := preferred
	if strings.TrimSpace(meta.RunType) != "" {
		runType = runs.ParseRunType(meta.RunType)
	}
	run := &models.Run{UserID: userID, Values: parsed}
	run.ApplyHeader(runs.BuildHeader(parsed, recorded.UTC(), runType))
	return run, nil
}

// earliest returns the oldest last-modified time among screens.
func earliest(screens []ocr.Screen) time.Time {
	var t time.Time
	for _, sc := range screens {
		if t.IsZero() || sc.LastModified.Before(t) {
			t = sc.LastModified
		}
	}
	return t
}

// submitRun stores the screenshots and persists run. Blobs written before a
// failure are removed again.
func submitRun(ctx context.Context, run *models.Run, screens []ocr.Screen) error {
	cleanup := func() {
		for _, sc := range run.Screens {
			if err := blobs.Delete(sc.StorageKey); err != nil {
				logger.Warn().Err(err).Str("key", sc.StorageKey).Msg("failed to remove orphaned screenshot")
			}
		}
	}
	for _, sc := range screens {
		obj, err := blobs.Put(sc.FileName, sc.Data)
		if err != nil {
			cleanup()
			return fmt.Errorf("store screenshot %s: %w", sc.FileName, err)
		}
		run.Screens = append(run.Screens, screenRow(obj, sc))
	}
	if err := store.Create(ctx, run); err != nil {
		cleanup()
		return err
	}
	return nil
}

func screenRow(obj storage.Object, sc ocr.Screen) models.RunScreen {
	return models.RunScreen{
		StorageKey:   obj.Key,
		FileName:     sc.FileName,
		ContentType:  obj.ContentType,
		Size:         obj.Size,
		LastModified: sc.LastModified,
	}
}

// preferredRunType reads the run type a user picked in their profile.
func preferredRunType(ctx context.Context, userID uint) runs.RunType {
	var p models.Profile
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return runs.RunTypeFarming
	}
	return runs.ParseRunType(p.PreferredRunType)
}

// readSubmission accepts either a JSON body {fieldValues, meta} or a
// multipart form with fieldValues and meta JSON fields plus screenshots.
func readSubmission(c *gin.Context) (submission, error) {
	var sub submission
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&sub); err != nil {
			return sub, badRequest("invalid body: %v", err)
		}
		return sub, nil
	}
	screens, err := readScreens(c, false)
	if err != nil {
		return sub, err
	}
	sub.Screens = screens
	raw := c.PostForm("fieldValues")
	if raw == "" {
		return sub, badRequest("fieldValues is required")
	}
	if err := json.Unmarshal([]byte(raw), &sub.FieldValues); err != nil {
		return sub, badRequest("invalid fieldValues: %v", err)
	}
	if raw := c.PostForm("meta"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sub.Meta); err != nil {
			return sub, badRequest("invalid meta: %v", err)
		}
	}
	return sub, nil
}

// readScreens reads the "screenshots" files of a multipart request, taking
// last-modified times from the optional "fileInfo" JSON array.
func readScreens(c *gin.Context, required bool) ([]ocr.Screen, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) && !required {
			return nil, nil
		}
		return nil, badRequest("invalid multipart form: %v", err)
	}
	files := form.File["screenshots"]
	if len(files) == 0 {
		if required {
			return nil, badRequest("no screenshots uploaded")
		}
		return nil, nil
	}
	infos := map[string]fileInfo{}
	if raw := form.Value["fileInfo"]; len(raw) > 0 && raw[0] != "" {
		var list []fileInfo
		if err := json.Unmarshal([]byte(raw[0]), &list); err != nil {
			return nil, badRequest("invalid fileInfo: %v", err)
		}
		for _, fi := range list {
			infos[fi.Name] = fi
		}
	}
	now := time.Now()
	screens := make([]ocr.Screen, 0, len(files))
	for _, fh := range files {
		if fh.Size > cfg.MaxUploadBytes {
			return nil, badRequest("%s exceeds the upload limit of %d bytes", fh.Filename, cfg.MaxUploadBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, cfg.MaxUploadBytes+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}
		if int64(len(data)) > cfg.MaxUploadBytes {
			return nil, badRequest("%s exceeds the upload limit of %d bytes", fh.Filename, cfg.MaxUploadBytes)
		}
		lm := now
		if fi, ok := infos[fh.Filename]; ok && fi.LastModified > 0 {
			lm = time.UnixMilli(fi.LastModified).UTC()
		}
		screens = append(screens, ocr.Screen{FileName: fh.Filename, LastModified: lm, Data: data})
	}
	return screens, nil
}
