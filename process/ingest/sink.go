package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"towerstats/models"
	"towerstats/pkg/runstore"
	"towerstats/pkg/storage"
)

// StoreSaver writes screenshots to blob storage and the run to the database.
type StoreSaver struct {
	Store  *runstore.Store
	Blobs  *storage.DiskStore
	Logger zerolog.Logger
}

// Save stores every screenshot, failed ones included, then creates the run.
// Blobs are removed again when the run cannot be created.
func (s StoreSaver) Save(ctx context.Context, run *models.Run, screens []Screen) error {
	cleanup := func() {
		for _, sc := range run.Screens {
			if err := s.Blobs.Delete(sc.StorageKey); err != nil {
				s.Logger.Warn().Err(err).Str("key", sc.StorageKey).Msg("failed to remove orphaned screenshot")
			}
		}
	}
	for _, sc := range screens {
		obj, err := s.Blobs.Put(sc.FileName, sc.Data)
		if err != nil {
			cleanup()
			return fmt.Errorf("store screenshot %s: %w", sc.FileName, err)
		}
		row := models.RunScreen{
			StorageKey:   obj.Key,
			FileName:     sc.FileName,
			ContentType:  obj.ContentType,
			Size:         obj.Size,
			LastModified: sc.LastModified,
		}
		if sc.Err != nil {
			row.OCRFailed = true
			row.FailedReason = truncate(sc.Err.Error(), 255)
		}
		run.Screens = append(run.Screens, row)
	}
	if err := s.Store.Create(ctx, run); err != nil {
		cleanup()
		return err
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
