// Package runstore persists runs and their screenshots with gorm.
package runstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"towerstats/models"
)

// ErrNotFound is returned when a run does not exist or belongs to another user.
var ErrNotFound = errors.New("run not found")

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("duplicate record")

// ListOptions filter List.
type ListOptions struct {
	RunType string
	From    *time.Time
	To      *time.Time
	Limit   int
}

// Store is the run repository.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open connects to the Postgres database at dsn.
func Open(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("DB_DSN is not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return gdb, nil
}

func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Migrate creates or updates the run tables.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&models.Run{}, &models.RunScreen{})
}

// Create inserts run together with its screens.
func (s *Store) Create(ctx context.Context, run *models.Run) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return wrap("create run", err)
	}
	s.logger.Info().Uint("run_id", run.ID).Uint("user_id", run.UserID).Int("screens", len(run.Screens)).Msg("run created")
	return nil
}

// Get loads one run of userID with its screens.
func (s *Store) Get(ctx context.Context, userID, runID uint) (*models.Run, error) {
	var run models.Run
	err := s.db.WithContext(ctx).
		Preload("Screens", func(db *gorm.DB) *gorm.DB { return db.Order("last_modified asc, id asc") }).
		Where("id = ? AND user_id = ?", runID, userID).
		First(&run).Error
	if err != nil {
		return nil, wrap("get run", err)
	}
	return &run, nil
}

// List returns the runs of userID, most recent first.
func (s *Store) List(ctx context.Context, userID uint, opts ListOptions) ([]models.Run, error) {
	q := s.db.WithContext(ctx).Model(&models.Run{}).Where("user_id = ?", userID)
	if opts.RunType != "" {
		q = q.Where("run_type = ?", opts.RunType)
	}
	if opts.From != nil {
		q = q.Where("recorded >= ?", *opts.From)
	}
	if opts.To != nil {
		q = q.Where("recorded <= ?", *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var out []models.Run
	if err := q.Order("recorded desc, id desc").Find(&out).Error; err != nil {
		return nil, wrap("list runs", err)
	}
	return out, nil
}

// Update replaces the header and values of an existing run. Screens are untouched.
func (s *Store) Update(ctx context.Context, run *models.Run) error {
	res := s.db.WithContext(ctx).Model(&models.Run{}).
		Where("id = ? AND user_id = ?", run.ID, run.UserID).
		Select("recorded", "run_type", "tier", "wave", "real_time", "real_time_hours",
			"coins_per_hour", "cells_per_hour", "reroll_shards_per_hour", "stats").
		Updates(run)
	if res.Error != nil {
		return wrap("update run", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a run and its screen rows in one transaction and returns the
// removed screens so their blobs can be deleted.
func (s *Store) Delete(ctx context.Context, userID, runID uint) ([]models.RunScreen, error) {
	var screens []models.RunScreen
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run models.Run
		if err := tx.Where("id = ? AND user_id = ?", runID, userID).First(&run).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", run.ID).Find(&screens).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", run.ID).Delete(&models.RunScreen{}).Error; err != nil {
			return err
		}
		return tx.Delete(&run).Error
	})
	if err != nil {
		return nil, wrap("delete run", err)
	}
	s.logger.Info().Uint("run_id", runID).Uint("user_id", userID).Int("screens", len(screens)).Msg("run deleted")
	return screens, nil
}

// Screen finds a stored screenshot by storage key for its owner.
func (s *Store) Screen(ctx context.Context, userID uint, key string) (*models.RunScreen, error) {
	var sc models.RunScreen
	err := s.db.WithContext(ctx).
		Joins("JOIN runs ON runs.id = run_screens.run_id").
		Where("run_screens.storage_key = ? AND runs.user_id = ?", key, userID).
		First(&sc).Error
	if err != nil {
		return nil, wrap("get screen", err)
	}
	return &sc, nil
}

// ScreenFileNames lists the original file names of every screenshot stored for userID.
func (s *Store) ScreenFileNames(ctx context.Context, userID uint) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&models.RunScreen{}).
		Joins("JOIN runs ON runs.id = run_screens.run_id").
		Where("runs.user_id = ?", userID).
		Pluck("run_screens.file_name", &names).Error
	if err != nil {
		return nil, wrap("list screen names", err)
	}
	return names, nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func wrap(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case IsUniqueViolation(err):
		return fmt.Errorf("%s: %w: %v", op, ErrDuplicate, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
