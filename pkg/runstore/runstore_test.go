package runstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"towerstats/models"
	"towerstats/pkg/runs"
)

func TestWrap(t *testing.T) {
	if err := wrap("get", gorm.ErrRecordNotFound); err != ErrNotFound {
		t.Fatalf("record not found should map to ErrNotFound, got %v", err)
	}
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	if err := wrap("create", dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	other := errors.New("connection refused")
	if err := wrap("list", other); !errors.Is(err, other) || errors.Is(err, ErrNotFound) {
		t.Fatalf("unexpected wrapping %v", err)
	}
}

func openTestStore(t *testing.T) (*Store, *gorm.DB) {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	db, err := gorm.Open(postgres.Open(os.Getenv("DB_DSN")), &gorm.Config{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(&models.Role{}, &models.User{}); err != nil {
		t.Fatalf("migrate users: %v", err)
	}
	s := New(db, zerolog.Nop())
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate runs: %v", err)
	}
	return s, db
}

func TestRunLifecycle(t *testing.T) {
	s, db := openTestStore(t)
	ctx := context.Background()

	owner := models.User{Username: fmt.Sprintf("runstore-%d", time.Now().UnixNano()), HashedPassword: []byte("x")}
	other := models.User{Username: owner.Username + "-other", HashedPassword: []byte("x")}
	if err := db.Create(&owner).Error; err != nil {
		t.Fatalf("create owner: %v", err)
	}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("create other: %v", err)
	}

	fv := runs.Default.Defaults()
	fv, _ = runs.Default.Set(fv, runs.SectionBattleReport, runs.KeyTier, "11")
	parsed := runs.Default.Parse(fv)
	run := &models.Run{UserID: owner.ID, Values: parsed, Screens: []models.RunScreen{
		{StorageKey: fmt.Sprintf("%d.png", time.Now().UnixNano()), FileName: "a.png"},
	}}
	run.ApplyHeader(runs.BuildHeader(parsed, time.Now(), runs.RunTypeFarming))
	if err := s.Create(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(ctx, owner.ID, run.ID)
	if err != nil || len(got.Screens) != 1 || got.Tier != 11 {
		t.Fatalf("get: %+v err=%v", got, err)
	}
	if got.Values.Text(runs.SectionBattleReport, runs.KeyTier) != "11" {
		t.Fatalf("values not round-tripped: %+v", got.Values)
	}
	if _, err := s.Get(ctx, other.ID, run.ID); err != ErrNotFound {
		t.Fatalf("other user must not see the run, got %v", err)
	}

	got.Wave = 4000
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	list, err := s.List(ctx, owner.ID, ListOptions{})
	if err != nil || len(list) != 1 || list[0].Wave != 4000 {
		t.Fatalf("list: %+v err=%v", list, err)
	}

	if _, err := s.Delete(ctx, other.ID, run.ID); err != ErrNotFound {
		t.Fatalf("delete by other user should be not found, got %v", err)
	}
	screens, err := s.Delete(ctx, owner.ID, run.ID)
	if err != nil || len(screens) != 1 {
		t.Fatalf("delete: %v screens=%d", err, len(screens))
	}
	if _, err := s.Get(ctx, owner.ID, run.ID); err != ErrNotFound {
		t.Fatalf("run still present after delete: %v", err)
	}
}
