// Package sanitize truncates application tables, optionally purging stored
// screenshots and reseeding the master roles and admin account.
package sanitize

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"towerstats/models"
	"towerstats/pkg/runstore"
)

// DefaultTables are the application tables, children after parents.
const DefaultTables = "roles,users,profiles,refresh_tokens,runs,run_screens"

var nameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Run executes the db_sanitize CLI behavior. Exported so a small cmd/main can call it.
func Run() {
	var (
		dryRun     = flag.Bool("dry-run", true, "Don't perform destructive actions; show what would be done")
		yes        = flag.Bool("yes", false, "Confirm destructive action (required to actually truncate)")
		reseed     = flag.Bool("reseed", false, "After truncation, reseed master roles and admin user/profile")
		purgeBlobs = flag.Bool("purge-blobs", false, "Also delete stored screenshots under UPLOAD_BASE")
		tables     = flag.String("tables", DefaultTables, "Comma-separated list of tables to truncate")
	)
	flag.Parse()

	_ = godotenv.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	gdb, err := runstore.Open(os.Getenv("DB_DSN"))
	if err != nil {
		logger.Fatal().Err(err).Msg("db_sanitize needs a database")
	}

	wanted := TableNames(*tables, logger)
	existing := []string{}
	// check presence individually to avoid any injection risk
	for _, t := range wanted {
		var cnt int64
		if err := gdb.Raw("SELECT count(*) FROM pg_tables WHERE schemaname = 'public' AND tablename = ?", t).Scan(&cnt).Error; err != nil {
			logger.Fatal().Err(err).Str("table", t).Msg("failed to query pg_tables")
		}
		if cnt > 0 {
			existing = append(existing, t)
		} else {
			logger.Info().Str("table", t).Msg("table not found, skipping")
		}
	}
	if len(existing) == 0 && !*purgeBlobs {
		logger.Info().Msg("no requested tables present in the database; nothing to do")
		return
	}

	fmt.Println("Tables considered for truncation:")
	for _, t := range existing {
		fmt.Printf(" - %s\n", t)
	}
	blobDir := os.Getenv("UPLOAD_BASE")
	if blobDir == "" {
		blobDir = "uploads"
	}
	if *purgeBlobs {
		fmt.Printf("Stored screenshots under %s will be deleted.\n", blobDir)
	}

	if *dryRun {
		fmt.Println("dry-run enabled; no changes will be made. Use --dry-run=false --yes to execute.")
		return
	}
	if !*yes {
		fmt.Println("Destructive operation. Pass --yes to confirm execution. Aborting.")
		return
	}

	if len(existing) > 0 {
		stmt := TruncateStatement(existing)
		logger.Info().Str("sql", stmt).Msg("executing")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := gdb.WithContext(ctx).Exec(stmt).Error; err != nil {
			logger.Fatal().Err(err).Msg("truncate failed")
		}
		logger.Info().Msg("truncate completed")
	}

	if *purgeBlobs {
		n, err := purgeDir(blobDir)
		if err != nil {
			logger.Fatal().Err(err).Str("dir", blobDir).Msg("purge failed")
		}
		logger.Info().Int("files", n).Str("dir", blobDir).Msg("stored screenshots deleted")
	}

	if *reseed {
		if err := reseedRolesAndAdmin(gdb); err != nil {
			logger.Fatal().Err(err).Msg("reseed failed")
		}
		logger.Info().Msg("roles and admin reseeded")
	}
}

// TableNames splits a comma separated list, dropping names that are not plain identifiers.
func TableNames(list string, logger zerolog.Logger) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !nameRe.MatchString(p) {
			logger.Warn().Str("table", p).Msg("skipping invalid table name")
			continue
		}
		out = append(out, p)
	}
	return out
}

// TruncateStatement builds the TRUNCATE for already validated table names.
func TruncateStatement(tables []string) string {
	quoted := make([]string, 0, len(tables))
	for _, t := range tables {
		quoted = append(quoted, fmt.Sprintf("\"%s\"", t))
	}
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
}

// purgeDir removes the regular files directly inside dir.
func purgeDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func reseedRolesAndAdmin(gdb *gorm.DB) error {
	for _, r := range models.MasterRoles() {
		if err := gdb.Where("name = ?", r.Name).FirstOrCreate(&r).Error; err != nil {
			return fmt.Errorf("failed to ensure role %s: %w", r.Name, err)
		}
	}
	var role models.Role
	if err := gdb.Where("name = ?", models.RoleAdministrator).First(&role).Error; err != nil {
		return fmt.Errorf("failed to find administrator role: %w", err)
	}
	rid := role.ID
	hashed, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	admin := models.User{Username: "admin", HashedPassword: hashed, RoleID: &rid}
	if err := gdb.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	profile := models.Profile{UserID: admin.ID, Name: "Administrator", Email: "admin@example.com"}
	if err := gdb.Create(&profile).Error; err != nil {
		return fmt.Errorf("failed to create admin profile: %w", err)
	}
	return nil
}
