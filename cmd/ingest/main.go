package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"towerstats/models"
	"towerstats/pkg/ocr"
	"towerstats/pkg/runs"
	"towerstats/pkg/runstore"
	"towerstats/pkg/storage"
	"towerstats/process/ingest"
)

// Scans a directory of end-of-run screenshots, groups them into runs and stores
// the valid ones for a user; --watch keeps ingesting new files.
func main() {
	dir := flag.String("dir", "", "directory to scan for screenshots")
	username := flag.String("user", "", "username the runs belong to")
	watch := flag.Bool("watch", false, "watch the directory for new screenshots")
	workers := flag.Int("workers", 0, "batches processed concurrently (default NumCPU)")
	dryRun := flag.Bool("dry-run", false, "recognize and validate only; nothing is written")
	runType := flag.String("run-type", "", "run type for ingested runs (default: the user's preferred type)")
	moveTo := flag.String("move-to", "", "move processed screenshots to this directory")
	debounce := flag.Duration("debounce", ingest.DefaultDebounce, "quiet period before a watched batch is processed")
	lang := flag.String("lang", "eng", "tesseract language")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables")
	}
	if *workers <= 0 {
		*workers = runtime.NumCPU()
	}

	opts := ingest.Options{
		RunType:  runs.ParseRunType(*runType),
		Workers:  *workers,
		Debounce: *debounce,
		MoveTo:   *moveTo,
	}
	ocrOpts := ocr.Options{Workers: 2, Timeout: time.Minute, Preprocess: &ocr.DefaultPreprocess}
	rec := ocr.NewTesseract(*lang)

	var in *ingest.Ingester
	if *dryRun {
		if *dir == "" {
			logger.Fatal().Msg("--dir is required")
		}
		logger.Info().Str("dir", *dir).Msg("dry-run: no database interaction")
		in = ingest.New(runs.Default, rec, ocrOpts, nil, opts, logger)
	} else {
		if *username == "" {
			logger.Fatal().Msg("--user is required unless --dry-run is set")
		}
		gdb, err := runstore.Open(os.Getenv("DB_DSN"))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open database")
		}
		var user models.User
		if err := gdb.Where("username = ?", *username).First(&user).Error; err != nil {
			logger.Fatal().Err(err).Str("user", *username).Msg("user not found")
		}
		opts.UserID = user.ID
		var p models.Profile
		if err := gdb.Where("user_id = ?", user.ID).First(&p).Error; err == nil {
			if *runType == "" {
				opts.RunType = runs.ParseRunType(p.PreferredRunType)
			}
			if *dir == "" {
				*dir = p.ScreenDir
			}
		}
		if *dir == "" {
			logger.Fatal().Msg("--dir is required when the profile has no screen directory")
		}
		blobs, err := storage.NewDiskStore(envOr("UPLOAD_BASE", "uploads"), envOr("SCREEN_URL_PREFIX", "/screens"), storage.DefaultMaxBytes)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init screenshot storage")
		}
		store := runstore.New(gdb, logger)
		in = ingest.New(runs.Default, rec, ocrOpts, ingest.StoreSaver{Store: store, Blobs: blobs, Logger: logger}, opts, logger)

		known, err := store.ScreenFileNames(context.Background(), user.ID)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to preload stored screenshots")
		}
		in.MarkSeen(known...)
		logger.Info().Int("known", len(known)).Msg("preloaded stored screenshots")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcomes, err := in.Scan(ctx, *dir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", *dir).Msg("scan failed")
	}
	var ok, skipped int
	for _, o := range outcomes {
		if o.Err != nil {
			skipped++
		} else {
			ok++
		}
	}
	logger.Info().Int("runs", ok).Int("skipped", skipped).Msg("scan finished")

	if *watch {
		if err := in.Watch(ctx, *dir); err != nil {
			logger.Fatal().Err(err).Msg("watch failed")
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
