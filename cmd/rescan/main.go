package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"towerstats/models"
	"towerstats/pkg/ocr"
	"towerstats/pkg/runs"
	"towerstats/pkg/runstore"
	"towerstats/pkg/storage"
	"towerstats/process/rescan"
)

func main() {
	username := flag.String("user", "", "owner of the runs to rescan")
	runID := flag.Uint("run", 0, "run id to rescan (default: all runs of the user)")
	dry := flag.Bool("dry-run", true, "report differences only; pass --dry-run=false to update runs")
	lang := flag.String("lang", "eng", "tesseract language")
	flag.Parse()

	_ = godotenv.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	if *username == "" {
		fmt.Fprintln(os.Stderr, "--user is required")
		os.Exit(2)
	}
	if os.Getenv("DB_DSN") == "" {
		fmt.Fprintln(os.Stderr, "DB_DSN not set; export and retry")
		os.Exit(2)
	}
	gdb, err := runstore.Open(os.Getenv("DB_DSN"))
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	var user models.User
	if err := gdb.Where("username = ?", *username).First(&user).Error; err != nil {
		logger.Fatal().Err(err).Str("user", *username).Msg("user not found")
	}
	base := os.Getenv("UPLOAD_BASE")
	if base == "" {
		base = "uploads"
	}
	blobs, err := storage.NewDiskStore(base, "/screens", storage.DefaultMaxBytes)
	if err != nil {
		logger.Fatal().Err(err).Msg("open screenshot storage")
	}

	r := &rescan.Rescanner{
		Registry:   runs.Default,
		Runs:       runstore.New(gdb, logger),
		Blobs:      blobs,
		Recognizer: ocr.NewTesseract(*lang),
		OCR:        ocr.Options{Timeout: time.Minute, Preprocess: &ocr.DefaultPreprocess},
		Logger:     logger,
	}
	results, err := r.Run(context.Background(), user.ID, *runID, !*dry)
	if err != nil {
		logger.Fatal().Err(err).Msg("rescan failed")
	}
	for _, res := range results {
		if res.Err != nil {
			fmt.Printf("run %d: error: %v\n", res.RunID, res.Err)
			continue
		}
		for _, c := range res.Changes {
			fmt.Printf("run %d: %s.%s %q -> %q\n", res.RunID, c.Section, c.Key, c.Old, c.New)
		}
		switch {
		case res.Applied:
			fmt.Printf("run %d: updated (%d changes)\n", res.RunID, len(res.Changes))
		case *dry && len(res.Changes) > 0:
			fmt.Printf("DRY: run %d would change %d fields\n", res.RunID, len(res.Changes))
		}
	}
}
