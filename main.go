package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"towerstats/pkg/ocr"
	"towerstats/pkg/runstore"
	"towerstats/pkg/storage"
)

var (
	jwtSecret  []byte // loaded from env JWT_SECRET (fallback to dev default)
	cfg        *Config
	logger     zerolog.Logger
	store      *runstore.Store
	blobs      *storage.DiskStore
	recognizer ocr.Recognizer
)

func main() {
	logger = newLogger(os.Getenv("LOG_LEVEL"))
	cfg = loadConfig(logger)
	logger = newLogger(cfg.LogLevel)
	jwtSecret = []byte(cfg.JWTSecret)

	// `towerstats migrate` runs AutoMigrate and seeding then exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB()
		logger.Info().Msg("migration and seeding completed")
		return
	}

	initDB()
	initServices()

	r := gin.New()
	r.Use(gin.Recovery(), requestID(logger))
	setupRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           withCORS(r, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
}

// initServices wires the run store, blob storage and OCR engine.
func initServices() {
	var err error
	store = runstore.New(db, logger)
	blobs, err = storage.NewDiskStore(cfg.UploadBase, cfg.ScreenURLPrefix, cfg.ScreenMaxBytes)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.UploadBase).Msg("failed to init screenshot storage")
	}
	recognizer = ocr.NewTesseract(cfg.OCRLanguage)
}

func withCORS(h http.Handler, origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, "Content-Disposition"},
		AllowCredentials: false,
	}).Handler(h)
}
