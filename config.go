package main

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"towerstats/pkg/runs"
	"towerstats/pkg/storage"
)

// Config is read from the environment once at startup.
type Config struct {
	DBDSN           string
	AutoMigrate     bool
	JWTSecret       string
	ServerPort      string
	UploadBase      string
	ScreenURLPrefix string
	MaxUploadBytes  int64
	ScreenMaxBytes  int64
	OCRLanguage     string
	OCRWorkers      int
	OCRTimeout      time.Duration
	DamageShare     runs.DamageShareOptions
	LogLevel        string
	CORSOrigins     []string
}

const devJWTSecret = "dev-insecure-secret-change"

func loadConfig(logger zerolog.Logger) *Config {
	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}
	env := envReader{logger: logger}
	cfg := &Config{
		DBDSN:           getEnv("DB_DSN", ""),
		AutoMigrate:     env.bool("DB_AUTO_MIGRATE", true),
		JWTSecret:       getEnv("JWT_SECRET", devJWTSecret),
		ServerPort:      getEnv("SERVER_PORT", "8081"),
		UploadBase:      getEnv("UPLOAD_BASE", "uploads"),
		ScreenURLPrefix: getEnv("SCREEN_URL_PREFIX", "/screens"),
		MaxUploadBytes:  env.int64("MAX_UPLOAD_BYTES", 5*1024*1024),
		ScreenMaxBytes:  env.int64("SCREEN_MAX_BYTES", storage.DefaultMaxBytes),
		OCRLanguage:     getEnv("OCR_LANGUAGE", "eng"),
		OCRWorkers:      int(env.int64("OCR_WORKERS", int64(runtime.NumCPU()))),
		OCRTimeout:      env.duration("OCR_TIMEOUT", 60*time.Second),
		DamageShare: runs.DamageShareOptions{
			Limit: int(env.int64("DAMAGE_SHARE_LIMIT", int64(runs.DefaultDamageShareOptions.Limit))),
			Floor: env.float("DAMAGE_SHARE_FLOOR", runs.DefaultDamageShareOptions.Floor),
		},
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
	}
	if cfg.JWTSecret == devJWTSecret {
		logger.Warn().Msg("JWT_SECRET not set, using development secret")
	}
	logger.Info().
		Str("server_port", cfg.ServerPort).
		Str("upload_base", cfg.UploadBase).
		Bool("auto_migrate", cfg.AutoMigrate).
		Int("ocr_workers", cfg.OCRWorkers).
		Dur("ocr_timeout", cfg.OCRTimeout).
		Str("log_level", cfg.LogLevel).
		Msg("configuration loaded")
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envReader parses typed variables, logging and falling back on bad input.
type envReader struct {
	logger zerolog.Logger
}

func (e envReader) int64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		e.logger.Warn().Str("key", key).Str("value", v).Int64("default", fallback).Msg("invalid value, using default")
		return fallback
	}
	return n
}

func (e envReader) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		e.logger.Warn().Str("key", key).Str("value", v).Float64("default", fallback).Msg("invalid value, using default")
		return fallback
	}
	return f
}

func (e envReader) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.logger.Warn().Str("key", key).Str("value", v).Dur("default", fallback).Msg("invalid value, using default")
		return fallback
	}
	return d
}

func (e envReader) bool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "":
		return fallback
	case "false", "0", "no":
		return false
	default:
		return true
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
