package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"towerstats/pkg/runstore"
	"towerstats/process/report"
)

func main() {
	username := flag.String("username", "admin", "username to report for")
	month := flag.String("month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
	list := flag.Bool("list", false, "list matching runs")
	flag.Parse()

	_ = godotenv.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "DB_DSN not set; export DB_DSN and retry")
		os.Exit(2)
	}
	gdb, err := runstore.Open(dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	if err := report.RunReport(context.Background(), gdb, runstore.New(gdb, logger), os.Stdout, *username, *month, *list); err != nil {
		logger.Fatal().Err(err).Msg("report failed")
	}
}
