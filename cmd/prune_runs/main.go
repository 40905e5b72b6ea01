package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"towerstats/pkg/runs"
	"towerstats/pkg/storage"
)

// Deletes a user's runs recorded before a date, together with their
// screenshot rows and blobs.
func main() {
	user := flag.String("user", "", "username whose runs are pruned")
	before := flag.String("before", "", "delete runs recorded before this date (YYYY-MM-DD)")
	runType := flag.String("run-type", "", "only prune runs of this type")
	dry := flag.Bool("dry-run", true, "Preview actions without modifying the DB")
	yes := flag.Bool("yes", false, "Confirm destructive action when dry-run=false")
	flag.Parse()

	_ = godotenv.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if *user == "" || *before == "" {
		logger.Fatal().Msg("--user and --before are required")
	}
	cutoff, err := time.Parse("2006-01-02", *before)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid --before, expected YYYY-MM-DD")
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		logger.Fatal().Msg("DB_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	var userID int64
	if err := db.QueryRow(`SELECT id FROM users WHERE username = $1`, *user).Scan(&userID); err != nil {
		logger.Fatal().Err(err).Str("user", *user).Msg("find user")
	}

	query := `SELECT id FROM runs WHERE user_id = $1 AND recorded < $2`
	args := []any{userID, cutoff}
	if *runType != "" {
		query += ` AND run_type = $3`
		args = append(args, string(runs.ParseRunType(*runType)))
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		logger.Fatal().Err(err).Msg("select runs")
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			logger.Fatal().Err(err).Msg("scan run id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		fmt.Println("no runs to prune")
		return
	}
	fmt.Printf("Planned: delete %d runs of %s recorded before %s\n", len(ids), *user, cutoff.Format("2006-01-02"))
	if *dry {
		fmt.Println("dry-run enabled; use --dry-run=false --yes to execute")
		return
	}
	if !*yes {
		fmt.Println("Destructive operation. Pass --yes to confirm execution. Aborting.")
		return
	}

	tx, err := db.Begin()
	if err != nil {
		logger.Fatal().Err(err).Msg("begin")
	}
	keyRows, err := tx.Query(`DELETE FROM run_screens WHERE run_id = ANY($1) RETURNING storage_key`, pq.Array(ids))
	if err != nil {
		_ = tx.Rollback()
		logger.Fatal().Err(err).Msg("delete screens")
	}
	var keys []string
	for keyRows.Next() {
		var k string
		if err := keyRows.Scan(&k); err != nil {
			_ = tx.Rollback()
			logger.Fatal().Err(err).Msg("scan storage key")
		}
		keys = append(keys, k)
	}
	keyRows.Close()
	res, err := tx.Exec(`DELETE FROM runs WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		_ = tx.Rollback()
		logger.Fatal().Err(err).Msg("delete runs")
	}
	if err := tx.Commit(); err != nil {
		logger.Fatal().Err(err).Msg("commit")
	}
	n, _ := res.RowsAffected()

	base := os.Getenv("UPLOAD_BASE")
	if base == "" {
		base = "uploads"
	}
	blobs, err := storage.NewDiskStore(base, "/screens", storage.DefaultMaxBytes)
	if err != nil {
		logger.Fatal().Err(err).Msg("open screenshot storage")
	}
	var blobErrs int
	for _, k := range keys {
		if err := blobs.Delete(k); err != nil {
			blobErrs++
			logger.Warn().Err(err).Str("key", k).Msg("failed to delete screenshot")
		}
	}
	fmt.Printf("prune done: runs deleted=%d, screenshots deleted=%d, failures=%d\n", n, len(keys)-blobErrs, blobErrs)
}
