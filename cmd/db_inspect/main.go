package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

// Prints foreign keys, row counts of the application tables and the indexes
// on runs, which is enough to check that a migration landed.
func main() {
	_ = godotenv.Load()
	if err := RunInspect(os.Getenv("DB_DSN")); err != nil {
		fmt.Fprintf(os.Stderr, "inspect failed: %v\n", err)
		os.Exit(1)
	}
}

var appTables = []string{"roles", "users", "profiles", "refresh_tokens", "runs", "run_screens"}

// RunInspect connects to Postgres using dsn and prints the schema summary.
func RunInspect(dsn string) error {
	if dsn == "" {
		return fmt.Errorf("dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT
		  con.oid::regclass::text AS constraint_name,
		  rel.relname AS table_name,
		  array_agg(att.attname ORDER BY u.attnum) AS src_columns,
		  confrel.relname AS referenced_table,
		  array_agg(att2.attname ORDER BY u.confkey) AS ref_columns,
		  pg_get_constraintdef(con.oid) AS definition
		FROM pg_constraint con
		JOIN pg_class rel ON rel.oid = con.conrelid
		JOIN pg_class confrel ON confrel.oid = con.confrelid
		JOIN unnest(con.conkey) WITH ORDINALITY AS u(attnum, ord) ON true
		JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = u.attnum
		LEFT JOIN unnest(con.confkey) WITH ORDINALITY AS v(confkey, ord2) ON v.ord2 = u.ord
		LEFT JOIN pg_attribute att2 ON att2.attrelid = con.confrelid AND att2.attnum = v.confkey
		WHERE con.contype = 'f'
		GROUP BY con.oid, rel.relname, confrel.relname
		ORDER BY rel.relname, constraint_name;
	`)
	if err != nil {
		return fmt.Errorf("query constraints: %w", err)
	}
	defer rows.Close()

	fmt.Println("Foreign keys:")
	for rows.Next() {
		var cname, table, reftable, def string
		var srcCols, refCols sql.NullString
		if err := rows.Scan(&cname, &table, &srcCols, &reftable, &refCols, &def); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		fmt.Printf("- %s: %s(%s) -> %s(%s)\n    def: %s\n", cname, table, srcCols.String, reftable, refCols.String, def)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows err: %w", err)
	}

	fmt.Println("Row counts:")
	for _, t := range appTables {
		var exists bool
		if err := db.QueryRow(`SELECT to_regclass($1) IS NOT NULL`, "public."+t).Scan(&exists); err != nil {
			return fmt.Errorf("check %s: %w", t, err)
		}
		if !exists {
			fmt.Printf("- %s: missing\n", t)
			continue
		}
		var n int64
		// t comes from appTables, never from input
		if err := db.QueryRow(`SELECT count(*) FROM "` + t + `"`).Scan(&n); err != nil {
			return fmt.Errorf("count %s: %w", t, err)
		}
		fmt.Printf("- %s: %d\n", t, n)
	}

	idx, err := db.Query(`SELECT indexname, indexdef FROM pg_indexes WHERE schemaname = 'public' AND tablename = 'runs' ORDER BY indexname`)
	if err != nil {
		return fmt.Errorf("query indexes: %w", err)
	}
	defer idx.Close()
	fmt.Println("Indexes on runs:")
	for idx.Next() {
		var name, def string
		if err := idx.Scan(&name, &def); err != nil {
			return fmt.Errorf("scan index: %w", err)
		}
		fmt.Printf("- %s: %s\n", name, def)
	}
	return idx.Err()
}
