// Package report prints a user's farming summary for one month.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"towerstats/models"
	"towerstats/pkg/runs"
	"towerstats/pkg/runstore"
)

// MonthRange returns the UTC bounds [start, end) of month given as YYYY-MM.
func MonthRange(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// RunReport writes the farming report of username for month to w.
func RunReport(ctx context.Context, gdb *gorm.DB, store *runstore.Store, w io.Writer, username, month string, list bool) error {
	var user models.User
	if err := gdb.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return fmt.Errorf("user not found: %w", err)
	}
	start, end, err := MonthRange(month)
	if err != nil {
		return err
	}
	// List bounds are inclusive; drop a run recorded exactly at the next month.
	last := end.Add(-time.Nanosecond)
	items, err := store.List(ctx, user.ID, runstore.ListOptions{RunType: string(runs.RunTypeFarming), From: &start, To: &last})
	if err != nil {
		return err
	}
	Render(w, user.Username, month, items, list)
	return nil
}

// Render prints the summary of farming runs items, and the runs themselves when list is set.
func Render(w io.Writer, username, month string, items []models.Run, list bool) {
	headers := make([]runs.Header, len(items))
	for i, r := range items {
		headers[i] = r.Header()
	}
	s := runs.Summarize(headers)

	fmt.Fprintf(w, "Farming report for user=%s month=%s (UTC):\n", username, month)
	fmt.Fprintf(w, "  runs=%d\n", s.Runs)
	for _, b := range []struct {
		name string
		best *runs.Best
	}{
		{"coins/hour", s.BestCoins},
		{"cells/hour", s.BestCells},
		{"reroll shards/hour", s.BestRerollShards},
	} {
		if b.best == nil {
			fmt.Fprintf(w, "  best %s: -\n", b.name)
			continue
		}
		fmt.Fprintf(w, "  best %s: %s (run %d, tier %s, wave %.0f, %s)\n",
			b.name, runs.Abbreviate(b.best.Rate, 2), items[b.best.Index].ID,
			tierText(b.best.Header.Tier), b.best.Header.Wave, b.best.Header.Recorded.Format("2006-01-02 15:04"))
	}
	for _, tr := range s.ByTier {
		fmt.Fprintf(w, "  tier %s: runs=%d avg coins/hour=%s\n", tierText(tr.Tier), tr.Runs, runs.Abbreviate(tr.CoinsPerHour, 2))
	}

	if list {
		for _, r := range items {
			coins := "-"
			if r.CoinsPerHour != nil {
				coins = runs.Abbreviate(*r.CoinsPerHour, 2)
			}
			fmt.Fprintf(w, "%d|%s|%s|%.0f|%s|%s\n", r.ID, r.Recorded.Format(time.RFC3339), tierText(r.Tier), r.Wave, runs.FormatDuration(r.RealTime), coins)
		}
	}
}

func tierText(t float64) string {
	if t != float64(int64(t)) {
		return fmt.Sprintf("%d+", int64(t))
	}
	return fmt.Sprintf("%d", int64(t))
}
