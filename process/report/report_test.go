package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"towerstats/models"
	"towerstats/pkg/runs"
)

func TestMonthRange(t *testing.T) {
	start, end, err := MonthRange("2024-12")
	if err != nil {
		t.Fatalf("MonthRange: %v", err)
	}
	if !start.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected range %v - %v", start, end)
	}
	if _, _, err := MonthRange("12/2024"); err == nil {
		t.Fatalf("expected error for bad month")
	}
}

func TestRender(t *testing.T) {
	rate := func(v float64) *float64 { return &v }
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	items := []models.Run{
		{ID: 5, Recorded: t0, RunType: runs.RunTypeFarming, Tier: 10, Wave: 4000, RealTime: 3600, CoinsPerHour: rate(12_500_000)},
		{ID: 6, Recorded: t0.Add(time.Hour), RunType: runs.RunTypeFarming, Tier: 11, Wave: 2500, RealTime: 5400},
	}
	var buf bytes.Buffer
	Render(&buf, "runner", "2024-05", items, true)
	out := buf.String()
	for _, want := range []string{
		"user=runner month=2024-05",
		"runs=2",
		"best coins/hour: 12.50M (run 5, tier 10, wave 4000, 2024-05-01 10:00)",
		"best cells/hour: -",
		"tier 10: runs=1 avg coins/hour=12.50M",
		"6|2024-05-01T11:00:00Z|11|2500|1h 30m 0s|-",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "tier 11: runs=") {
		t.Fatalf("tiers without rates should have no average:\n%s", out)
	}
}

func TestTierText(t *testing.T) {
	if tierText(14) != "14" || tierText(14.5) != "14+" {
		t.Fatalf("unexpected tier text %q %q", tierText(14), tierText(14.5))
	}
}
