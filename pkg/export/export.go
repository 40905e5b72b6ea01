// Package export renders a user's runs as an XLSX workbook.
package export

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"towerstats/models"
	"towerstats/pkg/runs"
)

const (
	runsSheet  = "Runs"
	statsSheet = "Stats"
)

var runHeaders = []string{
	"Recorded",
	"Run Type",
	"Tier",
	"Wave",
	"Real Time",
	"Coins/Hour",
	"Cells/Hour",
	"Reroll Shards/Hour",
	"Coins Earned",
	"Killed By",
}

// RunsXLSX writes a "Runs" sheet with one header row per run and a "Stats"
// sheet with every statistic of the schema, one column per field.
func RunsXLSX(reg *runs.Registry, items []models.Run) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", runsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(statsSheet); err != nil {
		return nil, err
	}

	for i, h := range runHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(runsSheet, cell, h)
	}
	for row, r := range items {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row+2)
			_ = f.SetCellValue(runsSheet, cell, v)
		}
		write(1, r.Recorded.UTC().Format("2006-01-02 15:04"))
		write(2, string(r.RunType))
		write(3, r.Values.Text(runs.SectionBattleReport, runs.KeyTier))
		write(4, r.Wave)
		write(5, runs.FormatDuration(r.RealTime))
		write(6, rate(r.CoinsPerHour))
		write(7, rate(r.CellsPerHour))
		write(8, rate(r.RerollShardsPerHour))
		write(9, r.Values.Text(runs.SectionBattleReport, runs.KeyCoinsEarned))
		write(10, r.Values.Text(runs.SectionBattleReport, runs.KeyKilledBy))
	}

	col := 1
	for _, s := range reg.Sections() {
		keys, err := reg.Keys(s)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			cfg, _ := reg.Config(s, k)
			cell, _ := excelize.CoordinatesToCellName(col, 1)
			_ = f.SetCellValue(statsSheet, cell, cfg.Label)
			for row, r := range items {
				cell, _ := excelize.CoordinatesToCellName(col, row+2)
				v := r.Values.Value(s, k)
				if !cfg.Numeric() || math.IsNaN(v) || math.IsInf(v, 0) {
					_ = f.SetCellValue(statsSheet, cell, r.Values.Text(s, k))
					continue
				}
				_ = f.SetCellValue(statsSheet, cell, v)
			}
			col++
		}
	}

	_ = f.SetColWidth(runsSheet, "A", "A", 18) // recorded
	_ = f.SetColWidth(runsSheet, "B", "D", 12)
	_ = f.SetColWidth(runsSheet, "E", "E", 16) // duration
	_ = f.SetColWidth(runsSheet, "F", "J", 18)
	_ = f.SetPanes(runsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// rate renders a per-hour value abbreviated, or "" when absent.
func rate(v *float64) string {
	if v == nil {
		return ""
	}
	return runs.Abbreviate(*v, 2)
}
