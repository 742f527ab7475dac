package dataset

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"media-digest-go/internal/aggregator"
)

const (
	resultsSheet = "Results"
	statsSheet   = "Stats"
	excerptLen   = 500
)

var resultsHeader = []any{"Row", "ID", "Source", "Status", "Stage", "Transcript File", "Summary File", "Summary", "Error", "Seconds"}

// WriteReport saves per-item outcomes and aggregate stats as an xlsx workbook.
func WriteReport(path string, outcomes []aggregator.Outcome, stats aggregator.Stats) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &resultsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, o := range outcomes {
		status := "succeeded"
		if !o.Succeeded() {
			status = "failed"
		}
		row := []any{
			o.Row, o.ID, o.Source, status, string(o.Stage),
			o.Result.Files.Transcript, o.Result.Files.Summary, excerpt(o.Result.Summary),
			o.Error, o.Duration.Seconds(),
		}
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(resultsSheet, cellRef, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.NewSheet(statsSheet); err != nil {
		return fmt.Errorf("add stats sheet: %w", err)
	}
	statRows := [][]any{
		{"Total", stats.Total},
		{"Succeeded", stats.Succeeded},
		{"Failed", stats.Failed},
		{"Success Rate", stats.SuccessRate},
		{"Avg Seconds", stats.AvgDuration.Seconds()},
	}
	for _, stage := range stats.FailureStages() {
		statRows = append(statRows, []any{"Failed at " + stage, stats.FailuresByStage[stage]})
	}
	for i, r := range statRows {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(statsSheet, cellRef, &r); err != nil {
			return fmt.Errorf("write stats: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= excerptLen {
		return s
	}
	return string(r[:excerptLen]) + "…"
}
