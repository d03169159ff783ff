package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"gamepulse/internal/aggregate"
	"gamepulse/internal/concentration"
	"gamepulse/internal/config"
	"gamepulse/internal/identity"
	"gamepulse/internal/source"
)

// Workbook sheet names.
const (
	sheetSummary     = "Summary"
	sheetRankings    = "Rankings"
	sheetLorenz      = "Lorenz"
	sheetConflicts   = "Conflicts"
	sheetSuggestions = "Suggestions"
)

// WorkbookReport bundles everything a concentration workbook shows.
type WorkbookReport struct {
	GeneratedAt time.Time
	Metric      source.Metric
	Market      concentration.Result
	TopNs       []int
	Groups      []aggregate.Group
	Entities    []identity.Entity
	Conflicts   []identity.Conflict
	Suggestions []identity.Suggestion
}

// WorkbookExporter writes the full concentration report as an Excel workbook
type WorkbookExporter struct {
	paths *config.Paths
}

// NewWorkbookExporter creates a new workbook exporter
func NewWorkbookExporter(paths *config.Paths) *WorkbookExporter {
	return &WorkbookExporter{paths: paths}
}

// ExportWorkbook writes the report to outputPath. The Conflicts and
// Suggestions sheets appear only when there is something to review.
func (w *WorkbookExporter) ExportWorkbook(report WorkbookReport, outputPath string) error {
	fullPath := outputPath
	if !filepath.IsAbs(fullPath) {
		fullPath = w.paths.GetReportPath(outputPath)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := w.writeSummarySheet(f, report, bold); err != nil {
		return err
	}
	if err := w.writeRankingsSheet(f, report, bold); err != nil {
		return err
	}
	if err := w.writeLorenzSheet(f, report, bold); err != nil {
		return err
	}
	if len(report.Conflicts) > 0 {
		if err := w.writeConflictsSheet(f, report.Conflicts, bold); err != nil {
			return err
		}
	}
	if len(report.Suggestions) > 0 {
		if err := w.writeSuggestionsSheet(f, report.Suggestions, bold); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(fullPath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// writeSummarySheet renames the default sheet and fills it with the market
// block followed by the per-group table.
func (w *WorkbookExporter) writeSummarySheet(f *excelize.File, report WorkbookReport, bold int) error {
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("failed to rename summary sheet: %w", err)
	}

	rows := [][]any{
		{"Metric", string(report.Metric)},
		{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Entities", len(report.Entities)},
		{"Groups", len(report.Groups)},
	}
	if report.Market.Defined {
		rows = append(rows,
			[]any{"Market Total", report.Market.Total},
			[]any{"Market Gini", report.Market.Gini},
			[]any{"Market HHI", report.Market.HHI},
			[]any{"Market Band", report.Market.Band},
		)
	} else {
		rows = append(rows, []any{"Market Concentration", "undefined"})
	}
	for i, row := range rows {
		if err := setRow(f, sheetSummary, i+1, row); err != nil {
			return err
		}
	}

	ns := sortedTopNs(report.TopNs)
	headers := []any{"Group", "Members", "Ranked", "Total", "Gini", "HHI", "Band"}
	for _, n := range ns {
		headers = append(headers, fmt.Sprintf("Top%dShare", n))
	}

	headerRow := len(rows) + 2
	if err := setRow(f, sheetSummary, headerRow, headers); err != nil {
		return err
	}
	if err := styleRow(f, sheetSummary, headerRow, len(headers), bold); err != nil {
		return err
	}

	for i, group := range report.Groups {
		row := []any{group.Key, len(group.Members), len(group.Rankings), group.Total}
		if group.Concentration.Defined {
			row = append(row, group.Concentration.Gini, group.Concentration.HHI, group.Concentration.Band)
			for _, n := range ns {
				row = append(row, group.Concentration.TopShare[n])
			}
		} else {
			row = append(row, "", "", "")
			for range ns {
				row = append(row, "")
			}
		}
		if err := setRow(f, sheetSummary, headerRow+1+i, row); err != nil {
			return err
		}
	}

	return f.SetColWidth(sheetSummary, "A", "A", 22)
}

func (w *WorkbookExporter) writeRankingsSheet(f *excelize.File, report WorkbookReport, bold int) error {
	if _, err := f.NewSheet(sheetRankings); err != nil {
		return fmt.Errorf("failed to create rankings sheet: %w", err)
	}

	byID := entityIndex(report.Entities)
	headers := []any{"Group", "Rank", "DisplayName", "CanonicalID", "Value", "Share"}
	if err := setRow(f, sheetRankings, 1, headers); err != nil {
		return err
	}
	if err := styleRow(f, sheetRankings, 1, len(headers), bold); err != nil {
		return err
	}

	row := 2
	for _, group := range report.Groups {
		for _, ranking := range group.Rankings {
			values := []any{
				group.Key,
				ranking.Rank,
				byID[ranking.CanonicalID].DisplayName,
				ranking.CanonicalID,
				ranking.Value,
				ranking.Share,
			}
			if err := setRow(f, sheetRankings, row, values); err != nil {
				return err
			}
			row++
		}
	}

	if err := f.SetColWidth(sheetRankings, "C", "C", 32); err != nil {
		return err
	}
	return f.SetColWidth(sheetRankings, "D", "D", 38)
}

// writeLorenzSheet lists the curve points of the market and of every group
// whose concentration is defined, in long form for charting.
func (w *WorkbookExporter) writeLorenzSheet(f *excelize.File, report WorkbookReport, bold int) error {
	if _, err := f.NewSheet(sheetLorenz); err != nil {
		return fmt.Errorf("failed to create lorenz sheet: %w", err)
	}

	headers := []any{"Group", "PopFraction", "ValueFraction"}
	if err := setRow(f, sheetLorenz, 1, headers); err != nil {
		return err
	}
	if err := styleRow(f, sheetLorenz, 1, len(headers), bold); err != nil {
		return err
	}

	row := 2
	writeCurve := func(name string, points []concentration.Point) error {
		for _, p := range points {
			if err := setRow(f, sheetLorenz, row, []any{name, p.PopFraction, p.ValueFraction}); err != nil {
				return err
			}
			row++
		}
		return nil
	}

	if report.Market.Defined {
		if err := writeCurve("market", report.Market.Lorenz); err != nil {
			return err
		}
	}
	for _, group := range report.Groups {
		if !group.Concentration.Defined {
			continue
		}
		if err := writeCurve(group.Key, group.Concentration.Lorenz); err != nil {
			return err
		}
	}
	return nil
}

func (w *WorkbookExporter) writeConflictsSheet(f *excelize.File, conflicts []identity.Conflict, bold int) error {
	if _, err := f.NewSheet(sheetConflicts); err != nil {
		return fmt.Errorf("failed to create conflicts sheet: %w", err)
	}

	headers := []any{"Name", "ExistingID", "Field", "Existing", "Incoming", "Platform", "NativeID"}
	if err := setRow(f, sheetConflicts, 1, headers); err != nil {
		return err
	}
	if err := styleRow(f, sheetConflicts, 1, len(headers), bold); err != nil {
		return err
	}

	for i, c := range conflicts {
		values := []any{c.Name, c.ExistingID, c.Field, c.Existing, c.Incoming, string(c.Platform), c.NativeID}
		if err := setRow(f, sheetConflicts, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

func (w *WorkbookExporter) writeSuggestionsSheet(f *excelize.File, suggestions []identity.Suggestion, bold int) error {
	if _, err := f.NewSheet(sheetSuggestions); err != nil {
		return fmt.Errorf("failed to create suggestions sheet: %w", err)
	}

	headers := []any{"LeftID", "LeftName", "RightID", "RightName", "Similarity"}
	if err := setRow(f, sheetSuggestions, 1, headers); err != nil {
		return err
	}
	if err := styleRow(f, sheetSuggestions, 1, len(headers), bold); err != nil {
		return err
	}

	for i, s := range suggestions {
		values := []any{s.LeftID, s.LeftName, s.RightID, s.RightName, s.Similarity}
		if err := setRow(f, sheetSuggestions, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

// setRow writes values into one row starting at column A. Empty strings are
// skipped so an undefined figure leaves its cell absent.
func setRow(f *excelize.File, sheet string, row int, values []any) error {
	for i, v := range values {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("failed to address cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}

// styleRow applies a style across the first cols cells of a row
func styleRow(f *excelize.File, sheet string, row, cols, style int) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to address cell: %w", err)
	}
	end, err := excelize.CoordinatesToCellName(cols, row)
	if err != nil {
		return fmt.Errorf("failed to address cell: %w", err)
	}
	if err := f.SetCellStyle(sheet, start, end, style); err != nil {
		return fmt.Errorf("failed to style row %d: %w", row, err)
	}
	return nil
}
