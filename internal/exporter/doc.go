// Package exporter renders pipeline results as CSV files, Excel workbooks,
// and console tables.
//
// This package contains three main components:
//
// CSVWriter: Core CSV writing functionality with support for headers,
// streaming, and UTF-8 BOM for Excel compatibility.
//
// ReportExporter: Generates the concentration CSV set: group summaries,
// combined and per-group rankings, identity conflicts, merge suggestions,
// and period-over-period deltas.
//
// WorkbookExporter: Writes the whole report as one Excel workbook with
// Summary, Rankings, and Lorenz sheets, plus Conflicts and Suggestions
// sheets when there is something to review.
//
// Example usage:
//
//	reports := exporter.NewReportExporter(paths)
//	err := reports.ExportGroupSummary(result.Groups, cfg.Report.TopN, "concentration_summary.csv")
//
//	workbook := exporter.NewWorkbookExporter(paths)
//	err = workbook.ExportWorkbook(report, "concentration_report.xlsx")
package exporter
