package exporter

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gamepulse/internal/aggregate"
	"gamepulse/internal/config"
	"gamepulse/internal/identity"
)

// ReportExporter handles concentration report generation
type ReportExporter struct {
	csvWriter *CSVWriter
}

// NewReportExporter creates a new concentration report exporter
func NewReportExporter(paths *config.Paths) *ReportExporter {
	return &ReportExporter{
		csvWriter: NewCSVWriter(paths),
	}
}

// ExportGroupSummary writes one row per group with its total and
// concentration figures. Groups whose concentration is undefined keep the
// metric columns empty; an empty cell is not a zero.
func (r *ReportExporter) ExportGroupSummary(groups []aggregate.Group, topNs []int, outputPath string) error {
	ns := sortedTopNs(topNs)

	headers := []string{"Group", "Members", "Ranked", "Total", "Gini", "HHI", "Band"}
	for _, n := range ns {
		headers = append(headers, fmt.Sprintf("Top%dShare", n))
	}

	var csvRecords [][]string
	for _, group := range groups {
		row := []string{
			group.Key,
			formatInt(len(group.Members)),
			formatInt(len(group.Rankings)),
			formatFloat(group.Total),
		}
		if group.Concentration.Defined {
			row = append(row,
				formatRatio(group.Concentration.Gini),
				formatRatio(group.Concentration.HHI),
				group.Concentration.Band)
			for _, n := range ns {
				row = append(row, formatRatio(group.Concentration.TopShare[n]))
			}
		} else {
			row = append(row, "", "", "")
			for range ns {
				row = append(row, "")
			}
		}
		csvRecords = append(csvRecords, row)
	}

	return r.csvWriter.WriteSimpleCSV(outputPath, headers, csvRecords)
}

// ExportRankings streams every group's ranking table into one CSV, ordered
// by group key and rank.
func (r *ReportExporter) ExportRankings(groups []aggregate.Group, entities []identity.Entity, outputPath string) error {
	byID := entityIndex(entities)

	headers := []string{"Group", "Rank", "CanonicalID", "DisplayName", "Category", "Publisher", "Value", "Share"}
	stream, err := r.csvWriter.CreateStreamWriter(outputPath, headers)
	if err != nil {
		return fmt.Errorf("failed to create rankings stream: %w", err)
	}

	for _, group := range groups {
		for _, ranking := range group.Rankings {
			e := byID[ranking.CanonicalID]
			record := []string{
				group.Key,
				formatInt(ranking.Rank),
				ranking.CanonicalID,
				e.DisplayName,
				e.Category,
				e.Publisher,
				formatFloat(ranking.Value),
				formatRatio(ranking.Share),
			}
			if err := stream.WriteRecord(record); err != nil {
				stream.Close()
				return fmt.Errorf("failed to write ranking for %s: %w", group.Key, err)
			}
		}
	}

	return stream.Close()
}

// ExportGroupFiles generates an individual rankings CSV for each group
func (r *ReportExporter) ExportGroupFiles(groups []aggregate.Group, entities []identity.Entity, outputDir string) error {
	byID := entityIndex(entities)
	headers := []string{"Rank", "CanonicalID", "DisplayName", "Value", "Share"}

	for _, group := range groups {
		filename := fmt.Sprintf("%s_rankings.csv", safeFileName(group.Key))
		filePath := filepath.Join(outputDir, filename)

		var csvRecords [][]string
		for _, ranking := range group.Rankings {
			csvRecords = append(csvRecords, []string{
				formatInt(ranking.Rank),
				ranking.CanonicalID,
				byID[ranking.CanonicalID].DisplayName,
				formatFloat(ranking.Value),
				formatRatio(ranking.Share),
			})
		}

		if err := r.csvWriter.WriteSimpleCSV(filePath, headers, csvRecords); err != nil {
			return fmt.Errorf("failed to write group file for %s: %w", group.Key, err)
		}
	}

	return nil
}

// ExportConflicts writes the identity conflicts recorded during resolution
func (r *ReportExporter) ExportConflicts(conflicts []identity.Conflict, outputPath string) error {
	headers := []string{"Name", "ExistingID", "Field", "Existing", "Incoming", "Platform", "NativeID"}

	var csvRecords [][]string
	for _, c := range conflicts {
		csvRecords = append(csvRecords, []string{
			c.Name,
			c.ExistingID,
			c.Field,
			c.Existing,
			c.Incoming,
			string(c.Platform),
			c.NativeID,
		})
	}

	return r.csvWriter.WriteSimpleCSV(outputPath, headers, csvRecords)
}

// ExportSuggestions writes near-duplicate name pairs for manual review
func (r *ReportExporter) ExportSuggestions(suggestions []identity.Suggestion, outputPath string) error {
	headers := []string{"LeftID", "LeftName", "RightID", "RightName", "Similarity"}

	var csvRecords [][]string
	for _, s := range suggestions {
		csvRecords = append(csvRecords, []string{
			s.LeftID,
			s.LeftName,
			s.RightID,
			s.RightName,
			formatRatio(s.Similarity),
		})
	}

	return r.csvWriter.WriteSimpleCSV(outputPath, headers, csvRecords)
}

// ExportDeltas writes period-over-period movement, one row per entity. The
// Status column separates entities that moved, entered, or departed; rank
// and value columns that do not apply to a status stay empty.
func (r *ReportExporter) ExportDeltas(deltas []aggregate.GroupDelta, outputPath string) error {
	headers := []string{"Group", "CanonicalID", "Status", "CurrentRank", "PriorRank", "RankChange", "ValueChange", "ValueChangePct"}

	var csvRecords [][]string
	for _, delta := range deltas {
		for _, ed := range delta.Entities {
			record := []string{delta.Key, ed.CanonicalID}
			if ed.NewEntrant {
				record = append(record, "entered", formatInt(ed.CurrentRank), "", "",
					formatFloat(ed.Value.Absolute), "")
			} else {
				pct := ""
				if ed.Value.Defined {
					pct = formatFloat(ed.Value.Percent)
				}
				record = append(record, "moved", formatInt(ed.CurrentRank), formatInt(ed.PriorRank),
					formatInt(ed.RankChange), formatFloat(ed.Value.Absolute), pct)
			}
			csvRecords = append(csvRecords, record)
		}
		for _, id := range delta.Departed {
			csvRecords = append(csvRecords, []string{delta.Key, id, "departed", "", "", "", "", ""})
		}
	}

	return r.csvWriter.WriteSimpleCSV(outputPath, headers, csvRecords)
}

// entityIndex maps canonical ids to their entities for display lookups
func entityIndex(entities []identity.Entity) map[string]identity.Entity {
	byID := make(map[string]identity.Entity, len(entities))
	for _, e := range entities {
		byID[e.CanonicalID] = e
	}
	return byID
}

// sortedTopNs returns the cutoffs sorted ascending without duplicates so
// column order is stable across runs.
func sortedTopNs(topNs []int) []int {
	seen := make(map[int]bool, len(topNs))
	ns := make([]int, 0, len(topNs))
	for _, n := range topNs {
		if n > 0 && !seen[n] {
			seen[n] = true
			ns = append(ns, n)
		}
	}
	sort.Ints(ns)
	return ns
}

// safeFileName replaces characters that are unsafe in file names. Group keys
// come from source metadata and can contain separators or spaces.
func safeFileName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		" ", "_",
		":", "_",
	)
	out := replacer.Replace(name)
	if out == "" {
		return "unnamed"
	}
	return out
}
