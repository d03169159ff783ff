package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gamepulse/internal/identity"
)

// csvColumns is the expected header of replay files:
// native_id,platform,unified_id,display_name,category,publisher,country,date,metric,value,is_estimated
const csvColumnCount = 11

// CSVProvider replays previously exported rows from disk. It serves offline
// runs and tests in place of a live analytics adapter.
type CSVProvider struct {
	dir    string
	logger *slog.Logger
}

// NewCSVProvider creates a provider over a directory of CSV exports. A nil
// logger falls back to slog.Default().
func NewCSVProvider(dir string, logger *slog.Logger) (*CSVProvider, error) {
	if dir == "" {
		return nil, fmt.Errorf("csv provider: directory is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("csv provider: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVProvider{dir: dir, logger: logger}, nil
}

// Fetch loads every CSV file under the directory, keeps the rows matching
// the spec, and returns them sorted by date then native id. Unreadable files
// and malformed records are skipped with a warning so one bad export cannot
// sink a whole replay.
func (p *CSVProvider) Fetch(ctx context.Context, spec QuerySpec) ([]RawRow, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	files, err := findCSVFiles(p.dir)
	if err != nil {
		return nil, fmt.Errorf("find CSV files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CSV files found in %s", p.dir)
	}

	wanted := make(map[string]struct{}, len(spec.EntityIDs))
	for _, id := range spec.EntityIDs {
		wanted[id] = struct{}{}
	}

	var rows []RawRow
	for _, file := range files {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during CSV load: %w", ctx.Err())
		default:
		}

		fileRows, err := loadRows(file)
		if err != nil {
			p.logger.WarnContext(ctx, "failed to load CSV file",
				slog.String("file", file),
				slog.String("error", err.Error()))
			continue
		}

		for _, row := range fileRows {
			if !p.matches(row, spec, wanted) {
				continue
			}
			rows = append(rows, row)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].NativeID < rows[j].NativeID
	})

	p.logger.DebugContext(ctx, "CSV replay complete",
		slog.Int("files", len(files)),
		slog.Int("rows", len(rows)),
		slog.String("metric", string(spec.Metric)))
	return rows, nil
}

func (p *CSVProvider) matches(row RawRow, spec QuerySpec, wanted map[string]struct{}) bool {
	if row.Metric != spec.Metric {
		return false
	}
	if !spec.Range.Contains(row.Date) {
		return false
	}
	if spec.Country != "" && row.Country != "" && !strings.EqualFold(spec.Country, row.Country) {
		return false
	}
	if len(wanted) == 0 {
		return true
	}
	if _, ok := wanted[row.NativeID]; ok {
		return true
	}
	if row.UnifiedID != "" {
		if _, ok := wanted[row.UnifiedID]; ok {
			return true
		}
	}
	return false
}

// loadRows parses one replay file. Malformed records are logged and skipped.
func loadRows(path string) ([]RawRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}

	dataStart := 0
	if isHeaderRow(records[0]) {
		dataStart = 1
	}

	var rows []RawRow
	for i := dataStart; i < len(records); i++ {
		row, err := parseRowRecord(records[i], i+1)
		if err != nil {
			slog.Warn("failed to parse CSV record",
				slog.String("file", filepath.Base(path)),
				slog.Int("line", i+1),
				slog.String("error", err.Error()))
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRowRecord(record []string, lineNum int) (RawRow, error) {
	if len(record) < csvColumnCount {
		return RawRow{}, fmt.Errorf("insufficient columns (line %d): expected %d, got %d", lineNum, csvColumnCount, len(record))
	}

	nativeID := strings.TrimSpace(record[0])
	if nativeID == "" {
		return RawRow{}, fmt.Errorf("empty native_id (line %d)", lineNum)
	}
	platform := identity.Platform(strings.ToLower(strings.TrimSpace(record[1])))
	if platform == "" {
		return RawRow{}, fmt.Errorf("empty platform (line %d)", lineNum)
	}

	date, err := parseDate(strings.TrimSpace(record[7]))
	if err != nil {
		return RawRow{}, fmt.Errorf("parse date (line %d): %w", lineNum, err)
	}

	metric := Metric(strings.ToLower(strings.TrimSpace(record[8])))
	if !metric.IsValid() {
		return RawRow{}, fmt.Errorf("unknown metric %q (line %d)", record[8], lineNum)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(record[9]), 64)
	if err != nil {
		return RawRow{}, fmt.Errorf("parse value (line %d): %w", lineNum, err)
	}

	isEstimated := false
	if raw := strings.TrimSpace(record[10]); raw != "" {
		isEstimated, err = strconv.ParseBool(raw)
		if err != nil {
			return RawRow{}, fmt.Errorf("parse is_estimated (line %d): %w", lineNum, err)
		}
	}

	return RawRow{
		NativeID:    nativeID,
		Platform:    platform,
		UnifiedID:   strings.TrimSpace(record[2]),
		DisplayName: strings.TrimSpace(record[3]),
		Category:    strings.TrimSpace(record[4]),
		Publisher:   strings.TrimSpace(record[5]),
		Country:     strings.ToUpper(strings.TrimSpace(record[6])),
		Date:        date,
		Metric:      metric,
		Value:       value,
		IsEstimated: isEstimated,
	}, nil
}

// parseDate accepts the formats seen across source exports.
func parseDate(dateStr string) (time.Time, error) {
	dateFormats := []string{
		"2006-01-02",
		"2006/01/02",
		"2006-01-02 15:04:05",
		time.RFC3339,
	}
	for _, format := range dateFormats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}

func isHeaderRow(record []string) bool {
	if len(record) == 0 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(record[0]), "native_id")
}

func findCSVFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ".csv") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
