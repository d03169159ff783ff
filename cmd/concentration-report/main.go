package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gamepulse/internal/aggregate"
	"gamepulse/internal/config"
	"gamepulse/internal/exporter"
	"gamepulse/internal/fetchcache"
	"gamepulse/internal/infrastructure"
	"gamepulse/internal/pipeline"
	"gamepulse/internal/services"
	"gamepulse/internal/source"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	dataDir := flag.String("data", "", "directory with replay CSV exports (defaults to the configured data dir)")
	outDir := flag.String("out", "", "output directory for report files (defaults to the configured reports dir)")
	entities := flag.String("entities", "", "comma separated entity ids to analyze (required)")
	from := flag.String("from", "", "period start, YYYY-MM-DD (required)")
	to := flag.String("to", "", "period end, YYYY-MM-DD (required)")
	priorFrom := flag.String("prior-from", "", "prior period start, enables period-over-period deltas")
	priorTo := flag.String("prior-to", "", "prior period end")
	metric := flag.String("metric", string(source.MetricRevenue), "metric to measure: revenue, downloads, dau, or mau")
	granularity := flag.String("granularity", string(source.GranularityDaily), "upstream interval: daily, weekly, or monthly")
	country := flag.String("country", "", "optional two letter country filter")
	groupBy := flag.String("group-by", "", "grouping dimension: category, publisher, or all (defaults to the configured one)")
	topN := flag.String("top", "", "comma separated leader cutoffs, e.g. 1,3,5 (defaults to the configured ones)")
	format := flag.String("format", "", "report files to write: csv, xlsx, or both (defaults to the configured one)")
	flag.Parse()

	if *entities == "" || *from == "" || *to == "" {
		fmt.Fprintln(os.Stderr, "the -entities, -from, and -to flags are required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	paths, err := config.NewPaths(cfg, "")
	if err != nil {
		logger.Error("Failed to resolve paths", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *dataDir != "" {
		paths.DataDir = *dataDir
	}
	if *outDir != "" {
		paths.ReportsDir = *outDir
	}
	if err := paths.EnsureDirectories(); err != nil {
		logger.Error("Failed to create required directories", slog.String("error", err.Error()))
		os.Exit(1)
	}

	groupName := cfg.Report.GroupBy
	if *groupBy != "" {
		groupName = *groupBy
	}
	groupKey, err := services.GroupKeyFunc(groupName)
	if err != nil {
		logger.Error("Invalid grouping dimension", slog.String("error", err.Error()))
		os.Exit(1)
	}

	topNs := cfg.Report.TopN
	if *topN != "" {
		topNs, err = parseTopNs(*topN)
		if err != nil {
			logger.Error("Invalid -top flag", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	reportFormat := cfg.Report.Format
	if *format != "" {
		reportFormat = *format
	}
	switch reportFormat {
	case "csv", "xlsx", "both":
	default:
		logger.Error("Invalid report format", slog.String("format", reportFormat))
		os.Exit(1)
	}

	currentRange, err := parseRange(*from, *to)
	if err != nil {
		logger.Error("Invalid period", slog.String("error", err.Error()))
		os.Exit(1)
	}

	provider, err := source.NewCSVProvider(paths.DataDir, logger)
	if err != nil {
		logger.Error("Failed to open data directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cache, err := buildCache(cfg, paths, logger)
	if err != nil {
		logger.Error("Failed to initialize fetch cache", slog.String("error", err.Error()))
		os.Exit(1)
	}

	pipelineCfg := pipeline.Config{
		Concurrency:         cfg.Source.Concurrency,
		FetchTimeout:        cfg.Source.FetchTimeout,
		RatePerSecond:       cfg.Source.RatePerSecond,
		RateBurst:           cfg.Source.RateBurst,
		MinorUnit:           cfg.Series.MinorUnit,
		MatchPublisher:      cfg.Identity.MatchPublisher,
		SuggestionThreshold: cfg.Identity.SuggestionThreshold,
		Metric:              source.Metric(*metric),
		GroupBy:             groupKey,
		TopN:                topNs,
	}

	p, err := pipeline.New(provider, cache, pipelineCfg, logger, nil)
	if err != nil {
		logger.Error("Failed to build pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ids := splitList(*entities)
	spec := source.QuerySpec{
		EntityIDs:   ids,
		Metric:      source.Metric(*metric),
		Granularity: source.Granularity(*granularity),
		Range:       currentRange,
		Country:     strings.ToUpper(*country),
	}

	ctx := context.Background()

	logger.Info("Running concentration report",
		slog.String("period", fmt.Sprintf("%s..%s", *from, *to)),
		slog.Int("entities", len(ids)),
		slog.String("metric", *metric),
		slog.String("group_by", groupName))

	current, err := p.Run(ctx, []source.QuerySpec{spec})
	if err != nil {
		logger.Error("Concentration run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logFailures(logger, current)

	var deltas []aggregate.GroupDelta
	hasPrior := *priorFrom != "" || *priorTo != ""
	if hasPrior {
		priorRange, err := parseRange(*priorFrom, *priorTo)
		if err != nil {
			logger.Error("Invalid prior period", slog.String("error", err.Error()))
			os.Exit(1)
		}

		priorSpec := spec
		priorSpec.Range = priorRange

		logger.Info("Running prior period for deltas",
			slog.String("period", fmt.Sprintf("%s..%s", *priorFrom, *priorTo)))

		prior, err := p.Run(ctx, []source.QuerySpec{priorSpec})
		if err != nil {
			logger.Error("Prior period run failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logFailures(logger, prior)

		deltas, err = pipeline.CompareRuns(prior, current)
		if err != nil {
			logger.Error("Failed to compare runs", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	exporter.RenderSummaryTable(os.Stdout, current.Market, current.Groups, topNs)
	for _, delta := range deltas {
		fmt.Println()
		exporter.RenderDeltaTable(os.Stdout, delta)
	}

	written, err := writeReports(paths, reportFormat, current, deltas, hasPrior, topNs, source.Metric(*metric))
	if err != nil {
		logger.Error("Failed to write report files", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Concentration report generated",
		slog.Int("rows", current.RowCount),
		slog.Int("groups", len(current.Groups)),
		slog.Any("files", written))
}

// buildCache selects the persistent store when a cache directory is
// configured, so repeated CLI invocations reuse same-day fetches.
func buildCache(cfg *config.Config, paths *config.Paths, logger *slog.Logger) (*fetchcache.Cache, error) {
	var (
		store fetchcache.Store
		err   error
	)
	if paths.CacheDir != "" {
		store, err = fetchcache.NewFileStore(paths.CacheDir, logger)
	} else {
		store, err = fetchcache.NewMemoryStore(cfg.Cache.MemoryCapacity)
	}
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Cache.Location()
	if err != nil {
		return nil, err
	}

	return fetchcache.New(store, nil, fetchcache.Config{
		Location: loc,
		MaxAge:   cfg.Cache.MaxAge,
	}, logger)
}

func writeReports(paths *config.Paths, format string, result *pipeline.RunResult, deltas []aggregate.GroupDelta, hasPrior bool, topNs []int, metric source.Metric) ([]string, error) {
	var written []string

	if format == "csv" || format == "both" {
		reports := exporter.NewReportExporter(paths)

		if err := reports.ExportGroupSummary(result.Groups, topNs, config.SummaryCSVName); err != nil {
			return written, fmt.Errorf("group summary: %w", err)
		}
		written = append(written, config.SummaryCSVName)

		if err := reports.ExportRankings(result.Groups, result.Entities, config.RankingsCSVName); err != nil {
			return written, fmt.Errorf("rankings: %w", err)
		}
		written = append(written, config.RankingsCSVName)

		if err := reports.ExportGroupFiles(result.Groups, result.Entities, "groups"); err != nil {
			return written, fmt.Errorf("group files: %w", err)
		}
		written = append(written, "groups/")

		if len(result.Conflicts) > 0 {
			if err := reports.ExportConflicts(result.Conflicts, config.ConflictsReportName); err != nil {
				return written, fmt.Errorf("conflicts: %w", err)
			}
			written = append(written, config.ConflictsReportName)
		}

		if len(result.Suggestions) > 0 {
			if err := reports.ExportSuggestions(result.Suggestions, config.SuggestionsReportName); err != nil {
				return written, fmt.Errorf("suggestions: %w", err)
			}
			written = append(written, config.SuggestionsReportName)
		}

		if hasPrior {
			if err := reports.ExportDeltas(deltas, config.DeltasCSVName); err != nil {
				return written, fmt.Errorf("deltas: %w", err)
			}
			written = append(written, config.DeltasCSVName)
		}
	}

	if format == "xlsx" || format == "both" {
		workbook := exporter.NewWorkbookExporter(paths)

		report := exporter.WorkbookReport{
			GeneratedAt: time.Now(),
			Metric:      metric,
			Market:      result.Market,
			TopNs:       topNs,
			Groups:      result.Groups,
			Entities:    result.Entities,
			Conflicts:   result.Conflicts,
			Suggestions: result.Suggestions,
		}
		if err := workbook.ExportWorkbook(report, config.WorkbookName); err != nil {
			return written, fmt.Errorf("workbook: %w", err)
		}
		written = append(written, config.WorkbookName)
	}

	return written, nil
}

// logFailures surfaces soft fetch failures. The run itself still counts, a
// partial market is reported as such rather than silently shrunk.
func logFailures(logger *slog.Logger, result *pipeline.RunResult) {
	if result.Failures == nil || !result.Failures.HasErrors() {
		return
	}
	for _, failure := range result.Failures.Errors {
		logger.Warn("Fetch failure during run",
			slog.String("stage", failure.Stage),
			slog.String("error", failure.Error()))
	}
}

func parseRange(from, to string) (source.DateRange, error) {
	if from == "" || to == "" {
		return source.DateRange{}, fmt.Errorf("both period endpoints are required")
	}
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return source.DateRange{}, fmt.Errorf("parse %q: %w", from, err)
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		return source.DateRange{}, fmt.Errorf("parse %q: %w", to, err)
	}
	r := source.DateRange{From: start, To: end}
	if !r.IsValid() {
		return source.DateRange{}, fmt.Errorf("period %s..%s is inverted", from, to)
	}
	return r, nil
}

func parseTopNs(raw string) ([]int, error) {
	parts := splitList(raw)
	if len(parts) == 0 {
		return nil, fmt.Errorf("no cutoffs given")
	}
	ns := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("cutoff %d must be positive", n)
		}
		ns = append(ns, n)
	}
	return ns, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
