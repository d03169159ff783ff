package config

import "time"

// Application constants for the GamePulse analytics core.
const (
	// Application Info
	AppName    = "gamepulse"
	AppVersion = "1.2.0"

	// File Paths (relative to the base directory)
	DefaultDataDir    = "data"
	DefaultCacheDir   = "data/cache"
	DefaultReportsDir = "data/reports"
	DefaultLogsDir    = "logs"

	// Fetch Settings
	DefaultFetchTimeout       = 30 * time.Second
	DefaultFetchConcurrency   = 4
	DefaultFetchRatePerSecond = 5.0
	DefaultFetchRateBurst     = 5

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Report Files
	SummaryCSVName        = "concentration_summary.csv"
	RankingsCSVName       = "rankings.csv"
	WorkbookName          = "concentration_report.xlsx"
	ConflictsReportName   = "identity_conflicts.csv"
	SuggestionsReportName = "identity_suggestions.csv"
	DeltasCSVName         = "deltas.csv"

	// API Endpoints (internal)
	APIBasePath           = "/api/v1"
	ReportsEndpoint       = "/api/v1/reports"
	ConcentrationEndpoint = "/api/v1/reports/concentration"
	GroupsEndpoint        = "/api/v1/groups"
	EntitiesEndpoint      = "/api/v1/entities"
	CacheStatsEndpoint    = "/api/v1/cache/stats"
	HealthEndpoint        = "/healthz"
	MetricsEndpoint       = "/metrics"
)
