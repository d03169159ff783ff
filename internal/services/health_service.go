package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gamepulse/internal/config"
	"gamepulse/internal/fetchcache"
)

// HealthService answers the health, readiness, and liveness probes.
type HealthService struct {
	version   string
	buildTime string
	buildID   string
	paths     *config.Paths
	report    *ReportService
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health.
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// SystemStats represents system statistics.
type SystemStats struct {
	UptimeSeconds  float64          `json:"uptime_seconds"`
	TotalFiles     int              `json:"total_files"`
	TotalSizeBytes int64            `json:"total_size_bytes"`
	RunActive      bool             `json:"run_active"`
	Cache          fetchcache.Stats `json:"cache"`
	GoVersion      string           `json:"go_version"`
	OS             string           `json:"os"`
	Arch           string           `json:"arch"`
}

// NewHealthService creates a health service over the report service and the
// resolved directory layout.
func NewHealthService(version string, paths *config.Paths, report *ReportService, logger *slog.Logger) *HealthService {
	return NewHealthServiceWithBuildInfo(version, "", "", paths, report, logger)
}

// NewHealthServiceWithBuildInfo creates a health service carrying build
// metadata stamped at link time.
func NewHealthServiceWithBuildInfo(version, buildTime, buildID string, paths *config.Paths, report *ReportService, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("health service initialized",
		slog.String("version", version),
		slog.String("build_time", buildTime),
		slog.String("build_id", buildID))

	return &HealthService{
		version:   version,
		buildTime: buildTime,
		buildID:   buildID,
		paths:     paths,
		report:    report,
		startTime: time.Now(),
		logger:    logger,
	}
}

// HealthCheck returns overall health status.
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	hs.logger.DebugContext(ctx, "performing health check",
		slog.String("version", hs.version),
		slog.String("uptime", time.Since(hs.startTime).String()))

	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// ReadinessCheck returns readiness status with per-service detail.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services:  make(map[string]interface{}),
	}

	status.Services["report"] = hs.checkReportHealth()
	status.Services["cache"] = hs.checkCacheHealth()
	status.Services["data"] = hs.checkDataHealth()

	allReady := true
	for _, service := range status.Services {
		if sh, ok := service.(ServiceHealth); ok && sh.Status != "ready" {
			allReady = false
			break
		}
	}

	if !allReady {
		status.Status = "not_ready"
	}
	return status
}

// LivenessCheck returns liveness status.
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version and build information.
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":      hs.version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}

	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	if hs.buildID != "" {
		result["build_id"] = hs.buildID
	}
	return result
}

// SystemStats returns system statistics.
func (hs *HealthService) SystemStats(ctx context.Context) (SystemStats, error) {
	var totalFiles int
	var totalSize int64

	if hs.paths != nil && hs.paths.DataDir != "" {
		filepath.Walk(hs.paths.DataDir, func(path string, info os.FileInfo, err error) error {
			if err == nil && !info.IsDir() {
				totalFiles++
				totalSize += info.Size()
			}
			return nil
		})
	}

	stats := SystemStats{
		UptimeSeconds:  time.Since(hs.startTime).Seconds(),
		TotalFiles:     totalFiles,
		TotalSizeBytes: totalSize,
		GoVersion:      runtime.Version(),
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
	}
	if hs.report != nil {
		stats.RunActive = hs.report.Running()
		stats.Cache = hs.report.CacheStats()
	}
	return stats, nil
}

// checkReportHealth checks the report service. A run in progress is still
// ready; only a missing service is not.
func (hs *HealthService) checkReportHealth() ServiceHealth {
	if hs.report == nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: "report service not initialized",
		}
	}

	message := "report service is healthy"
	if record, err := hs.report.Latest(); err == nil {
		message = fmt.Sprintf("latest run finished %s ago", time.Since(record.FinishedAt).Round(time.Second))
	}
	return ServiceHealth{
		Status:  "ready",
		Message: message,
		Uptime:  time.Since(hs.startTime).String(),
	}
}

// checkCacheHealth checks the fetch cache.
func (hs *HealthService) checkCacheHealth() ServiceHealth {
	if hs.report == nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: "cache not initialized",
		}
	}

	stats := hs.report.CacheStats()
	return ServiceHealth{
		Status: "ready",
		Message: fmt.Sprintf("%d hits, %d misses, %d stale serves",
			stats.Hits, stats.Misses, stats.StaleServes),
	}
}

// checkDataHealth checks that the data directory exists and is writable.
func (hs *HealthService) checkDataHealth() ServiceHealth {
	if hs.paths == nil || hs.paths.DataDir == "" {
		return ServiceHealth{
			Status:  "not_ready",
			Message: "data directory not configured",
		}
	}

	dataDir := hs.paths.DataDir
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("data directory not found: %s", dataDir),
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("cannot write to data directory: %v", err),
		}
	}

	return ServiceHealth{
		Status:  "ready",
		Message: "data directory is accessible",
	}
}

// GetDetailedHealth returns comprehensive health information.
func (hs *HealthService) GetDetailedHealth(ctx context.Context) map[string]interface{} {
	stats, _ := hs.SystemStats(ctx)

	return map[string]interface{}{
		"health":    hs.HealthCheck(ctx),
		"readiness": hs.ReadinessCheck(ctx),
		"liveness":  hs.LivenessCheck(ctx),
		"stats":     stats,
	}
}
