package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths is the single source of truth for the directories the application
// touches. Relative entries from the configuration are resolved against one
// base directory so every process sees the same layout.
type Paths struct {
	BaseDir    string
	DataDir    string
	CacheDir   string
	ReportsDir string
	LogsDir    string
}

// NewPaths resolves the configured directories against baseDir. An empty
// baseDir means the current working directory.
func NewPaths(cfg *Config, baseDir string) (*Paths, error) {
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		baseDir = wd
	}

	resolve := func(dir string) string {
		if dir == "" || filepath.IsAbs(dir) {
			return dir
		}
		return filepath.Join(baseDir, dir)
	}

	return &Paths{
		BaseDir:    baseDir,
		DataDir:    resolve(cfg.Source.DataDir),
		CacheDir:   resolve(cfg.Cache.Dir),
		ReportsDir: resolve(cfg.Report.OutputDir),
		LogsDir:    resolve(filepath.Dir(cfg.Logging.FilePath)),
	}, nil
}

// GetDataPath returns the full path for a file in the data directory.
func (p *Paths) GetDataPath(filename string) string {
	return filepath.Join(p.DataDir, filename)
}

// GetCachePath returns the full path for a file in the cache directory.
func (p *Paths) GetCachePath(filename string) string {
	return filepath.Join(p.CacheDir, filename)
}

// GetReportPath returns the full path for a file in the reports directory.
func (p *Paths) GetReportPath(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

// EnsureDirectories creates every configured directory that is set.
func (p *Paths) EnsureDirectories() error {
	logger := slog.Default()
	for _, dir := range []string{p.DataDir, p.CacheDir, p.ReportsDir, p.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		logger.Debug("ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
