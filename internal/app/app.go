package app

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"gamepulse/internal/config"
	apierrors "gamepulse/internal/errors"
	"gamepulse/internal/fetchcache"
	"gamepulse/internal/infrastructure"
	customMiddleware "gamepulse/internal/middleware"
	"gamepulse/internal/pipeline"
	"gamepulse/internal/services"
	"gamepulse/internal/source"
	handlers "gamepulse/internal/transport/http"
)

const (
	VERSION = config.AppVersion
	AppName = "GamePulse - Revenue Concentration Analytics"
)

var (
	// BuildTime can be overridden at link time via
	// -ldflags "-X gamepulse/internal/app.BuildTime=...".
	BuildTime = time.Now().UTC().Format(time.RFC3339)
	// BuildID is a unique identifier for this build
	BuildID = generateBuildID()
)

func generateBuildID() string {
	// Deterministic for a given version and day
	h := sha256.New()
	h.Write([]byte(VERSION))
	h.Write([]byte(time.Now().Format("2006-01-02")))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	ReportService *services.ReportService
	HealthService *services.HealthService
	Logger        *slog.Logger
	Services      *ServiceContainer
	OTelProviders *infrastructure.OTelProviders
	SystemMetrics *infrastructure.SystemMetricsCollector

	otelMiddleware *customMiddleware.OTelMiddleware
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Provider source.Provider
	Cache    *fetchcache.Cache
	Report   *services.ReportService
	Health   *services.HealthService
}

// NewApplication creates a new application instance with dependency
// injection. configPath selects the YAML configuration file; empty probes
// the conventional locations and falls back to built-in defaults.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", VERSION),
		slog.String("build_id", BuildID))

	paths, err := config.NewPaths(cfg, "")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	logger.Info("Ensuring required directories exist")
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	otelCfg := infrastructure.DefaultOTelConfig()
	if cfg.Telemetry.ServiceName != "" {
		otelCfg.ServiceName = cfg.Telemetry.ServiceName
	}
	if !cfg.Telemetry.Enabled {
		otelCfg.EnableTracing = false
		otelCfg.EnableMetrics = false
	}

	otelProviders, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	// The middleware owns the metric instruments; the report pipeline
	// records onto the same instances.
	if otelProviders.Tracer != nil && otelProviders.Meter != nil {
		otelMW, err := customMiddleware.NewOTelMiddleware(otelProviders)
		if err != nil {
			return nil, fmt.Errorf("failed to create telemetry middleware: %w", err)
		}
		app.otelMiddleware = otelMW
	}

	// Initialize services in order
	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Setup router
	app.setupRouter()

	// Create HTTP server
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	provider, err := source.NewCSVProvider(a.Paths.DataDir, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize data provider: %w", err)
	}

	var store fetchcache.Store
	if a.Paths.CacheDir != "" {
		store, err = fetchcache.NewFileStore(a.Paths.CacheDir, a.Logger)
	} else {
		store, err = fetchcache.NewMemoryStore(a.Config.Cache.MemoryCapacity)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize cache store: %w", err)
	}

	loc, err := a.Config.Cache.Location()
	if err != nil {
		return err
	}

	cache, err := fetchcache.New(store, nil, fetchcache.Config{
		Location: loc,
		MaxAge:   a.Config.Cache.MaxAge,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize fetch cache: %w", err)
	}

	groupBy, err := services.GroupKeyFunc(a.Config.Report.GroupBy)
	if err != nil {
		return fmt.Errorf("invalid report grouping: %w", err)
	}

	base := pipeline.Config{
		Concurrency:         a.Config.Source.Concurrency,
		FetchTimeout:        a.Config.Source.FetchTimeout,
		RatePerSecond:       a.Config.Source.RatePerSecond,
		RateBurst:           a.Config.Source.RateBurst,
		MinorUnit:           a.Config.Series.MinorUnit,
		MatchPublisher:      a.Config.Identity.MatchPublisher,
		SuggestionThreshold: a.Config.Identity.SuggestionThreshold,
		GroupBy:             groupBy,
		TopN:                a.Config.Report.TopN,
	}

	var metrics *infrastructure.BusinessMetrics
	if a.otelMiddleware != nil {
		metrics = a.otelMiddleware.Metrics()
	}

	reportService := services.NewReportService(provider, cache, base, a.Logger, metrics)
	a.ReportService = reportService

	healthService := services.NewHealthServiceWithBuildInfo(
		VERSION,
		BuildTime,
		BuildID,
		a.Paths,
		reportService,
		a.Logger,
	)
	a.HealthService = healthService

	if a.OTelProviders.Meter != nil {
		collector, err := infrastructure.NewSystemMetricsCollector(a.OTelProviders.Meter, 30*time.Second)
		if err != nil {
			return fmt.Errorf("failed to initialize system metrics: %w", err)
		}
		a.SystemMetrics = collector
	}

	a.Services = &ServiceContainer{
		Provider: provider,
		Cache:    cache,
		Report:   reportService,
		Health:   healthService,
	}

	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	// Register the fallback handlers before any sub-router is mounted so
	// they propagate down the tree.
	errorHandler := apierrors.NewErrorHandler(a.Logger, false)
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	// Route group with the full middleware stack.
	// Ordering: RequestID → RealIP → OTel → Logger → Recoverer → Timeout
	r.Group(func(r chi.Router) {
		if a.otelMiddleware != nil {
			r.Use(a.otelMiddleware.Handler)
			r.Use(customMiddleware.BusinessMetricsMiddleware(a.otelMiddleware.Metrics()))
		}

		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		// NOTE: Timeout middleware is applied per route group below, report
		// runs need a longer window than the read endpoints
		r.Use(customMiddleware.DefaultSecureHeaders().Handler)

		r.Use(customMiddleware.CORS(a.getCORSConfig()))

		if a.Config.Server.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Server.RateLimit.RPS,
				a.Config.Server.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	// Prometheus metrics endpoint stays outside the middleware group so
	// scrapes are never rate limited or traced.
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)

	// Probe endpoints live outside the API prefix so orchestrators can
	// reach them without versioning.
	r.Route("/healthz", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/", healthHandler.HealthCheck)
		r.Get("/ready", healthHandler.ReadinessCheck)
		r.Get("/live", healthHandler.LivenessCheck)
		r.Get("/detailed", healthHandler.DetailedHealth)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		// Read endpoints with the standard timeout
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))

			r.Get("/version", healthHandler.Version)
			r.Get("/stats", healthHandler.SystemStats)

			marketHandler := handlers.NewMarketHandler(a.ReportService, a.Logger)
			marketHandler.RegisterRoutes(r)
		})

		// Report runs fetch upstream data and can outlast the standard
		// read window, so they get the write timeout instead.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.WriteTimeout, a.Logger))

			errorHandler := apierrors.NewErrorHandler(a.Logger, false)
			reportHandler := handlers.NewReportHandler(a.ReportService, a.Logger, errorHandler)
			r.Mount("/reports", reportHandler.Routes())
		})
	})
}

// getCORSConfig returns CORS configuration based on environment
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	cfg := customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Request-ID",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
		},
		MaxAge: 300,
		Logger: a.Logger,
	}

	if isDevelopmentMode() {
		// Allow the dashboard dev server next to the configured origins
		cfg.AllowedOrigins = append(cfg.AllowedOrigins,
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		)
		a.Logger.Info("CORS configured for development mode",
			slog.Any("allowed_origins", cfg.AllowedOrigins))
	}

	return cfg
}

// isDevelopmentMode detects if we're running in development mode
func isDevelopmentMode() bool {
	switch os.Getenv("GO_ENV") {
	case "development", "dev":
		return true
	}
	return os.Getenv("ENVIRONMENT") == "development"
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start starts the application
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", VERSION),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	a.Logger.InfoContext(ctx, "Application paths",
		slog.String("base_dir", a.Paths.BaseDir),
		slog.String("data_dir", a.Paths.DataDir),
		slog.String("cache_dir", a.Paths.CacheDir),
		slog.String("reports_dir", a.Paths.ReportsDir),
		slog.String("logs_dir", a.Paths.LogsDir))

	// Start background collection
	if a.SystemMetrics != nil {
		go a.SystemMetrics.Start(ctx)
	}

	// Start server
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			// Signal shutdown through context instead of os.Exit
			cancel()
		}
	}()

	// Perform health check on critical paths
	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))

	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	// Stop server
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	// Stop background collection
	if a.SystemMetrics != nil {
		a.SystemMetrics.Stop()
	}

	// Shutdown OpenTelemetry providers
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start application
	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	// Wait for interrupt or server failure
	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
	}

	// Graceful shutdown
	return a.Stop(context.Background())
}

// performStartupHealthCheck performs health checks on critical paths and resources
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	var warnings []string

	// Check critical directories are writable
	directories := map[string]string{
		"Data":    a.Paths.DataDir,
		"Cache":   a.Paths.CacheDir,
		"Reports": a.Paths.ReportsDir,
		"Logs":    a.Paths.LogsDir,
	}

	for name, dir := range directories {
		if dir == "" {
			continue
		}
		// Try to create a test file to verify write access
		testFile := filepath.Join(dir, ".write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s directory not writable: %s", name, dir))
		} else {
			os.Remove(testFile)
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("startup health check warnings: %s", strings.Join(warnings, "; "))
	}

	a.Logger.InfoContext(ctx, "Startup health check passed")
	return nil
}
