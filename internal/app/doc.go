// Package app provides application initialization and lifecycle management
// for the GamePulse analytics server. It handles the orchestration of all
// major components including configuration loading, service initialization,
// and graceful shutdown procedures.
//
// # Architecture
//
// The app package follows a dependency injection pattern where all components
// are wired together at startup. This ensures loose coupling and testability.
//
// # Initialization Flow
//
// The typical initialization sequence:
//
//	1. Load configuration from defaults, YAML, and environment
//	2. Initialize logging and observability
//	3. Resolve and create the data, cache, report, and log directories
//	4. Build the data provider, fetch cache, and analytics services
//	5. Set up HTTP handlers and middleware
//	6. Configure and create the HTTP server
//
// # Usage
//
// The main entry point is typically:
//
//	app, err := app.NewApplication(configPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := app.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// The package handles SIGINT and SIGTERM signals to ensure:
//
//	- Active requests are completed
//	- Runtime metrics collection is stopped
//	- OpenTelemetry providers are flushed and shut down
//
// # Configuration
//
// The app package relies on the config package for all configuration
// needs. It supports both environment variables and configuration files.
//
// # Error Handling
//
// All initialization errors are returned to the caller for proper
// handling. The app does not call os.Exit() directly, allowing
// the main function to control the exit process.
package app
