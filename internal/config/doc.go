// Package config provides centralized configuration management for the
// GamePulse analytics core. It handles loading configuration from multiple
// sources, validation, and a type-safe API for accessing configuration
// values throughout the application.
//
// # Configuration Sources
//
// Configuration is resolved from three layers, later layers winning:
//
//	1. Built-in defaults (Default())
//	2. Optional YAML file (config.yaml, configs/config.yaml, or --config)
//	3. Environment variables (highest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern GAMEPULSE_* for namespacing:
//
//	GAMEPULSE_SERVER_PORT=8080
//	GAMEPULSE_SOURCE_DATA_DIR=data
//	GAMEPULSE_SOURCE_CONCURRENCY=8
//	GAMEPULSE_SERIES_MINOR_UNIT=true
//	GAMEPULSE_LOGGING_LEVEL=debug
//
// # Validation
//
// All configuration is validated at load time with declarative constraints:
// ports in range, timeouts positive, report formats and grouping dimensions
// drawn from closed sets, the cache timezone resolvable. An invalid
// configuration is a fail-fast error from Load.
//
// # Path Management
//
// The Paths type resolves every configured directory against one base
// directory and creates them on startup:
//
//	paths, err := config.NewPaths(cfg, "")
//	if err := paths.EnsureDirectories(); err != nil { ... }
//
// # Usage
//
// Load configuration at application startup:
//
//	cfg, err := config.Load(configPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
