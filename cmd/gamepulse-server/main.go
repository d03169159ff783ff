package main

import (
	"flag"
	"log/slog"
	"os"

	"gamepulse/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file (defaults to ./config.yaml)")
	flag.Parse()

	// Create application instance
	application, err := app.NewApplication(*configPath)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Run until interrupted
	if err := application.Run(); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
