// Package main is the entry point for the chirp server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main" package.
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (internal/config, from environment variables)
// 2. Create the logger
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/service, etc.).
//
// WHY cmd/server/?
// The cmd/ directory is a Go convention for executable entry points.
// This project has two: cmd/server (the HTTP API) and cmd/migrate (schema tool).
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/chirp/internal/config"
	"github.com/sakif/chirp/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Fails fast when JWT_SECRET is missing or a value doesn't parse.
	// There's no logger yet, so this one error goes to stderr directly.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Log levels (from least to most severe): Debug → Info → Warn → Error.
	// LOG_LEVEL picks the floor; "debug" also shows every stored image.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel.Level(),
	}))

	// === 3. DATA DIRECTORY ===
	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	// The media store creates its own tree in server.New.
	if cfg.DB.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.DB.Path)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
