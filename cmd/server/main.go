// Package main implements the entry point for the quiz task server, which
// accepts long-running question tasks, hands them to a delivery queue and
// runs them when the queue calls the worker endpoint back.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/quizrun-api/internal/config"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
)

func main() {
	migrate := flag.String("migrate", "", "run a migration command (up, down, status, version, redo, reset) and exit")
	verbose := flag.Bool("verbose", false, "log every migration step")
	flag.Parse()

	if err := run(*migrate, *verbose); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run(migrateCmd string, verbose bool) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := setupAppDatabase(ctx, cfg, l)
	if err != nil {
		return err
	}

	if migrateCmd != "" {
		defer func() { _ = db.Close() }()
		return runMigrations(ctx, db, migrateCmd, verbose, l)
	}

	app, err := newApplication(ctx, cfg, l, db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

// loadAppConfig loads the application configuration from environment variables or config file.
func loadAppConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"queue_mode", cfg.Queue.Mode)
	return cfg, nil
}
