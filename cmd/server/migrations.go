package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/quizrun-api/migrations"
	"github.com/pressly/goose/v3"
)

// slogGooseLogger adapts the goose logger interface to use slog
type slogGooseLogger struct {
	logger *slog.Logger
}

// Printf implements the goose.Logger Printf method by forwarding messages to slog.Info
func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Fatalf implements the goose.Logger Fatalf method. It does not exit; the
// error is returned to main.
func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

var migrationCommands = map[string]bool{
	"up": true, "down": true, "status": true, "version": true, "redo": true, "reset": true,
}

// runMigrations applies a goose command using the migrations embedded in
// the binary.
func runMigrations(ctx context.Context, db *sql.DB, command string, verbose bool, logger *slog.Logger) error {
	if !migrationCommands[command] {
		return fmt.Errorf("unknown migration command %q", command)
	}

	log := logger.With(slog.String("component", "migrations"))
	goose.SetBaseFS(migrations.FS)
	goose.SetTableName(migrations.TableName)
	goose.SetLogger(&slogGooseLogger{logger: log})
	goose.SetVerbose(verbose)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	log.Info("running migrations", slog.String("command", command))
	if err := goose.RunContext(ctx, command, db, "."); err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	log.Info("migrations finished", slog.String("command", command))
	return nil
}
