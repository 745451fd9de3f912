package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/quizrun-api/internal/api"
	"github.com/phrazzld/quizrun-api/internal/config"
	"github.com/phrazzld/quizrun-api/internal/consensus"
	"github.com/phrazzld/quizrun-api/internal/platform/postgres"
	"github.com/phrazzld/quizrun-api/internal/provider"
	"github.com/phrazzld/quizrun-api/internal/queue"
	"github.com/phrazzld/quizrun-api/internal/service/auth"
	"github.com/phrazzld/quizrun-api/internal/task"
	"github.com/phrazzld/quizrun-api/internal/worker"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jwtService auth.JWTService
	verifier   auth.IdentityVerifier

	tasks     api.TaskService
	runner    api.TaskRunner
	providers api.ProviderStatus

	reaper   *task.Reaper
	delivery *delivery
}

// newApplication creates a new application instance with all dependencies initialized.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenLifetime())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	taskStore := postgres.NewPostgresTaskStore(db, logger)
	questionStore := postgres.NewPostgresQuestionStore(db, logger)
	sink := postgres.NewBatchSink(db, logger)

	providers, err := buildProviders(ctx, cfg.Providers, logger)
	if err != nil {
		return nil, err
	}
	registry := provider.NewRegistry(logger, cfg.Providers.StatusTTL, providers...)
	app.providers = registry

	app.delivery, err = setupDelivery(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.verifier = app.delivery.verifier

	dispatcher, err := queue.NewDispatcher(app.delivery.queue, taskStore, dispatcherConfig(cfg.Queue), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	service, err := task.NewService(taskStore, dispatcher, logger, task.WithBatchSink(sink, cfg.Task.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}
	app.tasks = service
	app.reaper = service.Reaper()

	app.runner = worker.NewRunner(taskStore, worker.Pipelines(worker.Deps{
		Providers: registry,
		Questions: questionStore,
		Consensus: consensus.NewValidator(logger, cfg.Providers.CallTimeout),
		Sink:      sink,
		BatchSize: cfg.Task.BatchSize,
		Logger:    logger,
	}), logger)

	logger.Info("Application initialized successfully",
		slog.Int("providers", len(providers)),
		slog.String("queue_mode", cfg.Queue.Mode))
	return app, nil
}

// Run starts the reaper and the HTTP server and blocks until ctx is done.
func (app *application) Run(ctx context.Context) error {
	app.reaper.Start(app.config.Task.ReapInterval)
	defer app.cleanup()

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.reaper != nil {
		app.reaper.Stop()
	}
	if app.delivery != nil && app.delivery.close != nil {
		if err := app.delivery.close(); err != nil {
			app.logger.Error("Error closing delivery queue", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}
	app.logger.Info("Application shutdown completed")
}
