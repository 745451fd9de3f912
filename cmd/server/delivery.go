package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/quizrun-api/internal/config"
	"github.com/phrazzld/quizrun-api/internal/platform/cloudtasks"
	"github.com/phrazzld/quizrun-api/internal/queue"
	"github.com/phrazzld/quizrun-api/internal/service/auth"
)

// delivery bundles the queue tasks are scheduled on with the verifier that
// authenticates its callbacks.
type delivery struct {
	queue    queue.Queue
	verifier auth.IdentityVerifier
	close    func() error
}

// setupDelivery selects the in-process queue with HMAC identity tokens in
// local mode, or Cloud Tasks with Google OIDC tokens in cloudtasks mode.
func setupDelivery(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*delivery, error) {
	switch cfg.Queue.Mode {
	case config.QueueModeCloudTasks:
		q, closeFn, err := cloudtasks.Dial(ctx, cloudtasks.Config{
			ProjectID: cfg.Queue.ProjectID,
			Location:  cfg.Queue.Location,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Cloud Tasks: %w", err)
		}
		return &delivery{
			queue:    q,
			verifier: auth.NewGoogleIdentity(cfg.Queue.WorkerURL, cfg.Queue.ServiceAccount),
			close:    closeFn,
		}, nil

	case config.QueueModeLocal:
		identity, err := auth.NewLocalIdentity(cfg.Auth.JWTSecret, cfg.Queue.WorkerURL, cfg.Queue.ServiceAccount)
		if err != nil {
			return nil, fmt.Errorf("failed to create local identity: %w", err)
		}
		local := queue.NewLocalQueue(nil, identity, logger)
		return &delivery{
			queue:    local,
			verifier: identity,
			close: func() error {
				local.Close()
				return nil
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown queue mode %q", cfg.Queue.Mode)
	}
}

func dispatcherConfig(cfg config.QueueConfig) queue.DispatcherConfig {
	return queue.DispatcherConfig{
		Prefix:         cfg.Prefix,
		WorkerURL:      cfg.WorkerURL,
		ServiceAccount: cfg.ServiceAccount,
		Delay:          cfg.DispatchDelay,
		Limits: queue.Limits{
			MaxDispatchesPerSecond: cfg.MaxDispatchesPerSecond,
			MaxConcurrent:          cfg.MaxConcurrent,
			MaxAttempts:            cfg.MaxAttempts,
			MaxRetryDuration:       cfg.MaxRetryDuration,
			MinBackoff:             cfg.MinBackoff,
			MaxBackoff:             cfg.MaxBackoff,
		},
	}
}
