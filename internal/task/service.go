package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/batch"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/store"
)

// Service creates tasks and applies operator controls to them.
type Service struct {
	store      store.TaskStore
	dispatcher Dispatcher
	sink       batch.Sink
	batchSize  int
	reaper     *Reaper
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBatchSink sets the sink multi-task operations commit through, and the
// batch size. Without it mutations are applied directly.
func WithBatchSink(sink batch.Sink, size int) Option {
	return func(s *Service) {
		s.sink = sink
		s.batchSize = size
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a task Service.
// It returns an error if a required dependency is nil.
func NewService(taskStore store.TaskStore, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) (*Service, error) {
	if taskStore == nil {
		return nil, fmt.Errorf("task store cannot be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		store:      taskStore,
		dispatcher: dispatcher,
		sink:       batch.Direct,
		batchSize:  batch.DefaultMaxBatchSize,
		logger:     logger.With(slog.String("component", "task_service")),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reaper = NewReaper(taskStore, logger, WithReaperSink(s.sink, s.batchSize), WithReaperClock(s.now))
	return s, nil
}

// Reaper returns the reaper sharing this service's store and sink.
func (s *Service) Reaper() *Reaper {
	return s.reaper
}

// CreateTask validates req, persists a pending task and dispatches it. When
// dispatch fails the task is returned alongside the error; it is already
// marked failed.
func (s *Service) CreateTask(ctx context.Context, req CreateRequest) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !req.Type.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTaskType, req.Type)
	}

	task, err := domain.NewTask(req.Type, req.UserID, req.Payload)
	if err != nil {
		return nil, err
	}
	task.Label, task.Description = describe(req.Type, task.Payload)
	if req.Label != "" {
		task.Label = req.Label
	}
	if req.Description != "" {
		task.Description = req.Description
	}

	if err := s.store.Create(ctx, task); err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_type", string(req.Type)))
		return nil, err
	}

	log.Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", string(task.Type)))

	if err := s.dispatcher.Dispatch(ctx, task); err != nil {
		current, getErr := s.store.Get(ctx, task.ID)
		if getErr == nil {
			task = current
		}
		return task, err
	}

	if current, err := s.store.Get(ctx, task.ID); err == nil {
		task = current
	}
	return task, nil
}

// Get returns a task by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.store.Get(ctx, id)
}

// List returns tasks matching filter, newest first.
func (s *Service) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	return s.store.List(ctx, filter)
}

// Cancel moves every listed non-terminal task to cancelled. Terminal tasks
// are skipped and unknown IDs counted as not found.
func (s *Service) Cancel(ctx context.Context, ids ...uuid.UUID) (OperationResult, error) {
	var affected, skipped, notFound atomic.Int64

	mutations := make([]batch.Mutation, 0, len(ids))
	for _, id := range ids {
		mutations = append(mutations, batch.Mutation{
			Ref: id.String(),
			Apply: func(ctx context.Context, tx *sql.Tx) error {
				applied, err := s.txStore(tx).Transition(ctx, id, domain.TaskStatusCancelled, domain.TransitionOptions{
					Error:    "Cancelled by operator",
					Progress: &domain.Progress{Details: "Cancelled by operator"},
				})
				switch {
				case errors.Is(err, store.ErrTaskNotFound):
					notFound.Add(1)
					return nil
				case err != nil:
					return err
				case applied:
					affected.Add(1)
				default:
					skipped.Add(1)
				}
				return nil
			},
		})
	}

	if err := batch.Write(ctx, s.sink, s.batchSize, mutations); err != nil {
		return OperationResult{}, fmt.Errorf("failed to cancel tasks: %w", err)
	}

	result := OperationResult{
		Requested: len(ids),
		Affected:  int(affected.Load()),
		Skipped:   int(skipped.Load()),
		NotFound:  int(notFound.Load()),
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("tasks cancelled",
		slog.Int("requested", result.Requested),
		slog.Int("cancelled", result.Affected),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

// Delete removes the listed tasks regardless of status.
func (s *Service) Delete(ctx context.Context, ids ...uuid.UUID) (OperationResult, error) {
	var affected atomic.Int64

	mutations := make([]batch.Mutation, 0, len(ids))
	for _, id := range ids {
		mutations = append(mutations, batch.Mutation{
			Ref: id.String(),
			Apply: func(ctx context.Context, tx *sql.Tx) error {
				n, err := s.txStore(tx).Delete(ctx, id)
				if err != nil {
					return err
				}
				affected.Add(int64(n))
				return nil
			},
		})
	}

	if err := batch.Write(ctx, s.sink, s.batchSize, mutations); err != nil {
		return OperationResult{}, fmt.Errorf("failed to delete tasks: %w", err)
	}

	result := OperationResult{Requested: len(ids), Affected: int(affected.Load())}
	result.NotFound = result.Requested - result.Affected
	logger.FromContextOrDefault(ctx, s.logger).Info("tasks deleted",
		slog.Int("requested", result.Requested),
		slog.Int("deleted", result.Affected))
	return result, nil
}

// DeleteOlderThan removes every task created more than hours ago.
func (s *Service) DeleteOlderThan(ctx context.Context, hours int) (OperationResult, error) {
	if hours <= 0 {
		return OperationResult{}, fmt.Errorf("%w: olderThanHours must be positive, got %d", ErrInvalidRequest, hours)
	}

	cutoff := s.now().Add(-time.Duration(hours) * time.Hour)
	ids, err := s.store.ListOlderThan(ctx, cutoff)
	if err != nil {
		return OperationResult{}, fmt.Errorf("failed to list old tasks: %w", err)
	}
	if len(ids) == 0 {
		return OperationResult{}, nil
	}
	return s.Delete(ctx, ids...)
}

// ReapStuck fails tasks that stayed queued or processing past their timeout.
func (s *Service) ReapStuck(ctx context.Context) (ReapResult, error) {
	return s.reaper.ReapOnce(ctx)
}

func (s *Service) txStore(tx *sql.Tx) store.TaskStore {
	if tx == nil {
		return s.store
	}
	return s.store.WithTx(tx)
}
