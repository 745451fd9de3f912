package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/store"
)

// DefaultDelay is how far ahead deliveries are scheduled, giving the
// creating transaction time to become visible to the worker.
const DefaultDelay = 5 * time.Second

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Prefix is prepended to every queue name.
	Prefix string
	// WorkerURL is the endpoint deliveries call back.
	WorkerURL string
	// ServiceAccount is the principal delivery identity tokens are bound to.
	ServiceAccount string
	// Delay schedules deliveries this far in the future.
	Delay  time.Duration
	Limits Limits
}

// Dispatcher moves pending tasks onto their per-type queue.
type Dispatcher struct {
	queue  Queue
	store  store.TaskStore
	config DispatcherConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	ensured map[string]bool
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(q Queue, taskStore store.TaskStore, config DispatcherConfig, logger *slog.Logger) (*Dispatcher, error) {
	if q == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if taskStore == nil {
		return nil, fmt.Errorf("task store cannot be nil")
	}
	if config.WorkerURL == "" {
		return nil, fmt.Errorf("worker URL cannot be empty")
	}
	if config.Delay <= 0 {
		config.Delay = DefaultDelay
	}
	if config.Limits == (Limits{}) {
		config.Limits = DefaultLimits()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		queue:   q,
		store:   taskStore,
		config:  config,
		logger:  logger.With(slog.String("component", "dispatcher")),
		now:     func() time.Time { return time.Now().UTC() },
		ensured: make(map[string]bool),
	}, nil
}

// Dispatch schedules a worker delivery for task and marks it queued. When
// any step fails the task is marked failed and an error wrapping
// ErrDispatchFailed is returned; a task is never silently dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, d.logger).With(
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", string(task.Type)))

	spec := QueueSpec{Name: QueueName(d.config.Prefix, task.Type), Limits: d.config.Limits}
	if err := d.ensure(ctx, spec); err != nil {
		return d.fail(ctx, log, task, fmt.Errorf("ensure queue %s: %w", spec.Name, err))
	}

	body, err := Envelope(task.ID, task.Payload)
	if err != nil {
		return d.fail(ctx, log, task, err)
	}

	handle, err := d.queue.Schedule(ctx, Delivery{
		Queue:          spec.Name,
		TaskID:         task.ID.String(),
		URL:            d.config.WorkerURL,
		Body:           body,
		ScheduleAt:     d.now().Add(d.config.Delay),
		ServiceAccount: d.config.ServiceAccount,
		Deadline:       task.Type.ProcessingTimeout(),
	})
	if err != nil {
		return d.fail(ctx, log, task, err)
	}

	applied, err := d.store.Transition(ctx, task.ID, domain.TaskStatusQueued, domain.TransitionOptions{
		DeliveryHandle: handle,
		Progress:       &domain.Progress{Phase: domain.PhaseQueued, Details: "Waiting for a worker"},
	})
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		// The delivery already started the task.
		log.Debug("task left pending before queued write", slog.String("handle", handle))
	case err != nil:
		// The delivery exists and will run; the worker tolerates a pending task.
		log.Error("failed to record queued status", slog.String("error", err.Error()))
	case !applied:
		log.Debug("task finished before queued write", slog.String("handle", handle))
	default:
		log.Info("task queued", slog.String("queue", spec.Name), slog.String("handle", handle))
	}
	return nil
}

func (d *Dispatcher) ensure(ctx context.Context, spec QueueSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ensured[spec.Name] {
		return nil
	}
	if err := d.queue.EnsureQueue(ctx, spec); err != nil {
		return err
	}
	d.ensured[spec.Name] = true
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, task *domain.Task, cause error) error {
	message := fmt.Sprintf("dispatch failed: %v", cause)
	log.Error("failed to dispatch task", slog.String("error", cause.Error()))

	if _, err := d.store.Transition(ctx, task.ID, domain.TaskStatusFailed, domain.TransitionOptions{
		Error:    message,
		Progress: &domain.Progress{Phase: domain.PhaseFailed, Details: "The task could not be queued"},
	}); err != nil {
		log.Error("failed to mark undispatched task as failed", slog.String("error", err.Error()))
	}
	return fmt.Errorf("%w: %w", ErrDispatchFailed, cause)
}
