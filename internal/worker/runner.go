package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/redact"
	"github.com/phrazzld/quizrun-api/internal/store"
)

// ErrPipelinePanic wraps a recovered pipeline panic.
var ErrPipelinePanic = errors.New("pipeline panicked")

// Outcome reports what a delivery did to its task.
type Outcome string

// Delivery outcomes
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeIgnored means the task was unknown, already terminal, already
	// running under another delivery or finished elsewhere while running.
	OutcomeIgnored Outcome = "ignored"
)

// Pipeline does the work of one task type.
type Pipeline interface {
	Run(ctx context.Context, task *domain.Task, progress *Progress) (*domain.TaskResult, error)
}

// PipelineFunc adapts a function to the Pipeline interface.
type PipelineFunc func(ctx context.Context, task *domain.Task, progress *Progress) (*domain.TaskResult, error)

// Run implements Pipeline.
func (f PipelineFunc) Run(ctx context.Context, task *domain.Task, progress *Progress) (*domain.TaskResult, error) {
	return f(ctx, task, progress)
}

// Runner executes one delivered task.
type Runner struct {
	store     store.TaskStore
	pipelines map[domain.TaskType]Pipeline
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner creates a Runner dispatching on task type to pipelines.
func NewRunner(taskStore store.TaskStore, pipelines map[domain.TaskType]Pipeline, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	registered := make(map[domain.TaskType]Pipeline, len(pipelines))
	for t, p := range pipelines {
		registered[t] = p
	}
	return &Runner{
		store:     taskStore,
		pipelines: registered,
		logger:    logger.With(slog.String("component", "worker")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run loads the task, moves it to processing, runs its pipeline and records
// the outcome. A delivery for a task another delivery is still running is
// acknowledged without running it again; once the run outlives the type's
// processing timeout the reaper owns the task. Pipeline failures and panics mark the task failed and return
// a nil error so the delivery is acknowledged; a non-nil error means the
// task store was unreachable and the delivery should be retried.
func (r *Runner) Run(ctx context.Context, taskID uuid.UUID) (Outcome, error) {
	log := logger.FromContextOrDefault(ctx, r.logger).With(slog.String("task_id", taskID.String()))

	task, err := r.store.Get(ctx, taskID)
	if errors.Is(err, store.ErrTaskNotFound) {
		log.Warn("delivery for unknown task")
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load task: %w", err)
	}

	log = log.With(slog.String("task_type", string(task.Type)))
	if task.Status.IsTerminal() {
		log.Info("delivery for finished task acknowledged", slog.String("status", string(task.Status)))
		return OutcomeIgnored, nil
	}
	if r.running(task) {
		log.Info("delivery for running task acknowledged", slog.Time("started_at", *task.StartedAt))
		return OutcomeIgnored, nil
	}

	applied, err := r.store.Transition(ctx, taskID, domain.TaskStatusProcessing, domain.TransitionOptions{
		Progress: &domain.Progress{Phase: domain.PhaseStarting, Details: "Starting"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to start task: %w", err)
	}
	if !applied {
		log.Info("task finished before it could start")
		return OutcomeIgnored, nil
	}

	// The run outlives the delivery request: a queue that stops waiting at
	// its dispatch deadline must not abort work a longer task type is still
	// allowed to do. Final writes land either way.
	writeCtx := context.WithoutCancel(ctx)

	pipeline, ok := r.pipelines[task.Type]
	if !ok {
		return r.fail(writeCtx, log, taskID, fmt.Errorf("%w: no pipeline for %q", domain.ErrUnknownTaskType, task.Type))
	}

	runCtx, cancel := context.WithTimeout(logger.WithLogger(writeCtx, log), task.Type.ProcessingTimeout())
	defer cancel()

	log.Info("processing task")
	result, err := r.execute(runCtx, log, pipeline, task)
	switch {
	case errors.Is(err, ErrTaskStopped):
		log.Info("task stopped while running")
		return OutcomeIgnored, nil
	case err != nil:
		return r.fail(writeCtx, log, taskID, err)
	}
	return r.complete(writeCtx, log, taskID, result)
}

// running reports whether task was started by an earlier delivery that may
// still be working on it.
func (r *Runner) running(task *domain.Task) bool {
	if task.Status != domain.TaskStatusProcessing || task.StartedAt == nil {
		return false
	}
	return r.now().Sub(*task.StartedAt) < task.Type.ProcessingTimeout()
}

func (r *Runner) execute(ctx context.Context, log *slog.Logger, p Pipeline, task *domain.Task) (result *domain.TaskResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("pipeline panicked",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			result, err = nil, fmt.Errorf("%w: %v", ErrPipelinePanic, rec)
		}
	}()
	return p.Run(ctx, task, NewProgress(r.store, task.ID, log))
}

func (r *Runner) complete(ctx context.Context, log *slog.Logger, taskID uuid.UUID, result *domain.TaskResult) (Outcome, error) {
	if result == nil {
		result = &domain.TaskResult{}
	}
	if result.Details == "" {
		result.Details = "Done"
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return r.fail(ctx, log, taskID, fmt.Errorf("failed to encode result: %w", err))
	}

	applied, err := r.store.Transition(ctx, taskID, domain.TaskStatusCompleted, domain.TransitionOptions{
		Result:   encoded,
		Progress: &domain.Progress{Phase: domain.PhaseCompleted, Details: result.Details},
	})
	if err != nil {
		return "", fmt.Errorf("failed to complete task: %w", err)
	}
	if !applied {
		log.Info("task finished elsewhere, result discarded")
		return OutcomeIgnored, nil
	}

	log.Info("task completed", slog.String("details", result.Details))
	return OutcomeCompleted, nil
}

func (r *Runner) fail(ctx context.Context, log *slog.Logger, taskID uuid.UUID, cause error) (Outcome, error) {
	message := redact.Message(cause)
	log.Error("task failed", slog.String("error", message))

	applied, err := r.store.Transition(ctx, taskID, domain.TaskStatusFailed, domain.TransitionOptions{
		Error:    message,
		Progress: &domain.Progress{Phase: domain.PhaseFailed, Details: "Task failed: " + message},
	})
	if err != nil {
		return "", fmt.Errorf("failed to record task failure: %w", err)
	}
	if !applied {
		return OutcomeIgnored, nil
	}
	return OutcomeFailed, nil
}
