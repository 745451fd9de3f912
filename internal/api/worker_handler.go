package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/api/shared"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/worker"
)

// TaskRunner executes one delivered task.
type TaskRunner interface {
	Run(ctx context.Context, taskID uuid.UUID) (worker.Outcome, error)
}

var _ TaskRunner = (*worker.Runner)(nil)

// WorkerHandler receives deliveries from the task queue.
type WorkerHandler struct {
	runner TaskRunner
	logger *slog.Logger
}

// NewWorkerHandler creates a new WorkerHandler
func NewWorkerHandler(runner TaskRunner, logger *slog.Logger) *WorkerHandler {
	if runner == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("runner cannot be nil for WorkerHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerHandler{
		runner: runner,
		logger: logger.With(slog.String("component", "worker_handler")),
	}
}

// HandleDelivery handles POST /worker/tasks. Every outcome the runner
// decides on, including unknown and already finished tasks, is acknowledged
// with 200 so the queue stops redelivering. Only a store failure answers
// 503, which makes the queue retry.
func (h *WorkerHandler) HandleDelivery(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req WorkerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	taskID, err := uuid.Parse(req.Data.TaskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid taskId", err)
		return
	}

	if id, ok := shared.IdentityFrom(r.Context()); ok {
		log = log.With(slog.String("caller", id.Principal))
	}
	log = log.With(slog.String("task_id", taskID.String()))
	ctx := logger.WithLogger(r.Context(), log)

	outcome, err := h.runner.Run(ctx, taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r.WithContext(ctx), http.StatusServiceUnavailable, "Task could not be processed, retry later", err)
		return
	}

	log.Debug("delivery acknowledged", slog.String("outcome", string(outcome)))
	shared.RespondWithJSON(w, r, http.StatusOK, WorkerResponse{TaskID: taskID.String(), Outcome: string(outcome)})
}
