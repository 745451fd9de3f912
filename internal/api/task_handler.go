package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/api/shared"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/queue"
	"github.com/phrazzld/quizrun-api/internal/store"
	"github.com/phrazzld/quizrun-api/internal/task"
)

// TaskService is the subset of task.Service the HTTP layer uses.
type TaskService interface {
	CreateTask(ctx context.Context, req task.CreateRequest) (*domain.Task, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error)
	Cancel(ctx context.Context, ids ...uuid.UUID) (task.OperationResult, error)
	Delete(ctx context.Context, ids ...uuid.UUID) (task.OperationResult, error)
	DeleteOlderThan(ctx context.Context, hours int) (task.OperationResult, error)
	ReapStuck(ctx context.Context) (task.ReapResult, error)
}

var _ TaskService = (*task.Service)(nil)

// TaskHandler handles task submission and polling.
type TaskHandler struct {
	service TaskService
	logger  *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(service TaskService, logger *slog.Logger) *TaskHandler {
	if service == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task service cannot be nil for TaskHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		service: service,
		logger:  logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /api/tasks. It answers 202 once the task is
// persisted and queued.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	claims, ok := shared.ClaimsFrom(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	t, err := h.service.CreateTask(r.Context(), task.CreateRequest{
		Type:        domain.TaskType(req.TaskType),
		Payload:     req.Payload,
		UserID:      claims.UserID,
		Label:       req.Label,
		Description: req.Description,
	})
	if err != nil {
		if t != nil && errors.Is(err, queue.ErrDispatchFailed) {
			log.Error("task created but not queued",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()))
			shared.RespondWithJSON(w, r, http.StatusBadGateway, newTaskResponse(t))
			return
		}
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, newTaskResponse(t))
}

// GetTask handles GET /api/tasks/{id}. Users only see their own tasks.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	claims, ok := shared.ClaimsFrom(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load task")
		return
	}
	if !claims.IsAdmin() && t.UserID != claims.UserID {
		HandleAPIError(w, r, store.ErrTaskNotFound, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponse(t))
}

// ListTasks handles GET /api/tasks. Admins see every user's tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	claims, ok := shared.ClaimsFrom(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	filter, err := parseTaskFilter(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if !claims.IsAdmin() {
		filter.UserID = claims.UserID
	}

	tasks, err := h.service.List(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}

	resp := TaskListResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, newTaskResponse(t))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
