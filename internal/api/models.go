package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/domain"
)

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	TaskType    string          `json:"taskType"    validate:"required"`
	Payload     json.RawMessage `json:"payload"`
	Label       string          `json:"label"       validate:"max=200"`
	Description string          `json:"description" validate:"max=1000"`
}

// TaskResponse is the pollable view of a task.
type TaskResponse struct {
	TaskID      uuid.UUID       `json:"taskId"`
	TaskType    domain.TaskType `json:"taskType"`
	Status      string          `json:"status"`
	Label       string          `json:"label"`
	Description string          `json:"description,omitempty"`
	Progress    domain.Progress `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
}

func newTaskResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		TaskID:      t.ID,
		TaskType:    t.Type,
		Status:      string(t.Status),
		Label:       t.Label,
		Description: t.Description,
		Progress:    t.Progress,
		Result:      t.Result,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		StartedAt:   t.StartedAt,
		FinishedAt:  t.FinishedAt,
	}
}

// TaskListResponse is the body of GET /api/tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// TaskIDsRequest is the body of the multi-task operator controls.
type TaskIDsRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1,max=5000"`
}

// CleanupRequest is the body of POST /api/admin/tasks/cleanup.
type CleanupRequest struct {
	OlderThanHours int `json:"olderThanHours" validate:"required,gt=0"`
}

// WorkerRequest is the body the delivery queue posts to /worker/tasks.
type WorkerRequest struct {
	Data struct {
		TaskID string `json:"taskId" validate:"required"`
	} `json:"data"`
}

// WorkerResponse acknowledges a delivery.
type WorkerResponse struct {
	TaskID  string `json:"taskId"`
	Outcome string `json:"outcome"`
}
