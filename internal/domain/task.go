package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

// Possible task status values
const (
	// TaskStatusPending means the task was accepted but not yet handed to delivery
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusQueued means the delivery queue accepted the task
	TaskStatusQueued TaskStatus = "queued"
	// TaskStatusProcessing means a worker began execution
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskType identifies the pipeline a worker runs for a task
type TaskType string

// Task types handled by the worker
const (
	TaskTypeQuestionGeneration     TaskType = "question_generation"
	TaskTypeQuestionCategorization TaskType = "question_categorization"
	TaskTypeQuestionValidation     TaskType = "question_validation"
	TaskTypeQuestionImport         TaskType = "question_import"
	TaskTypeIllustrationGeneration TaskType = "illustration_generation"
)

// Reaping timeouts
const (
	// DefaultProcessingTimeout bounds how long a task may stay in processing
	DefaultProcessingTimeout = 30 * time.Minute
	// BatchValidationTimeout applies to the heaviest task type
	BatchValidationTimeout = 3 * time.Hour
	// QueuedTimeout bounds how long a task may wait for delivery
	QueuedTimeout = 30 * time.Minute
)

// Progress phases shared by all pipelines
const (
	PhaseQueued       = "queued"
	PhaseStarting     = "starting"
	PhaseGenerating   = "generating"
	PhaseFiltering    = "filtering"
	PhaseValidating   = "validating"
	PhaseCategorizing = "categorizing"
	PhaseIllustrating = "illustrating"
	PhaseSaving       = "saving"
	PhaseCompleted    = "completed"
	PhaseFailed       = "failed"
)

// AllTaskTypes lists every task type in a stable order
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskTypeQuestionGeneration,
		TaskTypeQuestionCategorization,
		TaskTypeQuestionValidation,
		TaskTypeQuestionImport,
		TaskTypeIllustrationGeneration,
	}
}

// IsValid reports whether the task type is known
func (t TaskType) IsValid() bool {
	for _, known := range AllTaskTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ProcessingTimeout returns how long a task of this type may stay in
// processing before the reaper force-fails it.
func (t TaskType) ProcessingTimeout() time.Duration {
	if t == TaskTypeQuestionValidation {
		return BatchValidationTimeout
	}
	return DefaultProcessingTimeout
}

// IsValid reports whether the status is one of the known values
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusQueued, TaskStatusProcessing,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further mutation may be applied to a task
// in this status.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a task may move from one status to another.
// Terminal states accept nothing. Processing may be re-entered because
// delivery is at-least-once, and a delivery can overtake the queued write.
func CanTransition(from, to TaskStatus) bool {
	if from.IsTerminal() || !to.IsValid() {
		return false
	}
	switch to {
	case TaskStatusQueued:
		return from == TaskStatusPending
	case TaskStatusProcessing:
		return true
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Progress is the operator-visible progress document of a task.
type Progress struct {
	Phase     string    `json:"phase"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Details   string    `json:"details"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Merge applies an incoming progress update onto the stored one. Counters
// never decrease, so duplicate or out-of-order updates are harmless.
func (p Progress) Merge(incoming Progress) Progress {
	merged := incoming
	merged.Completed = max(p.Completed, incoming.Completed)
	merged.Total = max(p.Total, incoming.Total)
	if merged.Phase == "" {
		merged.Phase = p.Phase
	}
	if merged.Details == "" {
		merged.Details = p.Details
	}
	if merged.UpdatedAt.IsZero() {
		merged.UpdatedAt = time.Now().UTC()
	}
	return merged
}

// Task is a durable unit of asynchronous work.
type Task struct {
	ID             uuid.UUID       `json:"id"`
	Type           TaskType        `json:"task_type"`
	Status         TaskStatus      `json:"status"`
	UserID         uuid.UUID       `json:"user_id"`
	Label          string          `json:"label"`
	Description    string          `json:"description"`
	Payload        json.RawMessage `json:"payload"`
	Progress       Progress        `json:"progress"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	DeliveryHandle string          `json:"delivery_handle,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// NewTask creates a pending task of the given type.
// Returns an error if validation fails.
func NewTask(taskType TaskType, userID uuid.UUID, payload json.RawMessage) (*Task, error) {
	now := time.Now().UTC()
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	t := &Task{
		ID:        uuid.New(),
		Type:      taskType,
		Status:    TaskStatusPending,
		UserID:    userID,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
		Progress: Progress{
			Phase:     PhaseQueued,
			Details:   "Waiting to start",
			UpdatedAt: now,
		},
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("%w: task ID cannot be empty", ErrValidation)
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownTaskType, t.Type)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskStatus, t.Status)
	}
	if len(t.Payload) > 0 && !json.Valid(t.Payload) {
		return fmt.Errorf("%w: payload is not valid JSON", ErrValidation)
	}
	return nil
}

// ApplyTransition mutates the task in memory the way a store applies a
// transition. It returns false without touching the task when the task is
// already terminal, and ErrInvalidTransition when the move is not allowed.
func (t *Task) ApplyTransition(to TaskStatus, opts TransitionOptions, now time.Time) (bool, error) {
	if t.Status.IsTerminal() {
		return false, nil
	}
	if !CanTransition(t.Status, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}

	t.Status = to
	t.UpdatedAt = now
	if to == TaskStatusProcessing && t.StartedAt == nil {
		started := now
		t.StartedAt = &started
	}
	if to.IsTerminal() {
		finished := now
		t.FinishedAt = &finished
	}
	if opts.Error != "" {
		t.Error = opts.Error
	}
	if len(opts.Result) > 0 {
		t.Result = opts.Result
	}
	if opts.DeliveryHandle != "" {
		t.DeliveryHandle = opts.DeliveryHandle
	}
	if opts.Progress != nil {
		t.Progress = t.Progress.Merge(*opts.Progress)
	}
	return true, nil
}

// TransitionOptions carries the fields written alongside a status change.
type TransitionOptions struct {
	Error          string
	Result         json.RawMessage
	Progress       *Progress
	DeliveryHandle string
}

// TaskResult is the structured outcome a worker records on completion.
type TaskResult struct {
	Generated    int         `json:"generated,omitempty"`
	Duplicates   int         `json:"duplicates,omitempty"`
	Invalid      int         `json:"invalid,omitempty"`
	Illustrated  int         `json:"illustrated,omitempty"`
	Validated    int         `json:"validated,omitempty"`
	Categorized  int         `json:"categorized,omitempty"`
	Failed       int         `json:"failed,omitempty"`
	Saved        int         `json:"saved,omitempty"`
	ValidCount   int         `json:"valid_count,omitempty"`
	InvalidCount int         `json:"invalid_count,omitempty"`
	Provider     string      `json:"provider,omitempty"`
	QuestionIDs  []uuid.UUID `json:"question_ids,omitempty"`
	Details      string      `json:"details,omitempty"`

	// Single-question validation outcome
	Valid            *bool    `json:"valid,omitempty"`
	Issues           []string `json:"issues,omitempty"`
	ProvidersChecked int      `json:"providers_checked,omitempty"`
}
