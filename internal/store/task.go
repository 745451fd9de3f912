package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/domain"
)

// TaskFilter narrows a task listing. Zero fields do not filter.
type TaskFilter struct {
	UserID   uuid.UUID
	Type     domain.TaskType
	Statuses []domain.TaskStatus
	Limit    int
}

// DefaultTaskListLimit caps listings that do not set a limit.
const DefaultTaskListLimit = 100

// TaskStore persists tasks and enforces the task state machine. Every write
// re-reads the task's status inside its own transaction, so a write that
// races a terminal transition is skipped rather than applied.
type TaskStore interface {
	// Create saves a new task.
	// Returns ErrDuplicate if a task with the same ID exists.
	Create(ctx context.Context, task *domain.Task) error

	// Get retrieves a task by ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Transition moves a task to status to, writing the optional fields in
	// opts alongside. It returns applied=false with a nil error when the task
	// is already terminal, and domain.ErrInvalidTransition when the state
	// machine forbids the move.
	Transition(ctx context.Context, id uuid.UUID, to domain.TaskStatus, opts domain.TransitionOptions) (bool, error)

	// UpdateProgress merges p into the stored progress. Counters never
	// decrease. Returns applied=false when the task is terminal.
	UpdateProgress(ctx context.Context, id uuid.UUID, p domain.Progress) (bool, error)

	// List returns tasks matching filter, newest first.
	List(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// ListStale returns tasks in status that entered it before the cutoff.
	// Processing tasks are aged from their start time, others from creation.
	ListStale(ctx context.Context, status domain.TaskStatus, before time.Time) ([]*domain.Task, error)

	// ListOlderThan returns the IDs of tasks created before the cutoff.
	ListOlderThan(ctx context.Context, before time.Time) ([]uuid.UUID, error)

	// Delete removes tasks by ID and reports how many existed.
	Delete(ctx context.Context, ids ...uuid.UUID) (int, error)

	// WithTx returns a TaskStore that runs every statement on tx.
	WithTx(tx *sql.Tx) TaskStore
}
