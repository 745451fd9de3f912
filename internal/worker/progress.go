package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/store"
)

// ErrTaskStopped is returned by Progress.Report when the task reached a
// terminal state elsewhere, typically an operator cancel. Pipelines return
// it unchanged so the runner stops without writing.
var ErrTaskStopped = errors.New("task is no longer running")

// Progress writes a task's progress through the task store.
type Progress struct {
	store  store.TaskStore
	taskID uuid.UUID
	logger *slog.Logger
}

// NewProgress creates a Progress reporter for one task.
func NewProgress(taskStore store.TaskStore, taskID uuid.UUID, logger *slog.Logger) *Progress {
	if logger == nil {
		logger = slog.Default()
	}
	return &Progress{store: taskStore, taskID: taskID, logger: logger}
}

// Report records phase and counters with a plain-language details line.
// Counters never move backwards. A failed write is logged and ignored; a
// task that is no longer running yields ErrTaskStopped.
func (p *Progress) Report(ctx context.Context, phase string, completed, total int, details string) error {
	applied, err := p.store.UpdateProgress(ctx, p.taskID, domain.Progress{
		Phase:     phase,
		Completed: completed,
		Total:     total,
		Details:   details,
	})
	if err != nil {
		p.logger.Warn("failed to record progress",
			slog.String("task_id", p.taskID.String()),
			slog.String("phase", phase),
			slog.String("error", err.Error()))
		return nil
	}
	if !applied {
		return ErrTaskStopped
	}
	return nil
}
