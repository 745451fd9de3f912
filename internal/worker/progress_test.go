package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReport(t *testing.T) {
	t.Parallel()

	tasks := task.NewMockTaskStore()
	tk := seedTask(t, tasks, domain.TaskTypeQuestionValidation, `{}`)
	progress := NewProgress(tasks, tk.ID, nil)
	ctx := context.Background()

	require.NoError(t, progress.Report(ctx, domain.PhaseValidating, 3, 10, "Validating question 4 of 10"))
	require.NoError(t, progress.Report(ctx, domain.PhaseValidating, 2, 10, "Validating question 3 of 10"))

	stored, err := tasks.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Progress.Completed, "completed never moves backwards")
	assert.Equal(t, 10, stored.Progress.Total)
	assert.Equal(t, domain.PhaseValidating, stored.Progress.Phase)
}

func TestProgressReportOnTerminalTask(t *testing.T) {
	t.Parallel()

	tasks := task.NewMockTaskStore()
	tk := seedTask(t, tasks, domain.TaskTypeQuestionValidation, `{}`)
	tk.Status = domain.TaskStatusCancelled
	tasks.Put(tk)

	err := NewProgress(tasks, tk.ID, nil).Report(context.Background(), domain.PhaseValidating, 1, 2, "x")
	assert.ErrorIs(t, err, ErrTaskStopped)
}

func TestProgressReportIgnoresStoreErrors(t *testing.T) {
	t.Parallel()

	tasks := task.NewMockTaskStore()
	tasks.UpdateProgressFn = func(context.Context, uuid.UUID, domain.Progress) (bool, error) {
		return false, errors.New("connection reset")
	}

	err := NewProgress(tasks, uuid.New(), nil).Report(context.Background(), domain.PhaseSaving, 0, 1, "Saving")
	assert.NoError(t, err)
}
