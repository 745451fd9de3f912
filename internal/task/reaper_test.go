package task

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stuckTask(t *testing.T, typ domain.TaskType, status domain.TaskStatus, created time.Time, started *time.Time) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(typ, uuid.New(), nil)
	require.NoError(t, err)
	task.Status = status
	task.CreatedAt = created
	task.UpdatedAt = created
	task.StartedAt = started
	return task
}

func TestReaper_ReapOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) time.Time { return now.Add(-d) }
	startedAgo := func(d time.Duration) *time.Time { ts := now.Add(-d); return &ts }

	taskStore := NewMockTaskStore()
	taskStore.Now = func() time.Time { return now }

	oldGeneration := stuckTask(t, domain.TaskTypeQuestionGeneration, domain.TaskStatusProcessing, ago(2*time.Hour), startedAgo(45*time.Minute))
	freshGeneration := stuckTask(t, domain.TaskTypeQuestionGeneration, domain.TaskStatusProcessing, ago(20*time.Minute), startedAgo(10*time.Minute))
	longValidation := stuckTask(t, domain.TaskTypeQuestionValidation, domain.TaskStatusProcessing, ago(3*time.Hour), startedAgo(2*time.Hour))
	expiredValidation := stuckTask(t, domain.TaskTypeQuestionValidation, domain.TaskStatusProcessing, ago(5*time.Hour), startedAgo(4*time.Hour))
	oldQueued := stuckTask(t, domain.TaskTypeQuestionImport, domain.TaskStatusQueued, ago(31*time.Minute), nil)
	newQueued := stuckTask(t, domain.TaskTypeQuestionImport, domain.TaskStatusQueued, ago(5*time.Minute), nil)
	oldPending := stuckTask(t, domain.TaskTypeIllustrationGeneration, domain.TaskStatusPending, ago(time.Hour), nil)
	finished := stuckTask(t, domain.TaskTypeQuestionGeneration, domain.TaskStatusCompleted, ago(10*time.Hour), startedAgo(9*time.Hour))

	for _, task := range []*domain.Task{oldGeneration, freshGeneration, longValidation, expiredValidation, oldQueued, newQueued, oldPending, finished} {
		taskStore.Put(task)
	}

	reaper := NewReaper(taskStore, testLogger(), WithReaperClock(func() time.Time { return now }))
	result, err := reaper.ReapOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReapResult{Pending: 1, Queued: 1, Processing: 2}, result)
	assert.Equal(t, 4, result.Total())

	status := func(task *domain.Task) domain.TaskStatus {
		got, err := taskStore.Get(context.Background(), task.ID)
		require.NoError(t, err)
		return got.Status
	}
	assert.Equal(t, domain.TaskStatusFailed, status(oldGeneration))
	assert.Equal(t, domain.TaskStatusProcessing, status(freshGeneration))
	assert.Equal(t, domain.TaskStatusProcessing, status(longValidation))
	assert.Equal(t, domain.TaskStatusFailed, status(expiredValidation))
	assert.Equal(t, domain.TaskStatusFailed, status(oldQueued))
	assert.Equal(t, domain.TaskStatusQueued, status(newQueued))
	assert.Equal(t, domain.TaskStatusFailed, status(oldPending))
	assert.Equal(t, domain.TaskStatusCompleted, status(finished))

	reaped, err := taskStore.Get(context.Background(), expiredValidation.ID)
	require.NoError(t, err)
	assert.Equal(t, "Task timed out after 3 hours without finishing", reaped.Error)
	assert.Equal(t, domain.PhaseFailed, reaped.Progress.Phase)

	again, err := reaper.ReapOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Total(), "reaping must be idempotent")
}

func TestReaper_SkipsTaskFinishedMeanwhile(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	taskStore := NewMockTaskStore()
	task := stuckTask(t, domain.TaskTypeQuestionGeneration, domain.TaskStatusQueued, now.Add(-time.Hour), nil)
	taskStore.Put(task)

	def := taskStore.TransitionFn
	taskStore.TransitionFn = func(ctx context.Context, id uuid.UUID, to domain.TaskStatus, opts domain.TransitionOptions) (bool, error) {
		if to == domain.TaskStatusFailed {
			if _, err := def(ctx, id, domain.TaskStatusCancelled, domain.TransitionOptions{}); err != nil {
				return false, err
			}
		}
		return def(ctx, id, to, opts)
	}

	result, err := NewReaper(taskStore, testLogger()).ReapOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Total())

	got, err := taskStore.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, got.Status)
}

func TestReaper_StartStop(t *testing.T) {
	t.Parallel()

	taskStore := NewMockTaskStore()
	task := stuckTask(t, domain.TaskTypeQuestionImport, domain.TaskStatusQueued, time.Now().UTC().Add(-time.Hour), nil)
	taskStore.Put(task)

	reaper := NewReaper(taskStore, testLogger())
	reaper.Start(10 * time.Millisecond)
	reaper.Start(10 * time.Millisecond)

	assert.Eventually(t, func() bool {
		got, err := taskStore.Get(context.Background(), task.ID)
		return err == nil && got.Status == domain.TaskStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	reaper.Stop()
	reaper.Stop()
}
