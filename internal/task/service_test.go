package task

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/batch"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// queueingDispatcher marks every dispatched task as queued.
func queueingDispatcher(s store.TaskStore) DispatcherFunc {
	return func(ctx context.Context, task *domain.Task) error {
		_, err := s.Transition(ctx, task.ID, domain.TaskStatusQueued, domain.TransitionOptions{DeliveryHandle: "test/" + task.ID.String()})
		return err
	}
}

func seedTasks(t *testing.T, s *MockTaskStore, n int, status domain.TaskStatus) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		task, err := domain.NewTask(domain.TaskTypeQuestionValidation, uuid.New(), nil)
		require.NoError(t, err)
		task.Status = status
		s.Put(task)
		ids[i] = task.ID
	}
	return ids
}

func TestNewService_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewService(nil, DispatcherFunc(nil), testLogger())
	assert.Error(t, err)

	_, err = NewService(NewMockTaskStore(), nil, testLogger())
	assert.Error(t, err)
}

func TestService_CreateTask(t *testing.T) {
	t.Parallel()

	taskStore := NewMockTaskStore()
	svc, err := NewService(taskStore, queueingDispatcher(taskStore), testLogger())
	require.NoError(t, err)

	userID := uuid.New()
	task, err := svc.CreateTask(context.Background(), CreateRequest{
		Type:    domain.TaskTypeQuestionGeneration,
		Payload: json.RawMessage(`{"count":5,"topic":"volcanoes"}`),
		UserID:  userID,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStatusQueued, task.Status)
	assert.Equal(t, "Generate 5 questions about volcanoes", task.Label)
	assert.NotEmpty(t, task.Description)
	assert.Equal(t, userID, task.UserID)
	assert.NotEmpty(t, task.DeliveryHandle)
}

func TestService_CreateTask_UnknownType(t *testing.T) {
	t.Parallel()

	taskStore := NewMockTaskStore()
	svc, err := NewService(taskStore, queueingDispatcher(taskStore), testLogger())
	require.NoError(t, err)

	_, err = svc.CreateTask(context.Background(), CreateRequest{Type: "memo_generation"})
	assert.ErrorIs(t, err, domain.ErrUnknownTaskType)
	assert.Zero(t, taskStore.Len())
}

func TestService_CreateTask_DispatchFailureKeepsTask(t *testing.T) {
	t.Parallel()

	taskStore := NewMockTaskStore()
	dispatchErr := errors.New("dispatch failed: queue unavailable")
	dispatcher := DispatcherFunc(func(ctx context.Context, task *domain.Task) error {
		_, _ = taskStore.Transition(ctx, task.ID, domain.TaskStatusFailed, domain.TransitionOptions{Error: dispatchErr.Error()})
		return dispatchErr
	})
	svc, err := NewService(taskStore, dispatcher, testLogger())
	require.NoError(t, err)

	task, err := svc.CreateTask(context.Background(), CreateRequest{Type: domain.TaskTypeIllustrationGeneration})
	assert.ErrorIs(t, err, dispatchErr)
	require.NotNil(t, task)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Equal(t, 1, taskStore.Len())
}

func TestService_Cancel(t *testing.T) {
	t.Parallel()

	taskStore := NewMockTaskStore()
	svc, err := NewService(taskStore, queueingDispatcher(taskStore), testLogger(), WithBatchSink(batch.Direct, 3))
	require.NoError(t, err)

	active := seedTasks(t, taskStore, 5, domain.TaskStatusQueued)
	done := seedTasks(t, taskStore, 2, domain.TaskStatusCompleted)
	ids := append(append(active, done...), uuid.New())

	result, err := svc.Cancel(context.Background(), ids...)
	require.NoError(t, err)
	assert.Equal(t, OperationResult{Requested: 8, Affected: 5, Skipped: 2, NotFound: 1}, result)

	for _, id := range active {
		task, err := taskStore.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCancelled, task.Status)
	}
	for _, id := range done {
		task, err := taskStore.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	}
}

func TestService_Delete_UsesBatches(t *testing.T) {
	t.Parallel()

	taskStore := NewMockTaskStore()
	var (
		mu    sync.Mutex
		sizes []int
	)
	sink := batch.SinkFunc(func(ctx context.Context, b []batch.Mutation) error {
		mu.Lock()
		sizes = append(sizes, len(b))
		mu.Unlock()
		return batch.Direct.CommitBatch(ctx, b)
	})
	svc, err := NewService(taskStore, queueingDispatcher(taskStore), testLogger(), WithBatchSink(sink, 4))
	require.NoError(t, err)

	ids := seedTasks(t, taskStore, 10, domain.TaskStatusFailed)
	result, err := svc.Delete(context.Background(), ids...)
	require.NoError(t, err)

	assert.Equal(t, 10, result.Affected)
	assert.Zero(t, taskStore.Len())
	assert.ElementsMatch(t, []int{4, 4, 2}, sizes)
}

func TestService_DeleteOlderThan(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	taskStore := NewMockTaskStore()
	svc, err := NewService(taskStore, queueingDispatcher(taskStore), testLogger(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	for _, age := range []time.Duration{72 * time.Hour, 30 * time.Hour, time.Hour} {
		task, err := domain.NewTask(domain.TaskTypeQuestionImport, uuid.New(), nil)
		require.NoError(t, err)
		task.CreatedAt = now.Add(-age)
		taskStore.Put(task)
	}

	result, err := svc.DeleteOlderThan(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Affected)
	assert.Equal(t, 1, taskStore.Len())

	_, err = svc.DeleteOlderThan(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		taskType domain.TaskType
		payload  string
		label    string
	}{
		{domain.TaskTypeQuestionGeneration, `{}`, "Generate questions"},
		{domain.TaskTypeQuestionGeneration, `{"count":3,"category":"history"}`, "Generate 3 questions about history"},
		{domain.TaskTypeQuestionValidation, `{"questionIds":["a","b"]}`, "Validate 2 questions"},
		{domain.TaskTypeQuestionCategorization, `{}`, "Categorize questions"},
		{domain.TaskTypeQuestionImport, `{"questions":[{},{},{}]}`, "Import 3 questions"},
		{domain.TaskTypeIllustrationGeneration, `{}`, "Add emoji to questions"},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			label, description := describe(tc.taskType, json.RawMessage(tc.payload))
			assert.Equal(t, tc.label, label)
			assert.NotEmpty(t, description)
		})
	}
}
