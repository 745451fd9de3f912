package queue

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
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQueue struct {
	mu         sync.Mutex
	ensured    []QueueSpec
	deliveries []Delivery
	ensureErr  error
	scheduleFn func(d Delivery) (string, error)
}

func (q *fakeQueue) EnsureQueue(ctx context.Context, spec QueueSpec) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ensureErr != nil {
		return q.ensureErr
	}
	q.ensured = append(q.ensured, spec)
	return nil
}

func (q *fakeQueue) Schedule(ctx context.Context, d Delivery) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.scheduleFn != nil {
		return q.scheduleFn(d)
	}
	q.deliveries = append(q.deliveries, d)
	return "handle-" + d.TaskID, nil
}

func newPendingTask(t *testing.T, s *task.MockTaskStore, typ domain.TaskType, payload string) *domain.Task {
	t.Helper()
	tk, err := domain.NewTask(typ, uuid.New(), json.RawMessage(payload))
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), tk))
	return tk
}

func TestQueueName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "quiz-question-generation", QueueName("quiz", domain.TaskTypeQuestionGeneration))
	assert.Equal(t, "illustration-generation", QueueName("", domain.TaskTypeIllustrationGeneration))
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Parallel()

	store := task.NewMockTaskStore()
	q := &fakeQueue{}
	d, err := NewDispatcher(q, store, DispatcherConfig{
		Prefix:         "quiz",
		WorkerURL:      "https://worker.example.com/worker/tasks",
		ServiceAccount: "tasks@example.iam.gserviceaccount.com",
	}, testLogger())
	require.NoError(t, err)
	d.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	tk := newPendingTask(t, store, domain.TaskTypeQuestionGeneration, `{"count":3,"topic":null,"options":{"validate":true,"language":null}}`)
	require.NoError(t, d.Dispatch(context.Background(), tk))

	got, err := store.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusQueued, got.Status)
	assert.Equal(t, "handle-"+tk.ID.String(), got.DeliveryHandle)

	require.Len(t, q.deliveries, 1)
	delivery := q.deliveries[0]
	assert.Equal(t, "quiz-question-generation", delivery.Queue)
	assert.Equal(t, "tasks@example.iam.gserviceaccount.com", delivery.ServiceAccount)
	assert.Equal(t, d.now().Add(DefaultDelay), delivery.ScheduleAt)
	assert.Equal(t, domain.DefaultProcessingTimeout, delivery.Deadline)
	assert.JSONEq(t,
		`{"data":{"taskId":"`+tk.ID.String()+`","count":3,"options":{"validate":true}}}`,
		string(delivery.Body))

	second := newPendingTask(t, store, domain.TaskTypeQuestionGeneration, `{}`)
	require.NoError(t, d.Dispatch(context.Background(), second))
	assert.Len(t, q.ensured, 1, "queue must be ensured once per task type")
}

func TestDispatcher_DeadlineFollowsTaskType(t *testing.T) {
	t.Parallel()

	store := task.NewMockTaskStore()
	q := &fakeQueue{}
	d, err := NewDispatcher(q, store, DispatcherConfig{WorkerURL: "https://worker.example.com/worker/tasks"}, testLogger())
	require.NoError(t, err)

	tk := newPendingTask(t, store, domain.TaskTypeQuestionValidation, `{}`)
	require.NoError(t, d.Dispatch(context.Background(), tk))

	require.Len(t, q.deliveries, 1)
	assert.Equal(t, domain.BatchValidationTimeout, q.deliveries[0].Deadline)
}

func TestDispatcher_FailureMarksTaskFailed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		queue *fakeQueue
	}{
		{"ensure fails", &fakeQueue{ensureErr: errors.New("permission denied")}},
		{"schedule fails", &fakeQueue{scheduleFn: func(Delivery) (string, error) {
			return "", errors.New("deadline exceeded")
		}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := task.NewMockTaskStore()
			d, err := NewDispatcher(tc.queue, store, DispatcherConfig{WorkerURL: "http://localhost/worker/tasks"}, testLogger())
			require.NoError(t, err)

			tk := newPendingTask(t, store, domain.TaskTypeQuestionValidation, `{}`)
			err = d.Dispatch(context.Background(), tk)
			assert.ErrorIs(t, err, ErrDispatchFailed)

			got, getErr := store.Get(context.Background(), tk.ID)
			require.NoError(t, getErr)
			assert.Equal(t, domain.TaskStatusFailed, got.Status)
			assert.Contains(t, got.Error, "dispatch failed: ")
		})
	}
}

func TestDispatcher_RetriesEnsureAfterFailure(t *testing.T) {
	t.Parallel()

	store := task.NewMockTaskStore()
	q := &fakeQueue{ensureErr: errors.New("unavailable")}
	d, err := NewDispatcher(q, store, DispatcherConfig{WorkerURL: "http://localhost/worker/tasks"}, testLogger())
	require.NoError(t, err)

	first := newPendingTask(t, store, domain.TaskTypeQuestionImport, `{}`)
	assert.Error(t, d.Dispatch(context.Background(), first))

	q.mu.Lock()
	q.ensureErr = nil
	q.mu.Unlock()

	second := newPendingTask(t, store, domain.TaskTypeQuestionImport, `{}`)
	require.NoError(t, d.Dispatch(context.Background(), second))
	assert.Len(t, q.ensured, 1)
}

func TestDispatcher_DeliveryBeatsQueuedWrite(t *testing.T) {
	t.Parallel()

	store := task.NewMockTaskStore()
	q := &fakeQueue{}
	q.scheduleFn = func(d Delivery) (string, error) {
		id := uuid.MustParse(d.TaskID)
		_, err := store.Transition(context.Background(), id, domain.TaskStatusProcessing, domain.TransitionOptions{})
		return "h1", err
	}
	d, err := NewDispatcher(q, store, DispatcherConfig{WorkerURL: "http://localhost/worker/tasks"}, testLogger())
	require.NoError(t, err)

	tk := newPendingTask(t, store, domain.TaskTypeQuestionImport, `{}`)
	require.NoError(t, d.Dispatch(context.Background(), tk))

	got, err := store.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusProcessing, got.Status)
}

func TestNewDispatcher_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewDispatcher(nil, task.NewMockTaskStore(), DispatcherConfig{WorkerURL: "x"}, nil)
	assert.Error(t, err)
	_, err = NewDispatcher(&fakeQueue{}, nil, DispatcherConfig{WorkerURL: "x"}, nil)
	assert.Error(t, err)
	_, err = NewDispatcher(&fakeQueue{}, task.NewMockTaskStore(), DispatcherConfig{}, nil)
	assert.Error(t, err)
}
