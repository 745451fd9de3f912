package task

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTaskStore_ConcurrentProgressIsMonotonic(t *testing.T) {
	t.Parallel()

	s := NewMockTaskStore()
	task, err := domain.NewTask(domain.TaskTypeQuestionValidation, uuid.New(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), task))
	_, err = s.Transition(context.Background(), task.ID, domain.TaskStatusProcessing, domain.TransitionOptions{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 100; i >= 1; i-- {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = s.UpdateProgress(context.Background(), task.ID, domain.Progress{Completed: n, Total: 100})
		}(i)
	}
	wg.Wait()

	got, err := s.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress.Completed)
}

func TestMockTaskStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewMockTaskStore()
	task, err := domain.NewTask(domain.TaskTypeQuestionImport, uuid.New(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), task))

	got, err := s.Get(context.Background(), task.ID)
	require.NoError(t, err)
	got.Status = domain.TaskStatusCompleted

	again, err := s.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, again.Status)

	assert.ErrorIs(t, s.Create(context.Background(), task), store.ErrDuplicate)
}

func TestMockQuestionStore_Filters(t *testing.T) {
	t.Parallel()

	categorized, err := domain.NewQuestion("Q1?", []string{"a", "b", "c", "d"}, 0, "")
	require.NoError(t, err)
	categorized.Category = "science"
	bare, err := domain.NewQuestion("Q2?", []string{"a", "b", "c", "d"}, 1, "")
	require.NoError(t, err)

	s := NewMockQuestionStore(categorized, bare)

	missing, err := s.List(context.Background(), store.QuestionFilter{MissingCategory: true})
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, bare.ID, missing[0].ID)

	byID, err := s.List(context.Background(), store.QuestionFilter{IDs: []uuid.UUID{categorized.ID}})
	require.NoError(t, err)
	require.Len(t, byID, 1)

	_, err = s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrQuestionNotFound)

	bare.CorrectIndex = 9
	assert.ErrorIs(t, s.Save(context.Background(), bare), domain.ErrInvalidQuestion)
}
