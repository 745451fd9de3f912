package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/store"
)

// MockTaskStore is an in-memory store.TaskStore honouring the same state
// machine rules as the Postgres store. Each Fn field holds the default
// behaviour and may be replaced or wrapped by tests.
type MockTaskStore struct {
	mutex sync.Mutex
	tasks map[uuid.UUID]*domain.Task
	Now   func() time.Time

	CreateFn         func(ctx context.Context, task *domain.Task) error
	TransitionFn     func(ctx context.Context, id uuid.UUID, to domain.TaskStatus, opts domain.TransitionOptions) (bool, error)
	UpdateProgressFn func(ctx context.Context, id uuid.UUID, p domain.Progress) (bool, error)
}

// NewMockTaskStore creates an empty MockTaskStore.
func NewMockTaskStore() *MockTaskStore {
	s := &MockTaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
		Now:   func() time.Time { return time.Now().UTC() },
	}
	s.CreateFn = s.create
	s.TransitionFn = s.transition
	s.UpdateProgressFn = s.updateProgress
	return s
}

var _ store.TaskStore = (*MockTaskStore)(nil)

// Create implements store.TaskStore.Create
func (s *MockTaskStore) Create(ctx context.Context, task *domain.Task) error {
	return s.CreateFn(ctx, task)
}

// Get implements store.TaskStore.Get
func (s *MockTaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// Transition implements store.TaskStore.Transition
func (s *MockTaskStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	to domain.TaskStatus,
	opts domain.TransitionOptions,
) (bool, error) {
	return s.TransitionFn(ctx, id, to, opts)
}

// UpdateProgress implements store.TaskStore.UpdateProgress
func (s *MockTaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, p domain.Progress) (bool, error) {
	return s.UpdateProgressFn(ctx, id, p)
}

// List implements store.TaskStore.List
func (s *MockTaskStore) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var out []*domain.Task
	for _, task := range s.tasks {
		if filter.UserID != uuid.Nil && task.UserID != filter.UserID {
			continue
		}
		if filter.Type != "" && task.Type != filter.Type {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, task.Status) {
			continue
		}
		out = append(out, cloneTask(task))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultTaskListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListStale implements store.TaskStore.ListStale
func (s *MockTaskStore) ListStale(ctx context.Context, status domain.TaskStatus, before time.Time) ([]*domain.Task, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var out []*domain.Task
	for _, task := range s.tasks {
		if task.Status != status {
			continue
		}
		since := task.CreatedAt
		if status == domain.TaskStatusProcessing {
			since = task.UpdatedAt
			if task.StartedAt != nil {
				since = *task.StartedAt
			}
		}
		if since.Before(before) {
			out = append(out, cloneTask(task))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListOlderThan implements store.TaskStore.ListOlderThan
func (s *MockTaskStore) ListOlderThan(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var tasks []*domain.Task
	for _, task := range s.tasks {
		if task.CreatedAt.Before(before) {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })

	ids := make([]uuid.UUID, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids, nil
}

// Delete implements store.TaskStore.Delete
func (s *MockTaskStore) Delete(ctx context.Context, ids ...uuid.UUID) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := s.tasks[id]; ok {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

// WithTx implements store.TaskStore.WithTx. The mock has no transactions,
// so it returns the same store.
func (s *MockTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return s
}

// Put stores task as-is, bypassing validation. Tests use it to seed state.
func (s *MockTaskStore) Put(task *domain.Task) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.tasks[task.ID] = cloneTask(task)
}

// Len returns the number of stored tasks.
func (s *MockTaskStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.tasks)
}

func (s *MockTaskStore) create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *MockTaskStore) transition(
	ctx context.Context,
	id uuid.UUID,
	to domain.TaskStatus,
	opts domain.TransitionOptions,
) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored, ok := s.tasks[id]
	if !ok {
		return false, store.ErrTaskNotFound
	}

	task := cloneTask(stored)
	applied, err := task.ApplyTransition(to, opts, s.Now())
	if err != nil || !applied {
		return false, err
	}
	s.tasks[id] = task
	return true, nil
}

func (s *MockTaskStore) updateProgress(ctx context.Context, id uuid.UUID, p domain.Progress) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return false, store.ErrTaskNotFound
	}
	if task.Status.IsTerminal() {
		return false, nil
	}
	task.Progress = task.Progress.Merge(p)
	task.UpdatedAt = s.Now()
	return true, nil
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	c.Payload = slices.Clone(t.Payload)
	if t.Result != nil {
		c.Result = json.RawMessage(slices.Clone(t.Result))
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.FinishedAt != nil {
		finished := *t.FinishedAt
		c.FinishedAt = &finished
	}
	return &c
}

// MockQuestionStore is an in-memory store.QuestionStore.
type MockQuestionStore struct {
	mutex     sync.Mutex
	questions map[uuid.UUID]*domain.Question

	SaveFn func(ctx context.Context, q *domain.Question) error
}

// NewMockQuestionStore creates a MockQuestionStore seeded with questions.
func NewMockQuestionStore(questions ...*domain.Question) *MockQuestionStore {
	s := &MockQuestionStore{questions: make(map[uuid.UUID]*domain.Question)}
	s.SaveFn = s.save
	for _, q := range questions {
		s.questions[q.ID] = cloneQuestion(q)
	}
	return s
}

var _ store.QuestionStore = (*MockQuestionStore)(nil)

// Get implements store.QuestionStore.Get
func (s *MockQuestionStore) Get(ctx context.Context, id uuid.UUID) (*domain.Question, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return nil, store.ErrQuestionNotFound
	}
	return cloneQuestion(q), nil
}

// List implements store.QuestionStore.List
func (s *MockQuestionStore) List(ctx context.Context, filter store.QuestionFilter) ([]*domain.Question, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var out []*domain.Question
	for _, q := range s.questions {
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, q.ID) {
			continue
		}
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		if filter.MissingCategory && q.Category != "" {
			continue
		}
		if filter.MissingEmoji && q.Emoji != "" {
			continue
		}
		out = append(out, cloneQuestion(q))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Save implements store.QuestionStore.Save
func (s *MockQuestionStore) Save(ctx context.Context, q *domain.Question) error {
	return s.SaveFn(ctx, q)
}

// WithTx implements store.QuestionStore.WithTx
func (s *MockQuestionStore) WithTx(tx *sql.Tx) store.QuestionStore {
	return s
}

// Len returns the number of stored questions.
func (s *MockQuestionStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.questions)
}

func (s *MockQuestionStore) save(ctx context.Context, q *domain.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	s.questions[q.ID] = cloneQuestion(q)
	return nil
}

func cloneQuestion(q *domain.Question) *domain.Question {
	c := *q
	if q.Text != nil {
		c.Text = make(map[string]string, len(q.Text))
		for k, v := range q.Text {
			c.Text[k] = v
		}
	}
	if q.Options != nil {
		c.Options = make(map[string][]string, len(q.Options))
		for k, v := range q.Options {
			c.Options[k] = slices.Clone(v)
		}
	}
	if q.Explanation != nil {
		c.Explanation = make(map[string]string, len(q.Explanation))
		for k, v := range q.Explanation {
			c.Explanation[k] = v
		}
	}
	return &c
}
