package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/api/shared"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/provider"
	"github.com/phrazzld/quizrun-api/internal/service/auth"
	"github.com/phrazzld/quizrun-api/internal/store"
	"github.com/phrazzld/quizrun-api/internal/task"
	"github.com/phrazzld/quizrun-api/internal/worker"
)

type mockTaskService struct {
	CreateTaskFn      func(ctx context.Context, req task.CreateRequest) (*domain.Task, error)
	GetFn             func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	ListFn            func(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error)
	CancelFn          func(ctx context.Context, ids ...uuid.UUID) (task.OperationResult, error)
	DeleteFn          func(ctx context.Context, ids ...uuid.UUID) (task.OperationResult, error)
	DeleteOlderThanFn func(ctx context.Context, hours int) (task.OperationResult, error)
	ReapStuckFn       func(ctx context.Context) (task.ReapResult, error)
}

var _ TaskService = (*mockTaskService)(nil)

func (m *mockTaskService) CreateTask(ctx context.Context, req task.CreateRequest) (*domain.Task, error) {
	return m.CreateTaskFn(ctx, req)
}

func (m *mockTaskService) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return m.GetFn(ctx, id)
}

func (m *mockTaskService) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	return m.ListFn(ctx, filter)
}

func (m *mockTaskService) Cancel(ctx context.Context, ids ...uuid.UUID) (task.OperationResult, error) {
	return m.CancelFn(ctx, ids...)
}

func (m *mockTaskService) Delete(ctx context.Context, ids ...uuid.UUID) (task.OperationResult, error) {
	return m.DeleteFn(ctx, ids...)
}

func (m *mockTaskService) DeleteOlderThan(ctx context.Context, hours int) (task.OperationResult, error) {
	return m.DeleteOlderThanFn(ctx, hours)
}

func (m *mockTaskService) ReapStuck(ctx context.Context) (task.ReapResult, error) {
	return m.ReapStuckFn(ctx)
}

type runnerFunc func(ctx context.Context, id uuid.UUID) (worker.Outcome, error)

func (f runnerFunc) Run(ctx context.Context, id uuid.UUID) (worker.Outcome, error) {
	return f(ctx, id)
}

type stubStatus struct {
	snapshot    provider.Snapshot
	invalidated int
}

func (s *stubStatus) Status(context.Context) provider.Snapshot { return s.snapshot }
func (s *stubStatus) Invalidate()                              { s.invalidated++ }

func userClaims(id uuid.UUID) *auth.Claims {
	return &auth.Claims{UserID: id, Role: auth.RoleUser}
}

func adminClaims() *auth.Claims {
	return &auth.Claims{UserID: uuid.New(), Role: auth.RoleAdmin}
}

// newRequest builds a request carrying claims, a discarding logger and the
// given chi path parameters.
func newRequest(method, target, body string, claims *auth.Claims, params map[string]string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := logger.WithLogger(r.Context(), logger.Discard())
	if claims != nil {
		ctx = shared.WithClaims(ctx, claims)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return r.WithContext(ctx)
}
