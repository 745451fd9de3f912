package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/api"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/provider"
	"github.com/phrazzld/quizrun-api/internal/service/auth"
	"github.com/phrazzld/quizrun-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	path   string
	query  string
	auth   string
	body   []byte
}

// fakeAPI answers every request with status and body, recording the request.
func fakeAPI(t *testing.T, status int, body any) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.auth = r.Header.Get("Authorization")
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		got.body = buf.Bytes()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func execute(t *testing.T, server string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--server", server, "--token", "test-token"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func sampleTask(status domain.TaskStatus) api.TaskResponse {
	return api.TaskResponse{
		TaskID:    uuid.MustParse("6f1c1a43-64a4-4b8e-9a35-0d0f6a1b8d2e"),
		TaskType:  domain.TaskTypeQuestionGeneration,
		Status:    string(status),
		Label:     "volcanoes",
		Progress:  domain.Progress{Phase: "generating", Completed: 2, Total: 5},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC),
	}
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "quizctl", cmd.Use)

	for _, name := range []string{"submit", "status", "list", "cancel", "delete", "cleanup", "reap", "health", "token"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, "command %s should exist", name)
		assert.Equal(t, name, sub.Name())
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, FormatText, format.DefValue)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("server"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("token"))
}

func TestSubmit(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusAccepted, sampleTask(domain.TaskStatusPending))

	stdout, _, err := execute(t, srv.URL, "submit",
		"--type", "question_generation",
		"--payload", `{"topic":"volcanoes","count":5}`,
		"--label", "volcanoes")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/tasks", got.path)
	assert.Equal(t, "Bearer test-token", got.auth)

	var req api.CreateTaskRequest
	require.NoError(t, json.Unmarshal(got.body, &req))
	assert.Equal(t, "question_generation", req.TaskType)
	assert.Equal(t, "volcanoes", req.Label)
	assert.JSONEq(t, `{"topic":"volcanoes","count":5}`, string(req.Payload))

	assert.Equal(t, "submitted 6f1c1a43-64a4-4b8e-9a35-0d0f6a1b8d2e (pending)\n", stdout)
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusAccepted, sampleTask(domain.TaskStatusPending))

	_, _, err := execute(t, srv.URL, "submit", "--type", "question_generation", "--payload", "{not json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Empty(t, got.method, "no request should be sent")
}

func TestSubmitDispatchFailure(t *testing.T) {
	stored := sampleTask(domain.TaskStatusFailed)
	stored.Error = "dispatch failed"
	srv, _ := fakeAPI(t, http.StatusBadGateway, stored)

	t.Run("text", func(t *testing.T) {
		_, stderr, err := execute(t, srv.URL, "submit", "--type", "question_generation")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, stderr, "6f1c1a43-64a4-4b8e-9a35-0d0f6a1b8d2e")
		assert.Contains(t, stderr, "not dispatched")
	})

	t.Run("json", func(t *testing.T) {
		stdout, _, err := execute(t, srv.URL, "--format", "json", "submit", "--type", "question_generation")
		require.Error(t, err)

		var env struct {
			Status string           `json:"status"`
			Data   api.TaskResponse `json:"data"`
			Error  APIError         `json:"error"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &env))
		assert.Equal(t, "error", env.Status)
		assert.Equal(t, stored.TaskID, env.Data.TaskID)
		assert.Equal(t, http.StatusBadGateway, env.Error.StatusCode)
	})
}

func TestStatus(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, sampleTask(domain.TaskStatusProcessing))

	stdout, _, err := execute(t, srv.URL, "status", "6f1c1a43-64a4-4b8e-9a35-0d0f6a1b8d2e")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/api/tasks/6f1c1a43-64a4-4b8e-9a35-0d0f6a1b8d2e", got.path)
	assert.Contains(t, stdout, "processing")
	assert.Contains(t, stdout, "generating 2/5")
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		status   int
		body     any
		wantCode int
		wantMsg  string
	}{
		{
			name:     "not found",
			args:     []string{"status", uuid.NewString()},
			status:   http.StatusNotFound,
			body:     map[string]string{"error": "Task not found", "trace_id": "abc123"},
			wantCode: ExitFailure,
			wantMsg:  "404 Task not found (trace abc123)",
		},
		{
			name:     "invalid id",
			args:     []string{"status", "not-a-uuid"},
			status:   http.StatusOK,
			wantCode: ExitCommandError,
			wantMsg:  "invalid task id",
		},
		{
			name:     "bad format",
			args:     []string{"--format", "yaml", "status", uuid.NewString()},
			status:   http.StatusOK,
			wantCode: ExitCommandError,
			wantMsg:  "invalid format",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := fakeAPI(t, tc.status, tc.body)
			_, _, err := execute(t, srv.URL, tc.args...)
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, GetExitCode(err))
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestUnreachableServer(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusOK, nil)
	url := srv.URL
	srv.Close()

	_, _, err := execute(t, url, "reap")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestList(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, api.TaskListResponse{
		Tasks: []api.TaskResponse{sampleTask(domain.TaskStatusQueued)},
	})

	stdout, _, err := execute(t, srv.URL, "list",
		"--type", "question_generation", "--status", "queued,processing", "--limit", "5")
	require.NoError(t, err)

	assert.Equal(t, "/api/tasks", got.path)
	assert.Equal(t, "limit=5&status=queued%2Cprocessing&type=question_generation", got.query)
	assert.Contains(t, stdout, "ID")
	assert.Contains(t, stdout, "6f1c1a43-64a4-4b8e-9a35-0d0f6a1b8d2e")
}

func TestBulkCommands(t *testing.T) {
	ids := []string{uuid.NewString(), uuid.NewString()}
	tests := []struct {
		command string
		path    string
	}{
		{"cancel", "/api/admin/tasks/cancel"},
		{"delete", "/api/admin/tasks/delete"},
	}

	for _, tc := range tests {
		t.Run(tc.command, func(t *testing.T) {
			srv, got := fakeAPI(t, http.StatusOK, task.OperationResult{Requested: 2, Affected: 1, Skipped: 1})

			stdout, _, err := execute(t, srv.URL, append([]string{tc.command}, ids...)...)
			require.NoError(t, err)

			assert.Equal(t, http.MethodPost, got.method)
			assert.Equal(t, tc.path, got.path)
			var req api.TaskIDsRequest
			require.NoError(t, json.Unmarshal(got.body, &req))
			require.Len(t, req.IDs, 2)
			assert.Equal(t, ids[0], req.IDs[0].String())
			assert.Equal(t, "requested 2, affected 1, skipped 1, not found 0\n", stdout)
		})
	}

	t.Run("bad id", func(t *testing.T) {
		srv, got := fakeAPI(t, http.StatusOK, task.OperationResult{})
		_, _, err := execute(t, srv.URL, "cancel", ids[0], "nope")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Empty(t, got.method)
	})
}

func TestCleanup(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, task.OperationResult{Requested: 3, Affected: 3})

	_, _, err := execute(t, srv.URL, "cleanup", "--older-than-hours", "48")
	require.NoError(t, err)
	assert.Equal(t, "/api/admin/tasks/cleanup", got.path)
	assert.JSONEq(t, `{"olderThanHours":48}`, string(got.body))

	_, _, err = execute(t, srv.URL, "cleanup", "--older-than-hours", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReapJSON(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, api.ReapResponse{
		ReapResult: task.ReapResult{Pending: 1, Processing: 2},
		Total:      3,
	})

	stdout, _, err := execute(t, srv.URL, "--format", "json", "reap")
	require.NoError(t, err)
	assert.Equal(t, "/api/admin/tasks/reap", got.path)

	var env struct {
		Status string           `json:"status"`
		Data   api.ReapResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &env))
	assert.Equal(t, "ok", env.Status)
	assert.Equal(t, 3, env.Data.Total)
	assert.Equal(t, 2, env.Data.Processing)
}

func TestHealth(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, provider.Snapshot{
		Providers: map[string]provider.ProviderStatus{
			"openai": {Configured: true, Available: true, Model: "gpt-4o-mini"},
			"gemini": {Configured: false},
		},
		PrimaryProvider: "openai",
		Message:         "1 of 3 providers available",
	})

	stdout, _, err := execute(t, srv.URL, "health", "--refresh")
	require.NoError(t, err)

	assert.Equal(t, "/api/providers/health", got.path)
	assert.Equal(t, "refresh=true", got.query)
	assert.Less(t, strings.Index(stdout, "gemini"), strings.Index(stdout, "openai"))
	assert.Contains(t, stdout, "primary: openai")
}

func TestToken(t *testing.T) {
	secret := strings.Repeat("s", 40)
	t.Setenv(SecretEnv, secret)
	userID := uuid.New()

	stdout, _, err := execute(t, "http://unused.invalid", "token", "--user-id", userID.String())
	require.NoError(t, err)

	svc, err := auth.NewJWTService(secret, time.Hour)
	require.NoError(t, err)
	claims, err := svc.ValidateToken(context.Background(), strings.TrimSpace(stdout))
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.True(t, claims.IsAdmin())
}

func TestTokenErrors(t *testing.T) {
	t.Setenv(SecretEnv, "")

	tests := []struct {
		name string
		args []string
	}{
		{"missing secret", []string{"token"}},
		{"short secret", []string{"token", "--secret", "short"}},
		{"bad role", []string{"token", "--secret", strings.Repeat("s", 40), "--role", "root"}},
		{"bad user id", []string{"token", "--secret", strings.Repeat("s", 40), "--user-id", "x"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := execute(t, "http://unused.invalid", tc.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}
