package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/quizrun-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completion(content, finishReason string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": finishReason,
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func newServer(t *testing.T, status int, body string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.Path, "chat/completions")
		if seen != nil {
			raw, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Config{
		Name:    "mistral",
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: srv.URL + "/",
		Timeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Name: "openai", Model: "m"}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = New(Config{Name: "openai", APIKey: "k"}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestComplete(t *testing.T) {
	var seen chatRequest
	srv := newServer(t, http.StatusOK, completion(` {"ok": true} `, "stop"), &seen)

	text, err := newTestClient(t, srv).Complete(context.Background(), generation.Prompt{System: "json only", User: "ping"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, text)

	assert.Equal(t, "test-model", seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, "json only", seen.Messages[0].Content)
	assert.Equal(t, "user", seen.Messages[1].Role)
	assert.Equal(t, "ping", seen.Messages[1].Content)
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		transient bool
	}{
		{"content filter", http.StatusOK, completion("", "content_filter"), generation.ErrContentBlocked, false},
		{"empty answer", http.StatusOK, completion("   ", "stop"), generation.ErrInvalidResponse, false},
		{"bad key", http.StatusUnauthorized, `{"error": {"message": "invalid api key"}}`, generation.ErrInvalidConfig, false},
		{"rate limited", http.StatusTooManyRequests, `{"error": {"message": "slow down"}}`, nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, tc.status, tc.body, nil)
			_, err := newTestClient(t, srv).Complete(context.Background(), generation.Prompt{User: "ping"})
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			assert.Equal(t, !tc.transient, generation.IsPermanent(err))
		})
	}
}
