// Package openai connects the quiz providers to OpenAI-compatible chat
// completion APIs. The same client serves OpenAI and Mistral; only the base
// URL and model differ.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/phrazzld/quizrun-api/internal/generation"
)

// Known endpoints and defaults
const (
	MistralBaseURL      = "https://api.mistral.ai/v1/"
	DefaultOpenAIModel  = "gpt-4o-mini"
	DefaultMistralModel = "mistral-small-latest"
	DefaultTimeout      = 30 * time.Second
)

// Config holds the settings of one OpenAI-compatible endpoint.
type Config struct {
	// Name labels logs, e.g. "openai" or "mistral".
	Name    string
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client is a generation.Completer backed by a chat completion endpoint.
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ generation.Completer = (*Client)(nil)

// New creates a client. Retries are left to the generation adapter.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s API key cannot be empty", generation.ErrInvalidConfig, cfg.Name)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: %s model cannot be empty", generation.ErrInvalidConfig, cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger: logger.With(
			slog.String("component", "openai"),
			slog.String("provider", cfg.Name),
			slog.String("model", cfg.Model)),
	}, nil
}

// Complete implements generation.Completer.
func (c *Client) Complete(ctx context.Context, p generation.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var messages []openai.ChatCompletionMessageParamUnion
	if p.System != "" {
		messages = append(messages, openai.SystemMessage(p.System))
	}
	messages = append(messages, openai.UserMessage(p.User))

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", generation.ErrInvalidResponse)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("%w: response blocked by content filter", generation.ErrContentBlocked)
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty text in response", generation.ErrInvalidResponse)
	}

	c.logger.DebugContext(ctx, "chat completion succeeded",
		slog.Duration("duration", time.Since(start)),
		slog.Int("response_length", len(text)))
	return text, nil
}

// mapError marks credential and model errors as permanent. Everything else,
// including rate limits, stays transient.
func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: %w", generation.ErrInvalidConfig, err)
		}
	}
	return fmt.Errorf("chat completion failed: %w", err)
}
