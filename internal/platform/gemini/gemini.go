package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/quizrun-api/internal/generation"
	"google.golang.org/genai"
)

// Defaults
const (
	DefaultModel   = "gemini-2.0-flash"
	DefaultTimeout = 30 * time.Second
)

// Config holds the Gemini client settings.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// contentGenerator is the part of genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Client is a generation.Completer backed by the Gemini API.
type Client struct {
	models  contentGenerator
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ generation.Completer = (*Client)(nil)

// New creates a Gemini client.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	cfg, err := validateConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}
	return newClient(client.Models, cfg, logger), nil
}

func newClient(models contentGenerator, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		models:  models,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger.With(slog.String("component", "gemini"), slog.String("model", cfg.Model)),
	}
}

// Complete implements generation.Completer.
func (c *Client) Complete(ctx context.Context, p generation.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if p.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: p.System}}}
	}

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(p.User), config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text, err := textFrom(resp)
	if err != nil {
		return "", err
	}
	c.logger.DebugContext(ctx, "gemini call succeeded",
		slog.Duration("duration", time.Since(start)),
		slog.Int("response_length", len(text)))
	return text, nil
}

// textFrom joins the text parts of the first candidate.
func textFrom(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: response blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty text in response", generation.ErrInvalidResponse)
	}
	return text, nil
}
