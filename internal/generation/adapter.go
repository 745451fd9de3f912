package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/provider"
)

// Retry defaults
const (
	DefaultMaxRetries = 1
	DefaultRetryDelay = time.Second
)

// maxEmojiRunes allows multi-codepoint emoji such as flags and ZWJ sequences.
const maxEmojiRunes = 8

// Completer sends one prompt to a model and returns its text answer.
// Implementations wrap errors that will not go away on retry with
// ErrInvalidResponse, ErrContentBlocked or ErrInvalidConfig.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithRetry sets how often a transient failure is retried and the base
// delay of the exponential backoff between attempts.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(a *Adapter) {
		if maxRetries >= 0 {
			a.maxRetries = maxRetries
		}
		if delay > 0 {
			a.retryDelay = delay
		}
	}
}

// Adapter implements the provider capabilities on top of a Completer.
type Adapter struct {
	name       string
	completer  Completer
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

var (
	_ provider.Generator   = (*Adapter)(nil)
	_ provider.Categorizer = (*Adapter)(nil)
	_ provider.Illustrator = (*Adapter)(nil)
	_ provider.Validator   = (*Adapter)(nil)
	_ provider.Prober      = (*Adapter)(nil)
)

// NewAdapter creates an Adapter for the named provider.
func NewAdapter(name string, completer Completer, logger *slog.Logger, opts ...Option) (*Adapter, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: completer cannot be nil", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		name:       name,
		completer:  completer,
		logger:     logger.With(slog.String("component", "generation"), slog.String("provider", name)),
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

type generateResponse struct {
	Questions []provider.QuestionInput `json:"questions"`
}

// GenerateQuestions implements provider.Generator.
func (a *Adapter) GenerateQuestions(ctx context.Context, req provider.GenerateRequest) ([]provider.QuestionInput, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", domain.ErrValidation)
	}
	if req.Language == "" {
		req.Language = domain.DefaultLanguage
	}

	var resp generateResponse
	if err := a.ask(ctx, "generate.tmpl", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions in response", ErrInvalidResponse)
	}

	questions := make([]provider.QuestionInput, 0, len(resp.Questions))
	for _, q := range resp.Questions {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" {
			continue
		}
		q.Language = req.Language
		if q.Category == "" {
			q.Category = req.Category
		}
		if q.Difficulty == "" {
			q.Difficulty = req.Difficulty
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: every generated question was empty", ErrInvalidResponse)
	}
	return questions, nil
}

// Categorize implements provider.Categorizer. The answer must be one of the
// offered categories.
func (a *Adapter) Categorize(ctx context.Context, req provider.CategorizeRequest) (provider.Categorization, error) {
	var out provider.Categorization
	if err := a.ask(ctx, "categorize.tmpl", req, &out); err != nil {
		return provider.Categorization{}, err
	}

	chosen := strings.ToLower(strings.TrimSpace(out.Category))
	for _, c := range req.Categories {
		if strings.ToLower(c) == chosen {
			out.Category = c
			out.Confidence = clamp01(out.Confidence)
			out.Difficulty = strings.ToLower(strings.TrimSpace(out.Difficulty))
			return out, nil
		}
	}
	return provider.Categorization{}, fmt.Errorf("%w: category %q is not one of the offered categories",
		ErrInvalidResponse, out.Category)
}

type emojiResponse struct {
	Emoji string `json:"emoji"`
}

// GenerateEmoji implements provider.Illustrator.
func (a *Adapter) GenerateEmoji(ctx context.Context, q provider.QuestionInput) (string, error) {
	var out emojiResponse
	if err := a.ask(ctx, "emoji.tmpl", q, &out); err != nil {
		return "", err
	}
	emoji := strings.TrimSpace(out.Emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiRunes {
		return "", fmt.Errorf("%w: %q is not a single emoji", ErrInvalidResponse, out.Emoji)
	}
	return emoji, nil
}

// ValidateQuestion implements provider.Validator.
func (a *Adapter) ValidateQuestion(ctx context.Context, q provider.QuestionInput) (provider.Verdict, error) {
	var out provider.Verdict
	if err := a.ask(ctx, "validate.tmpl", q, &out); err != nil {
		return provider.Verdict{}, err
	}
	if out.Issues == nil {
		out.Issues = []string{}
	}
	if idx := out.SuggestedCorrectIndex; idx != nil && (*idx < 0 || *idx >= len(q.Options)) {
		out.SuggestedCorrectIndex = nil
	}
	return out, nil
}

// Probe implements provider.Prober with the smallest real request.
func (a *Adapter) Probe(ctx context.Context) error {
	var out struct {
		OK bool `json:"ok"`
	}
	p := Prompt{System: SystemPrompt, User: `Respond with {"ok": true}.`}
	text, err := a.complete(ctx, p, 0)
	if err != nil {
		return err
	}
	return decodeJSON(text, &out)
}

func (a *Adapter) ask(ctx context.Context, name string, data, out any) error {
	p, err := render(name, data)
	if err != nil {
		return err
	}
	text, err := a.complete(ctx, p, a.maxRetries)
	if err != nil {
		return err
	}
	return decodeJSON(text, out)
}

// complete calls the model, retrying transient failures with exponential
// backoff and jitter. Permanent failures are returned immediately.
func (a *Adapter) complete(ctx context.Context, p Prompt, maxRetries int) (string, error) {
	log := logger.FromContextOrDefault(ctx, a.logger)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.retryDelay
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0

	attempt := 0
	var text string
	op := func() error {
		attempt++
		var err error
		text, err = a.completer.Complete(ctx, p)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		log.Warn("model call failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx), notify)
	if err != nil {
		if IsPermanent(err) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrTransientFailure, err)
	}
	return text, nil
}
