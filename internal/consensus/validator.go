package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/provider"
	"github.com/phrazzld/quizrun-api/internal/similarity"
	"golang.org/x/sync/errgroup"
)

// DefaultCallTimeout bounds a single provider's validation call.
const DefaultCallTimeout = 60 * time.Second

// StructureSource prefixes issues found by local checks instead of a provider.
const StructureSource = "structure"

// Validator fans a question out to every validating provider and aggregates
// their verdicts.
type Validator struct {
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewValidator creates a Validator. A zero callTimeout selects
// DefaultCallTimeout.
func NewValidator(logger *slog.Logger, callTimeout time.Duration) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Validator{
		callTimeout: callTimeout,
		logger:      logger.With(slog.String("component", "consensus_validator")),
	}
}

// Validate asks every provider implementing provider.Validator to judge q,
// waits for all of them and aggregates the verdicts. A failing provider is
// recorded as unavailable and does not abort the round. Structural problems
// found locally are added as issues and make the question invalid.
func (v *Validator) Validate(ctx context.Context, q provider.QuestionInput, providers []*provider.Provider) (*Result, error) {
	log := logger.FromContextOrDefault(ctx, v.logger)

	var judges []*provider.Provider
	for _, p := range providers {
		if _, ok := provider.Capability[provider.Validator](p); ok {
			judges = append(judges, p)
		}
	}
	if len(judges) == 0 {
		return nil, fmt.Errorf("%w for validation", provider.ErrNoProviderConfigured)
	}

	verdicts := make([]ProviderVerdict, len(judges))
	var g errgroup.Group
	for i, p := range judges {
		g.Go(func() error {
			verdicts[i] = v.ask(ctx, log, p, q)
			return nil
		})
	}
	_ = g.Wait()

	res, err := Aggregate(verdicts)
	if err != nil {
		log.Warn("no provider returned a verdict",
			slog.Any("providers", provider.Names(judges)))
		return nil, err
	}

	if structural := StructuralIssues(q); len(structural) > 0 {
		for _, issue := range structural {
			res.Issues = append(res.Issues, fmt.Sprintf("[%s] %s", StructureSource, issue))
		}
		res.Valid = false
	}

	log.Debug("consensus reached",
		slog.Bool("valid", res.Valid),
		slog.Int("valid_votes", res.Consensus.Valid),
		slog.Int("invalid_votes", res.Consensus.Invalid),
		slog.Int("providers_checked", res.ProvidersChecked))
	return res, nil
}

func (v *Validator) ask(ctx context.Context, log *slog.Logger, p *provider.Provider, q provider.QuestionInput) (pv ProviderVerdict) {
	pv.Provider = p.Name
	defer func() {
		if r := recover(); r != nil {
			log.Error("provider panicked during validation",
				slog.String("provider", p.Name),
				slog.Any("panic", r))
			pv = ProviderVerdict{Provider: p.Name, Error: fmt.Sprintf("panic: %v", r), Unavailable: true}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, v.callTimeout)
	defer cancel()

	judge, _ := provider.Capability[provider.Validator](p)
	verdict, err := judge.ValidateQuestion(ctx, q)
	if err != nil {
		perr := &provider.ProviderError{Provider: p.Name, Op: "validate", Err: err}
		log.Warn("provider validation failed",
			slog.String("provider", p.Name),
			slog.String("error", perr.Error()))
		pv.Error = err.Error()
		pv.Unavailable = true
		return pv
	}

	pv.Verdict = verdict
	return pv
}

// StructuralIssues reports problems with q that need no provider to detect.
func StructuralIssues(q provider.QuestionInput) []string {
	var issues []string
	if len(q.Options) != domain.RequiredOptionCount {
		issues = append(issues, fmt.Sprintf("expected %d options, got %d", domain.RequiredOptionCount, len(q.Options)))
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		issues = append(issues, fmt.Sprintf("correct index %d is out of range", q.CorrectIndex))
	}
	for _, pair := range similarity.DuplicateOptions(q.Options, similarity.OptionThreshold) {
		issues = append(issues, fmt.Sprintf("options %d and %d are nearly identical (%.0f%% similar)",
			pair.First+1, pair.Second+1, pair.Similarity*100))
	}
	return issues
}
