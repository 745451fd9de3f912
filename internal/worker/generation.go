package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/provider"
)

// Generation limits
const (
	DefaultGenerateCount = 10
	MaxGenerateCount     = 50
)

type generationPayload struct {
	Count             int    `json:"count"`
	Topic             string `json:"topic"`
	Category          string `json:"category"`
	Difficulty        string `json:"difficulty"`
	PreferredProvider string `json:"preferredProvider"`
	Validate          bool   `json:"validate"`
	Illustrate        *bool  `json:"illustrate"`
}

type generationPipeline struct {
	deps Deps
}

func (p *generationPipeline) Run(ctx context.Context, task *domain.Task, progress *Progress) (*domain.TaskResult, error) {
	payload, err := decodePayload[generationPayload](task.Payload)
	if err != nil {
		return nil, err
	}
	count := payload.Count
	if count <= 0 {
		count = DefaultGenerateCount
	}
	count = min(count, MaxGenerateCount)

	providers, err := p.deps.Providers.ForPurpose(ctx, provider.PurposeGeneration)
	if err != nil {
		return nil, err
	}

	if err := progress.Report(ctx, domain.PhaseGenerating, 0, count,
		fmt.Sprintf("Asking AI for %d questions", count)); err != nil {
		return nil, err
	}

	req := provider.GenerateRequest{
		Topic:      payload.Topic,
		Category:   payload.Category,
		Difficulty: payload.Difficulty,
		Count:      count,
		Language:   domain.DefaultLanguage,
	}
	generated, used, ok := provider.RunWithFallback(ctx, providers, payload.PreferredProvider,
		func(ctx context.Context, g provider.Generator) ([]provider.QuestionInput, error) {
			return g.GenerateQuestions(ctx, req)
		}, p.deps.fallback("generate")...)
	if !ok {
		return nil, fmt.Errorf("no AI provider could generate questions")
	}

	result := &domain.TaskResult{Generated: len(generated), Provider: used.Name}

	if err := progress.Report(ctx, domain.PhaseFiltering, len(generated), count,
		fmt.Sprintf("Checking %d generated questions for problems and duplicates", len(generated))); err != nil {
		return nil, err
	}
	kept, invalid, duplicates, err := p.deps.screen(ctx, generated)
	if err != nil {
		return nil, err
	}
	result.Invalid = invalid
	result.Duplicates = duplicates

	if payload.Validate && len(kept) > 0 {
		kept, err = p.validate(ctx, kept, result, progress)
		if err != nil {
			return nil, err
		}
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("none of the %d generated questions survived filtering (%d invalid, %d duplicates)",
			len(generated), result.Invalid, result.Duplicates)
	}

	if payload.Illustrate == nil || *payload.Illustrate {
		if illustrators := p.deps.illustrationProviders(ctx); len(illustrators) > 0 {
			for i, q := range kept {
				if err := progress.Report(ctx, domain.PhaseIllustrating, i, len(kept),
					fmt.Sprintf("Adding emoji %d of %d", i+1, len(kept))); err != nil {
					return nil, err
				}
				if p.deps.illustrate(ctx, illustrators, payload.PreferredProvider, q) {
					result.Illustrated++
				} else {
					result.Failed++
				}
			}
		}
	}

	if err := progress.Report(ctx, domain.PhaseSaving, 0, len(kept),
		fmt.Sprintf("Saving %d questions", len(kept))); err != nil {
		return nil, err
	}
	if err := p.deps.persist(ctx, kept); err != nil {
		return nil, fmt.Errorf("failed to save questions: %w", err)
	}

	result.Saved = len(kept)
	result.QuestionIDs = questionIDs(kept)
	result.Details = fmt.Sprintf("Saved %d of %d generated questions", result.Saved, result.Generated)

	p.deps.log(ctx).Info("questions generated",
		slog.String("provider", used.Name),
		slog.Int("generated", result.Generated),
		slog.Int("saved", result.Saved))
	return result, nil
}

// validate runs consensus on each question and keeps the approved ones.
// A question no provider could judge counts as a failed item.
func (p *generationPipeline) validate(ctx context.Context, questions []*domain.Question, result *domain.TaskResult, progress *Progress) ([]*domain.Question, error) {
	validators, err := p.deps.Providers.ForPurpose(ctx, provider.PurposeValidation)
	if err != nil {
		return nil, err
	}

	kept := questions[:0:0]
	for i, q := range questions {
		if err := progress.Report(ctx, domain.PhaseValidating, i, len(questions),
			fmt.Sprintf("Validating question %d of %d", i+1, len(questions))); err != nil {
			return nil, err
		}

		verdict, err := p.deps.Consensus.Validate(ctx, inputFrom(q), validators)
		if err != nil {
			result.Failed++
			continue
		}
		result.Validated++
		applyVerdict(q, verdict)
		if !verdict.Valid {
			result.Invalid++
			result.InvalidCount++
			continue
		}
		result.ValidCount++
		kept = append(kept, q)
	}
	return kept, nil
}
