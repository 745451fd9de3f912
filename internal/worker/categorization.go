package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/provider"
	"github.com/phrazzld/quizrun-api/internal/store"
)

type categorizationPayload struct {
	QuestionIDs       []string `json:"questionIds"`
	Categories        []string `json:"categories"`
	Limit             int      `json:"limit"`
	PreferredProvider string   `json:"preferredProvider"`
}

type categorizationPipeline struct {
	deps Deps
}

func (p *categorizationPipeline) Run(ctx context.Context, task *domain.Task, progress *Progress) (*domain.TaskResult, error) {
	payload, err := decodePayload[categorizationPayload](task.Payload)
	if err != nil {
		return nil, err
	}
	ids, err := parseIDs(payload.QuestionIDs)
	if err != nil {
		return nil, err
	}
	categories := payload.Categories
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	providers, err := p.deps.Providers.ForPurpose(ctx, provider.PurposeMigration)
	if err != nil {
		return nil, err
	}

	questions, err := p.deps.loadQuestions(ctx, ids, store.QuestionFilter{MissingCategory: true}, payload.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	if len(questions) == 0 {
		return &domain.TaskResult{Details: "No questions need a category"}, nil
	}

	result := &domain.TaskResult{}
	categorized := make([]*domain.Question, 0, len(questions))
	for i, q := range questions {
		if err := progress.Report(ctx, domain.PhaseCategorizing, i, len(questions),
			fmt.Sprintf("Categorizing question %d of %d", i+1, len(questions))); err != nil {
			return nil, err
		}

		req := provider.CategorizeRequest{Question: inputFrom(q), Categories: categories}
		c, _, ok := provider.RunWithFallback(ctx, providers, payload.PreferredProvider,
			func(ctx context.Context, cat provider.Categorizer) (provider.Categorization, error) {
				return cat.Categorize(ctx, req)
			}, p.deps.fallback("categorize")...)
		category := strings.ToLower(strings.TrimSpace(c.Category))
		if !ok || category == "" {
			result.Failed++
			continue
		}

		q.Category = category
		if q.Difficulty == "" {
			q.Difficulty = c.Difficulty
		}
		categorized = append(categorized, q)
		result.Categorized++
	}

	if len(categorized) == 0 {
		return nil, fmt.Errorf("no provider could categorize any of the %d questions", len(questions))
	}

	if illustrators := p.deps.illustrationProviders(ctx); len(illustrators) > 0 {
		for _, q := range categorized {
			if q.Emoji != "" {
				continue
			}
			if p.deps.illustrate(ctx, illustrators, payload.PreferredProvider, q) {
				result.Illustrated++
			} else {
				result.Failed++
			}
		}
	}

	if err := progress.Report(ctx, domain.PhaseSaving, 0, len(categorized),
		fmt.Sprintf("Saving %d questions", len(categorized))); err != nil {
		return nil, err
	}
	if err := p.deps.persist(ctx, categorized); err != nil {
		return nil, fmt.Errorf("failed to save questions: %w", err)
	}

	result.Saved = len(categorized)
	result.QuestionIDs = questionIDs(categorized)
	result.Details = fmt.Sprintf("Categorized %d of %d questions", result.Categorized, len(questions))

	p.deps.log(ctx).Info("questions categorized",
		slog.Int("categorized", result.Categorized),
		slog.Int("failed", result.Failed))
	return result, nil
}
