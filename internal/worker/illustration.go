package worker

import (
	"context"
	"fmt"

	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/provider"
	"github.com/phrazzld/quizrun-api/internal/store"
)

type illustrationPayload struct {
	QuestionIDs       []string `json:"questionIds"`
	Limit             int      `json:"limit"`
	PreferredProvider string   `json:"preferredProvider"`
}

type illustrationPipeline struct {
	deps Deps
}

func (p *illustrationPipeline) Run(ctx context.Context, task *domain.Task, progress *Progress) (*domain.TaskResult, error) {
	payload, err := decodePayload[illustrationPayload](task.Payload)
	if err != nil {
		return nil, err
	}
	ids, err := parseIDs(payload.QuestionIDs)
	if err != nil {
		return nil, err
	}

	providers, err := p.deps.Providers.ForPurpose(ctx, provider.PurposeIllustration)
	if err != nil {
		return nil, err
	}

	questions, err := p.deps.loadQuestions(ctx, ids, store.QuestionFilter{MissingEmoji: true}, payload.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	if len(questions) == 0 {
		return &domain.TaskResult{Details: "No questions need an emoji"}, nil
	}

	result := &domain.TaskResult{}
	illustrated := make([]*domain.Question, 0, len(questions))
	for i, q := range questions {
		if err := progress.Report(ctx, domain.PhaseIllustrating, i, len(questions),
			fmt.Sprintf("Adding emoji %d of %d", i+1, len(questions))); err != nil {
			return nil, err
		}
		if !p.deps.illustrate(ctx, providers, payload.PreferredProvider, q) {
			result.Failed++
			continue
		}
		illustrated = append(illustrated, q)
		result.Illustrated++
	}

	if len(illustrated) == 0 {
		return nil, fmt.Errorf("no provider could illustrate any of the %d questions", len(questions))
	}

	if err := progress.Report(ctx, domain.PhaseSaving, 0, len(illustrated),
		fmt.Sprintf("Saving %d questions", len(illustrated))); err != nil {
		return nil, err
	}
	if err := p.deps.persist(ctx, illustrated); err != nil {
		return nil, fmt.Errorf("failed to save questions: %w", err)
	}

	result.Saved = len(illustrated)
	result.QuestionIDs = questionIDs(illustrated)
	result.Details = fmt.Sprintf("Added emoji to %d of %d questions", result.Illustrated, len(questions))
	return result, nil
}
