package worker

import (
	"context"
	"fmt"

	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/provider"
)

// MaxImportSize caps how many questions one import task accepts.
const MaxImportSize = 1000

type importPayload struct {
	Questions []provider.QuestionInput `json:"questions"`
}

type importPipeline struct {
	deps Deps
}

func (p *importPipeline) Run(ctx context.Context, task *domain.Task, progress *Progress) (*domain.TaskResult, error) {
	payload, err := decodePayload[importPayload](task.Payload)
	if err != nil {
		return nil, err
	}
	if len(payload.Questions) == 0 {
		return nil, fmt.Errorf("%w: import needs at least one question", domain.ErrValidation)
	}
	if len(payload.Questions) > MaxImportSize {
		return nil, fmt.Errorf("%w: import is limited to %d questions, got %d",
			domain.ErrValidation, MaxImportSize, len(payload.Questions))
	}

	total := len(payload.Questions)
	if err := progress.Report(ctx, domain.PhaseFiltering, 0, total,
		fmt.Sprintf("Checking %d questions for problems and duplicates", total)); err != nil {
		return nil, err
	}

	kept, invalid, duplicates, err := p.deps.screen(ctx, payload.Questions)
	if err != nil {
		return nil, err
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("none of the %d questions could be imported (%d invalid, %d duplicates)",
			total, invalid, duplicates)
	}

	if err := progress.Report(ctx, domain.PhaseSaving, total-len(kept), total,
		fmt.Sprintf("Saving %d questions", len(kept))); err != nil {
		return nil, err
	}
	if err := p.deps.persist(ctx, kept); err != nil {
		return nil, fmt.Errorf("failed to save questions: %w", err)
	}

	return &domain.TaskResult{
		Saved:       len(kept),
		Invalid:     invalid,
		Duplicates:  duplicates,
		QuestionIDs: questionIDs(kept),
		Details:     fmt.Sprintf("Imported %d of %d questions", len(kept), total),
	}, nil
}
