package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/quizrun-api/internal/consensus"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/provider"
	"github.com/phrazzld/quizrun-api/internal/store"
)

type validationPayload struct {
	Question    *provider.QuestionInput `json:"question"`
	QuestionIDs []string                `json:"questionIds"`
	Limit       int                     `json:"limit"`
}

type validationPipeline struct {
	deps Deps
}

func (p *validationPipeline) Run(ctx context.Context, task *domain.Task, progress *Progress) (*domain.TaskResult, error) {
	payload, err := decodePayload[validationPayload](task.Payload)
	if err != nil {
		return nil, err
	}
	ids, err := parseIDs(payload.QuestionIDs)
	if err != nil {
		return nil, err
	}

	providers, err := p.deps.Providers.ForPurpose(ctx, provider.PurposeValidation)
	if err != nil {
		return nil, err
	}

	if payload.Question != nil {
		return p.single(ctx, *payload.Question, providers, progress)
	}

	questions, err := p.deps.loadQuestions(ctx, ids, store.QuestionFilter{Status: domain.QuestionStatusDraft}, payload.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	if len(questions) == 0 {
		return &domain.TaskResult{Details: "No questions to validate"}, nil
	}

	result := &domain.TaskResult{}
	for i, q := range questions {
		if err := progress.Report(ctx, domain.PhaseValidating, i, len(questions),
			fmt.Sprintf("Validating question %d of %d", i+1, len(questions))); err != nil {
			return nil, err
		}

		verdict, err := p.deps.Consensus.Validate(ctx, inputFrom(q), providers)
		if errors.Is(err, consensus.ErrConsensusUnavailable) {
			result.Failed++
			continue
		}
		if err != nil {
			return nil, err
		}

		applyVerdict(q, verdict)
		if err := p.deps.Questions.Save(ctx, q); err != nil {
			p.deps.log(ctx).Warn("failed to save validation outcome",
				slog.String("question_id", q.ID.String()),
				slog.String("error", err.Error()))
			result.Failed++
			continue
		}

		result.Validated++
		if verdict.Valid {
			result.ValidCount++
		} else {
			result.InvalidCount++
		}
	}

	if result.Validated == 0 {
		return nil, fmt.Errorf("no provider could validate any of the %d questions", len(questions))
	}

	result.Details = fmt.Sprintf("Validated %d questions: %d approved, %d rejected",
		result.Validated, result.ValidCount, result.InvalidCount)
	if result.Failed > 0 {
		result.Details += fmt.Sprintf(", %d could not be checked", result.Failed)
	}
	return result, nil
}

func (p *validationPipeline) single(ctx context.Context, q provider.QuestionInput, providers []*provider.Provider, progress *Progress) (*domain.TaskResult, error) {
	if err := progress.Report(ctx, domain.PhaseValidating, 0, 1, "Asking AI providers to check the question"); err != nil {
		return nil, err
	}

	verdict, err := p.deps.Consensus.Validate(ctx, q, providers)
	if err != nil {
		return nil, err
	}

	valid := verdict.Valid
	result := &domain.TaskResult{
		Validated:        1,
		Valid:            &valid,
		Issues:           verdict.Issues,
		ProvidersChecked: verdict.ProvidersChecked,
		ValidCount:       verdict.Consensus.Valid,
		InvalidCount:     verdict.Consensus.Invalid,
	}
	if valid {
		result.Details = fmt.Sprintf("Question is valid (%d of %d providers agreed)",
			verdict.Consensus.Valid, verdict.Consensus.Total)
	} else {
		result.Details = fmt.Sprintf("Question is invalid (%d of %d providers found problems)",
			verdict.Consensus.Invalid, verdict.Consensus.Total)
	}
	return result, nil
}

// applyVerdict records a consensus outcome on q.
func applyVerdict(q *domain.Question, verdict *consensus.Result) {
	q.Status = domain.QuestionStatusApproved
	if !verdict.Valid {
		q.Status = domain.QuestionStatusRejected
	}

	notes := append([]string(nil), verdict.Issues...)
	if !verdict.Valid && verdict.SuggestedCorrectIndex != nil {
		notes = append(notes, fmt.Sprintf("Suggested correct option: %d", *verdict.SuggestedCorrectIndex+1))
	}
	q.ValidationNotes = strings.Join(notes, "\n")
}
