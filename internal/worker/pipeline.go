package worker

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/batch"
	"github.com/phrazzld/quizrun-api/internal/consensus"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/provider"
	"github.com/phrazzld/quizrun-api/internal/similarity"
	"github.com/phrazzld/quizrun-api/internal/store"
)

// DefaultItemLimit caps how many stored questions one task processes when
// the payload names none.
const DefaultItemLimit = 100

// DefaultCategories are offered to categorizers when the payload lists none.
var DefaultCategories = []string{
	"general knowledge", "science", "history", "geography", "arts",
	"literature", "sports", "entertainment", "nature", "technology", "food",
}

// ProviderSource selects providers for a purpose.
type ProviderSource interface {
	ForPurpose(ctx context.Context, purpose provider.Purpose) ([]*provider.Provider, error)
}

// Deps are the collaborators pipelines share.
type Deps struct {
	Providers ProviderSource
	Questions store.QuestionStore
	Consensus *consensus.Validator
	Sink      batch.Sink
	BatchSize int
	// Rand, when set, drives the provider shuffle. Tests seed it.
	Rand   *rand.Rand
	Logger *slog.Logger
}

// Pipelines returns the pipeline for every task type.
func Pipelines(deps Deps) map[domain.TaskType]Pipeline {
	if deps.Sink == nil {
		deps.Sink = batch.Direct
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = batch.DefaultMaxBatchSize
	}
	if deps.Consensus == nil {
		deps.Consensus = consensus.NewValidator(deps.Logger, 0)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return map[domain.TaskType]Pipeline{
		domain.TaskTypeQuestionGeneration:     &generationPipeline{deps: deps},
		domain.TaskTypeQuestionCategorization: &categorizationPipeline{deps: deps},
		domain.TaskTypeQuestionValidation:     &validationPipeline{deps: deps},
		domain.TaskTypeQuestionImport:         &importPipeline{deps: deps},
		domain.TaskTypeIllustrationGeneration: &illustrationPipeline{deps: deps},
	}
}

func (d Deps) fallback(op string) []provider.FallbackOption {
	opts := []provider.FallbackOption{provider.WithOperation(op)}
	if d.Rand != nil {
		opts = append(opts, provider.WithRand(d.Rand))
	}
	return opts
}

func (d Deps) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOrDefault(ctx, d.Logger)
}

// persist saves questions through the batched writer.
func (d Deps) persist(ctx context.Context, questions []*domain.Question) error {
	mutations := make([]batch.Mutation, 0, len(questions))
	for _, q := range questions {
		mutations = append(mutations, batch.Mutation{
			Ref: q.ID.String(),
			Apply: func(ctx context.Context, tx *sql.Tx) error {
				s := d.Questions
				if tx != nil {
					s = s.WithTx(tx)
				}
				return s.Save(ctx, q)
			},
		})
	}
	return batch.Write(ctx, d.Sink, d.BatchSize, mutations)
}

// loadQuestions returns the named questions, or up to limit questions
// matching filter when ids is empty.
func (d Deps) loadQuestions(ctx context.Context, ids []uuid.UUID, filter store.QuestionFilter, limit int) ([]*domain.Question, error) {
	if len(ids) > 0 {
		return d.Questions.List(ctx, store.QuestionFilter{IDs: ids})
	}
	if limit <= 0 {
		limit = DefaultItemLimit
	}
	filter.Limit = limit
	return d.Questions.List(ctx, filter)
}

// illustrate asks the illustration providers for an emoji, falling back
// across them. It reports false when none answered.
func (d Deps) illustrate(ctx context.Context, providers []*provider.Provider, preferred string, q *domain.Question) bool {
	input := inputFrom(q)
	emoji, _, ok := provider.RunWithFallback(ctx, providers, preferred,
		func(ctx context.Context, il provider.Illustrator) (string, error) {
			return il.GenerateEmoji(ctx, input)
		}, d.fallback("illustrate")...)
	if !ok || emoji == "" {
		return false
	}
	q.Emoji = emoji
	return true
}

// illustrationProviders returns the illustration providers, or nil when
// none is configured. Illustration is optional inside other pipelines.
func (d Deps) illustrationProviders(ctx context.Context) []*provider.Provider {
	providers, err := d.Providers.ForPurpose(ctx, provider.PurposeIllustration)
	if err != nil {
		d.log(ctx).Warn("skipping illustration", slog.String("error", err.Error()))
		return nil
	}
	return providers
}

// screen drops candidates with structural problems and candidates that
// duplicate the stored corpus or an earlier candidate.
func (d Deps) screen(ctx context.Context, inputs []provider.QuestionInput) (kept []*domain.Question, invalid, duplicates int, err error) {
	candidates := make([]*domain.Question, 0, len(inputs))
	for _, in := range inputs {
		if issues := consensus.StructuralIssues(in); len(issues) > 0 {
			d.log(ctx).Debug("dropping malformed question",
				slog.String("question", in.Text),
				slog.Any("issues", issues))
			invalid++
			continue
		}
		q, qErr := questionFrom(in)
		if qErr != nil {
			invalid++
			continue
		}
		candidates = append(candidates, q)
	}
	if len(candidates) == 0 {
		return nil, invalid, 0, nil
	}

	corpus, err := d.Questions.List(ctx, store.QuestionFilter{})
	if err != nil {
		return nil, invalid, 0, fmt.Errorf("failed to load existing questions: %w", err)
	}

	dupes := make(map[string]bool)
	for _, pair := range similarity.FindDuplicatesAgainst(items(candidates), items(corpus),
		domain.DefaultLanguage, similarity.DuplicateThreshold) {
		dupes[pair.Question1] = true
	}

	for _, q := range candidates {
		if dupes[q.ID.String()] {
			duplicates++
			continue
		}
		kept = append(kept, q)
	}
	return kept, invalid, duplicates, nil
}

func items(questions []*domain.Question) []similarity.Item {
	out := make([]similarity.Item, len(questions))
	for i, q := range questions {
		out[i] = similarity.Item{ID: q.ID.String(), Text: q.Text}
	}
	return out
}

func inputFrom(q *domain.Question) provider.QuestionInput {
	return provider.QuestionInput{
		Text:         q.TextIn(domain.DefaultLanguage),
		Options:      q.OptionsIn(domain.DefaultLanguage),
		CorrectIndex: q.CorrectIndex,
		Explanation:  q.ExplanationIn(domain.DefaultLanguage),
		Category:     q.Category,
		Difficulty:   q.Difficulty,
		Language:     domain.DefaultLanguage,
	}
}

func questionFrom(in provider.QuestionInput) (*domain.Question, error) {
	q, err := domain.NewQuestion(in.Text, in.Options, in.CorrectIndex, in.Explanation)
	if err != nil {
		return nil, err
	}
	q.Category = in.Category
	q.Difficulty = in.Difficulty
	return q, nil
}

// decodePayload decodes a task payload into T.
func decodePayload[T any](raw json.RawMessage) (T, error) {
	var p T
	if len(bytes.TrimSpace(raw)) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: invalid task payload: %v", domain.ErrValidation, err)
	}
	return p, nil
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid question id %q", domain.ErrInvalidID, s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func questionIDs(questions []*domain.Question) []uuid.UUID {
	ids := make([]uuid.UUID, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}
