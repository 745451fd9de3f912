package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/domain"
)

// QuestionFilter narrows a question listing. Zero fields do not filter.
type QuestionFilter struct {
	IDs             []uuid.UUID
	Status          domain.QuestionStatus
	MissingCategory bool
	MissingEmoji    bool
	Limit           int
}

// QuestionStore persists quiz questions.
type QuestionStore interface {
	// Get retrieves a question by ID.
	// Returns ErrQuestionNotFound if the question does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Question, error)

	// List returns questions matching filter, oldest first.
	List(ctx context.Context, filter QuestionFilter) ([]*domain.Question, error)

	// Save inserts q or replaces the stored question with the same ID.
	// Returns domain validation errors if q is invalid.
	Save(ctx context.Context, q *domain.Question) error

	// WithTx returns a QuestionStore that runs every statement on tx.
	WithTx(tx *sql.Tx) QuestionStore
}
