package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/store"
)

const questionColumns = `id, text, options, correct_index, explanation, category, difficulty,
	emoji, status, validation_notes, created_at, updated_at`

// PostgresQuestionStore implements store.QuestionStore on PostgreSQL.
// Localized fields are stored as JSONB objects keyed by language.
type PostgresQuestionStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresQuestionStore creates a new PostgresQuestionStore.
// If logger is nil, a default logger will be used.
func NewPostgresQuestionStore(db store.DBTX, logger *slog.Logger) *PostgresQuestionStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresQuestionStore{
		db:     db,
		logger: logger.With(slog.String("component", "question_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ store.QuestionStore = (*PostgresQuestionStore)(nil)

// WithTx implements store.QuestionStore.WithTx
func (s *PostgresQuestionStore) WithTx(tx *sql.Tx) store.QuestionStore {
	return &PostgresQuestionStore{db: tx, logger: s.logger, now: s.now}
}

// Get implements store.QuestionStore.Get
func (s *PostgresQuestionStore) Get(ctx context.Context, id uuid.UUID) (*domain.Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrQuestionNotFound
		}
		return nil, wrapError("question", "get", err)
	}
	return q, nil
}

// List implements store.QuestionStore.List
func (s *PostgresQuestionStore) List(ctx context.Context, filter store.QuestionFilter) ([]*domain.Question, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.IDs) > 0 {
		args = append(args, uuidStrings(filter.IDs))
		where = append(where, fmt.Sprintf("id = ANY($%d::uuid[])", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.MissingCategory {
		where = append(where, "category = ''")
	}
	if filter.MissingEmoji {
		where = append(where, "emoji = ''")
	}

	query := `SELECT ` + questionColumns + ` FROM questions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("question", "list", err)
	}
	defer func() { _ = rows.Close() }()

	var questions []*domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating question rows: %w", err)
	}
	return questions, nil
}

// Save implements store.QuestionStore.Save
func (s *PostgresQuestionStore) Save(ctx context.Context, q *domain.Question) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := q.Validate(); err != nil {
		return err
	}

	now := s.now()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now

	text, err := json.Marshal(q.Text)
	if err != nil {
		return fmt.Errorf("failed to encode question text: %w", err)
	}
	options, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("failed to encode question options: %w", err)
	}
	explanation := []byte("{}")
	if len(q.Explanation) > 0 {
		if explanation, err = json.Marshal(q.Explanation); err != nil {
			return fmt.Errorf("failed to encode question explanation: %w", err)
		}
	}

	query := `
		INSERT INTO questions (` + questionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			options = EXCLUDED.options,
			correct_index = EXCLUDED.correct_index,
			explanation = EXCLUDED.explanation,
			category = EXCLUDED.category,
			difficulty = EXCLUDED.difficulty,
			emoji = EXCLUDED.emoji,
			status = EXCLUDED.status,
			validation_notes = EXCLUDED.validation_notes,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		q.ID,
		string(text),
		string(options),
		q.CorrectIndex,
		string(explanation),
		q.Category,
		q.Difficulty,
		q.Emoji,
		string(q.Status),
		q.ValidationNotes,
		q.CreatedAt,
		q.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save question",
			slog.String("error", err.Error()),
			slog.String("question_id", q.ID.String()))
		return wrapError("question", "save", err)
	}
	return nil
}

func scanQuestion(row rowScanner) (*domain.Question, error) {
	var (
		q           domain.Question
		text        []byte
		options     []byte
		explanation []byte
	)
	err := row.Scan(
		&q.ID,
		&text,
		&options,
		&q.CorrectIndex,
		&explanation,
		&q.Category,
		&q.Difficulty,
		&q.Emoji,
		&q.Status,
		&q.ValidationNotes,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(text, &q.Text); err != nil {
		return nil, fmt.Errorf("failed to decode question text: %w", err)
	}
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return nil, fmt.Errorf("failed to decode question options: %w", err)
	}
	if len(explanation) > 0 {
		if err := json.Unmarshal(explanation, &q.Explanation); err != nil {
			return nil, fmt.Errorf("failed to decode question explanation: %w", err)
		}
		if len(q.Explanation) == 0 {
			q.Explanation = nil
		}
	}
	q.CreatedAt = q.CreatedAt.UTC()
	q.UpdatedAt = q.UpdatedAt.UTC()
	return &q, nil
}
