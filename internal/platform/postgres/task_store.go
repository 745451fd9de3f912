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

const taskColumns = `id, task_type, status, user_id, label, description, payload, progress,
	result, error_message, delivery_handle, created_at, updated_at, started_at, finished_at`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger, now: s.now}
}

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return err
	}

	progress, err := json.Marshal(task.Progress)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		string(task.Type),
		string(task.Status),
		nullUUID(task.UserID),
		task.Label,
		task.Description,
		string(task.Payload),
		string(progress),
		nullJSON(task.Result),
		task.Error,
		task.DeliveryHandle,
		task.CreatedAt,
		task.UpdatedAt,
		task.StartedAt,
		task.FinishedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()),
			slog.String("task_type", string(task.Type)))
		return wrapError("task", "create", err)
	}

	log.Debug("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("task_type", string(task.Type)))
	return nil
}

// Get implements store.TaskStore.Get
func (s *PostgresTaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.get(ctx, s.db, id, false)
}

// Transition implements store.TaskStore.Transition
func (s *PostgresTaskStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	to domain.TaskStatus,
	opts domain.TransitionOptions,
) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var applied bool
	err := store.InTransaction(ctx, s.db, func(ctx context.Context, tx store.DBTX) error {
		task, err := s.get(ctx, tx, id, true)
		if err != nil {
			return err
		}

		from := task.Status
		applied, err = task.ApplyTransition(to, opts, s.now())
		if err != nil {
			return err
		}
		if !applied {
			log.Debug("skipping write to terminal task",
				slog.String("task_id", id.String()),
				slog.String("status", string(from)),
				slog.String("requested", string(to)))
			return nil
		}

		return s.update(ctx, tx, task)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidTransition) && !errors.Is(err, store.ErrTaskNotFound) {
			log.Error("failed to transition task",
				slog.String("error", err.Error()),
				slog.String("task_id", id.String()),
				slog.String("to", string(to)))
		}
		return false, err
	}
	return applied, nil
}

// UpdateProgress implements store.TaskStore.UpdateProgress
func (s *PostgresTaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, p domain.Progress) (bool, error) {
	var applied bool
	err := store.InTransaction(ctx, s.db, func(ctx context.Context, tx store.DBTX) error {
		task, err := s.get(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if task.Status.IsTerminal() {
			return nil
		}

		task.Progress = task.Progress.Merge(p)
		task.UpdatedAt = s.now()
		applied = true
		return s.update(ctx, tx, task)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// List implements store.TaskStore.List
func (s *PostgresTaskStore) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != uuid.Nil {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("task_type = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultTaskListLimit
	}
	args = append(args, limit)

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	return s.query(ctx, query, args...)
}

// ListStale implements store.TaskStore.ListStale
func (s *PostgresTaskStore) ListStale(ctx context.Context, status domain.TaskStatus, before time.Time) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1
		  AND (CASE WHEN status = 'processing' THEN COALESCE(started_at, updated_at) ELSE created_at END) < $2
		ORDER BY created_at ASC
	`
	return s.query(ctx, query, string(status), before)
}

// ListOlderThan implements store.TaskStore.ListOlderThan
func (s *PostgresTaskStore) ListOlderThan(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tasks WHERE created_at < $1 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, wrapError("task", "list", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete implements store.TaskStore.Delete
func (s *PostgresTaskStore) Delete(ctx context.Context, ids ...uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ANY($1::uuid[])`, uuidStrings(ids))
	if err != nil {
		return 0, wrapError("task", "delete", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func (s *PostgresTaskStore) get(ctx context.Context, db store.DBTX, id uuid.UUID, forUpdate bool) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	task, err := scanTask(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, wrapError("task", "get", err)
	}
	return task, nil
}

func (s *PostgresTaskStore) update(ctx context.Context, db store.DBTX, task *domain.Task) error {
	progress, err := json.Marshal(task.Progress)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	query := `
		UPDATE tasks
		SET status = $2, progress = $3, result = $4, error_message = $5, delivery_handle = $6,
		    updated_at = $7, started_at = $8, finished_at = $9
		WHERE id = $1
	`
	result, err := db.ExecContext(ctx, query,
		task.ID,
		string(task.Status),
		string(progress),
		nullJSON(task.Result),
		task.Error,
		task.DeliveryHandle,
		task.UpdatedAt,
		task.StartedAt,
		task.FinishedAt,
	)
	if err != nil {
		return wrapError("task", "update", err)
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

func (s *PostgresTaskStore) query(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("task", "list", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task       domain.Task
		userID     uuid.NullUUID
		payload    []byte
		progress   []byte
		result     []byte
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := row.Scan(
		&task.ID,
		&task.Type,
		&task.Status,
		&userID,
		&task.Label,
		&task.Description,
		&payload,
		&progress,
		&result,
		&task.Error,
		&task.DeliveryHandle,
		&task.CreatedAt,
		&task.UpdatedAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		task.UserID = userID.UUID
	}
	task.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		task.Result = json.RawMessage(result)
	}
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &task.Progress); err != nil {
			return nil, fmt.Errorf("failed to decode progress: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		task.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		task.FinishedAt = &t
	}
	return &task, nil
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
