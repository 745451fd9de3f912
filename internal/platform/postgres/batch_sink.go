package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/quizrun-api/internal/batch"
	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/phrazzld/quizrun-api/internal/store"
)

// BatchSink commits each batch of mutations in a single transaction.
type BatchSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewBatchSink creates a BatchSink on db.
func NewBatchSink(db *sql.DB, logger *slog.Logger) *BatchSink {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchSink{db: db, logger: logger.With(slog.String("component", "batch_sink"))}
}

var _ batch.Sink = (*BatchSink)(nil)

// CommitBatch implements batch.Sink. Either every mutation in the batch is
// applied or none is.
func (s *BatchSink) CommitBatch(ctx context.Context, mutations []batch.Mutation) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		for _, m := range mutations {
			if err := m.Apply(ctx, tx); err != nil {
				return fmt.Errorf("mutation %s: %w", m.Ref, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("batch commit failed",
			slog.Int("size", len(mutations)),
			slog.String("error", err.Error()))
		return err
	}

	log.Debug("batch committed", slog.Int("size", len(mutations)))
	return nil
}
