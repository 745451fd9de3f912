package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/quizrun-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockResult struct {
	rowsAffected int64
	err          error
}

func (m mockResult) LastInsertId() (int64, error) { return 0, nil }

func (m mockResult) RowsAffected() (int64, error) { return m.rowsAffected, m.err }

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "no rows", err: sql.ErrNoRows, expected: store.ErrNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: uniqueViolationCode}, expected: store.ErrDuplicate},
		{name: "check violation", err: &pgconn.PgError{Code: checkViolationCode, ConstraintName: "tasks_status_check"}, expected: store.ErrInvalidEntity},
		{name: "not null", err: &pgconn.PgError{Code: notNullViolationCode, ColumnName: "task_type"}, expected: store.ErrInvalidEntity},
		{name: "foreign key", err: &pgconn.PgError{Code: foreignKeyViolationCode}, expected: store.ErrInvalidEntity},
		{name: "serialization failure", err: fmt.Errorf("update: %w", &pgconn.PgError{Code: serializationFailureCode}), expected: store.ErrTransactionFailed},
		{name: "lock not available", err: &pgconn.PgError{Code: lockNotAvailableCode}, expected: store.ErrTransactionFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			assert.ErrorIs(t, mapped, tc.expected)
			assert.ErrorIs(t, mapped, tc.err)
		})
	}

	assert.NoError(t, MapError(nil))

	plain := errors.New("connection refused")
	assert.Equal(t, plain, MapError(plain))

	other := &pgconn.PgError{Code: "42P01"}
	assert.Equal(t, error(other), MapError(other))
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{"unique violation", &pgconn.PgError{Code: uniqueViolationCode}, store.ErrDuplicate, "task already exists"},
		{"no rows", sql.ErrNoRows, store.ErrNotFound, "task not found"},
		{"check violation", &pgconn.PgError{Code: checkViolationCode}, store.ErrInvalidEntity, "constraint violated"},
		{"lock not available", &pgconn.PgError{Code: lockNotAvailableCode}, store.ErrTransactionFailed, "concurrent update"},
		{"driver error", errors.New("connection refused"), nil, "database error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := wrapError("task", "create", tc.err)

			var storeErr *store.StoreError
			require.ErrorAs(t, err, &storeErr)
			assert.Equal(t, "task", storeErr.Entity)
			assert.Equal(t, "create", storeErr.Operation)
			assert.Equal(t, tc.message, storeErr.Message)
			assert.ErrorIs(t, err, tc.err)
			if tc.sentinel != nil {
				assert.ErrorIs(t, err, tc.sentinel)
			}
		})
	}

	assert.NoError(t, wrapError("task", "create", nil))
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: uniqueViolationCode})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: foreignKeyViolationCode}))
}

func TestCheckRowsAffected(t *testing.T) {
	t.Parallel()
	assert.NoError(t, CheckRowsAffected(mockResult{rowsAffected: 1}, store.ErrTaskNotFound))
	assert.ErrorIs(t, CheckRowsAffected(mockResult{}, store.ErrTaskNotFound), store.ErrTaskNotFound)
	assert.Error(t, CheckRowsAffected(mockResult{err: errors.New("driver")}, store.ErrTaskNotFound))
	assert.Error(t, CheckRowsAffected(nil, store.ErrTaskNotFound))
}
