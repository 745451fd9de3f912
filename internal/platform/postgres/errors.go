package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/quizrun-api/internal/store"
)

// PostgreSQL error codes
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"

	// serializationFailureCode and lockNotAvailableCode are raised when
	// concurrent writers contend for the same task row.
	serializationFailureCode = "40001"
	lockNotAvailableCode     = "55P03"
)

// MapError maps a database error to a store error, wrapping the original so
// callers can still inspect it.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case uniqueViolationCode:
		return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
	case foreignKeyViolationCode, checkViolationCode:
		return fmt.Errorf("%w: constraint %s violated: %w", store.ErrInvalidEntity, pgErr.ConstraintName, err)
	case notNullViolationCode:
		return fmt.Errorf("%w: column %s cannot be null: %w", store.ErrInvalidEntity, pgErr.ColumnName, err)
	case serializationFailureCode, lockNotAvailableCode:
		return fmt.Errorf("%w: %w", store.ErrTransactionFailed, err)
	default:
		return err
	}
}

// wrapError maps err and records the entity and operation that produced it
// as a store.StoreError. The mapped sentinel stays reachable through
// errors.Is.
func wrapError(entity, operation string, err error) error {
	mapped := MapError(err)
	if mapped == nil {
		return nil
	}

	var message string
	switch {
	case IsUniqueViolation(err):
		message = entity + " already exists"
	case errors.Is(mapped, store.ErrNotFound):
		message = entity + " not found"
	case errors.Is(mapped, store.ErrInvalidEntity):
		message = "constraint violated"
	case errors.Is(mapped, store.ErrTransactionFailed):
		message = "concurrent update"
	default:
		message = "database error"
	}
	return store.NewStoreError(entity, operation, message, mapped)
}

// IsUniqueViolation checks if the given error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// CheckRowsAffected returns notFound when result touched no rows.
func CheckRowsAffected(result sql.Result, notFound error) error {
	if result == nil {
		return fmt.Errorf("nil result provided to CheckRowsAffected")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
