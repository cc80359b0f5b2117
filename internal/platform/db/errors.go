package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PostgreSQL error codes the ledger reacts to.
const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeLockNotAvailable     = "55P03"
	CodeQueryCanceled        = "57014"
)

// MapError tags driver errors with the shared kinds. Errors that already carry
// a kind, and errors the driver did not produce, pass through unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if shared.KindOf(err) != shared.KindUnknown {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case CodeLockNotAvailable, CodeSerializationFailure, CodeDeadlockDetected:
			return fmt.Errorf("%w: %w", shared.ErrBusy, err)
		case CodeQueryCanceled:
			return fmt.Errorf("%w: %w", shared.ErrTimeout, err)
		case CodeUniqueViolation:
			return fmt.Errorf("%w: %w", shared.ErrConflict, err)
		case CodeForeignKeyViolation:
			return fmt.Errorf("%w: %w", shared.ErrNotFound, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", shared.ErrTimeout, err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique violation, optionally on a
// specific constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != CodeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
