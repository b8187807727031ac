package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/flplemos/senac-agenda-central/internal/model"
)

// PostgreSQL SQLSTATE codes the ledger reacts to.
const (
	pgUniqueViolation      = "23505"
	pgExclusionViolation   = "23P01"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

var domainErrors = []error{
	model.ErrValidation,
	model.ErrResourceUnavailable,
	model.ErrConflictRace,
	model.ErrUnauthenticated,
	model.ErrForbidden,
	model.ErrNotFound,
	model.ErrInvalidTransition,
	model.ErrStore,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classify keeps business outcomes as they are and turns everything else
// into a retryable store error.
func classify(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: commit did not finish in time: %v", model.ErrStore, err)
	}
	return fmt.Errorf("%w: %v", model.ErrStore, err)
}

// isConstraintViolation reports whether err came from a unique or exclusion
// constraint, meaning a concurrent writer got there first.
func isConstraintViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation || pgErr.Code == pgExclusionViolation
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// isRetryable reports whether the transaction may simply be run again.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
