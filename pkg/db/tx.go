package db

import (
	"context"
	"database/sql"
	"errors"

	"partner-incentives/pkg/errutil"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Transact runs fn inside a single database transaction. On Postgres the
// transaction is SERIALIZABLE; conflicts surface as an errutil.Aborted error
// carrying errutil.ReasonRetry so the caller can safely re-submit.
func Transact(ctx context.Context, conn *gorm.DB, fn func(tx *gorm.DB) error) error {
	if conn == nil {
		return gorm.ErrInvalidDB
	}

	var opts []*sql.TxOptions
	if conn.Dialector != nil && conn.Dialector.Name() == "postgres" {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}

	err := conn.WithContext(ctx).Transaction(fn, opts...)
	return Classify(err)
}

// Retryable reports whether err is a serialization conflict or deadlock that
// a fresh transaction may clear.
func Retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

// Classify maps low level storage failures onto errutil errors. Errors that
// are already classified pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var be errutil.BaseError
	if errors.As(err, &be) {
		return err
	}

	if Retryable(err) {
		return errutil.Aborted("concurrent update detected, retry the request", err)
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errutil.Conflict("resource already exists", err)
	}

	return err
}
