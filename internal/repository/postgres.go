package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// PostgresRepository handles database operations against PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new Postgres repository
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// RunInTx runs fn inside a single database transaction
func (r *PostgresRepository) RunInTx(ctx context.Context, fn TxFunc) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isPgCode(err, pgSerializationFailure, pgDeadlockDetected) {
			return fmt.Errorf("failed to commit transaction: %w", ErrVersionConflict)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (r *PostgresRepository) Close() error {
	r.db.Close()
	return nil
}

// pgTx executes each write immediately inside the open transaction. The
// session compare-and-set takes the row lock, which serializes concurrent
// transactions on the same session.
type pgTx struct {
	tx pgx.Tx
}

// rowScanner is satisfied by pgx and database/sql rows alike
type rowScanner interface {
	Scan(dest ...any) error
}

func isPgCode(err error, codes ...string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, c := range codes {
		if pgErr.Code == c {
			return true
		}
	}
	return false
}

// conflictOr maps transient Postgres concurrency failures to ErrVersionConflict
func conflictOr(err error, msg string) error {
	if isPgCode(err, pgSerializationFailure, pgDeadlockDetected) {
		return fmt.Errorf("%s: %w", msg, ErrVersionConflict)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
