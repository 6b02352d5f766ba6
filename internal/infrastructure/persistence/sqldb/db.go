package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/pkg/database"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type txKey struct{}

// txState is the transaction a context carries
type txState struct {
	tx       *sql.Tx
	readOnly bool
}

// ErrReadOnlyTransaction is returned when a write transaction is requested
// inside a read-only one.
var ErrReadOnlyTransaction = errors.New("write transaction requested inside a read-only transaction")

// maxTxAttempts bounds retries of transactions that lost a lock or
// serialization race.
const maxTxAttempts = 3

// DB wraps the database handle and implements TransactionManager
type DB struct {
	*database.DB
	logger *zap.Logger
}

// NewDB creates a new transaction-aware database wrapper
func NewDB(db *database.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     db,
		logger: logger,
	}
}

// WithTransaction implements port.TransactionManager. A transaction that
// fails with a busy, deadlock or serialization error is retried from the start.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.run(ctx, false, fn)
}

// WithReadOnlyTransaction runs fn against one consistent snapshot
func (db *DB) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.run(ctx, true, fn)
}

func (db *DB) run(ctx context.Context, readOnly bool, fn func(ctx context.Context) error) error {
	if st := stateFrom(ctx); st != nil {
		if st.readOnly && !readOnly {
			return ErrReadOnlyTransaction
		}
		return fn(ctx)
	}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = db.runOnce(ctx, readOnly, fn)
		if err == nil || !retryable(db.Dialect(), err) || ctx.Err() != nil {
			return err
		}
		db.logger.Warn("Transaction conflict, retrying",
			zap.String("dialect", string(db.Dialect())),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return err
}

func (db *DB) runOnce(ctx context.Context, readOnly bool, fn func(ctx context.Context) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, &txState{tx: tx, readOnly: readOnly})

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// retryable reports whether err is a lock or serialization conflict on dialect d
func retryable(d database.Dialect, err error) bool {
	switch d {
	case database.DialectPostgres:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// serialization_failure, deadlock_detected
			return pgErr.Code == "40001" || pgErr.Code == "40P01"
		}
	case database.DialectSQLite:
		var liteErr sqlite3.Error
		if errors.As(err, &liteErr) {
			return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
		}
	}
	return false
}

// Executor returns the transaction carried by ctx, or the pool
func (db *DB) Executor(ctx context.Context) Executor {
	if st := stateFrom(ctx); st != nil {
		return st.tx
	}
	return db.DB.DB
}

// LockClause returns the row-lock suffix for claim queries on this dialect
func (db *DB) LockClause() string {
	return db.Dialect().LockClause()
}

func stateFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Verify interface compliance
var _ port.TransactionManager = (*DB)(nil)
