// Package sqlite carries the ambient SQLite transaction through context.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/apperror"
)

type txKey struct{}

const (
	defaultBusyRetries = 3
	busyBackoff        = 25 * time.Millisecond
)

// TxManager runs units of work in one SQLite write transaction.
// A unit that hits SQLITE_BUSY or SQLITE_LOCKED is rolled back and rerun.
type TxManager struct {
	db      *sql.DB
	logger  *zap.Logger
	retries int
}

// TxOption configures a TxManager
type TxOption func(*TxManager)

// WithBusyRetries sets how many times a busy unit of work is rerun
func WithBusyRetries(n int) TxOption {
	return func(m *TxManager) {
		if n >= 0 {
			m.retries = n
		}
	}
}

// NewTxManager wraps an open handle
func NewTxManager(db *sql.DB, logger *zap.Logger, opts ...TxOption) *TxManager {
	m := &TxManager{db: db, logger: logger, retries: defaultBusyRetries}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithTransaction implements port.TransactionManager.
// Nested calls join the transaction already carried by ctx.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if fromContext(ctx) != nil {
		return fn(ctx)
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = m.run(ctx, fn)
		if err == nil || !IsBusy(err) || attempt >= m.retries {
			return err
		}

		m.logger.Warn("Database busy, retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return apperror.Persistence(ctx.Err(), "transaction cancelled")
		case <-time.After(busyBackoff * time.Duration(attempt+1)):
		}
	}
}

func (m *TxManager) run(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		m.logger.Error("Failed to begin transaction", zap.Error(err))
		return apperror.Persistence(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			m.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		m.logger.Error("Failed to commit transaction", zap.Error(err))
		return apperror.Persistence(err, "commit transaction")
	}
	return nil
}

// IsBusy reports whether err came from a locked SQLite database
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func fromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// Executor returns the transaction carried by ctx, or db when there is none
func Executor(ctx context.Context, db *sql.DB) Querier {
	if tx := fromContext(ctx); tx != nil {
		return tx
	}
	return db
}

// Querier covers both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var _ port.TransactionManager = (*TxManager)(nil)
