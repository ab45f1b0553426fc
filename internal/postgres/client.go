package postgres

import (
	"context"
	"database/sql"

	// Registers the postgres driver.
	_ "github.com/lib/pq"
	"github.com/meterline/meterline/internal/config"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/types"
)

type txKey struct{}

// IClient is the transactional database surface consumed by services.
// Repositories read the active transaction from the context so multi-statement
// operations commit or roll back as a unit.
type IClient interface {
	// WithTx runs fn inside a transaction. The transaction is committed when fn
	// returns nil and rolled back otherwise (including panics).
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// TxFromContext returns the active transaction, or nil outside WithTx.
	TxFromContext(ctx context.Context) *sql.Tx

	// LockKey acquires an advisory lock scoped to the active transaction.
	LockKey(ctx context.Context, req types.LockRequest) error

	// TryLockKey attempts the lock without waiting.
	TryLockKey(ctx context.Context, key string) (bool, error)
}

// Client implements IClient over database/sql with the lib/pq driver.
type Client struct {
	db  *sql.DB
	log *logger.Logger
}

func NewClient(db *sql.DB, log *logger.Logger) *Client {
	return &Client{db: db, log: log}
}

// Open connects to postgres and applies the configured pool limits.
func Open(cfg config.PostgresConfig, log *logger.Logger) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to open postgres connection").
			Mark(ierr.ErrDatabase)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	return NewClient(db, log), nil
}

// Querier is the query surface shared by *sql.DB and *sql.Tx. Repositories
// obtain it per call so statements join the active transaction when one is
// open.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Querier returns the active transaction, or the pooled connection outside one.
func (c *Client) Querier(ctx context.Context) Querier {
	if tx := c.TxFromContext(ctx); tx != nil {
		return tx
	}
	return c.db
}

func (c *Client) TxFromContext(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	// Nested calls join the outer transaction.
	if c.TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to begin transaction").
			Mark(ierr.ErrDatabase)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.log.Errorw("failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to commit transaction").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
