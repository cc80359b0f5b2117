package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxOptions tunes every transaction opened by a TxManager.
type TxOptions struct {
	IsoLevel         pgx.TxIsoLevel
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

// ParseIsolation maps configuration values onto pgx isolation levels.
func ParseIsolation(value string) (pgx.TxIsoLevel, error) {
	switch value {
	case "", "read_committed":
		return pgx.ReadCommitted, nil
	case "repeatable_read":
		return pgx.RepeatableRead, nil
	case "serializable":
		return pgx.Serializable, nil
	default:
		return "", fmt.Errorf("platform/db: unknown isolation level %q", value)
	}
}

// TxManager owns transaction lifecycle for ledger writes.
type TxManager struct {
	pool *pgxpool.Pool
	opts TxOptions
}

// NewTxManager constructs a TxManager.
func NewTxManager(pool *pgxpool.Pool, opts TxOptions) *TxManager {
	if opts.IsoLevel == "" {
		opts.IsoLevel = pgx.ReadCommitted
	}
	return &TxManager{pool: pool, opts: opts}
}

// Pool exposes the pool for read-only queries.
func (m *TxManager) Pool() *pgxpool.Pool {
	return m.pool
}

// WithTx runs fn inside one transaction. The transaction is rolled back on
// every exit path other than a successful commit, including panics.
func (m *TxManager) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: m.opts.IsoLevel})
	if err != nil {
		return MapError(fmt.Errorf("platform/db: begin tx: %w", err))
	}

	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := applyTimeouts(ctx, tx, m.opts); err != nil {
		return MapError(err)
	}

	if err := fn(ctx, tx); err != nil {
		return MapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return MapError(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

func applyTimeouts(ctx context.Context, tx pgx.Tx, opts TxOptions) error {
	if opts.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, durationSetting(opts.LockTimeout)); err != nil {
			return fmt.Errorf("platform/db: set lock_timeout: %w", err)
		}
	}
	if opts.StatementTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('statement_timeout', $1, true)`, durationSetting(opts.StatementTimeout)); err != nil {
			return fmt.Errorf("platform/db: set statement_timeout: %w", err)
		}
	}
	return nil
}

func durationSetting(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}
