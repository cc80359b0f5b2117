package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Writer stores events inside a caller-owned transaction.
type Writer interface {
	// Insert stores e. A row with the same dedupe key is left untouched and
	// inserted reports false.
	Insert(ctx context.Context, e Event) (inserted bool, err error)
}

// Store is the relay side of the outbox.
type Store interface {
	// Pending returns unpublished rows in occurrence order. Rows that have
	// already failed maxAttempts times are skipped; maxAttempts <= 0 skips
	// none.
	Pending(ctx context.Context, limit, maxAttempts int) ([]Event, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// PublishTx writes e through w. It exists so call sites read as publishing.
func PublishTx(ctx context.Context, w Writer, e Event) error {
	if w == nil {
		return errors.New("events: missing transaction")
	}
	_, err := w.Insert(ctx, e)
	return err
}

type txWriter struct {
	tx db.DBTX
}

// NewTxWriter binds a Writer to a caller-owned transaction.
func NewTxWriter(tx db.DBTX) Writer {
	return &txWriter{tx: tx}
}

func (w *txWriter) Insert(ctx context.Context, e Event) (bool, error) {
	var at any
	if !e.OccurredAt.IsZero() {
		at = e.OccurredAt
	}
	cmd, err := w.tx.Exec(ctx, `INSERT INTO ledger_events (id, event_type, aggregate, aggregate_id, dedupe_key, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
ON CONFLICT (dedupe_key) DO NOTHING`,
		e.ID, e.Type, e.Aggregate, e.AggregateID, e.DedupeKey, []byte(e.Payload), at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// PGStore reads and updates outbox rows for the relay.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Pending(ctx context.Context, limit, maxAttempts int) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, event_type, aggregate, aggregate_id, dedupe_key, payload, occurred_at, attempts, COALESCE(last_error, '')
FROM ledger_events
WHERE published_at IS NULL
  AND ($2::INT <= 0 OR attempts < $2)
ORDER BY occurred_at, id
LIMIT $1`, limit, maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.Aggregate, &e.AggregateID, &e.DedupeKey, &payload, &e.OccurredAt, &e.Attempts, &e.LastError); err != nil {
			return nil, err
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStore) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	cmd, err := s.pool.Exec(ctx, `UPDATE ledger_events SET published_at=$2, attempts=attempts+1, last_error=NULL WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *PGStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.pool.Exec(ctx, `UPDATE ledger_events SET attempts=attempts+1, last_error=$2 WHERE id=$1`, id, reason)
	return err
}
