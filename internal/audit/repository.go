package audit

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

type repository struct {
	db db.DBTX
}

// NewRepository reads audit_logs through q.
func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

const timelineQuery = `SELECT id, actor_id, action, entity, entity_id, meta, occurred_at
FROM audit_logs
WHERE ($1::TEXT IS NULL OR entity = $1)
  AND ($2::TEXT IS NULL OR entity_id = $2)
  AND ($3::TEXT IS NULL OR action = $3)
  AND ($4::BIGINT IS NULL OR actor_id = $4)
  AND ($5::TIMESTAMPTZ IS NULL OR occurred_at >= $5)
  AND ($6::TIMESTAMPTZ IS NULL OR occurred_at < $6)
  AND id > $7
ORDER BY id
LIMIT $8`

func (r *repository) Timeline(ctx context.Context, f TimelineFilters) ([]Entry, error) {
	rows, err := r.db.Query(ctx, timelineQuery,
		optionalText(f.Entity), optionalText(f.EntityID), optionalText(f.Action),
		optionalID(f.ActorID), optionalTime(f.From), optionalTime(f.To),
		f.AfterID, f.Limit)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			actor *int64
		)
		if err := rows.Scan(&e.ID, &actor, &e.Action, &e.Entity, &e.EntityID, &e.Meta, &e.OccurredAt); err != nil {
			return nil, err
		}
		if actor != nil {
			e.ActorID = *actor
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func optionalText(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func optionalID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func optionalTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
