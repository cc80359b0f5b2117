package audit

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MemoryStore is an in-process audit trail. It records like
// shared.AuditLogger and reads like the Postgres repository.
type MemoryStore struct {
	mu   sync.Mutex
	rows []Entry
	now  func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Record appends log.
func (m *MemoryStore) Record(_ context.Context, log shared.AuditLog) error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	at := log.At
	if at.IsZero() {
		at = m.now()
	}
	m.rows = append(m.rows, Entry{
		ID:         int64(len(m.rows) + 1),
		ActorID:    log.ActorID,
		Action:     log.Action,
		Entity:     log.Entity,
		EntityID:   log.EntityID,
		Meta:       maps.Clone(log.Meta),
		OccurredAt: at,
	})
	return nil
}

func (m *MemoryStore) Timeline(_ context.Context, f TimelineFilters) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.rows {
		if e.ID <= f.AfterID || !f.matches(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (f TimelineFilters) matches(e Entry) bool {
	switch {
	case f.Entity != "" && e.Entity != f.Entity:
		return false
	case f.EntityID != "" && e.EntityID != f.EntityID:
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.ActorID != 0 && e.ActorID != f.ActorID:
		return false
	case !f.From.IsZero() && e.OccurredAt.Before(f.From):
		return false
	case !f.To.IsZero() && !e.OccurredAt.Before(f.To):
		return false
	}
	return true
}
