package events

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// MemoryStore is an in-process outbox implementing Writer and Store.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
	now    func() time.Time
}

// NewMemoryStore builds a store joined to tr. A nil tr gets a private transactor.
func NewMemoryStore(tr *db.MemoryTransactor) *MemoryStore {
	if tr == nil {
		tr = db.NewMemoryTransactor()
	}
	s := &MemoryStore{now: time.Now}
	tr.Join(s)
	return s
}

// Snapshot implements db.Snapshotter.
func (s *MemoryStore) Snapshot() func() {
	s.mu.Lock()
	events := slices.Clone(s.events)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = events
	}
}

// All returns every stored event in insertion order.
func (s *MemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

func (s *MemoryStore) Insert(_ context.Context, e Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events {
		if existing.DedupeKey == e.DedupeKey {
			return false, nil
		}
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now()
	}
	s.events = append(s.events, e)
	return true, nil
}

func (s *MemoryStore) Pending(_ context.Context, limit, maxAttempts int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.PublishedAt != nil || (maxAttempts > 0 && e.Attempts >= maxAttempts) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.update(id, func(e *Event) {
		e.PublishedAt = &at
		e.Attempts++
		e.LastError = ""
	})
}

func (s *MemoryStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	return s.update(id, func(e *Event) {
		e.Attempts++
		e.LastError = reason
	})
}

func (s *MemoryStore) update(id uuid.UUID, fn func(*Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == id {
			fn(&s.events[i])
			return nil
		}
	}
	return nil
}
