package periods

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MemoryStore is an in-process Repository used by tests and local tooling.
type MemoryStore struct {
	mu      sync.RWMutex
	tr      *db.MemoryTransactor
	periods map[int64]Period
	nextID  int64
	now     func() time.Time
}

// NewMemoryStore builds a store joined to tr. A nil tr gets a private transactor.
func NewMemoryStore(tr *db.MemoryTransactor) *MemoryStore {
	if tr == nil {
		tr = db.NewMemoryTransactor()
	}
	s := &MemoryStore{tr: tr, periods: make(map[int64]Period), now: time.Now}
	tr.Join(s)
	return s
}

// Snapshot implements db.Snapshotter.
func (s *MemoryStore) Snapshot() func() {
	s.mu.Lock()
	periods := maps.Clone(s.periods)
	nextID := s.nextID
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.periods = periods
		s.nextID = nextID
	}
}

func (s *MemoryStore) List(context.Context) ([]Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Period, 0, len(s.periods))
	for _, p := range s.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.periods[id]
	if !ok {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (s *MemoryStore) FindByDate(_ context.Context, date time.Time) (Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.periods {
		if p.Contains(date) {
			return p, nil
		}
	}
	return Period{}, shared.ErrPeriodNotFound
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return s.tr.WithTx(ctx, func(ctx context.Context) error {
		return fn(ctx, s)
	})
}

func (s *MemoryStore) Insert(_ context.Context, in CreatePeriodInput) (Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.periods {
		if p.Overlaps(in.StartDate, in.EndDate) {
			return Period{}, shared.ErrPeriodOverlap
		}
		if p.Label == in.Label {
			return Period{}, internalShared.ErrConflict
		}
	}
	s.nextID++
	now := s.now()
	p := Period{
		ID:        s.nextID,
		Label:     in.Label,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Status:    PeriodStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.periods[p.ID] = p
	return p, nil
}

func (s *MemoryStore) FindOverlapping(_ context.Context, start, end time.Time) (*Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.periods {
		if p.Overlaps(start, end) {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetForUpdate(ctx context.Context, id int64) (Period, error) {
	return s.Get(ctx, id)
}

func (s *MemoryStore) MarkClosed(_ context.Context, id, actorID int64, at time.Time) (Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[id]
	if !ok || p.Status != PeriodStatusOpen {
		return Period{}, shared.ErrPeriodNotFound
	}
	p.Status = PeriodStatusClosed
	p.ClosedAt = &at
	if actorID != 0 {
		p.ClosedBy = &actorID
	}
	p.UpdatedAt = at
	s.periods[id] = p
	return p, nil
}
