package inventory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// MemoryStore is an in-process RepositoryPort and TxRepository. Row locks are
// implied by the transactor, which runs one transaction at a time.
type MemoryStore struct {
	mu       sync.RWMutex
	tr       *db.MemoryTransactor
	balances map[Key]Balance
	txs      []Transaction
	nextID   int64
	now      func() time.Time
}

// NewMemoryStore builds a store joined to tr. A nil tr gets a private transactor.
func NewMemoryStore(tr *db.MemoryTransactor) *MemoryStore {
	if tr == nil {
		tr = db.NewMemoryTransactor()
	}
	s := &MemoryStore{tr: tr, balances: make(map[Key]Balance), now: time.Now}
	tr.Join(s)
	return s
}

// Snapshot implements db.Snapshotter.
func (s *MemoryStore) Snapshot() func() {
	s.mu.Lock()
	balances := maps.Clone(s.balances)
	txs := slices.Clone(s.txs)
	nextID := s.nextID
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.balances = balances
		s.txs = txs
		s.nextID = nextID
	}
}

// TransactionCount returns the number of stored movements.
func (s *MemoryStore) TransactionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

func (s *MemoryStore) GetBalance(_ context.Context, key Key) (Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[key]
	if !ok {
		return Balance{}, ErrBalanceNotFound
	}
	return b, nil
}

func (s *MemoryStore) HasTransactions(_ context.Context, key Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.txs {
		if t.Key() == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) History(_ context.Context, filter HistoryFilter) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transaction
	for _, t := range s.txs {
		if t.MaterialID != filter.MaterialID {
			continue
		}
		if filter.LocationID != nil && t.LocationID != *filter.LocationID {
			continue
		}
		if t.ID <= filter.AfterID {
			continue
		}
		if !filter.From.IsZero() && t.OccurredAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !t.OccurredAt.Before(filter.To) {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListKeys(context.Context) ([]Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[Key]struct{})
	for k := range s.balances {
		seen[k] = struct{}{}
	}
	for _, t := range s.txs {
		seen[t.Key()] = struct{}{}
	}
	keys := make([]Key, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys, nil
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return s.tr.WithTx(ctx, func(ctx context.Context) error {
		return fn(ctx, s)
	})
}

func (s *MemoryStore) LockBalance(_ context.Context, key Key) (Balance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[key]; ok {
		return b, false, nil
	}
	b := Balance{MaterialID: key.MaterialID, LocationID: key.LocationID, Quantity: decimal.Zero, Reserved: decimal.Zero, AvgCost: decimal.Zero, UpdatedAt: s.now()}
	s.balances[key] = b
	return b, true, nil
}

func (s *MemoryStore) LatestTransaction(_ context.Context, key Key) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.txs) - 1; i >= 0; i-- {
		if s.txs[i].Key() == key {
			t := s.txs[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) InsertTransaction(_ context.Context, rec Transaction) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	rec.OccurredAt = s.now()
	s.txs = append(s.txs, rec)
	return rec, nil
}

func (s *MemoryStore) UpdateBalance(_ context.Context, balance Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := balance.Key()
	if _, ok := s.balances[key]; !ok {
		return ErrBalanceNotFound
	}
	balance.UpdatedAt = s.now()
	s.balances[key] = balance
	return nil
}
