package accounts

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// MemoryStore is an in-process Repository used by tests and local tooling.
type MemoryStore struct {
	mu         sync.RWMutex
	tr         *db.MemoryTransactor
	accounts   map[int64]Account
	referenced map[int64]bool
	nextID     int64
	now        func() time.Time
}

// NewMemoryStore builds a store joined to tr. A nil tr gets a private transactor.
func NewMemoryStore(tr *db.MemoryTransactor) *MemoryStore {
	if tr == nil {
		tr = db.NewMemoryTransactor()
	}
	s := &MemoryStore{
		tr:         tr,
		accounts:   make(map[int64]Account),
		referenced: make(map[int64]bool),
		now:        time.Now,
	}
	tr.Join(s)
	return s
}

// Snapshot implements db.Snapshotter.
func (s *MemoryStore) Snapshot() func() {
	s.mu.Lock()
	accounts := maps.Clone(s.accounts)
	referenced := maps.Clone(s.referenced)
	nextID := s.nextID
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.accounts = accounts
		s.referenced = referenced
		s.nextID = nextID
	}
}

// MarkReferenced records that a journal line uses the account.
func (s *MemoryStore) MarkReferenced(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referenced[id] = true
}

// Lookup returns an account without locking semantics.
func (s *MemoryStore) Lookup(id int64) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	return a, ok
}

func (s *MemoryStore) List(context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Account, error) {
	if a, ok := s.Lookup(id); ok {
		return a, nil
	}
	return Account{}, shared.ErrAccountNotFound
}

func (s *MemoryStore) GetByCode(_ context.Context, code string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return Account{}, shared.ErrAccountNotFound
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return s.tr.WithTx(ctx, func(ctx context.Context) error {
		return fn(ctx, s)
	})
}

func (s *MemoryStore) Insert(_ context.Context, in CreateInput) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Code == in.Code {
			return Account{}, shared.ErrAccountCodeTaken
		}
	}
	if in.ParentID != nil {
		if _, ok := s.accounts[*in.ParentID]; !ok {
			return Account{}, shared.ErrAccountNotFound
		}
	}
	s.nextID++
	now := s.now()
	a := Account{
		ID:         s.nextID,
		Code:       in.Code,
		Name:       in.Name,
		Type:       in.Type,
		ParentID:   in.ParentID,
		NormalSide: in.NormalSide,
		IsActive:   true,
		Currency:   in.Currency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *MemoryStore) GetForUpdate(ctx context.Context, id int64) (Account, error) {
	return s.Get(ctx, id)
}

func (s *MemoryStore) Update(_ context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.accounts[account.ID]
	if !ok {
		return Account{}, shared.ErrAccountNotFound
	}
	for id, a := range s.accounts {
		if id != account.ID && a.Code == account.Code {
			return Account{}, shared.ErrAccountCodeTaken
		}
	}
	current.Code = account.Code
	current.Name = account.Name
	current.IsActive = account.IsActive
	current.UpdatedAt = s.now()
	s.accounts[account.ID] = current
	return current, nil
}

func (s *MemoryStore) HasJournalLines(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.referenced[id], nil
}
