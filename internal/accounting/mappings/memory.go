package mappings

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MemoryStore is an in-process Repository used by tests and local tooling.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[[2]string]AccountMapping
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[[2]string]AccountMapping), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, module, key string) (AccountMapping, error) {
	module, key, err := normalize(module, key)
	if err != nil {
		return AccountMapping{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.items[[2]string{module, key}]
	if !ok {
		return AccountMapping{}, fmt.Errorf("%w: %s/%s", shared.ErrMappingNotFound, module, key)
	}
	return m, nil
}

func (s *MemoryStore) List(context.Context) ([]AccountMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AccountMapping, 0, len(s.items))
	for _, m := range s.items {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, mapping AccountMapping) (AccountMapping, error) {
	module, key, err := normalize(mapping.Module, mapping.Key)
	if err != nil {
		return AccountMapping{}, err
	}
	if mapping.AccountID <= 0 {
		return AccountMapping{}, fmt.Errorf("%w: mapping account required", internalShared.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	id := [2]string{module, key}
	current, ok := s.items[id]
	if !ok {
		current = AccountMapping{Module: module, Key: key, CreatedAt: now}
	}
	current.AccountID = mapping.AccountID
	current.UpdatedAt = now
	s.items[id] = current
	return current, nil
}
