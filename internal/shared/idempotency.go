package shared

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = NewKindError("idempotent request already processed", ErrConflict)

// IdempotencyKeys claims operation keys. Implementations bound to a
// transaction release the claim when it rolls back.
type IdempotencyKeys interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore persists processed keys in idempotency_keys.
type IdempotencyStore struct {
	db execer
}

// NewIdempotencyStore constructs the store over a pool or a transaction.
func NewIdempotencyStore(db execer) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// CheckAndInsert ensures key uniqueness per module.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.db == nil {
		return errors.New("idempotency store not initialised")
	}
	if err := checkKey(key, module); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (key, module) VALUES ($1, $2)`, key, module)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrIdempotencyConflict, key)
		}
		return err
	}
	return nil
}

// Delete removes a key so the operation it guarded may run again.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return nil
	}
	if key == "" {
		return fmt.Errorf("%w: idempotency key required", ErrInvalidArgument)
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}

func checkKey(key, module string) error {
	if key == "" {
		return fmt.Errorf("%w: idempotency key required", ErrInvalidArgument)
	}
	if module == "" {
		return fmt.Errorf("%w: idempotency module required", ErrInvalidArgument)
	}
	return nil
}

// MemoryIdempotencyStore keeps keys in process. Join it to the transactor
// of the stores it guards so a rolled back operation frees its key.
type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewMemoryIdempotencyStore builds an empty store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{keys: make(map[string]string)}
}

// Snapshot captures the key set and returns a func that restores it.
func (s *MemoryIdempotencyStore) Snapshot() func() {
	s.mu.Lock()
	keys := maps.Clone(s.keys)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.keys = keys
	}
}

func (s *MemoryIdempotencyStore) CheckAndInsert(_ context.Context, key, module string) error {
	if err := checkKey(key, module); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return fmt.Errorf("%w: %s", ErrIdempotencyConflict, key)
	}
	s.keys[key] = module
	return nil
}

func (s *MemoryIdempotencyStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("%w: idempotency key required", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
