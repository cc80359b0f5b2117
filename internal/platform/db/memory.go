package db

import (
	"context"
	"sync"
)

// Snapshotter is implemented by in-memory stores that take part in a
// MemoryTransactor transaction. Snapshot captures state and returns a func
// that restores it.
type Snapshotter interface {
	Snapshot() (restore func())
}

// MemoryTransactor serialises transactions over in-memory stores and rolls
// every participant back when fn fails or panics.
type MemoryTransactor struct {
	mu           sync.Mutex
	participants []Snapshotter
}

// NewMemoryTransactor builds a transactor over the given participants.
func NewMemoryTransactor(participants ...Snapshotter) *MemoryTransactor {
	return &MemoryTransactor{participants: participants}
}

// Join adds participants to an existing transactor.
func (m *MemoryTransactor) Join(participants ...Snapshotter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants = append(m.participants, participants...)
}

// WithTx runs fn while holding the transactor lock.
func (m *MemoryTransactor) WithTx(ctx context.Context, fn func(context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return MapError(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	restores := make([]func(), 0, len(m.participants))
	for _, p := range m.participants {
		restores = append(restores, p.Snapshot())
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}()

	if err := fn(ctx); err != nil {
		return MapError(err)
	}
	committed = true
	return nil
}
