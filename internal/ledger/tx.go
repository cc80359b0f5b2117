package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/ap"
	"github.com/odyssey-erp/odyssey-ledger/internal/assets"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Tx is the unit of work handed to an operation. Every repository it returns
// writes through the same database transaction.
type Tx interface {
	Inventory() inventory.TxRepository
	Journals() journals.TxRepository
	Payables() ap.TxRepository
	Assets() assets.TxRepository
	Outbox() events.Writer
	Mappings() mappings.Repository
	Idempotency() shared.IdempotencyKeys
}

// Transactor runs fn inside one transaction, committing only when fn returns
// nil.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// PGTransactor opens one Postgres transaction per operation.
type PGTransactor struct {
	txm *db.TxManager
}

// NewPGTransactor builds a Transactor over txm.
func NewPGTransactor(txm *db.TxManager) *PGTransactor {
	return &PGTransactor{txm: txm}
}

func (t *PGTransactor) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return t.txm.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTx{
			inventory: inventory.NewTxRepository(tx),
			journals:  journals.NewTxRepository(tx),
			payables:  ap.NewTxRepository(tx),
			assets:    assets.NewTxRepository(tx),
			outbox:    events.NewTxWriter(tx),
			mappings:  mappings.NewRepository(tx),
			keys:      shared.NewIdempotencyStore(tx),
		})
	})
}

type pgTx struct {
	inventory inventory.TxRepository
	journals  journals.TxRepository
	payables  ap.TxRepository
	assets    assets.TxRepository
	outbox    events.Writer
	mappings  mappings.Repository
	keys      shared.IdempotencyKeys
}

func (t *pgTx) Inventory() inventory.TxRepository { return t.inventory }
func (t *pgTx) Journals() journals.TxRepository   { return t.journals }
func (t *pgTx) Payables() ap.TxRepository         { return t.payables }
func (t *pgTx) Assets() assets.TxRepository       { return t.assets }
func (t *pgTx) Outbox() events.Writer             { return t.outbox }
func (t *pgTx) Mappings() mappings.Repository     { return t.mappings }
func (t *pgTx) Idempotency() shared.IdempotencyKeys {
	return t.keys
}

// MemoryStores groups in-memory stores that share one db.MemoryTransactor.
type MemoryStores struct {
	Transactor  *db.MemoryTransactor
	Inventory   *inventory.MemoryStore
	Journals    *journals.MemoryStore
	Payables    *ap.MemoryStore
	Assets      *assets.MemoryStore
	Outbox      *events.MemoryStore
	Mappings    *mappings.MemoryStore
	Idempotency *shared.MemoryIdempotencyStore
}

// MemoryTransactor runs operations over MemoryStores. A failed operation
// restores every store.
type MemoryTransactor struct {
	stores MemoryStores
}

// NewMemoryTransactor builds a Transactor over stores. A nil Idempotency
// store is created and joined to the stores' transactor.
func NewMemoryTransactor(stores MemoryStores) *MemoryTransactor {
	if stores.Idempotency == nil {
		stores.Idempotency = shared.NewMemoryIdempotencyStore()
		stores.Transactor.Join(stores.Idempotency)
	}
	return &MemoryTransactor{stores: stores}
}

func (t *MemoryTransactor) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return t.stores.Transactor.WithTx(ctx, func(ctx context.Context) error {
		return fn(ctx, &memoryTx{stores: t.stores})
	})
}

type memoryTx struct {
	stores MemoryStores
}

func (t *memoryTx) Inventory() inventory.TxRepository { return t.stores.Inventory }
func (t *memoryTx) Journals() journals.TxRepository   { return t.stores.Journals }
func (t *memoryTx) Payables() ap.TxRepository         { return t.stores.Payables }
func (t *memoryTx) Assets() assets.TxRepository       { return t.stores.Assets }
func (t *memoryTx) Outbox() events.Writer             { return t.stores.Outbox }
func (t *memoryTx) Mappings() mappings.Repository     { return t.stores.Mappings }
func (t *memoryTx) Idempotency() shared.IdempotencyKeys {
	return t.stores.Idempotency
}
