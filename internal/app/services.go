package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/ap"
	"github.com/odyssey-erp/odyssey-ledger/internal/assets"
	"github.com/odyssey-erp/odyssey-ledger/internal/audit"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditRecorder persists audit trail records.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Backend is the storage each service is built on.
type Backend struct {
	Accounts   accounts.Repository
	Periods    periods.Repository
	Journals   journals.Repository
	Mappings   mappings.Repository
	Inventory  inventory.RepositoryPort
	Payables   ap.Repository
	Assets     assets.Repository
	Transactor ledger.Transactor
	Audit      AuditRecorder
	AuditTrail audit.Repository
}

// PostgresBackend wires every repository to pool through one TxManager.
func PostgresBackend(pool *pgxpool.Pool, cfg *Config) Backend {
	txm := db.NewTxManager(pool, cfg.TxOptions())
	return Backend{
		Accounts:   accounts.NewRepository(txm),
		Periods:    periods.NewRepository(txm),
		Journals:   journals.NewRepository(txm),
		Mappings:   mappings.NewRepository(pool),
		Inventory:  inventory.NewRepository(txm),
		Payables:   ap.NewRepository(txm),
		Assets:     assets.NewRepository(txm),
		Transactor: ledger.NewPGTransactor(txm),
		Audit:      shared.NewAuditLogger(pool),
		AuditTrail: audit.NewRepository(pool),
	}
}

// MemoryBackend keeps every store in process memory, joined to one
// transactor. The outbox store is returned for inspection.
func MemoryBackend() (Backend, *events.MemoryStore) {
	tr := db.NewMemoryTransactor()
	acctStore := accounts.NewMemoryStore(tr)
	periodStore := periods.NewMemoryStore(tr)
	stores := ledger.MemoryStores{
		Transactor: tr,
		Inventory:  inventory.NewMemoryStore(tr),
		Journals:   journals.NewMemoryStore(tr, acctStore, periodStore),
		Payables:   ap.NewMemoryStore(tr),
		Assets:     assets.NewMemoryStore(tr),
		Outbox:     events.NewMemoryStore(tr),
		Mappings:   mappings.NewMemoryStore(),
	}
	trail := audit.NewMemoryStore()
	return Backend{
		Accounts:   acctStore,
		Periods:    periodStore,
		Journals:   stores.Journals,
		Mappings:   stores.Mappings,
		Inventory:  stores.Inventory,
		Payables:   stores.Payables,
		Assets:     stores.Assets,
		Transactor: ledger.NewMemoryTransactor(stores),
		Audit:      trail,
		AuditTrail: trail,
	}, stores.Outbox
}

// Services bundles the ledger services shared by the API and the worker.
type Services struct {
	Accounts    *accounts.Service
	Periods     *periods.Service
	Journals    *journals.Service
	Mappings    mappings.Repository
	Reports     *reports.Service
	Inventory   *inventory.Service
	Payables    *ap.Service
	Assets      *assets.Service
	Audit       *audit.Service
	Coordinator *ledger.Coordinator
}

// NewServices builds the services over backend. cache may be nil.
func NewServices(b Backend, cache *reports.Cache, metrics ledger.Metrics, logger *slog.Logger) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{
		Accounts:  accounts.NewService(b.Accounts, b.Audit, logger),
		Periods:   periods.NewService(b.Periods, b.Audit, logger),
		Journals:  journals.NewService(b.Journals, b.Audit, logger),
		Mappings:  b.Mappings,
		Inventory: inventory.NewService(b.Inventory, b.Audit, logger),
		Payables:  ap.NewService(b.Payables, b.Audit, logger),
		Assets:    assets.NewService(b.Assets, b.Audit, logger),
		Audit:     audit.NewService(b.AuditTrail),
	}
	s.Reports = reports.NewService(s.Journals, s.Periods, cache, logger)
	s.Journals.Observe(s.Reports)
	s.Coordinator = ledger.New(ledger.Deps{
		Transactor: b.Transactor,
		Inventory:  s.Inventory,
		Journals:   s.Journals,
		Payables:   s.Payables,
		Assets:     s.Assets,
		Periods:    s.Periods,
		Metrics:    metrics,
		Logger:     logger,
	})
	return s
}
