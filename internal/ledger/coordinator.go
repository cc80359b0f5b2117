// Package ledger composes inventory movements, journal postings and
// document status updates into business operations. Each operation runs in
// one transaction; events describing it are written to the outbox in that
// same transaction.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/ap"
	"github.com/odyssey-erp/odyssey-ledger/internal/assets"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PeriodSource resolves fiscal periods outside the operation transaction.
// The journal engine re-reads and share-locks the period inside it.
type PeriodSource interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
	FindByDate(ctx context.Context, date time.Time) (periods.Period, error)
}

// Metrics observes completed operations.
type Metrics interface {
	ObserveOperation(operation string, err error, elapsed time.Duration)
}

// Deps groups the collaborators of a Coordinator.
type Deps struct {
	Transactor Transactor
	Inventory  *inventory.Service
	Journals   *journals.Service
	Payables   *ap.Service
	Assets     *assets.Service
	Periods    PeriodSource
	Metrics    Metrics
	Logger     *slog.Logger
}

// Coordinator runs ledger operations.
type Coordinator struct {
	tx        Transactor
	inventory *inventory.Service
	journals  *journals.Service
	payables  *ap.Service
	assets    *assets.Service
	periods   PeriodSource
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// New builds a Coordinator.
func New(deps Deps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Journals != nil {
		deps.Journals.OwnDocumentTypes(DocSupplierPayment, DocDepreciation, RefGoodsReceipt, RefGoodsIssue, RefStockAdjustment)
	}
	return &Coordinator{
		tx:        deps.Transactor,
		inventory: deps.Inventory,
		journals:  deps.Journals,
		payables:  deps.Payables,
		assets:    deps.Assets,
		periods:   deps.Periods,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock used for default dates.
func (c *Coordinator) WithNow(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// Operation names, used for metrics, event payloads and entry numbers.
const (
	OpReceiveGoods   = "receive_goods"
	OpIssueGoods     = "issue_goods"
	OpTransferStock  = "transfer_stock"
	OpAdjustStock    = "adjust_stock"
	OpSettlePayment  = "settle_supplier_payment"
	OpDepreciation   = "post_depreciation"
	OpReverseEntry   = "reverse_entry"
	OpReversePayment = "reverse_supplier_payment"
	OpReverseDepr    = "reverse_depreciation"
	aggregateOp      = "operation"
	aggregateEntry   = "journal_entry"
	aggregateInvoice = "supplier_invoice"
	aggregateAsset   = "fixed_asset"
)

// Result reports what an operation wrote.
type Result struct {
	Operation string
	Movements []inventory.Transaction
	Entry     *journals.JournalEntry
	Invoice   *ap.Invoice
	Payment   *ap.Payment
	Asset     *assets.Asset
	Charge    *assets.Depreciation
	Events    []events.Event
}

// run executes fn in one transaction and observes the outcome.
func (c *Coordinator) run(ctx context.Context, op string, fn func(context.Context, Tx) error) error {
	start := c.now()
	err := c.tx.WithTx(ctx, fn)
	if c.metrics != nil {
		c.metrics.ObserveOperation(op, err, c.now().Sub(start))
	}
	if err == nil {
		return nil
	}
	switch shared.KindOf(err) {
	case shared.KindConsistency:
		c.logger.ErrorContext(ctx, "ledger operation rolled back on consistency violation",
			slog.String("operation", op), slog.Any("error", err))
	case shared.KindInfrastructure, shared.KindUnknown:
		c.logger.WarnContext(ctx, "ledger operation failed",
			slog.String("operation", op), slog.Any("error", err))
	}
	return err
}

// idempotencyModule tags the keys claimed by ledger operations.
const idempotencyModule = "ledger"

// claim records op:ref in the operation's transaction. A retried operation
// that already committed fails with shared.ErrIdempotencyConflict.
func claim(ctx context.Context, tx Tx, op, ref string) error {
	return tx.Idempotency().CheckAndInsert(ctx, op+":"+ref, idempotencyModule)
}

// resolvePeriod returns periodID when set, otherwise the period covering
// date.
func (c *Coordinator) resolvePeriod(ctx context.Context, periodID int64, date time.Time) (int64, error) {
	if periodID != 0 {
		return periodID, nil
	}
	if c.periods == nil {
		return 0, fmt.Errorf("%w: period required", shared.ErrInvalidArgument)
	}
	p, err := c.periods.FindByDate(ctx, date)
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

func resolveAccount(ctx context.Context, tx Tx, module, key string) (int64, error) {
	m, err := tx.Mappings().Get(ctx, module, key)
	if err != nil {
		return 0, err
	}
	return m.AccountID, nil
}

// twoLine builds a balanced debit/credit pair.
func twoLine(debitAccount, creditAccount int64, amount decimal.Decimal, memo string) []journals.PostingLineInput {
	return []journals.PostingLineInput{
		{AccountID: debitAccount, Debit: amount, Description: memo},
		{AccountID: creditAccount, Credit: amount, Description: memo},
	}
}

// publish writes events to the outbox of tx and appends them to res.
func publish(ctx context.Context, tx Tx, res *Result, evts ...events.Event) error {
	for _, e := range evts {
		if err := events.PublishTx(ctx, tx.Outbox(), e); err != nil {
			return err
		}
		res.Events = append(res.Events, e)
	}
	return nil
}

func movementEvent(op, referenceNo, referenceType string, recs []inventory.Transaction, entry *journals.JournalEntry) (events.Event, error) {
	payload := events.MovementCompleted{
		Operation:     op,
		ReferenceNo:   referenceNo,
		ReferenceType: referenceType,
		Movements:     make([]events.MovementPayload, 0, len(recs)),
	}
	if entry != nil {
		id := entry.ID
		payload.EntryID = &id
	}
	for _, r := range recs {
		payload.Movements = append(payload.Movements, events.MovementPayload{
			TransactionID:  r.ID,
			MaterialID:     r.MaterialID,
			LocationID:     r.LocationID,
			Type:           string(r.Type),
			Quantity:       r.Quantity,
			BeforeQuantity: r.BeforeQuantity,
			AfterQuantity:  r.AfterQuantity,
		})
	}
	// The first transaction id keeps repeated references distinct.
	aggregateID := fmt.Sprintf("%s:%s:%d", op, referenceNo, recs[0].ID)
	return events.New(events.TypeMovementCompleted, aggregateOp, aggregateID, "", payload)
}

func entryEvent(eventType string, entry journals.JournalEntry) (events.Event, error) {
	return events.New(eventType, aggregateEntry, strconv.FormatInt(entry.ID, 10), "", events.EntryPosted{
		EntryID:         entry.ID,
		EntryNumber:     entry.EntryNumber,
		PeriodID:        entry.PeriodID,
		DocumentType:    entry.DocumentType,
		Amount:          journals.LineTotals(entry.Lines).DebitTotal,
		ReversesEntryID: entry.ReversesEntryID,
	})
}

// committed runs the post-commit hooks of every service touched by res.
func (c *Coordinator) committed(ctx context.Context, actorID int64, res Result) {
	if len(res.Movements) > 0 {
		c.inventory.Committed(ctx, res.Movements)
	}
	if res.Entry != nil {
		action := "journal.post"
		if res.Entry.ReversesEntryID != nil {
			action = "journal.reverse"
		}
		c.journals.Committed(ctx, action, actorID, *res.Entry)
	}
	if res.Invoice != nil && res.Payment != nil {
		c.payables.Committed(ctx, *res.Invoice, *res.Payment)
	}
	if res.Asset != nil && res.Charge != nil {
		if res.Operation == OpReverseDepr {
			c.assets.Reverted(ctx, actorID, *res.Asset, *res.Charge)
		} else {
			c.assets.Committed(ctx, actorID, *res.Asset, *res.Charge)
		}
	}
	c.logger.InfoContext(ctx, "ledger operation committed",
		slog.String("operation", res.Operation),
		slog.Int("movements", len(res.Movements)),
		slog.Int("events", len(res.Events)))
}
