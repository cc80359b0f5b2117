package ap

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages supplier invoices and the settlement half of supplier
// payments. The journal half is posted by the ledger coordinator inside the
// same transaction.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// CreateInvoice registers a supplier invoice in OPEN status.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	if err := input.normalize(); err != nil {
		return Invoice{}, err
	}
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.CreateInvoice(ctx, input)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, input.ActorID, "ap_invoice.create", inv, map[string]any{"total": inv.Total.StringFixed(2)})
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, status InvoiceStatus) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, status)
}

func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	if _, err := s.repo.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, invoiceID)
}

// VoidInvoice cancels an invoice that has no payments.
func (s *Service) VoidInvoice(ctx context.Context, id, actorID int64) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusOpen {
			return fmt.Errorf("%w: invoice %s is %s", ErrInvalidStatus, inv.Number, inv.Status)
		}
		inv.Status = StatusVoid
		return tx.UpdateSettlement(ctx, inv)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, actorID, "ap_invoice.void", inv, nil)
	return inv, nil
}

// LockForPaymentTx locks the invoice and checks that amount can be applied to
// it. Nothing is written.
func (s *Service) LockForPaymentTx(ctx context.Context, tx TxRepository, invoiceID int64, amount decimal.Decimal) (Invoice, error) {
	if err := shared.ValidateMagnitude("amount", amount, shared.MaxAmount); err != nil {
		return Invoice{}, err
	}
	inv, err := tx.LockInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if !inv.Payable() {
		return Invoice{}, fmt.Errorf("%w: invoice %s is %s", ErrInvalidStatus, inv.Number, inv.Status)
	}
	if amount.GreaterThan(inv.Outstanding()) {
		return Invoice{}, &OverpaymentError{InvoiceID: inv.ID, Outstanding: inv.Outstanding(), Requested: amount}
	}
	return inv, nil
}

// SettleTx records the payment and updates paid_amount and status on the
// locked invoice. Callers run it as the last step of the transaction.
func (s *Service) SettleTx(ctx context.Context, tx TxRepository, inv Invoice, payment Payment) (Invoice, Payment, error) {
	payment.InvoiceID = inv.ID
	rec, err := tx.InsertPayment(ctx, payment)
	if err != nil {
		return Invoice{}, Payment{}, err
	}
	inv.PaidAmount = inv.PaidAmount.Add(payment.Amount)
	inv.Status = StatusFor(inv.Total, inv.PaidAmount)
	if err := tx.UpdateSettlement(ctx, inv); err != nil {
		return Invoice{}, Payment{}, err
	}
	return inv, rec, nil
}

// LockForReversalTx locks a payment and its invoice ahead of a reversal.
// Nothing is written.
func (s *Service) LockForReversalTx(ctx context.Context, tx TxRepository, paymentID int64) (Invoice, Payment, error) {
	if paymentID <= 0 {
		return Invoice{}, Payment{}, fmt.Errorf("%w: payment required", shared.ErrInvalidArgument)
	}
	payment, err := tx.LockPayment(ctx, paymentID)
	if err != nil {
		return Invoice{}, Payment{}, err
	}
	if payment.Reversed() {
		return Invoice{}, Payment{}, fmt.Errorf("%w: payment %d", ErrPaymentReversed, payment.ID)
	}
	inv, err := tx.LockInvoice(ctx, payment.InvoiceID)
	if err != nil {
		return Invoice{}, Payment{}, err
	}
	return inv, payment, nil
}

// UnsettleTx takes a reversed payment off the locked invoice and links the
// payment to the entry that reversed it.
func (s *Service) UnsettleTx(ctx context.Context, tx TxRepository, inv Invoice, payment Payment, reversalEntryID int64) (Invoice, Payment, error) {
	if err := tx.MarkPaymentReversed(ctx, payment.ID, reversalEntryID); err != nil {
		return Invoice{}, Payment{}, err
	}
	rid := reversalEntryID
	payment.ReversalEntryID = &rid
	inv.PaidAmount = inv.PaidAmount.Sub(payment.Amount)
	if inv.PaidAmount.IsNegative() {
		return Invoice{}, Payment{}, fmt.Errorf("%w: invoice %s paid amount below zero", shared.ErrConsistency, inv.Number)
	}
	inv.Status = StatusFor(inv.Total, inv.PaidAmount)
	if err := tx.UpdateSettlement(ctx, inv); err != nil {
		return Invoice{}, Payment{}, err
	}
	return inv, payment, nil
}

// Committed audits a settlement or payment reversal whose transaction has
// committed.
func (s *Service) Committed(ctx context.Context, inv Invoice, payment Payment) {
	action := "ap_payment.settle"
	if payment.Reversed() {
		action = "ap_payment.reverse"
	}
	s.record(ctx, payment.CreatedBy, action, inv, map[string]any{
		"payment_id":  payment.ID,
		"amount":      payment.Amount.StringFixed(2),
		"paid_amount": inv.PaidAmount.StringFixed(2),
		"status":      string(inv.Status),
		"entry_id":    payment.EntryID,
	})
}

// Aging groups outstanding balances by days past due at asOf.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingBucket, error) {
	invoices, err := s.repo.ListInvoices(ctx, "")
	if err != nil {
		return AgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	bucket := AgingBucket{Current: decimal.Zero, Bucket30: decimal.Zero, Bucket60: decimal.Zero, Bucket90: decimal.Zero, Bucket120: decimal.Zero}
	for _, inv := range invoices {
		if !inv.Payable() {
			continue
		}
		balance := inv.Outstanding()
		days := int(asOf.Sub(inv.DueAt).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current = bucket.Current.Add(balance)
		case days <= 30:
			bucket.Bucket30 = bucket.Bucket30.Add(balance)
		case days <= 60:
			bucket.Bucket60 = bucket.Bucket60.Add(balance)
		case days <= 90:
			bucket.Bucket90 = bucket.Bucket90.Add(balance)
		default:
			bucket.Bucket120 = bucket.Bucket120.Add(balance)
		}
	}
	return bucket, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, inv Invoice, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = inv.Number
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "supplier_invoice",
		EntityID: strconv.FormatInt(inv.ID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("ap audit failed", slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
	}
}
