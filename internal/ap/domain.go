package ap

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// InvoiceStatus enumerates supplier invoice statuses.
type InvoiceStatus string

const (
	StatusOpen    InvoiceStatus = "OPEN"
	StatusPartial InvoiceStatus = "PARTIAL"
	StatusPaid    InvoiceStatus = "PAID"
	StatusVoid    InvoiceStatus = "VOID"
)

var (
	ErrInvoiceNotFound  = shared.NewKindError("ap: invoice not found", shared.ErrNotFound)
	ErrInvalidStatus    = shared.NewKindError("ap: invalid status for operation", shared.ErrBusinessRule)
	ErrDuplicateInvoice = shared.NewKindError("ap: invoice number already exists", shared.ErrConflict)
	ErrOverpayment      = shared.NewKindError("ap: payment exceeds outstanding balance", shared.ErrBusinessRule)
	ErrPaymentNotFound  = shared.NewKindError("ap: payment not found", shared.ErrNotFound)
	ErrPaymentReversed  = shared.NewKindError("ap: payment already reversed", shared.ErrBusinessRule)
)

// OverpaymentError carries the numbers behind a rejected payment.
type OverpaymentError struct {
	InvoiceID   int64
	Outstanding decimal.Decimal
	Requested   decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("ap: payment %s exceeds outstanding %s on invoice %d",
		e.Requested.StringFixed(2), e.Outstanding.StringFixed(2), e.InvoiceID)
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpayment }

// Invoice is a supplier invoice. PaidAmount and Status are denormalised from
// the payments recorded against it.
type Invoice struct {
	ID         int64
	Number     string
	SupplierID int64
	Total      decimal.Decimal
	PaidAmount decimal.Decimal
	Currency   string
	DueAt      time.Time
	Status     InvoiceStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Outstanding returns the unpaid balance.
func (i Invoice) Outstanding() decimal.Decimal {
	return i.Total.Sub(i.PaidAmount)
}

// Payable reports whether payments may still be applied.
func (i Invoice) Payable() bool {
	return i.Status == StatusOpen || i.Status == StatusPartial
}

// Payment records one settlement of an invoice and the journal entry that
// booked it. ReversalEntryID is set once the payment has been reversed.
type Payment struct {
	ID              int64
	InvoiceID       int64
	Amount          decimal.Decimal
	PaidAt          time.Time
	Reference       string
	EntryID         int64
	ReversalEntryID *int64
	CreatedBy       int64
	CreatedAt       time.Time
}

// Reversed reports whether the payment has been reversed.
func (p Payment) Reversed() bool { return p.ReversalEntryID != nil }

// StatusFor derives the invoice status from its totals.
func StatusFor(total, paid decimal.Decimal) InvoiceStatus {
	switch {
	case paid.IsZero():
		return StatusOpen
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	default:
		return StatusPartial
	}
}

// CreateInvoiceInput registers a supplier invoice.
type CreateInvoiceInput struct {
	Number     string
	SupplierID int64
	Total      decimal.Decimal
	Currency   string
	DueAt      time.Time
	ActorID    int64
}

func (in *CreateInvoiceInput) normalize() error {
	in.Number = strings.TrimSpace(in.Number)
	if in.Number == "" {
		return fmt.Errorf("%w: invoice number required", shared.ErrInvalidArgument)
	}
	if in.SupplierID <= 0 {
		return fmt.Errorf("%w: supplier required", shared.ErrInvalidArgument)
	}
	if err := shared.ValidateMagnitude("total", in.Total, shared.MaxAmount); err != nil {
		return err
	}
	code, err := accounts.NormalizeCurrency(in.Currency)
	if err != nil {
		return err
	}
	in.Currency = code
	if in.DueAt.IsZero() {
		return fmt.Errorf("%w: due date required", shared.ErrInvalidArgument)
	}
	return nil
}

// AgingBucket summarises outstanding totals by days past due.
type AgingBucket struct {
	Current   decimal.Decimal
	Bucket30  decimal.Decimal
	Bucket60  decimal.Decimal
	Bucket90  decimal.Decimal
	Bucket120 decimal.Decimal
}

// Total sums every bucket.
func (b AgingBucket) Total() decimal.Decimal {
	return b.Current.Add(b.Bucket30).Add(b.Bucket60).Add(b.Bucket90).Add(b.Bucket120)
}
