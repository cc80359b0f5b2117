package shared

import (
	"fmt"

	"github.com/shopspring/decimal"

	base "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = base.NewKindError("accounting: journal lines must balance", base.ErrInvalidArgument)
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = base.NewKindError("accounting: journal requires at least two lines", base.ErrInvalidArgument)
	// ErrPeriodClosed indicates the period no longer accepts entries.
	ErrPeriodClosed = base.NewKindError("accounting: period closed", base.ErrBusinessRule)
	// ErrPeriodNotFound indicates missing period.
	ErrPeriodNotFound = base.NewKindError("accounting: period not found", base.ErrNotFound)
	// ErrPeriodOverlap indicates the date range intersects an existing period.
	ErrPeriodOverlap = base.NewKindError("accounting: period overlaps existing period", base.ErrConflict)
	// ErrDateOutOfRange indicates journal date mismatch.
	ErrDateOutOfRange = base.NewKindError("accounting: date outside period", base.ErrBusinessRule)
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = base.NewKindError("accounting: journal entry not found", base.ErrNotFound)
	// ErrAlreadyReversed indicates the entry already has a reversal.
	ErrAlreadyReversed = base.NewKindError("accounting: journal entry already reversed", base.ErrBusinessRule)
	// ErrDocumentOwned indicates the entry belongs to a document and is
	// reversed through the operation that owns it.
	ErrDocumentOwned = base.NewKindError("accounting: journal entry owned by a document", base.ErrBusinessRule)
	// ErrNotPosted indicates the entry is not in posted state.
	ErrNotPosted = base.NewKindError("accounting: journal entry not posted", base.ErrBusinessRule)
	// ErrDuplicateEntryNumber indicates the caller reused an entry number.
	ErrDuplicateEntryNumber = base.NewKindError("accounting: entry number already used", base.ErrConflict)
	// ErrInactiveAccount indicates a posting against a deactivated account.
	ErrInactiveAccount = base.NewKindError("accounting: account inactive", base.ErrBusinessRule)
	// ErrAccountNotFound indicates missing account.
	ErrAccountNotFound = base.NewKindError("accounting: account not found", base.ErrNotFound)
	// ErrAccountCodeTaken indicates the code is already in use.
	ErrAccountCodeTaken = base.NewKindError("accounting: account code already exists", base.ErrConflict)
	// ErrAccountCodeLocked indicates the code is referenced by journal lines.
	ErrAccountCodeLocked = base.NewKindError("accounting: account code referenced by journal lines", base.ErrBusinessRule)
	// ErrInvalidParent indicates a parent of a different type or a cycle.
	ErrInvalidParent = base.NewKindError("accounting: invalid parent account", base.ErrInvalidArgument)
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = base.NewKindError("accounting: account mapping not found", base.ErrNotFound)
)

// UnbalancedEntryError carries the totals of a rejected entry.
type UnbalancedEntryError struct {
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("accounting: journal lines must balance (debit %s, credit %s)",
		e.DebitTotal.StringFixed(2), e.CreditTotal.StringFixed(2))
}

func (e *UnbalancedEntryError) Unwrap() error { return ErrUnbalanced }

// InactiveAccountError names the inactive account a posting referenced.
type InactiveAccountError struct {
	AccountID int64
	Code      string
}

func (e *InactiveAccountError) Error() string {
	return fmt.Sprintf("accounting: account %d (%s) inactive", e.AccountID, e.Code)
}

func (e *InactiveAccountError) Unwrap() error { return ErrInactiveAccount }

// PeriodClosedError names the closed period a write targeted.
type PeriodClosedError struct {
	PeriodID int64
	Label    string
}

func (e *PeriodClosedError) Error() string {
	return fmt.Sprintf("accounting: period %d (%s) closed", e.PeriodID, e.Label)
}

func (e *PeriodClosedError) Unwrap() error { return ErrPeriodClosed }
