package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PostingLineInput describes a journal line for posting request.
type PostingLineInput struct {
	AccountID    int64
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	CurrencyCode string
	ExchangeRate decimal.Decimal
	CostCenterID *int64
	Description  string
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	EntryNumber    string
	EntryDate      time.Time
	PostingDate    time.Time
	DocumentType   string
	DocumentNumber *string
	PeriodID       int64
	CreatedBy      int64
	Lines          []PostingLineInput
}

// Validate ensures posting input meets minimum criteria and that debits equal
// credits. It runs before any storage access.
func (in *PostingInput) Validate() error {
	in.EntryNumber = strings.TrimSpace(in.EntryNumber)
	if in.EntryNumber == "" {
		return fmt.Errorf("%w: entry number required", internalShared.ErrInvalidArgument)
	}
	if in.PeriodID == 0 {
		return fmt.Errorf("%w: period required", internalShared.ErrInvalidArgument)
	}
	if in.PostingDate.IsZero() {
		return fmt.Errorf("%w: posting date required", internalShared.ErrInvalidArgument)
	}
	if in.EntryDate.IsZero() {
		in.EntryDate = in.PostingDate
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx := range in.Lines {
		line := &in.Lines[idx]
		if err := line.validate(idx); err != nil {
			return err
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Round(2).Equal(credit.Round(2)) {
		return &shared.UnbalancedEntryError{DebitTotal: debit, CreditTotal: credit}
	}
	return nil
}

func (line *PostingLineInput) validate(idx int) error {
	if line.AccountID == 0 {
		return fmt.Errorf("%w: line %d missing account", internalShared.ErrInvalidArgument, idx)
	}
	if line.Debit.IsNegative() || line.Credit.IsNegative() {
		return fmt.Errorf("%w: line %d negative amount", internalShared.ErrInvalidArgument, idx)
	}
	if line.Debit.IsPositive() == line.Credit.IsPositive() {
		return fmt.Errorf("%w: line %d must carry exactly one of debit or credit", internalShared.ErrInvalidArgument, idx)
	}
	amount := line.Debit
	if line.Credit.IsPositive() {
		amount = line.Credit
	}
	if err := internalShared.ValidateMagnitude(fmt.Sprintf("line %d amount", idx), amount, internalShared.MaxAmount); err != nil {
		return err
	}
	if line.ExchangeRate.IsZero() {
		line.ExchangeRate = decimal.NewFromInt(1)
	}
	if !line.ExchangeRate.IsPositive() {
		return fmt.Errorf("%w: line %d exchange rate must be positive", internalShared.ErrInvalidArgument, idx)
	}
	if line.CurrencyCode != "" {
		code, err := accounts.NormalizeCurrency(line.CurrencyCode)
		if err != nil {
			return err
		}
		line.CurrencyCode = code
	}
	line.Description = strings.TrimSpace(line.Description)
	return nil
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	OriginalID  int64
	EntryNumber string
	EntryDate   time.Time
	PostingDate time.Time
	PeriodID    int64
	CreatedBy   int64
	// Compensated is set by the operation that owns the original's document
	// once it has undone the document side in the same transaction.
	Compensated bool
}

// Validate checks reversal metadata.
func (in *ReverseInput) Validate() error {
	in.EntryNumber = strings.TrimSpace(in.EntryNumber)
	if in.OriginalID == 0 {
		return fmt.Errorf("%w: original entry id required", internalShared.ErrInvalidArgument)
	}
	if in.EntryNumber == "" {
		return fmt.Errorf("%w: entry number required", internalShared.ErrInvalidArgument)
	}
	if in.PeriodID == 0 {
		return fmt.Errorf("%w: period required", internalShared.ErrInvalidArgument)
	}
	if in.PostingDate.IsZero() {
		return fmt.Errorf("%w: posting date required", internalShared.ErrInvalidArgument)
	}
	if in.EntryDate.IsZero() {
		in.EntryDate = in.PostingDate
	}
	return nil
}
