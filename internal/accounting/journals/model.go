package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// JournalEntry captures posting metadata. Entries are created posted; the
// only later transition is posted -> reversed.
type JournalEntry struct {
	ID              int64
	EntryNumber     string
	EntryDate       time.Time
	PostingDate     time.Time
	DocumentType    string
	DocumentNumber  *string
	PeriodID        int64
	Posted          bool
	Reversed        bool
	ReversalEntryID *int64
	ReversesEntryID *int64
	CreatedBy       int64
	CreatedAt       time.Time
	Lines           []JournalLine
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID           int64
	EntryID      int64
	LineNo       int
	AccountID    int64
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	CurrencyCode string
	ExchangeRate decimal.Decimal
	CostCenterID *int64
	Description  string
}

// Totals aggregates both sides of a set of lines.
type Totals struct {
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
}

// Balanced reports whether both sides match to the cent.
func (t Totals) Balanced() bool {
	return t.DebitTotal.Round(2).Equal(t.CreditTotal.Round(2))
}

// LineTotals sums the lines of an entry.
func LineTotals(lines []JournalLine) Totals {
	t := Totals{DebitTotal: decimal.Zero, CreditTotal: decimal.Zero}
	for _, l := range lines {
		t.DebitTotal = t.DebitTotal.Add(l.Debit)
		t.CreditTotal = t.CreditTotal.Add(l.Credit)
	}
	return t
}

// AccountTotals is one trial balance row for a period.
type AccountTotals struct {
	AccountID   int64
	Code        string
	Name        string
	Type        string
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
}

// EntryTotals is the per-entry aggregate used by integrity checks.
type EntryTotals struct {
	EntryID     int64
	EntryNumber string
	Totals
}
