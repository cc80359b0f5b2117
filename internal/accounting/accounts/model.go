package accounts

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"

	accountingShared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// NormalSide is the side on which an account's balance increases.
type NormalSide string

const (
	NormalSideDebit  NormalSide = "DEBIT"
	NormalSideCredit NormalSide = "CREDIT"
)

// DefaultNormalSide derives the conventional side for an account type.
func DefaultNormalSide(t AccountType) NormalSide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalSideDebit
	default:
		return NormalSideCredit
	}
}

// DefaultCurrency is used when callers omit a currency.
const DefaultCurrency = "IDR"

// Account models a chart of accounts node.
type Account struct {
	ID         int64
	Code       string
	Name       string
	Type       AccountType
	ParentID   *int64
	NormalSide NormalSide
	IsActive   bool
	Currency   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateInput describes a new account.
type CreateInput struct {
	Code       string
	Name       string
	Type       AccountType
	ParentID   *int64
	NormalSide NormalSide
	Currency   string
	ActorID    int64
}

// Normalize trims and defaults fields, then validates them.
func (in *CreateInput) Normalize() error {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Type = AccountType(strings.ToUpper(string(in.Type)))
	if in.Code == "" || in.Name == "" {
		return fmt.Errorf("%w: account code and name required", shared.ErrInvalidArgument)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown account type %q", shared.ErrInvalidArgument, in.Type)
	}
	if in.NormalSide == "" {
		in.NormalSide = DefaultNormalSide(in.Type)
	}
	if in.NormalSide != NormalSideDebit && in.NormalSide != NormalSideCredit {
		return fmt.Errorf("%w: unknown normal side %q", shared.ErrInvalidArgument, in.NormalSide)
	}
	code, err := NormalizeCurrency(in.Currency)
	if err != nil {
		return err
	}
	in.Currency = code
	return nil
}

// UpdateInput renames an account or changes its code.
type UpdateInput struct {
	ID      int64
	Code    string
	Name    string
	ActorID int64
}

// NormalizeCurrency validates an ISO-4217 code, defaulting empty input.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: unknown currency %q", shared.ErrInvalidArgument, code)
	}
	return unit.String(), nil
}

// RequirePostable checks that every id was found and is active. found is the
// result of a locked lookup inside the posting transaction.
func RequirePostable(found map[int64]Account, ids []int64) error {
	for _, id := range ids {
		acct, ok := found[id]
		if !ok {
			return fmt.Errorf("%w: %d", accountingShared.ErrAccountNotFound, id)
		}
		if !acct.IsActive {
			return &accountingShared.InactiveAccountError{AccountID: acct.ID, Code: acct.Code}
		}
	}
	return nil
}
