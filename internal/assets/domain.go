package assets

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Status enumerates fixed asset statuses.
type Status string

const (
	StatusActive           Status = "ACTIVE"
	StatusFullyDepreciated Status = "FULLY_DEPRECIATED"
	StatusDisposed         Status = "DISPOSED"
)

var (
	ErrAssetNotFound      = shared.NewKindError("assets: asset not found", shared.ErrNotFound)
	ErrAssetCodeTaken     = shared.NewKindError("assets: asset code already exists", shared.ErrConflict)
	ErrNotDepreciable     = shared.NewKindError("assets: asset not depreciable", shared.ErrBusinessRule)
	ErrAlreadyDepreciated = shared.NewKindError("assets: asset already depreciated for period", shared.ErrBusinessRule)
	ErrExceedsBookValue   = shared.NewKindError("assets: depreciation exceeds remaining book value", shared.ErrBusinessRule)
	ErrChargeNotFound     = shared.NewKindError("assets: depreciation charge not found", shared.ErrNotFound)
	ErrNotLatestCharge    = shared.NewKindError("assets: only the latest depreciation charge can be reversed", shared.ErrBusinessRule)
)

// ExceedsBookValueError carries the remaining depreciable amount.
type ExceedsBookValueError struct {
	AssetID   int64
	Remaining decimal.Decimal
	Requested decimal.Decimal
}

func (e *ExceedsBookValueError) Error() string {
	return fmt.Sprintf("assets: depreciation %s exceeds remaining %s on asset %d",
		e.Requested.StringFixed(2), e.Remaining.StringFixed(2), e.AssetID)
}

func (e *ExceedsBookValueError) Unwrap() error { return ErrExceedsBookValue }

// Asset is a depreciable fixed asset.
type Asset struct {
	ID                       int64
	Code                     string
	Name                     string
	AcquisitionCost          decimal.Decimal
	SalvageValue             decimal.Decimal
	AccumulatedDepreciation  decimal.Decimal
	MonthlyDepreciation      decimal.Decimal
	LastDepreciationPeriodID *int64
	Status                   Status
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// BookValue is cost less accumulated depreciation.
func (a Asset) BookValue() decimal.Decimal {
	return a.AcquisitionCost.Sub(a.AccumulatedDepreciation)
}

// Remaining is the amount still to be depreciated before salvage value.
func (a Asset) Remaining() decimal.Decimal {
	return a.AcquisitionCost.Sub(a.SalvageValue).Sub(a.AccumulatedDepreciation)
}

// DepreciatedIn reports whether periodID was the last depreciated period.
func (a Asset) DepreciatedIn(periodID int64) bool {
	return a.LastDepreciationPeriodID != nil && *a.LastDepreciationPeriodID == periodID
}

// Depreciation is one posted depreciation charge.
type Depreciation struct {
	AssetID   int64
	PeriodID  int64
	Amount    decimal.Decimal
	EntryID   int64
	CreatedAt time.Time
}

// CreateInput registers an asset. MonthlyDepreciation may be left zero when
// UsefulLifeMonths is given; it is then derived straight-line.
type CreateInput struct {
	Code                string
	Name                string
	AcquisitionCost     decimal.Decimal
	SalvageValue        decimal.Decimal
	MonthlyDepreciation decimal.Decimal
	UsefulLifeMonths    int
	ActorID             int64
}

func (in *CreateInput) normalize() error {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" || in.Name == "" {
		return fmt.Errorf("%w: code and name required", shared.ErrInvalidArgument)
	}
	if err := shared.ValidateMagnitude("acquisition_cost", in.AcquisitionCost, shared.MaxAmount); err != nil {
		return err
	}
	if in.SalvageValue.IsNegative() || !shared.HasScale(in.SalvageValue, 2) {
		return fmt.Errorf("%w: salvage_value must be a non-negative amount", shared.ErrInvalidArgument)
	}
	depreciable := in.AcquisitionCost.Sub(in.SalvageValue)
	if !depreciable.IsPositive() {
		return fmt.Errorf("%w: salvage_value must be below acquisition_cost", shared.ErrInvalidArgument)
	}
	if in.MonthlyDepreciation.IsZero() {
		if in.UsefulLifeMonths <= 0 {
			return fmt.Errorf("%w: monthly_depreciation or useful_life_months required", shared.ErrInvalidArgument)
		}
		in.MonthlyDepreciation = shared.Round2(depreciable.Div(decimal.NewFromInt(int64(in.UsefulLifeMonths))))
	}
	if err := shared.ValidateMagnitude("monthly_depreciation", in.MonthlyDepreciation, shared.MaxAmount); err != nil {
		return err
	}
	return nil
}
