package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MovementType enumerates supported inventory movements. The quantity of a
// movement is always positive; the type carries the sign.
type MovementType string

const (
	MovementInbound            MovementType = "INBOUND"
	MovementOutbound           MovementType = "OUTBOUND"
	MovementTransferIn         MovementType = "TRANSFER_IN"
	MovementTransferOut        MovementType = "TRANSFER_OUT"
	MovementAdjustIn           MovementType = "ADJUST_IN"
	MovementAdjustOut          MovementType = "ADJUST_OUT"
	MovementOutsourcedInbound  MovementType = "OUTSOURCED_INBOUND"
	MovementOutsourcedOutbound MovementType = "OUTSOURCED_OUTBOUND"
)

// Direction returns +1 for inbound-class types, -1 for outbound-class types
// and 0 for unknown types.
func (t MovementType) Direction() int {
	switch t {
	case MovementInbound, MovementTransferIn, MovementAdjustIn, MovementOutsourcedInbound:
		return 1
	case MovementOutbound, MovementTransferOut, MovementAdjustOut, MovementOutsourcedOutbound:
		return -1
	}
	return 0
}

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool { return t.Direction() != 0 }

// Outbound reports whether t decreases stock.
func (t MovementType) Outbound() bool { return t.Direction() < 0 }

// Apply computes the after-quantity of a movement of qty from before.
func (t MovementType) Apply(before, qty decimal.Decimal) decimal.Decimal {
	if t.Outbound() {
		return before.Sub(qty)
	}
	return before.Add(qty)
}

// Key identifies one stock ledger: a material at a location.
type Key struct {
	MaterialID int64
	LocationID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.MaterialID, k.LocationID)
}

func (k Key) less(o Key) bool {
	if k.MaterialID != o.MaterialID {
		return k.MaterialID < o.MaterialID
	}
	return k.LocationID < o.LocationID
}

// Provenance names the business document behind a movement.
type Provenance struct {
	ReferenceNo   string
	ReferenceType string
	Operator      string
	Remark        string
	UnitID        *int64
}

// MovementInput is a request to append one movement. A nil UnitCost values
// the movement at the moving average of its key; a TRANSFER_IN without one
// takes the cost of the preceding TRANSFER_OUT of the same material.
type MovementInput struct {
	MaterialID int64
	LocationID int64
	Type       MovementType
	Quantity   decimal.Decimal
	UnitCost   *decimal.Decimal
	Provenance
}

// Key returns the stock ledger the movement applies to.
func (in MovementInput) Key() Key {
	return Key{MaterialID: in.MaterialID, LocationID: in.LocationID}
}

// Validate checks the movement before any storage access.
func (in *MovementInput) Validate() error {
	if in.MaterialID <= 0 || in.LocationID <= 0 {
		return fmt.Errorf("%w: material and location required", shared.ErrInvalidArgument)
	}
	in.Type = MovementType(strings.ToUpper(strings.TrimSpace(string(in.Type))))
	if !in.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMovementType, in.Type)
	}
	if err := shared.ValidateMagnitude("quantity", in.Quantity, shared.MaxQuantity); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuantity, err)
	}
	if in.UnitCost != nil && (in.UnitCost.IsNegative() || in.UnitCost.GreaterThanOrEqual(shared.MaxAmount)) {
		return fmt.Errorf("%w: unit cost out of range", shared.ErrInvalidArgument)
	}
	in.ReferenceNo = strings.TrimSpace(in.ReferenceNo)
	in.ReferenceType = strings.TrimSpace(in.ReferenceType)
	in.Operator = strings.TrimSpace(in.Operator)
	in.Remark = strings.TrimSpace(in.Remark)
	return nil
}

// Transaction is one immutable row of the movement log. Before and after
// quantities are captured at write time.
type Transaction struct {
	ID             int64
	MaterialID     int64
	LocationID     int64
	Type           MovementType
	Quantity       decimal.Decimal
	BeforeQuantity decimal.Decimal
	AfterQuantity  decimal.Decimal
	UnitCost       decimal.Decimal
	UnitID         *int64
	ReferenceNo    string
	ReferenceType  string
	Operator       string
	Remark         string
	OccurredAt     time.Time
}

// Key returns the stock ledger of the transaction.
func (t Transaction) Key() Key {
	return Key{MaterialID: t.MaterialID, LocationID: t.LocationID}
}

// Value is quantity times the unit cost the movement was booked at.
func (t Transaction) Value() decimal.Decimal {
	return shared.Round2(t.Quantity.Mul(t.UnitCost))
}

// Balance is the stock projection row for a key.
type Balance struct {
	MaterialID int64
	LocationID int64
	Quantity   decimal.Decimal
	Reserved   decimal.Decimal
	AvgCost    decimal.Decimal
	UpdatedAt  time.Time
}

// Key returns the stock ledger of the balance.
func (b Balance) Key() Key {
	return Key{MaterialID: b.MaterialID, LocationID: b.LocationID}
}

// Available is on-hand quantity not held by reservations.
func (b Balance) Available() decimal.Decimal {
	return b.Quantity.Sub(b.Reserved)
}

// HistoryFilter narrows History. LocationID nil spans all locations.
// AfterID is a keyset cursor: only movements with a larger id are returned.
// A zero Limit returns every matching movement.
type HistoryFilter struct {
	MaterialID int64
	LocationID *int64
	From       time.Time
	To         time.Time
	AfterID    int64
	Limit      int
}

const (
	// HistoryPageSize is the page size of the history endpoint.
	HistoryPageSize = 200
	maxHistoryLimit = 5000
	// costScale is the precision of the moving average cost.
	costScale = 4
)

func (f *HistoryFilter) normalize() error {
	if f.MaterialID <= 0 {
		return fmt.Errorf("%w: material required", shared.ErrInvalidArgument)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return fmt.Errorf("%w: to before from", shared.ErrInvalidArgument)
	}
	if f.AfterID < 0 {
		return fmt.Errorf("%w: cursor must not be negative", shared.ErrInvalidArgument)
	}
	if f.Limit < 0 || f.Limit > maxHistoryLimit {
		return fmt.Errorf("%w: limit must be between 0 and %d", shared.ErrInvalidArgument, maxHistoryLimit)
	}
	return nil
}

// ReservationInput holds or frees stock for a key.
type ReservationInput struct {
	MaterialID int64
	LocationID int64
	Quantity   decimal.Decimal
	Operator   string
}

// Key returns the stock ledger of the reservation.
func (in ReservationInput) Key() Key {
	return Key{MaterialID: in.MaterialID, LocationID: in.LocationID}
}

func (in *ReservationInput) validate() error {
	if in.MaterialID <= 0 || in.LocationID <= 0 {
		return fmt.Errorf("%w: material and location required", shared.ErrInvalidArgument)
	}
	if err := shared.ValidateMagnitude("quantity", in.Quantity, shared.MaxQuantity); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuantity, err)
	}
	return nil
}
