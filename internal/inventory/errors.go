package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	// ErrInsufficientStock rejects an outbound movement larger than on-hand stock.
	ErrInsufficientStock = shared.NewKindError("inventory: insufficient stock", shared.ErrBusinessRule)
	// ErrProjectionInconsistency flags a stock balance that disagrees with the movement log.
	ErrProjectionInconsistency = shared.NewKindError("inventory: projection inconsistent with movement log", shared.ErrConsistency)
	// ErrChainBroken flags stored before/after values that do not replay.
	ErrChainBroken = shared.NewKindError("inventory: movement chain broken", shared.ErrConsistency)
	// ErrInvalidQuantity indicates a quantity outside NUMERIC(10,2) or not positive.
	ErrInvalidQuantity = shared.NewKindError("inventory: invalid quantity", shared.ErrInvalidArgument)
	// ErrUnknownMovementType indicates an unsupported movement type.
	ErrUnknownMovementType = shared.NewKindError("inventory: unknown movement type", shared.ErrInvalidArgument)
	// ErrReservationExceeded rejects a reservation above available stock or a release above reserved.
	ErrReservationExceeded = shared.NewKindError("inventory: reservation exceeds stock", shared.ErrBusinessRule)

	// ErrBalanceNotFound indicates missing balance row.
	ErrBalanceNotFound = errors.New("inventory: balance not found")
)

// InsufficientStockError carries the figures needed to explain a rejection.
type InsufficientStockError struct {
	MaterialID int64
	LocationID int64
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for %d:%d (available %s, requested %s)",
		e.MaterialID, e.LocationID, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ProjectionInconsistencyError describes a stock balance row that does not
// match the latest movement of its key.
type ProjectionInconsistencyError struct {
	MaterialID int64
	LocationID int64
	Projected  decimal.Decimal
	Ledger     decimal.Decimal
	Reason     string
}

func (e *ProjectionInconsistencyError) Error() string {
	return fmt.Sprintf("inventory: projection for %d:%d inconsistent: %s (projected %s, ledger %s)",
		e.MaterialID, e.LocationID, e.Reason, e.Projected.StringFixed(2), e.Ledger.StringFixed(2))
}

func (e *ProjectionInconsistencyError) Unwrap() error { return ErrProjectionInconsistency }

// ChainBreakError points at the first transaction whose stored quantities
// differ from a replay from zero.
type ChainBreakError struct {
	TransactionID int64
	Field         string
	Stored        decimal.Decimal
	Replayed      decimal.Decimal
}

func (e *ChainBreakError) Error() string {
	return fmt.Sprintf("inventory: transaction %d %s stored %s, replayed %s",
		e.TransactionID, e.Field, e.Stored.StringFixed(2), e.Replayed.StringFixed(2))
}

func (e *ChainBreakError) Unwrap() error { return ErrChainBroken }
