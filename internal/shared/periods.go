package shared

// Period statuses reused outside accounting module.
const (
	PeriodStatusOpen   = "OPEN"
	PeriodStatusClosed = "CLOSED"
)

// ErrInvalidPeriodTransition indicates status change not allowed.
var ErrInvalidPeriodTransition = NewKindError("period transition invalid", ErrBusinessRule)

// ValidatePeriodTransition checks transitions. Closing is terminal: there is no
// path back to OPEN.
func ValidatePeriodTransition(current, target string) error {
	if current == PeriodStatusOpen && target == PeriodStatusClosed {
		return nil
	}
	return ErrInvalidPeriodTransition
}
