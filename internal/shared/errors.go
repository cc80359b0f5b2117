package shared

import "errors"

var (
	// ErrInvalidArgument indicates the caller supplied malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or state conflict.
	ErrConflict = errors.New("conflict")
	// ErrBusy indicates lock contention; the whole operation may be retried.
	ErrBusy = errors.New("resource busy")
	// ErrTimeout indicates the operation exceeded its deadline; the whole operation may be retried.
	ErrTimeout = errors.New("operation timed out")
	// ErrConsistency indicates stored state violates a ledger invariant.
	ErrConsistency = errors.New("consistency violation")
	// ErrBusinessRule indicates a well-formed request rejected by ledger rules.
	ErrBusinessRule = errors.New("business rule violation")
)

// Kind classifies errors for callers that translate them (HTTP, jobs, logs).
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindBusinessRule
	KindConsistency
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBusinessRule:
		return "business_rule"
	case KindConsistency:
		return "consistency"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// KindOf reports the category of err. Consistency wins over every other kind
// so that a corrupted projection is never reported as a plain business error.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrConsistency):
		return KindConsistency
	case errors.Is(err, ErrBusy), errors.Is(err, ErrTimeout):
		return KindInfrastructure
	case errors.Is(err, ErrInvalidArgument):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrBusinessRule):
		return KindBusinessRule
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether the whole business operation can be retried.
func IsRetryable(err error) bool {
	return KindOf(err) == KindInfrastructure
}

// kindError tags a specific sentinel with a generic kind so both match errors.Is.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// NewKindError returns a sentinel that also matches kind via errors.Is.
func NewKindError(msg string, kind error) error {
	return &kindError{msg: msg, kind: kind}
}
