package periods

import (
	"fmt"
	"strings"
	"time"

	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = internalShared.PeriodStatusOpen
	PeriodStatusClosed PeriodStatus = internalShared.PeriodStatusClosed
)

// Period represents a fiscal period window. Dates are inclusive.
type Period struct {
	ID        int64
	Label     string
	StartDate time.Time
	EndDate   time.Time
	Status    PeriodStatus
	ClosedAt  *time.Time
	ClosedBy  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsClosed reports whether the period rejects new entries.
func (p Period) IsClosed() bool {
	return p.Status == PeriodStatusClosed
}

// Contains reports whether date falls inside the period.
func (p Period) Contains(date time.Time) bool {
	d := truncateDate(date)
	return !d.Before(truncateDate(p.StartDate)) && !d.After(truncateDate(p.EndDate))
}

// Overlaps reports whether the two inclusive ranges intersect.
func (p Period) Overlaps(start, end time.Time) bool {
	return !truncateDate(start).After(truncateDate(p.EndDate)) && !truncateDate(end).Before(truncateDate(p.StartDate))
}

// CreatePeriodInput describes a new period.
type CreatePeriodInput struct {
	Label     string
	StartDate time.Time
	EndDate   time.Time
	ActorID   int64
}

// Validate ensures the input is well formed.
func (in *CreatePeriodInput) Validate() error {
	in.Label = strings.TrimSpace(in.Label)
	if in.Label == "" {
		return fmt.Errorf("%w: period label required", internalShared.ErrInvalidArgument)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return fmt.Errorf("%w: period dates required", internalShared.ErrInvalidArgument)
	}
	in.StartDate = truncateDate(in.StartDate)
	in.EndDate = truncateDate(in.EndDate)
	if in.EndDate.Before(in.StartDate) {
		return fmt.Errorf("%w: period end before start", internalShared.ErrInvalidArgument)
	}
	return nil
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
