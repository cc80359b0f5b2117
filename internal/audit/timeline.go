package audit

import "time"

// Timeline page sizes.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Entry is one audit_logs row.
type Entry struct {
	ID         int64
	ActorID    int64
	Action     string
	Entity     string
	EntityID   string
	Meta       map[string]any
	OccurredAt time.Time
}

// TimelineFilters narrows the audit timeline. Empty fields match everything;
// To is exclusive. Rows come back in id order after AfterID.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	EntityID string
	Action   string
	AfterID  int64
	Limit    int
}

// Page is one slice of the timeline. NextCursor is nil on the last page.
type Page struct {
	Rows       []Entry
	NextCursor *int64
}
