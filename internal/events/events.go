// Package events carries ledger notifications out of the posting
// transaction. Events are written to the ledger_events outbox in the same
// transaction as the ledger rows they describe, then relayed to subscribers
// after commit.
package events

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger event types.
const (
	TypeMovementCompleted    = "ledger.movement_completed"
	TypeEntryPosted          = "ledger.entry_posted"
	TypeEntryReversed        = "ledger.entry_reversed"
	TypePaymentSettled       = "ledger.payment_settled"
	TypeDepreciationPosted   = "ledger.depreciation_posted"
	TypePaymentReversed      = "ledger.payment_reversed"
	TypeDepreciationReversed = "ledger.depreciation_reversed"
)

// Event is one outbox row.
type Event struct {
	ID          uuid.UUID
	Type        string
	Aggregate   string
	AggregateID string
	DedupeKey   string
	Payload     json.RawMessage
	OccurredAt  time.Time
	PublishedAt *time.Time
	Attempts    int
	LastError   string
}

// New builds an event with a fresh id. The dedupe key defaults to
// type/aggregate/id so the same business fact is stored once.
func New(eventType, aggregate, aggregateID, dedupeKey string, payload any) (Event, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return Event{}, errors.New("events: missing event type")
	}
	if strings.TrimSpace(aggregate) == "" || strings.TrimSpace(aggregateID) == "" {
		return Event{}, errors.New("events: missing aggregate")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	if strings.TrimSpace(dedupeKey) == "" {
		dedupeKey = eventType + ":" + aggregate + ":" + aggregateID
	}
	return Event{
		ID:          uuid.New(),
		Type:        eventType,
		Aggregate:   aggregate,
		AggregateID: aggregateID,
		DedupeKey:   dedupeKey,
		Payload:     raw,
	}, nil
}

// Decode unmarshals the payload into dest.
func (e Event) Decode(dest any) error {
	return json.Unmarshal(e.Payload, dest)
}

// MovementPayload describes one inventory movement inside an operation.
type MovementPayload struct {
	TransactionID  int64           `json:"transaction_id"`
	MaterialID     int64           `json:"material_id"`
	LocationID     int64           `json:"location_id"`
	Type           string          `json:"type"`
	Quantity       decimal.Decimal `json:"quantity"`
	BeforeQuantity decimal.Decimal `json:"before_quantity"`
	AfterQuantity  decimal.Decimal `json:"after_quantity"`
}

// MovementCompleted is emitted once per coordinator operation that moved
// stock.
type MovementCompleted struct {
	Operation     string            `json:"operation"`
	ReferenceNo   string            `json:"reference_no"`
	ReferenceType string            `json:"reference_type"`
	EntryID       *int64            `json:"entry_id,omitempty"`
	Movements     []MovementPayload `json:"movements"`
}

// EntryPosted is emitted for every journal entry posted or reversed through
// the coordinator.
type EntryPosted struct {
	EntryID         int64           `json:"entry_id"`
	EntryNumber     string          `json:"entry_number"`
	PeriodID        int64           `json:"period_id"`
	DocumentType    string          `json:"document_type"`
	Amount          decimal.Decimal `json:"amount"`
	ReversesEntryID *int64          `json:"reverses_entry_id,omitempty"`
}

// PaymentSettled is emitted after a supplier payment is applied.
type PaymentSettled struct {
	InvoiceID  int64           `json:"invoice_id"`
	PaymentID  int64           `json:"payment_id"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Status     string          `json:"status"`
	EntryID    int64           `json:"entry_id"`
}

// DepreciationPosted is emitted after a depreciation charge is booked.
type DepreciationPosted struct {
	AssetID     int64           `json:"asset_id"`
	PeriodID    int64           `json:"period_id"`
	Amount      decimal.Decimal `json:"amount"`
	Accumulated decimal.Decimal `json:"accumulated"`
	EntryID     int64           `json:"entry_id"`
}
