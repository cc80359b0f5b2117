package app

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/odyssey-ledger/internal/events"
)

var ledgerEventTypes = []string{
	events.TypeMovementCompleted,
	events.TypeEntryPosted,
	events.TypeEntryReversed,
	events.TypePaymentSettled,
	events.TypeDepreciationPosted,
	events.TypePaymentReversed,
	events.TypeDepreciationReversed,
}

// ReportInvalidator drops cached reports of a period.
type ReportInvalidator interface {
	Invalidate(ctx context.Context, periodID int64) error
}

// NewEventBus registers the worker's subscribers. Every event is logged and
// postings or reversals invalidate the period's cached reports.
func NewEventBus(logger *slog.Logger, reports ReportInvalidator) *events.Bus {
	if logger == nil {
		logger = slog.Default()
	}
	bus := events.NewBus(logger)
	audit := events.LogSubscriber(logger)
	for _, t := range ledgerEventTypes {
		bus.Subscribe(t, audit)
	}
	if reports != nil {
		invalidate := events.SubscriberFunc(func(ctx context.Context, e events.Event) error {
			var payload events.EntryPosted
			if err := e.Decode(&payload); err != nil {
				return err
			}
			return reports.Invalidate(ctx, payload.PeriodID)
		})
		bus.Subscribe(events.TypeEntryPosted, invalidate)
		bus.Subscribe(events.TypeEntryReversed, invalidate)
	}
	return bus
}
