package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PeriodLister lists accounting periods.
type PeriodLister interface {
	List(ctx context.Context) ([]periods.Period, error)
}

// EntryTotaler returns per-entry debit and credit sums for a period.
type EntryTotaler interface {
	EntryTotals(ctx context.Context, periodID int64) ([]journals.EntryTotals, error)
}

// GLIntegrityJob verifies that every posted journal entry balances.
type GLIntegrityJob struct {
	Periods  PeriodLister
	Journals EntryTotaler
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewGLIntegrityJob constructs the job handler.
func NewGLIntegrityJob(periods PeriodLister, journals EntryTotaler, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Periods: periods, Journals: journals, Logger: logger, Metrics: metrics}
}

// Handle runs the check for the period in the payload, or for all periods.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Periods == nil || j.Journals == nil {
		return errors.New("gl integrity: handler not configured")
	}
	var payload GLIntegrityPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	tracker := j.Metrics.Track(TaskGLIntegrity)
	defer func() { err = tracker.End(err) }()

	violations, err := j.Check(ctx, payload.PeriodID)
	if err != nil {
		return err
	}
	if violations > 0 {
		return fmt.Errorf("gl integrity: %d unbalanced entries: %w: %w", violations, shared.ErrConsistency, asynq.SkipRetry)
	}
	return nil
}

// Check returns the number of unbalanced entries found.
func (j *GLIntegrityJob) Check(ctx context.Context, periodID int64) (int, error) {
	ids := []int64{periodID}
	if periodID == 0 {
		list, err := j.Periods.List(ctx)
		if err != nil {
			return 0, err
		}
		ids = ids[:0]
		for _, p := range list {
			ids = append(ids, p.ID)
		}
	}
	logger := j.logger()
	violations, entries := 0, 0
	for _, id := range ids {
		totals, err := j.Journals.EntryTotals(ctx, id)
		if err != nil {
			return violations, err
		}
		for _, et := range totals {
			entries++
			if et.DebitTotal.Equal(et.CreditTotal) {
				continue
			}
			violations++
			logger.Error("unbalanced journal entry",
				slog.Int64("period_id", id),
				slog.Int64("entry_id", et.EntryID),
				slog.String("entry_number", et.EntryNumber),
				slog.String("debit", et.DebitTotal.StringFixed(2)),
				slog.String("credit", et.CreditTotal.StringFixed(2)))
		}
	}
	j.Metrics.AddViolations("gl_balance", violations)
	logger.Info("gl integrity check completed",
		slog.Int("periods", len(ids)),
		slog.Int("entries", entries),
		slog.Int("violations", violations))
	return violations, nil
}

func (j *GLIntegrityJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", TaskGLIntegrity))
	}
	return j.Logger.With(slog.String("job", TaskGLIntegrity))
}
