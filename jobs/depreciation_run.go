package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/assets"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// DueAssets lists assets still to be depreciated in a period.
type DueAssets interface {
	DueForPeriod(ctx context.Context, periodID int64) ([]assets.Asset, error)
}

// Depreciator posts one asset's depreciation.
type Depreciator interface {
	PostDepreciation(ctx context.Context, in ledger.DepreciationInput) (ledger.Result, error)
}

// PeriodFinder resolves the period containing a date.
type PeriodFinder interface {
	FindByDate(ctx context.Context, date time.Time) (periods.Period, error)
}

// Locker hands out exclusive leases.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error)
}

// DepreciationRunJob books the period's depreciation for every due asset.
type DepreciationRunJob struct {
	Assets      DueAssets
	Coordinator Depreciator
	Periods     PeriodFinder
	Lock        Locker
	LockTTL     time.Duration
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	clock       func() time.Time
}

// DepreciationRunConfig groups the job's collaborators.
type DepreciationRunConfig struct {
	Assets      DueAssets
	Coordinator Depreciator
	Periods     PeriodFinder
	Lock        Locker
	LockTTL     time.Duration
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// RunSummary reports what a batch did.
type RunSummary struct {
	PeriodID int64
	Posted   int
	Skipped  int
	Failed   int
}

// ErrRunInProgress is returned when another batch holds the period lock.
var ErrRunInProgress = shared.NewKindError("depreciation run already in progress", shared.ErrBusy)

// NewDepreciationRunJob constructs the job handler.
func NewDepreciationRunJob(cfg DepreciationRunConfig) *DepreciationRunJob {
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &DepreciationRunJob{
		Assets:      cfg.Assets,
		Coordinator: cfg.Coordinator,
		Periods:     cfg.Periods,
		Lock:        cfg.Lock,
		LockTTL:     ttl,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the clock used to resolve the default period.
func (j *DepreciationRunJob) WithClock(fn func() time.Time) *DepreciationRunJob {
	if fn != nil {
		j.clock = fn
	}
	return j
}

// Handle decodes the payload and runs the batch. A held lock is not an error
// for the queue: the other run covers the period.
func (j *DepreciationRunJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Assets == nil || j.Coordinator == nil {
		return errors.New("depreciation run: handler not configured")
	}
	var payload DepreciationRunPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	tracker := j.Metrics.Track(TaskDepreciationRun)
	defer func() { err = tracker.End(err) }()

	_, err = j.Run(ctx, payload.PeriodID, payload.ActorID)
	if errors.Is(err, ErrRunInProgress) {
		return nil
	}
	return err
}

// Run posts depreciation for each due asset of periodID. Assets that fail are
// logged and counted; the remaining assets are still processed.
func (j *DepreciationRunJob) Run(ctx context.Context, periodID, actorID int64) (RunSummary, error) {
	logger := j.logger()
	if periodID == 0 {
		if j.Periods == nil {
			return RunSummary{}, fmt.Errorf("%w: period required", shared.ErrInvalidArgument)
		}
		p, err := j.Periods.FindByDate(ctx, j.clock())
		if err != nil {
			return RunSummary{}, err
		}
		periodID = p.ID
	}
	summary := RunSummary{PeriodID: periodID}
	logger = logger.With(slog.Int64("period_id", periodID))

	if j.Lock != nil {
		release, ok, err := j.Lock.Acquire(ctx, shared.DepreciationRunLockKey(periodID), j.LockTTL)
		if err != nil {
			return summary, fmt.Errorf("%w: run lock: %v", shared.ErrBusy, err)
		}
		if !ok {
			logger.Info("depreciation run skipped, lock held")
			return summary, ErrRunInProgress
		}
		defer release()
	}

	due, err := j.Assets.DueForPeriod(ctx, periodID)
	if err != nil {
		return summary, err
	}
	var errs []error
	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		_, err := j.Coordinator.PostDepreciation(ctx, ledger.DepreciationInput{
			AssetID:  a.ID,
			PeriodID: periodID,
			ActorID:  actorID,
		})
		switch {
		case err == nil:
			summary.Posted++
		case errors.Is(err, assets.ErrAlreadyDepreciated), errors.Is(err, assets.ErrNotDepreciable):
			summary.Skipped++
		default:
			summary.Failed++
			logger.Warn("asset depreciation failed", slog.Int64("asset_id", a.ID), slog.String("code", a.Code), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("asset %s: %w", a.Code, err))
		}
	}
	logger.Info("depreciation run completed",
		slog.Int("due", len(due)),
		slog.Int("posted", summary.Posted),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed))
	return summary, errors.Join(errs...)
}

func (j *DepreciationRunJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", TaskDepreciationRun))
	}
	return j.Logger.With(slog.String("job", TaskDepreciationRun))
}
