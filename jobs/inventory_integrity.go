package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// StockVerifier replays stock history per key.
type StockVerifier interface {
	Keys(ctx context.Context) ([]inventory.Key, error)
	VerifyKey(ctx context.Context, key inventory.Key) error
}

// InventoryIntegrityJob checks every stock balance against its movement log.
type InventoryIntegrityJob struct {
	Inventory StockVerifier
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewInventoryIntegrityJob constructs the job handler.
func NewInventoryIntegrityJob(inv StockVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *InventoryIntegrityJob {
	return &InventoryIntegrityJob{Inventory: inv, Logger: logger, Metrics: metrics}
}

// Handle runs the replay over all keys.
func (j *InventoryIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Inventory == nil {
		return errors.New("inventory integrity: handler not configured")
	}
	var payload InventoryIntegrityPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	tracker := j.Metrics.Track(TaskInventoryIntegrity)
	defer func() { err = tracker.End(err) }()

	violations, err := j.Check(ctx, payload.Parallelism)
	if err != nil {
		return err
	}
	if violations > 0 {
		return fmt.Errorf("inventory integrity: %d inconsistent keys: %w: %w", violations, shared.ErrConsistency, asynq.SkipRetry)
	}
	return nil
}

// Check verifies keys concurrently and returns how many are inconsistent.
// Infrastructure errors abort the scan.
func (j *InventoryIntegrityJob) Check(ctx context.Context, parallelism int) (int, error) {
	if parallelism <= 0 {
		parallelism = 4
	}
	keys, err := j.Inventory.Keys(ctx)
	if err != nil {
		return 0, err
	}
	var violations atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			err := j.Inventory.VerifyKey(gctx, key)
			switch {
			case err == nil:
				return nil
			case shared.KindOf(err) == shared.KindConsistency:
				violations.Add(1)
				return nil
			default:
				return fmt.Errorf("verify %s: %w", key, err)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return int(violations.Load()), err
	}
	n := int(violations.Load())
	j.Metrics.AddViolations("inventory_replay", n)
	j.logger().Info("inventory integrity check completed",
		slog.Int("keys", len(keys)),
		slog.Int("violations", n))
	return n, nil
}

func (j *InventoryIntegrityJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", TaskInventoryIntegrity))
	}
	return j.Logger.With(slog.String("job", TaskInventoryIntegrity))
}
