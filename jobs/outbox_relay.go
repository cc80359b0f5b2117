package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// OutboxRelayer publishes one batch of committed events.
type OutboxRelayer interface {
	RunOnce(ctx context.Context) (int, error)
}

// OutboxRelayJob drains the event outbox onto the events queue.
type OutboxRelayJob struct {
	Relay      OutboxRelayer
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	MaxBatches int
}

// NewOutboxRelayJob constructs the job handler.
func NewOutboxRelayJob(relay OutboxRelayer, logger *slog.Logger, metrics *jobmetrics.Metrics) *OutboxRelayJob {
	return &OutboxRelayJob{Relay: relay, Logger: logger, Metrics: metrics, MaxBatches: 10}
}

// Handle relays batches until one publishes nothing or MaxBatches is reached.
func (j *OutboxRelayJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Relay == nil {
		return errors.New("outbox relay: handler not configured")
	}
	tracker := j.Metrics.Track(TaskOutboxRelay)
	defer func() { err = tracker.End(err) }()

	total, err := j.Drain(ctx)
	if total > 0 {
		logger := j.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Debug("outbox relayed", slog.String("job", TaskOutboxRelay), slog.Int("events", total))
	}
	return err
}

// Drain runs the relay repeatedly and returns how many events were published.
func (j *OutboxRelayJob) Drain(ctx context.Context) (int, error) {
	batches := j.MaxBatches
	if batches <= 0 {
		batches = 1
	}
	total := 0
	for i := 0; i < batches; i++ {
		n, err := j.Relay.RunOnce(ctx)
		total += n
		j.Metrics.AddRelayed(n)
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
