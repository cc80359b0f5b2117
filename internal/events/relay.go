package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Dispatcher hands a stored event to its consumers.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event) error
}

// Enqueuer is the part of asynq.Client the relay uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueDispatcher enqueues events as asynq tasks. The event id is the task
// id, so relaying the same row twice enqueues it once.
type QueueDispatcher struct {
	client Enqueuer
	queue  string
}

func NewQueueDispatcher(client Enqueuer, queue string) *QueueDispatcher {
	return &QueueDispatcher{client: client, queue: queue}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, e Event) error {
	task, err := NewTask(e)
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue), asynq.TaskID(e.ID.String()), asynq.MaxRetry(10))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// DefaultMaxAttempts is how often the relay tries a row before parking it.
const DefaultMaxAttempts = 10

// Relay moves pending outbox rows to a Dispatcher.
type Relay struct {
	store       Store
	dispatcher  Dispatcher
	batch       int
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

func NewRelay(store Store, dispatcher Dispatcher, batch int, logger *slog.Logger) *Relay {
	if batch <= 0 {
		batch = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{store: store, dispatcher: dispatcher, batch: batch, maxAttempts: DefaultMaxAttempts, logger: logger, now: time.Now}
}

// WithMaxAttempts caps the dispatch attempts per row. Zero or less retries
// forever.
func (r *Relay) WithMaxAttempts(n int) *Relay {
	r.maxAttempts = n
	return r
}

// RunOnce relays up to one batch and reports how many rows were published.
// A failed row is marked with its error and retried on the next run until it
// has failed maxAttempts times; after that it stays in the outbox unpublished
// and is no longer picked up.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.store.Pending(ctx, r.batch, r.maxAttempts)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if err := r.dispatcher.Dispatch(ctx, e); err != nil {
			r.logger.Warn("outbox relay failed",
				slog.String("event_id", e.ID.String()),
				slog.String("event_type", e.Type),
				slog.Int("attempts", e.Attempts+1),
				slog.Any("error", err))
			if markErr := r.store.MarkFailed(ctx, e.ID, err.Error()); markErr != nil {
				return published, markErr
			}
			if r.maxAttempts > 0 && e.Attempts+1 >= r.maxAttempts {
				r.logger.Error("outbox event parked after max attempts",
					slog.String("event_id", e.ID.String()),
					slog.String("event_type", e.Type),
					slog.Int("attempts", e.Attempts+1))
			}
			continue
		}
		if err := r.store.MarkPublished(ctx, e.ID, r.now()); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}
