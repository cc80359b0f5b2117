package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hibiken/asynq"
)

// TaskPrefix namespaces relayed events on the job queue.
const TaskPrefix = "ledger:event:"

// Subscriber reacts to one relayed event. Subscribers never call back into
// the coordinator that emitted the event.
type Subscriber interface {
	Handle(ctx context.Context, e Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, e Event) error

func (f SubscriberFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

// Bus fans events out to the subscribers registered for their type.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]Subscriber
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subs: make(map[string][]Subscriber), logger: logger}
}

// Subscribe registers s for eventType.
func (b *Bus) Subscribe(eventType string, s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], s)
}

// Types lists event types with at least one subscriber.
func (b *Bus) Types() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.subs))
	for t := range b.subs {
		out = append(out, t)
	}
	return out
}

// Dispatch delivers e to every subscriber of its type and joins their errors.
func (b *Bus) Dispatch(ctx context.Context, e Event) error {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[e.Type]...)
	b.mu.RUnlock()
	var errs []error
	for _, s := range subs {
		if err := s.Handle(ctx, e); err != nil {
			b.logger.Warn("event subscriber failed",
				slog.String("event_type", e.Type),
				slog.String("event_id", e.ID.String()),
				slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TaskHandler decodes a relayed task and dispatches it on the bus.
func (b *Bus) TaskHandler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		e, err := DecodeTask(t)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return b.Dispatch(ctx, e)
	}
}

type taskEnvelope struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Aggregate   string          `json:"aggregate"`
	AggregateID string          `json:"aggregate_id"`
	DedupeKey   string          `json:"dedupe_key"`
	Payload     json.RawMessage `json:"payload"`
}

// NewTask wraps e as a job queue task.
func NewTask(e Event) (*asynq.Task, error) {
	data, err := json.Marshal(taskEnvelope{
		ID:          e.ID.String(),
		Type:        e.Type,
		Aggregate:   e.Aggregate,
		AggregateID: e.AggregateID,
		DedupeKey:   e.DedupeKey,
		Payload:     e.Payload,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPrefix+e.Type, data), nil
}

// DecodeTask reverses NewTask.
func DecodeTask(t *asynq.Task) (Event, error) {
	var env taskEnvelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		return Event{}, err
	}
	if env.Type == "" {
		env.Type = strings.TrimPrefix(t.Type(), TaskPrefix)
	}
	e := Event{
		Type:        env.Type,
		Aggregate:   env.Aggregate,
		AggregateID: env.AggregateID,
		DedupeKey:   env.DedupeKey,
		Payload:     env.Payload,
	}
	if err := e.ID.UnmarshalText([]byte(env.ID)); err != nil {
		return Event{}, err
	}
	return e, nil
}

// LogSubscriber records every event it receives.
func LogSubscriber(logger *slog.Logger) Subscriber {
	return SubscriberFunc(func(ctx context.Context, e Event) error {
		logger.InfoContext(ctx, "ledger event",
			slog.String("event_type", e.Type),
			slog.String("aggregate", e.Aggregate),
			slog.String("aggregate_id", e.AggregateID))
		return nil
	})
}
