package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/assets"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type periodStub struct {
	list []periods.Period
	err  error
}

func (s periodStub) List(context.Context) ([]periods.Period, error) { return s.list, s.err }

func (s periodStub) FindByDate(_ context.Context, date time.Time) (periods.Period, error) {
	for _, p := range s.list {
		if !date.Before(p.StartDate) && !date.After(p.EndDate) {
			return p, nil
		}
	}
	return periods.Period{}, shared.ErrNotFound
}

type totalsStub map[int64][]journals.EntryTotals

func (s totalsStub) EntryTotals(_ context.Context, periodID int64) ([]journals.EntryTotals, error) {
	return s[periodID], nil
}

func entryTotals(id int64, debit, credit string) journals.EntryTotals {
	return journals.EntryTotals{
		EntryID:     id,
		EntryNumber: fmt.Sprintf("JE-%d", id),
		Totals:      journals.Totals{DebitTotal: dec(debit), CreditTotal: dec(credit)},
	}
}

func TestGLIntegrityCountsUnbalancedEntries(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := NewGLIntegrityJob(
		periodStub{list: []periods.Period{{ID: 1}, {ID: 2}}},
		totalsStub{
			1: {entryTotals(1, "100.00", "100.00")},
			2: {entryTotals(2, "50.00", "50.00"), entryTotals(3, "10.00", "9.99")},
		},
		nil, jobmetrics.NewMetrics(reg))

	n, err := job.Check(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = job.Check(context.Background(), 1)
	require.NoError(t, err)
	require.Zero(t, n)

	task, err := NewGLIntegrityTask(2)
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, shared.ErrConsistency)
	require.ErrorIs(t, err, asynq.SkipRetry)

	task, err = NewGLIntegrityTask(1)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

type stockStub struct {
	mu      sync.Mutex
	keys    []inventory.Key
	broken  map[inventory.Key]error
	checked []inventory.Key
}

func (s *stockStub) Keys(context.Context) ([]inventory.Key, error) { return s.keys, nil }

func (s *stockStub) VerifyKey(_ context.Context, key inventory.Key) error {
	s.mu.Lock()
	s.checked = append(s.checked, key)
	s.mu.Unlock()
	return s.broken[key]
}

func TestInventoryIntegrityVerifiesEveryKey(t *testing.T) {
	bad := inventory.Key{MaterialID: 2, LocationID: 1}
	stub := &stockStub{
		keys: []inventory.Key{{MaterialID: 1, LocationID: 1}, bad, {MaterialID: 3, LocationID: 1}},
		broken: map[inventory.Key]error{
			bad: &inventory.ProjectionInconsistencyError{MaterialID: 2, LocationID: 1, Reason: "drift"},
		},
	}
	job := NewInventoryIntegrityJob(stub, nil, nil)

	n, err := job.Check(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, stub.checked, 3)

	task, err := NewInventoryIntegrityTask(1)
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), shared.ErrConsistency)
}

func TestInventoryIntegrityAbortsOnInfrastructureError(t *testing.T) {
	key := inventory.Key{MaterialID: 1, LocationID: 1}
	stub := &stockStub{
		keys:   []inventory.Key{key},
		broken: map[inventory.Key]error{key: shared.ErrBusy},
	}
	_, err := NewInventoryIntegrityJob(stub, nil, nil).Check(context.Background(), 0)
	require.ErrorIs(t, err, shared.ErrBusy)
}

type relayStub struct {
	batches []int
	calls   int
	err     error
}

func (s *relayStub) RunOnce(context.Context) (int, error) {
	s.calls++
	if s.calls > len(s.batches) {
		return 0, s.err
	}
	return s.batches[s.calls-1], nil
}

func TestOutboxRelayDrainsUntilEmpty(t *testing.T) {
	stub := &relayStub{batches: []int{100, 100, 7}}
	job := NewOutboxRelayJob(stub, nil, nil)

	require.NoError(t, job.Handle(context.Background(), NewOutboxRelayTask()))
	require.Equal(t, 4, stub.calls)

	stub = &relayStub{batches: []int{1, 1, 1, 1}}
	job = NewOutboxRelayJob(stub, nil, nil)
	job.MaxBatches = 2
	total, err := job.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestOutboxRelayReturnsStoreError(t *testing.T) {
	boom := errors.New("outbox unavailable")
	stub := &relayStub{batches: []int{3}, err: boom}
	total, err := NewOutboxRelayJob(stub, nil, nil).Drain(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, total)
}

type rejectingDispatcher struct{ reject string }

func (d rejectingDispatcher) Dispatch(_ context.Context, e events.Event) error {
	if e.AggregateID == d.reject {
		return errors.New("payload rejected by queue")
	}
	return nil
}

func TestOutboxRelayDrainSkipsParkedEvent(t *testing.T) {
	ctx := context.Background()
	store := events.NewMemoryStore(nil)
	for _, id := range []string{"1", "2", "3"} {
		e, err := events.New(events.TypeEntryPosted, "journal_entry", id, "", events.EntryPosted{EntryNumber: "GR-" + id})
		require.NoError(t, err)
		_, err = store.Insert(ctx, e)
		require.NoError(t, err)
	}
	relay := events.NewRelay(store, rejectingDispatcher{reject: "1"}, 1, nil).WithMaxAttempts(2)
	job := NewOutboxRelayJob(relay, nil, nil)

	for run := 0; run < 2; run++ {
		total, err := job.Drain(ctx)
		require.NoError(t, err)
		require.Zero(t, total)
	}
	total, err := job.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, total)

	left, err := store.Pending(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.Equal(t, "1", left[0].AggregateID)
}

type dueStub struct{ list []assets.Asset }

func (s dueStub) DueForPeriod(context.Context, int64) ([]assets.Asset, error) { return s.list, nil }

type depreciatorStub struct {
	mu    sync.Mutex
	fail  map[int64]error
	calls []ledger.DepreciationInput
}

func (s *depreciatorStub) PostDepreciation(_ context.Context, in ledger.DepreciationInput) (ledger.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, in)
	if err := s.fail[in.AssetID]; err != nil {
		return ledger.Result{}, err
	}
	return ledger.Result{Operation: ledger.OpDepreciation}, nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestDepreciationRunPostsDueAssets(t *testing.T) {
	jan := periods.Period{
		ID:        7,
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	dep := &depreciatorStub{fail: map[int64]error{
		2: assets.ErrAlreadyDepreciated,
		3: fmt.Errorf("post: %w", shared.ErrConflict),
	}}
	job := NewDepreciationRunJob(DepreciationRunConfig{
		Assets:      dueStub{list: []assets.Asset{{ID: 1, Code: "FA-1"}, {ID: 2, Code: "FA-2"}, {ID: 3, Code: "FA-3"}}},
		Coordinator: dep,
		Periods:     periodStub{list: []periods.Period{jan}},
		Lock:        NewRunLock(newRedis(t)),
	}).WithClock(func() time.Time { return time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC) })

	summary, err := job.Run(context.Background(), 0, 9)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, RunSummary{PeriodID: 7, Posted: 1, Skipped: 1, Failed: 1}, summary)
	require.Len(t, dep.calls, 3)
	for _, in := range dep.calls {
		require.Equal(t, int64(7), in.PeriodID)
		require.Equal(t, int64(9), in.ActorID)
		require.True(t, in.Amount.IsZero())
	}
}

func TestDepreciationRunSkipsWhenLockHeld(t *testing.T) {
	client := newRedis(t)
	lock := NewRunLock(client)
	release, ok, err := lock.Acquire(context.Background(), shared.DepreciationRunLockKey(4), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	dep := &depreciatorStub{}
	job := NewDepreciationRunJob(DepreciationRunConfig{
		Assets:      dueStub{list: []assets.Asset{{ID: 1, Code: "FA-1"}}},
		Coordinator: dep,
		Lock:        lock,
	})
	_, err = job.Run(context.Background(), 4, 1)
	require.ErrorIs(t, err, ErrRunInProgress)
	require.ErrorIs(t, err, shared.ErrBusy)

	task, err := NewDepreciationRunTask(4, 1)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Empty(t, dep.calls)

	release()
	summary, err := job.Run(context.Background(), 4, 1)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Posted)
}

func TestRunLockReleaseKeepsForeignLease(t *testing.T) {
	client := newRedis(t)
	lock := NewRunLock(client)
	ctx := context.Background()

	release, ok, err := lock.Acquire(ctx, "lease", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, client.Set(ctx, "lease", "someone-else", time.Minute).Err())
	release()
	val, err := client.Get(ctx, "lease").Result()
	require.NoError(t, err)
	require.Equal(t, "someone-else", val)
}

type inspectorStub struct {
	info map[string]*asynq.QueueInfo
	err  error
}

func (s inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info[queue], s.err
}

func TestHandlerReportsQueueHealth(t *testing.T) {
	h := NewHandler(inspectorStub{info: map[string]*asynq.QueueInfo{
		QueueDefault: {Queue: QueueDefault, Pending: 3},
		QueueEvents:  {Queue: QueueEvents, Pending: 1, Retry: 2, Archived: 1},
	}}, nil)
	r := chi.NewRouter()
	h.MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[
		{"queue":"default","pending":3,"retry":0,"failed":0},
		{"queue":"events","pending":1,"retry":2,"failed":1}
	]`, rr.Body.String())
}
