package reports

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	accountingShared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestBuildTrialBalance(t *testing.T) {
	accounts := []AccountBalance{
		{AccountID: 2, Code: "1001", Name: "Bank", Type: "ASSET", Debit: dec(100), Credit: dec(50)},
		{AccountID: 1, Code: "1000", Name: "Cash", Type: "ASSET", Debit: dec(200), Credit: dec(150)},
		{AccountID: 3, Code: "2000", Name: "Accounts Payable", Type: "LIABILITY", Debit: dec(10), Credit: dec(400)},
	}

	tb := BuildTrialBalance(7, accounts)
	require.Len(t, tb.Groups, 2)
	require.Equal(t, "10", tb.Groups[0].Key)
	require.Equal(t, "1000", tb.Groups[0].Accounts[0].Code)
	require.True(t, tb.Groups[0].Closing.Equal(dec(100)))
	require.True(t, tb.TotalDebit.Equal(dec(310)))
	require.True(t, tb.TotalCredit.Equal(dec(600)))
	require.True(t, tb.TotalClosing.Equal(dec(-290)))
	require.False(t, tb.Balanced())
}

func TestGroupKeyUsesDottedPrefix(t *testing.T) {
	require.Equal(t, "1", AccountBalance{Code: "1.100"}.GroupKey())
	require.Equal(t, "41", AccountBalance{Code: "4100"}.GroupKey())
	require.Equal(t, "9", AccountBalance{Code: "9"}.GroupKey())
}

type totalsStub struct {
	mu    sync.Mutex
	rows  []journals.AccountTotals
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *totalsStub) TrialBalance(context.Context, int64) ([]journals.AccountTotals, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]journals.AccountTotals(nil), s.rows...), s.err
}

func (s *totalsStub) set(rows ...journals.AccountTotals) {
	s.mu.Lock()
	s.rows = rows
	s.mu.Unlock()
}

type periodStub struct{}

func (periodStub) Get(_ context.Context, id int64) (periods.Period, error) {
	if id != 1 {
		return periods.Period{}, accountingShared.ErrPeriodNotFound
	}
	return periods.Period{ID: 1, Label: "2026-01", Status: periods.PeriodStatusOpen}, nil
}

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func sales(amount int64) []journals.AccountTotals {
	return []journals.AccountTotals{
		{AccountID: 1, Code: "1100", Name: "Cash", Type: "ASSET", DebitTotal: dec(amount), CreditTotal: decimal.Zero},
		{AccountID: 2, Code: "4100", Name: "Sales", Type: "REVENUE", DebitTotal: decimal.Zero, CreditTotal: dec(amount)},
	}
}

func TestTrialBalanceServedFromCacheUntilBumped(t *testing.T) {
	cache, _ := newCache(t)
	src := &totalsStub{}
	src.set(sales(100)...)
	svc := NewService(src, periodStub{}, cache, nil)
	ctx := context.Background()

	tb, err := svc.TrialBalance(ctx, 1)
	require.NoError(t, err)
	require.True(t, tb.Balanced())
	require.True(t, tb.TotalDebit.Equal(dec(100)))

	src.set(sales(250)...)
	tb, err = svc.TrialBalance(ctx, 1)
	require.NoError(t, err)
	require.True(t, tb.TotalDebit.Equal(dec(100)))
	require.EqualValues(t, 1, src.calls.Load())

	svc.EntryPosted(ctx, journals.JournalEntry{PeriodID: 1})
	tb, err = svc.TrialBalance(ctx, 1)
	require.NoError(t, err)
	require.True(t, tb.TotalDebit.Equal(dec(250)))
	require.EqualValues(t, 2, src.calls.Load())
}

func TestCacheBumpPublishesVersion(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()
	sub := cache.client.Subscribe(ctx, bumpChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	ver, err := cache.Version(ctx, 3)
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)
	require.NoError(t, cache.Bump(ctx, 3))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, "3:2", msg.Payload)

	key, err := cache.BuildKey(ctx, 3, "trial-balance")
	require.NoError(t, err)
	require.Equal(t, "ledger:reports:trial-balance:3:v2", key)
}

func TestTrialBalanceSharesConcurrentBuilds(t *testing.T) {
	src := &totalsStub{delay: 50 * time.Millisecond}
	src.set(sales(10)...)
	svc := NewService(src, periodStub{}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tb, err := svc.TrialBalance(context.Background(), 1)
			require.NoError(t, err)
			require.True(t, tb.TotalCredit.Equal(dec(10)))
		}()
	}
	wg.Wait()
	require.Less(t, src.calls.Load(), int32(8))
}

func TestTrialBalanceWithoutCacheAlwaysRebuilds(t *testing.T) {
	src := &totalsStub{}
	src.set(sales(5)...)
	svc := NewService(src, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.TrialBalance(ctx, 1)
	require.NoError(t, err)
	_, err = svc.TrialBalance(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, src.calls.Load())
	require.NoError(t, svc.Invalidate(ctx, 1))
}

func TestTrialBalanceErrors(t *testing.T) {
	src := &totalsStub{err: errors.New("boom")}
	svc := NewService(src, periodStub{}, nil, nil)
	ctx := context.Background()

	_, err := svc.TrialBalance(ctx, 0)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = svc.TrialBalance(ctx, 99)
	require.ErrorIs(t, err, accountingShared.ErrPeriodNotFound)

	_, err = svc.TrialBalance(ctx, 1)
	require.EqualError(t, err, "boom")
}

func TestTrialBalanceHandler(t *testing.T) {
	src := &totalsStub{}
	src.set(sales(100)...)
	svc := NewService(src, periodStub{}, nil, nil)
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trial-balance?period_id=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"balanced":true`)
	require.Contains(t, rec.Body.String(), `"total_debit":"100"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trial-balance", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
