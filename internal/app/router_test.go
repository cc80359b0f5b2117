package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
)

type testStack struct {
	router   http.Handler
	services *Services
	outbox   *events.MemoryStore
	redis    *redis.Client
}

func newTestStack(t *testing.T, mutate func(*Config, *RouterParams)) *testStack {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, AppRateLimit: 1000}
	metrics := observability.NewMetrics()
	backend, outbox := MemoryBackend()
	services := NewServices(backend, reports.NewCache(client, time.Minute), metrics, nil)
	params := RouterParams{Config: cfg, Services: services, Metrics: metrics}
	if mutate != nil {
		mutate(cfg, &params)
	}
	return &testStack{router: NewRouter(params), services: services, outbox: outbox, redis: client}
}

func (s *testStack) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dest))
}

func (s *testStack) account(t *testing.T, code, name, typ, module, key string) int64 {
	t.Helper()
	rr := s.do(t, http.MethodPost, "/api/v1/gl/accounts", map[string]any{"code": code, "name": name, "type": typ})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var acct struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, rr, &acct)
	rr = s.do(t, http.MethodPut, "/api/v1/gl/mappings", map[string]any{"module": module, "key": key, "account_id": acct.ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return acct.ID
}

func TestRouterReceiveGoodsEndToEnd(t *testing.T) {
	s := newTestStack(t, nil)
	s.account(t, "1300", "Inventory", "ASSET", mappings.ModuleInventory, mappings.KeyInventory)
	s.account(t, "2150", "Goods received not invoiced", "LIABILITY", mappings.ModuleInventory, mappings.KeyGRIR)

	rr := s.do(t, http.MethodPost, "/api/v1/gl/periods", map[string]any{
		"label": "2026-01", "start_date": "2026-01-01", "end_date": "2026-01-31",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var period struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, rr, &period)

	rr = s.do(t, http.MethodPost, "/api/v1/operations/receipts", map[string]any{
		"reference_no": "PO-1",
		"location_id":  1,
		"date":         "2026-01-10",
		"lines":        []map[string]any{{"material_id": 7, "quantity": "5", "unit_cost": "12.50"}},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var result struct {
		Operation string `json:"operation"`
		Entry     struct {
			EntryNumber string `json:"entry_number"`
			PeriodID    int64  `json:"period_id"`
			Amount      string `json:"amount"`
		} `json:"entry"`
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	decodeBody(t, rr, &result)
	require.Equal(t, ledger.OpReceiveGoods, result.Operation)
	require.Equal(t, "GR-PO-1", result.Entry.EntryNumber)
	require.Equal(t, period.ID, result.Entry.PeriodID)
	require.Equal(t, "62.5", result.Entry.Amount)
	require.Len(t, result.Events, 2)
	require.Len(t, s.outbox.All(), 2)

	rr = s.do(t, http.MethodGet, "/api/v1/inventory/balance?material_id=7&location_id=1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var bal struct {
		Quantity string `json:"quantity"`
	}
	decodeBody(t, rr, &bal)
	require.Equal(t, "5", bal.Quantity)

	rr = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/gl/reports/trial-balance?period_id=%d", period.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var tb struct {
		Balanced   bool   `json:"balanced"`
		TotalDebit string `json:"total_debit"`
	}
	decodeBody(t, rr, &tb)
	require.True(t, tb.Balanced)
	require.Equal(t, "62.5", tb.TotalDebit)

	rr = s.do(t, http.MethodGet, "/api/v1/audit?entity=journal_entry&action=journal.post", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var trail struct {
		Items []struct {
			EntityID string         `json:"entity_id"`
			Meta     map[string]any `json:"meta"`
		} `json:"items"`
		NextCursor *int64 `json:"next_cursor"`
	}
	decodeBody(t, rr, &trail)
	require.Len(t, trail.Items, 1)
	require.Nil(t, trail.NextCursor)
}

func TestRouterRejectsIssueBeyondStock(t *testing.T) {
	s := newTestStack(t, nil)
	rr := s.do(t, http.MethodPost, "/api/v1/operations/issues", map[string]any{
		"reference_no": "SO-1",
		"location_id":  1,
		"lines":        []map[string]any{{"material_id": 7, "quantity": "1"}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	require.Empty(t, s.outbox.All())

	rr = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `odyssey_ledger_operations_total{operation="issue_goods",outcome="business_rule"} 1`)
}

func TestRouterSetsSecurityHeaders(t *testing.T) {
	s := newTestStack(t, nil)
	rr := s.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestHealthzReportsFailingDependency(t *testing.T) {
	s := newTestStack(t, func(_ *Config, p *RouterParams) {
		p.Checks = map[string]Pinger{
			"postgres": PingFunc(func(context.Context) error { return errors.New("connection refused") }),
			"redis":    PingFunc(func(context.Context) error { return nil }),
		}
	})
	rr := s.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.JSONEq(t, `{"status":"degraded","checks":{"postgres":"down","redis":"ok"}}`, rr.Body.String())
}

func TestWriteLimiterThrottlesMutations(t *testing.T) {
	s := newTestStack(t, func(cfg *Config, _ *RouterParams) { cfg.AppRateLimit = 2 })
	for i := 0; i < 2; i++ {
		rr := s.do(t, http.MethodPost, "/api/v1/gl/accounts", map[string]any{})
		require.Equal(t, http.StatusBadRequest, rr.Code)
	}
	rr := s.do(t, http.MethodPost, "/api/v1/gl/accounts", map[string]any{})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/gl/accounts", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestEventBusInvalidatesReportsOnPosting(t *testing.T) {
	s := newTestStack(t, nil)
	ctx := context.Background()
	cache := reports.NewCache(s.redis, time.Minute)
	v1, err := cache.Version(ctx, 3)
	require.NoError(t, err)

	bus := NewEventBus(nil, s.services.Reports)
	e, err := events.New(events.TypeEntryPosted, "journal_entry", "9", "", events.EntryPosted{EntryID: 9, PeriodID: 3})
	require.NoError(t, err)
	require.NoError(t, bus.Dispatch(ctx, e))

	v2, err := cache.Version(ctx, 3)
	require.NoError(t, err)
	require.Greater(t, v2, v1)
	require.ElementsMatch(t, []string{
		events.TypeMovementCompleted, events.TypeEntryPosted, events.TypeEntryReversed,
		events.TypePaymentSettled, events.TypeDepreciationPosted,
		events.TypePaymentReversed, events.TypeDepreciationReversed,
	}, bus.Types())
}
