package perf

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type harness struct {
	services *app.Services
	metrics  *observability.Metrics
	period   periods.Period
}

func newHarness(tb testing.TB) *harness {
	tb.Helper()
	ctx := context.Background()
	backend, _ := app.MemoryBackend()
	metrics := observability.NewMetrics()
	services := app.NewServices(backend, nil, metrics, nil)

	chart := []struct {
		code string
		typ  accounts.AccountType
		key  string
	}{
		{"1300", accounts.AccountTypeAsset, mappings.KeyInventory},
		{"2150", accounts.AccountTypeLiability, mappings.KeyGRIR},
		{"5100", accounts.AccountTypeExpense, mappings.KeyCOGS},
	}
	for _, c := range chart {
		acct, err := services.Accounts.Create(ctx, accounts.CreateInput{Code: c.code, Name: c.key, Type: c.typ})
		if err != nil {
			tb.Fatalf("create account %s: %v", c.code, err)
		}
		if _, err := services.Mappings.Upsert(ctx, mappings.AccountMapping{Module: mappings.ModuleInventory, Key: c.key, AccountID: acct.ID}); err != nil {
			tb.Fatalf("map %s: %v", c.key, err)
		}
	}
	period, err := services.Periods.Create(ctx, periods.CreatePeriodInput{
		Label:     "2026-01",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		tb.Fatalf("create period: %v", err)
	}
	return &harness{services: services, metrics: metrics, period: period}
}

func (h *harness) stock(ref string, qty, cost string) ledger.StockInput {
	return ledger.StockInput{
		ReferenceNo: ref,
		LocationID:  1,
		Date:        time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Lines: []ledger.StockLine{{
			MaterialID: 1,
			Quantity:   decimal.RequireFromString(qty),
			UnitCost:   decimal.RequireFromString(cost),
		}},
	}
}

func TestConcurrentStockOperationsStayConsistent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	coord := h.services.Coordinator

	var (
		mu        sync.Mutex
		latencies []time.Duration
	)
	timed := func(fn func() error) error {
		start := time.Now()
		err := fn()
		mu.Lock()
		latencies = append(latencies, time.Since(start))
		mu.Unlock()
		return err
	}

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 25; i++ {
				in := h.stock(fmt.Sprintf("PO-%d-%d", w, i), "2", "10")
				if err := timed(func() error { _, err := coord.ReceiveGoods(ctx, in); return err }); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("receive goods: %v", err)
	}

	var rejected, issued int
	var issueGroup errgroup.Group
	for w := 0; w < 16; w++ {
		w := w
		issueGroup.Go(func() error {
			for i := 0; i < 30; i++ {
				in := h.stock(fmt.Sprintf("SO-%d-%d", w, i), "1", "10")
				err := timed(func() error { _, err := coord.IssueGoods(ctx, in); return err })
				mu.Lock()
				switch {
				case err == nil:
					issued++
				case shared.KindOf(err) == shared.KindBusinessRule:
					rejected++
				default:
					mu.Unlock()
					return err
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := issueGroup.Wait(); err != nil {
		t.Fatalf("issue goods: %v", err)
	}
	if issued != 400 || rejected != 80 {
		t.Fatalf("expected 400 issued and 80 rejected, got %d and %d", issued, rejected)
	}

	qty, err := h.services.Inventory.CurrentBalance(ctx, 1, 1)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !qty.IsZero() {
		t.Fatalf("expected empty stock, got %s", qty)
	}

	glViolations, err := jobs.NewGLIntegrityJob(h.services.Periods, h.services.Journals, nil, nil).Check(ctx, h.period.ID)
	if err != nil {
		t.Fatalf("gl integrity: %v", err)
	}
	invViolations, err := jobs.NewInventoryIntegrityJob(h.services.Inventory, nil, nil).Check(ctx, 4)
	if err != nil {
		t.Fatalf("inventory integrity: %v", err)
	}
	if glViolations != 0 || invViolations != 0 {
		t.Fatalf("integrity violations: gl=%d inventory=%d", glViolations, invViolations)
	}

	if p95 := percentile95(latencies); p95 > 250*time.Millisecond {
		t.Fatalf("in-memory operation latency regression: p95=%s", p95)
	}

	families, err := h.metrics.Registerer().(prometheus.Gatherer).Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got := metricValue(t, families, "odyssey_ledger_operations_total", map[string]string{"operation": ledger.OpIssueGoods, "outcome": "ok"}); got != 400 {
		t.Fatalf("expected 400 successful issues recorded, got %v", got)
	}
	if got := metricValue(t, families, "odyssey_ledger_operations_total", map[string]string{"operation": ledger.OpIssueGoods, "outcome": "business_rule"}); got != 80 {
		t.Fatalf("expected 80 rejected issues recorded, got %v", got)
	}
	if mean := histogramMean(t, families, "odyssey_ledger_operation_duration_seconds", map[string]string{"operation": ledger.OpReceiveGoods}); mean > 0.5 {
		t.Fatalf("receive duration above budget: %f", mean)
	}
}

func BenchmarkReceiveGoods(b *testing.B) {
	ctx := context.Background()
	h := newHarness(b)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.services.Coordinator.ReceiveGoods(ctx, h.stock(fmt.Sprintf("PO-%d", i), "1", "3.25")); err != nil {
			b.Fatal(err)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}
