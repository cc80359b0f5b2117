package ap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type auditSpy struct {
	logs []shared.AuditLog
}

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newInvoice(t *testing.T, svc *Service, number string, total int64, due time.Time) Invoice {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		Number:     number,
		SupplierID: 9,
		Total:      decimal.NewFromInt(total),
		DueAt:      due,
	})
	require.NoError(t, err)
	return inv
}

func TestCreateInvoiceValidates(t *testing.T) {
	svc := NewService(NewMemoryStore(nil), nil, nil)
	ctx := context.Background()

	_, err := svc.CreateInvoice(ctx, CreateInvoiceInput{Number: "INV-1", SupplierID: 1, Total: decimal.NewFromInt(-5), DueAt: day(2026, 2, 1)})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = svc.CreateInvoice(ctx, CreateInvoiceInput{Number: "INV-1", SupplierID: 1, Total: decimal.NewFromInt(5), Currency: "ZZZ", DueAt: day(2026, 2, 1)})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	inv := newInvoice(t, svc, " INV-1 ", 500, day(2026, 2, 1))
	require.Equal(t, "INV-1", inv.Number)
	require.Equal(t, "IDR", inv.Currency)
	require.Equal(t, StatusOpen, inv.Status)

	_, err = svc.CreateInvoice(ctx, CreateInvoiceInput{Number: "INV-1", SupplierID: 1, Total: decimal.NewFromInt(5), DueAt: day(2026, 2, 1)})
	require.ErrorIs(t, err, ErrDuplicateInvoice)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestSettlementTracksPaidAmountAndStatus(t *testing.T) {
	store := NewMemoryStore(nil)
	audit := &auditSpy{}
	svc := NewService(store, audit, nil)
	ctx := context.Background()
	inv := newInvoice(t, svc, "INV-1", 500, day(2026, 2, 1))

	settle := func(amount int64) (Invoice, error) {
		var out Invoice
		err := store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			locked, err := svc.LockForPaymentTx(ctx, tx, inv.ID, decimal.NewFromInt(amount))
			if err != nil {
				return err
			}
			var p Payment
			out, p, err = svc.SettleTx(ctx, tx, locked, Payment{Amount: decimal.NewFromInt(amount), PaidAt: day(2026, 1, 20), EntryID: 77})
			if err != nil {
				return err
			}
			svc.Committed(ctx, out, p)
			return nil
		})
		return out, err
	}

	out, err := settle(200)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, out.Status)
	require.True(t, out.Outstanding().Equal(decimal.NewFromInt(300)))

	_, err = settle(301)
	var over *OverpaymentError
	require.ErrorAs(t, err, &over)
	require.True(t, over.Outstanding.Equal(decimal.NewFromInt(300)))
	require.ErrorIs(t, err, shared.ErrBusinessRule)

	out, err = settle(300)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, out.Status)

	_, err = settle(1)
	require.ErrorIs(t, err, ErrInvalidStatus)

	payments, err := svc.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.EqualValues(t, 77, payments[0].EntryID)
	require.Len(t, audit.logs, 3)
	require.Equal(t, "ap_payment.settle", audit.logs[2].Action)
}

func TestVoidOnlyOpenInvoices(t *testing.T) {
	store := NewMemoryStore(nil)
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	open := newInvoice(t, svc, "INV-1", 100, day(2026, 2, 1))

	voided, err := svc.VoidInvoice(ctx, open.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusVoid, voided.Status)

	_, err = svc.VoidInvoice(ctx, open.ID, 1)
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.VoidInvoice(ctx, 999, 1)
	require.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestAgingBucketsOutstandingBalances(t *testing.T) {
	store := NewMemoryStore(nil)
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	asOf := day(2026, 6, 30)

	newInvoice(t, svc, "A", 100, day(2026, 7, 10))
	newInvoice(t, svc, "B", 200, day(2026, 6, 10))
	newInvoice(t, svc, "C", 300, day(2026, 5, 15))
	newInvoice(t, svc, "D", 400, day(2026, 1, 1))
	partial := newInvoice(t, svc, "E", 500, day(2026, 4, 15))
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, _, err := svc.SettleTx(ctx, tx, partial, Payment{Amount: decimal.NewFromInt(450), PaidAt: asOf})
		return err
	}))

	bucket, err := svc.Aging(ctx, asOf)
	require.NoError(t, err)
	require.True(t, bucket.Current.Equal(decimal.NewFromInt(100)))
	require.True(t, bucket.Bucket30.Equal(decimal.NewFromInt(200)))
	require.True(t, bucket.Bucket60.Equal(decimal.NewFromInt(300)))
	require.True(t, bucket.Bucket90.Equal(decimal.NewFromInt(50)))
	require.True(t, bucket.Bucket120.Equal(decimal.NewFromInt(400)))
	require.True(t, bucket.Total().Equal(decimal.NewFromInt(1050)))
}

func TestHandlerCreatesAndVoidsInvoice(t *testing.T) {
	svc := NewService(NewMemoryStore(nil), nil, nil)
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)

	body := `{"number":"INV-9","supplier_id":4,"total":"125.50","due_at":"2026-03-01"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"outstanding":"125.5"`)
	require.Contains(t, rec.Body.String(), `"status":"OPEN"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices/1/void", strings.NewReader(`{"actor_id":2}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"VOID"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/aging?as_of=bad", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
