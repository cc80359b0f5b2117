package journals

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

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type fixture struct {
	store    *MemoryStore
	svc      *Service
	accounts *accounts.Service
	periods  *periods.Service
	cash     accounts.Account
	revenue  accounts.Account
	jan      periods.Period
	feb      periods.Period
}

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tr := db.NewMemoryTransactor()
	acctStore := accounts.NewMemoryStore(tr)
	periodStore := periods.NewMemoryStore(tr)
	f := &fixture{
		store:    NewMemoryStore(tr, acctStore, periodStore),
		accounts: accounts.NewService(acctStore, nil, nil),
		periods:  periods.NewService(periodStore, nil, nil),
	}
	f.svc = NewService(f.store, nil, nil)
	ctx := context.Background()
	var err error
	f.cash, err = f.accounts.Create(ctx, accounts.CreateInput{Code: "1100", Name: "Cash", Type: accounts.AccountTypeAsset})
	require.NoError(t, err)
	f.revenue, err = f.accounts.Create(ctx, accounts.CreateInput{Code: "4100", Name: "Sales", Type: accounts.AccountTypeRevenue})
	require.NoError(t, err)
	f.jan, err = f.periods.Create(ctx, periods.CreatePeriodInput{Label: "2026-01", StartDate: d(2026, 1, 1), EndDate: d(2026, 1, 31)})
	require.NoError(t, err)
	f.feb, err = f.periods.Create(ctx, periods.CreatePeriodInput{Label: "2026-02", StartDate: d(2026, 2, 1), EndDate: d(2026, 2, 28)})
	require.NoError(t, err)
	return f
}

func (f *fixture) sale(number string, amount int64) PostingInput {
	return PostingInput{
		EntryNumber: number,
		PostingDate: d(2026, 1, 15),
		PeriodID:    f.jan.ID,
		CreatedBy:   1,
		Lines: []PostingLineInput{
			{AccountID: f.cash.ID, Debit: decimal.NewFromInt(amount)},
			{AccountID: f.revenue.ID, Credit: decimal.NewFromInt(amount)},
		},
	}
}

type observerSpy struct {
	entries []JournalEntry
}

func (o *observerSpy) EntryPosted(_ context.Context, e JournalEntry) {
	o.entries = append(o.entries, e)
}

func TestPostEntryRejectsUnbalancedWithoutWriting(t *testing.T) {
	f := newFixture(t)
	in := f.sale("JE-1", 100)
	in.Lines[1].Credit = decimal.NewFromInt(90)

	_, err := f.svc.PostEntry(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrUnbalanced)
	require.ErrorIs(t, err, internalShared.ErrInvalidArgument)
	var unbalanced *shared.UnbalancedEntryError
	require.ErrorAs(t, err, &unbalanced)
	require.True(t, unbalanced.DebitTotal.Equal(decimal.NewFromInt(100)))
	require.True(t, unbalanced.CreditTotal.Equal(decimal.NewFromInt(90)))
	require.Zero(t, f.store.EntryCount())
}

func TestPostEntryValidatesLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.sale("JE-1", 100)
	in.Lines = in.Lines[:1]
	_, err := f.svc.PostEntry(ctx, in)
	require.ErrorIs(t, err, shared.ErrTooFewLines)

	in = f.sale("JE-1", 100)
	in.Lines[0].Credit = decimal.NewFromInt(1)
	_, err = f.svc.PostEntry(ctx, in)
	require.ErrorIs(t, err, internalShared.ErrInvalidArgument)

	in = f.sale("JE-1", 100)
	in.Lines[0].Debit = decimal.RequireFromString("100.001")
	in.Lines[1].Credit = decimal.RequireFromString("100.001")
	_, err = f.svc.PostEntry(ctx, in)
	require.ErrorIs(t, err, internalShared.ErrInvalidArgument)

	in = f.sale("JE-1", 100)
	in.PostingDate = d(2026, 2, 3)
	_, err = f.svc.PostEntry(ctx, in)
	require.ErrorIs(t, err, shared.ErrDateOutOfRange)
	require.Zero(t, f.store.EntryCount())
}

func TestPostEntryAgainstClosedPeriodWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.periods.Close(ctx, f.jan.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.PostEntry(ctx, f.sale("JE-1", 100))
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	require.ErrorIs(t, err, internalShared.ErrBusinessRule)
	var closed *shared.PeriodClosedError
	require.ErrorAs(t, err, &closed)
	require.Equal(t, f.jan.ID, closed.PeriodID)
	require.Zero(t, f.store.EntryCount())
}

func TestPostEntryRejectsInactiveAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.accounts.Deactivate(ctx, f.revenue.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.PostEntry(ctx, f.sale("JE-1", 100))
	var inactive *shared.InactiveAccountError
	require.ErrorAs(t, err, &inactive)
	require.Equal(t, f.revenue.ID, inactive.AccountID)
	require.Zero(t, f.store.EntryCount())

	in := f.sale("JE-2", 100)
	in.Lines[0].AccountID = 999
	_, err = f.svc.PostEntry(ctx, in)
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestPostEntryRejectsDuplicateNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.PostEntry(ctx, f.sale("JE-1", 100))
	require.NoError(t, err)
	_, err = f.svc.PostEntry(ctx, f.sale("JE-1", 50))
	require.ErrorIs(t, err, shared.ErrDuplicateEntryNumber)
	require.ErrorIs(t, err, internalShared.ErrConflict)
	require.Equal(t, 1, f.store.EntryCount())
}

func TestPostThenReverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	obs := &observerSpy{}
	f.svc.Observe(obs)

	posted, err := f.svc.PostEntry(ctx, f.sale("JE-1", 250))
	require.NoError(t, err)
	require.True(t, posted.Posted)
	require.Len(t, posted.Lines, 2)
	require.Equal(t, accounts.DefaultCurrency, posted.Lines[0].CurrencyCode)
	require.True(t, posted.Lines[0].ExchangeRate.Equal(decimal.NewFromInt(1)))

	reversal, err := f.svc.ReverseEntry(ctx, ReverseInput{OriginalID: posted.ID, EntryNumber: "JE-1R", PostingDate: d(2026, 2, 2), PeriodID: f.feb.ID})
	require.NoError(t, err)
	require.Equal(t, posted.ID, *reversal.ReversesEntryID)
	require.Len(t, reversal.Lines, len(posted.Lines))
	for i, line := range posted.Lines {
		mirror := reversal.Lines[i]
		require.Equal(t, line.AccountID, mirror.AccountID)
		require.True(t, line.Debit.Equal(mirror.Credit))
		require.True(t, line.Credit.Equal(mirror.Debit))
	}

	original, err := f.svc.GetEntry(ctx, posted.ID)
	require.NoError(t, err)
	require.True(t, original.Posted)
	require.True(t, original.Reversed)
	require.Equal(t, reversal.ID, *original.ReversalEntryID)
	require.Len(t, original.Lines, len(posted.Lines))
	for i, line := range posted.Lines {
		require.Equal(t, line.AccountID, original.Lines[i].AccountID)
		require.True(t, line.Debit.Equal(original.Lines[i].Debit))
		require.True(t, line.Credit.Equal(original.Lines[i].Credit))
	}

	_, err = f.svc.ReverseEntry(ctx, ReverseInput{OriginalID: posted.ID, EntryNumber: "JE-1R2", PostingDate: d(2026, 2, 2), PeriodID: f.feb.ID})
	require.ErrorIs(t, err, shared.ErrAlreadyReversed)
	require.Equal(t, 2, f.store.EntryCount())
	require.Len(t, obs.entries, 2)

	_, err = f.svc.ReverseEntry(ctx, ReverseInput{OriginalID: 404, EntryNumber: "X", PostingDate: d(2026, 2, 2), PeriodID: f.feb.ID})
	require.ErrorIs(t, err, shared.ErrJournalNotFound)
	require.ErrorIs(t, err, internalShared.ErrNotFound)
}

func TestReverseIntoClosedPeriodRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posted, err := f.svc.PostEntry(ctx, f.sale("JE-1", 10))
	require.NoError(t, err)
	_, err = f.periods.Close(ctx, f.jan.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.ReverseEntry(ctx, ReverseInput{OriginalID: posted.ID, EntryNumber: "JE-1R", PostingDate: d(2026, 1, 20), PeriodID: f.jan.ID})
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	original, err := f.svc.GetEntry(ctx, posted.ID)
	require.NoError(t, err)
	require.False(t, original.Reversed)

	// the original's period is closed but the reversal lands in an open one
	_, err = f.svc.ReverseEntry(ctx, ReverseInput{OriginalID: posted.ID, EntryNumber: "JE-1R", PostingDate: d(2026, 2, 1), PeriodID: f.feb.ID})
	require.NoError(t, err)
}

func TestReverseOfOwnedDocumentNeedsCompensation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.OwnDocumentTypes("SUPPLIER_PAYMENT")

	in := f.sale("PAY-1", 40)
	in.DocumentType = "SUPPLIER_PAYMENT"
	posted, err := f.svc.PostEntry(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.ReverseEntry(ctx, ReverseInput{OriginalID: posted.ID, EntryNumber: "PAY-1R", PostingDate: d(2026, 2, 2), PeriodID: f.feb.ID})
	require.ErrorIs(t, err, shared.ErrDocumentOwned)
	require.Equal(t, internalShared.KindBusinessRule, internalShared.KindOf(err))
	require.Equal(t, 1, f.store.EntryCount())

	reversal, err := f.svc.ReverseEntry(ctx, ReverseInput{OriginalID: posted.ID, EntryNumber: "PAY-1R", PostingDate: d(2026, 2, 2), PeriodID: f.feb.ID, Compensated: true})
	require.NoError(t, err)
	require.Equal(t, posted.ID, *reversal.ReversesEntryID)
}

func TestPeriodBalanceIsStableAcrossReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.PostEntry(ctx, f.sale("JE-1", 100))
	require.NoError(t, err)
	_, err = f.svc.PostEntry(ctx, f.sale("JE-2", 40))
	require.NoError(t, err)

	first, err := f.svc.PeriodBalance(ctx, f.cash.ID, f.jan.ID)
	require.NoError(t, err)
	second, err := f.svc.PeriodBalance(ctx, f.cash.ID, f.jan.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.True(t, first.DebitTotal.Equal(decimal.NewFromInt(140)))
	require.True(t, first.CreditTotal.IsZero())

	empty, err := f.svc.PeriodBalance(ctx, f.cash.ID, f.feb.ID)
	require.NoError(t, err)
	require.True(t, empty.DebitTotal.IsZero())

	tb, err := f.svc.TrialBalance(ctx, f.jan.ID)
	require.NoError(t, err)
	require.Len(t, tb, 2)
	require.Equal(t, "1100", tb[0].Code)

	totals, err := f.svc.EntryTotals(ctx, f.jan.ID)
	require.NoError(t, err)
	for _, et := range totals {
		require.True(t, et.Balanced())
	}
}

func TestReferencedAccountCodeIsLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.PostEntry(ctx, f.sale("JE-1", 100))
	require.NoError(t, err)

	_, err = f.accounts.Update(ctx, accounts.UpdateInput{ID: f.cash.ID, Code: "1101", Name: "Cash"})
	require.ErrorIs(t, err, shared.ErrAccountCodeLocked)
}

func TestHandlerPostAndReverse(t *testing.T) {
	f := newFixture(t)
	r := chi.NewRouter()
	NewHandler(nil, f.svc).MountRoutes(r)

	body := `{"entry_number":"JE-9","posting_date":"2026-01-10","period_id":1,"lines":[` +
		`{"account_id":1,"debit":"100.00","credit":"0"},{"account_id":2,"debit":"0","credit":"90.00"}]}`
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body = strings.Replace(body, `"90.00"`, `"100.00"`, 1)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"entry_number":"JE-9"`)

	reverse := `{"entry_number":"JE-9R","posting_date":"2026-02-01","period_id":2}`
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/1/reverse", strings.NewReader(reverse)))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/1/reverse", strings.NewReader(strings.Replace(reverse, "JE-9R", "JE-9R2", 1))))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/balance?account_id=1&period_id=1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"debit_total":"100"`)
}
