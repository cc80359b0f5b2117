package periods

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateRejectsOverlap(t *testing.T) {
	svc := NewService(NewMemoryStore(nil), nil, nil)
	ctx := context.Background()

	jan, err := svc.Create(ctx, CreatePeriodInput{Label: "2026-01", StartDate: date(2026, 1, 1), EndDate: date(2026, 1, 31)})
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, jan.Status)

	_, err = svc.Create(ctx, CreatePeriodInput{Label: "2026-01b", StartDate: date(2026, 1, 31), EndDate: date(2026, 2, 27)})
	require.ErrorIs(t, err, shared.ErrPeriodOverlap)
	require.ErrorIs(t, err, internalShared.ErrConflict)

	_, err = svc.Create(ctx, CreatePeriodInput{Label: "2026-02", StartDate: date(2026, 2, 1), EndDate: date(2026, 2, 28)})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreatePeriodInput{Label: "bad", StartDate: date(2026, 4, 2), EndDate: date(2026, 4, 1)})
	require.ErrorIs(t, err, internalShared.ErrInvalidArgument)
}

func TestCloseIsPermanent(t *testing.T) {
	svc := NewService(NewMemoryStore(nil), nil, nil)
	fixed := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return fixed })
	ctx := context.Background()

	jan, err := svc.Create(ctx, CreatePeriodInput{Label: "2026-01", StartDate: date(2026, 1, 1), EndDate: date(2026, 1, 31)})
	require.NoError(t, err)

	closed, err := svc.Close(ctx, jan.ID, 9)
	require.NoError(t, err)
	require.True(t, closed.IsClosed())
	require.Equal(t, fixed, *closed.ClosedAt)
	require.Equal(t, int64(9), *closed.ClosedBy)

	_, err = svc.Close(ctx, jan.ID, 9)
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	var closedErr *shared.PeriodClosedError
	require.ErrorAs(t, err, &closedErr)
	require.Equal(t, jan.ID, closedErr.PeriodID)

	_, err = svc.Close(ctx, 404, 9)
	require.ErrorIs(t, err, shared.ErrPeriodNotFound)
}

func TestFindByDateIncludesEndDate(t *testing.T) {
	svc := NewService(NewMemoryStore(nil), nil, nil)
	ctx := context.Background()
	jan, err := svc.Create(ctx, CreatePeriodInput{Label: "2026-01", StartDate: date(2026, 1, 1), EndDate: date(2026, 1, 31)})
	require.NoError(t, err)

	found, err := svc.FindByDate(ctx, time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, jan.ID, found.ID)

	_, err = svc.FindByDate(ctx, date(2026, 2, 1))
	require.ErrorIs(t, err, shared.ErrPeriodNotFound)
}

func TestHandlerCloseTwiceReturnsUnprocessable(t *testing.T) {
	h := NewHandler(nil, NewService(NewMemoryStore(nil), nil, nil))
	r := chi.NewRouter()
	h.MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"label":"2026-01","start_date":"2026-01-01","end_date":"2026-01-31"}`)))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"start_date":"2026-01-01"`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/1/close", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/1/close", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
