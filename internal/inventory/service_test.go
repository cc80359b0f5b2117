package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func qty(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func movement(t MovementType, q string) MovementInput {
	return MovementInput{MaterialID: 7, LocationID: 3, Type: t, Quantity: qty(q), Provenance: Provenance{ReferenceNo: "GRN-1", ReferenceType: "GRN", Operator: "ops"}}
}

func TestInboundThenOutbound(t *testing.T) {
	store := NewMemoryStore(nil)
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	in, err := svc.RecordMovement(ctx, movement(MovementInbound, "100"))
	require.NoError(t, err)
	require.True(t, in.BeforeQuantity.IsZero())
	require.True(t, in.AfterQuantity.Equal(qty("100")))

	out, err := svc.RecordMovement(ctx, movement(MovementOutbound, "40"))
	require.NoError(t, err)
	require.True(t, out.BeforeQuantity.Equal(qty("100")))
	require.True(t, out.AfterQuantity.Equal(qty("60")))

	bal, err := svc.CurrentBalance(ctx, 7, 3)
	require.NoError(t, err)
	require.True(t, bal.Equal(qty("60")))
}

func TestOutboundBeyondStockIsRejected(t *testing.T) {
	store := NewMemoryStore(nil)
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	_, err := svc.RecordMovement(ctx, movement(MovementInbound, "60"))
	require.NoError(t, err)

	_, err = svc.RecordMovement(ctx, movement(MovementOutbound, "1000"))
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Available.Equal(qty("60")))
	require.True(t, insufficient.Requested.Equal(qty("1000")))

	bal, err := svc.CurrentBalance(ctx, 7, 3)
	require.NoError(t, err)
	require.True(t, bal.Equal(qty("60")))
	require.Equal(t, 1, store.TransactionCount())
}

func TestMovementValidation(t *testing.T) {
	svc := NewService(NewMemoryStore(nil), nil, nil)
	ctx := context.Background()

	cases := map[string]MovementInput{
		"zero":         movement(MovementInbound, "0"),
		"negative":     movement(MovementInbound, "-5"),
		"three places": movement(MovementInbound, "1.005"),
		"too large":    movement(MovementInbound, "100000000"),
		"unknown type": movement("TELEPORT", "1"),
		"no material":  {LocationID: 3, Type: MovementInbound, Quantity: qty("1")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.RecordMovement(ctx, in)
			require.ErrorIs(t, err, shared.ErrInvalidArgument)
		})
	}

	rec, err := svc.RecordMovement(ctx, movement(" adjust_in ", "99999999.99"))
	require.NoError(t, err)
	require.Equal(t, MovementAdjustIn, rec.Type)
}

func TestBatchIsAllOrNothing(t *testing.T) {
	store := NewMemoryStore(nil)
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	_, err := svc.RecordMovement(ctx, movement(MovementInbound, "10"))
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := svc.RecordMovementsTx(ctx, tx, []MovementInput{
			{MaterialID: 7, LocationID: 3, Type: MovementTransferOut, Quantity: qty("4")},
			{MaterialID: 7, LocationID: 9, Type: MovementTransferIn, Quantity: qty("4")},
			{MaterialID: 7, LocationID: 3, Type: MovementOutbound, Quantity: qty("7")},
		})
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, 1, store.TransactionCount())
	other, err := svc.CurrentBalance(ctx, 7, 9)
	require.NoError(t, err)
	require.True(t, other.IsZero())

	err = store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		recs, err := svc.RecordMovementsTx(ctx, tx, []MovementInput{
			{MaterialID: 7, LocationID: 3, Type: MovementTransferOut, Quantity: qty("4")},
			{MaterialID: 7, LocationID: 9, Type: MovementTransferIn, Quantity: qty("4")},
			{MaterialID: 7, LocationID: 3, Type: MovementOutbound, Quantity: qty("6")},
		})
		require.Len(t, recs, 3)
		require.True(t, recs[2].BeforeQuantity.Equal(qty("6")))
		return err
	})
	require.NoError(t, err)
	source, err := svc.CurrentBalance(ctx, 7, 3)
	require.NoError(t, err)
	require.True(t, source.IsZero())
}

func TestConcurrentMovementsSerialize(t *testing.T) {
	store := NewMemoryStore(nil)
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	_, err := svc.RecordMovement(ctx, movement(MovementInbound, "100"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, in := range []MovementInput{movement(MovementOutbound, "30"), movement(MovementInbound, "50")} {
		wg.Add(1)
		go func(in MovementInput) {
			defer wg.Done()
			_, err := svc.RecordMovement(ctx, in)
			errs <- err
		}(in)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	bal, err := svc.CurrentBalance(ctx, 7, 3)
	require.NoError(t, err)
	require.True(t, bal.Equal(qty("120")))

	loc := int64(3)
	history, err := svc.History(ctx, HistoryFilter{MaterialID: 7, LocationID: &loc})
	require.NoError(t, err)
	require.Len(t, history, 3)
	final, err := VerifyChain(history)
	require.NoError(t, err)
	require.True(t, final.Equal(bal))
	require.True(t, history[2].AfterQuantity.Equal(bal))
}

func TestHistoryReplayMatchesStoredValues(t *testing.T) {
	store := NewMemoryStore(nil)
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	for _, in := range []MovementInput{
		movement(MovementInbound, "12.50"),
		movement(MovementAdjustOut, "2.25"),
		movement(MovementOutsourcedInbound, "5"),
		movement(MovementTransferOut, "15.25"),
	} {
		_, err := svc.RecordMovement(ctx, in)
		require.NoError(t, err)
	}
	loc := int64(3)
	first, err := svc.History(ctx, HistoryFilter{MaterialID: 7, LocationID: &loc})
	require.NoError(t, err)
	second, err := svc.History(ctx, HistoryFilter{MaterialID: 7, LocationID: &loc})
	require.NoError(t, err)
	require.Equal(t, first, second)

	replayed := Replay(first)
	for i := range first {
		require.True(t, first[i].BeforeQuantity.Equal(replayed[i].BeforeQuantity))
		require.True(t, first[i].AfterQuantity.Equal(replayed[i].AfterQuantity))
	}
	require.NoError(t, svc.VerifyKey(ctx, Key{MaterialID: 7, LocationID: 3}))

	limited, err := svc.History(ctx, HistoryFilter{MaterialID: 7, Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, first[0].ID, limited[0].ID)
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	records := []Transaction{
		{ID: 1, MaterialID: 1, LocationID: 1, Type: MovementInbound, Quantity: qty("10"), BeforeQuantity: qty("0"), AfterQuantity: qty("10")},
		{ID: 2, MaterialID: 1, LocationID: 1, Type: MovementOutbound, Quantity: qty("4"), BeforeQuantity: qty("10"), AfterQuantity: qty("5")},
	}
	_, err := VerifyChain(records)
	var brk *ChainBreakError
	require.ErrorAs(t, err, &brk)
	require.Equal(t, int64(2), brk.TransactionID)
	require.ErrorIs(t, err, shared.ErrConsistency)
}

func TestProjectionDriftIsReportedAsConsistencyFailure(t *testing.T) {
	store := NewMemoryStore(nil)
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	_, err := svc.RecordMovement(ctx, movement(MovementInbound, "10"))
	require.NoError(t, err)

	key := Key{MaterialID: 7, LocationID: 3}
	store.mu.Lock()
	drifted := store.balances[key]
	drifted.Quantity = qty("11")
	store.balances[key] = drifted
	store.mu.Unlock()

	_, err = svc.RecordMovement(ctx, movement(MovementOutbound, "1"))
	var inconsistent *ProjectionInconsistencyError
	require.ErrorAs(t, err, &inconsistent)
	require.True(t, inconsistent.Projected.Equal(qty("11")))
	require.True(t, inconsistent.Ledger.Equal(qty("10")))
	require.Equal(t, shared.KindConsistency, shared.KindOf(err))
	require.Error(t, svc.VerifyKey(ctx, key))

	store.mu.Lock()
	delete(store.balances, key)
	store.mu.Unlock()
	_, err = svc.CurrentBalance(ctx, 7, 3)
	require.ErrorIs(t, err, ErrProjectionInconsistency)
}

func TestUnknownKeyHasZeroBalance(t *testing.T) {
	svc := NewService(NewMemoryStore(nil), nil, nil)
	bal, err := svc.CurrentBalance(context.Background(), 1, 1)
	require.NoError(t, err)
	require.True(t, bal.IsZero())
}

func TestReservations(t *testing.T) {
	store := NewMemoryStore(nil)
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	_, err := svc.RecordMovement(ctx, movement(MovementInbound, "10"))
	require.NoError(t, err)

	bal, err := svc.Reserve(ctx, ReservationInput{MaterialID: 7, LocationID: 3, Quantity: qty("8")})
	require.NoError(t, err)
	require.True(t, bal.Available().Equal(qty("2")))

	_, err = svc.Reserve(ctx, ReservationInput{MaterialID: 7, LocationID: 3, Quantity: qty("3")})
	require.ErrorIs(t, err, ErrReservationExceeded)

	bal, err = svc.Release(ctx, ReservationInput{MaterialID: 7, LocationID: 3, Quantity: qty("2")})
	require.NoError(t, err)
	require.True(t, bal.Reserved.Equal(qty("6")))

	_, err = svc.RecordMovement(ctx, movement(MovementOutbound, "7"))
	require.ErrorIs(t, err, ErrReservationExceeded)
	require.Equal(t, shared.KindBusinessRule, shared.KindOf(err))
	require.Equal(t, 1, store.TransactionCount())

	_, err = svc.RecordMovement(ctx, movement(MovementOutbound, "4"))
	require.NoError(t, err)
	bal, err = svc.Balance(ctx, 7, 3)
	require.NoError(t, err)
	require.True(t, bal.Quantity.Equal(qty("6")))
	require.True(t, bal.Reserved.Equal(qty("6")))
	require.True(t, bal.Available().IsZero())
}

func TestHistoryReturnsFullChainAndPagesByCursor(t *testing.T) {
	store := NewMemoryStore(nil)
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	for i := 0; i < 250; i++ {
		_, err := svc.RecordMovement(ctx, movement(MovementInbound, "1"))
		require.NoError(t, err)
	}
	loc := int64(3)
	history, err := svc.History(ctx, HistoryFilter{MaterialID: 7, LocationID: &loc})
	require.NoError(t, err)
	require.Len(t, history, 250)
	current, err := svc.CurrentBalance(ctx, 7, 3)
	require.NoError(t, err)
	require.True(t, current.Equal(qty("250")))
	require.True(t, history[len(history)-1].AfterQuantity.Equal(current))

	var paged []Transaction
	cursor := int64(0)
	for {
		page, err := svc.History(ctx, HistoryFilter{MaterialID: 7, LocationID: &loc, AfterID: cursor, Limit: 100})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		paged = append(paged, page...)
		cursor = page[len(page)-1].ID
	}
	require.Equal(t, history, paged)

	_, err = svc.History(ctx, HistoryFilter{MaterialID: 7, AfterID: -1})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestMovingAverageCost(t *testing.T) {
	store := NewMemoryStore(nil)
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	cost := func(v string) *decimal.Decimal {
		d := qty(v)
		return &d
	}

	in := movement(MovementInbound, "10")
	in.UnitCost = cost("10")
	_, err := svc.RecordMovement(ctx, in)
	require.NoError(t, err)
	in = movement(MovementInbound, "10")
	in.UnitCost = cost("20")
	_, err = svc.RecordMovement(ctx, in)
	require.NoError(t, err)

	bal, err := svc.Balance(ctx, 7, 3)
	require.NoError(t, err)
	require.True(t, bal.AvgCost.Equal(qty("15")))

	out, err := svc.RecordMovement(ctx, movement(MovementOutbound, "4"))
	require.NoError(t, err)
	require.True(t, out.UnitCost.Equal(qty("15")))
	require.True(t, out.Value().Equal(qty("60")))
	bal, err = svc.Balance(ctx, 7, 3)
	require.NoError(t, err)
	require.True(t, bal.AvgCost.Equal(qty("15")))

	var recs []Transaction
	err = store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		recs, err = svc.RecordMovementsTx(ctx, tx, []MovementInput{
			{MaterialID: 7, LocationID: 3, Type: MovementTransferOut, Quantity: qty("16")},
			{MaterialID: 7, LocationID: 4, Type: MovementTransferIn, Quantity: qty("16")},
		})
		return err
	})
	require.NoError(t, err)
	require.True(t, recs[1].UnitCost.Equal(qty("15")))

	src, err := svc.Balance(ctx, 7, 3)
	require.NoError(t, err)
	require.True(t, src.Quantity.IsZero())
	require.True(t, src.AvgCost.IsZero())
	dst, err := svc.Balance(ctx, 7, 4)
	require.NoError(t, err)
	require.True(t, dst.AvgCost.Equal(qty("15")))

	bad := movement(MovementInbound, "1")
	bad.UnitCost = cost("-1")
	_, err = svc.RecordMovement(ctx, bad)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestHandlerMovementAndBalance(t *testing.T) {
	svc := NewService(NewMemoryStore(nil), nil, nil)
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/movements", strings.NewReader(`{"material_id":7,"location_id":3,"type":"INBOUND","quantity":"60"}`)))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"after_quantity":"60"`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/movements", strings.NewReader(`{"material_id":7,"location_id":3,"type":"OUTBOUND","quantity":"1000"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/balance?material_id=7&location_id=3", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"quantity":"60"`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history?material_id=7", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"type":"INBOUND"`)
	require.Contains(t, rr.Body.String(), `"next_cursor":null`)
}

func TestHandlerHistoryPages(t *testing.T) {
	svc := NewService(NewMemoryStore(nil), nil, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.RecordMovement(ctx, movement(MovementInbound, "1"))
		require.NoError(t, err)
	}
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history?material_id=7&location_id=3&limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var page struct {
		Items []struct {
			ID            int64  `json:"id"`
			AfterQuantity string `json:"after_quantity"`
		} `json:"items"`
		NextCursor *int64 `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Items, 2)
	require.NotNil(t, page.NextCursor)
	require.Equal(t, page.Items[1].ID, *page.NextCursor)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/history?material_id=7&location_id=3&limit=2&cursor=%d", *page.NextCursor), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	page.NextCursor = nil
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	require.Equal(t, "3", page.Items[0].AfterQuantity)
	require.Nil(t, page.NextCursor)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history?material_id=7&cursor=abc", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
