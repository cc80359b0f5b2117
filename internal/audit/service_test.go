package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func at(day, hour int) time.Time {
	return time.Date(2026, 1, day, hour, 0, 0, 0, time.UTC)
}

func seed(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	ctx := context.Background()
	logs := []shared.AuditLog{
		{ActorID: 7, Action: "period.create", Entity: "gl_period", EntityID: "1", At: at(1, 9)},
		{ActorID: 7, Action: "journal.post", Entity: "journal_entry", EntityID: "10", Meta: map[string]any{"entry_number": "GR-1"}, At: at(2, 9)},
		{ActorID: 8, Action: "journal.post", Entity: "journal_entry", EntityID: "11", At: at(3, 9)},
		{ActorID: 8, Action: "journal.reverse", Entity: "journal_entry", EntityID: "12", At: at(4, 9)},
		{ActorID: 7, Action: "ap_payment.settle", Entity: "supplier_invoice", EntityID: "3", At: at(5, 9)},
	}
	for _, l := range logs {
		require.NoError(t, store.Record(ctx, l))
	}
	return store
}

func TestTimelinePagesByCursor(t *testing.T) {
	svc := NewService(seed(t))
	ctx := context.Background()

	first, err := svc.Timeline(ctx, TimelineFilters{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Rows, 2)
	require.NotNil(t, first.NextCursor)
	require.Equal(t, int64(2), *first.NextCursor)

	var all []Entry
	all = append(all, first.Rows...)
	cursor := *first.NextCursor
	for {
		page, err := svc.Timeline(ctx, TimelineFilters{Limit: 2, AfterID: cursor})
		require.NoError(t, err)
		all = append(all, page.Rows...)
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}
	require.Len(t, all, 5)
	for i, e := range all {
		require.Equal(t, int64(i+1), e.ID)
	}

	full, err := svc.Timeline(ctx, TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, full.Rows, 5)
	require.Nil(t, full.NextCursor)
}

func TestTimelineFilters(t *testing.T) {
	svc := NewService(seed(t))
	ctx := context.Background()

	page, err := svc.Timeline(ctx, TimelineFilters{Entity: " journal_entry ", Action: "journal.post"})
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	require.Equal(t, "GR-1", page.Rows[0].Meta["entry_number"])

	page, err = svc.Timeline(ctx, TimelineFilters{Entity: "journal_entry", EntityID: "12"})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	require.Equal(t, "journal.reverse", page.Rows[0].Action)

	page, err = svc.Timeline(ctx, TimelineFilters{ActorID: 8})
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)

	page, err = svc.Timeline(ctx, TimelineFilters{From: at(2, 0), To: at(4, 0)})
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	require.Equal(t, "10", page.Rows[0].EntityID)
	require.Equal(t, "11", page.Rows[1].EntityID)
}

func TestTimelineRejectsInvalidFilters(t *testing.T) {
	svc := NewService(seed(t))
	ctx := context.Background()
	for _, f := range []TimelineFilters{
		{EntityID: "10"},
		{AfterID: -1},
		{ActorID: -1},
		{Limit: MaxPageSize + 1},
		{From: at(4, 0), To: at(2, 0)},
	} {
		_, err := svc.Timeline(ctx, f)
		require.ErrorIs(t, err, shared.ErrInvalidArgument)
	}

	_, err := NewService(nil).Timeline(ctx, TimelineFilters{})
	require.Error(t, err)
	require.Error(t, NewMemoryStore().Record(ctx, shared.AuditLog{Action: "x"}))
}

type queryRecorder struct {
	sql  string
	args []any
}

func (q *queryRecorder) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (q *queryRecorder) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.sql, q.args = sql, args
	return nil, errors.New("connection reset")
}

func (q *queryRecorder) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestRepositoryPassesUnsetFiltersAsNull(t *testing.T) {
	rec := &queryRecorder{}
	repo := NewRepository(rec)
	_, err := repo.Timeline(context.Background(), TimelineFilters{Entity: "journal_entry", From: at(2, 0), AfterID: 4, Limit: 51})
	require.Error(t, err)
	require.Contains(t, rec.sql, "FROM audit_logs")
	require.Contains(t, rec.sql, "ORDER BY id")
	require.Len(t, rec.args, 8)
	require.Equal(t, "journal_entry", rec.args[0])
	require.Nil(t, rec.args[1])
	require.Nil(t, rec.args[2])
	require.Nil(t, rec.args[3])
	require.Equal(t, at(2, 0), rec.args[4])
	require.Nil(t, rec.args[5])
	require.Equal(t, int64(4), rec.args[6])
	require.Equal(t, 51, rec.args[7])
}

func TestHandlerTimeline(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/audit", NewHandler(nil, NewService(seed(t))).MountRoutes)
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/audit?entity=journal_entry&limit=2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"entity_id":"10"`)
	require.Contains(t, rec.Body.String(), `"next_cursor":3`)

	rec = get("/audit?entity=journal_entry&limit=2&cursor=3")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"entity_id":"12"`)
	require.Contains(t, rec.Body.String(), `"next_cursor":null`)

	rec = get("/audit?from=2026-01-05&to=2026-01-05")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"action":"ap_payment.settle"`)
	require.NotContains(t, rec.Body.String(), `"journal_entry"`)

	rec = get("/audit?actor_id=" + strconv.Itoa(8))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), `"actor_id":7`)

	for _, bad := range []string{"/audit?cursor=abc", "/audit?limit=0", "/audit?limit=9999", "/audit?from=jan", "/audit?entity_id=3"} {
		require.Equal(t, http.StatusBadRequest, get(bad).Code, bad)
	}
}
