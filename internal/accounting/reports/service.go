package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TotalsSource yields per-account totals for a period.
type TotalsSource interface {
	TrialBalance(ctx context.Context, periodID int64) ([]journals.AccountTotals, error)
}

// PeriodSource resolves periods so unknown ids fail fast.
type PeriodSource interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
}

// Service builds trial balances on top of the journal engine.
type Service struct {
	totals  TotalsSource
	periods PeriodSource
	cache   *Cache
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService constructs the reporting service. cache may be nil.
func NewService(totals TotalsSource, periods PeriodSource, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{totals: totals, periods: periods, cache: cache, logger: logger}
}

// TrialBalance returns the grouped trial balance of a period. Concurrent
// callers for the same period share one build.
func (s *Service) TrialBalance(ctx context.Context, periodID int64) (TrialBalance, error) {
	if periodID <= 0 {
		return TrialBalance{}, fmt.Errorf("%w: period_id required", shared.ErrInvalidArgument)
	}
	if s.periods != nil {
		if _, err := s.periods.Get(ctx, periodID); err != nil {
			return TrialBalance{}, err
		}
	}
	ch := s.group.DoChan(strconv.FormatInt(periodID, 10), func() (any, error) {
		return s.load(ctx, periodID)
	})
	select {
	case <-ctx.Done():
		return TrialBalance{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return TrialBalance{}, res.Err
		}
		return res.Val.(TrialBalance), nil
	}
}

func (s *Service) load(ctx context.Context, periodID int64) (TrialBalance, error) {
	key, err := s.cache.BuildKey(ctx, periodID, "trial-balance")
	if err != nil {
		s.logger.Warn("trial balance cache unavailable", slog.Int64("period_id", periodID), slog.Any("error", err))
		return s.build(ctx, periodID)
	}
	var tb TrialBalance
	err = s.cache.FetchJSON(ctx, key, &tb, func(ctx context.Context) (any, error) {
		return s.build(ctx, periodID)
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return tb, nil
}

func (s *Service) build(ctx context.Context, periodID int64) (TrialBalance, error) {
	rows, err := s.totals.TrialBalance(ctx, periodID)
	if err != nil {
		return TrialBalance{}, err
	}
	accounts := make([]AccountBalance, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, AccountBalance{
			AccountID: row.AccountID,
			Code:      row.Code,
			Name:      row.Name,
			Type:      row.Type,
			Debit:     row.DebitTotal,
			Credit:    row.CreditTotal,
		})
	}
	tb := BuildTrialBalance(periodID, accounts)
	if !tb.Balanced() {
		s.logger.Error("trial balance out of balance",
			slog.Int64("period_id", periodID),
			slog.String("debit", tb.TotalDebit.StringFixed(2)),
			slog.String("credit", tb.TotalCredit.StringFixed(2)))
	}
	return tb, nil
}

// Invalidate drops cached reports of a period.
func (s *Service) Invalidate(ctx context.Context, periodID int64) error {
	return s.cache.Bump(ctx, periodID)
}

// EntryPosted implements journals.Observer.
func (s *Service) EntryPosted(ctx context.Context, entry journals.JournalEntry) {
	if err := s.Invalidate(ctx, entry.PeriodID); err != nil {
		s.logger.Warn("trial balance cache bump failed", slog.Int64("period_id", entry.PeriodID), slog.Any("error", err))
	}
}
