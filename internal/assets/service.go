package assets

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service maintains the fixed asset register. Depreciation postings are
// driven by the ledger coordinator, which books the journal entry and calls
// the Tx methods here inside one transaction.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
}

func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Asset, error) {
	if err := in.normalize(); err != nil {
		return Asset{}, err
	}
	var out Asset
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.CreateAsset(ctx, in)
		return err
	})
	if err != nil {
		return Asset{}, err
	}
	s.record(ctx, in.ActorID, "asset.create", out, map[string]any{
		"acquisition_cost":     out.AcquisitionCost.StringFixed(2),
		"monthly_depreciation": out.MonthlyDepreciation.StringFixed(2),
	})
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Asset, error) {
	return s.repo.GetAsset(ctx, id)
}

func (s *Service) List(ctx context.Context, status Status) ([]Asset, error) {
	return s.repo.ListAssets(ctx, status)
}

// Depreciations lists the charges posted for an asset, oldest period first.
func (s *Service) Depreciations(ctx context.Context, assetID int64) ([]Depreciation, error) {
	if _, err := s.repo.GetAsset(ctx, assetID); err != nil {
		return nil, err
	}
	return s.repo.ListDepreciations(ctx, assetID)
}

// Dispose retires an asset. Disposed assets are never depreciated again.
func (s *Service) Dispose(ctx context.Context, id, actorID int64) (Asset, error) {
	var out Asset
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.LockAsset(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == StatusDisposed {
			return fmt.Errorf("%w: asset %s already disposed", ErrNotDepreciable, a.Code)
		}
		a.Status = StatusDisposed
		out = a
		return tx.UpdateAsset(ctx, a)
	})
	if err != nil {
		return Asset{}, err
	}
	s.record(ctx, actorID, "asset.dispose", out, nil)
	return out, nil
}

// DueForPeriod lists active assets not yet depreciated in periodID.
func (s *Service) DueForPeriod(ctx context.Context, periodID int64) ([]Asset, error) {
	list, err := s.repo.ListAssets(ctx, StatusActive)
	if err != nil {
		return nil, err
	}
	out := make([]Asset, 0, len(list))
	for _, a := range list {
		if !a.DepreciatedIn(periodID) {
			out = append(out, a)
		}
	}
	return out, nil
}

// LockForDepreciationTx locks the asset and resolves the charge for periodID.
// A zero requested amount means the monthly charge capped at the remaining
// depreciable amount. Nothing is written.
func (s *Service) LockForDepreciationTx(ctx context.Context, tx TxRepository, assetID, periodID int64, requested decimal.Decimal) (Asset, decimal.Decimal, error) {
	if !requested.IsZero() {
		if err := shared.ValidateMagnitude("amount", requested, shared.MaxAmount); err != nil {
			return Asset{}, decimal.Zero, err
		}
	}
	a, err := tx.LockAsset(ctx, assetID)
	if err != nil {
		return Asset{}, decimal.Zero, err
	}
	if a.Status != StatusActive {
		return Asset{}, decimal.Zero, fmt.Errorf("%w: asset %s is %s", ErrNotDepreciable, a.Code, a.Status)
	}
	if a.DepreciatedIn(periodID) {
		return Asset{}, decimal.Zero, fmt.Errorf("%w: asset %s period %d", ErrAlreadyDepreciated, a.Code, periodID)
	}
	remaining := a.Remaining()
	amount := requested
	if amount.IsZero() {
		amount = decimal.Min(a.MonthlyDepreciation, remaining)
	}
	if amount.GreaterThan(remaining) {
		return Asset{}, decimal.Zero, &ExceedsBookValueError{AssetID: a.ID, Remaining: remaining, Requested: amount}
	}
	if !amount.IsPositive() {
		return Asset{}, decimal.Zero, fmt.Errorf("%w: asset %s has nothing left to depreciate", ErrNotDepreciable, a.Code)
	}
	return a, amount, nil
}

// ApplyDepreciationTx records the charge booked by entryID and updates the
// asset's accumulated depreciation.
func (s *Service) ApplyDepreciationTx(ctx context.Context, tx TxRepository, a Asset, periodID int64, amount decimal.Decimal, entryID int64) (Asset, Depreciation, error) {
	dep, err := tx.InsertDepreciation(ctx, Depreciation{AssetID: a.ID, PeriodID: periodID, Amount: amount, EntryID: entryID})
	if err != nil {
		return Asset{}, Depreciation{}, err
	}
	a.AccumulatedDepreciation = a.AccumulatedDepreciation.Add(amount)
	pid := periodID
	a.LastDepreciationPeriodID = &pid
	if !a.Remaining().IsPositive() {
		a.Status = StatusFullyDepreciated
	}
	if err := tx.UpdateAsset(ctx, a); err != nil {
		return Asset{}, Depreciation{}, err
	}
	return a, dep, nil
}

// LockForReversalTx locks the asset and loads the charge of periodID. Only
// the asset's latest charge can be reversed. Nothing is written.
func (s *Service) LockForReversalTx(ctx context.Context, tx TxRepository, assetID, periodID int64) (Asset, Depreciation, error) {
	if assetID <= 0 || periodID <= 0 {
		return Asset{}, Depreciation{}, fmt.Errorf("%w: asset and period required", shared.ErrInvalidArgument)
	}
	a, err := tx.LockAsset(ctx, assetID)
	if err != nil {
		return Asset{}, Depreciation{}, err
	}
	if a.Status == StatusDisposed {
		return Asset{}, Depreciation{}, fmt.Errorf("%w: asset %s is %s", ErrNotDepreciable, a.Code, a.Status)
	}
	dep, err := tx.GetDepreciation(ctx, assetID, periodID)
	if err != nil {
		return Asset{}, Depreciation{}, err
	}
	if !a.DepreciatedIn(periodID) {
		return Asset{}, Depreciation{}, fmt.Errorf("%w: asset %s period %d", ErrNotLatestCharge, a.Code, periodID)
	}
	return a, dep, nil
}

// RevertDepreciationTx removes the charge and rolls the asset back to the
// state before it was booked.
func (s *Service) RevertDepreciationTx(ctx context.Context, tx TxRepository, a Asset, dep Depreciation) (Asset, error) {
	if err := tx.DeleteDepreciation(ctx, dep.AssetID, dep.PeriodID); err != nil {
		return Asset{}, err
	}
	last, err := tx.LatestDepreciationPeriod(ctx, a.ID)
	if err != nil {
		return Asset{}, err
	}
	a.AccumulatedDepreciation = a.AccumulatedDepreciation.Sub(dep.Amount)
	if a.AccumulatedDepreciation.IsNegative() {
		return Asset{}, fmt.Errorf("%w: asset %s accumulated depreciation below zero", shared.ErrConsistency, a.Code)
	}
	a.LastDepreciationPeriodID = last
	if a.Status == StatusFullyDepreciated && a.Remaining().IsPositive() {
		a.Status = StatusActive
	}
	if err := tx.UpdateAsset(ctx, a); err != nil {
		return Asset{}, err
	}
	return a, nil
}

// Reverted audits a reversed charge whose transaction has committed.
func (s *Service) Reverted(ctx context.Context, actorID int64, a Asset, dep Depreciation) {
	s.record(ctx, actorID, "asset.depreciation_reverse", a, map[string]any{
		"period_id":   dep.PeriodID,
		"amount":      dep.Amount.StringFixed(2),
		"accumulated": a.AccumulatedDepreciation.StringFixed(2),
		"entry_id":    dep.EntryID,
	})
}

// Committed audits a depreciation whose transaction has committed.
func (s *Service) Committed(ctx context.Context, actorID int64, a Asset, dep Depreciation) {
	s.record(ctx, actorID, "asset.depreciate", a, map[string]any{
		"period_id":   dep.PeriodID,
		"amount":      dep.Amount.StringFixed(2),
		"accumulated": a.AccumulatedDepreciation.StringFixed(2),
		"entry_id":    dep.EntryID,
	})
}

func (s *Service) record(ctx context.Context, actorID int64, action string, a Asset, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["code"] = a.Code
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "fixed_asset",
		EntityID: strconv.FormatInt(a.ID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("asset audit failed", slog.Int64("asset_id", a.ID), slog.Any("error", err))
	}
}
