package assets

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository defines fixed asset data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetAsset(ctx context.Context, id int64) (Asset, error)
	ListAssets(ctx context.Context, status Status) ([]Asset, error)
	ListDepreciations(ctx context.Context, assetID int64) ([]Depreciation, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	CreateAsset(ctx context.Context, input CreateInput) (Asset, error)
	LockAsset(ctx context.Context, id int64) (Asset, error)
	InsertDepreciation(ctx context.Context, dep Depreciation) (Depreciation, error)
	UpdateAsset(ctx context.Context, asset Asset) error
	GetDepreciation(ctx context.Context, assetID, periodID int64) (Depreciation, error)
	DeleteDepreciation(ctx context.Context, assetID, periodID int64) error
	// LatestDepreciationPeriod returns the period of the asset's most recent
	// charge, or nil when none is left.
	LatestDepreciationPeriod(ctx context.Context, assetID int64) (*int64, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
	txm  *db.TxManager
}

// NewRepository builds the Postgres repository.
func NewRepository(txm *db.TxManager) Repository {
	return &pgRepository{pool: txm.Pool(), txm: txm}
}

// NewTxRepository binds the transactional operations to a caller-owned transaction.
func NewTxRepository(tx db.DBTX) TxRepository {
	return &pgTxRepository{tx: tx}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.txm.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const assetColumns = `id, code, name, acquisition_cost, salvage_value, accumulated_depreciation, monthly_depreciation,
last_depreciation_period_id, status, created_at, updated_at`

func scanAsset(row pgx.Row) (Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.AcquisitionCost, &a.SalvageValue, &a.AccumulatedDepreciation,
		&a.MonthlyDepreciation, &a.LastDepreciationPeriodID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, ErrAssetNotFound
		}
		return Asset{}, err
	}
	return a, nil
}

func (r *pgRepository) GetAsset(ctx context.Context, id int64) (Asset, error) {
	return scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM fixed_assets WHERE id=$1`, id))
}

func (r *pgRepository) ListAssets(ctx context.Context, status Status) ([]Asset, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assetColumns+` FROM fixed_assets
WHERE ($1 = '' OR status = $1)
ORDER BY code`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *pgRepository) ListDepreciations(ctx context.Context, assetID int64) ([]Depreciation, error) {
	rows, err := r.pool.Query(ctx, `SELECT d.asset_id, d.period_id, d.amount, d.entry_id, d.created_at
FROM asset_depreciations d
JOIN gl_periods p ON p.id = d.period_id
WHERE d.asset_id=$1
ORDER BY p.start_date`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Depreciation
	for rows.Next() {
		var d Depreciation
		if err := rows.Scan(&d.AssetID, &d.PeriodID, &d.Amount, &d.EntryID, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type pgTxRepository struct {
	tx db.DBTX
}

func (r *pgTxRepository) CreateAsset(ctx context.Context, in CreateInput) (Asset, error) {
	a, err := scanAsset(r.tx.QueryRow(ctx, `INSERT INTO fixed_assets
(code, name, acquisition_cost, salvage_value, monthly_depreciation)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+assetColumns, in.Code, in.Name, in.AcquisitionCost, in.SalvageValue, in.MonthlyDepreciation))
	if err != nil {
		if db.IsUniqueViolation(err, "uq_fixed_assets_code") {
			return Asset{}, ErrAssetCodeTaken
		}
		return Asset{}, err
	}
	return a, nil
}

func (r *pgTxRepository) LockAsset(ctx context.Context, id int64) (Asset, error) {
	return scanAsset(r.tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM fixed_assets WHERE id=$1 FOR UPDATE`, id))
}

func (r *pgTxRepository) InsertDepreciation(ctx context.Context, d Depreciation) (Depreciation, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO asset_depreciations (asset_id, period_id, amount, entry_id)
VALUES ($1, $2, $3, $4)
RETURNING created_at`, d.AssetID, d.PeriodID, d.Amount, d.EntryID).Scan(&d.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "asset_depreciations_pkey") {
			return Depreciation{}, ErrAlreadyDepreciated
		}
		return Depreciation{}, err
	}
	return d, nil
}

func (r *pgTxRepository) UpdateAsset(ctx context.Context, a Asset) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE fixed_assets
SET accumulated_depreciation=$2, last_depreciation_period_id=$3, status=$4, updated_at=NOW()
WHERE id=$1`, a.ID, a.AccumulatedDepreciation, a.LastDepreciationPeriodID, string(a.Status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func (r *pgTxRepository) GetDepreciation(ctx context.Context, assetID, periodID int64) (Depreciation, error) {
	var d Depreciation
	err := r.tx.QueryRow(ctx, `SELECT asset_id, period_id, amount, entry_id, created_at
FROM asset_depreciations WHERE asset_id=$1 AND period_id=$2`, assetID, periodID).
		Scan(&d.AssetID, &d.PeriodID, &d.Amount, &d.EntryID, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Depreciation{}, ErrChargeNotFound
	}
	return d, err
}

func (r *pgTxRepository) DeleteDepreciation(ctx context.Context, assetID, periodID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM asset_depreciations WHERE asset_id=$1 AND period_id=$2`, assetID, periodID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrChargeNotFound
	}
	return nil
}

func (r *pgTxRepository) LatestDepreciationPeriod(ctx context.Context, assetID int64) (*int64, error) {
	var periodID int64
	err := r.tx.QueryRow(ctx, `SELECT d.period_id
FROM asset_depreciations d
JOIN gl_periods p ON p.id = d.period_id
WHERE d.asset_id=$1
ORDER BY p.start_date DESC
LIMIT 1`, assetID).Scan(&periodID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &periodID, nil
}
