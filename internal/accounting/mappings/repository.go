package mappings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository resolves and maintains account mappings.
type Repository interface {
	Get(ctx context.Context, module, key string) (AccountMapping, error)
	List(ctx context.Context) ([]AccountMapping, error)
	Upsert(ctx context.Context, mapping AccountMapping) (AccountMapping, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository works on a pool or on an open transaction.
func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, module, key string) (AccountMapping, error) {
	module, key, err := normalize(module, key)
	if err != nil {
		return AccountMapping{}, err
	}
	var mapping AccountMapping
	err = r.db.QueryRow(ctx, `SELECT module, key, account_id, created_at, updated_at FROM account_mappings WHERE module=$1 AND key=$2`, module, key).
		Scan(&mapping.Module, &mapping.Key, &mapping.AccountID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, fmt.Errorf("%w: %s/%s", shared.ErrMappingNotFound, module, key)
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

func (r *repository) List(ctx context.Context) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT module, key, account_id, created_at, updated_at FROM account_mappings ORDER BY module, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.Module, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) Upsert(ctx context.Context, mapping AccountMapping) (AccountMapping, error) {
	module, key, err := normalize(mapping.Module, mapping.Key)
	if err != nil {
		return AccountMapping{}, err
	}
	if mapping.AccountID <= 0 {
		return AccountMapping{}, fmt.Errorf("%w: mapping account required", internalShared.ErrInvalidArgument)
	}
	var out AccountMapping
	err = r.db.QueryRow(ctx, `INSERT INTO account_mappings (module, key, account_id)
VALUES ($1, $2, $3)
ON CONFLICT (module, key) DO UPDATE SET account_id = EXCLUDED.account_id, updated_at = NOW()
RETURNING module, key, account_id, created_at, updated_at`, module, key, mapping.AccountID).
		Scan(&out.Module, &out.Key, &out.AccountID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return AccountMapping{}, db.MapError(err)
	}
	return out, nil
}
