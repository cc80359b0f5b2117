package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// RepositoryPort abstracts read access and transaction scoping for Service.
type RepositoryPort interface {
	GetBalance(ctx context.Context, key Key) (Balance, error)
	HasTransactions(ctx context.Context, key Key) (bool, error)
	History(ctx context.Context, filter HistoryFilter) ([]Transaction, error)
	ListKeys(ctx context.Context) ([]Key, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	// LockBalance creates the projection row if missing and locks it FOR
	// UPDATE. created reports whether this call inserted the row.
	LockBalance(ctx context.Context, key Key) (balance Balance, created bool, err error)
	// LatestTransaction returns the newest movement of key, or nil.
	LatestTransaction(ctx context.Context, key Key) (*Transaction, error)
	InsertTransaction(ctx context.Context, rec Transaction) (Transaction, error)
	UpdateBalance(ctx context.Context, balance Balance) error
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	txm  *db.TxManager
}

// NewRepository constructs Repository.
func NewRepository(txm *db.TxManager) *Repository {
	return &Repository{pool: txm.Pool(), txm: txm}
}

// NewTxRepository binds the transactional operations to a caller-owned transaction.
func NewTxRepository(tx db.DBTX) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx executes the callback inside a managed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.txm.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const balanceColumns = `material_id, location_id, quantity, reserved_quantity, avg_cost, updated_at`

const transactionColumns = `id, material_id, location_id, tx_type, quantity, before_quantity, after_quantity, unit_cost, unit_id,
reference_no, reference_type, operator, remark, occurred_at`

func scanBalance(row pgx.Row) (Balance, error) {
	var b Balance
	if err := row.Scan(&b.MaterialID, &b.LocationID, &b.Quantity, &b.Reserved, &b.AvgCost, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.MaterialID, &t.LocationID, &t.Type, &t.Quantity, &t.BeforeQuantity, &t.AfterQuantity,
		&t.UnitCost, &t.UnitID, &t.ReferenceNo, &t.ReferenceType, &t.Operator, &t.Remark, &t.OccurredAt)
	return t, err
}

func (r *Repository) GetBalance(ctx context.Context, key Key) (Balance, error) {
	return scanBalance(r.pool.QueryRow(ctx, `SELECT `+balanceColumns+` FROM stock_balances WHERE material_id=$1 AND location_id=$2`,
		key.MaterialID, key.LocationID))
}

func (r *Repository) HasTransactions(ctx context.Context, key Key) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_transactions WHERE material_id=$1 AND location_id=$2)`,
		key.MaterialID, key.LocationID).Scan(&exists)
	return exists, err
}

func (r *Repository) History(ctx context.Context, filter HistoryFilter) ([]Transaction, error) {
	var from, to *time.Time
	if !filter.From.IsZero() {
		from = &filter.From
	}
	if !filter.To.IsZero() {
		to = &filter.To
	}
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}
	var afterID *int64
	if filter.AfterID > 0 {
		afterID = &filter.AfterID
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+`
FROM inventory_transactions
WHERE material_id=$1
  AND ($2::BIGINT IS NULL OR location_id=$2)
  AND ($3::TIMESTAMPTZ IS NULL OR occurred_at >= $3)
  AND ($4::TIMESTAMPTZ IS NULL OR occurred_at < $4)
  AND ($6::BIGINT IS NULL OR id > $6)
ORDER BY id ASC
LIMIT $5`, filter.MaterialID, filter.LocationID, from, to, limit, afterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) ListKeys(ctx context.Context) ([]Key, error) {
	rows, err := r.pool.Query(ctx, `SELECT material_id, location_id FROM stock_balances
UNION
SELECT DISTINCT material_id, location_id FROM inventory_transactions
ORDER BY 1, 2`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.MaterialID, &k.LocationID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

type txRepo struct {
	tx db.DBTX
}

func (r *txRepo) LockBalance(ctx context.Context, key Key) (Balance, bool, error) {
	var inserted int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_balances (material_id, location_id, quantity, reserved_quantity, avg_cost)
VALUES ($1, $2, 0, 0, 0)
ON CONFLICT (material_id, location_id) DO NOTHING
RETURNING material_id`, key.MaterialID, key.LocationID).Scan(&inserted)
	created := true
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, false, err
		}
		created = false
	}
	balance, err := scanBalance(r.tx.QueryRow(ctx, `SELECT `+balanceColumns+` FROM stock_balances
WHERE material_id=$1 AND location_id=$2 FOR UPDATE`, key.MaterialID, key.LocationID))
	if err != nil {
		return Balance{}, false, err
	}
	return balance, created, nil
}

func (r *txRepo) LatestTransaction(ctx context.Context, key Key) (*Transaction, error) {
	t, err := scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+`
FROM inventory_transactions WHERE material_id=$1 AND location_id=$2
ORDER BY id DESC LIMIT 1`, key.MaterialID, key.LocationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *txRepo) InsertTransaction(ctx context.Context, rec Transaction) (Transaction, error) {
	return scanTransaction(r.tx.QueryRow(ctx, `INSERT INTO inventory_transactions
(material_id, location_id, tx_type, quantity, before_quantity, after_quantity, unit_cost, unit_id, reference_no, reference_type, operator, remark)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING `+transactionColumns,
		rec.MaterialID, rec.LocationID, rec.Type, rec.Quantity, rec.BeforeQuantity, rec.AfterQuantity, rec.UnitCost, rec.UnitID,
		rec.ReferenceNo, rec.ReferenceType, rec.Operator, rec.Remark))
}

func (r *txRepo) UpdateBalance(ctx context.Context, balance Balance) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE stock_balances SET quantity=$3, reserved_quantity=$4, avg_cost=$5, updated_at=NOW()
WHERE material_id=$1 AND location_id=$2`, balance.MaterialID, balance.LocationID, balance.Quantity, balance.Reserved, balance.AvgCost)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBalanceNotFound
	}
	return nil
}
