package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	List(ctx context.Context) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	Insert(ctx context.Context, in CreateInput) (Account, error)
	GetForUpdate(ctx context.Context, id int64) (Account, error)
	Update(ctx context.Context, account Account) (Account, error)
	HasJournalLines(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
	txm  *db.TxManager
}

// NewRepository builds the PostgreSQL repository.
func NewRepository(txm *db.TxManager) Repository {
	return &repository{pool: txm.Pool(), txm: txm}
}

const accountColumns = `id, code, name, type, parent_id, normal_side, is_active, currency, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.NormalSide, &a.IsActive, &a.Currency, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM gl_accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE id=$1`, id))
}

func (r *repository) GetByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE code=$1`, code))
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.txm.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx db.DBTX
}

func (r *txRepository) Insert(ctx context.Context, in CreateInput) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `INSERT INTO gl_accounts (code, name, type, parent_id, normal_side, currency)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+accountColumns, in.Code, in.Name, in.Type, in.ParentID, in.NormalSide, in.Currency))
	if err != nil {
		if db.IsUniqueViolation(err, "uq_gl_accounts_code") {
			return Account{}, shared.ErrAccountCodeTaken
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) Update(ctx context.Context, account Account) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `UPDATE gl_accounts SET code=$2, name=$3, is_active=$4, updated_at=NOW()
WHERE id=$1 RETURNING `+accountColumns, account.ID, account.Code, account.Name, account.IsActive))
	if err != nil {
		if db.IsUniqueViolation(err, "uq_gl_accounts_code") {
			return Account{}, shared.ErrAccountCodeTaken
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) HasJournalLines(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gl_entry_items WHERE account_id=$1)`, id).Scan(&exists)
	return exists, err
}
