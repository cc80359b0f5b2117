package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context) ([]Period, error)
	Get(ctx context.Context, id int64) (Period, error)
	FindByDate(ctx context.Context, date time.Time) (Period, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	Insert(ctx context.Context, in CreatePeriodInput) (Period, error)
	FindOverlapping(ctx context.Context, start, end time.Time) (*Period, error)
	GetForUpdate(ctx context.Context, id int64) (Period, error)
	MarkClosed(ctx context.Context, id, actorID int64, at time.Time) (Period, error)
}

type repository struct {
	pool *pgxpool.Pool
	txm  *db.TxManager
}

func NewRepository(txm *db.TxManager) Repository {
	return &repository{pool: txm.Pool(), txm: txm}
}

const periodColumns = `id, label, start_date, end_date, status, closed_at, closed_by, created_at, updated_at`

// ScanPeriod scans one row selected with the canonical column list.
func ScanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Label, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

// SelectColumns is the canonical column list used by ScanPeriod.
func SelectColumns() string {
	return periodColumns
}

func (r *repository) List(ctx context.Context) ([]Period, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM gl_periods ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := ScanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Period, error) {
	return ScanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM gl_periods WHERE id=$1`, id))
}

// FindByDate returns the period covering the supplied date, open or closed.
func (r *repository) FindByDate(ctx context.Context, date time.Time) (Period, error) {
	return ScanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+`
FROM gl_periods WHERE $1::date BETWEEN start_date AND end_date LIMIT 1`, date))
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.txm.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx db.DBTX
}

func (r *txRepository) Insert(ctx context.Context, in CreatePeriodInput) (Period, error) {
	p, err := ScanPeriod(r.tx.QueryRow(ctx, `INSERT INTO gl_periods (label, start_date, end_date, status)
VALUES ($1,$2,$3,'OPEN') RETURNING `+periodColumns, in.Label, in.StartDate, in.EndDate))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "ex_gl_periods_overlap" {
			return Period{}, shared.ErrPeriodOverlap
		}
		return Period{}, err
	}
	return p, nil
}

func (r *txRepository) FindOverlapping(ctx context.Context, start, end time.Time) (*Period, error) {
	p, err := ScanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+`
FROM gl_periods WHERE start_date <= $2 AND end_date >= $1 ORDER BY start_date LIMIT 1`, start, end))
	if errors.Is(err, shared.ErrPeriodNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Period, error) {
	return ScanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM gl_periods WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) MarkClosed(ctx context.Context, id, actorID int64, at time.Time) (Period, error) {
	return ScanPeriod(r.tx.QueryRow(ctx, `UPDATE gl_periods SET status='CLOSED', closed_at=$2, closed_by=$3, updated_at=NOW()
WHERE id=$1 AND status='OPEN' RETURNING `+periodColumns, id, at, nullInt(actorID)))
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
