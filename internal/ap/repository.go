package ap

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository defines AP data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, status InvoiceStatus) ([]Invoice, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error)
	// LockInvoice selects the invoice FOR UPDATE so concurrent settlements
	// of the same invoice serialise.
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	InsertPayment(ctx context.Context, payment Payment) (Payment, error)
	UpdateSettlement(ctx context.Context, inv Invoice) error
	LockPayment(ctx context.Context, id int64) (Payment, error)
	MarkPaymentReversed(ctx context.Context, id, reversalEntryID int64) error
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

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

const invoiceColumns = `id, invoice_number, supplier_id, total_amount, paid_amount, currency, due_at, status, created_at, updated_at`

const paymentColumns = `id, invoice_id, amount, paid_at, reference, entry_id, reversal_entry_id, COALESCE(created_by, 0), created_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.SupplierID, &inv.Total, &inv.PaidAmount, &inv.Currency,
		&inv.DueAt, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.PaidAt, &p.Reference, &p.EntryID, &p.ReversalEntryID, &p.CreatedBy, &p.CreatedAt)
	return p, err
}

func (r *pgRepository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM supplier_invoices WHERE id=$1`, id))
}

func (r *pgRepository) ListInvoices(ctx context.Context, status InvoiceStatus) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM supplier_invoices
WHERE ($1 = '' OR status = $1)
ORDER BY due_at, id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *pgRepository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM supplier_payments WHERE invoice_id=$1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type pgTxRepository struct {
	tx db.DBTX
}

func (r *pgTxRepository) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx, `INSERT INTO supplier_invoices
(invoice_number, supplier_id, total_amount, currency, due_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+invoiceColumns, input.Number, input.SupplierID, input.Total, input.Currency, input.DueAt))
	if err != nil {
		if db.IsUniqueViolation(err, "uq_supplier_invoices_number") {
			return Invoice{}, ErrDuplicateInvoice
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *pgTxRepository) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM supplier_invoices WHERE id=$1 FOR UPDATE`, id))
}

func (r *pgTxRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	return scanPayment(r.tx.QueryRow(ctx, `INSERT INTO supplier_payments (invoice_id, amount, paid_at, reference, entry_id, created_by)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0))
RETURNING `+paymentColumns, p.InvoiceID, p.Amount, p.PaidAt, p.Reference, p.EntryID, p.CreatedBy))
}

func (r *pgTxRepository) UpdateSettlement(ctx context.Context, inv Invoice) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE supplier_invoices SET paid_amount=$2, status=$3, updated_at=NOW() WHERE id=$1`,
		inv.ID, inv.PaidAmount, string(inv.Status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *pgTxRepository) LockPayment(ctx context.Context, id int64) (Payment, error) {
	p, err := scanPayment(r.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM supplier_payments WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

func (r *pgTxRepository) MarkPaymentReversed(ctx context.Context, id, reversalEntryID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE supplier_payments SET reversal_entry_id=$2 WHERE id=$1 AND reversal_entry_id IS NULL`, id, reversalEntryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentReversed
	}
	return nil
}
