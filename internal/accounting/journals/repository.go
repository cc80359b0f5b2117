package journals

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	GetEntry(ctx context.Context, id int64) (JournalEntry, error)
	ListEntries(ctx context.Context, periodID int64) ([]JournalEntry, error)
	PeriodBalance(ctx context.Context, accountID, periodID int64) (Totals, error)
	TrialBalance(ctx context.Context, periodID int64) ([]AccountTotals, error)
	EntryTotals(ctx context.Context, periodID int64) ([]EntryTotals, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction. Periods and
// accounts are read with shared locks so a concurrent close or deactivation
// waits for the posting to commit.
type TxRepository interface {
	GetPeriodForShare(ctx context.Context, periodID int64) (periods.Period, error)
	GetAccountsForShare(ctx context.Context, ids []int64) (map[int64]accounts.Account, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []JournalLine) error
	GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	MarkReversed(ctx context.Context, id, reversalID int64) error
}

type repository struct {
	pool *pgxpool.Pool
	txm  *db.TxManager
}

// NewRepository builds the PostgreSQL repository.
func NewRepository(txm *db.TxManager) Repository {
	return &repository{pool: txm.Pool(), txm: txm}
}

// NewTxRepository binds the transactional operations to an open transaction
// owned by the caller.
func NewTxRepository(tx db.DBTX) TxRepository {
	return &txRepository{tx: tx}
}

const entryColumns = `id, entry_number, entry_date, posting_date, document_type, document_number, period_id, posted, reversed, reversal_entry_id, reverses_entry_id, COALESCE(created_by, 0), created_at`

const lineColumns = `id, entry_id, line_no, account_id, debit, credit, currency_code, exchange_rate, cost_center_id, description`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.EntryNumber, &e.EntryDate, &e.PostingDate, &e.DocumentType, &e.DocumentNumber, &e.PeriodID,
		&e.Posted, &e.Reversed, &e.ReversalEntryID, &e.ReversesEntryID, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	return e, nil
}

func loadLines(ctx context.Context, q db.DBTX, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM gl_entry_items WHERE entry_id=$1 ORDER BY line_no ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.LineNo, &l.AccountID, &l.Debit, &l.Credit, &l.CurrencyCode, &l.ExchangeRate, &l.CostCenterID, &l.Description); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM gl_entries WHERE id=$1`, id))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.pool, id)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) ListEntries(ctx context.Context, periodID int64) ([]JournalEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM gl_entries WHERE period_id=$1 ORDER BY id ASC`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) PeriodBalance(ctx context.Context, accountID, periodID int64) (Totals, error) {
	var t Totals
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(i.debit), 0), COALESCE(SUM(i.credit), 0)
FROM gl_entry_items i
JOIN gl_entries e ON e.id = i.entry_id
WHERE i.account_id=$1 AND e.period_id=$2 AND e.posted`, accountID, periodID).Scan(&t.DebitTotal, &t.CreditTotal)
	return t, err
}

func (r *repository) TrialBalance(ctx context.Context, periodID int64) ([]AccountTotals, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.name, a.type, COALESCE(SUM(i.debit), 0), COALESCE(SUM(i.credit), 0)
FROM gl_entry_items i
JOIN gl_entries e ON e.id = i.entry_id
JOIN gl_accounts a ON a.id = i.account_id
WHERE e.period_id=$1 AND e.posted
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountTotals
	for rows.Next() {
		var t AccountTotals
		if err := rows.Scan(&t.AccountID, &t.Code, &t.Name, &t.Type, &t.DebitTotal, &t.CreditTotal); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) EntryTotals(ctx context.Context, periodID int64) ([]EntryTotals, error) {
	rows, err := r.pool.Query(ctx, `SELECT e.id, e.entry_number, COALESCE(SUM(i.debit), 0), COALESCE(SUM(i.credit), 0)
FROM gl_entries e
LEFT JOIN gl_entry_items i ON i.entry_id = e.id
WHERE e.period_id=$1 AND e.posted
GROUP BY e.id, e.entry_number
ORDER BY e.id`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EntryTotals
	for rows.Next() {
		var t EntryTotals
		if err := rows.Scan(&t.EntryID, &t.EntryNumber, &t.DebitTotal, &t.CreditTotal); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.txm.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx db.DBTX
}

func (r *txRepository) GetPeriodForShare(ctx context.Context, periodID int64) (periods.Period, error) {
	return periods.ScanPeriod(r.tx.QueryRow(ctx, `SELECT `+periods.SelectColumns()+` FROM gl_periods WHERE id=$1 FOR SHARE`, periodID))
}

func (r *txRepository) GetAccountsForShare(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	unique := uniqueIDs(ids)
	rows, err := r.tx.Query(ctx, `SELECT id, code, name, type, parent_id, normal_side, is_active, currency, created_at, updated_at
FROM gl_accounts WHERE id = ANY($1) ORDER BY id FOR SHARE`, unique)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]accounts.Account, len(unique))
	for rows.Next() {
		var a accounts.Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.NormalSide, &a.IsActive, &a.Currency, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	inserted, err := scanEntry(r.tx.QueryRow(ctx, `INSERT INTO gl_entries (entry_number, entry_date, posting_date, document_type, document_number, period_id, posted, reverses_entry_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,TRUE,$7,$8) RETURNING `+entryColumns,
		entry.EntryNumber, entry.EntryDate, entry.PostingDate, entry.DocumentType, entry.DocumentNumber, entry.PeriodID, entry.ReversesEntryID, nullInt(entry.CreatedBy)))
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, "uq_gl_entries_number"):
			return JournalEntry{}, shared.ErrDuplicateEntryNumber
		case db.IsUniqueViolation(err, "uq_gl_entries_reverses"):
			return JournalEntry{}, shared.ErrAlreadyReversed
		}
		return JournalEntry{}, err
	}
	return inserted, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO gl_entry_items (entry_id, line_no, account_id, debit, credit, currency_code, exchange_rate, cost_center_id, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, entryID, line.LineNo, line.AccountID, line.Debit, line.Credit, line.CurrencyCode, line.ExchangeRate, line.CostCenterID, line.Description); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM gl_entries WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.tx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) MarkReversed(ctx context.Context, id, reversalID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE gl_entries SET reversed=TRUE, reversal_entry_id=$2 WHERE id=$1 AND posted AND NOT reversed`, id, reversalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAlreadyReversed
	}
	return nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
