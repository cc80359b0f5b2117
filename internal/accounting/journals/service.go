package journals

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Observer is notified after a posting or reversal commits.
type Observer interface {
	EntryPosted(ctx context.Context, entry JournalEntry)
}

// Service is the journal engine. Balance, period and account checks all run
// here so no caller can bypass them.
type Service struct {
	repo      Repository
	audit     AuditPort
	logger    *slog.Logger
	observers []Observer
	owned     map[string]struct{}
	now       func() time.Time
}

func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, owned: make(map[string]struct{}), now: time.Now}
}

// OwnDocumentTypes marks entries of the given document types as owned by
// another module. Plain reversals of such entries are rejected. Call it
// during wiring, before the service is shared.
func (s *Service) OwnDocumentTypes(types ...string) {
	for _, t := range types {
		s.owned[t] = struct{}{}
	}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Observe registers an observer for committed entries.
func (s *Service) Observe(o Observer) {
	s.observers = append(s.observers, o)
}

func (s *Service) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

func (s *Service) ListEntries(ctx context.Context, periodID int64) ([]JournalEntry, error) {
	return s.repo.ListEntries(ctx, periodID)
}

// PeriodBalance aggregates posted lines of an account within a period.
func (s *Service) PeriodBalance(ctx context.Context, accountID, periodID int64) (Totals, error) {
	if accountID == 0 || periodID == 0 {
		return Totals{}, fmt.Errorf("%w: account and period required", internalShared.ErrInvalidArgument)
	}
	return s.repo.PeriodBalance(ctx, accountID, periodID)
}

func (s *Service) TrialBalance(ctx context.Context, periodID int64) ([]AccountTotals, error) {
	return s.repo.TrialBalance(ctx, periodID)
}

func (s *Service) EntryTotals(ctx context.Context, periodID int64) ([]EntryTotals, error) {
	return s.repo.EntryTotals(ctx, periodID)
}

// PostEntry validates and posts a balanced entry in its own transaction.
func (s *Service) PostEntry(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.PostEntryTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.Committed(ctx, "journal.post", input.CreatedBy, entry)
	return entry, nil
}

// PostEntryTx posts inside a transaction owned by the caller. The input is
// validated again so composed operations get the same guarantees.
func (s *Service) PostEntryTx(ctx context.Context, tx TxRepository, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	period, err := tx.GetPeriodForShare(ctx, input.PeriodID)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := requireOpen(period, input.PostingDate); err != nil {
		return JournalEntry{}, err
	}
	ids := make([]int64, 0, len(input.Lines))
	for _, l := range input.Lines {
		ids = append(ids, l.AccountID)
	}
	accts, err := tx.GetAccountsForShare(ctx, ids)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := accounts.RequirePostable(accts, ids); err != nil {
		return JournalEntry{}, err
	}
	lines := make([]JournalLine, 0, len(input.Lines))
	for idx, l := range input.Lines {
		lines = append(lines, toLine(idx+1, l, accts[l.AccountID]))
	}
	return s.insert(ctx, tx, JournalEntry{
		EntryNumber:    input.EntryNumber,
		EntryDate:      input.EntryDate,
		PostingDate:    input.PostingDate,
		DocumentType:   input.DocumentType,
		DocumentNumber: input.DocumentNumber,
		PeriodID:       input.PeriodID,
		CreatedBy:      input.CreatedBy,
	}, lines)
}

// ReverseEntry creates the mirror of a posted entry and flags the original.
func (s *Service) ReverseEntry(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reversal, err = s.ReverseEntryTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.Committed(ctx, "journal.reverse", input.CreatedBy, reversal)
	return reversal, nil
}

// ReverseEntryTx reverses inside a transaction owned by the caller. The
// original may sit in a closed period; the reversal's own period must be open.
func (s *Service) ReverseEntryTx(ctx context.Context, tx TxRepository, input ReverseInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	original, err := tx.GetEntryForUpdate(ctx, input.OriginalID)
	if err != nil {
		return JournalEntry{}, err
	}
	if !original.Posted {
		return JournalEntry{}, shared.ErrNotPosted
	}
	if original.Reversed {
		return JournalEntry{}, shared.ErrAlreadyReversed
	}
	if _, owned := s.owned[original.DocumentType]; owned && !input.Compensated {
		return JournalEntry{}, fmt.Errorf("%w: %s %s", shared.ErrDocumentOwned, original.DocumentType, original.EntryNumber)
	}
	period, err := tx.GetPeriodForShare(ctx, input.PeriodID)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := requireOpen(period, input.PostingDate); err != nil {
		return JournalEntry{}, err
	}
	docNumber := original.EntryNumber
	reversal, err := s.insert(ctx, tx, JournalEntry{
		EntryNumber:     input.EntryNumber,
		EntryDate:       input.EntryDate,
		PostingDate:     input.PostingDate,
		DocumentType:    "REVERSAL",
		DocumentNumber:  &docNumber,
		PeriodID:        input.PeriodID,
		ReversesEntryID: &original.ID,
		CreatedBy:       input.CreatedBy,
	}, reverseLines(original.Lines))
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.MarkReversed(ctx, original.ID, reversal.ID); err != nil {
		return JournalEntry{}, err
	}
	return reversal, nil
}

// Committed records audit and notifies observers for an entry whose
// transaction has committed. Composed operations call it after their own commit.
func (s *Service) Committed(ctx context.Context, action string, actorID int64, entry JournalEntry) {
	if s.audit != nil {
		meta := map[string]any{"number": entry.EntryNumber, "period_id": entry.PeriodID}
		if entry.ReversesEntryID != nil {
			meta["reverses"] = *entry.ReversesEntryID
		}
		if err := s.audit.Record(ctx, internalShared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta:     meta,
			At:       s.now(),
		}); err != nil {
			s.logger.Warn("journal audit failed", slog.Int64("entry_id", entry.ID), slog.Any("error", err))
		}
	}
	for _, o := range s.observers {
		o.EntryPosted(ctx, entry)
	}
}

func (s *Service) insert(ctx context.Context, tx TxRepository, header JournalEntry, lines []JournalLine) (JournalEntry, error) {
	if totals := LineTotals(lines); !totals.Balanced() {
		return JournalEntry{}, &shared.UnbalancedEntryError{DebitTotal: totals.DebitTotal, CreditTotal: totals.CreditTotal}
	}
	entry, err := tx.InsertEntry(ctx, header)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertLines(ctx, entry.ID, lines); err != nil {
		return JournalEntry{}, err
	}
	for i := range lines {
		lines[i].EntryID = entry.ID
	}
	entry.Lines = lines
	return entry, nil
}

func requireOpen(period periods.Period, postingDate time.Time) error {
	if period.IsClosed() {
		return &shared.PeriodClosedError{PeriodID: period.ID, Label: period.Label}
	}
	if !period.Contains(postingDate) {
		return fmt.Errorf("%w: %s not in %s", shared.ErrDateOutOfRange, postingDate.Format("2006-01-02"), period.Label)
	}
	return nil
}

func toLine(lineNo int, in PostingLineInput, acct accounts.Account) JournalLine {
	currency := in.CurrencyCode
	if currency == "" {
		currency = acct.Currency
	}
	return JournalLine{
		LineNo:       lineNo,
		AccountID:    in.AccountID,
		Debit:        in.Debit,
		Credit:       in.Credit,
		CurrencyCode: currency,
		ExchangeRate: in.ExchangeRate,
		CostCenterID: in.CostCenterID,
		Description:  in.Description,
	}
}

func reverseLines(lines []JournalLine) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, JournalLine{
			LineNo:       l.LineNo,
			AccountID:    l.AccountID,
			Debit:        l.Credit,
			Credit:       l.Debit,
			CurrencyCode: l.CurrencyCode,
			ExchangeRate: l.ExchangeRate,
			CostCenterID: l.CostCenterID,
			Description:  l.Description,
		})
	}
	return out
}
