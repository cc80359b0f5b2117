package journals

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// MemoryStore keeps journal entries in process. Accounts and periods are read
// from the stores it was built with, which must share the same transactor.
type MemoryStore struct {
	mu       sync.RWMutex
	tr       *db.MemoryTransactor
	accounts *accounts.MemoryStore
	periods  *periods.MemoryStore
	entries  map[int64]JournalEntry
	numbers  map[string]int64
	nextID   int64
	nextLine int64
	now      func() time.Time
}

// NewMemoryStore builds a store joined to tr. A nil tr gets a private transactor.
func NewMemoryStore(tr *db.MemoryTransactor, accts *accounts.MemoryStore, pers *periods.MemoryStore) *MemoryStore {
	if tr == nil {
		tr = db.NewMemoryTransactor()
	}
	s := &MemoryStore{
		tr:       tr,
		accounts: accts,
		periods:  pers,
		entries:  make(map[int64]JournalEntry),
		numbers:  make(map[string]int64),
		now:      time.Now,
	}
	tr.Join(s)
	return s
}

// Snapshot implements db.Snapshotter.
func (s *MemoryStore) Snapshot() func() {
	s.mu.Lock()
	entries := make(map[int64]JournalEntry, len(s.entries))
	for id, e := range s.entries {
		e.Lines = slices.Clone(e.Lines)
		entries[id] = e
	}
	numbers := maps.Clone(s.numbers)
	nextID, nextLine := s.nextID, s.nextLine
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.entries = entries
		s.numbers = numbers
		s.nextID = nextID
		s.nextLine = nextLine
	}
}

// EntryCount returns the number of stored entries.
func (s *MemoryStore) EntryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) GetEntry(_ context.Context, id int64) (JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	e.Lines = slices.Clone(e.Lines)
	return e, nil
}

func (s *MemoryStore) ListEntries(_ context.Context, periodID int64) ([]JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []JournalEntry
	for _, e := range s.entries {
		if e.PeriodID == periodID {
			e.Lines = nil
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) PeriodBalance(_ context.Context, accountID, periodID int64) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := Totals{DebitTotal: decimal.Zero, CreditTotal: decimal.Zero}
	for _, e := range s.entries {
		if e.PeriodID != periodID || !e.Posted {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == accountID {
				t.DebitTotal = t.DebitTotal.Add(l.Debit)
				t.CreditTotal = t.CreditTotal.Add(l.Credit)
			}
		}
	}
	return t, nil
}

func (s *MemoryStore) TrialBalance(_ context.Context, periodID int64) ([]AccountTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byAccount := make(map[int64]*AccountTotals)
	for _, e := range s.entries {
		if e.PeriodID != periodID || !e.Posted {
			continue
		}
		for _, l := range e.Lines {
			row, ok := byAccount[l.AccountID]
			if !ok {
				row = &AccountTotals{AccountID: l.AccountID, DebitTotal: decimal.Zero, CreditTotal: decimal.Zero}
				if a, found := s.accounts.Lookup(l.AccountID); found {
					row.Code, row.Name, row.Type = a.Code, a.Name, string(a.Type)
				}
				byAccount[l.AccountID] = row
			}
			row.DebitTotal = row.DebitTotal.Add(l.Debit)
			row.CreditTotal = row.CreditTotal.Add(l.Credit)
		}
	}
	out := make([]AccountTotals, 0, len(byAccount))
	for _, row := range byAccount {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *MemoryStore) EntryTotals(_ context.Context, periodID int64) ([]EntryTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []EntryTotals
	for _, e := range s.entries {
		if e.PeriodID != periodID || !e.Posted {
			continue
		}
		out = append(out, EntryTotals{EntryID: e.ID, EntryNumber: e.EntryNumber, Totals: LineTotals(e.Lines)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out, nil
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return s.tr.WithTx(ctx, func(ctx context.Context) error {
		return fn(ctx, s)
	})
}

func (s *MemoryStore) GetPeriodForShare(ctx context.Context, periodID int64) (periods.Period, error) {
	return s.periods.Get(ctx, periodID)
}

func (s *MemoryStore) GetAccountsForShare(_ context.Context, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range uniqueIDs(ids) {
		if a, ok := s.accounts.Lookup(id); ok {
			out[id] = a
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertEntry(_ context.Context, entry JournalEntry) (JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.numbers[entry.EntryNumber]; taken {
		return JournalEntry{}, shared.ErrDuplicateEntryNumber
	}
	if entry.ReversesEntryID != nil {
		for _, e := range s.entries {
			if e.ReversesEntryID != nil && *e.ReversesEntryID == *entry.ReversesEntryID {
				return JournalEntry{}, shared.ErrAlreadyReversed
			}
		}
	}
	s.nextID++
	entry.ID = s.nextID
	entry.Posted = true
	entry.Reversed = false
	entry.ReversalEntryID = nil
	entry.CreatedAt = s.now()
	entry.Lines = nil
	s.entries[entry.ID] = entry
	s.numbers[entry.EntryNumber] = entry.ID
	return entry, nil
}

func (s *MemoryStore) InsertLines(_ context.Context, entryID int64, lines []JournalLine) error {
	s.mu.Lock()
	e, ok := s.entries[entryID]
	if !ok {
		s.mu.Unlock()
		return shared.ErrJournalNotFound
	}
	for _, l := range lines {
		s.nextLine++
		l.ID = s.nextLine
		l.EntryID = entryID
		e.Lines = append(e.Lines, l)
	}
	s.entries[entryID] = e
	s.mu.Unlock()
	for _, l := range lines {
		s.accounts.MarkReferenced(l.AccountID)
	}
	return nil
}

func (s *MemoryStore) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	return s.GetEntry(ctx, id)
}

func (s *MemoryStore) MarkReversed(_ context.Context, id, reversalID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return shared.ErrJournalNotFound
	}
	if !e.Posted || e.Reversed {
		return shared.ErrAlreadyReversed
	}
	e.Reversed = true
	e.ReversalEntryID = &reversalID
	s.entries[id] = e
	return nil
}
