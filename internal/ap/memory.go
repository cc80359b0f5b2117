package ap

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// MemoryStore is an in-process Repository and TxRepository.
type MemoryStore struct {
	mu       sync.RWMutex
	tr       *db.MemoryTransactor
	invoices map[int64]Invoice
	payments []Payment
	nextID   int64
	nextPay  int64
	now      func() time.Time
}

// NewMemoryStore builds a store joined to tr. A nil tr gets a private transactor.
func NewMemoryStore(tr *db.MemoryTransactor) *MemoryStore {
	if tr == nil {
		tr = db.NewMemoryTransactor()
	}
	s := &MemoryStore{tr: tr, invoices: make(map[int64]Invoice), now: time.Now}
	tr.Join(s)
	return s
}

// Snapshot implements db.Snapshotter.
func (s *MemoryStore) Snapshot() func() {
	s.mu.Lock()
	invoices := maps.Clone(s.invoices)
	payments := slices.Clone(s.payments)
	nextID, nextPay := s.nextID, s.nextPay
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.invoices = invoices
		s.payments = payments
		s.nextID, s.nextPay = nextID, nextPay
	}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return s.tr.WithTx(ctx, func(ctx context.Context) error {
		return fn(ctx, s)
	})
}

func (s *MemoryStore) GetInvoice(_ context.Context, id int64) (Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *MemoryStore) ListInvoices(_ context.Context, status InvoiceStatus) ([]Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Invoice
	for _, inv := range s.invoices {
		if status != "" && inv.Status != status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueAt.Equal(out[j].DueAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueAt.Before(out[j].DueAt)
	})
	return out, nil
}

func (s *MemoryStore) ListPayments(_ context.Context, invoiceID int64) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Payment
	for _, p := range s.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateInvoice(_ context.Context, input CreateInvoiceInput) (Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.Number == input.Number {
			return Invoice{}, ErrDuplicateInvoice
		}
	}
	s.nextID++
	now := s.now()
	inv := Invoice{
		ID:         s.nextID,
		Number:     input.Number,
		SupplierID: input.SupplierID,
		Total:      input.Total,
		PaidAmount: decimal.Zero,
		Currency:   input.Currency,
		DueAt:      input.DueAt,
		Status:     StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *MemoryStore) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.GetInvoice(ctx, id)
}

func (s *MemoryStore) InsertPayment(_ context.Context, p Payment) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[p.InvoiceID]; !ok {
		return Payment{}, ErrInvoiceNotFound
	}
	s.nextPay++
	p.ID = s.nextPay
	p.CreatedAt = s.now()
	s.payments = append(s.payments, p)
	return p, nil
}

func (s *MemoryStore) UpdateSettlement(_ context.Context, inv Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.invoices[inv.ID]
	if !ok {
		return ErrInvoiceNotFound
	}
	cur.PaidAmount = inv.PaidAmount
	cur.Status = inv.Status
	cur.UpdatedAt = s.now()
	s.invoices[inv.ID] = cur
	return nil
}

func (s *MemoryStore) LockPayment(_ context.Context, id int64) (Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return Payment{}, ErrPaymentNotFound
}

func (s *MemoryStore) MarkPaymentReversed(_ context.Context, id, reversalEntryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.payments {
		if p.ID != id {
			continue
		}
		if p.Reversed() {
			return ErrPaymentReversed
		}
		rid := reversalEntryID
		s.payments[i].ReversalEntryID = &rid
		return nil
	}
	return ErrPaymentNotFound
}
