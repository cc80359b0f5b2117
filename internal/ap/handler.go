package ap

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler manages AP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	binder  *httpx.Binder
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, binder: httpx.NewBinder()}
}

// MountRoutes registers AP routes. Payments are settled through the ledger
// operations endpoint so the journal entry commits with them.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.listInvoices)
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Get("/invoices/{id}/payments", h.listPayments)
	r.Post("/invoices/{id}/void", h.voidInvoice)
	r.Get("/aging", h.aging)
}

type createInvoiceRequest struct {
	Number     string          `json:"number" validate:"required,max=60"`
	SupplierID int64           `json:"supplier_id" validate:"required,gt=0"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency" validate:"omitempty,len=3"`
	DueAt      httpx.Date      `json:"due_at"`
	ActorID    int64           `json:"actor_id"`
}

type actorRequest struct {
	ActorID int64 `json:"actor_id"`
}

type invoiceResponse struct {
	ID          int64           `json:"id"`
	Number      string          `json:"number"`
	SupplierID  int64           `json:"supplier_id"`
	Total       decimal.Decimal `json:"total"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Currency    string          `json:"currency"`
	DueAt       httpx.Date      `json:"due_at"`
	Status      string          `json:"status"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	return invoiceResponse{
		ID:          inv.ID,
		Number:      inv.Number,
		SupplierID:  inv.SupplierID,
		Total:       inv.Total,
		PaidAmount:  inv.PaidAmount,
		Outstanding: inv.Outstanding(),
		Currency:    inv.Currency,
		DueAt:       httpx.Date{Time: inv.DueAt},
		Status:      string(inv.Status),
	}
}

type paymentResponse struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    httpx.Date      `json:"paid_at"`
	Reference string          `json:"reference,omitempty"`
	EntryID   int64           `json:"entry_id"`
	Reversal  *int64          `json:"reversal_entry_id,omitempty"`
}

func toPaymentResponse(p Payment) paymentResponse {
	return paymentResponse{
		ID:        p.ID,
		InvoiceID: p.InvoiceID,
		Amount:    p.Amount,
		PaidAt:    httpx.Date{Time: p.PaidAt},
		Reference: p.Reference,
		EntryID:   p.EntryID,
		Reversal:  p.ReversalEntryID,
	}
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.ListInvoices(r.Context(), InvoiceStatus(r.URL.Query().Get("status")))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), CreateInvoiceInput{
		Number:     req.Number,
		SupplierID: req.SupplierID,
		Total:      req.Total,
		Currency:   req.Currency,
		DueAt:      req.DueAt.Time,
		ActorID:    req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req actorRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	inv, err := h.service.VoidInvoice(r.Context(), id, req.ActorID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.QueryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	bucket, err := h.service.Aging(r.Context(), asOf)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]decimal.Decimal{
		"current": bucket.Current,
		"1_30":    bucket.Bucket30,
		"31_60":   bucket.Bucket60,
		"61_90":   bucket.Bucket90,
		"over_90": bucket.Bucket120,
		"total":   bucket.Total(),
	})
}
