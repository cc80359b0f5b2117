package journals

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler exposes the journal engine over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
	binder  *httpx.Binder
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, binder: httpx.NewBinder()}
}

type lineRequest struct {
	AccountID    int64           `json:"account_id" validate:"required,gt=0"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	CurrencyCode string          `json:"currency_code" validate:"omitempty,len=3"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	CostCenterID *int64          `json:"cost_center_id" validate:"omitempty,gt=0"`
	Description  string          `json:"description" validate:"max=255"`
}

type postRequest struct {
	EntryNumber    string        `json:"entry_number" validate:"required,max=40"`
	EntryDate      httpx.Date    `json:"entry_date"`
	PostingDate    httpx.Date    `json:"posting_date"`
	DocumentType   string        `json:"document_type" validate:"max=40"`
	DocumentNumber *string       `json:"document_number" validate:"omitempty,max=60"`
	PeriodID       int64         `json:"period_id" validate:"required,gt=0"`
	CreatedBy      int64         `json:"created_by"`
	Lines          []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type reverseRequest struct {
	EntryNumber string     `json:"entry_number" validate:"required,max=40"`
	EntryDate   httpx.Date `json:"entry_date"`
	PostingDate httpx.Date `json:"posting_date"`
	PeriodID    int64      `json:"period_id" validate:"required,gt=0"`
	CreatedBy   int64      `json:"created_by"`
}

type lineResponse struct {
	LineNo       int             `json:"line_no"`
	AccountID    int64           `json:"account_id"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	CurrencyCode string          `json:"currency_code"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	CostCenterID *int64          `json:"cost_center_id,omitempty"`
	Description  string          `json:"description,omitempty"`
}

type entryResponse struct {
	ID              int64          `json:"id"`
	EntryNumber     string         `json:"entry_number"`
	EntryDate       httpx.Date     `json:"entry_date"`
	PostingDate     httpx.Date     `json:"posting_date"`
	DocumentType    string         `json:"document_type,omitempty"`
	DocumentNumber  *string        `json:"document_number,omitempty"`
	PeriodID        int64          `json:"period_id"`
	Posted          bool           `json:"posted"`
	Reversed        bool           `json:"reversed"`
	ReversalEntryID *int64         `json:"reversal_entry_id,omitempty"`
	ReversesEntryID *int64         `json:"reverses_entry_id,omitempty"`
	Lines           []lineResponse `json:"lines,omitempty"`
}

func toResponse(e JournalEntry) entryResponse {
	out := entryResponse{
		ID:              e.ID,
		EntryNumber:     e.EntryNumber,
		EntryDate:       httpx.Date{Time: e.EntryDate},
		PostingDate:     httpx.Date{Time: e.PostingDate},
		DocumentType:    e.DocumentType,
		DocumentNumber:  e.DocumentNumber,
		PeriodID:        e.PeriodID,
		Posted:          e.Posted,
		Reversed:        e.Reversed,
		ReversalEntryID: e.ReversalEntryID,
		ReversesEntryID: e.ReversesEntryID,
	}
	for _, l := range e.Lines {
		out.Lines = append(out.Lines, lineResponse{
			LineNo:       l.LineNo,
			AccountID:    l.AccountID,
			Debit:        l.Debit,
			Credit:       l.Credit,
			CurrencyCode: l.CurrencyCode,
			ExchangeRate: l.ExchangeRate,
			CostCenterID: l.CostCenterID,
			Description:  l.Description,
		})
	}
	return out
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	periodID, err := httpx.QueryInt64(r, "period_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if periodID == nil {
		httpx.RespondError(w, h.logger, fmt.Errorf("%w: period_id required", internalShared.ErrInvalidArgument))
		return
	}
	entries, err := h.service.ListEntries(r.Context(), *periodID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(entry))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	input := PostingInput{
		EntryNumber:    req.EntryNumber,
		EntryDate:      req.EntryDate.Time,
		PostingDate:    req.PostingDate.Time,
		DocumentType:   req.DocumentType,
		DocumentNumber: req.DocumentNumber,
		PeriodID:       req.PeriodID,
		CreatedBy:      req.CreatedBy,
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, PostingLineInput{
			AccountID:    l.AccountID,
			Debit:        l.Debit,
			Credit:       l.Credit,
			CurrencyCode: l.CurrencyCode,
			ExchangeRate: l.ExchangeRate,
			CostCenterID: l.CostCenterID,
			Description:  l.Description,
		})
	}
	entry, err := h.service.PostEntry(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(entry))
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req reverseRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	reversal, err := h.service.ReverseEntry(r.Context(), ReverseInput{
		OriginalID:  id,
		EntryNumber: req.EntryNumber,
		EntryDate:   req.EntryDate.Time,
		PostingDate: req.PostingDate.Time,
		PeriodID:    req.PeriodID,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(reversal))
}

type balanceResponse struct {
	AccountID   int64           `json:"account_id"`
	PeriodID    int64           `json:"period_id"`
	DebitTotal  decimal.Decimal `json:"debit_total"`
	CreditTotal decimal.Decimal `json:"credit_total"`
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID, err := httpx.QueryInt64(r, "account_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	periodID, err := httpx.QueryInt64(r, "period_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if accountID == nil || periodID == nil {
		httpx.RespondError(w, h.logger, fmt.Errorf("%w: account_id and period_id required", internalShared.ErrInvalidArgument))
		return
	}
	totals, err := h.service.PeriodBalance(r.Context(), *accountID, *periodID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{
		AccountID:   *accountID,
		PeriodID:    *periodID,
		DebitTotal:  totals.DebitTotal,
		CreditTotal: totals.CreditTotal,
	})
}
