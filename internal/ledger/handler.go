package ledger

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes ledger operations over HTTP.
type Handler struct {
	logger *slog.Logger
	coord  *Coordinator
	binder *httpx.Binder
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, coord *Coordinator) *Handler {
	return &Handler{logger: logger, coord: coord, binder: httpx.NewBinder()}
}

// MountRoutes registers operation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts", h.receive)
	r.Post("/issues", h.issue)
	r.Post("/transfers", h.transfer)
	r.Post("/adjustments", h.adjust)
	r.Post("/supplier-payments", h.settle)
	r.Post("/depreciations", h.depreciate)
	r.Post("/reversals", h.reverse)
	r.Post("/supplier-payments/{paymentID}/reversal", h.reversePayment)
	r.Post("/depreciations/{assetID}/{periodID}/reversal", h.reverseDepreciation)
}

type lineRequest struct {
	MaterialID int64           `json:"material_id" validate:"required,gt=0"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	UnitID     *int64          `json:"unit_id" validate:"omitempty,gt=0"`
}

type stockRequest struct {
	ReferenceNo string        `json:"reference_no" validate:"required,max=60"`
	LocationID  int64         `json:"location_id" validate:"required,gt=0"`
	Date        httpx.Date    `json:"date"`
	PeriodID    int64         `json:"period_id" validate:"gte=0"`
	Operator    string        `json:"operator" validate:"max=80"`
	Remark      string        `json:"remark" validate:"max=255"`
	ActorID     int64         `json:"actor_id"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type transferRequest struct {
	ReferenceNo    string        `json:"reference_no" validate:"required,max=60"`
	FromLocationID int64         `json:"from_location_id" validate:"required,gt=0"`
	ToLocationID   int64         `json:"to_location_id" validate:"required,gt=0,nefield=FromLocationID"`
	Operator       string        `json:"operator" validate:"max=80"`
	Remark         string        `json:"remark" validate:"max=255"`
	ActorID        int64         `json:"actor_id"`
	Lines          []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type adjustRequest struct {
	ReferenceNo string          `json:"reference_no" validate:"required,max=60"`
	MaterialID  int64           `json:"material_id" validate:"required,gt=0"`
	LocationID  int64           `json:"location_id" validate:"required,gt=0"`
	Delta       decimal.Decimal `json:"delta"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Date        httpx.Date      `json:"date"`
	PeriodID    int64           `json:"period_id" validate:"gte=0"`
	Operator    string          `json:"operator" validate:"max=80"`
	Remark      string          `json:"remark" validate:"max=255"`
	ActorID     int64           `json:"actor_id"`
}

type settleRequest struct {
	InvoiceID int64           `json:"invoice_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    httpx.Date      `json:"paid_at"`
	PeriodID  int64           `json:"period_id" validate:"gte=0"`
	Reference string          `json:"reference" validate:"required,max=60"`
	ActorID   int64           `json:"actor_id"`
}

type depreciationRequest struct {
	AssetID     int64           `json:"asset_id" validate:"required,gt=0"`
	PeriodID    int64           `json:"period_id" validate:"gte=0"`
	Amount      decimal.Decimal `json:"amount"`
	PostingDate httpx.Date      `json:"posting_date"`
	EntryNumber string          `json:"entry_number" validate:"max=60"`
	ActorID     int64           `json:"actor_id"`
}

type reverseRequest struct {
	EntryID     int64      `json:"entry_id" validate:"required,gt=0"`
	EntryNumber string     `json:"entry_number" validate:"max=60"`
	PostingDate httpx.Date `json:"posting_date"`
	PeriodID    int64      `json:"period_id" validate:"gte=0"`
	ActorID     int64      `json:"actor_id"`
}

type documentReversalRequest struct {
	EntryNumber string     `json:"entry_number" validate:"max=60"`
	PostingDate httpx.Date `json:"posting_date"`
	PeriodID    int64      `json:"period_id" validate:"gte=0"`
	ActorID     int64      `json:"actor_id"`
}

func toLines(in []lineRequest) []StockLine {
	out := make([]StockLine, 0, len(in))
	for _, l := range in {
		out = append(out, StockLine{MaterialID: l.MaterialID, Quantity: l.Quantity, UnitCost: l.UnitCost, UnitID: l.UnitID})
	}
	return out
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	res, err := h.coord.ReceiveGoods(r.Context(), req.input())
	h.respond(w, res, err)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	res, err := h.coord.IssueGoods(r.Context(), req.input())
	h.respond(w, res, err)
}

func (req stockRequest) input() StockInput {
	return StockInput{
		ReferenceNo: req.ReferenceNo,
		LocationID:  req.LocationID,
		Date:        req.Date.Time,
		PeriodID:    req.PeriodID,
		Operator:    req.Operator,
		Remark:      req.Remark,
		ActorID:     req.ActorID,
		Lines:       toLines(req.Lines),
	}
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	res, err := h.coord.TransferStock(r.Context(), TransferInput{
		ReferenceNo:    req.ReferenceNo,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		Operator:       req.Operator,
		Remark:         req.Remark,
		ActorID:        req.ActorID,
		Lines:          toLines(req.Lines),
	})
	h.respond(w, res, err)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	res, err := h.coord.AdjustStock(r.Context(), AdjustInput{
		ReferenceNo: req.ReferenceNo,
		MaterialID:  req.MaterialID,
		LocationID:  req.LocationID,
		Delta:       req.Delta,
		UnitCost:    req.UnitCost,
		Date:        req.Date.Time,
		PeriodID:    req.PeriodID,
		Operator:    req.Operator,
		Remark:      req.Remark,
		ActorID:     req.ActorID,
	})
	h.respond(w, res, err)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	res, err := h.coord.SettleSupplierPayment(r.Context(), SettlePaymentInput{
		InvoiceID: req.InvoiceID,
		Amount:    req.Amount,
		PaidAt:    req.PaidAt.Time,
		PeriodID:  req.PeriodID,
		Reference: req.Reference,
		ActorID:   req.ActorID,
	})
	h.respond(w, res, err)
}

func (h *Handler) depreciate(w http.ResponseWriter, r *http.Request) {
	var req depreciationRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	res, err := h.coord.PostDepreciation(r.Context(), DepreciationInput{
		AssetID:     req.AssetID,
		PeriodID:    req.PeriodID,
		Amount:      req.Amount,
		PostingDate: req.PostingDate.Time,
		EntryNumber: req.EntryNumber,
		ActorID:     req.ActorID,
	})
	h.respond(w, res, err)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	res, err := h.coord.ReverseEntry(r.Context(), ReverseInput{
		EntryID:     req.EntryID,
		EntryNumber: req.EntryNumber,
		PostingDate: req.PostingDate.Time,
		PeriodID:    req.PeriodID,
		ActorID:     req.ActorID,
	})
	h.respond(w, res, err)
}

func (h *Handler) reversePayment(w http.ResponseWriter, r *http.Request) {
	paymentID, err := httpx.PathInt64(r, "paymentID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req documentReversalRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	res, err := h.coord.ReversePayment(r.Context(), ReversePaymentInput{
		PaymentID:   paymentID,
		EntryNumber: req.EntryNumber,
		PostingDate: req.PostingDate.Time,
		PeriodID:    req.PeriodID,
		ActorID:     req.ActorID,
	})
	h.respond(w, res, err)
}

func (h *Handler) reverseDepreciation(w http.ResponseWriter, r *http.Request) {
	assetID, err := httpx.PathInt64(r, "assetID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	periodID, err := httpx.PathInt64(r, "periodID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req documentReversalRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	res, err := h.coord.ReverseDepreciation(r.Context(), ReverseDepreciationInput{
		AssetID:          assetID,
		PeriodID:         periodID,
		EntryNumber:      req.EntryNumber,
		PostingDate:      req.PostingDate.Time,
		ReversalPeriodID: req.PeriodID,
		ActorID:          req.ActorID,
	})
	h.respond(w, res, err)
}

type movementResponse struct {
	ID            int64           `json:"id"`
	MaterialID    int64           `json:"material_id"`
	LocationID    int64           `json:"location_id"`
	Type          string          `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	AfterQuantity decimal.Decimal `json:"after_quantity"`
}

type entryResponse struct {
	ID          int64           `json:"id"`
	EntryNumber string          `json:"entry_number"`
	PeriodID    int64           `json:"period_id"`
	PostingDate httpx.Date      `json:"posting_date"`
	Amount      decimal.Decimal `json:"amount"`
}

type invoiceResponse struct {
	ID          int64           `json:"id"`
	Number      string          `json:"number"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Status      string          `json:"status"`
	PaymentID   int64           `json:"payment_id"`
}

type assetResponse struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Charged     decimal.Decimal `json:"charged"`
	Accumulated decimal.Decimal `json:"accumulated"`
	BookValue   decimal.Decimal `json:"book_value"`
	Status      string          `json:"status"`
}

type eventResponse struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type resultResponse struct {
	Operation string             `json:"operation"`
	Movements []movementResponse `json:"movements,omitempty"`
	Entry     *entryResponse     `json:"entry,omitempty"`
	Invoice   *invoiceResponse   `json:"invoice,omitempty"`
	Asset     *assetResponse     `json:"asset,omitempty"`
	Events    []eventResponse    `json:"events"`
}

func toResultResponse(res Result) resultResponse {
	out := resultResponse{Operation: res.Operation, Events: make([]eventResponse, 0, len(res.Events))}
	for _, m := range res.Movements {
		out.Movements = append(out.Movements, movementResponse{
			ID:            m.ID,
			MaterialID:    m.MaterialID,
			LocationID:    m.LocationID,
			Type:          string(m.Type),
			Quantity:      m.Quantity,
			AfterQuantity: m.AfterQuantity,
		})
	}
	if e := res.Entry; e != nil {
		out.Entry = &entryResponse{
			ID:          e.ID,
			EntryNumber: e.EntryNumber,
			PeriodID:    e.PeriodID,
			PostingDate: httpx.Date{Time: e.PostingDate},
			Amount:      journals.LineTotals(e.Lines).DebitTotal,
		}
	}
	if inv := res.Invoice; inv != nil {
		out.Invoice = &invoiceResponse{
			ID:          inv.ID,
			Number:      inv.Number,
			PaidAmount:  inv.PaidAmount,
			Outstanding: inv.Outstanding(),
			Status:      string(inv.Status),
		}
		if res.Payment != nil {
			out.Invoice.PaymentID = res.Payment.ID
		}
	}
	if a := res.Asset; a != nil {
		out.Asset = &assetResponse{
			ID:          a.ID,
			Code:        a.Code,
			Accumulated: a.AccumulatedDepreciation,
			BookValue:   a.BookValue(),
			Status:      string(a.Status),
		}
		if res.Charge != nil {
			out.Asset.Charged = res.Charge.Amount
		}
	}
	for _, e := range res.Events {
		out.Events = append(out.Events, eventResponse{ID: e.ID.String(), Type: e.Type})
	}
	return out
}

func (h *Handler) respond(w http.ResponseWriter, res Result, err error) {
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResultResponse(res))
}
