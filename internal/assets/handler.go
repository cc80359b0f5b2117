package assets

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	binder  *httpx.Binder
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, binder: httpx.NewBinder()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Get("/{id}/depreciations", h.depreciations)
	r.Post("/{id}/dispose", h.dispose)
}

type createRequest struct {
	Code                string          `json:"code" validate:"required,max=40"`
	Name                string          `json:"name" validate:"required,max=120"`
	AcquisitionCost     decimal.Decimal `json:"acquisition_cost"`
	SalvageValue        decimal.Decimal `json:"salvage_value"`
	MonthlyDepreciation decimal.Decimal `json:"monthly_depreciation"`
	UsefulLifeMonths    int             `json:"useful_life_months" validate:"gte=0,lte=1200"`
	ActorID             int64           `json:"actor_id"`
}

type assetResponse struct {
	ID                       int64           `json:"id"`
	Code                     string          `json:"code"`
	Name                     string          `json:"name"`
	AcquisitionCost          decimal.Decimal `json:"acquisition_cost"`
	SalvageValue             decimal.Decimal `json:"salvage_value"`
	AccumulatedDepreciation  decimal.Decimal `json:"accumulated_depreciation"`
	BookValue                decimal.Decimal `json:"book_value"`
	MonthlyDepreciation      decimal.Decimal `json:"monthly_depreciation"`
	LastDepreciationPeriodID *int64          `json:"last_depreciation_period_id"`
	Status                   string          `json:"status"`
}

func toResponse(a Asset) assetResponse {
	return assetResponse{
		ID:                       a.ID,
		Code:                     a.Code,
		Name:                     a.Name,
		AcquisitionCost:          a.AcquisitionCost,
		SalvageValue:             a.SalvageValue,
		AccumulatedDepreciation:  a.AccumulatedDepreciation,
		BookValue:                a.BookValue(),
		MonthlyDepreciation:      a.MonthlyDepreciation,
		LastDepreciationPeriodID: a.LastDepreciationPeriodID,
		Status:                   string(a.Status),
	}
}

type depreciationResponse struct {
	PeriodID int64           `json:"period_id"`
	Amount   decimal.Decimal `json:"amount"`
	EntryID  int64           `json:"entry_id"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), Status(r.URL.Query().Get("status")))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]assetResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	a, err := h.service.Create(r.Context(), CreateInput{
		Code:                req.Code,
		Name:                req.Name,
		AcquisitionCost:     req.AcquisitionCost,
		SalvageValue:        req.SalvageValue,
		MonthlyDepreciation: req.MonthlyDepreciation,
		UsefulLifeMonths:    req.UsefulLifeMonths,
		ActorID:             req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(a))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(a))
}

func (h *Handler) depreciations(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	deps, err := h.service.Depreciations(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]depreciationResponse, 0, len(deps))
	for _, d := range deps {
		out = append(out, depreciationResponse{PeriodID: d.PeriodID, Amount: d.Amount, EntryID: d.EntryID})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) dispose(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req struct {
		ActorID int64 `json:"actor_id"`
	}
	if !h.binder.Bind(w, r, &req) {
		return
	}
	a, err := h.service.Dispose(r.Context(), id, req.ActorID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(a))
}
