package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	binder  *httpx.Binder
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, binder: httpx.NewBinder()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handleMovement)
	r.Get("/balance", h.handleBalance)
	r.Get("/history", h.handleHistory)
	r.Post("/reservations", h.handleReserve)
	r.Post("/reservations/release", h.handleRelease)
}

type movementRequest struct {
	MaterialID    int64            `json:"material_id" validate:"required,gt=0"`
	LocationID    int64            `json:"location_id" validate:"required,gt=0"`
	Type          string           `json:"type" validate:"required"`
	Quantity      decimal.Decimal  `json:"quantity"`
	UnitCost      *decimal.Decimal `json:"unit_cost"`
	UnitID        *int64           `json:"unit_id" validate:"omitempty,gt=0"`
	ReferenceNo   string           `json:"reference_no" validate:"max=60"`
	ReferenceType string           `json:"reference_type" validate:"max=40"`
	Operator      string           `json:"operator" validate:"max=80"`
	Remark        string           `json:"remark" validate:"max=255"`
}

type reservationRequest struct {
	MaterialID int64           `json:"material_id" validate:"required,gt=0"`
	LocationID int64           `json:"location_id" validate:"required,gt=0"`
	Quantity   decimal.Decimal `json:"quantity"`
	Operator   string          `json:"operator" validate:"max=80"`
}

type transactionResponse struct {
	ID             int64           `json:"id"`
	MaterialID     int64           `json:"material_id"`
	LocationID     int64           `json:"location_id"`
	Type           string          `json:"type"`
	Quantity       decimal.Decimal `json:"quantity"`
	BeforeQuantity decimal.Decimal `json:"before_quantity"`
	AfterQuantity  decimal.Decimal `json:"after_quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	ReferenceNo    string          `json:"reference_no,omitempty"`
	ReferenceType  string          `json:"reference_type,omitempty"`
	Operator       string          `json:"operator,omitempty"`
	Remark         string          `json:"remark,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func toTransactionResponse(t Transaction) transactionResponse {
	return transactionResponse{
		ID:             t.ID,
		MaterialID:     t.MaterialID,
		LocationID:     t.LocationID,
		Type:           string(t.Type),
		Quantity:       t.Quantity,
		BeforeQuantity: t.BeforeQuantity,
		AfterQuantity:  t.AfterQuantity,
		UnitCost:       t.UnitCost,
		ReferenceNo:    t.ReferenceNo,
		ReferenceType:  t.ReferenceType,
		Operator:       t.Operator,
		Remark:         t.Remark,
		OccurredAt:     t.OccurredAt,
	}
}

type balanceResponse struct {
	MaterialID int64           `json:"material_id"`
	LocationID int64           `json:"location_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Reserved   decimal.Decimal `json:"reserved"`
	Available  decimal.Decimal `json:"available"`
	AvgCost    decimal.Decimal `json:"avg_cost"`
}

type historyResponse struct {
	Items      []transactionResponse `json:"items"`
	NextCursor *int64                `json:"next_cursor"`
}

func toBalanceResponse(b Balance) balanceResponse {
	return balanceResponse{
		MaterialID: b.MaterialID,
		LocationID: b.LocationID,
		Quantity:   b.Quantity,
		Reserved:   b.Reserved,
		Available:  b.Available(),
		AvgCost:    b.AvgCost,
	}
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	rec, err := h.service.RecordMovement(r.Context(), MovementInput{
		MaterialID: req.MaterialID,
		LocationID: req.LocationID,
		Type:       MovementType(req.Type),
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
		Provenance: Provenance{
			ReferenceNo:   req.ReferenceNo,
			ReferenceType: req.ReferenceType,
			Operator:      req.Operator,
			Remark:        req.Remark,
			UnitID:        req.UnitID,
		},
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(rec))
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	materialID, locationID, err := keyFromQuery(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if locationID == nil {
		httpx.RespondError(w, h.logger, fmt.Errorf("%w: location_id required", shared.ErrInvalidArgument))
		return
	}
	bal, err := h.service.Balance(r.Context(), materialID, *locationID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBalanceResponse(bal))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	materialID, locationID, err := keyFromQuery(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	filter := HistoryFilter{MaterialID: materialID, LocationID: locationID}
	q := r.URL.Query()
	if filter.From, err = httpx.QueryDate(r, "from"); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if filter.To, err = httpx.QueryDate(r, "to"); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.AddDate(0, 0, 1)
	}
	limit := HistoryPageSize
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 || limit >= maxHistoryLimit {
			httpx.RespondError(w, h.logger, fmt.Errorf("%w: invalid limit", shared.ErrInvalidArgument))
			return
		}
	}
	if raw := q.Get("cursor"); raw != "" {
		if filter.AfterID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			httpx.RespondError(w, h.logger, fmt.Errorf("%w: invalid cursor", shared.ErrInvalidArgument))
			return
		}
	}
	// One extra row tells whether another page follows.
	filter.Limit = limit + 1
	records, err := h.service.History(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	resp := historyResponse{Items: make([]transactionResponse, 0, len(records))}
	if len(records) > limit {
		records = records[:limit]
		next := records[limit-1].ID
		resp.NextCursor = &next
	}
	for _, rec := range records {
		resp.Items = append(resp.Items, toTransactionResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Reserve)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Release)
}

func (h *Handler) handleReservation(w http.ResponseWriter, r *http.Request, apply func(context.Context, ReservationInput) (Balance, error)) {
	var req reservationRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	bal, err := apply(r.Context(), ReservationInput{
		MaterialID: req.MaterialID,
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		Operator:   req.Operator,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBalanceResponse(bal))
}

func keyFromQuery(r *http.Request) (int64, *int64, error) {
	materialID, err := httpx.QueryInt64(r, "material_id")
	if err != nil {
		return 0, nil, err
	}
	if materialID == nil {
		return 0, nil, fmt.Errorf("%w: material_id required", shared.ErrInvalidArgument)
	}
	locationID, err := httpx.QueryInt64(r, "location_id")
	if err != nil {
		return 0, nil, err
	}
	return *materialID, locationID, nil
}
