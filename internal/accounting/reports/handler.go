package reports

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.TrialBalance)
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	periodID, err := httpx.QueryInt64(r, "period_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if periodID == nil {
		httpx.RespondError(w, h.logger, fmt.Errorf("%w: period_id required", shared.ErrInvalidArgument))
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), *periodID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, struct {
		TrialBalance
		Balanced bool `json:"balanced"`
	}{tb, tb.Balanced()})
}
