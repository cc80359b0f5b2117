package mappings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler lets administrators maintain account mappings.
type Handler struct {
	repo   Repository
	logger *slog.Logger
	binder *httpx.Binder
}

func NewHandler(logger *slog.Logger, repo Repository) *Handler {
	return &Handler{repo: repo, logger: logger, binder: httpx.NewBinder()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Put("/", h.Upsert)
}

type mappingPayload struct {
	Module    string `json:"module" validate:"required,max=32"`
	Key       string `json:"key" validate:"required,max=64"`
	AccountID int64  `json:"account_id" validate:"required,gt=0"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]mappingPayload, 0, len(list))
	for _, m := range list {
		out = append(out, mappingPayload{Module: m.Module, Key: m.Key, AccountID: m.AccountID})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req mappingPayload
	if !h.binder.Bind(w, r, &req) {
		return
	}
	m, err := h.repo.Upsert(r.Context(), AccountMapping{Module: req.Module, Key: req.Key, AccountID: req.AccountID})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, mappingPayload{Module: m.Module, Key: m.Key, AccountID: m.AccountID})
}
