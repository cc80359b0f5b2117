package periods

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
	binder  *httpx.Binder
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, binder: httpx.NewBinder()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/close", h.Close)
}

type periodResponse struct {
	ID        int64      `json:"id"`
	Label     string     `json:"label"`
	StartDate httpx.Date `json:"start_date"`
	EndDate   httpx.Date `json:"end_date"`
	Status    string     `json:"status"`
}

func toResponse(p Period) periodResponse {
	return periodResponse{
		ID:        p.ID,
		Label:     p.Label,
		StartDate: httpx.Date{Time: p.StartDate},
		EndDate:   httpx.Date{Time: p.EndDate},
		Status:    string(p.Status),
	}
}

type createRequest struct {
	Label     string     `json:"label" validate:"required,max=32"`
	StartDate httpx.Date `json:"start_date"`
	EndDate   httpx.Date `json:"end_date"`
	ActorID   int64      `json:"actor_id"`
}

type closeRequest struct {
	ActorID int64 `json:"actor_id"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]periodResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.binder.Bind(w, r, &req) {
		return
	}
	p, err := h.service.Create(r.Context(), CreatePeriodInput{
		Label:     req.Label,
		StartDate: req.StartDate.Time,
		EndDate:   req.EndDate.Time,
		ActorID:   req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req closeRequest
	if r.ContentLength > 0 && !h.binder.Bind(w, r, &req) {
		return
	}
	p, err := h.service.Close(r.Context(), id, req.ActorID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}
