package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the timeline route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleTimeline)
}

type entryResponse struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type timelineResponse struct {
	Items      []entryResponse `json:"items"`
	NextCursor *int64          `json:"next_cursor"`
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := TimelineFilters{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
	}
	var err error
	if filters.From, err = httpx.QueryDate(r, "from"); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if filters.To, err = httpx.QueryDate(r, "to"); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if !filters.To.IsZero() {
		filters.To = filters.To.AddDate(0, 0, 1)
	}
	actor, err := httpx.QueryInt64(r, "actor_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if actor != nil {
		filters.ActorID = *actor
	}
	cursor, err := httpx.QueryInt64(r, "cursor")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if cursor != nil {
		filters.AfterID = *cursor
	}
	if raw := q.Get("limit"); raw != "" {
		if filters.Limit, err = strconv.Atoi(raw); err != nil || filters.Limit <= 0 {
			httpx.RespondError(w, h.logger, fmt.Errorf("%w: invalid limit", shared.ErrInvalidArgument))
			return
		}
	}
	page, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	resp := timelineResponse{Items: make([]entryResponse, 0, len(page.Rows)), NextCursor: page.NextCursor}
	for _, e := range page.Rows {
		resp.Items = append(resp.Items, entryResponse{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     e.Action,
			Entity:     e.Entity,
			EntityID:   e.EntityID,
			Meta:       e.Meta,
			OccurredAt: e.OccurredAt,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}
