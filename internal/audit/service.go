package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository reads the audit trail.
type Repository interface {
	Timeline(ctx context.Context, filters TimelineFilters) ([]Entry, error)
}

// Service pages through the audit trail.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns up to filters.Limit rows after filters.AfterID.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Page, error) {
	if s.repo == nil {
		return Page{}, fmt.Errorf("audit: repository not configured")
	}
	if err := normalize(&filters); err != nil {
		return Page{}, err
	}
	pageSize := filters.Limit
	filters.Limit = pageSize + 1
	rows, err := s.repo.Timeline(ctx, filters)
	if err != nil {
		return Page{}, err
	}
	page := Page{Rows: rows}
	if len(rows) > pageSize {
		page.Rows = rows[:pageSize]
		next := page.Rows[pageSize-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

func normalize(f *TimelineFilters) error {
	f.Entity = strings.TrimSpace(f.Entity)
	f.EntityID = strings.TrimSpace(f.EntityID)
	f.Action = strings.TrimSpace(f.Action)
	if f.EntityID != "" && f.Entity == "" {
		return fmt.Errorf("%w: entity_id needs entity", shared.ErrInvalidArgument)
	}
	if f.AfterID < 0 || f.ActorID < 0 {
		return fmt.Errorf("%w: cursor and actor must not be negative", shared.ErrInvalidArgument)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return fmt.Errorf("%w: from must be before to", shared.ErrInvalidArgument)
	}
	switch {
	case f.Limit == 0:
		f.Limit = DefaultPageSize
	case f.Limit < 0 || f.Limit > MaxPageSize:
		return fmt.Errorf("%w: limit must be between 1 and %d", shared.ErrInvalidArgument, MaxPageSize)
	}
	return nil
}
