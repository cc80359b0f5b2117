package periods

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context) ([]Period, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.Get(ctx, id)
}

// FindByDate returns the period covering date regardless of status.
func (s *Service) FindByDate(ctx context.Context, date time.Time) (Period, error) {
	return s.repo.FindByDate(ctx, date)
}

// Create opens a new period. Ranges never overlap.
func (s *Service) Create(ctx context.Context, in CreatePeriodInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	var created Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindOverlapping(ctx, in.StartDate, in.EndDate)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", shared.ErrPeriodOverlap, existing.Label)
		}
		created, err = tx.Insert(ctx, in)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, in.ActorID, "period.create", created)
	return created, nil
}

// Close freezes the period. Closing is permanent; closing a closed period
// fails with ErrPeriodClosed.
func (s *Service) Close(ctx context.Context, id, actorID int64) (Period, error) {
	var closed Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := internalShared.ValidatePeriodTransition(string(current.Status), string(PeriodStatusClosed)); err != nil {
			return &shared.PeriodClosedError{PeriodID: current.ID, Label: current.Label}
		}
		closed, err = tx.MarkClosed(ctx, id, actorID, s.now().UTC())
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, actorID, "period.close", closed)
	return closed, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, p Period) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "gl_period",
		EntityID: strconv.FormatInt(p.ID, 10),
		Meta:     map[string]any{"label": p.Label, "status": p.Status},
		At:       s.now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "period audit failed",
			slog.String("action", action), slog.Int64("period_id", p.ID), slog.Any("error", err))
	}
}
