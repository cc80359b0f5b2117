package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service maintains the chart of accounts.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, strings.TrimSpace(code))
}

// Create adds an account. A parent must exist and share the account type.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if err := in.Normalize(); err != nil {
		return Account{}, err
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.ParentID != nil {
			parent, err := tx.GetForUpdate(ctx, *in.ParentID)
			if err != nil {
				return err
			}
			if parent.Type != in.Type {
				return fmt.Errorf("%w: parent %s is %s", shared.ErrInvalidParent, parent.Code, parent.Type)
			}
		}
		account, err := tx.Insert(ctx, in)
		if err != nil {
			return err
		}
		created = account
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.ActorID, "account.create", created, map[string]any{"code": created.Code, "type": created.Type})
	return created, nil
}

// Update renames an account. The code may change only while no journal line
// references the account.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == 0 || in.Code == "" || in.Name == "" {
		return Account{}, fmt.Errorf("%w: id, code and name required", internalShared.ErrInvalidArgument)
	}
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, in.ID)
		if err != nil {
			return err
		}
		if current.Code != in.Code {
			used, err := tx.HasJournalLines(ctx, current.ID)
			if err != nil {
				return err
			}
			if used {
				return shared.ErrAccountCodeLocked
			}
		}
		current.Code = in.Code
		current.Name = in.Name
		updated, err = tx.Update(ctx, current)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.ActorID, "account.update", updated, map[string]any{"code": updated.Code, "name": updated.Name})
	return updated, nil
}

// Deactivate disables posting to an account. Accounts are never deleted.
func (s *Service) Deactivate(ctx context.Context, id, actorID int64) (Account, error) {
	var result Account
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !current.IsActive {
			result = current
			return nil
		}
		current.IsActive = false
		result, err = tx.Update(ctx, current)
		changed = err == nil
		return err
	})
	if err != nil {
		return Account{}, err
	}
	if changed {
		s.record(ctx, actorID, "account.deactivate", result, nil)
	}
	return result, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, a Account, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "gl_account",
		EntityID: strconv.FormatInt(a.ID, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "account audit failed",
			slog.String("action", action), slog.Int64("account_id", a.ID), slog.Any("error", err))
	}
}
