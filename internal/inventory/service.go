package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the inventory movement ledger. It is the only writer of
// inventory_transactions and stock_balances.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// RecordMovement appends one movement and updates the projection in its own
// transaction.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	var rec Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rec, err = s.RecordMovementTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.Committed(ctx, []Transaction{rec})
	return rec, nil
}

// RecordMovementTx appends one movement inside a caller-owned transaction.
func (s *Service) RecordMovementTx(ctx context.Context, tx TxRepository, in MovementInput) (Transaction, error) {
	recs, err := s.RecordMovementsTx(ctx, tx, []MovementInput{in})
	if err != nil {
		return Transaction{}, err
	}
	return recs[0], nil
}

// RecordMovementsTx appends movements in order inside a caller-owned
// transaction. Every affected key is locked up front in key order so two
// multi-key operations cannot deadlock on each other.
func (s *Service) RecordMovementsTx(ctx context.Context, tx TxRepository, ins []MovementInput) ([]Transaction, error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("%w: no movements", shared.ErrInvalidArgument)
	}
	for i := range ins {
		if err := ins[i].Validate(); err != nil {
			return nil, err
		}
	}
	balances, err := s.lockKeys(ctx, tx, movementKeys(ins))
	if err != nil {
		return nil, err
	}

	out := make([]Transaction, 0, len(ins))
	carried := make(map[int64]decimal.Decimal)
	for _, in := range ins {
		key := in.Key()
		bal := balances[key]
		after := in.Type.Apply(bal.Quantity, in.Quantity)
		if after.IsNegative() {
			return nil, &InsufficientStockError{
				MaterialID: key.MaterialID,
				LocationID: key.LocationID,
				Available:  bal.Quantity,
				Requested:  in.Quantity,
			}
		}
		if in.Type.Outbound() && after.LessThan(bal.Reserved) {
			return nil, fmt.Errorf("%w: %s on hand %s would fall below reserved %s",
				ErrReservationExceeded, key, after.StringFixed(2), bal.Reserved.StringFixed(2))
		}
		cost, avg := valuate(bal, in, after, carried)
		rec, err := tx.InsertTransaction(ctx, Transaction{
			MaterialID:     key.MaterialID,
			LocationID:     key.LocationID,
			Type:           in.Type,
			Quantity:       in.Quantity,
			BeforeQuantity: bal.Quantity,
			AfterQuantity:  after,
			UnitCost:       cost,
			UnitID:         in.UnitID,
			ReferenceNo:    in.ReferenceNo,
			ReferenceType:  in.ReferenceType,
			Operator:       in.Operator,
			Remark:         in.Remark,
		})
		if err != nil {
			return nil, err
		}
		bal.Quantity = after
		bal.AvgCost = avg
		balances[key] = bal
		out = append(out, rec)
	}

	for _, key := range sortedKeys(balances) {
		if err := tx.UpdateBalance(ctx, balances[key]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// valuate returns the unit cost a movement is booked at and the moving
// average of its key afterwards. Outbound movements leave the average
// unchanged until the key is empty.
func valuate(bal Balance, in MovementInput, after decimal.Decimal, carried map[int64]decimal.Decimal) (cost, avg decimal.Decimal) {
	if in.Type.Outbound() {
		cost = bal.AvgCost
		if in.UnitCost != nil {
			cost = *in.UnitCost
		}
		if in.Type == MovementTransferOut {
			carried[in.MaterialID] = cost
		}
		if after.IsZero() {
			return cost, decimal.Zero
		}
		return cost, bal.AvgCost
	}
	cost = bal.AvgCost
	if c, ok := carried[in.MaterialID]; ok && in.Type == MovementTransferIn {
		cost = c
	}
	if in.UnitCost != nil {
		cost = *in.UnitCost
	}
	total := bal.Quantity.Mul(bal.AvgCost).Add(in.Quantity.Mul(cost))
	return cost, total.Div(after).Round(costScale)
}

// Committed audits movements whose transaction has committed.
func (s *Service) Committed(ctx context.Context, recs []Transaction) {
	if s.audit == nil {
		return
	}
	for _, rec := range recs {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   fmt.Sprintf("inventory:%s", rec.Type),
			Entity:   "inventory_transaction",
			EntityID: fmt.Sprintf("%d", rec.ID),
			Meta: map[string]any{
				"material_id":    rec.MaterialID,
				"location_id":    rec.LocationID,
				"quantity":       rec.Quantity.StringFixed(2),
				"after_quantity": rec.AfterQuantity.StringFixed(2),
				"reference_no":   rec.ReferenceNo,
				"reference_type": rec.ReferenceType,
				"operator":       rec.Operator,
			},
			At: rec.OccurredAt,
		}); err != nil {
			s.logger.Warn("inventory audit failed", slog.Int64("transaction_id", rec.ID), slog.Any("error", err))
		}
	}
}

// CurrentBalance reads the projection. A key with movements but no
// projection row is reported as ProjectionInconsistency.
func (s *Service) CurrentBalance(ctx context.Context, materialID, locationID int64) (decimal.Decimal, error) {
	bal, err := s.Balance(ctx, materialID, locationID)
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Quantity, nil
}

// Balance returns the projection row with its reserved split.
func (s *Service) Balance(ctx context.Context, materialID, locationID int64) (Balance, error) {
	if materialID <= 0 || locationID <= 0 {
		return Balance{}, fmt.Errorf("%w: material and location required", shared.ErrInvalidArgument)
	}
	key := Key{MaterialID: materialID, LocationID: locationID}
	bal, err := s.repo.GetBalance(ctx, key)
	if err == nil {
		return bal, nil
	}
	if !errors.Is(err, ErrBalanceNotFound) {
		return Balance{}, err
	}
	exists, err := s.repo.HasTransactions(ctx, key)
	if err != nil {
		return Balance{}, err
	}
	if exists {
		return Balance{}, s.inconsistent(ctx, &ProjectionInconsistencyError{
			MaterialID: materialID,
			LocationID: locationID,
			Reason:     "projection row missing for key with movements",
		})
	}
	return Balance{MaterialID: materialID, LocationID: locationID, Quantity: decimal.Zero, Reserved: decimal.Zero, AvgCost: decimal.Zero}, nil
}

// History returns movements oldest first. Without a limit the whole chain
// of the filter is returned; page with Limit and AfterID.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]Transaction, error) {
	if err := filter.normalize(); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, filter)
}

// Reserve holds available stock for later issue.
func (s *Service) Reserve(ctx context.Context, in ReservationInput) (Balance, error) {
	return s.adjustReservation(ctx, in, true)
}

// Release frees previously reserved stock.
func (s *Service) Release(ctx context.Context, in ReservationInput) (Balance, error) {
	return s.adjustReservation(ctx, in, false)
}

func (s *Service) adjustReservation(ctx context.Context, in ReservationInput, hold bool) (Balance, error) {
	if err := in.validate(); err != nil {
		return Balance{}, err
	}
	var out Balance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		balances, err := s.lockKeys(ctx, tx, []Key{in.Key()})
		if err != nil {
			return err
		}
		bal := balances[in.Key()]
		if hold {
			if in.Quantity.GreaterThan(bal.Available()) {
				return fmt.Errorf("%w: available %s, requested %s", ErrReservationExceeded, bal.Available().StringFixed(2), in.Quantity.StringFixed(2))
			}
			bal.Reserved = bal.Reserved.Add(in.Quantity)
		} else {
			if in.Quantity.GreaterThan(bal.Reserved) {
				return fmt.Errorf("%w: reserved %s, release %s", ErrReservationExceeded, bal.Reserved.StringFixed(2), in.Quantity.StringFixed(2))
			}
			bal.Reserved = bal.Reserved.Sub(in.Quantity)
		}
		if err := tx.UpdateBalance(ctx, bal); err != nil {
			return err
		}
		out = bal
		return nil
	})
	if err != nil {
		return Balance{}, err
	}
	return out, nil
}

// Keys lists every key that has a projection row or movements.
func (s *Service) Keys(ctx context.Context) ([]Key, error) {
	return s.repo.ListKeys(ctx)
}

// VerifyKey replays the full history of key and compares it with the
// projection.
func (s *Service) VerifyKey(ctx context.Context, key Key) error {
	loc := key.LocationID
	history, err := s.repo.History(ctx, HistoryFilter{MaterialID: key.MaterialID, LocationID: &loc})
	if err != nil {
		return err
	}
	final, err := VerifyChain(history)
	if err != nil {
		s.logger.Error("inventory movement chain broken", slog.String("key", key.String()), slog.Any("error", err))
		return err
	}
	bal, err := s.repo.GetBalance(ctx, key)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) && len(history) == 0 {
			return nil
		}
		if errors.Is(err, ErrBalanceNotFound) {
			return s.inconsistent(ctx, &ProjectionInconsistencyError{
				MaterialID: key.MaterialID, LocationID: key.LocationID, Ledger: final,
				Reason: "projection row missing for key with movements",
			})
		}
		return err
	}
	if !bal.Quantity.Equal(final) {
		return s.inconsistent(ctx, &ProjectionInconsistencyError{
			MaterialID: key.MaterialID, LocationID: key.LocationID, Projected: bal.Quantity, Ledger: final,
			Reason: "projection differs from replayed history",
		})
	}
	return nil
}

// lockKeys locks every key in order and checks each projection against the
// latest movement before anything is written.
func (s *Service) lockKeys(ctx context.Context, tx TxRepository, keys []Key) (map[Key]Balance, error) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	balances := make(map[Key]Balance, len(keys))
	for _, key := range keys {
		bal, created, err := tx.LockBalance(ctx, key)
		if err != nil {
			return nil, err
		}
		latest, err := tx.LatestTransaction(ctx, key)
		if err != nil {
			return nil, err
		}
		ledger := decimal.Zero
		if latest != nil {
			ledger = latest.AfterQuantity
		}
		switch {
		case created && latest != nil:
			return nil, s.inconsistent(ctx, &ProjectionInconsistencyError{
				MaterialID: key.MaterialID, LocationID: key.LocationID, Projected: bal.Quantity, Ledger: ledger,
				Reason: "projection row missing for key with movements",
			})
		case !bal.Quantity.Equal(ledger):
			return nil, s.inconsistent(ctx, &ProjectionInconsistencyError{
				MaterialID: key.MaterialID, LocationID: key.LocationID, Projected: bal.Quantity, Ledger: ledger,
				Reason: "projection differs from latest movement",
			})
		}
		balances[key] = bal
	}
	return balances, nil
}

func (s *Service) inconsistent(ctx context.Context, err *ProjectionInconsistencyError) error {
	s.logger.ErrorContext(ctx, "inventory projection inconsistent",
		slog.Int64("material_id", err.MaterialID),
		slog.Int64("location_id", err.LocationID),
		slog.String("projected", err.Projected.StringFixed(2)),
		slog.String("ledger", err.Ledger.StringFixed(2)),
		slog.String("reason", err.Reason))
	return err
}

func movementKeys(ins []MovementInput) []Key {
	seen := make(map[Key]struct{}, len(ins))
	keys := make([]Key, 0, len(ins))
	for _, in := range ins {
		if _, ok := seen[in.Key()]; ok {
			continue
		}
		seen[in.Key()] = struct{}{}
		keys = append(keys, in.Key())
	}
	return keys
}

func sortedKeys(m map[Key]Balance) []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}
