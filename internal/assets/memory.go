package assets

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

type depKey struct {
	assetID  int64
	periodID int64
}

// MemoryStore is an in-process Repository and TxRepository.
type MemoryStore struct {
	mu     sync.RWMutex
	tr     *db.MemoryTransactor
	assets map[int64]Asset
	deps   []Depreciation
	seen   map[depKey]struct{}
	nextID int64
	now    func() time.Time
}

// NewMemoryStore builds a store joined to tr. A nil tr gets a private transactor.
func NewMemoryStore(tr *db.MemoryTransactor) *MemoryStore {
	if tr == nil {
		tr = db.NewMemoryTransactor()
	}
	s := &MemoryStore{tr: tr, assets: make(map[int64]Asset), seen: make(map[depKey]struct{}), now: time.Now}
	tr.Join(s)
	return s
}

// Snapshot implements db.Snapshotter.
func (s *MemoryStore) Snapshot() func() {
	s.mu.Lock()
	assets := maps.Clone(s.assets)
	deps := slices.Clone(s.deps)
	seen := maps.Clone(s.seen)
	nextID := s.nextID
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.assets, s.deps, s.seen, s.nextID = assets, deps, seen, nextID
	}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return s.tr.WithTx(ctx, func(ctx context.Context) error {
		return fn(ctx, s)
	})
}

func (s *MemoryStore) GetAsset(_ context.Context, id int64) (Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return Asset{}, ErrAssetNotFound
	}
	return a, nil
}

func (s *MemoryStore) ListAssets(_ context.Context, status Status) ([]Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Asset
	for _, a := range s.assets {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *MemoryStore) ListDepreciations(_ context.Context, assetID int64) ([]Depreciation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Depreciation
	for _, d := range s.deps {
		if d.AssetID == assetID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateAsset(_ context.Context, in CreateInput) (Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assets {
		if a.Code == in.Code {
			return Asset{}, ErrAssetCodeTaken
		}
	}
	s.nextID++
	now := s.now()
	a := Asset{
		ID:                      s.nextID,
		Code:                    in.Code,
		Name:                    in.Name,
		AcquisitionCost:         in.AcquisitionCost,
		SalvageValue:            in.SalvageValue,
		AccumulatedDepreciation: decimal.Zero,
		MonthlyDepreciation:     in.MonthlyDepreciation,
		Status:                  StatusActive,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	s.assets[a.ID] = a
	return a, nil
}

func (s *MemoryStore) LockAsset(ctx context.Context, id int64) (Asset, error) {
	return s.GetAsset(ctx, id)
}

func (s *MemoryStore) InsertDepreciation(_ context.Context, d Depreciation) (Depreciation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := depKey{assetID: d.AssetID, periodID: d.PeriodID}
	if _, ok := s.seen[key]; ok {
		return Depreciation{}, ErrAlreadyDepreciated
	}
	d.CreatedAt = s.now()
	s.seen[key] = struct{}{}
	s.deps = append(s.deps, d)
	return d, nil
}

func (s *MemoryStore) UpdateAsset(_ context.Context, a Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.assets[a.ID]
	if !ok {
		return ErrAssetNotFound
	}
	cur.AccumulatedDepreciation = a.AccumulatedDepreciation
	cur.LastDepreciationPeriodID = a.LastDepreciationPeriodID
	cur.Status = a.Status
	cur.UpdatedAt = s.now()
	s.assets[a.ID] = cur
	return nil
}

func (s *MemoryStore) GetDepreciation(_ context.Context, assetID, periodID int64) (Depreciation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.deps {
		if d.AssetID == assetID && d.PeriodID == periodID {
			return d, nil
		}
	}
	return Depreciation{}, ErrChargeNotFound
}

func (s *MemoryStore) DeleteDepreciation(_ context.Context, assetID, periodID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.deps {
		if d.AssetID == assetID && d.PeriodID == periodID {
			s.deps = slices.Delete(s.deps, i, i+1)
			delete(s.seen, depKey{assetID: assetID, periodID: periodID})
			return nil
		}
	}
	return ErrChargeNotFound
}

// LatestDepreciationPeriod uses insertion order, which follows period order
// for charges booked through the service.
func (s *MemoryStore) LatestDepreciationPeriod(_ context.Context, assetID int64) (*int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.deps) - 1; i >= 0; i-- {
		if s.deps[i].AssetID == assetID {
			pid := s.deps[i].PeriodID
			return &pid, nil
		}
	}
	return nil, nil
}
