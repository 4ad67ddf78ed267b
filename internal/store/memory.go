package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"stocksiege/internal/market"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development; documents are deep-copied on the way in and out so callers
// never share state with the store.
type MemoryStore struct {
	mu         sync.RWMutex
	config     *market.Config
	portfolios map[string]*market.Portfolio
	changes    map[int]*market.YearChange
	snapshots  []*market.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		portfolios: make(map[string]*market.Portfolio),
		changes:    make(map[int]*market.YearChange),
	}
}

func (s *MemoryStore) LoadConfig(_ context.Context) (*market.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return nil, ErrNotFound
	}
	return copyConfig(s.config), nil
}

func (s *MemoryStore) SaveConfig(_ context.Context, cfg *market.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := int64(0)
	if s.config != nil {
		current = s.config.Version
	}
	if cfg.Version != current {
		return ErrVersionConflict
	}
	stored := copyConfig(cfg)
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	s.config = stored
	cfg.Version = stored.Version
	return nil
}

func (s *MemoryStore) GetPortfolio(_ context.Context, participantID string) (*market.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pf, ok := s.portfolios[participantID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPortfolio(pf), nil
}

func (s *MemoryStore) ListPortfolios(_ context.Context) ([]*market.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*market.Portfolio, 0, len(s.portfolios))
	for _, pf := range s.portfolios {
		out = append(out, copyPortfolio(pf))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}

func (s *MemoryStore) SavePortfolio(_ context.Context, pf *market.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := int64(0)
	if existing, ok := s.portfolios[pf.ParticipantID]; ok {
		current = existing.Version
	}
	if pf.Version != current {
		return ErrVersionConflict
	}
	stored := copyPortfolio(pf)
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	s.portfolios[pf.ParticipantID] = stored
	pf.Version = stored.Version
	return nil
}

func (s *MemoryStore) GetYearChange(_ context.Context, year int) (*market.YearChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	yc, ok := s.changes[year]
	if !ok {
		return nil, ErrNotFound
	}
	return copyYearChange(yc), nil
}

func (s *MemoryStore) ListYearChanges(_ context.Context) ([]*market.YearChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*market.YearChange, 0, len(s.changes))
	for _, yc := range s.changes {
		out = append(out, copyYearChange(yc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

func (s *MemoryStore) PutYearChange(_ context.Context, yc *market.YearChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes[yc.Year] = copyYearChange(yc)
	return nil
}

func (s *MemoryStore) LatestSnapshot(_ context.Context, types ...market.SnapshotType) (*market.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest *market.Snapshot
	for _, snap := range s.snapshots {
		if !snapshotTypeIn(snap.Type, types) {
			continue
		}
		if newest == nil || snap.TakenAt.After(newest.TakenAt) {
			newest = snap
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return copySnapshot(newest), nil
}

func (s *MemoryStore) PutSnapshot(_ context.Context, snap *market.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, copySnapshot(snap))
	return nil
}

func (s *MemoryStore) DeleteSnapshots(_ context.Context, typ market.SnapshotType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.snapshots[:0]
	for _, snap := range s.snapshots {
		if snap.Type != typ {
			kept = append(kept, snap)
		}
	}
	s.snapshots = kept
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = nil
	s.portfolios = make(map[string]*market.Portfolio)
	s.changes = make(map[int]*market.YearChange)
	s.snapshots = nil
	return nil
}

func snapshotTypeIn(t market.SnapshotType, types []market.SnapshotType) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}

// --- deep copies ---

func copyConfig(cfg *market.Config) *market.Config {
	out := *cfg
	out.Items = make(map[string]*market.Item, len(cfg.Items))
	for code, it := range cfg.Items {
		cp := *it
		if it.StagedNextPrice != nil {
			v := *it.StagedNextPrice
			cp.StagedNextPrice = &v
		}
		out.Items[code] = &cp
	}
	return &out
}

func copyPortfolio(pf *market.Portfolio) *market.Portfolio {
	out := *pf
	out.Holdings = make(map[string]int64, len(pf.Holdings))
	for code, q := range pf.Holdings {
		out.Holdings[code] = q
	}
	return &out
}

func copyYearChange(yc *market.YearChange) *market.YearChange {
	out := *yc
	out.Changes = make(map[string]int, len(yc.Changes))
	for code, pct := range yc.Changes {
		out.Changes[code] = pct
	}
	if yc.Meta != nil {
		meta := *yc.Meta
		meta.Rows = append([]market.DrawRow(nil), yc.Meta.Rows...)
		out.Meta = &meta
	}
	return &out
}

func copySnapshot(snap *market.Snapshot) *market.Snapshot {
	out := *snap
	out.Items = make(map[string]int64, len(snap.Items))
	for code, price := range snap.Items {
		out.Items[code] = price
	}
	out.Portfolios = make([]market.SnapshotPortfolio, len(snap.Portfolios))
	for i, pf := range snap.Portfolios {
		cp := pf
		cp.Holdings = make(map[string]int64, len(pf.Holdings))
		for code, q := range pf.Holdings {
			cp.Holdings[code] = q
		}
		out.Portfolios[i] = cp
	}
	return &out
}
