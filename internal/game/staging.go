package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stocksiege/internal/market"
	"stocksiege/internal/store"
)

// PriceMove reports one item's transition during staging.
type PriceMove struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	From          int64  `json:"from"`
	To            int64  `json:"to"`
	PercentChange int    `json:"percent_change"`
}

type StageResult struct {
	Year  int         `json:"year"`
	Moves []PriceMove `json:"moves"`
}

type SettleResult struct {
	Year       int   `json:"year"`
	Liquidated int   `json:"liquidated"`
	TotalPaid  int64 `json:"total_paid"`
}

type RevertResult struct {
	Year      int `json:"year"`
	Restored  int `json:"restored"`
	BackToEnd int `json:"last_settled_year"`
}

// StageNext applies the locked change record for the next year as staged
// prices. A pre-stage snapshot is taken first so the whole transition can
// be rolled back.
func (s *Service) StageNext(ctx context.Context, year int) (*StageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.UsingStagedPrices {
		return nil, fmt.Errorf("%w: year %d is already staged", market.ErrSequencing, cfg.StagedYear)
	}
	want := cfg.LastSettledYear + 1
	if year != want {
		return nil, fmt.Errorf("%w: cannot stage year %d, the next year is %d", market.ErrSequencing, year, want)
	}
	if want > market.FinalYear {
		return nil, fmt.Errorf("%w: season is complete at year %d", market.ErrSequencing, market.FinalYear)
	}
	yc, err := s.store.GetYearChange(ctx, year)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: no locked change record for year %d, generate or set it first", market.ErrSequencing, year)
		}
		return nil, err
	}
	if !yc.Locked {
		return nil, fmt.Errorf("%w: change record for year %d is not locked", market.ErrSequencing, year)
	}

	if err := s.takeSnapshot(ctx, cfg, market.SnapshotPreStage, year); err != nil {
		return nil, err
	}

	moves := make([]PriceMove, 0, len(market.ItemCodes))
	for _, code := range market.ItemCodes {
		it := cfg.Items[code]
		pct := yc.Changes[code]
		next := market.PriceWithChange(it.CurrentPrice, pct)
		it.StagedNextPrice = &next
		moves = append(moves, PriceMove{
			Code:          code,
			Name:          it.Name,
			From:          it.CurrentPrice,
			To:            next,
			PercentChange: pct,
		})
	}
	cfg.UsingStagedPrices = true
	cfg.StagedYear = year
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return nil, mapStoreErr(err)
	}
	s.log.Info("year staged", "year", year)
	return &StageResult{Year: year, Moves: moves}, nil
}

// Settle liquidates every active portfolio at its shown prices, commits the
// staged prices, and advances the settled year. The pre-stage snapshot is
// promoted to the single retained revert snapshot so the completed year can
// still be undone.
func (s *Service) Settle(ctx context.Context) (*SettleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.UsingStagedPrices {
		return nil, fmt.Errorf("%w: nothing is staged", market.ErrSequencing)
	}
	year := cfg.StagedYear

	if err := s.promoteSnapshot(ctx); err != nil {
		// Settlement still proceeds; only the undo point is lost.
		s.log.Warn("snapshot promotion failed", "year", year, "err", err)
	}

	pfs, err := s.store.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}
	var liquidated int
	var totalPaid int64
	for _, pf := range pfs {
		if pf.Eliminated {
			continue
		}
		gain := pf.HoldingsValue(cfg)
		switch cfg.GameMode {
		case market.ModeApocalypse:
			// Unspent cash burns at year end; only holdings carry over.
			pf.Cash = gain
		default:
			pf.Cash += gain
		}
		for _, code := range market.ItemCodes {
			pf.Holdings[code] = 0
		}
		pf.UpdatedAt = time.Now().UTC()
		if err := s.store.SavePortfolio(ctx, pf); err != nil {
			return nil, mapStoreErr(err)
		}
		liquidated++
		totalPaid += gain
	}

	for _, code := range market.ItemCodes {
		it := cfg.Items[code]
		if it.StagedNextPrice != nil {
			it.CurrentPrice = *it.StagedNextPrice
			it.StagedNextPrice = nil
		}
	}
	cfg.UsingStagedPrices = false
	cfg.StagedYear = 0
	cfg.LastSettledYear = year
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return nil, mapStoreErr(err)
	}
	s.log.Info("year settled", "year", year, "liquidated", liquidated, "total_paid", totalPaid)
	return &SettleResult{Year: year, Liquidated: liquidated, TotalPaid: totalPaid}, nil
}

// Revert restores the newest snapshot: while staged that is the pre-stage
// checkpoint, after a settle it is the retained revert snapshot. Frozen
// flags are cleared because the staged prices they were pinned against no
// longer exist. Elimination marks are permanent and survive the revert.
func (s *Service) Revert(ctx context.Context) (*RevertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.LatestSnapshot(ctx, market.SnapshotRevert, market.SnapshotPreStage)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: no snapshot to revert to", market.ErrSequencing)
		}
		return nil, err
	}

	for _, code := range market.ItemCodes {
		it := cfg.Items[code]
		if px, ok := snap.Items[code]; ok {
			it.CurrentPrice = px
		}
		it.StagedNextPrice = nil
	}
	cfg.UsingStagedPrices = false
	cfg.StagedYear = 0
	cfg.LastSettledYear = snap.Year - 1
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return nil, mapStoreErr(err)
	}

	byID := make(map[string]market.SnapshotPortfolio, len(snap.Portfolios))
	for _, sp := range snap.Portfolios {
		byID[sp.ParticipantID] = sp
	}
	pfs, err := s.store.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}
	var restored int
	for _, pf := range pfs {
		sp, ok := byID[pf.ParticipantID]
		if ok {
			pf.Cash = sp.Cash
			pf.Holdings = make(map[string]int64, len(market.ItemCodes))
			for _, code := range market.ItemCodes {
				pf.Holdings[code] = sp.Holdings[code]
			}
			restored++
		}
		pf.Frozen = false
		pf.UpdatedAt = time.Now().UTC()
		if err := s.store.SavePortfolio(ctx, pf); err != nil {
			return nil, mapStoreErr(err)
		}
	}

	// The consumed snapshot must not be replayable.
	if err := s.store.DeleteSnapshots(ctx, snap.Type); err != nil {
		return nil, err
	}
	s.log.Info("season reverted", "to_year", snap.Year, "restored", restored)
	return &RevertResult{Year: snap.Year, Restored: restored, BackToEnd: cfg.LastSettledYear}, nil
}

func (s *Service) takeSnapshot(ctx context.Context, cfg *market.Config, typ market.SnapshotType, year int) error {
	pfs, err := s.store.ListPortfolios(ctx)
	if err != nil {
		return err
	}
	snap := &market.Snapshot{
		ID:      uuid.NewString(),
		Type:    typ,
		Year:    year,
		Items:   make(map[string]int64, len(market.ItemCodes)),
		TakenAt: time.Now().UTC(),
	}
	for _, code := range market.ItemCodes {
		snap.Items[code] = cfg.Items[code].CurrentPrice
	}
	for _, pf := range pfs {
		holdings := make(map[string]int64, len(market.ItemCodes))
		for _, code := range market.ItemCodes {
			holdings[code] = pf.Holdings[code]
		}
		snap.Portfolios = append(snap.Portfolios, market.SnapshotPortfolio{
			ParticipantID: pf.ParticipantID,
			Cash:          pf.Cash,
			Holdings:      holdings,
		})
	}
	if err := s.store.DeleteSnapshots(ctx, typ); err != nil {
		return err
	}
	return s.store.PutSnapshot(ctx, snap)
}

// promoteSnapshot turns the latest pre-stage snapshot into the retained
// revert snapshot, replacing any previous one.
func (s *Service) promoteSnapshot(ctx context.Context) error {
	snap, err := s.store.LatestSnapshot(ctx, market.SnapshotPreStage)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSnapshots(ctx, market.SnapshotRevert); err != nil {
		return err
	}
	promoted := *snap
	promoted.ID = uuid.NewString()
	promoted.Type = market.SnapshotRevert
	promoted.TakenAt = time.Now().UTC()
	if err := s.store.PutSnapshot(ctx, &promoted); err != nil {
		return err
	}
	return s.store.DeleteSnapshots(ctx, market.SnapshotPreStage)
}
