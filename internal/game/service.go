// Package game is the turn-based market engine: one Service owns all writes
// to a season and drives it through the generate -> stage -> settle cycle.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"stocksiege/internal/market"
	"stocksiege/internal/store"
)

// Service serializes every state transition behind one mutex. Reads go
// straight to the store; writes additionally rely on its version CAS so a
// second engine instance pointed at the same database cannot lose updates.
type Service struct {
	store store.Store
	log   *slog.Logger
	mu    sync.Mutex
	rand  *mathrand.Rand

	// previews holds uncommitted generation draws keyed by token. They
	// live in process memory only; a restart discards them.
	previews map[string]*market.GeneratedYear
}

func NewService(st store.Store, logger *slog.Logger, rng *mathrand.Rand) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if rng == nil {
		rng = mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		store:    st,
		log:      logger,
		rand:     rng,
		previews: make(map[string]*market.GeneratedYear),
	}
}

// config loads the season singleton, translating a missing document into a
// sequencing error: every operation except resetSeason requires a season.
func (s *Service) config(ctx context.Context) (*market.Config, error) {
	cfg, err := s.store.LoadConfig(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: no active season, run reset first", market.ErrSequencing)
		}
		return nil, err
	}
	return cfg, nil
}

func (s *Service) portfolio(ctx context.Context, participantID string) (*market.Portfolio, error) {
	pf, err := s.store.GetPortfolio(ctx, participantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: participant %q is not registered", market.ErrNotFound, participantID)
		}
		return nil, err
	}
	return pf, nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrVersionConflict) {
		return fmt.Errorf("%w: %v", market.ErrConflict, err)
	}
	return err
}

// ResetSeason wipes the whole game and opens a fresh season at the baseline
// year. Item names and prices are applied in A..H order.
func (s *Service) ResetSeason(ctx context.Context, mode market.GameMode, names map[string]string, prices map[string]int64) (*market.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, code := range market.ItemCodes {
		if p := prices[code]; p < 0 || p > market.MaxItemPrice {
			return nil, fmt.Errorf("%w: price for %s must be in 0..%d, got %d", market.ErrValidation, code, market.MaxItemPrice, p)
		}
	}

	if err := s.store.Reset(ctx); err != nil {
		return nil, err
	}
	cfg := market.NewConfig(mode, names, prices)
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return nil, mapStoreErr(err)
	}
	s.previews = make(map[string]*market.GeneratedYear)
	s.log.Info("season reset", "mode", mode, "year", cfg.LastSettledYear)
	return cfg, nil
}

// Register opens a portfolio with mode-dependent starting cash.
func (s *Service) Register(ctx context.Context, participantID string) (*market.Portfolio, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, fmt.Errorf("%w: participant id is required", market.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetPortfolio(ctx, participantID); err == nil {
		return nil, fmt.Errorf("%w: %q is already registered", market.ErrValidation, participantID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	all, err := s.store.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) >= market.MaxPlayers {
		return nil, fmt.Errorf("%w: game is full (%d participants)", market.ErrValidation, market.MaxPlayers)
	}

	pf := market.NewPortfolio(participantID, cfg.GameMode)
	pf.UpdatedAt = time.Now().UTC()
	if err := s.store.SavePortfolio(ctx, pf); err != nil {
		return nil, mapStoreErr(err)
	}
	s.log.Info("participant registered", "participant", participantID, "cash", pf.Cash)
	return pf, nil
}

// Market returns the current season config.
func (s *Service) Market(ctx context.Context) (*market.Config, error) {
	return s.config(ctx)
}

// Portfolio returns one participant's ledger entry.
func (s *Service) Portfolio(ctx context.Context, participantID string) (*market.Portfolio, error) {
	if _, err := s.config(ctx); err != nil {
		return nil, err
	}
	return s.portfolio(ctx, participantID)
}

// Portfolios returns every registered portfolio ordered by participant id.
func (s *Service) Portfolios(ctx context.Context) ([]*market.Portfolio, error) {
	if _, err := s.config(ctx); err != nil {
		return nil, err
	}
	return s.store.ListPortfolios(ctx)
}

// OddsScope selects which locked years feed the odds calculation.
type OddsScope string

const (
	// OddsOwner sees every locked year.
	OddsOwner OddsScope = "owner"
	// OddsRHint withholds the most recent locked year, so players reading
	// the public hint cannot confirm the change they are about to live
	// through.
	OddsRHint OddsScope = "rhint"
)

// Odds computes per-item up-move odds over the locked history visible to
// the given scope.
func (s *Service) Odds(ctx context.Context, scope OddsScope) (map[string]int, error) {
	if _, err := s.config(ctx); err != nil {
		return nil, err
	}
	years, err := s.lockedYears(ctx)
	if err != nil {
		return nil, err
	}
	switch scope {
	case OddsOwner:
	case OddsRHint:
		if len(years) > 0 {
			years = years[:len(years)-1]
		}
	default:
		return nil, fmt.Errorf("%w: unknown odds scope %q", market.ErrValidation, scope)
	}
	return market.CalculateOdds(years), nil
}

func (s *Service) lockedYears(ctx context.Context) ([]*market.YearChange, error) {
	all, err := s.store.ListYearChanges(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, yc := range all {
		if yc.Locked {
			out = append(out, yc)
		}
	}
	return out, nil
}

// SetTradingLocked flips the global trading lock.
func (s *Service) SetTradingLocked(ctx context.Context, locked bool) (*market.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	cfg.TradingLocked = locked
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return nil, mapStoreErr(err)
	}
	s.log.Info("trading lock changed", "locked", locked)
	return cfg, nil
}

// SetGameMode switches the season's mode. Already-registered portfolios
// keep their cash; only future registrations use the new starting amount.
func (s *Service) SetGameMode(ctx context.Context, mode market.GameMode) (*market.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	cfg.GameMode = mode
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return nil, mapStoreErr(err)
	}
	s.log.Info("game mode changed", "mode", mode)
	return cfg, nil
}

// SetRankingPolicy selects how finalStandings orders participants in
// elimination mode.
func (s *Service) SetRankingPolicy(ctx context.Context, policy market.RankingPolicy) (*market.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	cfg.ElimRankingPolicy = policy
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return nil, mapStoreErr(err)
	}
	return cfg, nil
}

// SetFrozen pins or unpins a portfolio's valuation to pre-stage prices.
func (s *Service) SetFrozen(ctx context.Context, participantID string, frozen bool) (*market.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.config(ctx); err != nil {
		return nil, err
	}
	pf, err := s.portfolio(ctx, participantID)
	if err != nil {
		return nil, err
	}
	pf.Frozen = frozen
	pf.UpdatedAt = time.Now().UTC()
	if err := s.store.SavePortfolio(ctx, pf); err != nil {
		return nil, mapStoreErr(err)
	}
	s.log.Info("portfolio freeze changed", "participant", participantID, "frozen", frozen)
	return pf, nil
}

// Standings lists every portfolio with its total cash at shown prices,
// sorted descending. Usable in any mode; this is the plain scoreboard, not
// the elimination ranking.
type StandingRow struct {
	ParticipantID string `json:"participant_id"`
	Cash          int64  `json:"cash"`
	HoldingsValue int64  `json:"holdings_value"`
	TotalCash     int64  `json:"total_cash"`
	Eliminated    bool   `json:"eliminated,omitempty"`
}

func (s *Service) Standings(ctx context.Context) ([]StandingRow, error) {
	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	pfs, err := s.store.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]StandingRow, 0, len(pfs))
	for _, pf := range pfs {
		rows = append(rows, StandingRow{
			ParticipantID: pf.ParticipantID,
			Cash:          pf.Cash,
			HoldingsValue: pf.HoldingsValue(cfg),
			TotalCash:     pf.TotalCash(cfg),
			Eliminated:    pf.Eliminated,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalCash != rows[j].TotalCash {
			return rows[i].TotalCash > rows[j].TotalCash
		}
		return rows[i].ParticipantID < rows[j].ParticipantID
	})
	return rows, nil
}
