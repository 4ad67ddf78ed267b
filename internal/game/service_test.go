package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	mathrand "math/rand"
	"testing"

	"stocksiege/internal/market"
	"stocksiege/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store.NewMemoryStore(), logger, mathrand.New(mathrand.NewSource(1)))
}

func seedNames() map[string]string {
	return map[string]string{"A": "Grain", "B": "Steel"}
}

func seedPrices() map[string]int64 {
	prices := map[string]int64{}
	for _, c := range market.ItemCodes {
		prices[c] = 100
	}
	prices["B"] = 200
	return prices
}

func newSeason(t *testing.T, s *Service, mode market.GameMode) *market.Config {
	t.Helper()
	cfg, err := s.ResetSeason(context.Background(), mode, seedNames(), seedPrices())
	if err != nil {
		t.Fatalf("reset season: %v", err)
	}
	return cfg
}

func register(t *testing.T, s *Service, id string) *market.Portfolio {
	t.Helper()
	pf, err := s.Register(context.Background(), id)
	if err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	return pf
}

func flatChanges(pct int) map[string]int {
	out := make(map[string]int, len(market.ItemCodes))
	for _, c := range market.ItemCodes {
		out[c] = pct
	}
	return out
}

// advanceYear settles one quiet year so sequencing-dependent tests can move
// the season forward.
func advanceYear(t *testing.T, s *Service) {
	t.Helper()
	ctx := context.Background()
	yc, err := s.SetYearChange(ctx, flatChanges(0))
	if err != nil {
		t.Fatalf("set year change: %v", err)
	}
	if _, err := s.StageNext(ctx, yc.Year); err != nil {
		t.Fatalf("stage year %d: %v", yc.Year, err)
	}
	if _, err := s.Settle(ctx); err != nil {
		t.Fatalf("settle year %d: %v", yc.Year, err)
	}
}

func TestOperationsRequireSeason(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, "u1"); !errors.Is(err, market.ErrSequencing) {
		t.Fatalf("register without season: got %v", err)
	}
	if _, err := s.Market(ctx); !errors.Is(err, market.ErrSequencing) {
		t.Fatalf("market without season: got %v", err)
	}
}

func TestResetSeason(t *testing.T) {
	s := newTestService(t)
	cfg := newSeason(t, s, market.ModeClassic)

	if cfg.LastSettledYear != market.BaselineYear {
		t.Fatalf("baseline year = %d", cfg.LastSettledYear)
	}
	if cfg.Items["A"].Name != "Grain" || cfg.Items["A"].CurrentPrice != 100 {
		t.Fatalf("item A = %+v", cfg.Items["A"])
	}
	if cfg.Items["C"].Name != "C" {
		t.Fatalf("unnamed item should fall back to its code, got %q", cfg.Items["C"].Name)
	}

	// A second reset wipes registrations.
	register(t, s, "u1")
	newSeason(t, s, market.ModeClassic)
	if _, err := s.Portfolio(context.Background(), "u1"); !errors.Is(err, market.ErrNotFound) {
		t.Fatalf("portfolio should be gone after reset, got %v", err)
	}
}

func TestResetSeasonRejectsBadPrices(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	newSeason(t, s, market.ModeClassic)
	register(t, s, "u1")

	bad := seedPrices()
	bad["A"] = -100
	if _, err := s.ResetSeason(ctx, market.ModeClassic, seedNames(), bad); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("negative price: got %v", err)
	}

	bad = seedPrices()
	bad["B"] = market.MaxItemPrice + 1
	if _, err := s.ResetSeason(ctx, market.ModeClassic, seedNames(), bad); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("price above cap: got %v", err)
	}

	// A rejected reset must not have wiped the running season.
	if _, err := s.Portfolio(ctx, "u1"); err != nil {
		t.Fatalf("running season was disturbed: %v", err)
	}
	cfg, err := s.Market(ctx)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if cfg.Items["A"].CurrentPrice != 100 {
		t.Fatalf("item A price = %d after rejected resets", cfg.Items["A"].CurrentPrice)
	}
}

func TestRegister(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()

	pf := register(t, s, "u1")
	if pf.Cash != market.StartingCash {
		t.Fatalf("start cash = %d", pf.Cash)
	}
	if _, err := s.Register(ctx, "u1"); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("duplicate registration: got %v", err)
	}
	if _, err := s.Register(ctx, "  "); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("blank id: got %v", err)
	}
}

func TestRegisterCapacity(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()

	for i := 0; i < market.MaxPlayers; i++ {
		register(t, s, fmt.Sprintf("u%02d", i))
	}
	if _, err := s.Register(ctx, "overflow"); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("over capacity: got %v", err)
	}
}

func TestApocalypseStartingCash(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeApocalypse)
	if pf := register(t, s, "u1"); pf.Cash != market.ApocStartingCash {
		t.Fatalf("apocalypse start cash = %d", pf.Cash)
	}
}

func TestOddsScopes(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()

	// No history yet: both scopes read flat 50s.
	owner, err := s.Odds(ctx, OddsOwner)
	if err != nil {
		t.Fatalf("odds: %v", err)
	}
	if owner["A"] != 50 {
		t.Fatalf("owner odds = %d want 50", owner["A"])
	}

	changes := flatChanges(0)
	changes["A"] = -80
	if _, err := s.SetYearChange(ctx, changes); err != nil {
		t.Fatalf("set year change: %v", err)
	}

	owner, err = s.Odds(ctx, OddsOwner)
	if err != nil {
		t.Fatalf("odds: %v", err)
	}
	if owner["A"] != 70 {
		t.Fatalf("owner sees the new year: got %d want 70", owner["A"])
	}
	hint, err := s.Odds(ctx, OddsRHint)
	if err != nil {
		t.Fatalf("odds: %v", err)
	}
	if hint["A"] != 50 {
		t.Fatalf("rhint must withhold the latest year: got %d want 50", hint["A"])
	}

	if _, err := s.Odds(ctx, OddsScope("public")); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("unknown scope: got %v", err)
	}
}

func TestStandingsOrder(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()

	register(t, s, "u1")
	register(t, s, "u2")
	if _, err := s.AdminForceCash(ctx, "u2", 900_000); err != nil {
		t.Fatalf("force cash: %v", err)
	}

	rows, err := s.Standings(ctx)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(rows) != 2 || rows[0].ParticipantID != "u2" || rows[1].ParticipantID != "u1" {
		t.Fatalf("unexpected order: %+v", rows)
	}
}

func TestTradingLockToggle(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()
	register(t, s, "u1")

	if _, err := s.SetTradingLocked(ctx, true); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := s.Buy(ctx, "u1", "A 1"); !errors.Is(err, market.ErrTradingLocked) {
		t.Fatalf("buy while locked: got %v", err)
	}
	if _, err := s.SetTradingLocked(ctx, false); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := s.Buy(ctx, "u1", "A 1"); err != nil {
		t.Fatalf("buy after unlock: %v", err)
	}
}
