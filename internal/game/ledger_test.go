package game

import (
	"context"
	"errors"
	"testing"

	"stocksiege/internal/market"
)

func TestBuyAllOrNothing(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()
	register(t, s, "u1")

	res, err := s.Buy(ctx, "u1", "A 5, B 2")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.TotalCost != 5*100+2*200 {
		t.Fatalf("cost = %d", res.TotalCost)
	}
	if res.Cash != market.StartingCash-900 {
		t.Fatalf("cash = %d", res.Cash)
	}

	// One unaffordable line fails the whole order and leaves the
	// portfolio untouched.
	before, _ := s.Portfolio(ctx, "u1")
	if _, err := s.Buy(ctx, "u1", "A 1, B 9999999"); !errors.Is(err, market.ErrInvariant) {
		t.Fatalf("unaffordable buy: got %v", err)
	}
	after, _ := s.Portfolio(ctx, "u1")
	if after.Cash != before.Cash || after.Holdings["A"] != before.Holdings["A"] {
		t.Fatalf("failed buy mutated the portfolio")
	}
}

func TestBuyRespectsUnitCap(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()
	register(t, s, "u1")

	if _, err := s.AdminForceCash(ctx, "u1", 2_000_000_000); err != nil {
		t.Fatalf("force cash: %v", err)
	}
	if _, err := s.Buy(ctx, "u1", "A 9999999"); err != nil {
		t.Fatalf("buy to cap: %v", err)
	}
	if _, err := s.Buy(ctx, "u1", "A 1"); !errors.Is(err, market.ErrInvariant) {
		t.Fatalf("buy past cap: got %v", err)
	}
}

func TestSellFillsPartially(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()
	register(t, s, "u1")

	if _, err := s.Buy(ctx, "u1", "A 5"); err != nil {
		t.Fatalf("buy: %v", err)
	}
	// Asking for more than owned, and for items never owned, still
	// succeeds with short fills.
	res, err := s.Sell(ctx, "u1", "A 10, B 3")
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if len(res.Lines) != 2 {
		t.Fatalf("lines = %+v", res.Lines)
	}
	if res.Lines[0].Requested != 10 || res.Lines[0].Filled != 5 {
		t.Fatalf("A line = %+v", res.Lines[0])
	}
	if res.Lines[1].Filled != 0 {
		t.Fatalf("B line = %+v", res.Lines[1])
	}
	if res.TotalIncome != 500 {
		t.Fatalf("income = %d", res.TotalIncome)
	}
	pf, _ := s.Portfolio(ctx, "u1")
	if pf.Cash != market.StartingCash || pf.Holdings["A"] != 0 {
		t.Fatalf("after sell: cash %d holdings %v", pf.Cash, pf.Holdings)
	}
}

func TestRatioBuySpendsEverything(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()
	register(t, s, "u1")

	if _, err := s.AdminForceCash(ctx, "u1", 1000); err != nil {
		t.Fatalf("force cash: %v", err)
	}
	res, err := s.RatioBuy(ctx, "u1", "A 1:B 1")
	if err != nil {
		t.Fatalf("ratio buy: %v", err)
	}
	if res.Cash != 0 || res.TotalCost != 1000 {
		t.Fatalf("cash %d cost %d", res.Cash, res.TotalCost)
	}
	pf, _ := s.Portfolio(ctx, "u1")
	if pf.Holdings["A"] != 6 || pf.Holdings["B"] != 2 {
		t.Fatalf("holdings = %v", pf.Holdings)
	}
}

func TestRatioBuyRejectsMixedSyntax(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()
	register(t, s, "u1")

	if _, err := s.RatioBuy(ctx, "u1", "A 1:B 2, C 3"); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("mixed separators: got %v", err)
	}
}

func TestAdminTradesBypassLock(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()
	register(t, s, "u1")

	if _, err := s.SetTradingLocked(ctx, true); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := s.AdminBuy(ctx, "u1", "A 2"); err != nil {
		t.Fatalf("admin buy while locked: %v", err)
	}
	if _, err := s.AdminSell(ctx, "u1", "A 1"); err != nil {
		t.Fatalf("admin sell while locked: %v", err)
	}
	// Admin buys still cannot overdraw.
	if _, err := s.AdminForceCash(ctx, "u1", 50); err != nil {
		t.Fatalf("force cash: %v", err)
	}
	if _, err := s.AdminBuy(ctx, "u1", "A 1"); !errors.Is(err, market.ErrInvariant) {
		t.Fatalf("admin overdraw: got %v", err)
	}
}

func TestAdminForceCash(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()
	register(t, s, "u1")

	if _, err := s.Buy(ctx, "u1", "A 3"); err != nil {
		t.Fatalf("buy: %v", err)
	}
	pf, err := s.AdminForceCash(ctx, "u1", 777)
	if err != nil {
		t.Fatalf("force cash: %v", err)
	}
	if pf.Cash != 777 || pf.Holdings["A"] != 0 {
		t.Fatalf("forced portfolio = cash %d holdings %v", pf.Cash, pf.Holdings)
	}
	if _, err := s.AdminForceCash(ctx, "u1", -1); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("negative cash: got %v", err)
	}
}

func TestAdminClear(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()
	register(t, s, "u1")

	if _, err := s.Buy(ctx, "u1", "A 4, B 2"); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := s.SetTradingLocked(ctx, true); err != nil {
		t.Fatalf("lock: %v", err)
	}
	res, err := s.AdminClear(ctx, "u1")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if res.TotalIncome != 4*100+2*200 {
		t.Fatalf("income = %d", res.TotalIncome)
	}
	pf, _ := s.Portfolio(ctx, "u1")
	if pf.Cash != market.StartingCash {
		t.Fatalf("cash = %d", pf.Cash)
	}
	for code, q := range pf.Holdings {
		if q != 0 {
			t.Fatalf("item %s not cleared: %d", code, q)
		}
	}
}

func TestTradeUnknownParticipant(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	if _, err := s.Buy(context.Background(), "ghost", "A 1"); !errors.Is(err, market.ErrNotFound) {
		t.Fatalf("unknown participant: got %v", err)
	}
}
