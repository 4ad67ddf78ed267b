package store

import (
	"context"
	"errors"
	"testing"

	"stocksiege/internal/market"
)

func TestSaveConfigVersionConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cfg := market.NewConfig(market.ModeClassic, nil, map[string]int64{"A": 100})
	if err := s.SaveConfig(ctx, cfg); err != nil {
		t.Fatalf("initial save: %v", err)
	}
	if cfg.Version != 1 {
		t.Fatalf("version after create = %d, want 1", cfg.Version)
	}

	// Two readers load the same version; the second writer must lose.
	first, err := s.LoadConfig(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	second, err := s.LoadConfig(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	first.TradingLocked = true
	if err := s.SaveConfig(ctx, first); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	second.GameMode = market.ModeApocalypse
	if err := s.SaveConfig(ctx, second); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale writer: got %v, want ErrVersionConflict", err)
	}

	// The losing write left nothing behind.
	stored, err := s.LoadConfig(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !stored.TradingLocked || stored.GameMode != market.ModeClassic {
		t.Fatalf("stored config = %+v", stored)
	}
}

func TestSavePortfolioVersionConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	pf := market.NewPortfolio("u1", market.ModeClassic)
	if err := s.SavePortfolio(ctx, pf); err != nil {
		t.Fatalf("initial save: %v", err)
	}

	first, err := s.GetPortfolio(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := s.GetPortfolio(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.Cash = 1
	if err := s.SavePortfolio(ctx, first); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	second.Cash = 2
	if err := s.SavePortfolio(ctx, second); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale writer: got %v, want ErrVersionConflict", err)
	}

	stored, err := s.GetPortfolio(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Cash != 1 {
		t.Fatalf("cash = %d, want the first writer's 1", stored.Cash)
	}
}

func TestSaveConfigRequiresZeroVersionOnCreate(t *testing.T) {
	s := NewMemoryStore()
	cfg := market.NewConfig(market.ModeClassic, nil, nil)
	cfg.Version = 7
	if err := s.SaveConfig(context.Background(), cfg); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("create with nonzero version: got %v", err)
	}
}
