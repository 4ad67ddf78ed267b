package market

import (
	"errors"
	"testing"
)

func TestResolveItem(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		ident string
		code  string
		ok    bool
	}{
		{"A", "A", true},
		{"a", "A", true},
		{" grain ", "A", true},
		{"GRAIN", "A", true},
		{"Steel", "B", true},
		{"C", "C", true},
		{"copper", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		code, ok := cfg.ResolveItem(tc.ident)
		if code != tc.code || ok != tc.ok {
			t.Fatalf("ResolveItem(%q) = (%q, %v) want (%q, %v)", tc.ident, code, ok, tc.code, tc.ok)
		}
	}
}

func TestShownPriceFollowsStagingAndFreeze(t *testing.T) {
	cfg := testConfig()
	staged := int64(150)
	cfg.Items["A"].StagedNextPrice = &staged

	pf := NewPortfolio("u1", ModeClassic)

	if got := pf.ShownPrice(cfg, "A"); got != 100 {
		t.Fatalf("before staging flips on: got %d want 100", got)
	}
	cfg.UsingStagedPrices = true
	if got := pf.ShownPrice(cfg, "A"); got != 150 {
		t.Fatalf("staged: got %d want 150", got)
	}
	pf.Frozen = true
	if got := pf.ShownPrice(cfg, "A"); got != 100 {
		t.Fatalf("frozen: got %d want 100", got)
	}
}

func TestTotalCash(t *testing.T) {
	cfg := testConfig()
	pf := NewPortfolio("u1", ModeClassic)
	pf.Cash = 250
	pf.Holdings["A"] = 3
	pf.Holdings["B"] = 1

	if got := pf.TotalCash(cfg); got != 250+3*100+100 {
		t.Fatalf("total cash = %d", got)
	}
}

func TestStartCashPerMode(t *testing.T) {
	if got := NewPortfolio("u1", ModeClassic).Cash; got != StartingCash {
		t.Fatalf("classic start cash = %d", got)
	}
	if got := NewPortfolio("u1", ModeElimination).Cash; got != StartingCash {
		t.Fatalf("elimination start cash = %d", got)
	}
	if got := NewPortfolio("u1", ModeApocalypse).Cash; got != ApocStartingCash {
		t.Fatalf("apocalypse start cash = %d", got)
	}
}

func TestParseGameMode(t *testing.T) {
	for _, s := range []string{"classic", "apocalypse", "elimination"} {
		if _, err := ParseGameMode(s); err != nil {
			t.Fatalf("mode %q: %v", s, err)
		}
	}
	if _, err := ParseGameMode("hardcore"); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown mode: got %v", err)
	}
}
