package game

import (
	"context"
	"errors"
	"testing"

	"stocksiege/internal/market"
)

// advanceTo settles quiet years until the given year is the last settled.
func advanceTo(t *testing.T, s *Service, year int) {
	t.Helper()
	cfg, err := s.Market(context.Background())
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	for cfg.LastSettledYear < year {
		advanceYear(t, s)
		cfg.LastSettledYear++
	}
}

func TestBottomCutModeAndWindow(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()

	if _, err := s.BottomCut(ctx); !errors.Is(err, market.ErrMode) {
		t.Fatalf("cut in classic mode: got %v", err)
	}

	newSeason(t, s, market.ModeElimination)
	for _, id := range []string{"u1", "u2", "u3", "u4", "u5", "u6"} {
		register(t, s, id)
	}
	advanceTo(t, s, market.ElimFirstYear-1)
	if _, err := s.BottomCut(ctx); !errors.Is(err, market.ErrSequencing) {
		t.Fatalf("cut before the window: got %v", err)
	}
}

func TestBottomCut(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeElimination)
	ctx := context.Background()

	ids := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	for _, id := range ids {
		register(t, s, id)
	}
	cash := map[string]int64{"u1": 100, "u2": 100, "u3": 50, "u4": 1000, "u5": 2000, "u6": 3000}
	for id, c := range cash {
		if _, err := s.AdminForceCash(ctx, id, c); err != nil {
			t.Fatalf("force cash %s: %v", id, err)
		}
	}
	advanceTo(t, s, market.ElimFirstYear)

	res, err := s.BottomCut(ctx)
	if err != nil {
		t.Fatalf("cut: %v", err)
	}
	if res.Year != market.ElimFirstYear || len(res.Eliminated) != market.ElimCutSize {
		t.Fatalf("cut result = %+v", res)
	}
	// Poorest first; the 100-cash tie breaks by participant id.
	want := []string{"u3", "u1", "u2"}
	for i, e := range res.Eliminated {
		if e.ParticipantID != want[i] || e.Order != i+1 {
			t.Fatalf("entry %d = %+v want %s", i, e, want[i])
		}
	}

	// Once per settled year.
	if _, err := s.BottomCut(ctx); !errors.Is(err, market.ErrSequencing) {
		t.Fatalf("repeat cut: got %v", err)
	}

	// Eliminated participants are out of the market for good.
	if _, err := s.Buy(ctx, "u3", "A 1"); !errors.Is(err, market.ErrInvariant) {
		t.Fatalf("eliminated buy: got %v", err)
	}

	pf, _ := s.Portfolio(ctx, "u3")
	if !pf.Eliminated || pf.EliminationYear != market.ElimFirstYear || pf.EliminationCash != 50 {
		t.Fatalf("eliminated portfolio = %+v", pf)
	}
}

func TestBottomCutNeedsSurvivors(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeElimination)
	ctx := context.Background()
	register(t, s, "u1")
	register(t, s, "u2")

	advanceTo(t, s, market.ElimFirstYear)
	if _, err := s.BottomCut(ctx); !errors.Is(err, market.ErrSequencing) {
		t.Fatalf("cut with too few survivors: got %v", err)
	}
}

func TestBottomCutTakesLastThreeSurvivors(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeElimination)
	ctx := context.Background()

	cash := map[string]int64{"u1": 100, "u2": 200, "u3": 300}
	for _, id := range []string{"u1", "u2", "u3"} {
		register(t, s, id)
		if _, err := s.AdminForceCash(ctx, id, cash[id]); err != nil {
			t.Fatalf("force cash %s: %v", id, err)
		}
	}
	advanceTo(t, s, market.ElimFirstYear)

	res, err := s.BottomCut(ctx)
	if err != nil {
		t.Fatalf("cut with exactly three survivors: %v", err)
	}
	want := []string{"u1", "u2", "u3"}
	if len(res.Eliminated) != market.ElimCutSize {
		t.Fatalf("cut result = %+v", res)
	}
	for i, e := range res.Eliminated {
		if e.ParticipantID != want[i] {
			t.Fatalf("entry %d = %+v want %s", i, e, want[i])
		}
	}
	// Nobody is left standing.
	pfs, err := s.Portfolios(ctx)
	if err != nil {
		t.Fatalf("portfolios: %v", err)
	}
	for _, pf := range pfs {
		if !pf.Eliminated {
			t.Fatalf("%s survived a full-field cut", pf.ParticipantID)
		}
	}
}

func TestFinalRanking(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeElimination)
	ctx := context.Background()

	ids := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	for _, id := range ids {
		register(t, s, id)
	}
	cash := map[string]int64{"u1": 100, "u2": 100, "u3": 50, "u4": 1000, "u5": 2000, "u6": 3000}
	for id, c := range cash {
		if _, err := s.AdminForceCash(ctx, id, c); err != nil {
			t.Fatalf("force cash %s: %v", id, err)
		}
	}

	advanceTo(t, s, market.ElimFirstYear)
	if _, err := s.BottomCut(ctx); err != nil { // removes u3, u1, u2
		t.Fatalf("cut: %v", err)
	}

	if _, err := s.FinalRanking(ctx, ""); !errors.Is(err, market.ErrSequencing) {
		t.Fatalf("ranking before the final year: got %v", err)
	}
	advanceTo(t, s, market.FinalYear)

	// Survival: survivors by cash, then the eliminated. The u1/u2 cash tie
	// resolves by cut order: cut later ranks higher.
	rank, err := s.FinalRanking(ctx, market.PolicySurvival)
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	wantOrder := []string{"u6", "u5", "u4", "u2", "u1", "u3"}
	for i, row := range rank.Rows {
		if row.ParticipantID != wantOrder[i] || row.Rank != i+1 {
			t.Fatalf("row %d = %+v want %s", i, row, wantOrder[i])
		}
	}
	if rank.TopTie != nil {
		t.Fatalf("unexpected top tie: %v", rank.TopTie)
	}

	// Cash policy scores the eliminated at their frozen cut-time cash.
	rank, err = s.FinalRanking(ctx, market.PolicyCash)
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	wantOrder = []string{"u6", "u5", "u4", "u1", "u2", "u3"}
	for i, row := range rank.Rows {
		if row.ParticipantID != wantOrder[i] {
			t.Fatalf("row %d = %+v want %s", i, row, wantOrder[i])
		}
	}
}

func TestFinalRankingReportsTopTie(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeElimination)
	ctx := context.Background()
	register(t, s, "u1")
	register(t, s, "u2")
	register(t, s, "u3")
	for _, id := range []string{"u1", "u2"} {
		if _, err := s.AdminForceCash(ctx, id, 5000); err != nil {
			t.Fatalf("force cash: %v", err)
		}
	}
	if _, err := s.AdminForceCash(ctx, "u3", 10); err != nil {
		t.Fatalf("force cash: %v", err)
	}
	advanceTo(t, s, market.FinalYear)

	rank, err := s.FinalRanking(ctx, market.PolicyCash)
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if len(rank.TopTie) != 2 || rank.TopTie[0] != "u1" || rank.TopTie[1] != "u2" {
		t.Fatalf("top tie = %v", rank.TopTie)
	}
}
