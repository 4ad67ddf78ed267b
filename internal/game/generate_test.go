package game

import (
	"context"
	"errors"
	"testing"

	"stocksiege/internal/market"
)

func TestGenerateFlow(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()

	prev, err := s.PreviewGenerate(ctx)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if prev.Token == "" || prev.Draw.Year != 2 {
		t.Fatalf("preview = %+v", prev)
	}

	yc, err := s.CommitGenerate(ctx, prev.Token)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if yc.Year != 2 || !yc.Locked {
		t.Fatalf("committed record = %+v", yc)
	}
	if yc.Meta == nil || yc.Meta.Source != "generated" || yc.Meta.Checksum != prev.Draw.Checksum {
		t.Fatalf("meta = %+v", yc.Meta)
	}

	// The token is one-shot.
	if _, err := s.CommitGenerate(ctx, prev.Token); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("reused token: got %v", err)
	}
	// Year 2 is taken until it settles.
	if _, err := s.PreviewGenerate(ctx); !errors.Is(err, market.ErrSequencing) {
		t.Fatalf("second generate for same year: got %v", err)
	}
}

func TestCommitRejectsStalePreview(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()

	prev, err := s.PreviewGenerate(ctx)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	// A manual record lands on year 2 before the preview commits.
	if _, err := s.SetYearChange(ctx, flatChanges(0)); err != nil {
		t.Fatalf("set year change: %v", err)
	}
	if _, err := s.CommitGenerate(ctx, prev.Token); !errors.Is(err, market.ErrSequencing) {
		t.Fatalf("stale commit: got %v", err)
	}
}

func TestGenerateBlockedWhileStaged(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()

	if _, err := s.SetYearChange(ctx, flatChanges(0)); err != nil {
		t.Fatalf("set year change: %v", err)
	}
	if _, err := s.StageNext(ctx, 2); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if _, err := s.PreviewGenerate(ctx); !errors.Is(err, market.ErrSequencing) {
		t.Fatalf("generate while staged: got %v", err)
	}
	if _, err := s.SetYearChange(ctx, flatChanges(0)); !errors.Is(err, market.ErrSequencing) {
		t.Fatalf("manual change while staged: got %v", err)
	}
}

func TestGenerateStopsAfterFinalYear(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)

	for y := market.BaselineYear + 1; y <= market.FinalYear; y++ {
		advanceYear(t, s)
	}
	if _, err := s.PreviewGenerate(context.Background()); !errors.Is(err, market.ErrSequencing) {
		t.Fatalf("generate past final year: got %v", err)
	}
}

func TestSetYearChangeValidation(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeClassic)
	ctx := context.Background()

	bad := flatChanges(0)
	bad["A"] = 7 // not in the legal domain
	if _, err := s.SetYearChange(ctx, bad); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("illegal percent: got %v", err)
	}

	missing := flatChanges(0)
	delete(missing, "H")
	if _, err := s.SetYearChange(ctx, missing); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("missing item: got %v", err)
	}

	unknown := flatChanges(0)
	unknown["Z"] = 0
	if _, err := s.SetYearChange(ctx, unknown); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("unknown item: got %v", err)
	}

	// Item names resolve like they do in orders.
	byName := flatChanges(0)
	delete(byName, "A")
	byName["grain"] = -80
	yc, err := s.SetYearChange(ctx, byName)
	if err != nil {
		t.Fatalf("set by name: %v", err)
	}
	if yc.Changes["A"] != -80 {
		t.Fatalf("changes = %+v", yc.Changes)
	}
	if yc.Meta == nil || yc.Meta.Source != "manual" {
		t.Fatalf("meta = %+v", yc.Meta)
	}
}

func TestApocalypseChanges(t *testing.T) {
	s := newTestService(t)
	newSeason(t, s, market.ModeApocalypse)
	ctx := context.Background()

	if _, err := s.PreviewGenerate(ctx); !errors.Is(err, market.ErrMode) {
		t.Fatalf("apocalypse generation: got %v", err)
	}
	if _, err := s.SetYearChange(ctx, flatChanges(5)); !errors.Is(err, market.ErrValidation) {
		t.Fatalf("upward apocalypse change: got %v", err)
	}
	if _, err := s.SetYearChange(ctx, flatChanges(-40)); err != nil {
		t.Fatalf("legal apocalypse change: %v", err)
	}
}
