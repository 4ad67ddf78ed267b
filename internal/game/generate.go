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

// GeneratePreview is an uncommitted draw. Nothing is persisted until the
// token is committed; abandoning a preview has no effect on the game.
type GeneratePreview struct {
	Token string                `json:"token"`
	Draw  *market.GeneratedYear `json:"draw"`
}

// nextChangeYear validates that a change record may be created right now
// and returns the only year it may target.
func (s *Service) nextChangeYear(ctx context.Context, cfg *market.Config) (int, error) {
	if cfg.UsingStagedPrices {
		return 0, fmt.Errorf("%w: year %d is staged, settle or revert before generating", market.ErrSequencing, cfg.StagedYear)
	}
	year := cfg.LastSettledYear + 1
	if year > market.FinalYear {
		return 0, fmt.Errorf("%w: season is complete at year %d", market.ErrSequencing, market.FinalYear)
	}
	if _, err := s.store.GetYearChange(ctx, year); err == nil {
		return 0, fmt.Errorf("%w: year %d already has a locked change record", market.ErrSequencing, year)
	} else if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	return year, nil
}

// PreviewGenerate draws the next year's changes from owner odds and parks
// the result behind a one-shot token.
func (s *Service) PreviewGenerate(ctx context.Context) (*GeneratePreview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.GameMode == market.ModeApocalypse {
		return nil, fmt.Errorf("%w: apocalypse seasons take manual changes only", market.ErrMode)
	}
	year, err := s.nextChangeYear(ctx, cfg)
	if err != nil {
		return nil, err
	}
	locked, err := s.lockedYears(ctx)
	if err != nil {
		return nil, err
	}

	draw := market.Generate(s.rand, year, cfg, market.CalculateOdds(locked))
	token := uuid.NewString()
	s.previews[token] = draw
	if draw.ETU.Warn {
		s.log.Warn("generated draw tracks odds poorly",
			"year", year, "eligible", draw.ETU.Eligible, "mismatch", draw.ETU.Mismatch)
	}
	s.log.Info("generation previewed", "year", year, "token", token, "checksum", draw.Checksum)
	return &GeneratePreview{Token: token, Draw: draw}, nil
}

// CommitGenerate persists a previewed draw as the locked record for its
// year. The sequencing check reruns at commit time: if the season moved on
// since the preview, the commit is rejected instead of writing a stale year.
func (s *Service) CommitGenerate(ctx context.Context, token string) (*market.YearChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draw, ok := s.previews[token]
	if !ok {
		return nil, fmt.Errorf("%w: unknown or expired preview token", market.ErrValidation)
	}
	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	year, err := s.nextChangeYear(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if year != draw.Year {
		delete(s.previews, token)
		return nil, fmt.Errorf("%w: preview targets year %d but the next open year is %d", market.ErrSequencing, draw.Year, year)
	}

	yc := &market.YearChange{
		Year:    draw.Year,
		Changes: draw.Changes(),
		Locked:  true,
		Meta: &market.GenerationMeta{
			Source:      "generated",
			GeneratedAt: time.Now().Unix(),
			Rows:        draw.Rows,
			ETU:         draw.ETU,
			Checksum:    draw.Checksum,
		},
	}
	if err := s.store.PutYearChange(ctx, yc); err != nil {
		return nil, err
	}
	delete(s.previews, token)
	s.log.Info("generation committed", "year", yc.Year, "checksum", draw.Checksum)
	return yc, nil
}

// DiscardPreview drops a parked draw without committing it.
func (s *Service) DiscardPreview(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.previews, token)
}

// SetYearChange writes a hand-authored change record for the next open
// year, under the same sequencing rules as generation. Every item needs a
// percent legal for the current mode.
func (s *Service) SetYearChange(ctx context.Context, changes map[string]int) (*market.YearChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	year, err := s.nextChangeYear(ctx, cfg)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]int, len(market.ItemCodes))
	for ident, pct := range changes {
		code, ok := cfg.ResolveItem(ident)
		if !ok {
			return nil, fmt.Errorf("%w: unknown item %q", market.ErrValidation, ident)
		}
		if !market.LegalChange(cfg.GameMode, pct) {
			return nil, fmt.Errorf("%w: %+d%% is not a legal change for item %s in %s mode", market.ErrValidation, pct, code, cfg.GameMode)
		}
		resolved[code] = pct
	}
	for _, code := range market.ItemCodes {
		if _, ok := resolved[code]; !ok {
			return nil, fmt.Errorf("%w: missing change for item %s", market.ErrValidation, code)
		}
	}

	yc := &market.YearChange{
		Year:    year,
		Changes: resolved,
		Locked:  true,
		Meta: &market.GenerationMeta{
			Source:      "manual",
			GeneratedAt: time.Now().Unix(),
		},
	}
	if err := s.store.PutYearChange(ctx, yc); err != nil {
		return nil, err
	}
	s.log.Info("manual change recorded", "year", year)
	return yc, nil
}

// YearHistory returns all locked change records in ascending year order.
func (s *Service) YearHistory(ctx context.Context) ([]*market.YearChange, error) {
	if _, err := s.config(ctx); err != nil {
		return nil, err
	}
	return s.lockedYears(ctx)
}
