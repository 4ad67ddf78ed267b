package game

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stocksiege/internal/market"
)

// CutEntry is one participant removed by a bottom cut.
type CutEntry struct {
	ParticipantID string `json:"participant_id"`
	Cash          int64  `json:"cash"`
	Order         int    `json:"order"`
}

type CutResult struct {
	Year       int        `json:"year"`
	Eliminated []CutEntry `json:"eliminated"`
}

// FinalRow is one line of the elimination-mode final ranking.
type FinalRow struct {
	Rank             int    `json:"rank"`
	ParticipantID    string `json:"participant_id"`
	Cash             int64  `json:"cash"`
	Eliminated       bool   `json:"eliminated,omitempty"`
	EliminationYear  int    `json:"elimination_year,omitempty"`
	EliminationOrder int    `json:"elimination_order,omitempty"`
}

// FinalRanking is the season's outcome. TopTie lists every participant
// sharing the winning cash amount when more than one does.
type FinalRanking struct {
	Policy market.RankingPolicy `json:"policy"`
	Rows   []FinalRow           `json:"rows"`
	TopTie []string             `json:"top_tie,omitempty"`
}

// BottomCut eliminates the three poorest survivors by unspent cash. It runs
// once per settled year inside the cut window; the frozen cash recorded at
// the cut is what the participant carries into the final ranking.
func (s *Service) BottomCut(ctx context.Context) (*CutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.GameMode != market.ModeElimination {
		return nil, fmt.Errorf("%w: bottom cuts run in elimination mode only", market.ErrMode)
	}
	year := cfg.LastSettledYear
	if year < market.ElimFirstYear || year > market.ElimLastYear {
		return nil, fmt.Errorf("%w: cuts run after settling years %d..%d, current year is %d", market.ErrSequencing, market.ElimFirstYear, market.ElimLastYear, year)
	}

	pfs, err := s.store.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}
	var survivors []*market.Portfolio
	for _, pf := range pfs {
		if pf.Eliminated {
			if pf.EliminationYear == year {
				return nil, fmt.Errorf("%w: the year %d cut already ran", market.ErrSequencing, year)
			}
			continue
		}
		survivors = append(survivors, pf)
	}
	if len(survivors) < market.ElimCutSize {
		return nil, fmt.Errorf("%w: only %d survivors remain, a cut needs at least %d", market.ErrSequencing, len(survivors), market.ElimCutSize)
	}

	// Poorest first; identical cash resolves by participant id so reruns
	// of the same state cut the same people.
	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].Cash != survivors[j].Cash {
			return survivors[i].Cash < survivors[j].Cash
		}
		return survivors[i].ParticipantID < survivors[j].ParticipantID
	})

	res := &CutResult{Year: year}
	for i := 0; i < market.ElimCutSize; i++ {
		pf := survivors[i]
		pf.Eliminated = true
		pf.EliminationYear = year
		pf.EliminationOrder = i + 1
		pf.EliminationCash = pf.Cash
		pf.UpdatedAt = time.Now().UTC()
		if err := s.store.SavePortfolio(ctx, pf); err != nil {
			return nil, mapStoreErr(err)
		}
		res.Eliminated = append(res.Eliminated, CutEntry{
			ParticipantID: pf.ParticipantID,
			Cash:          pf.Cash,
			Order:         pf.EliminationOrder,
		})
	}
	s.log.Info("bottom cut executed", "year", year, "eliminated", len(res.Eliminated))
	return res, nil
}

// FinalRanking orders every participant once the last year settled. The
// survival policy ranks survivors above the eliminated; the cash policy
// ranks everyone by cash alone, with eliminated participants scored at
// their frozen elimination-time cash.
func (s *Service) FinalRanking(ctx context.Context, policy market.RankingPolicy) (*FinalRanking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.config(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.GameMode != market.ModeElimination {
		return nil, fmt.Errorf("%w: final rankings exist in elimination mode only", market.ErrMode)
	}
	if cfg.LastSettledYear < market.FinalYear {
		return nil, fmt.Errorf("%w: the season ends after year %d settles, currently at %d", market.ErrSequencing, market.FinalYear, cfg.LastSettledYear)
	}
	if policy == "" {
		policy = cfg.ElimRankingPolicy
	}

	pfs, err := s.store.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]FinalRow, 0, len(pfs))
	for _, pf := range pfs {
		cash := pf.Cash
		if pf.Eliminated {
			cash = pf.EliminationCash
		}
		rows = append(rows, FinalRow{
			ParticipantID:    pf.ParticipantID,
			Cash:             cash,
			Eliminated:       pf.Eliminated,
			EliminationYear:  pf.EliminationYear,
			EliminationOrder: pf.EliminationOrder,
		})
	}

	switch policy {
	case market.PolicyCash:
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Cash != rows[j].Cash {
				return rows[i].Cash > rows[j].Cash
			}
			return rows[i].ParticipantID < rows[j].ParticipantID
		})
	case market.PolicySurvival:
		sort.Slice(rows, func(i, j int) bool {
			a, b := rows[i], rows[j]
			if a.Eliminated != b.Eliminated {
				return !a.Eliminated
			}
			if a.Cash != b.Cash {
				return a.Cash > b.Cash
			}
			if a.Eliminated {
				// Surviving longer, then being cut later within the
				// same year, ranks higher.
				if a.EliminationYear != b.EliminationYear {
					return a.EliminationYear > b.EliminationYear
				}
				if a.EliminationOrder != b.EliminationOrder {
					return a.EliminationOrder > b.EliminationOrder
				}
			}
			return a.ParticipantID < b.ParticipantID
		})
	default:
		return nil, fmt.Errorf("%w: unknown ranking policy %q", market.ErrValidation, policy)
	}

	out := &FinalRanking{Policy: policy}
	for i, r := range rows {
		r.Rank = i + 1
		out.Rows = append(out.Rows, r)
	}
	if len(out.Rows) > 1 {
		top := out.Rows[0].Cash
		for _, r := range out.Rows {
			if r.Cash == top {
				out.TopTie = append(out.TopTie, r.ParticipantID)
			}
		}
		if len(out.TopTie) < 2 {
			out.TopTie = nil
		}
	}
	return out, nil
}
