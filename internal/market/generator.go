package market

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
)

// DiffGroup classifies the signed difference between the uniform draw and
// an item's up-probability.
type DiffGroup string

const (
	GroupZero     DiffGroup = "ZERO"
	GroupUpLow    DiffGroup = "UP_LOW"
	GroupUpMed    DiffGroup = "UP_MED"
	GroupUpHigh   DiffGroup = "UP_HIGH"
	GroupDownLow  DiffGroup = "DOWN_LOW"
	GroupDownMed  DiffGroup = "DOWN_MED"
	GroupDownHigh DiffGroup = "DOWN_HIGH"
)

// DrawRow is the full audit trail for one item's draw.
type DrawRow struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	UpProbability int       `json:"up_probability"`
	Rand          int       `json:"rand"`
	Diff          int       `json:"diff"`
	Group         DiffGroup `json:"group"`
	PercentChange int       `json:"percent_change"`
	Forced        bool      `json:"forced"`
}

// ETUReport is the "expected trend unexpectedness" diagnostic: how often
// the realized direction defied a decisive probability. Advisory only.
type ETUReport struct {
	Eligible int  `json:"eligible"`
	Match    int  `json:"match"`
	Mismatch int  `json:"mismatch"`
	Warn     bool `json:"warn"`
}

// GeneratedYear is one complete draw for a year, ready to preview or commit.
type GeneratedYear struct {
	Year     int       `json:"year"`
	Rows     []DrawRow `json:"rows"`
	ETU      ETUReport `json:"etu"`
	Checksum string    `json:"checksum"`
}

const (
	forcedUpPct   = 400
	forcedDownPct = -80
)

type weightedPct struct {
	pct    int
	weight int
}

// Band candidate tables: the legal percent values a non-forced draw can land
// on, weighted toward the milder end of each band. All values are keys of
// the score-delta table.
var upBands = map[DiffGroup][]weightedPct{
	GroupUpLow: {
		{5, 30}, {10, 25}, {15, 20}, {20, 15}, {25, 10},
	},
	GroupUpMed: {
		{30, 25}, {40, 25}, {50, 20}, {60, 15}, {70, 10}, {80, 5},
	},
	GroupUpHigh: {
		{90, 20}, {100, 20}, {150, 25}, {200, 15}, {300, 12}, {400, 8},
	},
}

var downBands = map[DiffGroup][]weightedPct{
	GroupDownLow: {
		{-5, 30}, {-10, 25}, {-15, 20}, {-20, 15}, {-25, 10},
	},
	GroupDownMed: {
		{-30, 30}, {-35, 25}, {-40, 20}, {-45, 15}, {-50, 10},
	},
	GroupDownHigh: {
		{-60, 30}, {-70, 25}, {-75, 25}, {-80, 20},
	},
}

// classifyDiff buckets d = r - p into the seven fixed ranges. The forced
// percent is returned for the two extreme buckets and for ZERO.
func classifyDiff(d int) (group DiffGroup, forced bool, forcedPct int) {
	switch {
	case d == 0 || d == 1:
		return GroupZero, false, 0
	case d <= -45:
		return GroupUpHigh, true, forcedUpPct
	case d >= 46:
		return GroupDownHigh, true, forcedDownPct
	case d >= -14 && d <= -1:
		return GroupUpLow, false, 0
	case d >= 2 && d <= 15:
		return GroupDownLow, false, 0
	case d >= -29 && d <= -15:
		return GroupUpMed, false, 0
	case d >= 16 && d <= 30:
		return GroupDownMed, false, 0
	case d >= -44 && d <= -30:
		return GroupUpHigh, false, 0
	default: // 31..45
		return GroupDownHigh, false, 0
	}
}

func weightedChoice(rng *rand.Rand, candidates []weightedPct) int {
	total := 0
	for _, c := range candidates {
		total += c.weight
	}
	pick := rng.Intn(total)
	for _, c := range candidates {
		pick -= c.weight
		if pick < 0 {
			return c.pct
		}
	}
	return candidates[len(candidates)-1].pct
}

// drawItem resolves one item's percent change from its up-probability.
func drawItem(rng *rand.Rand, code, name string, upProb int) DrawRow {
	r := rng.Intn(100) + 1 // uniform 1..100
	d := r - upProb
	group, forced, forcedPct := classifyDiff(d)

	row := DrawRow{
		Code:          code,
		Name:          name,
		UpProbability: upProb,
		Rand:          r,
		Diff:          d,
		Group:         group,
		Forced:        forced,
	}
	switch {
	case forced:
		row.PercentChange = forcedPct
	case group == GroupZero:
		row.PercentChange = 0
	case group == GroupUpLow || group == GroupUpMed || group == GroupUpHigh:
		row.PercentChange = weightedChoice(rng, upBands[group])
	default:
		row.PercentChange = weightedChoice(rng, downBands[group])
	}
	return row
}

// Generate draws a full year of percent changes from the per-item
// up-probabilities. The caller owns the rand source; generation has no side
// effects, so the same seeded source replays identically.
func Generate(rng *rand.Rand, year int, cfg *Config, odds map[string]int) *GeneratedYear {
	rows := make([]DrawRow, 0, len(ItemCodes))
	for _, code := range ItemCodes {
		p, ok := odds[code]
		if !ok {
			p = 50
		}
		name := code
		if it := cfg.Items[code]; it != nil {
			name = it.Name
		}
		rows = append(rows, drawItem(rng, code, name, p))
	}

	gen := &GeneratedYear{
		Year: year,
		Rows: rows,
		ETU:  computeETU(rows, odds),
	}
	gen.Checksum = checksum(gen)
	return gen
}

// computeETU counts realized directions against expectations for items with
// a decisive probability (outside 41..59). A zero change always counts as a
// mismatch. The warning never blocks a commit.
func computeETU(rows []DrawRow, odds map[string]int) ETUReport {
	var rep ETUReport
	for _, row := range rows {
		p := odds[row.Code]
		if p >= 41 && p <= 59 {
			continue
		}
		rep.Eligible++
		expectUp := p >= 60
		switch {
		case row.PercentChange == 0:
			rep.Mismatch++
		case (row.PercentChange > 0) == expectUp:
			rep.Match++
		default:
			rep.Mismatch++
		}
	}
	rep.Warn = rep.Eligible >= 4 && rep.Mismatch >= rep.Match
	return rep
}

// Changes flattens the draw into the per-code percent map a YearChange
// record stores.
func (g *GeneratedYear) Changes() map[string]int {
	out := make(map[string]int, len(g.Rows))
	for _, row := range g.Rows {
		out[row.Code] = row.PercentChange
	}
	return out
}

// checksum hashes the canonical JSON form of the draw so a committed record
// can be matched to its preview byte-for-byte.
func checksum(g *GeneratedYear) string {
	rows := make([]DrawRow, len(g.Rows))
	copy(rows, g.Rows)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	payload := struct {
		Year int       `json:"year"`
		Rows []DrawRow `json:"rows"`
	}{g.Year, rows}
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("sha256:%s", hex.EncodeToString(sum[:]))
}
