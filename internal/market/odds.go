package market

// scoreDelta maps a year's percent change to the adjustment applied to an
// item's up-probability score. Large gains push the score down hardest,
// large losses push it up hardest. Its key set doubles as the legal domain
// for manual change values in classic and elimination modes.
var scoreDelta = map[int]int{
	-80: 20, -75: 18, -70: 15, -60: 12, -50: 10, -45: 9, -40: 8, -35: 7,
	-30: 6, -25: 5, -20: 4, -15: 3, -10: 2, -5: 1, 0: 0, 5: -1, 10: -1,
	15: -2, 20: -2, 25: -3, 30: -3, 40: -4, 50: -5, 60: -6, 70: -7, 80: -8,
	90: -9, 100: -10, 150: -12, 200: -15, 300: -18, 400: -20,
}

// apocChangeDomain is the legal set of manual change values in apocalypse
// mode, where prices only ever fall.
var apocChangeDomain = map[int]struct{}{
	0: {}, -5: {}, -10: {}, -15: {}, -20: {}, -25: {}, -30: {},
	-40: {}, -50: {}, -60: {}, -70: {}, -75: {}, -80: {},
}

// LegalChange reports whether pct is an allowed percent change for the mode.
func LegalChange(mode GameMode, pct int) bool {
	if mode == ModeApocalypse {
		_, ok := apocChangeDomain[pct]
		return ok
	}
	_, ok := scoreDelta[pct]
	return ok
}

// CalculateOdds derives the up-probability (0..100) per item from an ordered
// change history. Every item starts at 50; each year's change adds its score
// delta, clamped to [0,100] after every single update so extreme streaks
// saturate instead of accumulating off-scale.
//
// Pure and deterministic: same input slice, same output.
func CalculateOdds(years []*YearChange) map[string]int {
	out := make(map[string]int, len(ItemCodes))
	for _, c := range ItemCodes {
		out[c] = 50
	}
	for _, y := range years {
		for _, c := range ItemCodes {
			pct, ok := y.Changes[c]
			if !ok {
				continue
			}
			out[c] = clampOdds(out[c] + scoreDelta[pct])
		}
	}
	return out
}

func clampOdds(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
