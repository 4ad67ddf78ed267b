package market

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestClassifyDiff(t *testing.T) {
	tests := []struct {
		d      int
		group  DiffGroup
		forced bool
		pct    int
	}{
		{0, GroupZero, false, 0},
		{1, GroupZero, false, 0},
		{-45, GroupUpHigh, true, 400},
		{-99, GroupUpHigh, true, 400},
		{46, GroupDownHigh, true, -80},
		{99, GroupDownHigh, true, -80},
		{-1, GroupUpLow, false, 0},
		{-14, GroupUpLow, false, 0},
		{2, GroupDownLow, false, 0},
		{15, GroupDownLow, false, 0},
		{-15, GroupUpMed, false, 0},
		{-29, GroupUpMed, false, 0},
		{16, GroupDownMed, false, 0},
		{30, GroupDownMed, false, 0},
		{-30, GroupUpHigh, false, 0},
		{-44, GroupUpHigh, false, 0},
		{31, GroupDownHigh, false, 0},
		{45, GroupDownHigh, false, 0},
	}
	for _, tc := range tests {
		group, forced, pct := classifyDiff(tc.d)
		if group != tc.group || forced != tc.forced || pct != tc.pct {
			t.Fatalf("classifyDiff(%d) = (%s, %v, %d) want (%s, %v, %d)",
				tc.d, group, forced, pct, tc.group, tc.forced, tc.pct)
		}
	}
}

func testConfig() *Config {
	names := map[string]string{"A": "Grain", "B": "Steel"}
	prices := map[string]int64{}
	for _, c := range ItemCodes {
		prices[c] = 100
	}
	return NewConfig(ModeClassic, names, prices)
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := testConfig()
	odds := CalculateOdds(nil)

	a := Generate(rand.New(rand.NewSource(7)), 2, cfg, odds)
	b := Generate(rand.New(rand.NewSource(7)), 2, cfg, odds)
	if !reflect.DeepEqual(a.Rows, b.Rows) {
		t.Fatalf("same seed produced different rows")
	}
	if a.Checksum == "" || a.Checksum != b.Checksum {
		t.Fatalf("checksums differ: %q vs %q", a.Checksum, b.Checksum)
	}

	c := Generate(rand.New(rand.NewSource(8)), 2, cfg, odds)
	if reflect.DeepEqual(a.Rows, c.Rows) {
		t.Fatalf("different seeds produced identical rows")
	}
}

func TestGenerateRowsAreConsistent(t *testing.T) {
	cfg := testConfig()
	odds := CalculateOdds(nil)
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		gen := Generate(rng, 2, cfg, odds)
		if len(gen.Rows) != len(ItemCodes) {
			t.Fatalf("got %d rows want %d", len(gen.Rows), len(ItemCodes))
		}
		for _, row := range gen.Rows {
			if row.Rand < 1 || row.Rand > 100 {
				t.Fatalf("rand %d out of 1..100", row.Rand)
			}
			if row.Diff != row.Rand-row.UpProbability {
				t.Fatalf("diff %d does not match rand %d - prob %d", row.Diff, row.Rand, row.UpProbability)
			}
			if !LegalChange(ModeClassic, row.PercentChange) {
				t.Fatalf("illegal percent %d drawn", row.PercentChange)
			}
			switch {
			case row.Forced && row.Diff <= -45 && row.PercentChange != 400:
				t.Fatalf("diff %d must force +400, got %d", row.Diff, row.PercentChange)
			case row.Forced && row.Diff >= 46 && row.PercentChange != -80:
				t.Fatalf("diff %d must force -80, got %d", row.Diff, row.PercentChange)
			case row.Group == GroupZero && row.PercentChange != 0:
				t.Fatalf("zero group drew %d", row.PercentChange)
			case !row.Forced && (row.Group == GroupUpLow || row.Group == GroupUpMed || row.Group == GroupUpHigh) && row.PercentChange <= 0:
				t.Fatalf("up group %s drew %d", row.Group, row.PercentChange)
			case !row.Forced && (row.Group == GroupDownLow || row.Group == GroupDownMed || row.Group == GroupDownHigh) && row.PercentChange >= 0:
				t.Fatalf("down group %s drew %d", row.Group, row.PercentChange)
			}
		}
	}
}

func TestComputeETU(t *testing.T) {
	odds := map[string]int{"A": 80, "B": 70, "C": 65, "D": 90, "E": 50, "F": 41, "G": 59, "H": 30}
	rows := []DrawRow{
		{Code: "A", PercentChange: -10}, // expected up, fell: mismatch
		{Code: "B", PercentChange: 0},   // zero is always a mismatch
		{Code: "C", PercentChange: 25},  // match
		{Code: "D", PercentChange: 100}, // match
		{Code: "E", PercentChange: 400}, // 41..59 band, not eligible
		{Code: "F", PercentChange: -80},
		{Code: "G", PercentChange: -80},
		{Code: "H", PercentChange: -5}, // expected down, fell: match
	}
	rep := computeETU(rows, odds)
	if rep.Eligible != 5 {
		t.Fatalf("eligible = %d want 5", rep.Eligible)
	}
	if rep.Match != 3 || rep.Mismatch != 2 {
		t.Fatalf("match/mismatch = %d/%d want 3/2", rep.Match, rep.Mismatch)
	}
	if rep.Warn {
		t.Fatalf("warn should be false while matches lead")
	}

	rows[2].PercentChange = -5 // flip C to a mismatch
	rep = computeETU(rows, odds)
	if !rep.Warn {
		t.Fatalf("warn should fire with %d eligible and mismatch %d >= match %d", rep.Eligible, rep.Mismatch, rep.Match)
	}
}

func TestGeneratedYearChanges(t *testing.T) {
	gen := Generate(rand.New(rand.NewSource(3)), 4, testConfig(), CalculateOdds(nil))
	changes := gen.Changes()
	if len(changes) != len(ItemCodes) {
		t.Fatalf("got %d changes want %d", len(changes), len(ItemCodes))
	}
	for _, row := range gen.Rows {
		if changes[row.Code] != row.PercentChange {
			t.Fatalf("item %s: changes map %d != row %d", row.Code, changes[row.Code], row.PercentChange)
		}
	}
}
