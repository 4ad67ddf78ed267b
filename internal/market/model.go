package market

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MaxPlayers   = 24
	MaxItemUnits = int64(9_999_999)

	// MaxItemPrice bounds admin-set base prices so a full-cap trade amount
	// stays far inside int64.
	MaxItemPrice = int64(1_000_000_000)

	StartingCash     = int64(500_000)
	ApocStartingCash = int64(1_000_000_000)

	// BaselineYear is the year the season opens at. Change records exist for
	// BaselineYear+1 .. FinalYear only.
	BaselineYear = 1
	FinalYear    = 11

	// Elimination cuts run once per settled year inside this window.
	ElimFirstYear = 5
	ElimLastYear  = 10
	ElimCutSize   = 3
)

// ItemCodes is the fixed slot order A..H.
var ItemCodes = []string{"A", "B", "C", "D", "E", "F", "G", "H"}

// Error classes. Every error returned by the engine wraps exactly one of
// these, so callers can route on errors.Is without string matching.
var (
	ErrValidation    = errors.New("validation error")
	ErrInvariant     = errors.New("invariant violation")
	ErrSequencing    = errors.New("sequencing error")
	ErrMode          = errors.New("mode error")
	ErrTradingLocked = errors.New("trading is locked")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("state conflict, retry")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

func sequencingf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSequencing, fmt.Sprintf(format, args...))
}

func modef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMode, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

type GameMode string

const (
	ModeClassic     GameMode = "classic"
	ModeApocalypse  GameMode = "apocalypse"
	ModeElimination GameMode = "elimination"
)

func ParseGameMode(s string) (GameMode, error) {
	switch GameMode(s) {
	case ModeClassic, ModeApocalypse, ModeElimination:
		return GameMode(s), nil
	}
	return "", validationf("unknown game mode %q", s)
}

// StartCash returns the signup cash for this mode.
func (m GameMode) StartCash() int64 {
	if m == ModeApocalypse {
		return ApocStartingCash
	}
	return StartingCash
}

// Item is one of the eight tradable slots.
type Item struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	CurrentPrice int64  `json:"current_price"`
	// StagedNextPrice is set only between stageNext and settle/revert.
	StagedNextPrice *int64 `json:"staged_next_price,omitempty"`
}

// Shown returns the price participants trade and are valued at right now.
func (it *Item) Shown(usingStaged bool) int64 {
	if usingStaged && it.StagedNextPrice != nil {
		return *it.StagedNextPrice
	}
	return it.CurrentPrice
}

// Config is the per-season market state. One logical instance per game;
// every operation loads it, mutates a copy, and writes it back guarded by
// Version.
type Config struct {
	Items             map[string]*Item `json:"items"`
	GameMode          GameMode         `json:"game_mode"`
	TradingLocked     bool             `json:"trading_locked"`
	UsingStagedPrices bool             `json:"using_staged_prices"`
	StagedYear        int              `json:"staged_year,omitempty"`
	LastSettledYear   int              `json:"last_settled_year"`
	ElimRankingPolicy RankingPolicy    `json:"elim_ranking_policy"`
	UpdatedAt         time.Time        `json:"updated_at"`
	Version           int64            `json:"version"`
}

// NewConfig builds a fresh season with the given item names in A..H order.
// Missing names fall back to the code itself.
func NewConfig(mode GameMode, names map[string]string, prices map[string]int64) *Config {
	items := make(map[string]*Item, len(ItemCodes))
	for _, c := range ItemCodes {
		name := names[c]
		if name == "" {
			name = c
		}
		items[c] = &Item{Code: c, Name: name, CurrentPrice: prices[c]}
	}
	return &Config{
		Items:             items,
		GameMode:          mode,
		LastSettledYear:   BaselineYear,
		ElimRankingPolicy: PolicySurvival,
	}
}

// ResolveItem maps a code or a configured item name (case-insensitive) to
// the canonical code.
func (c *Config) ResolveItem(ident string) (string, bool) {
	up := normalizeIdent(ident)
	for _, code := range ItemCodes {
		if up == code {
			return code, true
		}
	}
	for _, code := range ItemCodes {
		it := c.Items[code]
		if it != nil && normalizeIdent(it.Name) == up {
			return code, true
		}
	}
	return "", false
}

// Portfolio is one participant's ledger entry.
type Portfolio struct {
	ParticipantID string           `json:"participant_id"`
	Cash          int64            `json:"cash"`
	Holdings      map[string]int64 `json:"holdings"`
	Frozen        bool             `json:"frozen,omitempty"`

	Eliminated       bool  `json:"eliminated,omitempty"`
	EliminationYear  int   `json:"elimination_year,omitempty"`
	EliminationOrder int   `json:"elimination_order,omitempty"`
	EliminationCash  int64 `json:"elimination_cash,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// NewPortfolio opens a zeroed portfolio with mode-dependent starting cash.
func NewPortfolio(participantID string, mode GameMode) *Portfolio {
	holdings := make(map[string]int64, len(ItemCodes))
	for _, c := range ItemCodes {
		holdings[c] = 0
	}
	return &Portfolio{
		ParticipantID: participantID,
		Cash:          mode.StartCash(),
		Holdings:      holdings,
	}
}

// ShownPrice is the valuation price for this portfolio: staged price while
// staging is active, unless the portfolio is frozen.
func (p *Portfolio) ShownPrice(cfg *Config, code string) int64 {
	it := cfg.Items[code]
	if it == nil {
		return 0
	}
	return it.Shown(cfg.UsingStagedPrices && !p.Frozen)
}

// HoldingsValue values all holdings at this portfolio's shown prices.
func (p *Portfolio) HoldingsValue(cfg *Config) int64 {
	var total int64
	for _, code := range ItemCodes {
		if q := p.Holdings[code]; q > 0 {
			total += q * p.ShownPrice(cfg, code)
		}
	}
	return total
}

// TotalCash is unspent cash plus holdings value at shown prices.
func (p *Portfolio) TotalCash(cfg *Config) int64 {
	return p.Cash + p.HoldingsValue(cfg)
}

// PriceWithChange applies a percent move to a price. Rounding is half-up
// in exact decimal arithmetic and the result never goes below zero.
func PriceWithChange(base int64, pct int) int64 {
	next := decimal.NewFromInt(base).
		Mul(decimal.NewFromInt(int64(100 + pct))).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	if next < 0 {
		next = 0
	}
	return next
}

// YearChange is the locked record of one year's percent moves.
type YearChange struct {
	Year    int             `json:"year"`
	Changes map[string]int  `json:"changes"`
	Locked  bool            `json:"locked"`
	Meta    *GenerationMeta `json:"meta,omitempty"`
}

// GenerationMeta records how an auto-generated year was drawn, for audit.
type GenerationMeta struct {
	Source      string    `json:"source"`
	GeneratedAt int64     `json:"generated_at"`
	Rows        []DrawRow `json:"rows,omitempty"`
	ETU         ETUReport `json:"etu"`
	Checksum    string    `json:"checksum,omitempty"`
}

// SnapshotType distinguishes the two checkpoint kinds.
type SnapshotType string

const (
	SnapshotPreStage SnapshotType = "pre_stage"
	SnapshotRevert   SnapshotType = "revert"
)

// Snapshot captures item prices and every portfolio's cash/holdings at a
// checkpoint. Only one revert-type snapshot is retained at a time.
type Snapshot struct {
	ID         string              `json:"id"`
	Type       SnapshotType        `json:"type"`
	Year       int                 `json:"year"`
	Items      map[string]int64    `json:"items"`
	Portfolios []SnapshotPortfolio `json:"portfolios"`
	TakenAt    time.Time           `json:"taken_at"`
}

type SnapshotPortfolio struct {
	ParticipantID string           `json:"participant_id"`
	Cash          int64            `json:"cash"`
	Holdings      map[string]int64 `json:"holdings"`
}

type RankingPolicy string

const (
	PolicySurvival RankingPolicy = "survival"
	PolicyCash     RankingPolicy = "cash"
)

func ParseRankingPolicy(s string) (RankingPolicy, error) {
	switch RankingPolicy(s) {
	case PolicySurvival, PolicyCash:
		return RankingPolicy(s), nil
	case "":
		return PolicySurvival, nil
	}
	return "", validationf("unknown ranking policy %q", s)
}
