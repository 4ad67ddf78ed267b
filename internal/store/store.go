// Package store defines the persistence port for the market engine.
// Implementations: PostgreSQL (source of truth) and in-memory (tests and
// development). Writes to config and portfolios are compare-and-swap on a
// monotonic version field so concurrent engine instances cannot lose
// updates.
package store

import (
	"context"
	"errors"

	"stocksiege/internal/market"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrVersionConflict is returned when a save's expected version does
	// not match the stored one (a concurrent writer won).
	ErrVersionConflict = errors.New("store: version conflict")
)

type Store interface {
	// LoadConfig returns the season singleton, ErrNotFound before the first
	// resetSeason.
	LoadConfig(ctx context.Context) (*market.Config, error)

	// SaveConfig persists cfg if the stored version still equals
	// cfg.Version (0 creates), then bumps cfg.Version.
	SaveConfig(ctx context.Context, cfg *market.Config) error

	GetPortfolio(ctx context.Context, participantID string) (*market.Portfolio, error)

	// ListPortfolios returns every portfolio ordered by participant id.
	ListPortfolios(ctx context.Context) ([]*market.Portfolio, error)

	// SavePortfolio persists pf under the same CAS rule as SaveConfig.
	SavePortfolio(ctx context.Context, pf *market.Portfolio) error

	GetYearChange(ctx context.Context, year int) (*market.YearChange, error)

	// ListYearChanges returns all records in ascending year order.
	ListYearChanges(ctx context.Context) ([]*market.YearChange, error)

	PutYearChange(ctx context.Context, yc *market.YearChange) error

	// LatestSnapshot returns the newest snapshot among the given types,
	// ErrNotFound when none exists.
	LatestSnapshot(ctx context.Context, types ...market.SnapshotType) (*market.Snapshot, error)

	PutSnapshot(ctx context.Context, snap *market.Snapshot) error

	// DeleteSnapshots removes every snapshot of the given type.
	DeleteSnapshots(ctx context.Context, typ market.SnapshotType) error

	// Reset wipes the whole game instance: config, portfolios, year
	// changes, and snapshots.
	Reset(ctx context.Context) error
}
