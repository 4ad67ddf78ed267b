package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stocksiege/internal/market"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// The game's documents keep their document-store shape: each row is a JSONB
// body plus the columns the engine filters or CAS-guards on.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the game tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS siege_config (
			id          INT PRIMARY KEY,
			doc         JSONB NOT NULL,
			version     BIGINT NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS siege_portfolios (
			participant_id  TEXT PRIMARY KEY,
			doc             JSONB NOT NULL,
			version         BIGINT NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS siege_year_changes (
			year  INT PRIMARY KEY,
			doc   JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS siege_snapshots (
			id        TEXT PRIMARY KEY,
			type      TEXT NOT NULL,
			taken_at  TIMESTAMPTZ NOT NULL,
			doc       JSONB NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadConfig(ctx context.Context) (*market.Config, error) {
	var raw []byte
	var version int64
	err := s.pool.QueryRow(ctx,
		`SELECT doc, version FROM siege_config WHERE id = 1`).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var cfg market.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Version = version
	return &cfg, nil
}

func (s *PostgresStore) SaveConfig(ctx context.Context, cfg *market.Config) error {
	now := time.Now().UTC()
	next := cfg.Version + 1
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if cfg.Version == 0 {
		cmd, err := s.pool.Exec(ctx, `
			INSERT INTO siege_config (id, doc, version, updated_at)
			VALUES (1, $1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, raw, next, now)
		if err != nil {
			return fmt.Errorf("insert config: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	} else {
		cmd, err := s.pool.Exec(ctx, `
			UPDATE siege_config
			SET doc = $1, version = $2, updated_at = $3
			WHERE id = 1 AND version = $4
		`, raw, next, now, cfg.Version)
		if err != nil {
			return fmt.Errorf("update config: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	}
	cfg.Version = next
	return nil
}

func (s *PostgresStore) GetPortfolio(ctx context.Context, participantID string) (*market.Portfolio, error) {
	var raw []byte
	var version int64
	err := s.pool.QueryRow(ctx,
		`SELECT doc, version FROM siege_portfolios WHERE participant_id = $1`,
		participantID).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get portfolio %s: %w", participantID, err)
	}
	var pf market.Portfolio
	if err := json.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("decode portfolio %s: %w", participantID, err)
	}
	pf.Version = version
	return &pf, nil
}

func (s *PostgresStore) ListPortfolios(ctx context.Context) ([]*market.Portfolio, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc, version FROM siege_portfolios ORDER BY participant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.Portfolio
	for rows.Next() {
		var raw []byte
		var version int64
		if err := rows.Scan(&raw, &version); err != nil {
			return nil, err
		}
		var pf market.Portfolio
		if err := json.Unmarshal(raw, &pf); err != nil {
			return nil, fmt.Errorf("decode portfolio: %w", err)
		}
		pf.Version = version
		out = append(out, &pf)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SavePortfolio(ctx context.Context, pf *market.Portfolio) error {
	now := time.Now().UTC()
	next := pf.Version + 1
	raw, err := json.Marshal(pf)
	if err != nil {
		return fmt.Errorf("encode portfolio %s: %w", pf.ParticipantID, err)
	}

	if pf.Version == 0 {
		cmd, err := s.pool.Exec(ctx, `
			INSERT INTO siege_portfolios (participant_id, doc, version, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (participant_id) DO NOTHING
		`, pf.ParticipantID, raw, next, now)
		if err != nil {
			return fmt.Errorf("insert portfolio %s: %w", pf.ParticipantID, err)
		}
		if cmd.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	} else {
		cmd, err := s.pool.Exec(ctx, `
			UPDATE siege_portfolios
			SET doc = $1, version = $2, updated_at = $3
			WHERE participant_id = $4 AND version = $5
		`, raw, next, now, pf.ParticipantID, pf.Version)
		if err != nil {
			return fmt.Errorf("update portfolio %s: %w", pf.ParticipantID, err)
		}
		if cmd.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	}
	pf.Version = next
	return nil
}

func (s *PostgresStore) GetYearChange(ctx context.Context, year int) (*market.YearChange, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM siege_year_changes WHERE year = $1`, year).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get year change %d: %w", year, err)
	}
	var yc market.YearChange
	if err := json.Unmarshal(raw, &yc); err != nil {
		return nil, fmt.Errorf("decode year change %d: %w", year, err)
	}
	return &yc, nil
}

func (s *PostgresStore) ListYearChanges(ctx context.Context) ([]*market.YearChange, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM siege_year_changes ORDER BY year`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.YearChange
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var yc market.YearChange
		if err := json.Unmarshal(raw, &yc); err != nil {
			return nil, fmt.Errorf("decode year change: %w", err)
		}
		out = append(out, &yc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutYearChange(ctx context.Context, yc *market.YearChange) error {
	raw, err := json.Marshal(yc)
	if err != nil {
		return fmt.Errorf("encode year change %d: %w", yc.Year, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO siege_year_changes (year, doc)
		VALUES ($1, $2)
		ON CONFLICT (year) DO UPDATE SET doc = $2
	`, yc.Year, raw)
	return err
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context, types ...market.SnapshotType) (*market.Snapshot, error) {
	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}
	query := `SELECT doc FROM siege_snapshots ORDER BY taken_at DESC LIMIT 1`
	args := []any{}
	if len(typeNames) > 0 {
		query = `SELECT doc FROM siege_snapshots WHERE type = ANY($1) ORDER BY taken_at DESC LIMIT 1`
		args = append(args, typeNames)
	}

	var raw []byte
	err := s.pool.QueryRow(ctx, query, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	var snap market.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *PostgresStore) PutSnapshot(ctx context.Context, snap *market.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO siege_snapshots (id, type, taken_at, doc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET type = $2, taken_at = $3, doc = $4
	`, snap.ID, string(snap.Type), snap.TakenAt, raw)
	return err
}

func (s *PostgresStore) DeleteSnapshots(ctx context.Context, typ market.SnapshotType) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM siege_snapshots WHERE type = $1`, string(typ))
	return err
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		TRUNCATE siege_config, siege_portfolios, siege_year_changes, siege_snapshots
	`)
	return err
}
