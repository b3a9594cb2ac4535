// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jaekyeom/splitfeed/internal/store"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool querier
}

// New connects a Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

const selectMarathonCols = `
SELECT id, name, url_template, usedata, total_distance_km, refresh_sec, enabled, cert_url_template, updated_at
FROM marathons`

// ListEnabledMarathons returns the sources the engine should poll.
func (s *Store) ListEnabledMarathons(ctx context.Context) ([]tracker.Marathon, error) {
	rows, err := s.pool.Query(ctx, selectMarathonCols+` WHERE enabled ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list enabled marathons: %w", err)
	}
	defer rows.Close()
	return scanMarathons(rows)
}

const selectParticipantCols = `
SELECT id, marathon_id, alias, nameorbibno, active, race_label, race_total_km, cert_key
FROM participants`

// ListActiveParticipants returns the runners monitored for one marathon.
func (s *Store) ListActiveParticipants(ctx context.Context, marathonID int64) ([]tracker.Participant, error) {
	rows, err := s.pool.Query(ctx, selectParticipantCols+` WHERE marathon_id = $1 AND active ORDER BY id;`, marathonID)
	if err != nil {
		return nil, fmt.Errorf("list active participants: %w", err)
	}
	defer rows.Close()
	return scanParticipants(rows)
}

const updateMetaSQL = `
UPDATE participants SET
	race_label = COALESCE($2, race_label),
	race_total_km = COALESCE($3, race_total_km)
WHERE id = $1;`

const upsertSplitSQL = `
INSERT INTO splits (participant_id, point_label, point_km, net_time, pass_clock, pace, seen_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (participant_id, point_label) DO UPDATE SET
	net_time = EXCLUDED.net_time,
	pass_clock = EXCLUDED.pass_clock,
	pace = EXCLUDED.pace,
	seen_at = EXCLUDED.seen_at;`

const upsertAssetSQL = `
INSERT INTO assets (participant_id, kind, url, host, seen_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (participant_id, kind) DO UPDATE SET
	url = EXCLUDED.url,
	host = EXCLUDED.host,
	seen_at = EXCLUDED.seen_at;`

// ApplyBatch commits one tick's row set inside a single transaction. A
// failure on any statement rolls back the whole batch.
func (s *Store) ApplyBatch(ctx context.Context, batch store.Batch) error {
	if batch.Empty() {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	b := &pgx.Batch{}
	for _, m := range batch.Meta {
		b.Queue(updateMetaSQL, m.ParticipantID, m.RaceLabel, m.RaceTotalKm)
	}
	for _, sp := range batch.Splits {
		b.Queue(upsertSplitSQL,
			sp.ParticipantID,
			sp.Split.PointLabel,
			sp.Split.PointKm,
			sp.Split.NetTime,
			sp.Split.PassClock,
			sp.Split.Pace,
			sp.Split.SeenAt,
		)
	}
	for _, a := range batch.Assets {
		b.Queue(upsertAssetSQL,
			a.ParticipantID,
			a.Asset.Kind,
			a.Asset.URL,
			a.Asset.Host,
			a.Asset.SeenAt,
		)
	}

	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close() //nolint:errcheck
			return fmt.Errorf("apply batch statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// GetAsset loads one asset row by its (participant, kind) key.
func (s *Store) GetAsset(ctx context.Context, participantID int64, kind string) (tracker.Asset, error) {
	query := `
SELECT id, participant_id, kind, url, host, local_path, seen_at
FROM assets
WHERE participant_id = $1 AND kind = $2;`
	var a tracker.Asset
	err := s.pool.QueryRow(ctx, query, participantID, kind).Scan(
		&a.ID, &a.ParticipantID, &a.Kind, &a.URL, &a.Host, &a.LocalPath, &a.SeenAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return tracker.Asset{}, store.ErrNotFound
		}
		return tracker.Asset{}, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

// ListAssets returns every asset row for a participant.
func (s *Store) ListAssets(ctx context.Context, participantID int64) ([]tracker.Asset, error) {
	query := `
SELECT id, participant_id, kind, url, host, local_path, seen_at
FROM assets
WHERE participant_id = $1
ORDER BY kind;`
	rows, err := s.pool.Query(ctx, query, participantID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []tracker.Asset
	for rows.Next() {
		var a tracker.Asset
		if err := rows.Scan(&a.ID, &a.ParticipantID, &a.Kind, &a.URL, &a.Host, &a.LocalPath, &a.SeenAt); err != nil {
			return nil, fmt.Errorf("scan asset row: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// SetAssetLocalPath records where a downloaded asset landed.
func (s *Store) SetAssetLocalPath(ctx context.Context, participantID int64, kind, localPath string) error {
	query := `UPDATE assets SET local_path = $3 WHERE participant_id = $1 AND kind = $2;`
	res, err := s.pool.Exec(ctx, query, participantID, kind, localPath)
	if err != nil {
		return fmt.Errorf("set asset local path: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListSplits returns a participant's checkpoints ordered by distance, with
// unmeasured points last.
func (s *Store) ListSplits(ctx context.Context, participantID int64) ([]tracker.Split, error) {
	query := `
SELECT id, participant_id, point_label, point_km, net_time, pass_clock, pace, seen_at
FROM splits
WHERE participant_id = $1
ORDER BY point_km, id;`
	rows, err := s.pool.Query(ctx, query, participantID)
	if err != nil {
		return nil, fmt.Errorf("list splits: %w", err)
	}
	defer rows.Close()

	var splits []tracker.Split
	for rows.Next() {
		var sp tracker.Split
		err := rows.Scan(
			&sp.ID, &sp.ParticipantID, &sp.PointLabel, &sp.PointKm,
			&sp.NetTime, &sp.PassClock, &sp.Pace, &sp.SeenAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan split row: %w", err)
		}
		splits = append(splits, sp)
	}
	return splits, rows.Err()
}

func scanMarathons(rows pgx.Rows) ([]tracker.Marathon, error) {
	var marathons []tracker.Marathon
	for rows.Next() {
		var m tracker.Marathon
		err := rows.Scan(
			&m.ID, &m.Name, &m.URLTemplate, &m.Usedata, &m.TotalDistanceKm,
			&m.RefreshSec, &m.Enabled, &m.CertURLTemplate, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan marathon row: %w", err)
		}
		marathons = append(marathons, m)
	}
	return marathons, rows.Err()
}

func scanParticipants(rows pgx.Rows) ([]tracker.Participant, error) {
	var participants []tracker.Participant
	for rows.Next() {
		var p tracker.Participant
		err := rows.Scan(
			&p.ID, &p.MarathonID, &p.Alias, &p.Bib, &p.Active,
			&p.RaceLabel, &p.RaceTotalKm, &p.CertKey,
		)
		if err != nil {
			return nil, fmt.Errorf("scan participant row: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}
