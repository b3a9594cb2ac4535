package postgres

import (
	"context"
	"fmt"
)

// Schema statements are idempotent so Migrate can run on every start. The
// ADD COLUMN statements carry columns that postdate the original tables;
// they keep existing deployments in step without a migration tool.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS marathons (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		url_template TEXT NOT NULL,
		usedata TEXT NOT NULL DEFAULT '',
		total_distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
		refresh_sec INTEGER NOT NULL DEFAULT 60,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		cert_url_template TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS participants (
		id BIGSERIAL PRIMARY KEY,
		marathon_id BIGINT NOT NULL REFERENCES marathons(id) ON DELETE CASCADE,
		alias TEXT NOT NULL DEFAULT '',
		nameorbibno TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		race_label TEXT NOT NULL DEFAULT '',
		race_total_km DOUBLE PRECISION,
		cert_key TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS splits (
		id BIGSERIAL PRIMARY KEY,
		participant_id BIGINT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
		point_label TEXT NOT NULL,
		point_km DOUBLE PRECISION,
		net_time TEXT NOT NULL DEFAULT '',
		pass_clock TEXT NOT NULL DEFAULT '',
		pace TEXT NOT NULL DEFAULT '',
		seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (participant_id, point_label)
	);`,
	`CREATE TABLE IF NOT EXISTS assets (
		id BIGSERIAL PRIMARY KEY,
		participant_id BIGINT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		host TEXT NOT NULL DEFAULT '',
		local_path TEXT NOT NULL DEFAULT '',
		seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (participant_id, kind)
	);`,
	`ALTER TABLE marathons ADD COLUMN IF NOT EXISTS cert_url_template TEXT NOT NULL DEFAULT '';`,
	`ALTER TABLE participants ADD COLUMN IF NOT EXISTS race_label TEXT NOT NULL DEFAULT '';`,
	`ALTER TABLE participants ADD COLUMN IF NOT EXISTS race_total_km DOUBLE PRECISION;`,
	`ALTER TABLE participants ADD COLUMN IF NOT EXISTS cert_key TEXT NOT NULL DEFAULT '';`,
	`CREATE INDEX IF NOT EXISTS idx_participants_marathon ON participants (marathon_id);`,
	`CREATE INDEX IF NOT EXISTS idx_splits_participant ON splits (participant_id);`,
	`CREATE INDEX IF NOT EXISTS idx_assets_participant ON assets (participant_id);`,
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
