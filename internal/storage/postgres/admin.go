package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jaekyeom/splitfeed/internal/store"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// ListMarathons returns every marathon, enabled or not.
func (s *Store) ListMarathons(ctx context.Context) ([]tracker.Marathon, error) {
	rows, err := s.pool.Query(ctx, selectMarathonCols+` ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list marathons: %w", err)
	}
	defer rows.Close()
	return scanMarathons(rows)
}

// GetMarathon loads a single marathon by id.
func (s *Store) GetMarathon(ctx context.Context, id int64) (tracker.Marathon, error) {
	var m tracker.Marathon
	err := s.pool.QueryRow(ctx, selectMarathonCols+` WHERE id = $1;`, id).Scan(
		&m.ID, &m.Name, &m.URLTemplate, &m.Usedata, &m.TotalDistanceKm,
		&m.RefreshSec, &m.Enabled, &m.CertURLTemplate, &m.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return tracker.Marathon{}, store.ErrNotFound
		}
		return tracker.Marathon{}, fmt.Errorf("get marathon: %w", err)
	}
	return m, nil
}

// CreateMarathon inserts a marathon and returns it with its assigned id.
func (s *Store) CreateMarathon(ctx context.Context, m tracker.Marathon) (tracker.Marathon, error) {
	query := `
INSERT INTO marathons (name, url_template, usedata, total_distance_km, refresh_sec, enabled, cert_url_template, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
RETURNING id, updated_at;`
	err := s.pool.QueryRow(ctx, query,
		m.Name, m.URLTemplate, m.Usedata, m.TotalDistanceKm,
		m.RefreshSec, m.Enabled, m.CertURLTemplate,
	).Scan(&m.ID, &m.UpdatedAt)
	if err != nil {
		return tracker.Marathon{}, fmt.Errorf("create marathon: %w", err)
	}
	return m, nil
}

// UpdateMarathon rewrites a marathon row.
func (s *Store) UpdateMarathon(ctx context.Context, m tracker.Marathon) error {
	query := `
UPDATE marathons SET
	name = $2,
	url_template = $3,
	usedata = $4,
	total_distance_km = $5,
	refresh_sec = $6,
	enabled = $7,
	cert_url_template = $8,
	updated_at = now()
WHERE id = $1;`
	res, err := s.pool.Exec(ctx, query,
		m.ID, m.Name, m.URLTemplate, m.Usedata, m.TotalDistanceKm,
		m.RefreshSec, m.Enabled, m.CertURLTemplate,
	)
	if err != nil {
		return fmt.Errorf("update marathon: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteMarathon removes a marathon; participants, splits and assets go
// with it via cascade.
func (s *Store) DeleteMarathon(ctx context.Context, id int64) error {
	res, err := s.pool.Exec(ctx, `DELETE FROM marathons WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete marathon: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListParticipants returns participants, scoped to one marathon when
// marathonID is non-zero.
func (s *Store) ListParticipants(ctx context.Context, marathonID int64) ([]tracker.Participant, error) {
	query := selectParticipantCols + ` WHERE ($1::bigint = 0 OR marathon_id = $1) ORDER BY id;`
	rows, err := s.pool.Query(ctx, query, marathonID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	return scanParticipants(rows)
}

// GetParticipant loads a single participant by id.
func (s *Store) GetParticipant(ctx context.Context, id int64) (tracker.Participant, error) {
	var p tracker.Participant
	err := s.pool.QueryRow(ctx, selectParticipantCols+` WHERE id = $1;`, id).Scan(
		&p.ID, &p.MarathonID, &p.Alias, &p.Bib, &p.Active,
		&p.RaceLabel, &p.RaceTotalKm, &p.CertKey,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return tracker.Participant{}, store.ErrNotFound
		}
		return tracker.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

const insertParticipantSQL = `
INSERT INTO participants (marathon_id, alias, nameorbibno, active, race_label, race_total_km, cert_key)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id;`

// CreateParticipant inserts a participant and returns it with its id.
func (s *Store) CreateParticipant(ctx context.Context, p tracker.Participant) (tracker.Participant, error) {
	err := s.pool.QueryRow(ctx, insertParticipantSQL,
		p.MarathonID, p.Alias, p.Bib, p.Active, p.RaceLabel, p.RaceTotalKm, p.CertKey,
	).Scan(&p.ID)
	if err != nil {
		return tracker.Participant{}, fmt.Errorf("create participant: %w", err)
	}
	return p, nil
}

// CreateParticipants bulk-inserts participants in one transaction.
func (s *Store) CreateParticipants(ctx context.Context, ps []tracker.Participant) (int, error) {
	if len(ps) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin participant import: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	b := &pgx.Batch{}
	for _, p := range ps {
		b.Queue(insertParticipantSQL,
			p.MarathonID, p.Alias, p.Bib, p.Active, p.RaceLabel, p.RaceTotalKm, p.CertKey,
		)
	}
	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			br.Close() //nolint:errcheck
			return 0, fmt.Errorf("import participant %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close participant import: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit participant import: %w", err)
	}
	return len(ps), nil
}

// DeleteParticipant removes a participant and, via cascade, its splits
// and assets.
func (s *Store) DeleteParticipant(ctx context.Context, id int64) error {
	res, err := s.pool.Exec(ctx, `DELETE FROM participants WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
