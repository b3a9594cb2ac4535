// Package store declares interfaces for persisting crawl results.
package store

import (
	"context"
	"errors"

	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// MetaUpdate patches a participant's race metadata. Nil fields keep the
// stored value (COALESCE semantics), so a provider that omits the course
// label on one poll cannot erase one learned earlier.
type MetaUpdate struct {
	ParticipantID int64
	RaceLabel     *string
	RaceTotalKm   *float64
}

// SplitUpsert is one checkpoint row keyed by (participant, point label).
// A re-observed label refreshes net time, pass clock, pace and seen_at,
// last write wins; the distance keeps its first-observed value.
type SplitUpsert struct {
	ParticipantID int64
	Split         tracker.Split
}

// AssetUpsert is one downloadable asset keyed by (participant, kind).
// Re-observation refreshes the remote URL but never touches local_path;
// completed downloads survive re-crawls.
type AssetUpsert struct {
	ParticipantID int64
	Asset         tracker.Asset
}

// Batch is the upsert-ready row set produced from one source's crawl
// tick. Applied atomically: either every row lands or none do.
type Batch struct {
	Meta   []MetaUpdate
	Splits []SplitUpsert
	Assets []AssetUpsert
}

// Empty reports whether the batch holds no rows.
func (b Batch) Empty() bool {
	return len(b.Meta) == 0 && len(b.Splits) == 0 && len(b.Assets) == 0
}

// Store persists marathons, participants and their crawled results.
type Store interface {
	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error

	// ListEnabledMarathons returns the sources the engine should poll.
	ListEnabledMarathons(ctx context.Context) ([]tracker.Marathon, error)
	// ListActiveParticipants returns the runners monitored for one marathon.
	ListActiveParticipants(ctx context.Context, marathonID int64) ([]tracker.Participant, error)
	// ApplyBatch commits one tick's row set in a single transaction.
	ApplyBatch(ctx context.Context, batch Batch) error

	// GetAsset loads one asset row or returns ErrNotFound.
	GetAsset(ctx context.Context, participantID int64, kind string) (tracker.Asset, error)
	// ListAssets returns every asset row for a participant.
	ListAssets(ctx context.Context, participantID int64) ([]tracker.Asset, error)
	// SetAssetLocalPath records where a downloaded asset was stored.
	SetAssetLocalPath(ctx context.Context, participantID int64, kind, localPath string) error

	// ListMarathons returns every marathon, enabled or not.
	ListMarathons(ctx context.Context) ([]tracker.Marathon, error)
	// GetMarathon loads one marathon or returns ErrNotFound.
	GetMarathon(ctx context.Context, id int64) (tracker.Marathon, error)
	// CreateMarathon inserts a marathon and returns it with its assigned id.
	CreateMarathon(ctx context.Context, m tracker.Marathon) (tracker.Marathon, error)
	// UpdateMarathon rewrites a marathon row or returns ErrNotFound.
	UpdateMarathon(ctx context.Context, m tracker.Marathon) error
	// DeleteMarathon removes a marathon and, via cascade, its participants.
	DeleteMarathon(ctx context.Context, id int64) error

	// ListParticipants returns participants, scoped to a marathon when
	// marathonID is non-zero.
	ListParticipants(ctx context.Context, marathonID int64) ([]tracker.Participant, error)
	// GetParticipant loads one participant or returns ErrNotFound.
	GetParticipant(ctx context.Context, id int64) (tracker.Participant, error)
	// CreateParticipant inserts a participant and returns it with its id.
	CreateParticipant(ctx context.Context, p tracker.Participant) (tracker.Participant, error)
	// CreateParticipants bulk-inserts participants, returning the count added.
	CreateParticipants(ctx context.Context, ps []tracker.Participant) (int, error)
	// DeleteParticipant removes a participant and its splits and assets.
	DeleteParticipant(ctx context.Context, id int64) error

	// ListSplits returns a participant's checkpoints ordered by distance.
	ListSplits(ctx context.Context, participantID int64) ([]tracker.Split, error)
}
