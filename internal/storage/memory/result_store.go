package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jaekyeom/splitfeed/internal/store"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// ResultStore provides an in-memory store.Store implementation for
// development and testing. Upsert and cascade semantics match the
// Postgres store.
type ResultStore struct {
	mu           sync.RWMutex
	marathons    map[int64]tracker.Marathon
	participants map[int64]tracker.Participant
	splits       map[int64]map[string]tracker.Split
	assets       map[int64]map[string]tracker.Asset

	nextMarathon    int64
	nextParticipant int64
	nextSplit       int64
	nextAsset       int64
}

// NewResultStore constructs an empty ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{
		marathons:    make(map[int64]tracker.Marathon),
		participants: make(map[int64]tracker.Participant),
		splits:       make(map[int64]map[string]tracker.Split),
		assets:       make(map[int64]map[string]tracker.Asset),
	}
}

// Ping always succeeds.
func (s *ResultStore) Ping(_ context.Context) error {
	return nil
}

// ListEnabledMarathons returns enabled marathons ordered by id.
func (s *ResultStore) ListEnabledMarathons(_ context.Context) ([]tracker.Marathon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tracker.Marathon
	for _, m := range s.marathons {
		if m.Enabled {
			out = append(out, m)
		}
	}
	sortMarathons(out)
	return out, nil
}

// ListActiveParticipants returns active participants of one marathon
// ordered by id.
func (s *ResultStore) ListActiveParticipants(_ context.Context, marathonID int64) ([]tracker.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tracker.Participant
	for _, p := range s.participants {
		if p.MarathonID == marathonID && p.Active {
			out = append(out, p)
		}
	}
	sortParticipants(out)
	return out, nil
}

// ApplyBatch applies meta updates, split upserts and asset upserts.
func (s *ResultStore) ApplyBatch(_ context.Context, batch store.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range batch.Meta {
		p, ok := s.participants[m.ParticipantID]
		if !ok {
			continue
		}
		if m.RaceLabel != nil {
			p.RaceLabel = *m.RaceLabel
		}
		if m.RaceTotalKm != nil {
			km := *m.RaceTotalKm
			p.RaceTotalKm = &km
		}
		s.participants[m.ParticipantID] = p
	}

	for _, up := range batch.Splits {
		rows := s.splits[up.ParticipantID]
		if rows == nil {
			rows = make(map[string]tracker.Split)
			s.splits[up.ParticipantID] = rows
		}
		sp := up.Split
		sp.ParticipantID = up.ParticipantID
		if prev, ok := rows[sp.PointLabel]; ok {
			sp.ID = prev.ID
			sp.PointKm = prev.PointKm
		} else {
			s.nextSplit++
			sp.ID = s.nextSplit
		}
		rows[sp.PointLabel] = sp
	}

	for _, up := range batch.Assets {
		rows := s.assets[up.ParticipantID]
		if rows == nil {
			rows = make(map[string]tracker.Asset)
			s.assets[up.ParticipantID] = rows
		}
		a := up.Asset
		a.ParticipantID = up.ParticipantID
		if prev, ok := rows[a.Kind]; ok {
			a.ID = prev.ID
			a.LocalPath = prev.LocalPath
		} else {
			s.nextAsset++
			a.ID = s.nextAsset
		}
		rows[a.Kind] = a
	}
	return nil
}

// GetAsset loads one asset row.
func (s *ResultStore) GetAsset(_ context.Context, participantID int64, kind string) (tracker.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[participantID][kind]
	if !ok {
		return tracker.Asset{}, store.ErrNotFound
	}
	return a, nil
}

// ListAssets returns a participant's assets ordered by kind.
func (s *ResultStore) ListAssets(_ context.Context, participantID int64) ([]tracker.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tracker.Asset
	for _, a := range s.assets[participantID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

// SetAssetLocalPath records a finished download.
func (s *ResultStore) SetAssetLocalPath(_ context.Context, participantID int64, kind, localPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[participantID][kind]
	if !ok {
		return store.ErrNotFound
	}
	a.LocalPath = localPath
	s.assets[participantID][kind] = a
	return nil
}

// ListMarathons returns every marathon ordered by id.
func (s *ResultStore) ListMarathons(_ context.Context) ([]tracker.Marathon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tracker.Marathon, 0, len(s.marathons))
	for _, m := range s.marathons {
		out = append(out, m)
	}
	sortMarathons(out)
	return out, nil
}

// GetMarathon loads one marathon.
func (s *ResultStore) GetMarathon(_ context.Context, id int64) (tracker.Marathon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.marathons[id]
	if !ok {
		return tracker.Marathon{}, store.ErrNotFound
	}
	return m, nil
}

// CreateMarathon assigns an id and stores the marathon.
func (s *ResultStore) CreateMarathon(_ context.Context, m tracker.Marathon) (tracker.Marathon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMarathon++
	m.ID = s.nextMarathon
	s.marathons[m.ID] = m
	return m, nil
}

// UpdateMarathon rewrites a stored marathon.
func (s *ResultStore) UpdateMarathon(_ context.Context, m tracker.Marathon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.marathons[m.ID]; !ok {
		return store.ErrNotFound
	}
	s.marathons[m.ID] = m
	return nil
}

// DeleteMarathon removes a marathon and cascades to its participants.
func (s *ResultStore) DeleteMarathon(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.marathons[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.marathons, id)
	for pid, p := range s.participants {
		if p.MarathonID == id {
			delete(s.participants, pid)
			delete(s.splits, pid)
			delete(s.assets, pid)
		}
	}
	return nil
}

// ListParticipants returns participants, scoped to a marathon when
// marathonID is non-zero.
func (s *ResultStore) ListParticipants(_ context.Context, marathonID int64) ([]tracker.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tracker.Participant
	for _, p := range s.participants {
		if marathonID == 0 || p.MarathonID == marathonID {
			out = append(out, p)
		}
	}
	sortParticipants(out)
	return out, nil
}

// GetParticipant loads one participant.
func (s *ResultStore) GetParticipant(_ context.Context, id int64) (tracker.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return tracker.Participant{}, store.ErrNotFound
	}
	return p, nil
}

// CreateParticipant assigns an id and stores the participant.
func (s *ResultStore) CreateParticipant(_ context.Context, p tracker.Participant) (tracker.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextParticipant++
	p.ID = s.nextParticipant
	s.participants[p.ID] = p
	return p, nil
}

// CreateParticipants stores each participant, returning the count added.
func (s *ResultStore) CreateParticipants(_ context.Context, ps []tracker.Participant) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range ps {
		s.nextParticipant++
		ps[i].ID = s.nextParticipant
		s.participants[ps[i].ID] = ps[i]
	}
	return len(ps), nil
}

// DeleteParticipant removes a participant with its splits and assets.
func (s *ResultStore) DeleteParticipant(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.participants, id)
	delete(s.splits, id)
	delete(s.assets, id)
	return nil
}

// ListSplits returns a participant's checkpoints ordered by distance,
// unmeasured points last.
func (s *ResultStore) ListSplits(_ context.Context, participantID int64) ([]tracker.Split, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tracker.Split
	for _, sp := range s.splits[participantID] {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.PointKm == nil && b.PointKm == nil:
			return a.ID < b.ID
		case a.PointKm == nil:
			return false
		case b.PointKm == nil:
			return true
		case *a.PointKm != *b.PointKm:
			return *a.PointKm < *b.PointKm
		default:
			return a.ID < b.ID
		}
	})
	return out, nil
}

func sortMarathons(ms []tracker.Marathon) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })
}

func sortParticipants(ps []tracker.Participant) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}
