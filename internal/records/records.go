// Package records assembles the leaderboard: every monitored runner with
// their best confirmed record, course category and certificate link.
package records

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jaekyeom/splitfeed/internal/store"
	"github.com/jaekyeom/splitfeed/internal/timefmt"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// StaticCertPrefix is the URL path certificate files are served under.
// Locally stored assets are rewritten beneath it; assets kept in a remote
// backend fall back to their provider URL.
const StaticCertPrefix = "/static/certs/"

// Record is one leaderboard row.
type Record struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Distance float64 `json:"distance"`
	Marathon string  `json:"marathon"`
	Record   string  `json:"record"`
	Clock    string  `json:"clock"`
	CertWeb  string  `json:"cert_web,omitempty"`
}

// Filter narrows the leaderboard. Both fields match case-insensitive
// substrings; an empty field matches everything.
type Filter struct {
	Query    string
	Marathon string
}

// Service reads stored crawl results into leaderboard rows.
type Service struct {
	store store.Store
}

// NewService wires the leaderboard over a result store.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// List returns the filtered leaderboard across every marathon, ordered by
// runner name, longest course first, then fastest record.
func (s *Service) List(ctx context.Context, filter Filter) ([]Record, error) {
	marathons, err := s.store.ListMarathons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list marathons: %w", err)
	}
	byID := make(map[int64]tracker.Marathon, len(marathons))
	for _, m := range marathons {
		byID[m.ID] = m
	}

	participants, err := s.store.ListParticipants(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	items := make([]Record, 0, len(participants))
	for _, p := range participants {
		if !p.Active {
			continue
		}
		rec, err := s.buildRecord(ctx, p, byID[p.MarathonID])
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}

	items = applyFilter(items, filter)
	sortRecords(items)
	return items, nil
}

func (s *Service) buildRecord(ctx context.Context, p tracker.Participant, m tracker.Marathon) (Record, error) {
	splits, err := s.store.ListSplits(ctx, p.ID)
	if err != nil {
		return Record{}, fmt.Errorf("list splits for participant %d: %w", p.ID, err)
	}

	name := strings.TrimSpace(p.Alias)
	if name == "" {
		name = strings.TrimSpace(p.Bib)
	}

	// The crawled course distance wins over the marathon default; a
	// multi-course event lists everyone under one marathon row.
	dist := m.TotalDistanceKm
	if p.RaceTotalKm != nil {
		dist = *p.RaceTotalKm
	}

	category := strings.TrimSpace(p.RaceLabel)
	if category == "" {
		category = timefmt.LabelForDistance(dist)
	}

	rec := Record{
		Name:     name,
		Category: category,
		Distance: dist,
		Marathon: m.Name,
	}
	rec.Record, rec.Clock = bestRecord(splits)

	cert, err := s.certLink(ctx, p.ID)
	if err != nil {
		return Record{}, err
	}
	rec.CertWeb = cert
	return rec, nil
}

func (s *Service) certLink(ctx context.Context, participantID int64) (string, error) {
	asset, err := s.store.GetAsset(ctx, participantID, tracker.AssetKindCertificate)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load certificate for participant %d: %w", participantID, err)
	}
	return certWebPath(asset.LocalPath, asset.URL), nil
}

// certWebPath maps a stored certificate to something a browser can load.
// Disk paths are served from the static cert directory; a path with a
// scheme lives in a remote backend and keeps the provider URL instead.
func certWebPath(localPath, sourceURL string) string {
	p := strings.TrimSpace(localPath)
	if p == "" || strings.Contains(p, "://") {
		return sourceURL
	}
	return path.Join(StaticCertPrefix, filepath.Base(p))
}

// bestRecord picks the row that best represents a final result: the
// newest finish-labeled split, else the farthest one. An unreadable net
// time on the chosen row falls back to the farthest row's.
func bestRecord(splits []tracker.Split) (record, clock string) {
	if len(splits) == 0 {
		return "", ""
	}
	best := splits[len(splits)-1]
	for i := len(splits) - 1; i >= 0; i-- {
		if timefmt.IsFinishLabel(splits[i].PointLabel) {
			best = splits[i]
			break
		}
	}

	record = strings.TrimSpace(best.NetTime)
	if !timefmt.LooksTime(record) {
		record = strings.TrimSpace(splits[len(splits)-1].NetTime)
	}
	if !timefmt.LooksTime(record) {
		record = ""
	}
	clock = strings.TrimSpace(best.PassClock)
	if !timefmt.LooksTime(clock) {
		clock = ""
	}
	return record, clock
}

func applyFilter(items []Record, f Filter) []Record {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	m := strings.ToLower(strings.TrimSpace(f.Marathon))
	if q == "" && m == "" {
		return items
	}
	out := items[:0]
	for _, it := range items {
		if q != "" && !strings.Contains(strings.ToLower(it.Name), q) {
			continue
		}
		if m != "" && !strings.Contains(strings.ToLower(it.Marathon), m) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// unrecorded sorts rows without a parseable net time after every real
// record.
const unrecorded = 1 << 31

func sortRecords(items []Record) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Distance != b.Distance {
			return a.Distance > b.Distance
		}
		return recordSeconds(a) < recordSeconds(b)
	})
}

func recordSeconds(r Record) int {
	if sec, ok := timefmt.Seconds(r.Record); ok {
		return sec
	}
	return unrecorded
}
