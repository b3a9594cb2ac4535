// Package tracker defines core types shared across subsystems.
package tracker

import "time"

// DefaultRefresh is the poll cadence used when a marathon does not set one.
const DefaultRefresh = 60 * time.Second

// Marathon describes one timing-provider result page family to poll.
type Marathon struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	URLTemplate     string    `json:"url_template"`
	Usedata         string    `json:"usedata,omitempty"`
	TotalDistanceKm float64   `json:"total_distance_km"`
	RefreshSec      int       `json:"refresh_sec"`
	Enabled         bool      `json:"enabled"`
	CertURLTemplate string    `json:"cert_url_template,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// Cadence returns the poll interval, falling back to DefaultRefresh when the
// stored value is unset or invalid.
func (m Marathon) Cadence() time.Duration {
	if m.RefreshSec <= 0 {
		return DefaultRefresh
	}
	return time.Duration(m.RefreshSec) * time.Second
}

// Participant is one runner monitored within a marathon. Bib carries the
// provider lookup key, which may be a bib number or a name.
type Participant struct {
	ID          int64    `json:"id"`
	MarathonID  int64    `json:"marathon_id"`
	Alias       string   `json:"alias,omitempty"`
	Bib         string   `json:"nameorbibno"`
	Active      bool     `json:"active"`
	RaceLabel   string   `json:"race_label,omitempty"`
	RaceTotalKm *float64 `json:"race_total_km,omitempty"`
	CertKey     string   `json:"cert_key,omitempty"`
}

// Split is one checkpoint row normalized from a provider page.
type Split struct {
	ID            int64     `json:"id,omitempty"`
	ParticipantID int64     `json:"participant_id,omitempty"`
	PointLabel    string    `json:"point_label"`
	PointKm       *float64  `json:"point_km,omitempty"`
	NetTime       string    `json:"net_time,omitempty"`
	PassClock     string    `json:"pass_clock,omitempty"`
	Pace          string    `json:"pace,omitempty"`
	SeenAt        time.Time `json:"seen_at,omitempty"`
}

// Asset kinds recorded by the crawler.
const (
	AssetKindCertificate = "certificate"
)

// Asset is a downloadable artifact (typically a finish certificate image)
// discovered on a provider page. LocalPath stays empty until the asset
// worker pool finishes the download.
type Asset struct {
	ID            int64     `json:"id,omitempty"`
	ParticipantID int64     `json:"participant_id,omitempty"`
	Kind          string    `json:"kind"`
	URL           string    `json:"url"`
	Host          string    `json:"host,omitempty"`
	LocalPath     string    `json:"local_path,omitempty"`
	SeenAt        time.Time `json:"seen_at,omitempty"`
}

// Meta carries per-crawl participant metadata. Nil fields mean "no update";
// the store keeps the previously persisted value for those.
type Meta struct {
	RaceLabel   *string
	RaceTotalKm *float64
}

// Result is the outcome of crawling one participant once. Bib and PageURL
// carry the fetch context forward so asset downloads can present the same
// identity and referer the crawl used.
type Result struct {
	ParticipantID int64
	Bib           string
	PageURL       string
	Meta          Meta
	Splits        []Split
	Assets        []Asset
}

// AssetTask describes one certificate download handed to the asset pool.
type AssetTask struct {
	ParticipantID int64
	Kind          string
	Host          string
	Dataset       string
	Bib           string
	URL           string
	Referer       string
}
