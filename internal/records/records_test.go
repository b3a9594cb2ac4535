package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaekyeom/splitfeed/internal/storage/memory"
	"github.com/jaekyeom/splitfeed/internal/store"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

func kmRef(v float64) *float64 { return &v }

func addMarathon(t *testing.T, rs *memory.ResultStore, name string, totalKm float64) tracker.Marathon {
	t.Helper()
	m, err := rs.CreateMarathon(context.Background(), tracker.Marathon{
		Name:            name,
		URLTemplate:     "https://myresult.co.kr/api/{usedata}/{nameorbibno}",
		TotalDistanceKm: totalKm,
		RefreshSec:      60,
		Enabled:         true,
	})
	require.NoError(t, err)
	return m
}

func addParticipant(t *testing.T, rs *memory.ResultStore, p tracker.Participant) tracker.Participant {
	t.Helper()
	created, err := rs.CreateParticipant(context.Background(), p)
	require.NoError(t, err)
	return created
}

func addSplits(t *testing.T, rs *memory.ResultStore, participantID int64, splits ...tracker.Split) {
	t.Helper()
	ups := make([]store.SplitUpsert, 0, len(splits))
	for _, sp := range splits {
		ups = append(ups, store.SplitUpsert{ParticipantID: participantID, Split: sp})
	}
	require.NoError(t, rs.ApplyBatch(context.Background(), store.Batch{Splits: ups}))
}

func TestListBuildsLeaderboardRow(t *testing.T) {
	t.Parallel()

	rs := memory.NewResultStore()
	ctx := context.Background()
	m := addMarathon(t, rs, "Gyeongju Cherry Blossom", 42.195)
	p := addParticipant(t, rs, tracker.Participant{
		MarathonID:  m.ID,
		Alias:       "김철수",
		Bib:         "1024",
		Active:      true,
		RaceLabel:   "풀코스",
		RaceTotalKm: kmRef(42.195),
	})
	addSplits(t, rs, p.ID,
		tracker.Split{PointLabel: "10km", PointKm: kmRef(10), NetTime: "00:52:10"},
		tracker.Split{PointLabel: "완주", NetTime: "3:41:22", PassClock: "12:41:50"},
	)
	require.NoError(t, rs.ApplyBatch(ctx, store.Batch{Assets: []store.AssetUpsert{
		{ParticipantID: p.ID, Asset: tracker.Asset{
			Kind: tracker.AssetKindCertificate,
			URL:  "https://myresult.co.kr/cert/1024.jpg",
		}},
	}}))
	require.NoError(t, rs.SetAssetLocalPath(ctx, p.ID, tracker.AssetKindCertificate, "data/certs/1_certificate.jpg"))

	items, err := NewService(rs).List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	require.Equal(t, "김철수", it.Name)
	require.Equal(t, "풀코스", it.Category)
	require.Equal(t, 42.195, it.Distance)
	require.Equal(t, "Gyeongju Cherry Blossom", it.Marathon)
	require.Equal(t, "3:41:22", it.Record)
	require.Equal(t, "12:41:50", it.Clock)
	require.Equal(t, "/static/certs/1_certificate.jpg", it.CertWeb)
}

func TestListFallsBackToBibAndCourseLabel(t *testing.T) {
	t.Parallel()

	rs := memory.NewResultStore()
	m := addMarathon(t, rs, "Han River Night Run", 10)
	addParticipant(t, rs, tracker.Participant{MarathonID: m.ID, Bib: "777", Active: true})

	items, err := NewService(rs).List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	require.Equal(t, "777", it.Name, "without an alias the bib identifies the runner")
	require.Equal(t, "10km", it.Category)
	require.Empty(t, it.Record)
	require.Empty(t, it.Clock)
	require.Empty(t, it.CertWeb)
}

func TestListSkipsInactiveParticipants(t *testing.T) {
	t.Parallel()

	rs := memory.NewResultStore()
	m := addMarathon(t, rs, "Seoul Marathon", 42.195)
	addParticipant(t, rs, tracker.Participant{MarathonID: m.ID, Bib: "100", Active: true})
	addParticipant(t, rs, tracker.Participant{MarathonID: m.ID, Bib: "200", Active: false})

	items, err := NewService(rs).List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "100", items[0].Name)
}

func TestListFiltersByNameAndMarathon(t *testing.T) {
	t.Parallel()

	rs := memory.NewResultStore()
	seoul := addMarathon(t, rs, "Seoul Marathon", 42.195)
	busan := addMarathon(t, rs, "Busan Coastal Run", 10)
	addParticipant(t, rs, tracker.Participant{MarathonID: seoul.ID, Alias: "Kim Minseo", Bib: "1", Active: true})
	addParticipant(t, rs, tracker.Participant{MarathonID: busan.ID, Alias: "Lee Jun", Bib: "2", Active: true})

	svc := NewService(rs)
	ctx := context.Background()

	items, err := svc.List(ctx, Filter{Query: "kim"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Kim Minseo", items[0].Name)

	items, err = svc.List(ctx, Filter{Marathon: "busan"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Lee Jun", items[0].Name)

	items, err = svc.List(ctx, Filter{Query: "kim", Marathon: "busan"})
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestListOrdersByNameDistanceRecord(t *testing.T) {
	t.Parallel()

	rs := memory.NewResultStore()
	full := addMarathon(t, rs, "Chuncheon Marathon", 42.195)
	ten := addMarathon(t, rs, "Chuncheon 10K", 10)

	slow := addParticipant(t, rs, tracker.Participant{MarathonID: full.ID, Alias: "anna", Bib: "11", Active: true})
	fast := addParticipant(t, rs, tracker.Participant{MarathonID: full.ID, Alias: "anna", Bib: "12", Active: true})
	short := addParticipant(t, rs, tracker.Participant{MarathonID: ten.ID, Alias: "anna", Bib: "13", Active: true})
	addParticipant(t, rs, tracker.Participant{MarathonID: full.ID, Alias: "ben", Bib: "14", Active: true})

	addSplits(t, rs, slow.ID, tracker.Split{PointLabel: "Finish", NetTime: "3:50:00"})
	addSplits(t, rs, fast.ID, tracker.Split{PointLabel: "Finish", NetTime: "3:40:00"})
	addSplits(t, rs, short.ID, tracker.Split{PointLabel: "Finish", NetTime: "00:49:30"})

	items, err := NewService(rs).List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, items, 4)

	require.Equal(t, "anna", items[0].Name)
	require.Equal(t, "3:40:00", items[0].Record, "same name and course: faster record first")
	require.Equal(t, "3:50:00", items[1].Record)
	require.Equal(t, 10.0, items[2].Distance, "shorter course sorts after the full")
	require.Equal(t, "ben", items[3].Name)
}

func TestBestRecordPrefersFinishRow(t *testing.T) {
	t.Parallel()

	record, clock := bestRecord([]tracker.Split{
		{PointLabel: "30km", PointKm: kmRef(30), NetTime: "2:38:09", PassClock: "11:08:40"},
		{PointLabel: "도착", NetTime: "3:44:51", PassClock: "12:15:20"},
	})
	require.Equal(t, "3:44:51", record)
	require.Equal(t, "12:15:20", clock)

	// A finish row still being timed falls back to the last row's net
	// time while keeping its own clock.
	record, clock = bestRecord([]tracker.Split{
		{PointLabel: "도착", NetTime: "계측중", PassClock: "12:15:20"},
		{PointLabel: "30km", PointKm: kmRef(30), NetTime: "2:38:09"},
	})
	require.Equal(t, "2:38:09", record)
	require.Equal(t, "12:15:20", clock)

	record, clock = bestRecord(nil)
	require.Empty(t, record)
	require.Empty(t, clock)
}

func TestCertWebPath(t *testing.T) {
	t.Parallel()

	const src = "https://myresult.co.kr/cert/1024.jpg"
	tests := []struct {
		name      string
		localPath string
		want      string
	}{
		{"LocalFile", "data/certs/5_certificate.jpg", "/static/certs/5_certificate.jpg"},
		{"AbsoluteLocalFile", "/var/lib/splitfeed/certs/5_certificate.jpg", "/static/certs/5_certificate.jpg"},
		{"MemoryBackend", "memory://5_certificate.jpg", src},
		{"GCSBackend", "gs://race-certs/daegu/5_certificate.jpg", src},
		{"NotDownloaded", "", src},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, certWebPath(tt.localPath, src))
		})
	}
}
