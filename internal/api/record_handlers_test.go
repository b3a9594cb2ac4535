package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaekyeom/splitfeed/internal/records"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

func TestServer_ListRecords_ReturnsItems(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	m := seedMarathon(t, rs, "Gyeongju Cherry Blossom", myresultTemplate, 42.195)
	p := seedParticipant(t, rs, tracker.Participant{
		MarathonID: m.ID,
		Alias:      "김철수",
		Bib:        "1024",
		Active:     true,
		RaceLabel:  "풀코스",
	})
	seedSplits(t, rs, p.ID,
		tracker.Split{PointLabel: "30km", PointKm: kmRef(30), NetTime: "2:38:09"},
		tracker.Split{PointLabel: "완주", NetTime: "3:41:22", PassClock: "12:41:50"},
	)

	rec := doRequest(t, s, http.MethodGet, "/api/records", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []records.Record `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	require.Equal(t, "김철수", resp.Items[0].Name)
	require.Equal(t, "3:41:22", resp.Items[0].Record)
	require.Equal(t, "Gyeongju Cherry Blossom", resp.Items[0].Marathon)
}

func TestServer_ListRecords_FilterWithoutMatches(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	m := seedMarathon(t, rs, "Gyeongju Cherry Blossom", myresultTemplate, 42.195)
	seedParticipant(t, rs, tracker.Participant{MarathonID: m.ID, Alias: "김철수", Bib: "1024", Active: true})

	rec := doRequest(t, s, http.MethodGet, "/api/records?q=nomatch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"items":[]`)
}
