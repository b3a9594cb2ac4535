package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jaekyeom/splitfeed/internal/predict"
	"github.com/jaekyeom/splitfeed/internal/storage/memory"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

const spctTemplate = "http://spct.co.kr/record.php?usedata={usedata}&nameorbibno={nameorbibno}"

func TestServer_CreateParticipant_NormalizesSpctBib(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	seedMarathon(t, rs, "Chuncheon Lake Run", spctTemplate, 10)

	rec := doRequest(t, s, http.MethodPost, "/api/participants", `{"marathon_id":1,"nameorbibno":"123","alias":"김철수"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Participant tracker.Participant `json:"participant"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "000123", resp.Participant.Bib)
	require.Equal(t, "김철수", resp.Participant.Alias)
	require.True(t, resp.Participant.Active)
}

func TestServer_CreateParticipant_KeepsNonSpctBib(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	seedMarathon(t, rs, "Gyeongju Cherry Blossom", myresultTemplate, 42.195)

	rec := doRequest(t, s, http.MethodPost, "/api/participants", `{"marathon_id":1,"nameorbibno":"123"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"nameorbibno":"123"`)
}

func TestServer_CreateParticipant_RejectsDuplicate(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	seedMarathon(t, rs, "Gyeongju Cherry Blossom", myresultTemplate, 42.195)

	rec := doRequest(t, s, http.MethodPost, "/api/participants", `{"marathon_id":1,"nameorbibno":"1024"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/participants", `{"marathon_id":1,"nameorbibno":"1024"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "participant already registered")
}

func TestServer_CreateParticipant_Rejections(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	seedMarathon(t, rs, "Gyeongju Cherry Blossom", myresultTemplate, 42.195)

	rec := doRequest(t, s, http.MethodPost, "/api/participants", `{"marathon_id":1,"nameorbibno":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "nameorbibno is required")

	rec = doRequest(t, s, http.MethodPost, "/api/participants", `{"nameorbibno":"1024"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid marathon_id")

	rec = doRequest(t, s, http.MethodPost, "/api/participants", `{"marathon_id":77,"nameorbibno":"1024"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "marathon not found")
}

func TestServer_ListParticipants_FiltersByMarathon(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	m1 := seedMarathon(t, rs, "Gyeongju Cherry Blossom", myresultTemplate, 42.195)
	m2 := seedMarathon(t, rs, "Busan Night Run", myresultTemplate, 10)
	seedParticipant(t, rs, tracker.Participant{MarathonID: m1.ID, Bib: "1024", Active: true})
	seedParticipant(t, rs, tracker.Participant{MarathonID: m2.ID, Bib: "77", Active: true})

	var resp struct {
		Participants []tracker.Participant `json:"participants"`
	}

	rec := doRequest(t, s, http.MethodGet, "/api/participants", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Participants, 2)

	rec = doRequest(t, s, http.MethodGet, "/api/participants?marathon_id=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Participants, 1)
	require.Equal(t, "77", resp.Participants[0].Bib)

	rec = doRequest(t, s, http.MethodGet, "/api/participants?marathon_id=abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_DeleteParticipant(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	m := seedMarathon(t, rs, "Gyeongju Cherry Blossom", myresultTemplate, 42.195)
	p := seedParticipant(t, rs, tracker.Participant{MarathonID: m.ID, Bib: "1024", Active: true})

	rec := doRequest(t, s, http.MethodDelete, "/api/participants/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := rs.GetParticipant(context.Background(), p.ID)
	require.Error(t, err)

	rec = doRequest(t, s, http.MethodDelete, "/api/participants/1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ImportParticipants_SkipsDuplicates(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	m := seedMarathon(t, rs, "Gyeongju Cherry Blossom", myresultTemplate, 42.195)
	seedParticipant(t, rs, tracker.Participant{MarathonID: m.ID, Bib: "1024", Active: true})

	csv := "bib,alias\n1024,김철수\n1025,박영희\n1025,중복\n"
	rec := doImport(t, s, "1", csv)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"added":1`)
	require.Contains(t, rec.Body.String(), `"skipped":2`)

	ps, err := rs.ListParticipants(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	require.Equal(t, "박영희", ps[1].Alias)
	require.True(t, ps[1].Active)
}

func TestServer_ImportParticipants_HeaderColumnsAnyOrder(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	seedMarathon(t, rs, "Chuncheon Lake Run", spctTemplate, 10)

	csv := "alias,bib\n김철수,123\n"
	rec := doImport(t, s, "1", csv)
	require.Equal(t, http.StatusOK, rec.Code)

	ps, err := rs.ListParticipants(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	require.Equal(t, "000123", ps[0].Bib)
	require.Equal(t, "김철수", ps[0].Alias)
}

func TestServer_ImportParticipants_Rejections(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	seedMarathon(t, rs, "Gyeongju Cherry Blossom", myresultTemplate, 42.195)

	rec := doRequest(t, s, http.MethodPost, "/api/participants/import", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "csv file is required")

	rec = doImport(t, s, "99", "bib,alias\n1024,김철수\n")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "marathon not found")

	rec = doImport(t, s, "1", "bib,alias\n")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "no participant rows in file")
}

func TestServer_ParticipantData_IncludesPrediction(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	m := seedMarathon(t, rs, "Gyeongju Cherry Blossom", myresultTemplate, 42.195)
	p := seedParticipant(t, rs, tracker.Participant{MarathonID: m.ID, Bib: "1024", Active: true})
	seedSplits(t, rs, p.ID, tracker.Split{
		PointLabel: "30km",
		PointKm:    kmRef(30),
		NetTime:    "2:30:00",
		PassClock:  "10:00:00",
		Pace:       "5:00",
	})

	rec := doRequest(t, s, http.MethodGet, "/api/participants/1/data", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Participant tracker.Participant `json:"participant"`
		Splits      []tracker.Split     `json:"splits"`
		Prediction  predict.Prediction  `json:"prediction"`
		URL         string              `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "1024", resp.Participant.Bib)
	require.Len(t, resp.Splits, 1)
	require.Equal(t, "https://myresult.co.kr/api/gyeongju2026/1024", resp.URL)

	require.False(t, resp.Prediction.Finished)
	require.Equal(t, predict.StatusRunning, resp.Prediction.StatusText)
	require.Equal(t, "11:00:58", resp.Prediction.FinishETA)
	require.Equal(t, "3:30:58", resp.Prediction.FinishNetPred)
}

func TestServer_ParticipantData_WaitingWithoutSplits(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	m := seedMarathon(t, rs, "Gyeongju Cherry Blossom", myresultTemplate, 42.195)
	seedParticipant(t, rs, tracker.Participant{MarathonID: m.ID, Bib: "1024", Active: true})

	rec := doRequest(t, s, http.MethodGet, "/api/participants/1/data", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"splits":[]`)
	require.Contains(t, rec.Body.String(), predict.StatusWaiting)
}

func TestServer_ParticipantData_NotFound(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/participants/9/data", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "participant not found")

	rec = doRequest(t, s, http.MethodGet, "/api/participants/zero/data", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_DebugParticipant_FetcherUnavailable(t *testing.T) {
	t.Parallel()

	s, rs := newTestServer(t)
	m := seedMarathon(t, rs, "Gyeongju Cherry Blossom", myresultTemplate, 42.195)
	seedParticipant(t, rs, tracker.Participant{MarathonID: m.ID, Bib: "1024", Active: true})

	rec := doRequest(t, s, http.MethodGet, "/api/participants/1/debug", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "fetcher unavailable")
}

func TestServer_DebugParticipant_ReportsParsedSplits(t *testing.T) {
	t.Parallel()

	feed := `JSON::{"data":{"splits":[
		{"point_label":"5km","point_km":5,"net_time":"00:26:11","pass_clock":"09:26:40"},
		{"point_label":"10km","point_km":10,"net_time":"00:52:30","pass_clock":"09:52:59"},
		{"point_label":"15km","point_km":15,"net_time":"01:19:02","pass_clock":"10:19:31"},
		{"point_label":"20km","point_km":20,"net_time":"01:45:55","pass_clock":"10:46:24"}
	]}}`
	fetcher := &fakeFetcher{content: feed}

	rs := memoryWithRunner(t)
	s := NewServer(rs, fetcher, &fakeClock{now: testNow}, testConfig(), zap.NewNop())

	rec := doRequest(t, s, http.MethodGet, "/api/participants/1/debug", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TestedURL string          `json:"tested_url"`
		Count     int             `json:"split_count"`
		Sample    []tracker.Split `json:"sample_splits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "https://myresult.co.kr/api/gyeongju2026/1024", resp.TestedURL)
	require.Equal(t, resp.TestedURL, fetcher.last())
	require.Equal(t, 4, resp.Count)
	require.Len(t, resp.Sample, maxDebugSplits)
	require.Equal(t, "5km", resp.Sample[0].PointLabel)
}

func TestServer_DebugParticipant_FetchError(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: io.ErrUnexpectedEOF}
	rs := memoryWithRunner(t)
	s := NewServer(rs, fetcher, &fakeClock{now: testNow}, testConfig(), zap.NewNop())

	rec := doRequest(t, s, http.MethodGet, "/api/participants/1/debug", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "fetch failed")
}

// --- helpers/fakes ---

type fakeFetcher struct {
	mu      sync.Mutex
	content string
	err     error
	lastURL string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastURL = url
	if f.err != nil {
		return "", f.err
	}
	return f.content, nil
}

func (f *fakeFetcher) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastURL
}

func memoryWithRunner(t *testing.T) *memory.ResultStore {
	t.Helper()
	rs := memory.NewResultStore()
	m := seedMarathon(t, rs, "Gyeongju Cherry Blossom", myresultTemplate, 42.195)
	seedParticipant(t, rs, tracker.Participant{MarathonID: m.ID, Bib: "1024", Active: true})
	return rs
}

func doImport(t *testing.T, s *Server, marathonID, csv string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("marathon_id", marathonID))
	fw, err := mw.CreateFormFile("file", "runners.csv")
	require.NoError(t, err)
	_, err = io.WriteString(fw, csv)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/participants/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}
