package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jaekyeom/splitfeed/internal/tracker"
)

const resultTableHTML = `<html><body><table>
<tr><th>지점</th><th>기록</th></tr>
<tr><td>10km</td><td>00:52:10</td></tr>
</table></body></html>`

const feedNoFinishJSON = `JSON::{"splits":[{"point_label":"10km","net_time":"00:52:10","point_km":10}]}`

const feedWithFinishJSON = `JSON::{"splits":[
{"point_label":"10km","net_time":"00:52:10","point_km":10},
{"point_label":"도착","net_time":"01:45:12"}
]}`

const renderedFinishHTML = `<html><body>
<div class="record-summary"><span class="record-time">1:45:12</span></div>
<div class="table-row ant-row">
  <div class="ant-col">도착</div><div class="ant-col">11:45:40</div><div class="ant-col">1:45:12</div><div class="ant-col">4:59</div>
</div>
</body></html>`

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// laneFetcher answers canned content per URL and, when parallelTotal is
// set, records whether any serial-host fetch started before the parallel
// lane had fully drained.
type laneFetcher struct {
	mu            sync.Mutex
	responses     map[string]string
	errs          map[string]error
	panics        map[string]bool
	parallelTotal int
	parallelDone  int
	violated      bool
	serialOrder   []string
	calls         []string
}

func newLaneFetcher() *laneFetcher {
	return &laneFetcher{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		panics:    make(map[string]bool),
	}
}

func (f *laneFetcher) Fetch(_ context.Context, url string) (string, error) {
	serial := strings.Contains(url, "myresult")
	if !serial && f.parallelTotal > 0 {
		time.Sleep(5 * time.Millisecond)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if serial {
		if f.parallelTotal > 0 && f.parallelDone != f.parallelTotal {
			f.violated = true
		}
		f.serialOrder = append(f.serialOrder, url)
	} else {
		f.parallelDone++
	}

	if f.panics[url] {
		panic("normalize exploded")
	}
	if err := f.errs[url]; err != nil {
		return "", err
	}
	if content, ok := f.responses[url]; ok {
		return content, nil
	}
	return resultTableHTML, nil
}

func (f *laneFetcher) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type stubGate struct {
	mu      sync.Mutex
	blocked map[int64]bool
	marked  []int64
}

func newStubGate(blocked ...int64) *stubGate {
	g := &stubGate{blocked: make(map[int64]bool)}
	for _, id := range blocked {
		g.blocked[id] = true
	}
	return g
}

func (g *stubGate) ShouldRunMarathon(int64, time.Duration) bool { return true }
func (g *stubGate) MarkMarathonRun(int64)                       {}

func (g *stubGate) CanFetchParticipant(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.blocked[id]
}

func (g *stubGate) MarkParticipantFetch(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.marked = append(g.marked, id)
}

func (g *stubGate) markedIDs() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]int64, len(g.marked))
	copy(out, g.marked)
	return out
}

type stubRenderer struct {
	mu    sync.Mutex
	html  string
	err   error
	calls []string
}

func (r *stubRenderer) Fetch(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("feed fetch not expected here")
}

func (r *stubRenderer) Render(_ context.Context, url string, _ time.Duration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, url)
	return r.html, r.err
}

func (r *stubRenderer) renderedURLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func newTestDispatcher(f tracker.Fetcher, r tracker.Renderer, gate *stubGate) *Dispatcher {
	return New(
		Config{MaxParallel: 2},
		f,
		r,
		gate,
		fixedClock{t: time.Unix(1700000000, 0)},
		zap.NewNop(),
	)
}

func participantIDs(results []tracker.Result) []int64 {
	ids := make([]int64, 0, len(results))
	for _, res := range results {
		ids = append(ids, res.ParticipantID)
	}
	return ids
}

func TestCrawlRunsSerialLaneAfterParallelDrains(t *testing.T) {
	t.Parallel()

	// The bib substitutes into the host so one source exercises both lanes.
	m := tracker.Marathon{ID: 1, Name: "Daegu Intl", URLTemplate: "https://{nameorbibno}/record"}
	participants := []tracker.Participant{
		{ID: 1, MarathonID: 1, Bib: "myresult.co.kr/p/11"},
		{ID: 2, MarathonID: 1, Bib: "records-a.example.com/p/22"},
		{ID: 3, MarathonID: 1, Bib: "records-b.example.com/p/33"},
		{ID: 4, MarathonID: 1, Bib: "myresult.co.kr/p/44"},
		{ID: 5, MarathonID: 1, Bib: "records-c.example.com/p/55"},
	}

	fetcher := newLaneFetcher()
	fetcher.parallelTotal = 3
	d := newTestDispatcher(fetcher, nil, newStubGate())

	results := d.Crawl(context.Background(), m, participants)
	require.Len(t, results, 5)

	require.False(t, fetcher.violated, "serial lane must wait for the parallel lane to drain")
	require.Equal(t, []string{
		"https://myresult.co.kr/p/11/record",
		"https://myresult.co.kr/p/44/record",
	}, fetcher.serialOrder, "serial units keep participant order")

	ids := participantIDs(results)
	require.ElementsMatch(t, []int64{2, 3, 5}, ids[:3], "parallel results come first")
	require.Equal(t, []int64{1, 4}, ids[3:], "serial results follow in order")
}

func TestCrawlSkipsParticipantsInsideFetchWindow(t *testing.T) {
	t.Parallel()

	m := tracker.Marathon{ID: 1, URLTemplate: "https://records.example.com/r/{nameorbibno}"}
	participants := []tracker.Participant{
		{ID: 1, MarathonID: 1, Bib: "101"},
		{ID: 2, MarathonID: 1, Bib: "102"},
		{ID: 3, MarathonID: 1, Bib: "103"},
	}

	fetcher := newLaneFetcher()
	gate := newStubGate(2)
	d := newTestDispatcher(fetcher, nil, gate)

	results := d.Crawl(context.Background(), m, participants)

	require.ElementsMatch(t, []int64{1, 3}, participantIDs(results))
	require.Equal(t, []int64{1, 3}, gate.markedIDs(), "skipped participants must not be marked as attempted")
	for _, url := range fetcher.fetchedURLs() {
		require.NotContains(t, url, "/r/102", "skipped participants must not be fetched")
	}
}

func TestCrawlIsolatesUnitFailures(t *testing.T) {
	t.Parallel()

	m := tracker.Marathon{ID: 1, URLTemplate: "https://records.example.com/r/{nameorbibno}"}
	bibs := []string{"201", "202", "203", "204", "205"}
	participants := make([]tracker.Participant, 0, len(bibs))
	for i, bib := range bibs {
		participants = append(participants, tracker.Participant{ID: int64(i + 1), MarathonID: 1, Bib: bib})
	}

	fetcher := newLaneFetcher()
	fetcher.errs["https://records.example.com/r/202"] = errors.New("connection reset")
	fetcher.panics["https://records.example.com/r/204"] = true
	d := newTestDispatcher(fetcher, nil, newStubGate())

	results := d.Crawl(context.Background(), m, participants)

	require.ElementsMatch(t, []int64{1, 3, 5}, participantIDs(results),
		"failing and panicking units are dropped without taking siblings down")
}

func TestCrawlEnrichesMissingFinishFromRenderedPage(t *testing.T) {
	t.Parallel()

	m := tracker.Marathon{ID: 1, URLTemplate: "https://myresult.co.kr/api/{usedata}/{nameorbibno}", Usedata: "daegu"}
	participants := []tracker.Participant{{ID: 9, MarathonID: 1, Bib: "01234"}}

	fetcher := newLaneFetcher()
	fetcher.responses["https://myresult.co.kr/api/daegu/01234"] = feedNoFinishJSON
	renderer := &stubRenderer{html: renderedFinishHTML}
	d := newTestDispatcher(fetcher, renderer, newStubGate())

	results := d.Crawl(context.Background(), m, participants)
	require.Len(t, results, 1)
	require.Len(t, results[0].Splits, 2)

	finish := results[0].Splits[1]
	require.Equal(t, "Finish", finish.PointLabel)
	require.Equal(t, "1:45:12", finish.NetTime)
	require.Equal(t, "11:45:40", finish.PassClock)
	require.Nil(t, finish.PointKm)
	require.Empty(t, finish.Pace)

	rendered := renderer.renderedURLs()
	require.Len(t, rendered, 1)
	require.Contains(t, rendered[0], "https://myresult.co.kr/api/daegu/01234")
	require.Contains(t, rendered[0], "_ts=", "render re-fetch must bypass intermediary caches")
}

func TestCrawlSkipsEnrichmentWhenFeedHasFinish(t *testing.T) {
	t.Parallel()

	m := tracker.Marathon{ID: 1, URLTemplate: "https://myresult.co.kr/api/{usedata}/{nameorbibno}", Usedata: "daegu"}
	participants := []tracker.Participant{{ID: 9, MarathonID: 1, Bib: "01234"}}

	fetcher := newLaneFetcher()
	fetcher.responses["https://myresult.co.kr/api/daegu/01234"] = feedWithFinishJSON
	renderer := &stubRenderer{html: renderedFinishHTML}
	d := newTestDispatcher(fetcher, renderer, newStubGate())

	results := d.Crawl(context.Background(), m, participants)
	require.Len(t, results, 1)
	require.Len(t, results[0].Splits, 2)
	require.Empty(t, renderer.renderedURLs(), "a feed that already has a finish row is not enriched")
}

func TestCrawlSwallowsEnrichmentFailures(t *testing.T) {
	t.Parallel()

	m := tracker.Marathon{ID: 1, URLTemplate: "https://myresult.co.kr/api/{usedata}/{nameorbibno}", Usedata: "daegu"}
	participants := []tracker.Participant{{ID: 9, MarathonID: 1, Bib: "01234"}}

	fetcher := newLaneFetcher()
	fetcher.responses["https://myresult.co.kr/api/daegu/01234"] = feedNoFinishJSON

	renderer := &stubRenderer{err: errors.New("chrome crashed")}
	d := newTestDispatcher(fetcher, renderer, newStubGate())

	results := d.Crawl(context.Background(), m, participants)
	require.Len(t, results, 1)
	require.Len(t, results[0].Splits, 1, "the unenriched feed result still comes back")

	// A nil renderer disables the pass entirely.
	d = newTestDispatcher(fetcher, nil, newStubGate())
	results = d.Crawl(context.Background(), m, participants)
	require.Len(t, results, 1)
	require.Len(t, results[0].Splits, 1)
}
