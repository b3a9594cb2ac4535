// Package dispatch executes one crawl pass over a marathon's participants,
// fanning fetches across a bounded parallel lane and a strictly ordered
// serial lane.
package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jaekyeom/splitfeed/internal/metrics"
	"github.com/jaekyeom/splitfeed/internal/parse"
	"github.com/jaekyeom/splitfeed/internal/schedule"
	"github.com/jaekyeom/splitfeed/internal/timefmt"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// myResultHost is the provider whose JSON feed sometimes omits the finish
// row that its rendered page already shows. Its rendering backend is also
// not safe under concurrent callers, hence the serial-lane default.
const myResultHost = "myresult.co.kr"

// Config controls lane sizing and politeness.
type Config struct {
	// MaxParallel bounds the parallel lane pool.
	MaxParallel int
	// SerialHosts lists host fragments forced through the serial lane.
	SerialHosts []string
	// HostRPS and HostBurst shape the per-host politeness limit applied
	// in the parallel lane.
	HostRPS   float64
	HostBurst int
	// RenderTimeout bounds the finish-enrichment render.
	RenderTimeout time.Duration
}

// Dispatcher crawls the participants of one marathon per call.
type Dispatcher struct {
	cfg      Config
	fetcher  tracker.Fetcher
	renderer tracker.Renderer
	sched    schedule.Scheduler
	hosts    *hostLimiter
	clock    tracker.Clock
	logger   *zap.Logger
}

// New builds a Dispatcher. renderer may be nil, which disables the finish
// enrichment pass.
func New(
	cfg Config,
	fetcher tracker.Fetcher,
	renderer tracker.Renderer,
	sched schedule.Scheduler,
	clock tracker.Clock,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if len(cfg.SerialHosts) == 0 {
		cfg.SerialHosts = []string{myResultHost}
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 15 * time.Second
	}
	metrics.Init()
	return &Dispatcher{
		cfg:      cfg,
		fetcher:  fetcher,
		renderer: renderer,
		sched:    sched,
		hosts:    newHostLimiter(cfg.HostRPS, cfg.HostBurst),
		clock:    clock,
		logger:   logger,
	}
}

// unit is one participant fetch bound to its built URL.
type unit struct {
	participant tracker.Participant
	url         string
	host        string
}

// Crawl runs one pass for the marathon and returns the normalized results,
// parallel lane first, then the serial lane in participant order.
// Participants still inside their fetch window are skipped without being
// marked; everyone else is marked as attempted before the fetch goes out.
func (d *Dispatcher) Crawl(ctx context.Context, m tracker.Marathon, participants []tracker.Participant) []tracker.Result {
	var serial, parallel []unit
	for _, p := range participants {
		if !d.sched.CanFetchParticipant(p.ID) {
			continue
		}
		d.sched.MarkParticipantFetch(p.ID)

		u := tracker.BuildURL(m.URLTemplate, p.Bib, m.Usedata)
		un := unit{participant: p, url: u, host: tracker.Host(u)}
		if tracker.HostMatches(un.host, d.cfg.SerialHosts) {
			serial = append(serial, un)
		} else {
			parallel = append(parallel, un)
		}
	}

	results := d.runParallel(ctx, m, parallel)
	results = append(results, d.runSerial(ctx, m, serial)...)
	return results
}

// runParallel fans units out over a semaphore-bounded pool. Results arrive
// in completion order.
func (d *Dispatcher) runParallel(ctx context.Context, m tracker.Marathon, units []unit) []tracker.Result {
	if len(units) == 0 {
		return nil
	}

	out := make(chan tracker.Result, len(units))
	sem := make(chan struct{}, d.cfg.MaxParallel)
	var wg sync.WaitGroup
	for _, un := range units {
		wg.Add(1)
		go func(un unit) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := d.hosts.wait(ctx, un.host); err != nil {
				d.logger.Warn("politeness wait aborted",
					zap.String("host", un.host),
					zap.Error(err),
				)
				return
			}
			if res, ok := d.crawlOne(ctx, m, un); ok {
				out <- res
			}
		}(un)
	}
	wg.Wait()
	close(out)

	results := make([]tracker.Result, 0, len(units))
	for res := range out {
		results = append(results, res)
	}
	return results
}

// runSerial executes units one at a time in list order. It runs only after
// the parallel lane has drained, so serial-host pages never see two
// concurrent callers.
func (d *Dispatcher) runSerial(ctx context.Context, m tracker.Marathon, units []unit) []tracker.Result {
	results := make([]tracker.Result, 0, len(units))
	for _, un := range units {
		if ctx.Err() != nil {
			return results
		}
		if res, ok := d.crawlOne(ctx, m, un); ok {
			results = append(results, res)
		}
	}
	return results
}

// crawlOne runs a single fetch+normalize unit. An error or panic inside the
// unit is logged and the unit dropped; siblings keep going.
func (d *Dispatcher) crawlOne(ctx context.Context, m tracker.Marathon, un unit) (res tracker.Result, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.ObserveCrawl(un.url, "panic", 0)
			d.logger.Error("participant crawl panicked",
				zap.Int64("participant_id", un.participant.ID),
				zap.String("url", un.url),
				zap.Any("panic", rec),
			)
			res, ok = tracker.Result{}, false
		}
	}()

	content, err := d.fetcher.Fetch(ctx, un.url)
	if err != nil {
		metrics.ObserveCrawl(un.url, "fetch_error", 0)
		d.logger.Warn("fetch failed",
			zap.Int64("participant_id", un.participant.ID),
			zap.String("url", un.url),
			zap.Error(err),
		)
		return tracker.Result{}, false
	}

	res, ok = parse.Normalize(content, un.host, un.url, m.Usedata, un.participant.Bib)
	if !ok {
		metrics.ObserveCrawl(un.url, "empty", len(content))
		d.logger.Debug("no usable result",
			zap.Int64("participant_id", un.participant.ID),
			zap.String("url", un.url),
		)
		return tracker.Result{}, false
	}
	metrics.ObserveCrawl(un.url, "ok", len(content))
	res.ParticipantID = un.participant.ID
	res.Bib = un.participant.Bib
	res.PageURL = un.url

	d.enrichFinish(ctx, un, content, &res)
	return res, true
}

// enrichFinish appends the finish row that the myresult JSON feed sometimes
// omits even though the rendered page already shows it. The page is fetched
// through the renderer, bypassing the fetch cache. Any failure leaves the
// result as parsed.
func (d *Dispatcher) enrichFinish(ctx context.Context, un unit, content string, res *tracker.Result) {
	if d.renderer == nil {
		return
	}
	if !strings.Contains(un.host, myResultHost) || !tracker.IsJSONFeed(content) {
		return
	}
	if hasFinishSplit(res.Splits) {
		return
	}

	busted := tracker.WithCacheBuster(un.url, d.clock.Now())
	html, err := d.renderer.Render(ctx, busted, d.cfg.RenderTimeout)
	if err != nil || html == "" {
		metrics.ObserveRender("error")
		d.logger.Debug("finish enrichment render failed",
			zap.String("url", un.url),
			zap.Error(err),
		)
		return
	}

	doc, err := parse.NewDocument(html)
	if err != nil {
		metrics.ObserveRender("unparseable")
		return
	}
	total := parse.ExtractTotalNetTime(doc)
	if !timefmt.LooksTime(total) {
		metrics.ObserveRender("no_finish")
		return
	}
	metrics.ObserveRender("ok")
	res.Splits = append(res.Splits, tracker.Split{
		PointLabel: "Finish",
		NetTime:    total,
		PassClock:  parse.ExtractFinishClock(doc),
	})
	d.logger.Info("synthesized finish from rendered page",
		zap.Int64("participant_id", un.participant.ID),
		zap.String("net_time", total),
	)
}

func hasFinishSplit(splits []tracker.Split) bool {
	for _, sp := range splits {
		if timefmt.IsFinishLabel(sp.PointLabel) {
			return true
		}
	}
	return false
}
