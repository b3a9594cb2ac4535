// Package engine drives the crawl loop: a single-threaded tick over the
// enabled marathons that fans out through the dispatcher and commits
// results through the aggregator.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jaekyeom/splitfeed/internal/metrics"
	"github.com/jaekyeom/splitfeed/internal/schedule"
	"github.com/jaekyeom/splitfeed/internal/store"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// State is the engine lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Crawler runs one crawl pass for a marathon. The dispatcher implements it.
type Crawler interface {
	Crawl(ctx context.Context, m tracker.Marathon, participants []tracker.Participant) []tracker.Result
}

// WorkerPool is the asset pool's lifecycle as the engine sees it.
type WorkerPool interface {
	Start(ctx context.Context)
	Stop()
}

// Migrator is implemented by stores that need schema setup before use.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Config sizes the engine loop.
type Config struct {
	// TickInterval is the sleep between tick evaluations. Cadence is
	// approximate, bounded below by this interval.
	TickInterval time.Duration
}

// Engine owns the crawl control loop.
type Engine struct {
	cfg     Config
	store   store.Store
	sched   schedule.Scheduler
	crawler Crawler
	agg     *Aggregator
	pool    WorkerPool
	logger  *zap.Logger

	state atomic.Int32
}

// New builds an Engine in the Idle state.
func New(
	cfg Config,
	st store.Store,
	sched schedule.Scheduler,
	crawler Crawler,
	agg *Aggregator,
	pool WorkerPool,
	logger *zap.Logger,
) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	metrics.Init()
	e := &Engine{
		cfg:     cfg,
		store:   st,
		sched:   sched,
		crawler: crawler,
		agg:     agg,
		pool:    pool,
		logger:  logger,
	}
	e.state.Store(int32(StateIdle))
	return e
}

// State reports the current lifecycle phase. Safe to call from any
// goroutine.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Run initializes storage and the asset pool, then ticks until ctx is
// canceled. It returns the error that aborted initialization, or nil
// after a clean shutdown.
func (e *Engine) Run(ctx context.Context) error {
	e.setState(StateInitializing)
	if err := e.initialize(ctx); err != nil {
		e.setState(StateStopped)
		return err
	}

	e.setState(StateRunning)
	e.logger.Info("engine running", zap.Duration("tick_interval", e.cfg.TickInterval))
	for {
		if ctx.Err() != nil {
			e.shutdown()
			return nil
		}
		e.tick(ctx)
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-time.After(e.cfg.TickInterval):
		}
	}
}

func (e *Engine) initialize(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("storage ping: %w", err)
	}
	if mig, ok := e.store.(Migrator); ok {
		if err := mig.Migrate(ctx); err != nil {
			return fmt.Errorf("storage migration: %w", err)
		}
	}
	e.pool.Start(ctx)
	return nil
}

func (e *Engine) shutdown() {
	e.setState(StateShuttingDown)
	e.logger.Info("engine shutting down")
	e.pool.Stop()
	e.setState(StateStopped)
	e.logger.Info("engine stopped")
}

// tick evaluates every enabled marathon once. Errors are logged and the
// loop keeps going; a broken store on one tick must not kill the crawl.
func (e *Engine) tick(ctx context.Context) {
	marathons, err := e.store.ListEnabledMarathons(ctx)
	if err != nil {
		e.logger.Error("tick failed", zap.Error(err))
		return
	}
	for _, m := range marathons {
		e.processMarathon(ctx, m)
	}
}

func (e *Engine) processMarathon(ctx context.Context, m tracker.Marathon) {
	if !e.sched.ShouldRunMarathon(m.ID, m.Cadence()) {
		return
	}
	start := time.Now()

	participants, err := e.store.ListActiveParticipants(ctx, m.ID)
	if err != nil {
		e.recordFailure(m)
		metrics.ObserveMarathonRun("list_error")
		e.logger.Error("list participants failed",
			zap.Int64("marathon_id", m.ID),
			zap.Error(err),
		)
		return
	}
	if len(participants) == 0 {
		e.sched.MarkMarathonRun(m.ID)
		metrics.ObserveMarathonRun("idle")
		return
	}

	results := e.crawler.Crawl(ctx, m, participants)
	if err := e.agg.Save(ctx, m, results); err != nil {
		e.recordFailure(m)
		metrics.ObserveMarathonRun("save_error")
		e.logger.Error("save failed",
			zap.Int64("marathon_id", m.ID),
			zap.Error(err),
		)
		return
	}

	e.recordSuccess(m)
	metrics.ObserveMarathonRun("ok")
	e.logger.Info("marathon crawled",
		zap.Int64("marathon_id", m.ID),
		zap.Int("participants", len(participants)),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
}

func (e *Engine) recordSuccess(m tracker.Marathon) {
	if ad, ok := e.sched.(schedule.Adaptive); ok {
		ad.RecordSuccess(m.ID)
		return
	}
	e.sched.MarkMarathonRun(m.ID)
}

func (e *Engine) recordFailure(m tracker.Marathon) {
	if ad, ok := e.sched.(schedule.Adaptive); ok {
		ad.RecordFailure(m.ID)
		e.logger.Warn("marathon crawl failed, backing off",
			zap.Int64("marathon_id", m.ID),
			zap.Duration("retry_in", ad.BackoffFor(m.ID, m.Cadence())),
		)
		return
	}
	e.sched.MarkMarathonRun(m.ID)
}
