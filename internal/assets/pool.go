// Package assets downloads and stores binary artifacts (finish
// certificates) referenced by crawl results. A fixed pool of workers
// drains an unbounded queue so slow image hosts never stall the polling
// tick.
package assets

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jaekyeom/splitfeed/internal/metrics"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// PathStore records where a finished download landed.
type PathStore interface {
	SetAssetLocalPath(ctx context.Context, participantID int64, kind, localPath string) error
}

// Config controls the download pool.
type Config struct {
	// Workers is the pool size.
	Workers int
	// UserAgent is sent on download requests.
	UserAgent string
	// Timeout bounds a single download.
	Timeout time.Duration
	// JoinTimeout bounds how long Stop waits for workers to drain.
	JoinTimeout time.Duration
}

// Pool runs asset downloads in the background.
type Pool struct {
	cfg    Config
	queue  *taskQueue
	files  tracker.FileStore
	paths  PathStore
	logger *zap.Logger

	client httpDoer
	done   chan struct{}
}

// NewPool constructs a Pool. Start must be called before tasks are
// consumed.
func NewPool(cfg Config, files tracker.FileStore, paths PathStore, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 5 * time.Second
	}
	metrics.Init()
	return &Pool{
		cfg:    cfg,
		queue:  newTaskQueue(),
		files:  files,
		paths:  paths,
		logger: logger,
		client: newDownloadClient(cfg.Timeout),
		done:   make(chan struct{}, cfg.Workers),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		go p.worker(ctx, i)
	}
}

// Enqueue hands one download task to the pool. Never blocks.
func (p *Pool) Enqueue(task tracker.AssetTask) {
	p.queue.push(&task)
	metrics.SetAssetQueueDepth(p.queue.len())
}

// QueueLen reports the number of queued tasks.
func (p *Pool) QueueLen() int {
	return p.queue.len()
}

// Stop pushes one shutdown sentinel per worker and waits up to the join
// timeout for them to exit. Tasks queued behind the sentinels are
// abandoned.
func (p *Pool) Stop() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.queue.push(nil)
	}
	deadline := time.After(p.cfg.JoinTimeout)
	for i := 0; i < p.cfg.Workers; i++ {
		select {
		case <-p.done:
		case <-deadline:
			p.logger.Warn("asset workers did not drain before timeout",
				zap.Int("remaining", p.cfg.Workers-i),
				zap.Int("queued", p.queue.len()),
			)
			return
		}
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer func() { p.done <- struct{}{} }()
	for {
		task := p.queue.pop()
		metrics.SetAssetQueueDepth(p.queue.len())
		if task == nil {
			p.logger.Debug("asset worker exiting", zap.Int("worker", id))
			return
		}
		p.process(ctx, *task)
	}
}

// process downloads one asset and records its stored path. Failures are
// logged and dropped; the asset row keeps an empty local path and becomes
// eligible again the next time the crawl re-observes it.
func (p *Pool) process(ctx context.Context, task tracker.AssetTask) {
	data, contentType, err := p.download(ctx, task)
	if err != nil {
		metrics.ObserveAssetDownload("download_error")
		p.logger.Warn("asset download failed",
			zap.Int64("participant_id", task.ParticipantID),
			zap.String("kind", task.Kind),
			zap.String("url", task.URL),
			zap.Error(err),
		)
		return
	}

	name := fileName(task, contentType)
	localPath, err := p.files.Store(ctx, name, contentType, data)
	if err != nil {
		metrics.ObserveAssetDownload("store_error")
		p.logger.Warn("asset store failed",
			zap.Int64("participant_id", task.ParticipantID),
			zap.String("kind", task.Kind),
			zap.String("name", name),
			zap.Error(err),
		)
		return
	}

	if err := p.paths.SetAssetLocalPath(ctx, task.ParticipantID, task.Kind, localPath); err != nil {
		metrics.ObserveAssetDownload("path_error")
		p.logger.Warn("asset path update failed",
			zap.Int64("participant_id", task.ParticipantID),
			zap.String("kind", task.Kind),
			zap.String("local_path", localPath),
			zap.Error(err),
		)
		return
	}

	metrics.ObserveAssetDownload("stored")
	p.logger.Info("asset stored",
		zap.Int64("participant_id", task.ParticipantID),
		zap.String("kind", task.Kind),
		zap.String("local_path", localPath),
		zap.Int("bytes", len(data)),
	)
}
