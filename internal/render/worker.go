// Package render drives a headless browser for providers that assemble their
// result tables client side. One worker owns one browser allocator; fetches
// are serialized through a small semaphore because the targeted providers
// misbehave under concurrent sessions.
package render

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// JSONPrefix marks fetches that resolved to a machine-readable JSON feed
// instead of a document worth parsing as HTML.
const JSONPrefix = tracker.JSONPrefix

// settleDelay gives client-side scripts a moment to populate the result
// table after the DOM is ready.
const settleDelay = 500 * time.Millisecond

// Config controls the rendering worker.
type Config struct {
	MaxParallel int
	UserAgent   string
	NavTimeout  time.Duration
}

// Worker renders pages with headless Chrome via chromedp.
type Worker struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewWorker creates a rendering worker backed by chromedp. The browser
// process starts lazily on the first fetch.
func NewWorker(cfg Config, logger *zap.Logger) (*Worker, error) {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 10 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Worker{
		cfg:         cfg,
		limiter:     make(chan struct{}, cfg.MaxParallel),
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context, tearing down the browser.
func (w *Worker) Close() {
	w.allocCancel()
}

// Fetch loads url and returns its result feed when the navigation resolves
// to a JSON response (prefixed with JSONPrefix), otherwise the rendered DOM.
func (w *Worker) Fetch(ctx context.Context, url string, timeout time.Duration) (string, error) {
	return w.run(ctx, url, timeout, true)
}

// Render loads url and always returns the rendered DOM, even when a JSON
// feed was observed during the load.
func (w *Worker) Render(ctx context.Context, url string, timeout time.Duration) (string, error) {
	return w.run(ctx, url, timeout, false)
}

func (w *Worker) run(ctx context.Context, url string, timeout time.Duration, wantFeed bool) (string, error) {
	if err := w.acquire(ctx); err != nil {
		return "", err
	}
	defer w.release()

	if timeout <= 0 {
		timeout = w.cfg.NavTimeout
	}

	taskCtx, taskCancel := chromedp.NewContext(w.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, timeout)
	defer cancel()

	capture := newFeedCapture()
	chromedp.ListenTarget(taskCtx, capture.captureEvent)

	var html string
	actions := []chromedp.Action{
		w.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}

	if wantFeed {
		if requestID, ok := capture.snapshot(); ok {
			if feed, err := w.feedBody(taskCtx, requestID); err == nil && feed != "" {
				return JSONPrefix + feed, nil
			} else if err != nil {
				w.logger.Debug("feed body unavailable, using rendered dom",
					zap.String("url", url),
					zap.Error(err),
				)
			}
		}
	}

	return html, nil
}

func (w *Worker) feedBody(ctx context.Context, requestID network.RequestID) (string, error) {
	var body []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(requestID).Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("get response body: %w", err)
	}
	return string(body), nil
}

func (w *Worker) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if w.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(w.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (w *Worker) acquire(ctx context.Context) error {
	select {
	case w.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (w *Worker) release() {
	select {
	case <-w.limiter:
	default:
	}
}

// feedCapture remembers the most recent JSON response observed during a page
// load. Result feeds arrive as the document itself or as an XHR fired by the
// page app.
type feedCapture struct {
	mu        sync.Mutex
	requestID network.RequestID
	seen      bool
}

func newFeedCapture() *feedCapture {
	return &feedCapture{}
}

func (c *feedCapture) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Response == nil {
		return
	}
	switch resp.Type {
	case network.ResourceTypeDocument, network.ResourceTypeXHR, network.ResourceTypeFetch:
	default:
		return
	}
	if !strings.Contains(strings.ToLower(resp.Response.MimeType), "json") {
		return
	}
	c.mu.Lock()
	c.requestID = resp.RequestID
	c.seen = true
	c.mu.Unlock()
}

func (c *feedCapture) snapshot() (network.RequestID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestID, c.seen
}
