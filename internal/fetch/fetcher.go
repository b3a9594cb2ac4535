package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// Fetcher routes a fetch to the rendering worker or the HTTP client based on
// the URL's host and stamps a cache-busting parameter on the outgoing
// request. Render failures fall back to plain HTTP.
type Fetcher struct {
	client        *Client
	renderer      tracker.Renderer
	renderHosts   []string
	renderTimeout time.Duration
	clock         tracker.Clock
	logger        *zap.Logger
}

// NewFetcher builds a Fetcher. renderer may be nil when headless fetching is
// disabled; render-host URLs then go straight to HTTP.
func NewFetcher(
	client *Client,
	renderer tracker.Renderer,
	renderHosts []string,
	renderTimeout time.Duration,
	clock tracker.Clock,
	logger *zap.Logger,
) *Fetcher {
	if renderTimeout <= 0 {
		renderTimeout = 10 * time.Second
	}
	return &Fetcher{
		client:        client,
		renderer:      renderer,
		renderHosts:   renderHosts,
		renderTimeout: renderTimeout,
		clock:         clock,
		logger:        logger,
	}
}

// Fetch retrieves the content behind url. Callers pass the logical URL; the
// buster parameter is added here so caches layered above stay keyed on the
// logical form.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	busted := tracker.WithCacheBuster(url, f.clock.Now())
	host := tracker.Host(url)

	if f.renderer != nil && tracker.HostMatches(host, f.renderHosts) {
		content, err := f.renderer.Fetch(ctx, busted, f.renderTimeout)
		if err == nil && content != "" {
			return content, nil
		}
		f.logger.Warn("render fetch failed, falling back to http",
			zap.String("host", host),
			zap.Error(err),
		)
	}

	return f.client.Get(ctx, busted)
}
