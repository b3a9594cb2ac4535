package tracker

import (
	"context"
	"time"
)

// Fetcher retrieves the content behind a provider URL. Implementations decide
// how (plain HTTP, headless render) and may cache.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Renderer drives a browser for pages that assemble their results client
// side. Fetch prefers the page's machine-readable feed: when the load
// resolves to a JSON response it returns that payload prefixed "JSON::",
// falling back to the rendered document. Render always returns the rendered
// document, which is what the finish-enrichment scrape needs.
type Renderer interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (string, error)
	Render(ctx context.Context, url string, timeout time.Duration) (string, error)
}

// FileStore persists downloaded artifacts and returns the stored path.
type FileStore interface {
	Store(ctx context.Context, name string, contentType string, data []byte) (string, error)
}

// Publisher pushes post-save notifications for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
