// Package fetch retrieves provider result pages. It layers a short-lived
// response cache over a router that sends browser-built pages through the
// rendering worker and everything else through plain HTTP.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// ClientConfig controls the plain HTTP fetch path.
type ClientConfig struct {
	UserAgent          string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Client executes single-shot HTTP GETs with a cloned Colly collector per
// request. Charset detection is on because several providers still serve
// EUC-KR pages.
type Client struct {
	cfg           ClientConfig
	baseCollector *colly.Collector
}

// NewClient builds a Client.
func NewClient(cfg ClientConfig) *Client {
	c := colly.NewCollector(
		colly.Async(false),
		colly.DetectCharset(),
		colly.IgnoreRobotsTxt(),
	)
	c.WithTransport(newHTTPTransport(cfg.InsecureSkipVerify))
	return &Client{cfg: cfg, baseCollector: c}
}

// Get fetches one URL and returns the decoded body. Non-2xx statuses and
// transport failures surface as errors.
func (c *Client) Get(ctx context.Context, url string) (string, error) {
	var (
		body     string
		fetchErr error
	)

	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	timeout := c.cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return "", fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		return body, nil
	}
}

func newHTTPTransport(insecureSkipVerify bool) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: insecureSkipVerify}, //nolint:gosec // opt-in via config
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
