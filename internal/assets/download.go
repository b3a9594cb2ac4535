package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// maxAssetBytes caps a single download; certificates are small images.
const maxAssetBytes = 32 << 20

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func newDownloadClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// download fetches the asset bytes. Only a 200 response counts; providers
// answer redirects-to-error-page or 404 for expired certificates.
func (p *Pool) download(ctx context.Context, task tracker.AssetTask) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")
	if task.Referer != "" {
		req.Header.Set("Referer", task.Referer)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("get asset: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read asset body: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty asset body")
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// fileName derives the stored file name: participant id, kind, and an
// extension from the content type, falling back to the URL path and
// finally .jpg.
func fileName(task tracker.AssetTask, contentType string) string {
	return fmt.Sprintf("%d_%s%s", task.ParticipantID, task.Kind, fileExt(contentType, task.URL))
}

func fileExt(contentType, rawURL string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	return ".jpg"
}
