package render

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
)

func TestNewWorkerDefaults(t *testing.T) {
	t.Parallel()

	w, err := NewWorker(Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Close()

	if cap(w.limiter) != 1 {
		t.Fatalf("expected limiter capacity 1, got %d", cap(w.limiter))
	}
	if w.cfg.NavTimeout != 10*time.Second {
		t.Fatalf("expected default nav timeout, got %v", w.cfg.NavTimeout)
	}
}

func TestNewWorkerHonorsMaxParallel(t *testing.T) {
	t.Parallel()

	w, err := NewWorker(Config{MaxParallel: 3, NavTimeout: time.Second}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Close()

	if cap(w.limiter) != 3 {
		t.Fatalf("expected limiter capacity 3, got %d", cap(w.limiter))
	}
}

func TestFeedCaptureFiltersResponses(t *testing.T) {
	t.Parallel()

	capture := newFeedCapture()

	capture.captureEvent(&network.EventResponseReceived{
		RequestID: "req-1",
		Type:      network.ResourceTypeImage,
		Response:  &network.Response{MimeType: "image/png"},
	})
	if _, ok := capture.snapshot(); ok {
		t.Fatal("image responses must not be captured")
	}

	capture.captureEvent(&network.EventResponseReceived{
		RequestID: "req-2",
		Type:      network.ResourceTypeDocument,
		Response:  &network.Response{MimeType: "text/html; charset=utf-8"},
	})
	if _, ok := capture.snapshot(); ok {
		t.Fatal("html documents must not be captured")
	}

	capture.captureEvent(&network.EventResponseReceived{
		RequestID: "req-3",
		Type:      network.ResourceTypeXHR,
		Response:  &network.Response{MimeType: "application/json"},
	})
	id, ok := capture.snapshot()
	if !ok || id != "req-3" {
		t.Fatalf("expected json xhr to be captured, got %q ok=%v", id, ok)
	}

	capture.captureEvent(&network.EventResponseReceived{
		RequestID: "req-4",
		Type:      network.ResourceTypeDocument,
		Response:  &network.Response{MimeType: "application/json; charset=utf-8"},
	})
	id, ok = capture.snapshot()
	if !ok || id != "req-4" {
		t.Fatalf("expected latest json response to win, got %q ok=%v", id, ok)
	}
}
