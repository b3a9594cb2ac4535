package memory

import (
	"context"
	"testing"
)

func TestBlobStoreCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	path, err := store.Store(context.Background(), "7_certificate.jpg", "image/jpeg", payload)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if path != "memory://7_certificate.jpg" {
		t.Fatalf("unexpected path %s", path)
	}
	payload[0] = 'C'
	stored, ok := store.Bytes("7_certificate.jpg")
	if !ok {
		t.Fatal("stored file not found")
	}
	if string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
}

func TestBlobStoreRequiresName(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	if _, err := store.Store(context.Background(), "", "image/jpeg", []byte("x")); err == nil {
		t.Fatal("Store() with empty name should fail")
	}
}
