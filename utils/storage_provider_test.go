package utils

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestMemoryObjectStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryObjectStore()
	if err := store.Put(ctx, "h1/invoices/1/x/page-001.png", []byte("png"), "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if b, ok := store.Get("h1/invoices/1/x/page-001.png"); !ok || string(b) != "png" {
		t.Fatalf("unexpected object %q ok=%v", b, ok)
	}
	if err := store.Delete(ctx, "h1/invoices/1/x/page-001.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// deleting twice is fine
	if err := store.Delete(ctx, "h1/invoices/1/x/page-001.png"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestOpenObject_MemoryProvider(t *testing.T) {
	t.Setenv("STORAGE_PROVIDER", "memory")
	ctx := context.Background()
	if err := NewObjectStore().Put(ctx, "h2/page.png", []byte{1, 2, 3}, "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rc, contentType, err := OpenObject(ctx, "h2/page.png")
	if err != nil {
		t.Fatalf("OpenObject: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if contentType != "image/png" || len(data) != 3 {
		t.Fatalf("unexpected object type=%q len=%d", contentType, len(data))
	}
	if _, _, err := OpenObject(ctx, "h2/missing.png"); !errors.Is(err, ErrorRecordNotFound) {
		t.Fatalf("expected ErrorRecordNotFound, got %v", err)
	}
}
