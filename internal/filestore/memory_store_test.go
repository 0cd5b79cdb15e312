package filestore

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	payload := []byte{0x89, 'P', 'N', 'G'}
	if err := store.Put(ctx, "doc-1", "v1", payload, "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}

	file, err := store.Get(ctx, "doc-1", "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(file.Content, payload) {
		t.Fatalf("content mismatch")
	}
	if file.ContentType != "image/png" {
		t.Fatalf("content type = %q, want image/png", file.ContentType)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "doc-1", "v9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListAndDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Put(ctx, "doc-1", "v2", []byte("b"), "")
	_ = store.Put(ctx, "doc-1", "v1", []byte("a"), "")
	_ = store.Put(ctx, "doc-2", "v1", []byte("c"), "")

	keys, err := store.List(ctx, "doc-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 || keys[0] != "v1" || keys[1] != "v2" {
		t.Fatalf("keys = %v, want [v1 v2]", keys)
	}

	if err := store.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	keys, _ = store.List(ctx, "doc-1")
	if len(keys) != 0 {
		t.Fatalf("keys after delete = %v, want empty", keys)
	}
	// Other documents untouched.
	if _, err := store.Get(ctx, "doc-2", "v1"); err != nil {
		t.Fatalf("doc-2 lost: %v", err)
	}
}

func TestMemoryStorePutCopiesContent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	payload := []byte("abc")
	_ = store.Put(ctx, "doc-1", "v1", payload, "")
	payload[0] = 'z'

	file, _ := store.Get(ctx, "doc-1", "v1")
	if file.Content[0] != 'a' {
		t.Fatalf("stored content aliased caller buffer")
	}
}
