package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"imggen/internal/imagedoc"
)

func TestMemoryStorePutAssignsID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	doc := imagedoc.New("a red cat", time.Now())
	id, err := store.Put(ctx, doc)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if id == "" {
		t.Fatalf("expected assigned id")
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != id {
		t.Fatalf("id = %q, want %q", got.ID, id)
	}
	if text, _ := imagedoc.ResolvePrompt(got); text != "a red cat" {
		t.Fatalf("prompt = %q, want %q", text, "a red cat")
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreGetReturnsIsolatedCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	doc := imagedoc.New("a red cat", time.Now())
	id, err := store.Put(ctx, doc)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	first, _ := store.Get(ctx, id)
	first.Prompts["p1"] = imagedoc.PromptEntry{Text: "mutated"}

	second, _ := store.Get(ctx, id)
	if second.Prompts["p1"].Text != "a red cat" {
		t.Fatalf("stored document was aliased by a reader")
	}
}

func TestMemoryStoreUpdateSerializesAppends(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	id, err := store.Put(ctx, imagedoc.New("a red cat", now))
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := store.Update(ctx, id, func(doc *imagedoc.Document) (*imagedoc.Document, error) {
				next, _ := imagedoc.AppendVersion(doc, doc.CurrentPromptKey, time.Now())
				return next, nil
			})
			done <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Versions) != 2 {
		t.Fatalf("versions = %d, want 2 (concurrent appends must both land)", len(got.Versions))
	}
	if got.Versions[0].ID == got.Versions[1].ID {
		t.Fatalf("duplicate version key %q", got.Versions[0].ID)
	}
}

func TestMemoryStoreUpdateErrorLeavesDocument(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, _ := store.Put(ctx, imagedoc.New("a red cat", time.Now()))
	wantErr := errors.New("boom")
	if _, err := store.Update(ctx, id, func(doc *imagedoc.Document) (*imagedoc.Document, error) {
		doc.Prompts["p1"] = imagedoc.PromptEntry{Text: "scribbled"}
		return nil, wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}

	got, _ := store.Get(ctx, id)
	if got.Prompts["p1"].Text != "a red cat" {
		t.Fatalf("failed update leaked partial state: %q", got.Prompts["p1"].Text)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, _ := store.Put(ctx, imagedoc.New("a red cat", time.Now()))
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after delete", err)
	}
	if err := store.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListByTypeNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	older := imagedoc.New("first", base.Add(-time.Hour))
	newer := imagedoc.New("second", base)
	if _, err := store.Put(ctx, older); err != nil {
		t.Fatalf("put older: %v", err)
	}
	if _, err := store.Put(ctx, newer); err != nil {
		t.Fatalf("put newer: %v", err)
	}

	docs, err := store.ListByType(ctx, imagedoc.TypeImage)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len = %d, want 2", len(docs))
	}
	if text, _ := imagedoc.ResolvePrompt(docs[0]); text != "second" {
		t.Fatalf("first listed = %q, want newest", text)
	}
}

func TestMemoryStoreSubscribeStreamsChanges(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := store.Subscribe(ctx, imagedoc.TypeImage)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	id, _ := store.Put(ctx, imagedoc.New("a red cat", time.Now()))

	select {
	case change := <-ch:
		if change.Kind != ChangePut || change.ID != id {
			t.Fatalf("change = %+v, want put for %s", change, id)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for put change")
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case change := <-ch:
		if change.Kind != ChangeDelete || change.ID != id {
			t.Fatalf("change = %+v, want delete for %s", change, id)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for delete change")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			return // drain one buffered event is fine
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}
