package imagedoc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveVersionsPrefersStoredList(t *testing.T) {
	now := time.Now()
	doc := &Document{
		Type:    TypeImage,
		Created: now,
		Versions: []Version{
			{ID: "v1", Created: now},
			{ID: "v2", Created: now.Add(time.Minute)},
		},
		CurrentVersion: 1,
	}

	versions, idx := ResolveVersions(doc, false)
	require.Len(t, versions, 2)
	require.Equal(t, 1, idx)
	require.Equal(t, "v2", versions[idx].ID)
}

func TestResolveVersionsClampsInvalidIndex(t *testing.T) {
	doc := &Document{
		Versions:       []Version{{ID: "v1"}, {ID: "v2"}, {ID: "v3"}},
		CurrentVersion: 7,
	}
	_, idx := ResolveVersions(doc, false)
	if idx != 2 {
		t.Fatalf("index = %d, want 2 (last)", idx)
	}

	doc.CurrentVersion = -1
	_, idx = ResolveVersions(doc, false)
	if idx != 2 {
		t.Fatalf("index = %d, want 2 for negative pointer", idx)
	}
}

func TestResolveVersionsSynthesizesLegacy(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := &Document{Type: TypeImage, Created: created, Prompt: "a red cat"}

	versions, idx := ResolveVersions(doc, true)
	require.Len(t, versions, 1)
	require.Equal(t, 0, idx)
	require.Equal(t, LegacyFileKey, versions[0].ID)
	require.Equal(t, created, versions[0].Created)
}

func TestResolveVersionsEmptyDocument(t *testing.T) {
	versions, idx := ResolveVersions(&Document{}, false)
	if len(versions) != 0 || idx != -1 {
		t.Fatalf("got %d versions, idx %d; want empty, -1", len(versions), idx)
	}
}

func TestResolvePromptFallbackChain(t *testing.T) {
	now := time.Now()

	doc := &Document{
		Prompts: map[string]PromptEntry{
			"p1": {Text: "a red cat", Created: now},
			"p2": {Text: "a blue cat", Created: now.Add(time.Minute)},
		},
		CurrentPromptKey: "p2",
	}
	text, key := ResolvePrompt(doc)
	require.Equal(t, "a blue cat", text)
	require.Equal(t, "p2", key)

	// Dangling pointer falls back to the newest entry.
	doc.CurrentPromptKey = "p9"
	text, key = ResolvePrompt(doc)
	require.Equal(t, "a blue cat", text)
	require.Equal(t, "p2", key)

	// Legacy single-prompt field.
	legacy := &Document{Prompt: "old prompt"}
	text, key = ResolvePrompt(legacy)
	require.Equal(t, "old prompt", text)
	require.Equal(t, "", key)

	text, _ = ResolvePrompt(&Document{})
	require.Equal(t, "", text)
}

func TestResolveFileKeyFallsBackToLegacy(t *testing.T) {
	versions := []Version{{ID: "v1"}, {ID: "v2"}}
	files := map[string]bool{"v1": true, LegacyFileKey: true}
	has := func(key string) bool { return files[key] }

	if got := ResolveFileKey(0, versions, has); got != "v1" {
		t.Fatalf("key = %q, want v1", got)
	}
	// v2 has no file of its own; the legacy key backs it.
	if got := ResolveFileKey(1, versions, has); got != LegacyFileKey {
		t.Fatalf("key = %q, want %q", got, LegacyFileKey)
	}
	if got := ResolveFileKey(5, versions, has); got != "" {
		t.Fatalf("key = %q, want empty for out-of-range index", got)
	}
}

func TestAppendVersionCopiesOnWrite(t *testing.T) {
	now := time.Now()
	doc := New("a red cat", now)
	doc.ID = "doc-1"

	first, v1 := AppendVersion(doc, doc.CurrentPromptKey, now)
	require.Equal(t, "v1", v1.ID)
	require.Equal(t, 0, first.CurrentVersion)
	require.Empty(t, doc.Versions, "input document must not be mutated")

	second, v2 := AppendVersion(first, first.CurrentPromptKey, now.Add(time.Second))
	require.Equal(t, "v2", v2.ID)
	require.Equal(t, 1, second.CurrentVersion)
	require.Len(t, first.Versions, 1, "prior copy must keep its version list")
	require.Equal(t, "doc-1", second.ID)
}

func TestAppendPromptKeepsOldEntries(t *testing.T) {
	now := time.Now()
	doc := New("a red cat", now)

	edited, key := AppendPrompt(doc, "a blue cat", now.Add(time.Minute))
	require.Equal(t, "p2", key)
	require.Equal(t, "p2", edited.CurrentPromptKey)
	require.Equal(t, "a red cat", edited.Prompts["p1"].Text)
	require.Equal(t, "a blue cat", edited.Prompts["p2"].Text)
	require.Len(t, doc.Prompts, 1, "input document must not be mutated")
}

func TestNewDocumentShape(t *testing.T) {
	now := time.Now()
	doc := New("a red cat", now)

	require.Equal(t, TypeImage, doc.Type)
	require.Equal(t, "p1", doc.CurrentPromptKey)
	require.Equal(t, "a red cat", doc.Prompts["p1"].Text)
	require.Empty(t, doc.Versions)
}
