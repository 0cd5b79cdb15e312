package imagedoc

import (
	"fmt"
	"strings"
	"time"
)

// TypeImage tags every generated-image document.
const TypeImage = "image"

// LegacyFileKey is the attachment key used by documents created before
// the multi-version schema. Readers fall back to it when a version has
// no dedicated file entry.
const LegacyFileKey = "image"

// PromptEntry is one recorded prompt revision.
type PromptEntry struct {
	Text    string    `json:"text"`
	Created time.Time `json:"created"`
}

// Version is one generated image attached to a document.
type Version struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	// PromptKey points at the prompt entry the version was generated
	// from. Empty for legacy versions and manual uploads.
	PromptKey string `json:"promptKey,omitempty"`
}

// Document is a versioned image record. Prompts and Versions are
// append-only; mutations construct a new value and write it back whole.
type Document struct {
	ID               string                 `json:"_id,omitempty"`
	Type             string                 `json:"type"`
	Created          time.Time              `json:"created"`
	Prompts          map[string]PromptEntry `json:"prompts,omitempty"`
	CurrentPromptKey string                 `json:"currentPromptKey,omitempty"`
	Versions         []Version              `json:"versions,omitempty"`
	CurrentVersion   int                    `json:"currentVersion"`

	// Prompt is the legacy single-prompt field. Kept readable so
	// documents created before the versioned schema still resolve.
	Prompt string `json:"prompt,omitempty"`
}

// ResolveVersions projects a document into its canonical version list
// and the index of the active version. Legacy documents with only the
// "image" attachment synthesize a single version. Returns (nil, -1)
// when the document has no displayable version at all.
func ResolveVersions(doc *Document, hasLegacyFile bool) ([]Version, int) {
	if doc == nil {
		return nil, -1
	}
	if len(doc.Versions) > 0 {
		idx := doc.CurrentVersion
		if idx < 0 || idx >= len(doc.Versions) {
			idx = len(doc.Versions) - 1
		}
		return doc.Versions, idx
	}
	if hasLegacyFile {
		return []Version{{ID: LegacyFileKey, Created: doc.Created}}, 0
	}
	return nil, -1
}

// ResolvePrompt returns the active prompt text and its key. Preference
// order: current prompt entry, newest prompt entry, legacy Prompt
// field, empty string.
func ResolvePrompt(doc *Document) (string, string) {
	if doc == nil {
		return "", ""
	}
	if key := strings.TrimSpace(doc.CurrentPromptKey); key != "" {
		if entry, ok := doc.Prompts[key]; ok {
			return entry.Text, key
		}
	}
	if len(doc.Prompts) > 0 {
		latestKey := ""
		var latest time.Time
		for key, entry := range doc.Prompts {
			if latestKey == "" || entry.Created.After(latest) {
				latestKey = key
				latest = entry.Created
			}
		}
		return doc.Prompts[latestKey].Text, latestKey
	}
	if doc.Prompt != "" {
		return doc.Prompt, ""
	}
	return "", ""
}

// ResolveFileKey maps the version at versionIndex to its attachment
// key. Versions whose own key has no stored file fall back to the
// legacy "image" key; hasFile reports whether a key is present in the
// file store. Returns "" when nothing backs the version.
func ResolveFileKey(versionIndex int, versions []Version, hasFile func(key string) bool) string {
	if versionIndex < 0 || versionIndex >= len(versions) {
		return ""
	}
	key := versions[versionIndex].ID
	if hasFile == nil {
		return key
	}
	if hasFile(key) {
		return key
	}
	if hasFile(LegacyFileKey) {
		return LegacyFileKey
	}
	return ""
}

// NextVersionKey returns the key the next appended version will use.
func NextVersionKey(doc *Document) string {
	if doc == nil {
		return "v1"
	}
	return fmt.Sprintf("v%d", len(doc.Versions)+1)
}

// NextPromptKey returns the key the next appended prompt will use.
func NextPromptKey(doc *Document) string {
	if doc == nil {
		return "p1"
	}
	n := len(doc.Prompts) + 1
	for {
		key := fmt.Sprintf("p%d", n)
		if _, exists := doc.Prompts[key]; !exists {
			return key
		}
		n++
	}
}

// AppendVersion returns a copy of doc with one more version appended
// and CurrentVersion pointed at it. The input document is not touched.
func AppendVersion(doc *Document, promptKey string, now time.Time) (*Document, Version) {
	out := clone(doc)
	version := Version{
		ID:        NextVersionKey(doc),
		Created:   now,
		PromptKey: strings.TrimSpace(promptKey),
	}
	out.Versions = append(out.Versions, version)
	out.CurrentVersion = len(out.Versions) - 1
	return out, version
}

// AppendPrompt returns a copy of doc with a new prompt entry appended
// and CurrentPromptKey pointed at it.
func AppendPrompt(doc *Document, text string, now time.Time) (*Document, string) {
	out := clone(doc)
	key := NextPromptKey(doc)
	if out.Prompts == nil {
		out.Prompts = make(map[string]PromptEntry, 1)
	}
	out.Prompts[key] = PromptEntry{Text: text, Created: now}
	out.CurrentPromptKey = key
	return out, key
}

// New builds a fresh document for a first generation.
func New(prompt string, now time.Time) *Document {
	doc := &Document{
		Type:    TypeImage,
		Created: now,
	}
	withPrompt, _ := AppendPrompt(doc, prompt, now)
	return withPrompt
}

func clone(doc *Document) *Document {
	if doc == nil {
		return &Document{Type: TypeImage}
	}
	out := *doc
	if doc.Prompts != nil {
		out.Prompts = make(map[string]PromptEntry, len(doc.Prompts)+1)
		for key, entry := range doc.Prompts {
			out.Prompts[key] = entry
		}
	}
	if doc.Versions != nil {
		out.Versions = append([]Version(nil), doc.Versions...)
	}
	return &out
}
