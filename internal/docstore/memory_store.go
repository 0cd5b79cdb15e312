package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"imggen/internal/imagedoc"
)

// MemoryStore keeps documents as marshaled JSON so callers can never
// alias stored state. Suitable for tests and single-process runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	feed *feed
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
		feed: newFeed(),
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*imagedoc.Document, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	s.mu.RLock()
	raw, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeDocument(id, raw)
}

func (s *MemoryStore) Put(_ context.Context, doc *imagedoc.Document) (string, error) {
	if s == nil {
		return "", fmt.Errorf("store is nil")
	}
	if doc == nil {
		return "", fmt.Errorf("document is required")
	}
	id := strings.TrimSpace(doc.ID)
	if id == "" {
		id = uuid.NewString()
	}
	stored := *doc
	stored.ID = id
	raw, err := json.Marshal(&stored)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	s.mu.Lock()
	s.data[id] = raw
	s.mu.Unlock()
	s.feed.publish(Change{Kind: ChangePut, ID: id, Doc: &stored})
	return id, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(doc *imagedoc.Document) (*imagedoc.Document, error)) (*imagedoc.Document, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("update fn is required")
	}

	s.mu.Lock()
	raw, ok := s.data[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	cur, err := decodeDocument(id, raw)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	next, err := fn(cur)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if next == nil {
		next = cur
	}
	next.ID = id
	encoded, err := json.Marshal(next)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("encode document: %w", err)
	}
	s.data[id] = encoded
	s.mu.Unlock()

	s.feed.publish(Change{Kind: ChangePut, ID: id, Doc: next})
	return next, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("id is required")
	}
	s.mu.Lock()
	_, ok := s.data[id]
	delete(s.data, id)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.feed.publish(Change{Kind: ChangeDelete, ID: id})
	return nil
}

func (s *MemoryStore) ListByType(_ context.Context, docType string) ([]*imagedoc.Document, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	docType = strings.TrimSpace(docType)
	if docType == "" {
		return nil, fmt.Errorf("doc type is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*imagedoc.Document, 0, 16)
	for id, raw := range s.data {
		doc, err := decodeDocument(id, raw)
		if err != nil {
			continue
		}
		if doc.Type != docType {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.After(out[j].Created)
	})
	return out, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, docType string) (<-chan Change, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	return s.feed.subscribe(ctx, docType)
}

func decodeDocument(id string, raw []byte) (*imagedoc.Document, error) {
	var doc imagedoc.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	doc.ID = id
	return &doc, nil
}
