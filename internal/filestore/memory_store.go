package filestore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]File
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]File),
	}
}

func (s *MemoryStore) Put(_ context.Context, docID, key string, content []byte, contentType string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	docID = strings.TrimSpace(docID)
	key = strings.TrimSpace(key)
	if docID == "" {
		return fmt.Errorf("doc id is required")
	}
	if key == "" {
		return fmt.Errorf("file key is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[docID+"/"+key] = File{
		Content:     append([]byte(nil), content...),
		ContentType: contentType,
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, docID, key string) (*File, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	docID = strings.TrimSpace(docID)
	key = strings.TrimSpace(key)
	if docID == "" {
		return nil, fmt.Errorf("doc id is required")
	}
	if key == "" {
		return nil, fmt.Errorf("file key is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, ok := s.data[docID+"/"+key]
	if !ok {
		return nil, ErrNotFound
	}
	return &File{
		Content:     append([]byte(nil), file.Content...),
		ContentType: file.ContentType,
	}, nil
}

func (s *MemoryStore) List(_ context.Context, docID string) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, fmt.Errorf("doc id is required")
	}
	prefix := docID + "/"
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, 8)
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			out = append(out, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, docID string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return fmt.Errorf("doc id is required")
	}
	prefix := docID + "/"
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			delete(s.data, key)
		}
	}
	return nil
}

func (s *MemoryStore) GetURL(_ context.Context, _, _ string) (string, error) {
	// Memory store has no addressable URLs.
	return "", nil
}
