package filestore

import (
	"context"
	"errors"
)

// Store holds binary image payloads attached to documents, keyed by
// (document id, file key). File keys are version keys ("v1", "v2", ...)
// or the legacy "image" key.
type Store interface {
	Put(ctx context.Context, docID, key string, content []byte, contentType string) error
	Get(ctx context.Context, docID, key string) (*File, error)
	// List returns the file keys stored for a document, sorted.
	List(ctx context.Context, docID string) ([]string, error)
	// Delete removes every attachment of a document.
	Delete(ctx context.Context, docID string) error
	// GetURL returns a direct URL for the file when the backend can
	// produce one, or "" when it cannot.
	GetURL(ctx context.Context, docID, key string) (string, error)
}

// File is one stored attachment.
type File struct {
	Content     []byte
	ContentType string
}

var ErrNotFound = errors.New("file not found")
