package docstore

import (
	"context"
	"errors"

	"imggen/internal/imagedoc"
)

// Store persists image documents and exposes a change feed for live
// queries. Update serializes read-modify-write cycles against one
// document id so concurrent version appends cannot lose entries.
type Store interface {
	Get(ctx context.Context, id string) (*imagedoc.Document, error)
	// Put writes the whole document, assigning an id when absent, and
	// returns the id.
	Put(ctx context.Context, doc *imagedoc.Document) (string, error)
	// Update applies fn to the current stored document under a write
	// lock and persists the result fn leaves in place.
	Update(ctx context.Context, id string, fn func(doc *imagedoc.Document) (*imagedoc.Document, error)) (*imagedoc.Document, error)
	Delete(ctx context.Context, id string) error
	ListByType(ctx context.Context, docType string) ([]*imagedoc.Document, error)
	// Subscribe streams changes for documents of the given type until
	// ctx is canceled.
	Subscribe(ctx context.Context, docType string) (<-chan Change, error)
}

var ErrNotFound = errors.New("document not found")

type ChangeKind string

const (
	ChangePut    ChangeKind = "put"
	ChangeDelete ChangeKind = "delete"
)

// Change is one live-query event.
type Change struct {
	Kind ChangeKind         `json:"kind"`
	ID   string             `json:"id"`
	Doc  *imagedoc.Document `json:"doc,omitempty"`
}
