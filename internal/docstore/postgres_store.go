package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"imggen/internal/imagedoc"
)

// PostgresStore persists documents as JSONB rows. The change feed is
// process-local; cross-process listeners would need LISTEN/NOTIFY,
// which this store does not implement.
type PostgresStore struct {
	db   *sql.DB
	feed *feed

	schemaOnce sync.Once
	schemaErr  error

	cache *lru.Cache[string, []byte]
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	cache, err := lru.New[string, []byte](1024)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{
		db:    db,
		feed:  newFeed(),
		cache: cache,
	}, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) ensureSchema() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS image_documents (
  id TEXT PRIMARY KEY,
  doc_type TEXT NOT NULL DEFAULT 'image',
  body JSONB NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_image_documents_type ON image_documents (doc_type);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*imagedoc.Document, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	if raw, ok := s.cache.Get(id); ok {
		return decodeDocument(id, raw)
	}
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM image_documents WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, body)
	return decodeDocument(id, body)
}

func (s *PostgresStore) Put(ctx context.Context, doc *imagedoc.Document) (string, error) {
	if s == nil {
		return "", fmt.Errorf("store is nil")
	}
	if doc == nil {
		return "", fmt.Errorf("document is required")
	}
	if err := s.ensureSchema(); err != nil {
		return "", err
	}
	id := strings.TrimSpace(doc.ID)
	if id == "" {
		id = uuid.NewString()
	}
	stored := *doc
	stored.ID = id
	body, err := json.Marshal(&stored)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO image_documents (id, doc_type, body, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id)
DO UPDATE SET doc_type=EXCLUDED.doc_type, body=EXCLUDED.body, updated_at=EXCLUDED.updated_at`,
		id, stored.Type, body, time.Now())
	if err != nil {
		return "", err
	}
	s.cache.Remove(id)
	s.feed.publish(Change{Kind: ChangePut, ID: id, Doc: &stored})
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, fn func(doc *imagedoc.Document) (*imagedoc.Document, error)) (*imagedoc.Document, error) {
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
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var body []byte
	err = tx.QueryRowContext(ctx, `SELECT body FROM image_documents WHERE id = $1 FOR UPDATE`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cur, err := decodeDocument(id, body)
	if err != nil {
		return nil, err
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = cur
	}
	next.ID = id
	encoded, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE image_documents SET doc_type=$2, body=$3, updated_at=$4 WHERE id=$1`,
		id, next.Type, encoded, time.Now())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.cache.Remove(id)
	s.feed.publish(Change{Kind: ChangePut, ID: id, Doc: next})
	return next, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if err := s.ensureSchema(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM image_documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	s.cache.Remove(id)
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	s.feed.publish(Change{Kind: ChangeDelete, ID: id})
	return nil
}

func (s *PostgresStore) ListByType(ctx context.Context, docType string) ([]*imagedoc.Document, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	docType = strings.TrimSpace(docType)
	if docType == "" {
		return nil, fmt.Errorf("doc type is required")
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, body FROM image_documents
WHERE doc_type = $1
ORDER BY created_at DESC`, docType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*imagedoc.Document, 0, 32)
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			continue
		}
		doc, err := decodeDocument(id, body)
		if err != nil {
			continue
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, docType string) (<-chan Change, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	return s.feed.subscribe(ctx, docType)
}
