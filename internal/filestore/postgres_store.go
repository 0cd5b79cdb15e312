package filestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps attachments as BYTEA rows. Useful when no object
// storage is available and documents already live in postgres.
type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func NewPostgresStoreDSN(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

func (s *PostgresStore) ensureSchema() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS image_files (
  id SERIAL PRIMARY KEY,
  doc_id TEXT NOT NULL,
  file_key TEXT NOT NULL,
  content BYTEA NOT NULL DEFAULT ''::bytea,
  content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
  size BIGINT NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  UNIQUE (doc_id, file_key)
);
CREATE INDEX IF NOT EXISTS idx_image_files_doc_id ON image_files (doc_id);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Put(ctx context.Context, docID, key string, content []byte, contentType string) error {
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
	if err := s.ensureSchema(); err != nil {
		return err
	}
	if content == nil {
		content = []byte{}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO image_files (doc_id, file_key, content, content_type, size, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (doc_id, file_key)
DO UPDATE SET content=EXCLUDED.content, content_type=EXCLUDED.content_type,
  size=EXCLUDED.size, updated_at=EXCLUDED.updated_at`,
		docID, key, content, contentType, int64(len(content)), time.Now())
	return err
}

func (s *PostgresStore) Get(ctx context.Context, docID, key string) (*File, error) {
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
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	var (
		content     []byte
		contentType string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT content, content_type FROM image_files WHERE doc_id=$1 AND file_key=$2`,
		docID, key).Scan(&content, &contentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &File{Content: content, ContentType: contentType}, nil
}

func (s *PostgresStore) List(ctx context.Context, docID string) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, fmt.Errorf("doc id is required")
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_key FROM image_files WHERE doc_id=$1 ORDER BY file_key`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			continue
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *PostgresStore) Delete(ctx context.Context, docID string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return fmt.Errorf("doc id is required")
	}
	if err := s.ensureSchema(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM image_files WHERE doc_id=$1`, docID)
	return err
}

func (s *PostgresStore) GetURL(_ context.Context, _, _ string) (string, error) {
	// Postgres store doesn't support URLs (content is stored as BLOB)
	return "", nil
}
