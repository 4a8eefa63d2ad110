// Package postgres keeps documents in a single JSONB table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arm-ai/internal/storage"
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS documents (
        collection TEXT        NOT NULL,
        id         TEXT        NOT NULL,
        fields     JSONB       NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (collection, id)
    );`

	insertDocumentSQL = `INSERT INTO documents (collection, id, fields)
    VALUES ($1, $2, $3::jsonb);`

	upsertDocumentSQL = `INSERT INTO documents (collection, id, fields)
    VALUES ($1, $2, $3::jsonb)
    ON CONFLICT (collection, id) DO UPDATE
    SET fields     = EXCLUDED.fields,
        updated_at = now();`

	mergeDocumentSQL = `UPDATE documents
    SET fields = fields || $3::jsonb, updated_at = now()
    WHERE collection = $1 AND id = $2;`

	getDocumentSQL = `SELECT fields, created_at, updated_at
    FROM documents
    WHERE collection = $1 AND id = $2;`

	queryDocumentsSQL = `SELECT id, fields, created_at, updated_at
    FROM documents
    WHERE collection = $1
      AND fields @> $2::jsonb
    ORDER BY created_at, id
    LIMIT NULLIF($3::int, 0);`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store implements storage.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the documents table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.pool, nil
}

// Create inserts a new document with a random UUID.
func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", err
	}
	payload, err := encodeFields(fields)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	if _, err := pool.Exec(ctx, insertDocumentSQL, collection, id, payload); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

// Set upserts a document under id.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	payload, err := encodeFields(fields)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, upsertDocumentSQL, collection, id, payload); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// Get loads a document by id.
func (s *Store) Get(ctx context.Context, collection, id string) (storage.Document, error) {
	pool, err := s.getPool()
	if err != nil {
		return storage.Document{}, err
	}

	var (
		raw       []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := pool.QueryRow(ctx, getDocumentSQL, collection, id).Scan(&raw, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Document{}, storage.ErrNotFound
		}
		return storage.Document{}, fmt.Errorf("get document: %w", err)
	}

	fields, err := decodeFields(raw)
	if err != nil {
		return storage.Document{}, err
	}
	return storage.Document{
		ID:         id,
		Fields:     fields,
		CreateTime: createdAt.UTC(),
		UpdateTime: updatedAt.UTC(),
	}, nil
}

// Update merges fields into the stored JSON object.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	payload, err := encodeFields(fields)
	if err != nil {
		return err
	}
	cmdTag, err := pool.Exec(ctx, mergeDocumentSQL, collection, id, payload)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Query filters with JSONB containment and orders by insertion time.
func (s *Store) Query(ctx context.Context, collection string, q storage.Query) ([]storage.Document, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	filter := make(map[string]any, len(q.Where))
	for _, c := range q.Where {
		filter[c.Field] = c.Value
	}
	payload, err := encodeFields(filter)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, queryDocumentsSQL, collection, payload, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]storage.Document, 0)
	for rows.Next() {
		var (
			doc storage.Document
			raw []byte
		)
		if err := rows.Scan(&doc.ID, &raw, &doc.CreateTime, &doc.UpdateTime); err != nil {
			return nil, err
		}
		if doc.Fields, err = decodeFields(raw); err != nil {
			return nil, err
		}
		doc.CreateTime = doc.CreateTime.UTC()
		doc.UpdateTime = doc.UpdateTime.UTC()
		docs = append(docs, doc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return docs, nil
}

// TryAdvisoryLock attempts to take a session advisory lock and returns a
// release func. The lock lives on a dedicated pooled connection until released.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// Closing the connection drops the lock server-side.
			_ = conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, true, nil
}

func encodeFields(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(raw), nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}

var (
	_ storage.Store          = (*Store)(nil)
	_ storage.AdvisoryLocker = (*Store)(nil)
)
