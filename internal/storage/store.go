package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured indicates the store handle was not initialised.
	ErrNotConfigured = errors.New("storage: store not configured")
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("storage: document not found")
	// ErrClosed is returned by stores used after Close.
	ErrClosed = errors.New("storage: store closed")
)

// Store is a document database organised in named collections of loosely
// typed documents.
type Store interface {
	// Create inserts fields as a new document and returns its generated id.
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	// Set writes a document under id, replacing any previous content.
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	// Get loads a single document.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Query lists documents matching q.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// Close releases the connection.
	Close() error
}

// Opener establishes a connection to a Store.
type Opener func(ctx context.Context) (Store, error)

// AdvisoryLocker is implemented by stores that can elect a single worker
// across processes.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}
