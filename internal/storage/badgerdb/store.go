// Package badgerdb is an embedded document store built on BadgerDB, used for
// local development and tests.
package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"arm-ai/internal/storage"
)

// Options locate the database.
type Options struct {
	Path     string
	InMemory bool
}

// Store persists documents as JSON values keyed by collection/id.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

type record struct {
	Fields     map[string]any `json:"fields"`
	CreateTime time.Time      `json:"create_time"`
	UpdateTime time.Time      `json:"update_time"`
}

// Open initialises the store at opts.Path, or in memory.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else if opts.Path == "" {
		return nil, errors.New("badger path is required")
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func documentKey(collection, id string) []byte {
	return []byte(collection + "/" + id)
}

func collectionPrefix(collection string) []byte {
	return []byte(collection + "/")
}

// Create inserts a new document under a random id.
func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		return putRecord(txn, documentKey(collection, id), record{Fields: fields, CreateTime: now, UpdateTime: now})
	})
	if err != nil {
		return "", fmt.Errorf("create document: %w", mapError(err))
	}
	return id, nil
}

// Set writes the document, keeping the original creation time when it exists.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now()
	key := documentKey(collection, id)
	err := s.db.Update(func(txn *badger.Txn) error {
		rec := record{Fields: fields, CreateTime: now, UpdateTime: now}
		existing, err := getRecord(txn, key)
		switch {
		case err == nil:
			rec.CreateTime = existing.CreateTime
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return putRecord(txn, key, rec)
	})
	if err != nil {
		return fmt.Errorf("set document: %w", mapError(err))
	}
	return nil
}

// Get loads a document by id.
func (s *Store) Get(ctx context.Context, collection, id string) (storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return storage.Document{}, err
	}
	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		var getErr error
		rec, getErr = getRecord(txn, documentKey(collection, id))
		return getErr
	})
	if err != nil {
		return storage.Document{}, fmt.Errorf("get document: %w", mapError(err))
	}
	return rec.document(id), nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := documentKey(collection, id)
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		if rec.Fields == nil {
			rec.Fields = make(map[string]any, len(fields))
		}
		for k, v := range fields {
			rec.Fields[k] = v
		}
		rec.UpdateTime = s.now()
		return putRecord(txn, key, rec)
	})
	if err != nil {
		return fmt.Errorf("update document: %w", mapError(err))
	}
	return nil
}

// Query scans the collection and filters in process.
func (s *Store) Query(ctx context.Context, collection string, q storage.Query) ([]storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conds := make([]storage.Condition, 0, len(q.Where))
	for _, c := range q.Where {
		value, err := storage.NormalizeJSON(c.Value)
		if err != nil {
			return nil, fmt.Errorf("normalise filter %s: %w", c.Field, err)
		}
		conds = append(conds, storage.Condition{Field: c.Field, Value: value})
	}

	prefix := collectionPrefix(collection)
	docs := make([]storage.Document, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var rec record
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return err
			}
			if !matches(rec.Fields, conds) {
				continue
			}
			id := string(item.Key()[len(prefix):])
			docs = append(docs, rec.document(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, mapError(err))
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return orderTime(docs[i], q.OrderBy).Before(orderTime(docs[j], q.OrderBy))
	})
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func orderTime(doc storage.Document, field string) time.Time {
	if field != "" {
		if ts, ok := doc.Time(field); ok {
			return ts
		}
	}
	return doc.CreateTime
}

func matches(fields map[string]any, conds []storage.Condition) bool {
	for _, c := range conds {
		got, ok := fields[c.Field]
		if !ok || !reflect.DeepEqual(got, c.Value) {
			return false
		}
	}
	return true
}

func getRecord(txn *badger.Txn, key []byte) (record, error) {
	item, err := txn.Get(key)
	if err != nil {
		return record{}, err
	}
	var rec record
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}

func putRecord(txn *badger.Txn, key []byte, rec record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

func (r record) document(id string) storage.Document {
	return storage.Document{
		ID:         id,
		Fields:     r.Fields,
		CreateTime: r.CreateTime,
		UpdateTime: r.UpdateTime,
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return storage.ErrNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return storage.ErrClosed
	}
	return err
}

var _ storage.Store = (*Store)(nil)
