// Package firestoredb stores documents in Cloud Firestore through the Firebase
// Admin SDK.
package firestoredb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"arm-ai/internal/storage"
)

// Options identify the Firebase project and its service account key.
type Options struct {
	CredentialsPath string
	ProjectID       string
}

// Store implements storage.Store on a Firestore client.
type Store struct {
	client *firestore.Client
}

// Open initialises the Firebase app and its Firestore client. A missing
// credentials file is not fatal: the SDK then falls back to application
// default credentials or the emulator, and writes fail later if neither is
// available.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (*Store, error) {
	logger = logger.With().Str("component", "firestore").Logger()

	clientOpts, err := credentialOptions(opts.CredentialsPath, logger)
	if err != nil {
		return nil, err
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: opts.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	logger.Info().Str("project_id", opts.ProjectID).Msg("firebase initialised")

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firestore client: %w", err)
	}
	logger.Info().Msg("firestore client initialised")

	return &Store{client: client}, nil
}

func credentialOptions(path string, logger zerolog.Logger) ([]option.ClientOption, error) {
	if path == "" {
		logger.Warn().Msg("firebase credentials path not configured; using default credentials")
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Str("credentials_path", path).Msg("firebase credentials not found; using default credentials")
			return nil, nil
		}
		return nil, fmt.Errorf("stat firebase credentials: %w", err)
	}
	return []option.ClientOption{option.WithCredentialsFile(path)}, nil
}

// Create adds a document with a Firestore-generated id.
func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	ref := s.client.Collection(collection).NewDoc()
	if _, err := ref.Create(ctx, fields); err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	return ref.ID, nil
}

// Set overwrites the document at id.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, fields); err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	return nil
}

// Get reads a document snapshot.
func (s *Store) Get(ctx context.Context, collection, id string) (storage.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return storage.Document{}, storage.ErrNotFound
		}
		return storage.Document{}, fmt.Errorf("get document: %w", err)
	}
	return toDocument(snap), nil
}

// Update changes the named top-level fields of an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return storage.ErrNotFound
		}
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// Query runs a filtered, ordered query. Equality filters combined with an
// order need a composite index in the project.
func (s *Store) Query(ctx context.Context, collection string, q storage.Query) ([]storage.Document, error) {
	query := s.client.Collection(collection).Query
	for _, c := range q.Where {
		query = query.Where(c.Field, "==", c.Value)
	}
	if q.OrderBy != "" {
		query = query.OrderBy(q.OrderBy, firestore.Asc)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	docs := make([]storage.Document, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		docs = append(docs, toDocument(snap))
	}
	return docs, nil
}

// Close releases the Firestore client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func toDocument(snap *firestore.DocumentSnapshot) storage.Document {
	return storage.Document{
		ID:         snap.Ref.ID,
		Fields:     snap.Data(),
		CreateTime: snap.CreateTime.UTC(),
		UpdateTime: snap.UpdateTime.UTC(),
	}
}

var _ storage.Store = (*Store)(nil)
