package firestoredb

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arm-ai/internal/storage"
)

func TestCredentialOptions(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	opts, err := credentialOptions("", logger)
	require.NoError(t, err)
	assert.Empty(t, opts)
	assert.Contains(t, buf.String(), `"level":"warn"`)

	buf.Reset()
	missing := filepath.Join(t.TempDir(), "missing.json")
	opts, err = credentialOptions(missing, logger)
	require.NoError(t, err)
	assert.Empty(t, opts)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"credentials_path":"`+missing+`"`)

	buf.Reset()
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	opts, err = credentialOptions(path, logger)
	require.NoError(t, err)
	assert.Len(t, opts, 1)
	assert.Empty(t, buf.String())
}

// openEmulatorStore connects to the Firestore emulator when one is running.
func openEmulatorStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	store, err := Open(context.Background(), Options{ProjectID: "arm-ai-test"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_Emulator(t *testing.T) {
	store := openEmulatorStore(t)
	ctx := context.Background()
	collection := "risk_events_" + time.Now().UTC().Format("20060102150405.000000")

	id, err := store.Create(ctx, collection, map[string]any{
		"type":      "drawdown_breach",
		"processed": false,
		"timestamp": time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := store.Get(ctx, collection, id)
	require.NoError(t, err)
	assert.Equal(t, "drawdown_breach", doc.Fields["type"])
	_, ok := doc.Time("timestamp")
	assert.True(t, ok)

	docs, err := store.Query(ctx, collection, storage.Query{
		Where: []storage.Condition{{Field: "processed", Value: false}},
		Limit: 10,
	})
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	require.NoError(t, store.Update(ctx, collection, id, map[string]any{"processed": true}))
	err = store.Update(ctx, collection, "missing", map[string]any{"processed": true})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Get(ctx, collection, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
