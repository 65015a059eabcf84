package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsig/signature-service/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEntry(id string) *interfaces.DirectoryEntry {
	return &interfaces.DirectoryEntry{
		ID:         id,
		Name:       "Alice",
		Department: "Engineering",
		PublicKey:  interfaces.PublicKeyPEM("-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----\n"),
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

func testBackendRoundTrip(t *testing.T, store interfaces.EntryStore) {
	t.Helper()
	ctx := context.Background()

	entries, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	first := testEntry("11111111")
	second := testEntry("22222222")
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	entries, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := map[string]*interfaces.DirectoryEntry{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	require.Contains(t, byID, first.ID)
	assert.Equal(t, first.Name, byID[first.ID].Name)
	assert.Equal(t, first.PublicKey, byID[first.ID].PublicKey)
	assert.True(t, first.CreatedAt.Equal(byID[first.ID].CreatedAt))

	require.NoError(t, store.Delete(ctx, first.ID))
	// Deleting an absent id is not an error
	require.NoError(t, store.Delete(ctx, first.ID))

	entries, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second.ID, entries[0].ID)
}

func TestMemoryBackend(t *testing.T) {
	testBackendRoundTrip(t, NewMemoryBackend())
}

func TestFileBackend(t *testing.T) {
	store, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	testBackendRoundTrip(t, store)
}

func TestFileBackendSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileBackend(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, testEntry("cafebabe")))

	reopened, err := NewFileBackend(dir, testLogger())
	require.NoError(t, err)
	entries, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cafebabe", entries[0].ID)
}

func TestFactorySchemes(t *testing.T) {
	factory := NewFactory(testLogger())

	store, err := factory.BackendFor("memory://")
	require.NoError(t, err)
	assert.Equal(t, "memory", store.Name())

	store, err = factory.BackendFor("file://" + t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, store.Name(), "file-")

	store, err = factory.BackendFor("s3://some-bucket/keys?region=eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "s3-some-bucket-keys", store.Name())

	_, err = factory.BackendFor("gopher://nope")
	require.Error(t, err)
}
