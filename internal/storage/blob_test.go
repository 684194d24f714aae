package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetStoreRoundTrip(t *testing.T) {
	store, err := NewAssetStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	path, err := store.Put(ctx, "music|slow waltz|30000", []byte("audio-bytes"), "mp3")
	require.NoError(t, err)
	assert.Contains(t, path, ".mp3")

	data, err := store.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio-bytes"), data)
}

func TestAssetStoreSameKeySamePath(t *testing.T) {
	store, err := NewAssetStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	p1, err := store.Put(ctx, "key", []byte("a"), "mp3")
	require.NoError(t, err)
	p2, err := store.Put(ctx, "key", []byte("b"), "mp3")
	require.NoError(t, err)
	assert.Equal(t, p1, p2, "keys are path-addressed")

	data, err := store.Get(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)
}

func TestAssetStoreMissingPath(t *testing.T) {
	store, err := NewAssetStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "/nonexistent/file.mp3")
	assert.Error(t, err)
}
