package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoragePutGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir(), "https://cdn.example.com/")
	require.NoError(t, err)

	addr, err := store.Put(ctx, "img-1.jpg", []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/img-1.jpg", addr)

	data, err := store.Get(ctx, "img-1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)

	ok, err := store.Exists(ctx, "img-1.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	key, err := store.Locate(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, "img-1.jpg", key)

	url, err := store.PresignGet(ctx, key, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, addr, url)

	require.NoError(t, os.Remove(filepath.Join(store.root, "img-1.jpg")))
	_, err = store.Get(ctx, "img-1.jpg")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	_, err = store.Locate(ctx, "img-1")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorageLocateMatchesExactID(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	for _, key := range []string{"abc.jpg", "abcd.png", "9f0e.webp"} {
		_, err := store.Put(ctx, key, []byte("x"), "")
		require.NoError(t, err)
	}

	key, err := store.Locate(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, "abcd.png", key)

	for _, id := range []string{"*", "ab?", "[0-9a-f]*", "abc*", "ab"} {
		_, err := store.Locate(ctx, id)
		assert.ErrorIs(t, err, ErrObjectNotFound, "id %q", id)
	}
}

func TestLocalStorageNoTempLeftovers(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStorage(root, "")
	require.NoError(t, err)

	addr, err := store.Put(context.Background(), "a.png", []byte{1, 2, 3}, "image/png")
	require.NoError(t, err)
	assert.Contains(t, addr, "file://")

	entries, err := os.ReadDir(filepath.Join(root, ".tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStorageRejectsBadKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	for _, key := range []string{"", "../escape.jpg", "nested/key.jpg", `win\key.jpg`, ".."} {
		_, err := store.Put(context.Background(), key, []byte("x"), "")
		assert.Error(t, err, "key %q", key)
	}
}

func TestLocalStorageCanceledContext(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Put(ctx, "a.jpg", []byte("x"), "")
	assert.ErrorIs(t, err, context.Canceled)
}
