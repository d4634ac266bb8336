package objectstore

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	payload := bytes.Repeat([]byte("abc"), 1000)
	key, err := s.Put(ctx, payload)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "blob/"))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	other, err := s.Put(ctx, payload)
	require.NoError(t, err)
	assert.NotEqual(t, key, other, "every put gets a fresh key")

	_, err = s.Get(ctx, "blob/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	exerciseStore(t, s)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStoreCopiesPayload(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	data := []byte("mutable")
	key, err := s.Put(context.Background(), data)
	require.NoError(t, err)

	data[0] = 'X'
	got, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), got)
}

func TestBadgerStoreInMemory(t *testing.T) {
	s, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	exerciseStore(t, s)
}

func TestBadgerStorePersistent(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true})
	require.NoError(t, err)

	key, err := s.Put(context.Background(), []byte("survives reopen"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenBadger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()

	got, err := reopened.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "survives reopen", string(got))
}

func TestOpenBadgerRequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}
