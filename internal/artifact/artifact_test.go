package artifact

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/ashureev/codespace/internal/domain"
	"github.com/ashureev/codespace/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a memory store and can be switched to fail.
type countingStore struct {
	*objectstore.Memory
	puts, gets int
	fail       bool
}

func (c *countingStore) Put(ctx context.Context, data []byte) (string, error) {
	c.puts++
	if c.fail {
		return "", errors.New("bucket unreachable")
	}
	return c.Memory.Put(ctx, data)
}

func (c *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	c.gets++
	if c.fail {
		return nil, errors.New("bucket unreachable")
	}
	return c.Memory.Get(ctx, key)
}

func newCounting() *countingStore {
	return &countingStore{Memory: objectstore.NewMemory()}
}

func TestOverflowBoundary(t *testing.T) {
	objects := newCounting()
	s := NewStore(objects, 1024)
	ctx := context.Background()

	exact := bytes.Repeat([]byte{'a'}, 1024)
	ref, err := s.Put(ctx, exact)
	require.NoError(t, err)
	assert.Equal(t, domain.RefInline, ref.Kind)
	assert.Equal(t, 0, objects.puts)

	got, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, exact, got)
	assert.Equal(t, 0, objects.gets, "inline reads make no external call")

	over := bytes.Repeat([]byte{'a'}, 1025)
	ref, err = s.Put(ctx, over)
	require.NoError(t, err)
	assert.Equal(t, domain.RefBlob, ref.Kind)
	assert.Equal(t, int64(1025), ref.Size)
	assert.Equal(t, "memory", ref.Location)
	assert.Equal(t, domain.CodecZstd, ref.Codec, "repetitive payload compresses")
	assert.Equal(t, 1, objects.puts)

	got, err = s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, over, got)
}

func TestIncompressibleBlobStoredRaw(t *testing.T) {
	s := NewStore(objectstore.NewMemory(), 16)
	data := make([]byte, 4096)
	_, err := rand.Read(data)
	require.NoError(t, err)

	ref, err := s.Put(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, domain.CodecNone, ref.Codec)

	got, err := s.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStorageUnavailable(t *testing.T) {
	objects := newCounting()
	s := NewStore(objects, 8)
	objects.fail = true

	_, err := s.Put(context.Background(), []byte("definitely more than eight"))
	require.Error(t, err)
	assert.Equal(t, domain.KindStorageUnavailable, domain.KindOf(err))

	_, err = s.Get(context.Background(), domain.ArtifactRef{Kind: domain.RefBlob, Key: "blob/x", Size: 3})
	assert.Equal(t, domain.KindStorageUnavailable, domain.KindOf(err))
}

func TestMissingBlobIsNotFound(t *testing.T) {
	s := NewStore(objectstore.NewMemory(), 8)
	_, err := s.Get(context.Background(), domain.ArtifactRef{Kind: domain.RefBlob, Key: "blob/gone", Size: 10})
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestBundleRoundTrip(t *testing.T) {
	s := NewStore(objectstore.NewMemory(), 10)
	b := domain.Bundle{
		Source:   "export default function App(){return null}",
		Compiled: "tiny",
		HTML:     "<div></div>",
		CSS:      "",
	}
	refs, err := s.PutBundle(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, domain.RefBlob, refs.Source.Kind)
	assert.Equal(t, domain.RefInline, refs.Compiled.Kind)

	got, err := s.GetBundle(context.Background(), refs)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestDefaultThreshold(t *testing.T) {
	s := NewStore(objectstore.NewMemory(), 0)
	assert.Equal(t, DefaultInlineThreshold, s.Threshold())
}
