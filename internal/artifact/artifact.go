// Package artifact stores version artifacts either inline or, past a size
// threshold, in the external object store. Readers never see the difference.
package artifact

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/codespace/internal/domain"
	"github.com/ashureev/codespace/internal/metrics"
	"github.com/ashureev/codespace/internal/objectstore"
)

// DefaultInlineThreshold is the largest payload kept inline.
const DefaultInlineThreshold = 64 * 1024

// Store resolves between inline references and object store blobs.
type Store struct {
	objects   objectstore.Store
	threshold int
}

// NewStore creates an artifact store overflowing into objects. A threshold
// <= 0 selects DefaultInlineThreshold.
func NewStore(objects objectstore.Store, threshold int) *Store {
	if threshold <= 0 {
		threshold = DefaultInlineThreshold
	}
	return &Store{objects: objects, threshold: threshold}
}

// Threshold returns the inline size limit in bytes.
func (s *Store) Threshold() int {
	return s.threshold
}

// SizeOf returns the size used for the inline/overflow decision.
func (s *Store) SizeOf(data []byte) int {
	return len(data)
}

// Put stores data and returns a reference to it. Payloads of at most
// Threshold bytes are returned inline with no external call.
func (s *Store) Put(ctx context.Context, data []byte) (domain.ArtifactRef, error) {
	if s.SizeOf(data) <= s.threshold {
		buf := make([]byte, len(data))
		copy(buf, data)
		metrics.ArtifactWrites.WithLabelValues("inline").Inc()
		return domain.InlineRef(buf), nil
	}

	stored, codec := encode(data)
	key, err := s.objects.Put(ctx, stored)
	if err != nil {
		return domain.ArtifactRef{}, domain.Wrap(domain.KindStorageUnavailable, err, "write artifact")
	}
	metrics.ArtifactWrites.WithLabelValues("blob").Inc()
	return domain.ArtifactRef{
		Kind:     domain.RefBlob,
		Key:      key,
		Size:     int64(len(data)),
		Location: s.objects.Location(),
		Codec:    codec,
	}, nil
}

// Get returns the decoded bytes of ref.
func (s *Store) Get(ctx context.Context, ref domain.ArtifactRef) ([]byte, error) {
	if ref.IsInline() {
		return ref.Data, nil
	}
	if ref.Kind != domain.RefBlob || ref.Key == "" {
		return nil, domain.Errorf(domain.KindValidation, "malformed artifact reference %q", ref.Kind)
	}

	stored, err := s.objects.Get(ctx, ref.Key)
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, domain.Wrap(domain.KindNotFound, err, "artifact "+ref.Key)
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindStorageUnavailable, err, "read artifact")
	}

	data, err := decode(stored, ref.Codec, int(ref.Size))
	if err != nil {
		return nil, domain.Wrap(domain.KindCorrupted, err, "decode artifact "+ref.Key)
	}
	if int64(len(data)) != ref.Size {
		return nil, domain.Errorf(domain.KindCorrupted, "artifact %s is %d bytes, reference says %d", ref.Key, len(data), ref.Size)
	}
	return data, nil
}

// GetString is Get for text artifacts.
func (s *Store) GetString(ctx context.Context, ref domain.ArtifactRef) (string, error) {
	data, err := s.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PutBundle stores all four fields of b.
func (s *Store) PutBundle(ctx context.Context, b domain.Bundle) (domain.Artifacts, error) {
	var out domain.Artifacts
	var err error
	if out.Source, err = s.Put(ctx, []byte(b.Source)); err != nil {
		return out, fmt.Errorf("source: %w", err)
	}
	if out.Compiled, err = s.Put(ctx, []byte(b.Compiled)); err != nil {
		return out, fmt.Errorf("compiled: %w", err)
	}
	if out.HTML, err = s.Put(ctx, []byte(b.HTML)); err != nil {
		return out, fmt.Errorf("html: %w", err)
	}
	if out.CSS, err = s.Put(ctx, []byte(b.CSS)); err != nil {
		return out, fmt.Errorf("css: %w", err)
	}
	return out, nil
}

// GetBundle resolves all four fields of a.
func (s *Store) GetBundle(ctx context.Context, a domain.Artifacts) (domain.Bundle, error) {
	var b domain.Bundle
	var err error
	if b.Source, err = s.GetString(ctx, a.Source); err != nil {
		return b, fmt.Errorf("source: %w", err)
	}
	if b.Compiled, err = s.GetString(ctx, a.Compiled); err != nil {
		return b, fmt.Errorf("compiled: %w", err)
	}
	if b.HTML, err = s.GetString(ctx, a.HTML); err != nil {
		return b, fmt.Errorf("html: %w", err)
	}
	if b.CSS, err = s.GetString(ctx, a.CSS); err != nil {
		return b, fmt.Errorf("css: %w", err)
	}
	return b, nil
}
