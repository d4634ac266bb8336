// Package ledger is the append-only, hash-verified version history of
// each session.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/codespace/internal/artifact"
	"github.com/ashureev/codespace/internal/domain"
	"github.com/ashureev/codespace/internal/store"
)

// Ledger writes versions through the artifact store and records them in
// the repository.
type Ledger struct {
	repo      store.Repository
	artifacts *artifact.Store
	now       func() time.Time
}

// New creates a ledger over repo and artifacts.
func New(repo store.Repository, artifacts *artifact.Store) *Ledger {
	return &Ledger{repo: repo, artifacts: artifacts, now: time.Now}
}

// Append records bundle as the version after prev (nil for an empty
// session). Fields whose text is unchanged from prev reuse prev's
// references instead of being written again.
func (l *Ledger) Append(ctx context.Context, sessionID string, prev *domain.Version, bundle domain.Bundle, compileErr *domain.CompileError) (*domain.Version, error) {
	refs, err := l.storeFields(ctx, prev, bundle)
	if err != nil {
		return nil, err
	}

	var expected int64
	if prev != nil {
		expected = prev.Seq
	}

	rec := &store.VersionRecord{
		SessionID:    sessionID,
		Hash:         ContentHash(bundle),
		Refs:         refs,
		CompileError: compileErr,
		CreatedAt:    l.now().UTC(),
	}
	seq, err := l.repo.AppendVersion(ctx, rec, expected)
	if err != nil {
		return nil, domain.Wrap(domain.KindStorageUnavailable, err, "append version")
	}

	return &domain.Version{
		SessionID:    sessionID,
		Seq:          seq,
		Hash:         rec.Hash,
		Refs:         refs,
		Bundle:       bundle,
		CompileError: compileErr,
		CreatedAt:    rec.CreatedAt,
	}, nil
}

func (l *Ledger) storeFields(ctx context.Context, prev *domain.Version, bundle domain.Bundle) (domain.Artifacts, error) {
	var out domain.Artifacts
	fields := []struct {
		field domain.Field
		dst   *domain.ArtifactRef
	}{
		{domain.FieldSource, &out.Source},
		{domain.FieldCompiled, &out.Compiled},
		{domain.FieldHTML, &out.HTML},
		{domain.FieldCSS, &out.CSS},
	}
	for _, f := range fields {
		text := bundle.Get(f.field)
		if prev != nil && prev.Bundle.Get(f.field) == text {
			*f.dst = prev.Refs.Ref(f.field)
			continue
		}
		ref, err := l.artifacts.Put(ctx, []byte(text))
		if err != nil {
			return out, fmt.Errorf("%s: %w", f.field, err)
		}
		*f.dst = ref
	}
	return out, nil
}

// Latest returns the current version of a session.
func (l *Ledger) Latest(ctx context.Context, sessionID string) (*domain.Version, error) {
	rec, err := l.repo.LatestVersion(ctx, sessionID)
	if err != nil {
		return nil, classify(err, "session "+sessionID)
	}
	return l.resolve(ctx, rec)
}

// Get returns version seq of a session.
func (l *Ledger) Get(ctx context.Context, sessionID string, seq int64) (*domain.Version, error) {
	if seq < 1 {
		return nil, domain.Errorf(domain.KindNotFound, "version %d of %s", seq, sessionID)
	}
	rec, err := l.repo.GetVersion(ctx, sessionID, seq)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("version %d of %s", seq, sessionID))
	}
	return l.resolve(ctx, rec)
}

// resolve reads every field back and checks the stored hash.
func (l *Ledger) resolve(ctx context.Context, rec *store.VersionRecord) (*domain.Version, error) {
	bundle, err := l.artifacts.GetBundle(ctx, rec.Refs)
	if err != nil {
		return nil, err
	}
	if got := ContentHash(bundle); got != rec.Hash {
		return nil, domain.Errorf(domain.KindCorrupted,
			"version %d of %s: stored hash %s, content hashes to %s", rec.Seq, rec.SessionID, rec.Hash, got)
	}
	return &domain.Version{
		SessionID:    rec.SessionID,
		Seq:          rec.Seq,
		Hash:         rec.Hash,
		Refs:         rec.Refs,
		Bundle:       bundle,
		CompileError: rec.CompileError,
		CreatedAt:    rec.CreatedAt,
	}, nil
}

func classify(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.Wrap(domain.KindNotFound, err, what)
	}
	return domain.Wrap(domain.KindStorageUnavailable, err, what)
}
