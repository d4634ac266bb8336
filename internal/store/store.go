// Package store persists version records and the per-session current
// version pointer.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/codespace/internal/domain"
)

var (
	// ErrNotFound is returned for an unknown session or sequence number.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when the session's current version
	// is not the one the appender expected.
	ErrVersionConflict = errors.New("version conflict")
)

// VersionRecord is the persisted form of a version: references, not bytes.
type VersionRecord struct {
	SessionID    string
	Seq          int64
	Hash         string
	Refs         domain.Artifacts
	CompileError *domain.CompileError
	CreatedAt    time.Time
}

// SessionMeta is the per-session current version pointer.
type SessionMeta struct {
	SessionID      string
	CurrentVersion int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository defines the interface for persisting version records.
type Repository interface {
	// AppendVersion stores rec as version expectedPrev+1 and advances the
	// session's current pointer in one transaction. rec.Seq is ignored and
	// the assigned number is returned. If the current version is not
	// expectedPrev, nothing is written and ErrVersionConflict is returned.
	AppendVersion(ctx context.Context, rec *VersionRecord, expectedPrev int64) (int64, error)

	// GetVersion retrieves one version record.
	GetVersion(ctx context.Context, sessionID string, seq int64) (*VersionRecord, error)

	// LatestVersion retrieves the record the current pointer names.
	LatestVersion(ctx context.Context, sessionID string) (*VersionRecord, error)

	// GetSessionMeta retrieves the current pointer for a session.
	GetSessionMeta(ctx context.Context, sessionID string) (*SessionMeta, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
