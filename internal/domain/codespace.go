package domain

import "time"

// Bundle is the fully resolved artifact set of a session.
type Bundle struct {
	Source   string `json:"source"`
	Compiled string `json:"compiled"`
	HTML     string `json:"html"`
	CSS      string `json:"css"`
}

// Get returns the text of field f.
func (b Bundle) Get(f Field) string {
	switch f {
	case FieldCompiled:
		return b.Compiled
	case FieldHTML:
		return b.HTML
	case FieldCSS:
		return b.CSS
	default:
		return b.Source
	}
}

// CompileError is attached to a version whose source did not compile.
// The version keeps the previous compiled output.
type CompileError struct {
	Diagnostics string `json:"diagnostics"`
}

// Version is an immutable snapshot of a session.
type Version struct {
	SessionID    string        `json:"sessionId"`
	Seq          int64         `json:"version"`
	Hash         string        `json:"hash"`
	Refs         Artifacts     `json:"refs"`
	Bundle       Bundle        `json:"-"`
	CompileError *CompileError `json:"compileError,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// Session is the current state of one codespace. Version 0 means empty.
type Session struct {
	ID           string
	Version      int64
	Hash         string
	Bundle       Bundle
	Refs         Artifacts
	CompileError *CompileError
	UpdatedAt    time.Time
}

// NewSession returns the lazily created empty state for id.
func NewSession(id string) *Session {
	return &Session{ID: id}
}

// FromVersion builds the session state a committed version describes.
func FromVersion(v *Version) *Session {
	return &Session{
		ID:           v.SessionID,
		Version:      v.Seq,
		Hash:         v.Hash,
		Bundle:       v.Bundle,
		Refs:         v.Refs,
		CompileError: v.CompileError,
		UpdatedAt:    v.CreatedAt,
	}
}

// IsEmpty returns true if no version has been committed yet.
func (s *Session) IsEmpty() bool {
	return s.Version == 0
}
