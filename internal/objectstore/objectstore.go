// Package objectstore provides the external blob store that oversized
// artifacts overflow into.
package objectstore

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = errors.New("object not found")

// Store persists opaque byte payloads under keys it assigns.
type Store interface {
	// Put writes data under a fresh key and returns the key.
	Put(ctx context.Context, data []byte) (string, error)

	// Get returns the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Location names the backend, recorded on every blob reference.
	Location() string

	// Close releases backend resources.
	Close() error
}

// NewKey returns a fresh time-sortable object key.
func NewKey() string {
	return "blob/" + uuid.Must(uuid.NewV7()).String()
}

// Memory is an in-process Store used in development and tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := NewKey()
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.objects[key] = buf
	m.mu.Unlock()
	return key, nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Location implements Store.
func (m *Memory) Location() string { return "memory" }

// Close implements Store.
func (m *Memory) Close() error { return nil }
