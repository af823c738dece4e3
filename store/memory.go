package store

import (
	"context"
	"sync"
)

// Memory keeps the blob in process memory. It is safe for concurrent use and
// is the adapter tests reach for.
type Memory struct {
	mu    sync.RWMutex
	blob  []byte
	saved bool

	// FailSave, FailLoad and FailClear force ErrUnavailable, for exercising
	// degraded persistence paths.
	FailSave  bool
	FailLoad  bool
	FailClear bool
}

var _ Adapter = (*Memory)(nil)

// NewMemory returns an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Save(ctx context.Context, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave {
		return ErrUnavailable
	}
	m.blob = cloneBytes(blob)
	m.saved = true
	return nil
}

func (m *Memory) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapUnavailable(err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailLoad {
		return nil, ErrUnavailable
	}
	if !m.saved {
		return nil, ErrNotFound
	}
	return cloneBytes(m.blob), nil
}

func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return wrapUnavailable(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailClear {
		return ErrUnavailable
	}
	m.blob = nil
	m.saved = false
	return nil
}

// Put replaces the stored blob directly, bypassing failure switches.
// Tests use it to plant tampered or foreign blobs.
func (m *Memory) Put(blob []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob = cloneBytes(blob)
	m.saved = true
}

// Peek returns the stored blob and whether one exists.
func (m *Memory) Peek() ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneBytes(m.blob), m.saved
}
