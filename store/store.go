// Package store persists the opaque session blob under a single well-known
// key and reads it back for restore-on-restart.
//
// # Architecture boundaries
//
// Adapters move bytes only. They do not decode, decrypt, or validate what they
// hold, and they never retry: the caller decides whether a failed write
// matters (for the lifecycle manager it does not; an unsaved session keeps
// working in memory).
//
// # What this package must NOT do
//
//   - Import sessionguard, seal, or session.
//   - Log blob contents.
package store

import (
	"context"
	"errors"
	"fmt"
)

// DefaultKey is the storage key used when an adapter is built without one.
const DefaultKey = "sessionguard:session"

// ErrNotFound is returned by Load when nothing is stored under the key.
var ErrNotFound = errors.New("session blob not found")

// ErrUnavailable wraps backend failures on save, load, or clear.
var ErrUnavailable = errors.New("session store unavailable")

// Adapter is the durable location for the session blob.
type Adapter interface {
	Save(ctx context.Context, blob []byte) error
	Load(ctx context.Context) ([]byte, error)
	Clear(ctx context.Context) error
}

// Namer is implemented by adapters that report a backend name for security
// reports and logs.
type Namer interface {
	Name() string
}

// NameOf returns the adapter's backend name, or "custom".
func NameOf(a Adapter) string {
	if n, ok := a.(Namer); ok {
		return n.Name()
	}
	if a == nil {
		return "none"
	}
	return "custom"
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
