package events

import (
	"io"
	"maps"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Type is the kind of a lifecycle event.
type Type string

const (
	TypeCreated    Type = "created"
	TypeRenewed    Type = "renewed"
	TypeActivity   Type = "activity"
	TypeWarning    Type = "warning"
	TypeExpired    Type = "expired"
	TypeTerminated Type = "terminated"
)

// Event is a lifecycle notification. Data carries type-specific details such
// as "reason" for terminated events and "minutes_remaining" for warnings.
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data,omitempty"`
}

// Clone returns a copy of e with its own Data map.
func (e Event) Clone() Event {
	e.Data = maps.Clone(e.Data)
	return e
}

// IDSource generates lexically sortable event ids.
type IDSource struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewIDSource returns a ULID generator with monotonic entropy, so ids minted
// within the same millisecond still sort in creation order.
func NewIDSource(entropy io.Reader) *IDSource {
	if entropy == nil {
		entropy = ulid.DefaultEntropy()
		return &IDSource{entropy: entropy}
	}
	return &IDSource{entropy: ulid.Monotonic(entropy, 0)}
}

// New returns an id stamped with t.
func (s *IDSource) New(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), s.entropy)
	if err != nil {
		// Monotonic overflow within one millisecond; fall back to a fresh draw.
		id = ulid.Make()
	}
	return id.String()
}
