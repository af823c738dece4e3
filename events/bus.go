package events

import (
	"log"
	"sync"
)

// Handler receives published events.
type Handler func(Event)

// Subscription identifies a registered handler.
type Subscription uint64

// BusConfig configures NewBus.
type BusConfig struct {
	// Logger receives recovered subscriber panics. Defaults to log.Default().
	Logger *log.Logger
	// OnPanic, when set, is called after a subscriber panic was recovered.
	OnPanic func(Event, any)
	// IDs stamps events that arrive without an ID.
	IDs *IDSource
}

type subscriber struct {
	id      Subscription
	handler Handler
}

// Bus fans events out to subscribers.
type Bus struct {
	logger  *log.Logger
	onPanic func(Event, any)
	ids     *IDSource

	mu   sync.RWMutex
	next Subscription
	subs []subscriber
}

// NewBus creates an empty bus.
func NewBus(cfg BusConfig) *Bus {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.IDs == nil {
		cfg.IDs = NewIDSource(nil)
	}
	return &Bus{
		logger:  cfg.Logger,
		onPanic: cfg.OnPanic,
		ids:     cfg.IDs,
	}
}

// Subscribe registers h. A nil handler is ignored and yields zero.
func (b *Bus) Subscribe(h Handler) Subscription {
	if b == nil || h == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs = append(b.subs, subscriber{id: b.next, handler: h})
	return b.next
}

// Unsubscribe removes a handler. It reports whether the subscription existed.
func (b *Bus) Unsubscribe(id Subscription) bool {
	if b == nil || id == 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers e to every subscriber and returns the stamped event.
// Each subscriber receives its own copy of Data.
func (b *Bus) Publish(e Event) Event {
	if b == nil {
		return e
	}
	if e.ID == "" {
		e.ID = b.ids.New(e.Timestamp)
	}

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, e)
	}
	return e
}

func (b *Bus) deliver(s subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("sessionguard: subscriber panic recovered subscription=%d type=%s session_id=%s panic=%v",
				s.id, e.Type, e.SessionID, r)
			if b.onPanic != nil {
				b.onPanic(e, r)
			}
		}
	}()
	s.handler(e.Clone())
}
