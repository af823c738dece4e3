package sessionguard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/carenest/sessionguard/clock"
	"github.com/carenest/sessionguard/clock/clocktest"
	"github.com/carenest/sessionguard/events"
	"github.com/carenest/sessionguard/store"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// fixedReader yields the same byte forever, so two managers built with it
// derive the same key.
type fixedReader byte

func (r fixedReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy source unavailable")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// stalledClock reports whatever time it is set to and never fires timers,
// standing in for a loop that has not processed a due deadline yet.
type stalledClock struct {
	mu  sync.Mutex
	now time.Time
}

type stalledTimer struct{}

func (stalledTimer) Stop() bool { return true }

func (c *stalledClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stalledClock) AfterFunc(time.Duration, func()) clock.Timer {
	return stalledTimer{}
}

func (c *stalledClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// newStalledManager returns an initialized manager on clk holding a patient
// session created at clk's current time.
func newStalledManager(t *testing.T, clk *stalledClock) *Manager {
	t.Helper()
	m, err := New().WithClock(clk).WithRandom(fixedReader(1)).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(m.Close)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := m.CreateSession(context.Background(), IdentityClaims{UserID: "u", Role: RolePatient}); err != nil {
		t.Fatalf("create: %v", err)
	}
	return m
}

type harness struct {
	t      *testing.T
	clk    *clocktest.Fake
	store  *store.Memory
	m      *Manager
	events chan events.Event
	logs   *syncBuffer
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	cfg    Config
	idp    func(*clocktest.Fake) IdentityProvider
	random io.Reader
	store  *store.Memory
	skip   bool
}

func withConfig(mutate func(*Config)) harnessOption {
	return func(c *harnessConfig) { mutate(&c.cfg) }
}

func withIDP(idp IdentityProvider) harnessOption {
	return func(c *harnessConfig) {
		c.idp = func(*clocktest.Fake) IdentityProvider { return idp }
	}
}

// withRenewingIDP installs a provider extending every session by ttl from
// the harness clock and rotating the refresh token.
func withRenewingIDP(ttl time.Duration) harnessOption {
	return func(c *harnessConfig) {
		c.idp = func(clk *clocktest.Fake) IdentityProvider {
			return IdentityProviderFunc(func(ctx context.Context, token string) (Renewal, error) {
				return Renewal{
					ExpiresAt:    clk.Now().Add(ttl),
					RefreshToken: token + "'",
				}, nil
			})
		}
	}
}

func withStore(s *store.Memory) harnessOption {
	return func(c *harnessConfig) { c.store = s }
}

func withRandom(r io.Reader) harnessOption {
	return func(c *harnessConfig) { c.random = r }
}

func withoutInitialize() harnessOption {
	return func(c *harnessConfig) { c.skip = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	return newHarnessAt(t, epoch, opts...)
}

func newHarnessAt(t *testing.T, start time.Time, opts ...harnessOption) *harness {
	t.Helper()

	hc := harnessConfig{cfg: DefaultConfig(), random: fixedReader(7)}
	hc.cfg.Metrics.Enabled = true
	for _, o := range opts {
		o(&hc)
	}
	if hc.store == nil {
		hc.store = store.NewMemory()
	}

	h := &harness{
		t:      t,
		clk:    clocktest.New(start),
		store:  hc.store,
		events: make(chan events.Event, 256),
		logs:   &syncBuffer{},
	}

	b := New().
		WithConfig(hc.cfg).
		WithClock(h.clk).
		WithStore(h.store).
		WithRandom(hc.random).
		WithLogger(log.New(h.logs, "", 0))
	if hc.idp != nil {
		b = b.WithIdentityProvider(hc.idp(h.clk))
	}

	m, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	h.m = m
	t.Cleanup(m.Close)

	m.Subscribe(func(e events.Event) {
		select {
		case h.events <- e:
		default:
		}
	})

	if !hc.skip {
		if err := m.Initialize(context.Background()); err != nil {
			t.Fatalf("initialize: %v", err)
		}
	}
	return h
}

func (h *harness) create(role Role) SessionInfo {
	h.t.Helper()
	info, err := h.m.CreateSession(context.Background(), IdentityClaims{
		UserID:       "user-1",
		Role:         role,
		RefreshToken: "rt-1",
	})
	if err != nil {
		h.t.Fatalf("create session: %v", err)
	}
	return info
}

// advance moves virtual time and waits until the fired timers were handled.
func (h *harness) advance(d time.Duration) {
	h.clk.Advance(d)
	h.m.flush()
}

// drain returns every event delivered so far.
func (h *harness) drain() []events.Event {
	h.m.flush()
	var out []events.Event
	for {
		select {
		case e := <-h.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

// waitFor blocks until an event of typ arrives, returning the events seen
// before it as well.
func (h *harness) waitFor(typ events.Type) (events.Event, []events.Event) {
	h.t.Helper()
	var before []events.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-h.events:
			if e.Type == typ {
				return e, before
			}
			before = append(before, e)
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s event; saw %v", typ, types(before))
			return events.Event{}, nil
		}
	}
}

func types(evs []events.Event) []events.Type {
	out := make([]events.Type, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Type)
	}
	return out
}

func countType(evs []events.Event, typ events.Type) int {
	n := 0
	for _, e := range evs {
		if e.Type == typ {
			n++
		}
	}
	return n
}
