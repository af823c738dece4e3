package sessionguard

import (
	"errors"
	"io"
	"log"

	"github.com/carenest/sessionguard/audit"
	"github.com/carenest/sessionguard/clock"
	"github.com/carenest/sessionguard/permission"
	"github.com/carenest/sessionguard/seal"
	"github.com/carenest/sessionguard/store"
)

// Builder assembles a Manager.
//
// Builder instances are single-use: configure with the With* methods, then
// call Build once.
type Builder struct {
	config Config

	store     store.Adapter
	clock     clock.Clock
	logger    *log.Logger
	idp       IdentityProvider
	auditSink audit.Sink
	random    io.Reader

	built bool
}

type managerDeps struct {
	clock     clock.Clock
	logger    *log.Logger
	store     store.Adapter
	sealer    *seal.Provider
	idp       IdentityProvider
	policy    *permission.Policy
	metrics   *Metrics
	auditSink audit.Sink
}

// New returns a Builder with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence backend. Defaults to an in-memory store.
func (b *Builder) WithStore(s store.Adapter) *Builder {
	b.store = s
	return b
}

// WithClock injects the time source. Defaults to clock.Real().
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger sets the logger for background failures. Defaults to log.Default().
func (b *Builder) WithLogger(l *log.Logger) *Builder {
	b.logger = l
	return b
}

// WithIdentityProvider sets the renewal collaborator. Without one, sessions
// end at their absolute expiry.
func (b *Builder) WithIdentityProvider(idp IdentityProvider) *Builder {
	b.idp = idp
	return b
}

// WithAuditSink enables the asynchronous audit relay into sink.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithRandom overrides the randomness used for key generation.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the refresh latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and starts the Manager's command loop.
// The Manager still needs Initialize before it accepts sessions.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy, err := cfg.buildPolicy()
	if err != nil {
		return nil, err
	}

	deps := managerDeps{
		clock:     b.clock,
		logger:    b.logger,
		store:     b.store,
		idp:       b.idp,
		policy:    policy,
		metrics:   NewMetrics(cfg.Metrics),
		auditSink: b.auditSink,
		sealer: seal.NewProvider(seal.Config{
			Algorithm: cfg.Crypto.Algorithm,
			Rand:      b.random,
		}),
	}
	if deps.clock == nil {
		deps.clock = clock.Real()
	}
	if deps.logger == nil {
		deps.logger = log.Default()
	}
	if deps.store == nil {
		deps.store = store.NewMemory()
	}

	b.built = true

	return newManager(cfg, deps), nil
}
