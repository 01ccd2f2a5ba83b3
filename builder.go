package clinicauth

import (
	"errors"
	"time"

	"github.com/MrEthical07/clinicauth/jwt"
	"github.com/MrEthical07/clinicauth/password"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config Config

	users     UserStore
	roles     RoleStore
	log       *zap.Logger
	auditSink AuditSink
	hasher    password.Hasher
	now       func() time.Time

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithUserStore(s UserStore) *Builder {
	b.users = s
	return b
}

func (b *Builder) WithRoleStore(s RoleStore) *Builder {
	b.roles = s
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithPasswordHasher replaces the argon2id hasher built from
// Config.Password.Hash.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithClock overrides time.Now for lockout, expiry, and token timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready engine. A builder
// can be used only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.roles == nil {
		return nil, errors.New("role store required")
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	hasher := b.hasher
	if hasher == nil {
		h, err := password.NewArgon2(cfg.Password.Hash)
		if err != nil {
			return nil, err
		}
		hasher = h
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cloneConfig(cfg),
		users:      b.users,
		roles:      b.roles,
		log:        log.Named("clinicauth"),
		hasher:     hasher,
		jwtManager: jm,
		now:        now,
		metrics:    NewMetrics(cfg.Metrics),
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink, log),
	}

	b.built = true

	return engine, nil
}
