package goOnboard

import (
	"errors"
	"time"

	"github.com/MrEthical07/goOnboard/internal"
	"github.com/MrEthical07/goOnboard/internal/rate"
	"github.com/MrEthical07/goOnboard/session"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Builder assembles an [Engine]. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  session.Store
	mailer Mailer

	auditSink AuditSink
	logger    logrus.FieldLogger
	clock     func() time.Time
	newID     func() (string, error)

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used by the rate limiter and, unless
// [Builder.WithStore] is also called, by the session store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore overrides the session store, for example with the SQLite store.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithMailer sets the verification code transport. Required.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets where infrastructure failures are logged. Defaults to the
// logrus standard logger.
func (b *Builder) WithLogger(l logrus.FieldLogger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now for expiry and cooldown decisions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithIdentifierGenerator overrides session identifier generation.
func (b *Builder) WithIdentifierGenerator(gen func() (string, error)) *Builder {
	b.newID = gen
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

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil && b.redis == nil {
		return nil, errors.New("session store or redis client required")
	}
	if cfg.RateLimit.Enabled && b.redis == nil {
		return nil, errors.New("RateLimit requires redis client")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	// -------- SESSION STORE --------
	store := b.store
	if store == nil {
		store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.TTL)
	}

	engine := &Engine{
		config: cloneConfig(cfg),
		store:  store,
		mailer: b.mailer,
		now:    time.Now,
	}

	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			Limit:  cfg.RateLimit.Limit,
			Window: cfg.RateLimit.Window,
			Prefix: cfg.RateLimit.RedisPrefix,
		})
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.log = b.logger
	if engine.log == nil {
		engine.log = logrus.StandardLogger()
	}
	if b.clock != nil {
		engine.now = b.clock
	}

	engine.newIdentifier = internal.NewSessionID
	if b.newID != nil {
		engine.newIdentifier = b.newID
	}
	length, alphabet := cfg.Verification.CodeLength, cfg.Verification.CodeAlphabet
	engine.newCode = func() (string, error) {
		return internal.NewCode(length, alphabet)
	}

	b.built = true

	return engine, nil
}
