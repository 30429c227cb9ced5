// Package appconfig loads onboardd server configuration: defaults, then an
// optional YAML file, then ONBOARD_* environment variables.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goOnboard "github.com/MrEthical07/goOnboard"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Store        StoreConfig        `yaml:"store"`
	Redis        RedisConfig        `yaml:"redis"`
	Mail         MailConfig         `yaml:"mail"`
	Ticket       TicketConfig       `yaml:"ticket"`
	Verification VerificationConfig `yaml:"verification"`
	Resend       ResendConfig       `yaml:"resend"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Audit        AuditConfig        `yaml:"audit"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ONBOARD_ADDR"`
	TrustedProxies  []string      `yaml:"trusted_proxies" env:"ONBOARD_TRUSTED_PROXIES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"ONBOARD_SHUTDOWN_TIMEOUT"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"ONBOARD_LOG_LEVEL"`
	Format string `yaml:"format" env:"ONBOARD_LOG_FORMAT"`
}

type StoreConfig struct {
	// Backend is "redis" or "sqlite".
	Backend       string        `yaml:"backend" env:"ONBOARD_STORE"`
	SQLitePath    string        `yaml:"sqlite_path" env:"ONBOARD_SQLITE_PATH"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"ONBOARD_SWEEP_INTERVAL"`
	AbandonAfter  time.Duration `yaml:"abandon_after" env:"ONBOARD_ABANDON_AFTER"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ONBOARD_REDIS_ADDR"`
	Password string `yaml:"password" env:"ONBOARD_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"ONBOARD_REDIS_DB"`
}

type MailConfig struct {
	// Transport is "smtp" or "log".
	Transport string `yaml:"transport" env:"ONBOARD_MAIL_TRANSPORT"`
	Host      string `yaml:"smtp_host" env:"ONBOARD_SMTP_HOST"`
	Port      int    `yaml:"smtp_port" env:"ONBOARD_SMTP_PORT"`
	Username  string `yaml:"smtp_user" env:"ONBOARD_SMTP_USER"`
	Password  string `yaml:"smtp_password" env:"ONBOARD_SMTP_PASSWORD"`
	From      string `yaml:"from" env:"ONBOARD_MAIL_FROM"`
	Subject   string `yaml:"subject" env:"ONBOARD_MAIL_SUBJECT"`
}

type TicketConfig struct {
	Secret string        `yaml:"secret" env:"ONBOARD_TICKET_SECRET"`
	TTL    time.Duration `yaml:"ttl" env:"ONBOARD_TICKET_TTL"`
	Issuer string        `yaml:"issuer" env:"ONBOARD_TICKET_ISSUER"`
}

type VerificationConfig struct {
	CodeTTL     time.Duration `yaml:"code_ttl" env:"ONBOARD_CODE_TTL"`
	MaxAttempts int           `yaml:"max_attempts" env:"ONBOARD_MAX_ATTEMPTS"`
}

type ResendConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"ONBOARD_MAX_RESENDS"`
	Cooldown    time.Duration `yaml:"cooldown" env:"ONBOARD_RESEND_COOLDOWN"`
	Window      time.Duration `yaml:"window" env:"ONBOARD_RESEND_WINDOW"`
}

type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" env:"ONBOARD_RATE_LIMIT_ENABLED"`
	Limit   int           `yaml:"limit" env:"ONBOARD_RATE_LIMIT"`
	Window  time.Duration `yaml:"window" env:"ONBOARD_RATE_LIMIT_WINDOW"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ONBOARD_METRICS_ENABLED"`
}

type AuditConfig struct {
	Enabled bool `yaml:"enabled" env:"ONBOARD_AUDIT_ENABLED"`
	// Path receives JSON lines when set; otherwise events go to the log.
	Path       string `yaml:"path" env:"ONBOARD_AUDIT_PATH"`
	BufferSize int    `yaml:"buffer_size" env:"ONBOARD_AUDIT_BUFFER"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	engine := goOnboard.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{
			Backend:       "redis",
			SQLitePath:    "onboard.db",
			SweepInterval: time.Minute,
			AbandonAfter:  7 * 24 * time.Hour,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Mail: MailConfig{
			Transport: "log",
			Port:      587,
		},
		Ticket: TicketConfig{TTL: 24 * time.Hour, Issuer: "onboardd"},
		Verification: VerificationConfig{
			CodeTTL:     engine.Verification.CodeTTL,
			MaxAttempts: engine.Verification.MaxAttempts,
		},
		Resend: ResendConfig{
			MaxAttempts: engine.Resend.MaxAttempts,
			Cooldown:    engine.Resend.Cooldown,
			Window:      engine.Resend.Window,
		},
		RateLimit: RateLimitConfig{
			Enabled: engine.RateLimit.Enabled,
			Limit:   engine.RateLimit.Limit,
			Window:  engine.RateLimit.Window,
		},
		Metrics: MetricsConfig{Enabled: true},
		Audit:   AuditConfig{BufferSize: engine.Audit.BufferSize},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies the
// environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks server-level settings. Engine settings are checked by the
// engine builder.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server addr required")
	}
	switch c.Store.Backend {
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis addr required for redis store")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("sqlite path required for sqlite store")
		}
		if c.Store.SweepInterval <= 0 {
			return errors.New("sweep interval must be > 0")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.RateLimit.Enabled && c.Redis.Addr == "" {
		return errors.New("rate limiting requires a redis addr")
	}
	switch c.Mail.Transport {
	case "log":
	case "smtp":
		if c.Mail.Host == "" || c.Mail.From == "" {
			return errors.New("smtp transport requires host and from")
		}
	default:
		return fmt.Errorf("unknown mail transport %q", c.Mail.Transport)
	}
	if len(c.Ticket.Secret) < 32 {
		return errors.New("ticket secret must be at least 32 bytes")
	}
	if c.Ticket.TTL <= 0 {
		return errors.New("ticket ttl must be > 0")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Engine returns the engine configuration with this file's overrides applied.
func (c Config) Engine() goOnboard.Config {
	cfg := goOnboard.DefaultConfig()
	cfg.Verification.CodeTTL = c.Verification.CodeTTL
	cfg.Verification.MaxAttempts = c.Verification.MaxAttempts
	cfg.Resend.MaxAttempts = c.Resend.MaxAttempts
	cfg.Resend.Cooldown = c.Resend.Cooldown
	cfg.Resend.Window = c.Resend.Window
	cfg.RateLimit.Enabled = c.RateLimit.Enabled
	cfg.RateLimit.Limit = c.RateLimit.Limit
	cfg.RateLimit.Window = c.RateLimit.Window
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Audit.Enabled = c.Audit.Enabled
	if c.Audit.BufferSize > 0 {
		cfg.Audit.BufferSize = c.Audit.BufferSize
	}
	cfg.Audit.DropIfFull = true
	return cfg
}
