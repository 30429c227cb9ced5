package goOnboard

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goOnboard/internal"
)

// Config holds every Engine tunable. Obtain defaults with [DefaultConfig],
// adjust, and pass to [Builder.WithConfig]; the Engine keeps its own copy.
type Config struct {
	Identifier   IdentifierConfig
	Session      SessionConfig
	Verification VerificationConfig
	Resend       ResendConfig
	RateLimit    RateLimitConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
IDENTIFIER CONFIG
====================================
*/

// IdentifierConfig controls session identifier issuance.
type IdentifierConfig struct {
	// MaxIssueAttempts is how many generated identifiers are tried before
	// issuance fails with ErrCollisionExhausted.
	MaxIssueAttempts int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session record storage.
type SessionConfig struct {
	RedisPrefix string
	// TTL bounds how long an untouched record lives in Redis.
	TTL time.Duration
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls one-time code generation and validation.
type VerificationConfig struct {
	CodeLength   int
	CodeAlphabet string
	CodeTTL      time.Duration
	MaxAttempts  int
}

/*
====================================
RESEND CONFIG
====================================
*/

// ResendConfig controls the per-session send budget. Every send, including
// the first, spends one unit and starts the cooldown. The budget refills once
// Window has passed since the last send.
type ResendConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
	// Window defaults to Verification.CodeTTL when zero.
	Window time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the per-origin limiter in front of issuance and
// validation.
type RateLimitConfig struct {
	Enabled     bool
	Limit       int
	Window      time.Duration
	RedisPrefix string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and the validation latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the stock configuration: 3 identifier attempts,
// 6-character alphanumeric codes valid 10 minutes, 3 verification attempts,
// 3 sends with a 60-second cooldown, and 10 requests per minute per origin.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Identifier: IdentifierConfig{
			MaxIssueAttempts: 3,
		},
		Session: SessionConfig{
			RedisPrefix: "obs",
			TTL:         24 * time.Hour,
		},
		Verification: VerificationConfig{
			CodeLength:   6,
			CodeAlphabet: internal.DefaultCodeAlphabet,
			CodeTTL:      10 * time.Minute,
			MaxAttempts:  3,
		},
		Resend: ResendConfig{
			MaxAttempts: 3,
			Cooldown:    60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Limit:       10,
			Window:      time.Minute,
			RedisPrefix: "obrl",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	// Identifier
	if c.Identifier.MaxIssueAttempts <= 0 {
		return errors.New("Identifier MaxIssueAttempts must be > 0")
	}
	if c.Identifier.MaxIssueAttempts > 10 {
		return errors.New("Identifier MaxIssueAttempts must be <= 10")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.TTL < 0 {
		return errors.New("Session TTL must be >= 0")
	}
	if c.Session.TTL > 0 && c.Session.TTL < c.Verification.CodeTTL {
		return errors.New("Session TTL must be >= Verification CodeTTL")
	}

	// Verification
	if c.Verification.CodeLength < 6 || c.Verification.CodeLength > 10 {
		return errors.New("Verification CodeLength must be between 6 and 10")
	}
	if len(c.Verification.CodeAlphabet) < 10 {
		return errors.New("Verification CodeAlphabet must have at least 10 characters")
	}
	seen := make(map[byte]struct{}, len(c.Verification.CodeAlphabet))
	for i := 0; i < len(c.Verification.CodeAlphabet); i++ {
		ch := c.Verification.CodeAlphabet[i]
		if !isAlphanumeric(ch) {
			return errors.New("Verification CodeAlphabet must be ASCII letters and digits")
		}
		if _, dup := seen[ch]; dup {
			return errors.New("Verification CodeAlphabet must not repeat characters")
		}
		seen[ch] = struct{}{}
	}
	if c.Verification.CodeTTL <= 0 {
		return errors.New("Verification CodeTTL must be > 0")
	}
	if c.Verification.MaxAttempts <= 0 {
		return errors.New("Verification MaxAttempts must be > 0")
	}

	// Resend
	if c.Resend.MaxAttempts <= 0 {
		return errors.New("Resend MaxAttempts must be > 0")
	}
	if c.Resend.Cooldown < 0 {
		return errors.New("Resend Cooldown must be >= 0")
	}
	if c.Resend.Window < 0 {
		return errors.New("Resend Window must be >= 0")
	}
	if c.Resend.Window > 0 && c.Resend.Window < c.Resend.Cooldown {
		return errors.New("Resend Window must be >= Resend Cooldown")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.Limit <= 0 {
			return errors.New("RateLimit Limit must be > 0")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
		if strings.TrimSpace(c.RateLimit.RedisPrefix) == "" {
			return errors.New("RateLimit RedisPrefix must not be empty")
		}
		if c.RateLimit.RedisPrefix == c.Session.RedisPrefix {
			return errors.New("RateLimit RedisPrefix must differ from Session RedisPrefix")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

func (c *Config) resendWindow() time.Duration {
	if c.Resend.Window > 0 {
		return c.Resend.Window
	}
	return c.Verification.CodeTTL
}

func isAlphanumeric(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9'
}

/*
====================================
LINT
====================================
*/

// LintWarning flags a valid but questionable setting.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that pass Validate but weaken the flow.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	if !c.RateLimit.Enabled {
		ws = append(ws, LintWarning{"rate_limit_disabled", "per-origin rate limiting is off"})
	}
	if c.Verification.CodeTTL > time.Hour {
		ws = append(ws, LintWarning{"long_code_ttl", "verification codes live longer than an hour"})
	}
	if c.Verification.MaxAttempts > 10 {
		ws = append(ws, LintWarning{"many_attempts", "more than 10 verification attempts per code"})
	}
	if c.Resend.Cooldown < 10*time.Second {
		ws = append(ws, LintWarning{"short_resend_cooldown", "resend cooldown under 10 seconds"})
	}
	if c.Audit.Enabled && c.Audit.DropIfFull {
		ws = append(ws, LintWarning{"audit_may_drop", "audit events are dropped when the buffer is full"})
	}
	return ws
}
