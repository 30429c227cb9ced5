package goOnboard

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Verification.CodeLength != 6 || cfg.Verification.CodeTTL != 10*time.Minute ||
		cfg.Verification.MaxAttempts != 3 || cfg.Resend.MaxAttempts != 3 ||
		cfg.Resend.Cooldown != 60*time.Second || cfg.RateLimit.Limit != 10 ||
		cfg.RateLimit.Window != time.Minute || cfg.Identifier.MaxIssueAttempts != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.resendWindow() != cfg.Verification.CodeTTL {
		t.Fatalf("expected resend window to default to code TTL, got %v", cfg.resendWindow())
	}
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"identifier attempts", func(c *Config) { c.Identifier.MaxIssueAttempts = 0 }, "Identifier MaxIssueAttempts"},
		{"session prefix", func(c *Config) { c.Session.RedisPrefix = " " }, "Session RedisPrefix"},
		{"session ttl below code ttl", func(c *Config) { c.Session.TTL = time.Minute }, "Session TTL"},
		{"code length short", func(c *Config) { c.Verification.CodeLength = 4 }, "CodeLength"},
		{"code length long", func(c *Config) { c.Verification.CodeLength = 11 }, "CodeLength"},
		{"alphabet short", func(c *Config) { c.Verification.CodeAlphabet = "ABC" }, "CodeAlphabet"},
		{"alphabet symbols", func(c *Config) { c.Verification.CodeAlphabet = "ABCDEFGHI-" }, "CodeAlphabet"},
		{"alphabet duplicates", func(c *Config) { c.Verification.CodeAlphabet = "AABCDEFGHIJ" }, "CodeAlphabet"},
		{"code ttl", func(c *Config) { c.Verification.CodeTTL = 0 }, "CodeTTL"},
		{"verification attempts", func(c *Config) { c.Verification.MaxAttempts = 0 }, "Verification MaxAttempts"},
		{"resend attempts", func(c *Config) { c.Resend.MaxAttempts = 0 }, "Resend MaxAttempts"},
		{"resend cooldown", func(c *Config) { c.Resend.Cooldown = -time.Second }, "Resend Cooldown"},
		{"resend window", func(c *Config) { c.Resend.Window = 10 * time.Second }, "Resend Window"},
		{"rate limit", func(c *Config) { c.RateLimit.Limit = 0 }, "RateLimit Limit"},
		{"rate window", func(c *Config) { c.RateLimit.Window = 0 }, "RateLimit Window"},
		{"shared prefix", func(c *Config) { c.RateLimit.RedisPrefix = c.Session.RedisPrefix }, "must differ"},
		{"audit buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }, "Audit BufferSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestConfigRateLimitDisabledSkipsLimiterChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.Limit = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected disabled limiter settings to be ignored, got %v", err)
	}
}

func TestConfigLint(t *testing.T) {
	cfg := DefaultConfig()
	if ws := cfg.Lint(); len(ws) != 0 {
		t.Fatalf("expected no warnings for defaults, got %v", ws.Codes())
	}

	cfg.RateLimit.Enabled = false
	cfg.Verification.CodeTTL = 2 * time.Hour
	cfg.Session.TTL = 48 * time.Hour
	cfg.Resend.Cooldown = 5 * time.Second
	cfg.Audit.Enabled = true

	want := []string{"rate_limit_disabled", "long_code_ttl", "short_resend_cooldown", "audit_may_drop"}
	if got := cfg.Lint().Codes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBuilderRequirements(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithMailer(&fakeMailer{}).Build(); err == nil {
		t.Fatal("expected error without store or redis")
	}
	if _, err := New().WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without mailer")
	}

	bad := DefaultConfig()
	bad.Verification.CodeLength = 3
	if _, err := New().WithConfig(bad).WithRedis(rdb).WithMailer(&fakeMailer{}).Build(); err == nil {
		t.Fatal("expected invalid config to fail Build")
	}

	b := New().WithRedis(rdb).WithMailer(&fakeMailer{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
}

func TestNilEngineIsNotReady(t *testing.T) {
	var e *Engine
	_, err := e.StartSession(t.Context(), StartOptions{})
	requireIs(t, err, ErrEngineNotReady)
	requireIs(t, e.ValidateCode(t.Context(), "x", "y"), ErrEngineNotReady)
}
