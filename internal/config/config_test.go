package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Schedule.IntervalMinutes != 60 {
		t.Fatalf("expected default interval 60, got %d", cfg.Schedule.IntervalMinutes)
	}
	if cfg.DB.Driver != DriverMemory || cfg.Scrape.Provider != ScrapeColly || cfg.Email.Provider != EmailLog {
		t.Fatalf("unexpected default providers: %+v", cfg)
	}
	if !cfg.Pipeline.RedeliverPending || cfg.Pipeline.FailFast {
		t.Fatalf("expected isolate mode with redelivery by default, got %+v", cfg.Pipeline)
	}
	if cfg.Scrape.RateLimitRPS != 1 || cfg.Scrape.RateLimitBurst != 1 {
		t.Fatalf("expected 1 rps / burst 1 scrape limit, got %+v", cfg.Scrape)
	}
	policy := cfg.RetryPolicy()
	if policy.MaxAttempts != 3 || policy.BaseDelay != time.Second || policy.MaxDelay != 3*time.Second {
		t.Fatalf("unexpected retry policy %+v", policy)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
schedule:
  interval_minutes: 15
db:
  driver: Postgres
  dsn: postgres://localhost/sellerguard
  max_conns: 8
scrape:
  provider: firecrawl
  firecrawl:
    api_key: fc-key
  timeout_seconds: 45
retry:
  max_attempts: 5
  base_delay_ms: 200
  max_delay_ms: 800
email:
  provider: resend
  resend:
    api_key: re-key
    from: alerts@example.com
    to: ["ops@example.com", " "]
pipeline:
  fail_fast: true
targets:
  seed_file: targets.yaml
auth:
  enabled: true
  api_key: secret
logging:
  development: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Schedule.IntervalMinutes != 15 {
		t.Fatalf("expected server/schedule overrides, got %+v %+v", cfg.Server, cfg.Schedule)
	}
	if cfg.DB.Driver != DriverPostgres || cfg.DB.MaxConns != 8 {
		t.Fatalf("expected normalized postgres driver, got %+v", cfg.DB)
	}
	if cfg.ScrapeTimeout() != 45*time.Second {
		t.Fatalf("expected scrape timeout 45s, got %v", cfg.ScrapeTimeout())
	}
	if len(cfg.Email.Resend.To) != 1 || cfg.Email.Resend.To[0] != "ops@example.com" {
		t.Fatalf("expected blank recipients dropped, got %v", cfg.Email.Resend.To)
	}
	if !cfg.Pipeline.FailFast || cfg.Targets.SeedFile != "targets.yaml" {
		t.Fatalf("expected pipeline/targets overrides, got %+v %+v", cfg.Pipeline, cfg.Targets)
	}
	if p := cfg.RetryPolicy(); p.MaxAttempts != 5 || p.MaxDelay != 800*time.Millisecond {
		t.Fatalf("unexpected retry policy %+v", p)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SELLERGUARD_SERVER_PORT", "7070")
	t.Setenv("SELLERGUARD_EMAIL_PROVIDER", "none")
	t.Setenv("SELLERGUARD_PIPELINE_REDELIVER_PENDING", "false")
	t.Setenv("SELLERGUARD_SCRAPE_USER_AGENT", "custom-agent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Email.Provider != EmailNone || cfg.Pipeline.RedeliverPending {
		t.Fatalf("expected env overrides, got %+v %+v", cfg.Email, cfg.Pipeline)
	}
	if cfg.Scrape.UserAgent != "custom-agent" {
		t.Fatalf("expected user agent override, got %q", cfg.Scrape.UserAgent)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig() Config {
	return Config{
		Server:   ServerConfig{Port: 8080},
		Schedule: ScheduleConfig{IntervalMinutes: 5},
		DB:       DBConfig{Driver: DriverMemory},
		Scrape:   ScrapeConfig{Provider: ScrapeColly, TimeoutSeconds: 10},
		Retry:    RetryConfig{MaxAttempts: 3, BaseDelayMs: 10, MaxDelayMs: 30},
		Email:    EmailConfig{Provider: EmailLog, TimeoutSeconds: 10},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid base config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"non-positive interval", func(c *Config) { c.Schedule.IntervalMinutes = 0 }, "schedule.interval_minutes"},
		{"unknown driver", func(c *Config) { c.DB.Driver = "sqlite" }, "db.driver"},
		{"postgres without dsn", func(c *Config) { c.DB.Driver = DriverPostgres }, "db.dsn"},
		{"unknown scrape provider", func(c *Config) { c.Scrape.Provider = "chrome" }, "scrape.provider"},
		{"firecrawl without key", func(c *Config) { c.Scrape.Provider = ScrapeFirecrawl }, "scrape.firecrawl.api_key"},
		{"zero scrape timeout", func(c *Config) { c.Scrape.TimeoutSeconds = 0 }, "scrape.timeout_seconds"},
		{"negative rate limit", func(c *Config) { c.Scrape.RateLimitRPS = -1 }, "scrape.rate_limit_rps"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"max below base", func(c *Config) { c.Retry.MaxDelayMs = 5 }, "retry.max_delay_ms"},
		{"unknown email provider", func(c *Config) { c.Email.Provider = "smtp" }, "email.provider"},
		{"resend without recipients", func(c *Config) {
			c.Email.Provider = EmailResend
			c.Email.Resend = ResendConfig{APIKey: "k", From: "a@example.com"}
		}, "email.resend"},
		{"zero email timeout", func(c *Config) { c.Email.TimeoutSeconds = 0 }, "email.timeout_seconds"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestShutdownTimeoutDefault(t *testing.T) {
	t.Parallel()

	if got := (Config{}).ShutdownTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s fallback, got %v", got)
	}
}
