// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sellerguard/internal/retry"
)

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Scrape providers.
const (
	ScrapeFirecrawl = "firecrawl"
	ScrapeColly     = "colly"
)

// Email providers. EmailNone disables alert delivery.
const (
	EmailLog    = "log"
	EmailResend = "resend"
	EmailNone   = "none"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	DB       DBConfig       `mapstructure:"db"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Email    EmailConfig    `mapstructure:"email"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Targets  TargetsConfig  `mapstructure:"targets"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// ScheduleConfig controls the pipeline timer.
type ScheduleConfig struct {
	IntervalMinutes int  `mapstructure:"interval_minutes"`
	RunOnStart      bool `mapstructure:"run_on_start"`
}

// DBConfig selects and configures the repositories.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// ScrapeConfig selects the page fetch adapter.
type ScrapeConfig struct {
	Provider       string          `mapstructure:"provider"`
	Firecrawl      FirecrawlConfig `mapstructure:"firecrawl"`
	TimeoutSeconds int             `mapstructure:"timeout_seconds"`
	UserAgent      string          `mapstructure:"user_agent"`
	RespectRobots  bool            `mapstructure:"respect_robots"`
	// RateLimitRPS caps attempts per second against one host; 0 disables.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// FirecrawlConfig holds Firecrawl API credentials.
type FirecrawlConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// RetryConfig is shared by the scrape and email ports.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// EmailConfig selects the alert sender.
type EmailConfig struct {
	Provider       string       `mapstructure:"provider"`
	Resend         ResendConfig `mapstructure:"resend"`
	TimeoutSeconds int          `mapstructure:"timeout_seconds"`
}

// ResendConfig holds Resend API settings.
type ResendConfig struct {
	APIKey  string   `mapstructure:"api_key"`
	BaseURL string   `mapstructure:"base_url"`
	From    string   `mapstructure:"from"`
	To      []string `mapstructure:"to"`
}

// PipelineConfig controls failure propagation and redelivery.
type PipelineConfig struct {
	FailFast         bool `mapstructure:"fail_fast"`
	RedeliverPending bool `mapstructure:"redeliver_pending"`
	PendingLimit     int  `mapstructure:"pending_limit"`
}

// TargetsConfig points at the YAML seed file.
type TargetsConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from an optional file and SELLERGUARD_* environment
// variables (dots become underscores, e.g. SELLERGUARD_DB_DSN).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SELLERGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("schedule.interval_minutes", 60)
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("db.driver", DriverMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate", true)
	v.SetDefault("scrape.provider", ScrapeColly)
	v.SetDefault("scrape.firecrawl.api_key", "")
	v.SetDefault("scrape.firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("scrape.timeout_seconds", 30)
	v.SetDefault("scrape.user_agent", "sellerguard/0.1")
	v.SetDefault("scrape.respect_robots", true)
	v.SetDefault("scrape.rate_limit_rps", 1.0)
	v.SetDefault("scrape.rate_limit_burst", 1)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 3000)
	v.SetDefault("email.provider", EmailLog)
	v.SetDefault("email.resend.api_key", "")
	v.SetDefault("email.resend.base_url", "https://api.resend.com")
	v.SetDefault("email.resend.from", "")
	v.SetDefault("email.resend.to", []string{})
	v.SetDefault("email.timeout_seconds", 15)
	v.SetDefault("pipeline.fail_fast", false)
	v.SetDefault("pipeline.redeliver_pending", true)
	v.SetDefault("pipeline.pending_limit", 50)
	v.SetDefault("targets.seed_file", "")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", false)
}

func (c *Config) normalize() {
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	c.Scrape.Provider = strings.ToLower(strings.TrimSpace(c.Scrape.Provider))
	c.Email.Provider = strings.ToLower(strings.TrimSpace(c.Email.Provider))
	to := c.Email.Resend.To[:0]
	for _, addr := range c.Email.Resend.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	c.Email.Resend.To = to
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Schedule.IntervalMinutes <= 0 {
		return fmt.Errorf("schedule.interval_minutes must be > 0")
	}
	switch c.DB.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.driver is %s", DriverPostgres)
		}
	default:
		return fmt.Errorf("db.driver must be %s or %s, got %q", DriverMemory, DriverPostgres, c.DB.Driver)
	}
	switch c.Scrape.Provider {
	case ScrapeColly:
	case ScrapeFirecrawl:
		if c.Scrape.Firecrawl.APIKey == "" {
			return fmt.Errorf("scrape.firecrawl.api_key is required when scrape.provider is %s", ScrapeFirecrawl)
		}
	default:
		return fmt.Errorf("scrape.provider must be %s or %s, got %q", ScrapeFirecrawl, ScrapeColly, c.Scrape.Provider)
	}
	if c.Scrape.TimeoutSeconds <= 0 {
		return fmt.Errorf("scrape.timeout_seconds must be > 0")
	}
	if c.Scrape.RateLimitRPS < 0 {
		return fmt.Errorf("scrape.rate_limit_rps must be >= 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.BaseDelayMs < 0 || c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		return fmt.Errorf("retry.max_delay_ms must be >= retry.base_delay_ms >= 0")
	}
	switch c.Email.Provider {
	case EmailLog, EmailNone:
	case EmailResend:
		if c.Email.Resend.APIKey == "" || c.Email.Resend.From == "" || len(c.Email.Resend.To) == 0 {
			return fmt.Errorf("email.resend.api_key, email.resend.from and email.resend.to are required when email.provider is %s", EmailResend)
		}
	default:
		return fmt.Errorf("email.provider must be %s, %s or %s, got %q", EmailLog, EmailResend, EmailNone, c.Email.Provider)
	}
	if c.Email.TimeoutSeconds <= 0 {
		return fmt.Errorf("email.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// RetryPolicy converts the retry settings into a retry.Policy.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   time.Duration(c.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.Retry.MaxDelayMs) * time.Millisecond,
	}
}

// ScrapeTimeout is the per-attempt scrape deadline.
func (c Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Scrape.TimeoutSeconds) * time.Second
}

// EmailTimeout is the per-attempt delivery deadline.
func (c Config) EmailTimeout() time.Duration {
	return time.Duration(c.Email.TimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
