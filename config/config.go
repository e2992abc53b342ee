package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config represents the application configuration
type Config struct {
	// Content API (WordPress plugin namespace, e.g. https://example.com/wp-json/lovedoll/v1)
	ContentAPIBase string `envconfig:"CONTENT_API_BASE"`

	// Outbound HTTP
	UserAgent      string        `envconfig:"USER_AGENT" default:"Mozilla/5.0 (compatible; ProductHarvester/1.0)"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	RespectRobots  bool          `envconfig:"RESPECT_ROBOTS" default:"false"`

	// Crawl defaults, overridable from the command line
	MaxPages  int           `envconfig:"MAX_PAGES" default:"10"`
	PageDelay time.Duration `envconfig:"PAGE_DELAY" default:"1500ms"`

	// Headless rendering
	ChromeBin       string        `envconfig:"CHROME_BIN"`
	ChromeNoSandbox bool          `envconfig:"CHROME_NO_SANDBOX" default:"false"`
	RenderWait      time.Duration `envconfig:"RENDER_WAIT" default:"12s"`
	RenderSettle    time.Duration `envconfig:"RENDER_SETTLE" default:"2s"`

	// Memcache configuration; empty disables the 429 cooldown marker
	MemcacheAddr  string        `envconfig:"MEMCACHE_ADDR"`
	CooldownAfter time.Duration `envconfig:"COOLDOWN" default:"10m"`

	// Redis configuration; empty disables stream notifications
	RedisAddr            string `envconfig:"REDIS_ADDR"`
	RedisDB              int    `envconfig:"REDIS_DB" default:"0"`
	RedisStream          string `envconfig:"REDIS_STREAM" default:"products"`
	RedisStreamCount     int    `envconfig:"REDIS_STREAM_COUNT" default:"1"`
	RedisStreamMaxLength int    `envconfig:"REDIS_STREAM_MAX_LENGTH" default:"1000"`

	// Prometheus Pushgateway; empty disables metrics push
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL"`

	// Environment
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

// LoadConfig loads .env (when present) and then the HARVEST_* environment variables
func LoadConfig() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("harvest", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks the values the pipeline cannot run without
func (c *Config) Validate() error {
	if c.ContentAPIBase != "" {
		u, err := url.Parse(c.ContentAPIBase)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("content API base must be an absolute URL, got %q", c.ContentAPIBase)
		}
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.PageDelay < 0 {
		return fmt.Errorf("page delay must not be negative")
	}
	if c.RedisAddr != "" && c.RedisStreamCount <= 0 {
		return fmt.Errorf("redis stream count must be positive")
	}
	return nil
}

// IsProduction reports whether the harvester runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
