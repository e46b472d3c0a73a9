// Package config loads and validates the Iris service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BrowserType enumerates the supported headless browser backends.
type BrowserType string

// Supported browser backends for the navigation driver.
const (
	BrowserChromium BrowserType = "chromium"
	BrowserFirefox  BrowserType = "firefox"
	BrowserWebkit   BrowserType = "webkit"
)

// Config captures every IRIS_-prefixed environment knob.
type Config struct {
	Host     string
	Port     int
	LogLevel string

	BrowserType     BrowserType
	Headless        bool
	PageTimeout     time.Duration
	WaitAfterLoad   time.Duration
	MaxConcurrent   int
	UserAgent       string
	MaxContentBytes int

	RedisURL     string
	CacheTTL     time.Duration
	CacheEnabled bool

	MinDelayBetweenRequests time.Duration
	RateLimitBurst          int

	RespectRobotsTxt  bool
	RobotsTxtCacheTTL time.Duration

	MaxRetries int

	TestingMode bool
}

// rawConfig mirrors the environment shape before duration conversion; viper is more
// reliable unmarshaling plain ints than time.Duration from millisecond env vars.
type rawConfig struct {
	Host                      string `mapstructure:"host"`
	Port                      int    `mapstructure:"port"`
	LogLevel                  string `mapstructure:"log_level"`
	BrowserType               string `mapstructure:"browser_type"`
	Headless                  bool   `mapstructure:"headless"`
	PageTimeoutMs             int    `mapstructure:"page_timeout_ms"`
	WaitAfterLoadMs           int    `mapstructure:"wait_after_load_ms"`
	MaxConcurrentPages        int    `mapstructure:"max_concurrent_pages"`
	UserAgent                 string `mapstructure:"user_agent"`
	MaxContentLength          int    `mapstructure:"max_content_length"`
	RedisURL                  string `mapstructure:"redis_url"`
	CacheTTLSeconds           int    `mapstructure:"cache_ttl_seconds"`
	CacheEnabled              bool   `mapstructure:"cache_enabled"`
	MinDelayBetweenRequestsMs int    `mapstructure:"min_delay_between_requests_ms"`
	RateLimitBurst            int    `mapstructure:"rate_limit_burst"`
	RespectRobotsTxt          bool   `mapstructure:"respect_robots_txt"`
	RobotsTxtCacheTTLSeconds  int    `mapstructure:"robots_txt_cache_ttl"`
	MaxRetries                int    `mapstructure:"max_retries"`
	TestingMode               bool   `mapstructure:"testing_mode"`
}

// Load builds a Config purely from the environment (IRIS_ prefix), applying defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IRIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg := raw.toConfig()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (r rawConfig) toConfig() Config {
	return Config{
		Host:                    r.Host,
		Port:                    r.Port,
		LogLevel:                r.LogLevel,
		BrowserType:             BrowserType(r.BrowserType),
		Headless:                r.Headless,
		PageTimeout:             time.Duration(r.PageTimeoutMs) * time.Millisecond,
		WaitAfterLoad:           time.Duration(r.WaitAfterLoadMs) * time.Millisecond,
		MaxConcurrent:           r.MaxConcurrentPages,
		UserAgent:               r.UserAgent,
		MaxContentBytes:         r.MaxContentLength,
		RedisURL:                r.RedisURL,
		CacheTTL:                time.Duration(r.CacheTTLSeconds) * time.Second,
		CacheEnabled:            r.CacheEnabled,
		MinDelayBetweenRequests: time.Duration(r.MinDelayBetweenRequestsMs) * time.Millisecond,
		RateLimitBurst:          r.RateLimitBurst,
		RespectRobotsTxt:        r.RespectRobotsTxt,
		RobotsTxtCacheTTL:       time.Duration(r.RobotsTxtCacheTTLSeconds) * time.Second,
		MaxRetries:              r.MaxRetries,
		TestingMode:             r.TestingMode,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8060)
	v.SetDefault("log_level", "info")
	v.SetDefault("browser_type", string(BrowserChromium))
	v.SetDefault("headless", true)
	v.SetDefault("page_timeout_ms", 30000)
	v.SetDefault("wait_after_load_ms", 2000)
	v.SetDefault("max_concurrent_pages", 3)
	v.SetDefault("user_agent", "Iris-Fetcher/1.0 (Research Bot)")
	v.SetDefault("max_content_length", 500000)
	v.SetDefault("redis_url", "redis://localhost:6379/4")
	v.SetDefault("cache_ttl_seconds", 3600)
	v.SetDefault("cache_enabled", true)
	v.SetDefault("min_delay_between_requests_ms", 1000)
	v.SetDefault("rate_limit_burst", 3)
	v.SetDefault("respect_robots_txt", true)
	v.SetDefault("robots_txt_cache_ttl", 86400)
	v.SetDefault("max_retries", 2)
	v.SetDefault("testing_mode", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("port must be > 0")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent_pages must be > 0")
	}
	if c.PageTimeout <= 0 {
		return fmt.Errorf("page_timeout_ms must be > 0")
	}
	switch c.BrowserType {
	case BrowserChromium, BrowserFirefox, BrowserWebkit:
	default:
		return fmt.Errorf("browser_type must be one of chromium, firefox, webkit, got %q", c.BrowserType)
	}
	if c.MaxContentBytes <= 0 {
		return fmt.Errorf("max_content_length must be > 0")
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate_limit_burst must be > 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	return nil
}
