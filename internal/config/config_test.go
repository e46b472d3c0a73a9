package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	clearIrisEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8060, cfg.Port)
	assert.Equal(t, BrowserChromium, cfg.BrowserType)
	assert.Equal(t, 30*time.Second, cfg.PageTimeout)
	assert.Equal(t, 2*time.Second, cfg.WaitAfterLoad)
	assert.Equal(t, 3, cfg.MaxConcurrent)
	assert.Equal(t, 500000, cfg.MaxContentBytes)
	assert.Equal(t, time.Second, cfg.MinDelayBetweenRequests)
	assert.Equal(t, 3, cfg.RateLimitBurst)
	assert.True(t, cfg.RespectRobotsTxt)
	assert.Equal(t, 24*time.Hour, cfg.RobotsTxtCacheTTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearIrisEnv(t)
	t.Setenv("IRIS_PORT", "9999")
	t.Setenv("IRIS_BROWSER_TYPE", "firefox")
	t.Setenv("IRIS_MAX_CONCURRENT_PAGES", "8")
	t.Setenv("IRIS_RESPECT_ROBOTS_TXT", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, BrowserFirefox, cfg.BrowserType)
	assert.Equal(t, 8, cfg.MaxConcurrent)
	assert.False(t, cfg.RespectRobotsTxt)
}

func TestConfigValidateErrors(t *testing.T) {
	base := Config{
		Port:            8060,
		MaxConcurrent:   1,
		PageTimeout:     time.Second,
		BrowserType:     BrowserChromium,
		MaxContentBytes: 1000,
		RateLimitBurst:  1,
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"invalid port", func() Config { c := base; c.Port = 0; return c }(), "port"},
		{"invalid concurrency", func() Config { c := base; c.MaxConcurrent = 0; return c }(), "max_concurrent_pages"},
		{"invalid timeout", func() Config { c := base; c.PageTimeout = 0; return c }(), "page_timeout_ms"},
		{"invalid browser", func() Config { c := base; c.BrowserType = "lynx"; return c }(), "browser_type"},
		{"invalid content length", func() Config { c := base; c.MaxContentBytes = 0; return c }(), "max_content_length"},
		{"invalid burst", func() Config { c := base; c.RateLimitBurst = 0; return c }(), "rate_limit_burst"},
		{"invalid retries", func() Config { c := base; c.MaxRetries = -1; return c }(), "max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want))
		})
	}
}

func clearIrisEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "IRIS_") {
			name := strings.SplitN(kv, "=", 2)[0]
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
}
