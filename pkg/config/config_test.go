package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Database.URL = "postgres://localhost/tenantd"
	cfg.Identity.AdminURL = "http://auth.local"
	cfg.Identity.ServiceKey = "service-key"
	cfg.Auth.JWTSecret = "secret"
	return cfg
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TENANTD_TEST_STR", "custom")
	t.Setenv("TENANTD_TEST_BOOL", "1")
	t.Setenv("TENANTD_TEST_INT", "42")
	t.Setenv("TENANTD_TEST_BADINT", "forty-two")
	t.Setenv("TENANTD_TEST_DUR", "3s")
	t.Setenv("TENANTD_TEST_FLOAT", "0.25")

	assert.Equal(t, "custom", getEnv("TENANTD_TEST_STR", "default"))
	assert.Equal(t, "default", getEnv("TENANTD_TEST_UNSET", "default"))
	assert.True(t, getEnvBool("TENANTD_TEST_BOOL", false))
	assert.Equal(t, 42, getEnvInt("TENANTD_TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("TENANTD_TEST_BADINT", 7))
	assert.Equal(t, 3*time.Second, getEnvDuration("TENANTD_TEST_DUR", time.Second))
	assert.Equal(t, 0.25, getEnvFloat("TENANTD_TEST_FLOAT", 1))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing database", func(c *Config) { c.Database.URL = "" }, "database URL is required"},
		{"missing admin url", func(c *Config) { c.Identity.AdminURL = "" }, "identity admin URL is required"},
		{"client credentials instead of key", func(c *Config) {
			c.Identity.ServiceKey = ""
			c.Identity.TokenURL = "http://auth.local/token"
		}, ""},
		{"bad identity mode", func(c *Config) { c.Identity.Mode = "ldap" }, "invalid identity mode"},
		{"zero identity timeout", func(c *Config) { c.Identity.Timeout = 0 }, "identity timeout must be positive"},
		{"jwt without secret", func(c *Config) { c.Auth.JWTSecret = "" }, "JWT secret is required"},
		{"oidc without issuer", func(c *Config) { c.Auth.Mode = "oidc" }, "OIDC issuer and client id are required"},
		{"memory auth with http identity", func(c *Config) { c.Auth.Mode = "memory" }, "memory auth mode requires memory identity mode"},
		{"memory auth without dev token", func(c *Config) {
			c.Auth.Mode = "memory"
			c.Identity.Mode = "memory"
		}, "dev token is required"},
		{"smtp without host", func(c *Config) { c.SMTP.Enabled = true }, "SMTP host and from email are required"},
		{"batch over bound", func(c *Config) { c.Provisioning.MaxBatchSize = 51 }, "between 1 and 50"},
		{"zero concurrency", func(c *Config) { c.Provisioning.Concurrency = 0 }, "concurrency must be at least 1"},
		{"negative bulk rate", func(c *Config) { c.Provisioning.RequestsPerMinute = -1 }, "must not be negative"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, "OpenTelemetry endpoint is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenantd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
  shutdown_timeout: 5s
database:
  url: postgres://file/tenantd
identity:
  mode: memory
auth:
  mode: memory
  dev_token: local-dev
  system_admins: ["ops@example.com"]
provisioning:
  concurrency: 2
`), 0o600))

	t.Setenv("TENANTD_CONFIG_FILE", path)
	t.Setenv("TENANTD_PORT", "9100")
	t.Setenv("TENANTD_LOG_LEVEL", "debug")
	t.Setenv("TENANTD_SYSTEM_ADMINS", "ops@example.com, 7d1f3c52-0c1e-4b8e-9a57-3f1b2a9c0d11")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9100", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "postgres://file/tenantd", cfg.Database.URL)
	assert.Equal(t, "memory", cfg.Identity.Mode)
	assert.Equal(t, 2, cfg.Provisioning.Concurrency)
	assert.Equal(t, MaxBatchSize, cfg.Provisioning.MaxBatchSize)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, "local-dev", cfg.Auth.DevToken)
	assert.Equal(t, []string{"ops@example.com", "7d1f3c52-0c1e-4b8e-9a57-3f1b2a9c0d11"}, cfg.Auth.SystemAdmins)
}

func TestLoadConfig_BadFile(t *testing.T) {
	t.Setenv("TENANTD_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("TENANTD_CONFIG_FILE", "")
	t.Setenv("TENANTD_DATABASE_URL", "")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "configuration validation failed")
}
