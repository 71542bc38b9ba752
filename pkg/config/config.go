package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaxBatchSize is the hard upper bound on records per bulk provisioning request
const MaxBatchSize = 50

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Identity      IdentityConfig      `yaml:"identity"`
	Auth          AuthConfig          `yaml:"auth"`
	SMTP          SMTPConfig          `yaml:"smtp"`
	Provisioning  ProvisioningConfig  `yaml:"provisioning"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// AuditToDB writes audit events to the audit_logs table in addition to the log
	AuditToDB bool `yaml:"audit_to_db"`
}

// RedisConfig holds the shared authorization cache settings. The cache is
// disabled when URL is empty.
type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// In-process L1 cache in front of redis. Invalidations do not reach the L1
	// of other instances, so L1TTL bounds how long they may serve a revoked level.
	L1Size int           `yaml:"l1_size"`
	L1TTL  time.Duration `yaml:"l1_ttl"`
}

// IdentityConfig configures the external identity provider
type IdentityConfig struct {
	// Mode is "http" for the admin API client or "memory" for local development
	Mode         string        `yaml:"mode"`
	AdminURL     string        `yaml:"admin_url"`
	ServiceKey   string        `yaml:"service_key"`
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Timeout      time.Duration `yaml:"timeout"`

	// InviteRedirectURL is where invitation links land
	InviteRedirectURL string `yaml:"invite_redirect_url"`
}

// AuthConfig selects how bearer tokens are verified
type AuthConfig struct {
	// Mode is "jwt", "oidc" or "memory"
	Mode         string `yaml:"mode"`
	JWTSecret    string `yaml:"jwt_secret"`
	JWTAudience  string `yaml:"jwt_audience"`
	OIDCIssuer   string `yaml:"oidc_issuer"`
	OIDCClientID string `yaml:"oidc_client_id"`

	// DevEmail and DevToken seed one user in memory mode
	DevEmail string `yaml:"dev_email"`
	DevToken string `yaml:"dev_token"`

	// SystemAdmins are user ids or emails allowed to list and delete every tenant
	SystemAdmins []string `yaml:"system_admins"`
}

// SMTPConfig enables invitation delivery over SMTP instead of the identity provider
type SMTPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// ProvisioningConfig bounds bulk provisioning
type ProvisioningConfig struct {
	MaxBatchSize int `yaml:"max_batch_size"`
	Concurrency  int `yaml:"concurrency"`

	// RequestsPerMinute limits bulk requests per acting user; 0 disables the limit.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel           string  `yaml:"log_level"`
	MetricsEnabled     bool    `yaml:"metrics_enabled"`
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			CacheTTL: time.Minute,
			L1Size:   10000,
			L1TTL:    5 * time.Second,
		},
		Identity: IdentityConfig{
			Mode:    "http",
			Timeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Mode:     "jwt",
			DevEmail: "dev@localhost.test",
		},
		SMTP: SMTPConfig{
			Port:     587,
			FromName: "tenantd",
		},
		Provisioning: ProvisioningConfig{
			MaxBatchSize:      MaxBatchSize,
			Concurrency:       5,
			RequestsPerMinute: 10,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "tenantd",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by TENANTD_CONFIG_FILE, and TENANTD_* environment variables, in
// increasing precedence. A .env file in the working directory is loaded first.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("TENANTD_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("TENANTD_HOST", s.Host)
	s.Port = getEnv("TENANTD_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("TENANTD_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("TENANTD_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("TENANTD_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("TENANTD_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)

	d := &c.Database
	d.URL = getEnv("TENANTD_DATABASE_URL", d.URL)
	d.MaxOpenConns = getEnvInt("TENANTD_DATABASE_MAX_OPEN_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = getEnvInt("TENANTD_DATABASE_MAX_IDLE_CONNS", d.MaxIdleConns)
	d.ConnMaxLifetime = getEnvDuration("TENANTD_DATABASE_CONN_MAX_LIFETIME", d.ConnMaxLifetime)
	d.AuditToDB = getEnvBool("TENANTD_AUDIT_TO_DB", d.AuditToDB)

	r := &c.Redis
	r.URL = getEnv("TENANTD_REDIS_URL", r.URL)
	r.Password = getEnv("TENANTD_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("TENANTD_REDIS_DB", r.DB)
	r.CacheTTL = getEnvDuration("TENANTD_CACHE_TTL", r.CacheTTL)
	r.L1Size = getEnvInt("TENANTD_L1_CACHE_SIZE", r.L1Size)
	r.L1TTL = getEnvDuration("TENANTD_L1_CACHE_TTL", r.L1TTL)

	i := &c.Identity
	i.Mode = strings.ToLower(getEnv("TENANTD_IDENTITY_MODE", i.Mode))
	i.AdminURL = getEnv("TENANTD_IDENTITY_ADMIN_URL", i.AdminURL)
	i.ServiceKey = getEnv("TENANTD_IDENTITY_SERVICE_KEY", i.ServiceKey)
	i.TokenURL = getEnv("TENANTD_IDENTITY_TOKEN_URL", i.TokenURL)
	i.ClientID = getEnv("TENANTD_IDENTITY_CLIENT_ID", i.ClientID)
	i.ClientSecret = getEnv("TENANTD_IDENTITY_CLIENT_SECRET", i.ClientSecret)
	i.Timeout = getEnvDuration("TENANTD_IDENTITY_TIMEOUT", i.Timeout)
	i.InviteRedirectURL = getEnv("TENANTD_INVITE_REDIRECT_URL", i.InviteRedirectURL)

	a := &c.Auth
	a.Mode = strings.ToLower(getEnv("TENANTD_AUTH_MODE", a.Mode))
	a.JWTSecret = getEnv("TENANTD_JWT_SECRET", a.JWTSecret)
	a.JWTAudience = getEnv("TENANTD_JWT_AUDIENCE", a.JWTAudience)
	a.OIDCIssuer = getEnv("TENANTD_OIDC_ISSUER", a.OIDCIssuer)
	a.OIDCClientID = getEnv("TENANTD_OIDC_CLIENT_ID", a.OIDCClientID)
	a.DevEmail = getEnv("TENANTD_DEV_EMAIL", a.DevEmail)
	a.DevToken = getEnv("TENANTD_DEV_TOKEN", a.DevToken)
	a.SystemAdmins = getEnvList("TENANTD_SYSTEM_ADMINS", a.SystemAdmins)

	m := &c.SMTP
	m.Enabled = getEnvBool("TENANTD_SMTP_ENABLED", m.Enabled)
	m.Host = getEnv("TENANTD_SMTP_HOST", m.Host)
	m.Port = getEnvInt("TENANTD_SMTP_PORT", m.Port)
	m.Username = getEnv("TENANTD_SMTP_USERNAME", m.Username)
	m.Password = getEnv("TENANTD_SMTP_PASSWORD", m.Password)
	m.FromEmail = getEnv("TENANTD_SMTP_FROM_EMAIL", m.FromEmail)
	m.FromName = getEnv("TENANTD_SMTP_FROM_NAME", m.FromName)

	p := &c.Provisioning
	p.MaxBatchSize = getEnvInt("TENANTD_BULK_MAX_BATCH", p.MaxBatchSize)
	p.Concurrency = getEnvInt("TENANTD_BULK_CONCURRENCY", p.Concurrency)
	p.RequestsPerMinute = getEnvInt("TENANTD_BULK_REQUESTS_PER_MINUTE", p.RequestsPerMinute)

	o := &c.Observability
	o.LogLevel = getEnv("TENANTD_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("TENANTD_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("TENANTD_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("TENANTD_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("TENANTD_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("TENANTD_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("TENANTD_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("TENANTD_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	switch c.Identity.Mode {
	case "http":
		if c.Identity.AdminURL == "" {
			return fmt.Errorf("identity admin URL is required for http identity mode")
		}
		if c.Identity.ServiceKey == "" && c.Identity.TokenURL == "" {
			return fmt.Errorf("identity service key or token URL is required")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid identity mode: %s (must be http or memory)", c.Identity.Mode)
	}
	if c.Identity.Timeout <= 0 {
		return fmt.Errorf("identity timeout must be positive")
	}

	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT secret is required for jwt auth mode")
		}
	case "oidc":
		if c.Auth.OIDCIssuer == "" || c.Auth.OIDCClientID == "" {
			return fmt.Errorf("OIDC issuer and client id are required for oidc auth mode")
		}
	case "memory":
		if c.Identity.Mode != "memory" {
			return fmt.Errorf("memory auth mode requires memory identity mode")
		}
		if c.Auth.DevToken == "" {
			return fmt.Errorf("dev token is required for memory auth mode")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be jwt, oidc, or memory)", c.Auth.Mode)
	}

	if c.SMTP.Enabled && (c.SMTP.Host == "" || c.SMTP.FromEmail == "") {
		return fmt.Errorf("SMTP host and from email are required when SMTP is enabled")
	}

	if c.Provisioning.MaxBatchSize < 1 || c.Provisioning.MaxBatchSize > MaxBatchSize {
		return fmt.Errorf("provisioning max batch size must be between 1 and %d", MaxBatchSize)
	}
	if c.Provisioning.Concurrency < 1 {
		return fmt.Errorf("provisioning concurrency must be at least 1")
	}
	if c.Provisioning.RequestsPerMinute < 0 {
		return fmt.Errorf("provisioning requests per minute must not be negative")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
