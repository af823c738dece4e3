// Package config loads the sessiond daemon configuration from an optional
// file and SESSIONGUARD_* environment variables using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/carenest/sessionguard"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SESSIONGUARD"

// Store backends understood by the daemon.
const (
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendRedis     = "redis"
	BackendMiniredis = "miniredis"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
)

// Config is the daemon configuration. Keys are matched case-insensitively,
// so LISTEN_ADDR in the environment and listen_addr in a YAML file both set
// ListenAddr.
type Config struct {
	// ListenAddr is the HTTP address (e.g. :8080).
	ListenAddr string `mapstructure:"LISTEN_ADDR"`

	// StoreBackend is one of memory, file, redis, miniredis, sqlite, postgres.
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	// StorePath is the file path for the file backend and the database path
	// for sqlite.
	StorePath string `mapstructure:"STORE_PATH"`
	// StoreKey names the slot the blob is written under.
	StoreKey  string `mapstructure:"STORE_KEY"`
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// SQLDSN is the Postgres connection string for the postgres backend.
	SQLDSN string `mapstructure:"SQL_DSN"`

	// JWTSecret is the HS256 secret for refresh tokens (at least 32 bytes).
	JWTSecret   string        `mapstructure:"JWT_SECRET"`
	JWTIssuer   string        `mapstructure:"JWT_ISSUER"`
	JWTAudience string        `mapstructure:"JWT_AUDIENCE"`
	TokenTTL    time.Duration `mapstructure:"TOKEN_TTL"`

	MaxAge            time.Duration `mapstructure:"SESSION_MAX_AGE"`
	IdleTimeout       time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`
	RefreshThreshold  time.Duration `mapstructure:"SESSION_REFRESH_THRESHOLD"`
	WarningWindow     time.Duration `mapstructure:"SESSION_WARNING_WINDOW"`
	RefreshTimeout    time.Duration `mapstructure:"REFRESH_TIMEOUT"`
	PersistInterval   time.Duration `mapstructure:"ACTIVITY_PERSIST_INTERVAL"`
	ActivityEnabled   bool          `mapstructure:"ACTIVITY_ENABLED"`
	Algorithm         string        `mapstructure:"CRYPTO_ALGORITHM"`
	RequireEncryption bool          `mapstructure:"REQUIRE_ENCRYPTION"`
	AuditEnabled      bool          `mapstructure:"AUDIT_ENABLED"`
	MetricsEnabled    bool          `mapstructure:"METRICS_ENABLED"`
}

// Load reads path (if non-empty; any format Viper understands, chosen by
// extension), then applies environment overrides and validates the result.
// A missing path is an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := sessionguard.DefaultConfig()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("STORE_PATH", "")
	v.SetDefault("STORE_KEY", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("SQL_DSN", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "sessiond")
	v.SetDefault("JWT_AUDIENCE", "clinic-portal")
	v.SetDefault("TOKEN_TTL", 7*24*time.Hour)
	v.SetDefault("SESSION_MAX_AGE", defaults.Session.MaxAge)
	v.SetDefault("SESSION_IDLE_TIMEOUT", defaults.Session.IdleTimeout)
	v.SetDefault("SESSION_REFRESH_THRESHOLD", defaults.Session.RefreshThreshold)
	v.SetDefault("SESSION_WARNING_WINDOW", defaults.Session.WarningWindow)
	v.SetDefault("REFRESH_TIMEOUT", defaults.Refresh.Timeout)
	v.SetDefault("ACTIVITY_PERSIST_INTERVAL", time.Minute)
	v.SetDefault("ACTIVITY_ENABLED", defaults.Activity.Enabled)
	v.SetDefault("CRYPTO_ALGORITHM", defaults.Crypto.Algorithm)
	v.SetDefault("REQUIRE_ENCRYPTION", defaults.Crypto.RequireEncryption)
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("METRICS_ENABLED", true)
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: LISTEN_ADDR must be set")
	}
	switch c.StoreBackend {
	case BackendMemory, BackendMiniredis:
	case BackendFile, BackendSQLite:
		if c.StorePath == "" {
			return fmt.Errorf("config: STORE_PATH required for %s backend", c.StoreBackend)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR required for redis backend")
		}
	case BackendPostgres:
		if c.SQLDSN == "" {
			return errors.New("config: SQL_DSN required for postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return errors.New("config: JWT_SECRET must be at least 32 bytes")
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: TOKEN_TTL must be > 0")
	}
	mc := c.Manager()
	if err := mc.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Manager maps the daemon settings onto a sessionguard.Config, starting from
// sessionguard.DefaultConfig.
func (c *Config) Manager() sessionguard.Config {
	out := sessionguard.DefaultConfig()
	out.Session.MaxAge = c.MaxAge
	out.Session.IdleTimeout = c.IdleTimeout
	out.Session.RefreshThreshold = c.RefreshThreshold
	out.Session.WarningWindow = c.WarningWindow
	out.Refresh.Enabled = c.JWTSecret != ""
	out.Refresh.Timeout = c.RefreshTimeout
	out.Activity.Enabled = c.ActivityEnabled
	out.Activity.PersistInterval = c.PersistInterval
	out.Crypto.Algorithm = c.Algorithm
	out.Crypto.RequireEncryption = c.RequireEncryption
	out.Audit.Enabled = c.AuditEnabled
	out.Metrics.Enabled = c.MetricsEnabled
	out.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	return out
}
