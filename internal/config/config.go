// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/adminkit/session-auth-service/internal/domain"
	"github.com/adminkit/session-auth-service/internal/security"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// ServerAddr is the address the HTTP server listens on (e.g. :8080).
	ServerAddr string `mapstructure:"SERVER_ADDR"`
	// Env is the application environment ("development" or "production").
	Env string `mapstructure:"APP_ENV"`
	// DatabaseURL is the store DSN. postgres://... selects Postgres; anything
	// else is treated as a sqlite path (development profile).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTSecret signs bearer tokens. Required in production; in development a
	// random per-process secret is generated when unset (tokens then do not
	// survive restarts).
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTExpiresIn is the token lifetime as "<integer><unit>" with unit one of
	// s, m, h, d (default unit: hours). Unparsable values fall back to 24h.
	JWTExpiresIn string `mapstructure:"JWT_EXPIRES_IN"`
	// SessionAllowMultipleDevices is the default multi-device policy for a
	// user whose settings row does not exist yet.
	SessionAllowMultipleDevices bool `mapstructure:"SESSION_ALLOW_MULTIPLE_DEVICES"`
	// SessionMaxSessions is the default cap on concurrent active sessions per
	// user; must be >= 1.
	SessionMaxSessions int `mapstructure:"SESSION_MAX_SESSIONS"`
	// ShutdownTimeout bounds graceful drain of the HTTP server on exit.
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	OTELEnabled               bool          `mapstructure:"OTEL_ENABLED"`
	OTELExporterOTLPEndpoint  string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELExporterOTLPInsecure  bool          `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTELServiceName           string        `mapstructure:"OTEL_SERVICE_NAME"`
	OTELMetricsExportInterval time.Duration `mapstructure:"OTEL_METRICS_EXPORT_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env. The missing-signing-key fallback is an
// explicit degraded mode: a hard error in production, a logged random
// per-process key otherwise.
func Load(logger *slog.Logger) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DATABASE_URL", "file:sessions.db")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRES_IN", "24h")
	v.SetDefault("SESSION_ALLOW_MULTIPLE_DEVICES", true)
	v.SetDefault("SESSION_MAX_SESSIONS", 5)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("OTEL_SERVICE_NAME", "session-auth-service")
	v.SetDefault("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		err = fmt.Errorf("parse config: %w", err)
		recordConfigValidationEvent(context.Background(), cfg.Env, "error", classifyConfigLoadError(err))
		return nil, err
	}

	if err := cfg.validate(logger); err != nil {
		recordConfigValidationEvent(context.Background(), cfg.Env, "error", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), cfg.Env, "success", "none")
	return &cfg, nil
}

func (c *Config) validate(logger *slog.Logger) error {
	if c.ServerAddr == "" {
		return errors.New("validate config: SERVER_ADDR must be set")
	}
	if c.DatabaseURL == "" {
		return errors.New("validate config: DATABASE_URL must be set")
	}
	if c.SessionMaxSessions < 1 {
		return errors.New("validate config: SESSION_MAX_SESSIONS must be >= 1")
	}
	if c.JWTSecret == "" {
		if c.Production() {
			return errors.New("validate config: JWT_SECRET must be set when APP_ENV=production")
		}
		secret, err := security.NewRandomSecret()
		if err != nil {
			return fmt.Errorf("generate fallback signing key: %w", err)
		}
		c.JWTSecret = secret
		if logger != nil {
			logger.Warn("JWT_SECRET is not set; using a random per-process signing key, issued tokens will not survive a restart")
		}
	}
	return nil
}

func (c *Config) Production() bool { return c.Env == "production" }

// TokenTTL parses JWTExpiresIn; unparsable values fall back to 24h.
func (c *Config) TokenTTL() time.Duration { return security.ParseTokenTTL(c.JWTExpiresIn) }

// CookieSecure marks the auth cookie Secure outside development.
func (c *Config) CookieSecure() bool { return c.Production() }

// SettingsDefaults seed lazily created per-user session settings.
func (c *Config) SettingsDefaults() domain.SettingsDefaults {
	return domain.SettingsDefaults{
		AllowMultipleDevices: c.SessionAllowMultipleDevices,
		MaxSessions:          c.SessionMaxSessions,
	}
}
