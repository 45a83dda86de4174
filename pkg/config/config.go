package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quillforum/quill/pkg/observability"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Session       SessionConfig
	OAuth         OAuthConfig
	Mail          MailConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	// PublicURL is the externally reachable base URL, used when
	// building verification and reset links.
	PublicURL       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SessionConfig holds token signing settings. TokenTTLMinutes drives both
// the JWT exp claim and the session cookie Max-Age.
type SessionConfig struct {
	Secret          string
	TokenTTLMinutes int
	SecureCookies   bool
}

// ProviderCredentials holds one OAuth provider's registration.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether the provider is fully configured. A provider
// missing any of the three values is treated as absent.
func (p ProviderCredentials) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != "" && p.RedirectURL != ""
}

// OAuthConfig holds the federated login providers.
type OAuthConfig struct {
	Google   ProviderCredentials
	Facebook ProviderCredentials
	Discord  ProviderCredentials
}

// MailConfig holds outbound mail settings.
type MailConfig struct {
	VerificationEnabled bool
	From                string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("QUILL_HOST", "0.0.0.0"),
			Port:            getEnv("QUILL_PORT", "8080"),
			PublicURL:       getEnv("QUILL_PUBLIC_URL", "http://localhost:8080"),
			ReadTimeout:     getEnvDuration("QUILL_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("QUILL_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("QUILL_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("QUILL_SHUTDOWN_TIMEOUT", 30*time.Second),
			CORSOrigins:     getEnvList("QUILL_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:             getEnv("QUILL_DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("QUILL_DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("QUILL_DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("QUILL_DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Session: SessionConfig{
			Secret:          getEnv("QUILL_TOKEN_SECRET", ""),
			TokenTTLMinutes: getEnvInt("QUILL_TOKEN_TTL", 60),
			SecureCookies:   getEnvBool("QUILL_SECURE_COOKIES", false),
		},
		OAuth: OAuthConfig{
			Google:   loadProvider("GOOGLE"),
			Facebook: loadProvider("FACEBOOK"),
			Discord:  loadProvider("DISCORD"),
		},
		Mail: MailConfig{
			VerificationEnabled: getEnvBool("QUILL_EMAIL_VERIFICATION", false),
			From:                getEnv("QUILL_MAIL_FROM", "noreply@localhost"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLevel(getEnv("QUILL_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("QUILL_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadProvider(name string) ProviderCredentials {
	return ProviderCredentials{
		ClientID:     getEnv("QUILL_OAUTH_"+name+"_CLIENT_ID", ""),
		ClientSecret: getEnv("QUILL_OAUTH_"+name+"_CLIENT_SECRET", ""),
		RedirectURL:  getEnv("QUILL_OAUTH_"+name+"_REDIRECT_URL", ""),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("token secret is required")
	}
	if c.Session.TokenTTLMinutes <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	return nil
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
