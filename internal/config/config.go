package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "jwt-secret", "password",
}

// PlatformConfig holds OAuth client settings for one CRM platform.
type PlatformConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURI  string `env:"REDIRECT_URI"`
}

// Enabled reports whether the platform has OAuth client credentials.
func (p PlatformConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret     string `env:"JWT_SECRET,required"`
	JWTTTLHours   int    `env:"JWT_TTL_HOURS" envDefault:"0"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	DefaultRegion             string   `env:"DEFAULT_REGION" envDefault:"US"`
	CORSAllowedOrigins        []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	RateLimitPerMinute        int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	LoginRateLimitPerMinute   int      `env:"LOGIN_RATE_LIMIT_PER_MINUTE" envDefault:"10"`
	TokenRefreshBufferSeconds int      `env:"TOKEN_REFRESH_BUFFER_SECONDS" envDefault:"120"`
	RecordingCacheTTLSeconds  int      `env:"RECORDING_CACHE_TTL_SECONDS" envDefault:"3600"`
	LogClaimTTLSeconds        int      `env:"LOG_CLAIM_TTL_SECONDS" envDefault:"30"`

	ConnectorRateLimitPerSecond float64 `env:"CONNECTOR_RATE_LIMIT_PER_SECOND" envDefault:"10"`
	ConnectorTimeoutSeconds     int     `env:"CONNECTOR_TIMEOUT_SECONDS" envDefault:"30"`

	Pipedrive        PlatformConfig `envPrefix:"PIPEDRIVE_"`
	Clio             PlatformConfig `envPrefix:"CLIO_"`
	Bullhorn         PlatformConfig `envPrefix:"BULLHORN_"`
	InsightlyEnabled bool           `env:"INSIGHTLY_ENABLED" envDefault:"true"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLHours) * time.Hour
}

func (c *Config) TokenRefreshBuffer() time.Duration {
	return time.Duration(c.TokenRefreshBufferSeconds) * time.Second
}

func (c *Config) RecordingCacheTTL() time.Duration {
	return time.Duration(c.RecordingCacheTTLSeconds) * time.Second
}

func (c *Config) LogClaimTTL() time.Duration {
	return time.Duration(c.LogClaimTTLSeconds) * time.Second
}

func (c *Config) ConnectorTimeout() time.Duration {
	return time.Duration(c.ConnectorTimeoutSeconds) * time.Second
}

func (c *Config) Validate(isProduction bool) error {
	if c.EncryptionKey != "" && len(c.EncryptionKey) != 64 {
		return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}

	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}

		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: CRM tokens will not be encrypted at rest")
		}
		if len(c.CORSAllowedOrigins) == 0 {
			log.Warn().Msg("CORS_ALLOWED_ORIGINS is empty in production: cross-origin requests will be rejected")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
