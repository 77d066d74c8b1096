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

const (
	EventScopeGlobal = "global"
	EventScopeRooms  = "rooms"
)

type Config struct {
	Port                       int    `env:"PORT" envDefault:"8080"`
	DatabaseURL                string `env:"DATABASE_URL,required"`
	RedisURL                   string `env:"REDIS_URL"`
	JWTSecret                  string `env:"JWT_SECRET,required"`
	InternalSecret             string `env:"INTERNAL_SECRET"`
	RTCAppID                   string `env:"RTC_APP_ID"`
	RTCAppCertificate          string `env:"RTC_APP_CERTIFICATE"`
	RTCTokenTTLSeconds         int    `env:"RTC_TOKEN_TTL_SECONDS" envDefault:"86400"`
	ExpirySweepIntervalSeconds int    `env:"EXPIRY_SWEEP_INTERVAL_SECONDS" envDefault:"60"`
	StoreTimeoutMillis         int    `env:"STORE_TIMEOUT_MS" envDefault:"5000"`
	MomentEventScope           string `env:"MOMENT_EVENT_SCOPE" envDefault:"global"`
	RateLimitPerMin            int    `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	ClaimCandidateLimit        int    `env:"CLAIM_CANDIDATE_LIMIT" envDefault:"5"`
	AutoMigrate                bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	LogLevel                   string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) RTCTokenTTL() time.Duration {
	return time.Duration(c.RTCTokenTTLSeconds) * time.Second
}

func (c *Config) ExpirySweepInterval() time.Duration {
	return time.Duration(c.ExpirySweepIntervalSeconds) * time.Second
}

func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMillis) * time.Millisecond
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RoomScopedMomentEvents reports whether moment events go only to category
// rooms instead of every session.
func (c *Config) RoomScopedMomentEvents() bool {
	return c.MomentEventScope == EventScopeRooms
}

func (c *Config) Validate(isProduction bool) error {
	switch c.MomentEventScope {
	case EventScopeGlobal, EventScopeRooms:
	default:
		return fmt.Errorf("MOMENT_EVENT_SCOPE must be %q or %q, got %q", EventScopeGlobal, EventScopeRooms, c.MomentEventScope)
	}

	if c.ExpirySweepIntervalSeconds <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL_SECONDS must be positive")
	}
	if c.StoreTimeoutMillis <= 0 {
		return fmt.Errorf("STORE_TIMEOUT_MS must be positive")
	}
	if c.ClaimCandidateLimit <= 0 {
		return fmt.Errorf("CLAIM_CANDIDATE_LIMIT must be positive")
	}

	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if c.InternalSecret != "" {
			if err := validateSecret("INTERNAL_SECRET", c.InternalSecret); err != nil {
				return err
			}
		}

		if c.RedisURL == "" {
			log.Warn().Msg("REDIS_URL is empty in production: events will not reach sessions on other instances")
		} else if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.RTCAppID == "" || c.RTCAppCertificate == "" {
			log.Warn().Msg("RTC_APP_ID or RTC_APP_CERTIFICATE is empty in production: call tokens cannot be issued")
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
