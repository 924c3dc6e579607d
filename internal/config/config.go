// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries every runtime knob for the API server and the
// migration tool.
type Config struct {
	HTTPAddr string `env:"AUTHCORE_HTTP_ADDR" envDefault:":8080"`

	PGDSN    string `env:"AUTHCORE_PG_DSN"`
	RedisURL string `env:"AUTHCORE_REDIS_URL"`

	TokenSecret string `env:"AUTHCORE_TOKEN_SECRET"`
	Issuer      string `env:"AUTHCORE_ISSUER" envDefault:"authcore"`

	AccessTTL  time.Duration `env:"AUTHCORE_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"AUTHCORE_REFRESH_TTL" envDefault:"336h"`

	BcryptCost int `env:"AUTHCORE_BCRYPT_COST" envDefault:"0"`

	RateLimitRPS   float64 `env:"AUTHCORE_RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"AUTHCORE_RATE_LIMIT_BURST" envDefault:"40"`

	MaxBodyBytes int64 `env:"AUTHCORE_MAX_BODY_BYTES" envDefault:"1048576"`

	ShutdownTimeout time.Duration `env:"AUTHCORE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.TokenSecret) == "" {
		return errors.New("config: AUTHCORE_TOKEN_SECRET is required")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be greater than zero")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("config: rate limit values must be greater than zero")
	}
	return nil
}
