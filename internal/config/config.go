// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the serve-mode configuration. Every field has a FUNNEL_
// environment variable; flags may override a subset.
type Config struct {
	Addr     string `env:"FUNNEL_ADDR" envDefault:":8080"`
	LogLevel string `env:"FUNNEL_LOG_LEVEL" envDefault:"info"`

	// Redis, optional. Empty address keeps everything in process
	// memory.
	RedisAddr     string `env:"FUNNEL_REDIS_ADDR"`
	RedisPassword string `env:"FUNNEL_REDIS_PASSWORD"`
	RedisDB       int    `env:"FUNNEL_REDIS_DB" envDefault:"0"`

	// Detector tuning.
	AbandonTimeout  time.Duration `env:"FUNNEL_ABANDON_TIMEOUT" envDefault:"5m"`
	BounceThreshold int           `env:"FUNNEL_BOUNCE_THRESHOLD" envDefault:"3"`
	HesitationDwell time.Duration `env:"FUNNEL_HESITATION_DWELL" envDefault:"30s"`

	// ConfidenceThreshold gates trust re-evaluation on confidence
	// updates.
	ConfidenceThreshold int `env:"FUNNEL_CONFIDENCE_THRESHOLD" envDefault:"60"`

	// Session garbage collection.
	SessionMaxAge   time.Duration `env:"FUNNEL_SESSION_MAX_AGE" envDefault:"24h"`
	CleanupInterval time.Duration `env:"FUNNEL_CLEANUP_INTERVAL" envDefault:"1h"`

	// TrustRulesPath optionally replaces the built-in trust message
	// table with a YAML file.
	TrustRulesPath string `env:"FUNNEL_TRUST_RULES"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
