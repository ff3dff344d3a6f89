package config

import (
	"time"

	"github.com/deepgram/readme-relay/pkg/logger"
)

const (
	DefaultGlobalLimit   = 1000
	DefaultGenerateLimit = 10
)

type RateLimitConfig struct {
	Enabled  bool `yaml:"enabled"`
	Global   int  `yaml:"global"`
	Generate int  `yaml:"generate"`
}

// RateLimit is the resolved limit for a single route key.
type RateLimit struct {
	Enabled bool
	MaxHits int
	Window  time.Duration
}

func (c *Config) GetRateLimit(key string) RateLimit {
	limits := map[string]RateLimit{
		"global": {
			Enabled: c.RateLimit.Enabled,
			MaxHits: c.RateLimit.Global, // requests per minute across all routes
			Window:  time.Minute,
		},
		"generate": {
			Enabled: c.RateLimit.Enabled,
			MaxHits: c.RateLimit.Generate, // generations per minute per client
			Window:  time.Minute,
		},
	}

	if limit, exists := limits[key]; exists {
		return limit
	}

	logger.Warn(logger.CONFIG, "No rate limit config found for key: %s", key)
	return RateLimit{Enabled: false}
}
