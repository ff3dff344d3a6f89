package services

import (
	"fmt"
	"sync"

	"github.com/deepgram/readme-relay/internal/config"
	"github.com/deepgram/readme-relay/internal/connections"
	"github.com/deepgram/readme-relay/internal/infrastructure/openai"
	"github.com/deepgram/readme-relay/internal/infrastructure/redis"
	"github.com/deepgram/readme-relay/internal/services/relay"
	"github.com/deepgram/readme-relay/pkg/ratelimit"
	"github.com/rs/zerolog/log"
)

var (
	// Mutex for thread-safe initialization
	servicesMu sync.Mutex
)

type Services struct {
	config            *config.Config
	redisService      *redis.Service
	relay             *relay.Relay
	connectionManager *connections.Manager
	limiters          map[string]ratelimit.Limiter
}

// InitializeServices wires the production services from cfg
func InitializeServices(cfg *config.Config) (*Services, error) {
	servicesMu.Lock()
	defer servicesMu.Unlock()

	log.Info().Msg("Initializing core services")

	// Initialize Redis service (optional)
	redisService := redis.NewService(cfg.Redis)
	if redisService == nil {
		log.Info().Msg("Redis unavailable, rate limits are kept in memory")
	}

	// Initialize OpenAI service (required)
	openAIService := openai.NewService(cfg.OpenAI, nil)
	if openAIService == nil {
		return nil, fmt.Errorf("failed to initialize OpenAI service")
	}

	s := New(cfg, openAIService, redisService)
	log.Info().Msg("All services initialized successfully")
	return s, nil
}

// New assembles the services around an upstream, which tests replace.
func New(cfg *config.Config, upstream relay.Upstream, redisService *redis.Service) *Services {
	s := &Services{
		config:       cfg,
		redisService: redisService,
		relay: relay.New(upstream, relay.Options{
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			Timeout:     cfg.Relay.Timeout,
		}),
		connectionManager: connections.NewManager(connections.TimeoutsFor(cfg.Relay.PongWait)),
		limiters:          make(map[string]ratelimit.Limiter),
	}

	for _, key := range []string{"global", "generate"} {
		limit := cfg.GetRateLimit(key)
		if redisService != nil {
			s.limiters[key] = ratelimit.NewRedisLimiter(redisService.Client(), "ratelimit:"+key, limit.Window, limit.MaxHits)
		} else {
			s.limiters[key] = ratelimit.NewLimiter(limit.Window, limit.MaxHits)
		}
	}

	return s
}

// GetConfig returns the configuration the services were built from
func (s *Services) GetConfig() *config.Config {
	return s.config
}

// GetRelay returns the streaming relay
func (s *Services) GetRelay() *relay.Relay {
	return s.relay
}

// GetConnectionManager returns the registry of in-flight relays
func (s *Services) GetConnectionManager() *connections.Manager {
	return s.connectionManager
}

// GetLimiter returns the limiter for a rate limit key
func (s *Services) GetLimiter(key string) ratelimit.Limiter {
	return s.limiters[key]
}

// Shutdown cancels every in-flight relay and releases external connections
func (s *Services) Shutdown() {
	if n := s.connectionManager.CancelAll(); n > 0 {
		log.Info().Int("relays", n).Msg("Cancelled in-flight relays")
	}
	if s.redisService != nil {
		if err := s.redisService.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis connection")
		}
	}
}
