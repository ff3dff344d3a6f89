package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/deepgram/readme-relay/pkg/logger"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = 8080
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel     = "gpt-4-turbo-preview"
	DefaultTemperature     = float32(0.7)
	DefaultRelayTimeout    = 5 * time.Minute
	DefaultPongWait        = 30 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
)

// Config is the process-wide configuration, loaded once at startup and
// injected into the services that need it.
type Config struct {
	Port            int           `yaml:"port"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	OpenAI    OpenAIConfig    `yaml:"openai"`
	Relay     RelayConfig     `yaml:"relay"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	ConfigFile string `yaml:"-"`
}

type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

type RelayConfig struct {
	// Timeout bounds the whole relay, from the upstream request to the last chunk.
	Timeout time.Duration `yaml:"timeout"`
	// PongWait is how long a WebSocket client may stay silent before the relay
	// gives up on it. Pings go out at nine tenths of it.
	PongWait time.Duration `yaml:"pong_wait"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Load builds the configuration from the optional YAML file named by
// CONFIG_FILE, then environment variables, then built-in defaults.
func Load() (*Config, error) {
	cfg := &Config{ConfigFile: GetEnvOrDefault("CONFIG_FILE", "")}

	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
		logger.Info(logger.CONFIG, "Loaded configuration file %s", cfg.ConfigFile)
	}

	cfg.ApplyEnv()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays values from a YAML file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto the current values.
func (c *Config) ApplyEnv() {
	c.Port = parseEnvInt("PORT", c.Port)
	c.LogLevel = GetEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = GetEnvOrDefault("LOG_FORMAT", c.LogFormat)
	if v := GetEnvOrDefault("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	c.ShutdownTimeout = parseEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.OpenAI.APIKey = GetEnvOrDefault("OPENAI_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = GetEnvOrDefault("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.Model = GetEnvOrDefault("OPENAI_MODEL", c.OpenAI.Model)
	c.OpenAI.Temperature = parseEnvFloat("OPENAI_TEMPERATURE", c.OpenAI.Temperature)

	c.Relay.Timeout = parseEnvDuration("RELAY_TIMEOUT", c.Relay.Timeout)
	c.Relay.PongWait = parseEnvDuration("WS_PONG_WAIT", c.Relay.PongWait)

	c.Redis.URL = GetEnvOrDefault("REDIS_URL", c.Redis.URL)
	c.Redis.Password = GetEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)

	c.RateLimit.Enabled = parseEnvBool("RATELIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.Global = parseEnvInt("RATELIMIT_GLOBAL", c.RateLimit.Global)
	c.RateLimit.Generate = parseEnvInt("RATELIMIT_GENERATE", c.RateLimit.Generate)
}

// SetDefaults fills every unset value with its built-in default.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = DefaultOpenAIBaseURL
	}
	c.OpenAI.BaseURL = strings.TrimRight(c.OpenAI.BaseURL, "/")
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = DefaultOpenAIModel
	}
	if c.OpenAI.Temperature == 0 {
		c.OpenAI.Temperature = DefaultTemperature
	}
	if c.Relay.Timeout == 0 {
		c.Relay.Timeout = DefaultRelayTimeout
	}
	if c.Relay.PongWait == 0 {
		c.Relay.PongWait = DefaultPongWait
	}
	if c.RateLimit.Global == 0 {
		c.RateLimit.Global = DefaultGlobalLimit
	}
	if c.RateLimit.Generate == 0 {
		c.RateLimit.Generate = DefaultGenerateLimit
	}
}

// Validate reports configuration that would stop the relay from working.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_KEY environment variable not set"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %v out of range [0, 2]", c.OpenAI.Temperature))
	}
	if c.Relay.Timeout < 0 {
		errs = append(errs, fmt.Errorf("invalid relay timeout %s", c.Relay.Timeout))
	}
	if c.Relay.PongWait < 0 {
		errs = append(errs, fmt.Errorf("invalid pong wait %s", c.Relay.PongWait))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the public HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
