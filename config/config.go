// Package config loads the engine configuration from YAML with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// HistoryConfig selects and tunes the chat history backend.
type HistoryConfig struct {
	// Backend is "memory" or "redis".
	Backend string        `yaml:"backend"`
	Redis   RedisConfig   `yaml:"redis"`
	TTL     time.Duration `yaml:"ttl"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Config is the full engine configuration.
type Config struct {
	// APIKey authenticates against the generation endpoint. The
	// GEMINI_API_KEY environment variable overrides the file value.
	APIKey string `yaml:"api_key"`

	Model string `yaml:"model"`

	// Voice, when set, overrides the agent's own voice for every
	// session.
	Voice string `yaml:"voice"`

	// FrameInterval is the camera sampling cadence.
	FrameInterval time.Duration `yaml:"frame_interval"`

	// HeartbeatInterval keeps the websocket alive. Zero disables it.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	History HistoryConfig `yaml:"history"`

	// MetricsAddr, when set, serves the Prometheus scrape endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Model:             "gemini-2.5-flash-native-audio-preview-09-2025",
		FrameInterval:     500 * time.Millisecond,
		HeartbeatInterval: 30 * time.Second,
		History: HistoryConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "avachat",
			},
		},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.APIKey = key
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.History.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	if c.FrameInterval < 0 {
		return fmt.Errorf("frame_interval must not be negative")
	}
	if c.History.Backend == "redis" && c.History.Redis.Addr == "" {
		return fmt.Errorf("history.redis.addr is required for the redis backend")
	}
	return nil
}
