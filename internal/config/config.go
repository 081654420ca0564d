// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

// BackendConfig points at the ROPA service that owns the suggestion job queue.
type BackendConfig struct {
	BaseURL  string        `yaml:"base_url"`
	TenantID string        `yaml:"tenant_id"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
}

type SuggestionsConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollAttempts int           `yaml:"max_poll_attempts"` // default 150; negative disables the cutoff
	Workers         int           `yaml:"workers"`           // concurrent poll requests
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

type DeclinedStoreConfig struct {
	Driver string        `yaml:"driver"` // memory | redis | postgres
	TTL    time.Duration `yaml:"ttl"`    // redis only; 0 = never expire
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type APIConfig struct {
	Port             int           `yaml:"port"`
	APIKey           string        `yaml:"api_key"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	SuggestAllLimit  int           `yaml:"suggest_all_limit"` // per entity and window, redis only; 0 = unlimited
	SuggestAllWindow time.Duration `yaml:"suggest_all_window"`
	AllowedOrigins   []string      `yaml:"allowed_origins"` // stream origins besides the API's own host; "*" allows any
}

type Config struct {
	Log           LogConfig           `yaml:"log"`
	Backend       BackendConfig       `yaml:"backend"`
	Suggestions   SuggestionsConfig   `yaml:"suggestions"`
	DeclinedStore DeclinedStoreConfig `yaml:"declined_store"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	API           APIConfig           `yaml:"api"`

	Runtime RuntimeConfig `yaml:"-"`
}

const (
	DeclinedStoreMemory   = "memory"
	DeclinedStoreRedis    = "redis"
	DeclinedStorePostgres = "postgres"
)

func LoadConfig(configPath string, dev bool) (*Config, error) {
	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse applies defaults and validation to raw YAML.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Suggestions.PollInterval <= 0 {
		cfg.Suggestions.PollInterval = 2 * time.Second
	}
	switch {
	case cfg.Suggestions.MaxPollAttempts == 0:
		cfg.Suggestions.MaxPollAttempts = 150
	case cfg.Suggestions.MaxPollAttempts < 0:
		cfg.Suggestions.MaxPollAttempts = 0 // orchestrator: poll forever
	}
	if cfg.Suggestions.Workers <= 0 {
		cfg.Suggestions.Workers = 8
	}
	if cfg.Suggestions.RequestTimeout <= 0 {
		cfg.Suggestions.RequestTimeout = 15 * time.Second
	}
	cfg.DeclinedStore.Driver = strings.ToLower(strings.TrimSpace(cfg.DeclinedStore.Driver))
	if cfg.DeclinedStore.Driver == "" {
		cfg.DeclinedStore.Driver = DeclinedStoreMemory
	}
	if cfg.DeclinedStore.TTL < 0 {
		cfg.DeclinedStore.TTL = 0
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 4
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8085
	}
	if cfg.API.RequestTimeout <= 0 {
		cfg.API.RequestTimeout = time.Minute
	}
	if cfg.API.SuggestAllWindow <= 0 {
		cfg.API.SuggestAllWindow = time.Minute
	}

	// Minimal validation. Dev mode runs against the in-process fake backend.
	if !dev {
		if cfg.Backend.BaseURL == "" {
			return nil, errors.New("backend.base_url is required")
		}
		if cfg.Backend.TenantID == "" {
			return nil, errors.New("backend.tenant_id is required")
		}
	}
	switch cfg.DeclinedStore.Driver {
	case DeclinedStoreMemory:
	case DeclinedStoreRedis:
		if cfg.Redis.URL == "" {
			return nil, errors.New("redis.url is required for declined_store.driver=redis")
		}
	case DeclinedStorePostgres:
		if cfg.Database.URL == "" {
			return nil, errors.New("database.url is required for declined_store.driver=postgres")
		}
	default:
		return nil, fmt.Errorf("declined_store.driver %q is not supported", cfg.DeclinedStore.Driver)
	}

	return &cfg, nil
}
