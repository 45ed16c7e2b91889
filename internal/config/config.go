package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is loaded from a YAML file and then overridden by environment variables.
type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
	} `yaml:"server" envPrefix:"SERVER_"`
	Redis struct {
		Addr     string `yaml:"addr" env:"ADDR"`
		Password string `yaml:"password" env:"PASSWORD"`
		DB       int    `yaml:"db" env:"DB"`
		TTL      string `yaml:"ttl" env:"TTL"`
	} `yaml:"redis" envPrefix:"REDIS_"`
	Postgres struct {
		URL string `yaml:"url" env:"URL"`
	} `yaml:"postgres" envPrefix:"POSTGRES_"`
	Quiz struct {
		TTL string `yaml:"ttl" env:"TTL"`
	} `yaml:"quiz" envPrefix:"QUIZ_"`
	Session struct {
		StoreTimeout string `yaml:"storeTimeout" env:"STORE_TIMEOUT"`
	} `yaml:"session" envPrefix:"SESSION_"`
	Broadcast struct {
		// Transport is "memory" or "redis". Redis requires Redis.Addr.
		Transport       string `yaml:"transport" env:"TRANSPORT"`
		RetryMaxElapsed string `yaml:"retryMaxElapsed" env:"RETRY_MAX_ELAPSED"`
	} `yaml:"broadcast" envPrefix:"BROADCAST_"`
	Log struct {
		Level  string `yaml:"level" env:"LEVEL"`
		Format string `yaml:"format" env:"FORMAT"`
	} `yaml:"log" envPrefix:"LOG_"`
}

// Load reads YAML config from path and applies QUIZ_* environment overrides.
// A missing file is not an error; defaults and the environment still apply.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "QUIZ_"}); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Broadcast.Transport {
	case "", "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("broadcast transport redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown broadcast transport %q", c.Broadcast.Transport)
	}
	return nil
}

// UseRedisBroadcast reports whether events fan out through Redis pub/sub.
func (c Config) UseRedisBroadcast() bool {
	return c.Broadcast.Transport == "redis"
}

// LogLevel parses Log.Level, defaulting to info.
func (c Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
