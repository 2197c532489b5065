// Package config loads lectio settings from config.yaml and LECTIO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	// Home is the directory holding config.yaml and the session database.
	Home  string      `mapstructure:"-"`
	API   APIConfig   `mapstructure:"api"`
	Poll  PollConfig  `mapstructure:"poll"`
	Store StoreConfig `mapstructure:"store"`
	Redis RedisConfig `mapstructure:"redis"`
	Log   LogConfig   `mapstructure:"log"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
	// RateLimit caps requests per second; 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit"`
	// UploadRateLimit caps upload bytes per second; 0 disables it.
	UploadRateLimit int `mapstructure:"upload_rate_limit"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Home returns $LECTIO_HOME, or ~/.lectio.
func Home() string {
	if h := os.Getenv("LECTIO_HOME"); h != "" {
		return h
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".lectio"
	}
	return filepath.Join(userHome, ".lectio")
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("api.base_url", "http://localhost:8000/api")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.retries", 0)
	v.SetDefault("api.rate_limit", 0)
	v.SetDefault("api.upload_rate_limit", 0)
	v.SetDefault("poll.interval", 3*time.Second)
	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.path", filepath.Join(home, "session.db"))
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "lectio:")
	v.SetDefault("log.level", "disabled")
}

// Load reads path if given, otherwise config.yaml in Home when it exists.
// Environment variables such as LECTIO_API_BASE_URL override both.
func Load(path string) (*Config, error) {
	home := Home()
	v := viper.New()
	setDefaults(v, home)

	v.SetEnvPrefix("LECTIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(home)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Home = home
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and the chosen store backend.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.API.Retries < 0 {
		return fmt.Errorf("api.retries cannot be negative")
	}
	if c.API.RateLimit < 0 || c.API.UploadRateLimit < 0 {
		return fmt.Errorf("rate limits cannot be negative")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q (want sqlite, memory or redis)", c.Store.Backend)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level %q: %w", c.Log.Level, err)
	}
	return nil
}
