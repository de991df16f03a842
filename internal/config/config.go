package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	LogLevel      string        `mapstructure:"log_level"`
	NodeID        string        `mapstructure:"node_id"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	Secret        string        `mapstructure:"secret"`
	TokenCacheTTL time.Duration `mapstructure:"token_cache_ttl"`

	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Store     StoreConfig     `mapstructure:"store"`
	Portal    PortalConfig    `mapstructure:"portal"`
	Typing    TypingConfig    `mapstructure:"typing"`
}

type HeartbeatConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	PostgresURL string `mapstructure:"postgres_url"`
}

type PortalConfig struct {
	Queue       string `mapstructure:"queue"`
	StatusQueue string `mapstructure:"status_queue"`
	Concurrency int    `mapstructure:"concurrency"`
}

type TypingConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("node_id", "")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("secret", "")
	v.SetDefault("token_cache_ttl", "1m")
	v.SetDefault("heartbeat.timeout", "60s")
	v.SetDefault("heartbeat.reap_interval", "15s")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.postgres_url", "")
	v.SetDefault("portal.queue", "portals")
	v.SetDefault("portal.status_queue", "portal_status")
	v.SetDefault("portal.concurrency", 4)
	v.SetDefault("typing.limit", 5)
	v.SetDefault("typing.interval", "5s")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("secret is required")
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.PostgresURL == "" {
		return nil, fmt.Errorf("store.postgres_url is required for the postgres driver")
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("config ready")
	return &cfg, nil
}
