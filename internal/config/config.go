// Package config defines the top-level configuration for the swapflow engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SWAPFLOW_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Queue    QueueConfig    `toml:"queue"`
	Venue    VenueConfig    `toml:"venue"`
	Notify   NotifyConfig   `toml:"notify"`
	Archive  ArchiveConfig  `toml:"archive"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds the HTTP/WebSocket API parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	CacheTTLSecs int  `toml:"cache_ttl_secs"`
}

// QueueConfig holds the execution queue parameters.
type QueueConfig struct {
	Workers         int `toml:"workers"`
	MaxAttempts     int `toml:"max_attempts"`
	BaseBackoffMs   int `toml:"base_backoff_ms"`
	MaxBackoffMs    int `toml:"max_backoff_ms"`
	RateLimitMax    int `toml:"rate_limit_max"`
	RateLimitWindowSecs int `toml:"rate_limit_window_secs"`
	CallTimeoutSecs int `toml:"call_timeout_secs"`
}

// VenueConfig holds liquidity-router parameters. Mode selects the simulated
// router or the live HTTP quote clients.
type VenueConfig struct {
	Mode               string  `toml:"mode"` // "simulated" or "live"
	RaydiumSuccessRate float64 `toml:"raydium_success_rate"`
	MeteoraSuccessRate float64 `toml:"meteora_success_rate"`
	ProcessingMs       int     `toml:"processing_ms"`
	Seed               int64   `toml:"seed"` // 0 means time-seeded
	RaydiumURL         string  `toml:"raydium_url"`
	MeteoraURL         string  `toml:"meteora_url"`
}

// NotifyConfig holds failure-alert parameters.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	DiscordWebhook string   `toml:"discord_webhook"`
	Events         []string `toml:"events"`
}

// ArchiveConfig holds the S3 order-history export parameters.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	IntervalMins   int    `toml:"interval_mins"`
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validVenueModes = map[string]bool{
	"simulated": true, "live": true,
}

// Defaults returns the built-in configuration defaults, mirroring the
// production deployment values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 3000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "swapflow",
			User:          "postgres",
			Password:      "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			CacheTTLSecs: 3600,
		},
		Queue: QueueConfig{
			Workers:             10,
			MaxAttempts:         3,
			BaseBackoffMs:       1000,
			MaxBackoffMs:        60000,
			RateLimitMax:        100,
			RateLimitWindowSecs: 60,
			CallTimeoutSecs:     30,
		},
		Venue: VenueConfig{
			Mode:               "simulated",
			RaydiumSuccessRate: 0.95,
			MeteoraSuccessRate: 0.95,
			ProcessingMs:       2000,
		},
		Archive: ArchiveConfig{
			Region:         "us-east-1",
			ForcePathStyle: true,
			IntervalMins:   15,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for inconsistencies and returns a single
// error aggregating every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Database == "") {
		errs = append(errs, "postgres: either dsn or host+database must be set")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.CacheTTLSecs <= 0 {
		errs = append(errs, "redis: cache_ttl_secs must be positive")
	}

	if c.Queue.Workers <= 0 {
		errs = append(errs, "queue: workers must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		errs = append(errs, "queue: max_attempts must be positive")
	}
	if c.Queue.BaseBackoffMs <= 0 {
		errs = append(errs, "queue: base_backoff_ms must be positive")
	}
	if c.Queue.MaxBackoffMs < c.Queue.BaseBackoffMs {
		errs = append(errs, "queue: max_backoff_ms must be >= base_backoff_ms")
	}
	if c.Queue.RateLimitMax <= 0 || c.Queue.RateLimitWindowSecs <= 0 {
		errs = append(errs, "queue: rate_limit_max and rate_limit_window_secs must be positive")
	}

	if !validVenueModes[strings.ToLower(c.Venue.Mode)] {
		errs = append(errs, fmt.Sprintf("venue: unknown mode %q (valid: simulated, live)", c.Venue.Mode))
	}
	if c.Venue.RaydiumSuccessRate < 0 || c.Venue.RaydiumSuccessRate > 1 {
		errs = append(errs, "venue: raydium_success_rate must be in [0,1]")
	}
	if c.Venue.MeteoraSuccessRate < 0 || c.Venue.MeteoraSuccessRate > 1 {
		errs = append(errs, "venue: meteora_success_rate must be in [0,1]")
	}
	if strings.ToLower(c.Venue.Mode) == "live" {
		if c.Venue.RaydiumURL == "" && c.Venue.MeteoraURL == "" {
			errs = append(errs, "venue: at least one venue URL is required in live mode")
		}
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket is required when enabled")
		}
		if c.Archive.IntervalMins <= 0 {
			errs = append(errs, "archive: interval_mins must be positive")
		}
	}

	tg := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tg != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
