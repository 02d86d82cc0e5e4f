package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SWAPFLOW_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SWAPFLOW_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Server.Port, "SWAPFLOW_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SWAPFLOW_SERVER_CORS_ORIGINS")

	setStr(&cfg.Postgres.DSN, "SWAPFLOW_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SWAPFLOW_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SWAPFLOW_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SWAPFLOW_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SWAPFLOW_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SWAPFLOW_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SWAPFLOW_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SWAPFLOW_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SWAPFLOW_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SWAPFLOW_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "SWAPFLOW_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SWAPFLOW_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SWAPFLOW_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SWAPFLOW_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SWAPFLOW_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SWAPFLOW_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CacheTTLSecs, "SWAPFLOW_REDIS_CACHE_TTL_SECS")

	setInt(&cfg.Queue.Workers, "SWAPFLOW_QUEUE_WORKERS")
	setInt(&cfg.Queue.MaxAttempts, "SWAPFLOW_QUEUE_MAX_ATTEMPTS")
	setInt(&cfg.Queue.BaseBackoffMs, "SWAPFLOW_QUEUE_BASE_BACKOFF_MS")
	setInt(&cfg.Queue.MaxBackoffMs, "SWAPFLOW_QUEUE_MAX_BACKOFF_MS")
	setInt(&cfg.Queue.RateLimitMax, "SWAPFLOW_QUEUE_RATE_LIMIT_MAX")
	setInt(&cfg.Queue.RateLimitWindowSecs, "SWAPFLOW_QUEUE_RATE_LIMIT_WINDOW_SECS")
	setInt(&cfg.Queue.CallTimeoutSecs, "SWAPFLOW_QUEUE_CALL_TIMEOUT_SECS")

	setStr(&cfg.Venue.Mode, "SWAPFLOW_VENUE_MODE")
	setFloat64(&cfg.Venue.RaydiumSuccessRate, "SWAPFLOW_VENUE_RAYDIUM_SUCCESS_RATE")
	setFloat64(&cfg.Venue.MeteoraSuccessRate, "SWAPFLOW_VENUE_METEORA_SUCCESS_RATE")
	setInt(&cfg.Venue.ProcessingMs, "SWAPFLOW_VENUE_PROCESSING_MS")
	setInt64(&cfg.Venue.Seed, "SWAPFLOW_VENUE_SEED")
	setStr(&cfg.Venue.RaydiumURL, "SWAPFLOW_VENUE_RAYDIUM_URL")
	setStr(&cfg.Venue.MeteoraURL, "SWAPFLOW_VENUE_METEORA_URL")

	setStr(&cfg.Notify.TelegramToken, "SWAPFLOW_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SWAPFLOW_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhook, "SWAPFLOW_NOTIFY_DISCORD_WEBHOOK")
	setStringSlice(&cfg.Notify.Events, "SWAPFLOW_NOTIFY_EVENTS")

	setBool(&cfg.Archive.Enabled, "SWAPFLOW_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "SWAPFLOW_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "SWAPFLOW_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "SWAPFLOW_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "SWAPFLOW_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "SWAPFLOW_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.ForcePathStyle, "SWAPFLOW_ARCHIVE_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.IntervalMins, "SWAPFLOW_ARCHIVE_INTERVAL_MINS")

	setStr(&cfg.LogLevel, "SWAPFLOW_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
