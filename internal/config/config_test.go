package config

import (
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults() should validate cleanly: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero workers", func(c *Config) { c.Queue.Workers = 0 }, true},
		{"zero max attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }, true},
		{"max backoff below base", func(c *Config) { c.Queue.MaxBackoffMs = 1 }, true},
		{"bad venue mode", func(c *Config) { c.Venue.Mode = "paper" }, true},
		{"success rate above 1", func(c *Config) { c.Venue.RaydiumSuccessRate = 1.5 }, true},
		{"live without urls", func(c *Config) { c.Venue.Mode = "live" }, true},
		{"live with url", func(c *Config) {
			c.Venue.Mode = "live"
			c.Venue.RaydiumURL = "https://quote-api.example.com"
		}, false},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, true},
		{"archive enabled without bucket", func(c *Config) { c.Archive.Enabled = true }, true},
		{"telegram token without chat", func(c *Config) { c.Notify.TelegramToken = "t" }, true},
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }, true},
		{"zero cache ttl", func(c *Config) { c.Redis.CacheTTLSecs = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SWAPFLOW_QUEUE_WORKERS", "4")
	t.Setenv("SWAPFLOW_REDIS_ADDR", "redis:6380")
	t.Setenv("SWAPFLOW_VENUE_RAYDIUM_SUCCESS_RATE", "0.5")
	t.Setenv("SWAPFLOW_POSTGRES_RUN_MIGRATIONS", "false")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Queue.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Queue.Workers)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Venue.RaydiumSuccessRate != 0.5 {
		t.Errorf("success rate = %v", cfg.Venue.RaydiumSuccessRate)
	}
	if cfg.Postgres.RunMigrations {
		t.Error("run_migrations override not applied")
	}
}
