package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr  string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir    string     `env:"SPA_DIR" envDefault:"../web/dist"`
	PublicURL string     `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`

	// DBPath is the primary (remote) store. A plain path is opened as a local
	// libSQL file; libsql:// URLs go to a remote server. Empty runs local-only.
	DBPath      string `env:"DB_PATH" envDefault:"data/escaperoom.db"`
	DBAuthToken string `env:"DB_AUTH_TOKEN"`
	LocalDBPath string `env:"LOCAL_DB_PATH" envDefault:"data/local.db"`
	RedisURL    string `env:"REDIS_URL"`

	// PrimaryTimeout bounds each call to the primary store before the local
	// fallback takes over.
	PrimaryTimeout time.Duration `env:"PRIMARY_TIMEOUT" envDefault:"2s"`
	// ContentReloadInterval is how often custom content is re-read. Zero
	// turns reloading off.
	ContentReloadInterval time.Duration `env:"CONTENT_RELOAD_INTERVAL" envDefault:"15s"`

	TickInterval     time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	SyncEveryTicks   int           `env:"SYNC_EVERY_TICKS" envDefault:"5"`
	AutoAdvanceDelay time.Duration `env:"AUTO_ADVANCE_DELAY" envDefault:"1500ms"`
	MonitorInterval  time.Duration `env:"MONITOR_INTERVAL" envDefault:"2s"`

	LocaleDir string `env:"LOCALE_DIR" envDefault:"locales"`
	Language  string `env:"LANGUAGE" envDefault:"en"`

	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:"admin@playperu.com"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"changeme"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("TICK_INTERVAL must be positive, got %s", cfg.TickInterval)
	}
	if cfg.SyncEveryTicks <= 0 {
		cfg.SyncEveryTicks = 1
	}
	if cfg.PrimaryTimeout <= 0 {
		return nil, fmt.Errorf("PRIMARY_TIMEOUT must be positive, got %s", cfg.PrimaryTimeout)
	}
	if cfg.AutoAdvanceDelay < 0 {
		cfg.AutoAdvanceDelay = 0
	}
	return &cfg, nil
}
