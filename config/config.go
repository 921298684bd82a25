package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultPath is read when no -config flag is given. Unlike an explicit
// path, it may be absent.
const DefaultPath = "pgmigrate.toml"

// WebhookEvents lists the event types a webhook can subscribe to.
var WebhookEvents = []string{"migration.applied", "migration.failed", "migration.reverted"}

type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Migrations MigrationsConfig `toml:"migrations"`
	Log        LogConfig        `toml:"log"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Webhook    WebhookConfig    `toml:"webhook"`
}

type DatabaseConfig struct {
	Driver         string `toml:"driver"`
	DSN            string `toml:"dsn"`
	Lock           bool   `toml:"lock"`
	ConnectTimeout int    `toml:"connect_timeout"`
}

type MigrationsConfig struct {
	Dir string `toml:"dir"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type MetricsConfig struct {
	Textfile string `toml:"textfile"`
	// Addr serves /metrics and /healthz while `run -watch` is active.
	Addr string `toml:"addr"`
}

type WebhookConfig struct {
	URL    string   `toml:"url"`
	Secret string   `toml:"secret"`
	Events []string `toml:"events"`
}

// Load reads path and applies env overrides and defaults. An empty path
// skips the file entirely.
func Load(path string) (*Config, error) {
	var cfg Config
	var md toml.MetaData
	var err error
	if path != "" {
		md, err = toml.DecodeFile(path, &cfg)
	} else {
		md, err = toml.Decode("", &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Warn about unknown keys (likely typos).
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slog.Warn("unknown keys in config file (check for typos)", "keys", strings.Join(keys, ", "))
	}

	// All fields follow TOML > env var > default precedence.
	strDefault(&cfg.Database.Driver, "PGMIGRATE_DRIVER", "pgx")
	strDefault(&cfg.Database.DSN, "DATABASE_URL", "")
	strDefault(&cfg.Migrations.Dir, "PGMIGRATE_DIR", "")
	strDefault(&cfg.Log.Level, "PGMIGRATE_LOG_LEVEL", "warn")
	strDefault(&cfg.Metrics.Textfile, "PGMIGRATE_METRICS_TEXTFILE", "")
	strDefault(&cfg.Metrics.Addr, "PGMIGRATE_METRICS_ADDR", "")
	strDefault(&cfg.Webhook.URL, "PGMIGRATE_WEBHOOK_URL", "")
	strDefault(&cfg.Webhook.Secret, "PGMIGRATE_WEBHOOK_SECRET", "")

	boolDefault(md, &cfg.Database.Lock, "PGMIGRATE_LOCK", true, "database", "lock")
	if err := intDefault(md, &cfg.Database.ConnectTimeout, "PGMIGRATE_CONNECT_TIMEOUT", 10, "database", "connect_timeout"); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault loads DefaultPath if it exists and falls back to env and
// defaults otherwise.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat(DefaultPath); err != nil {
		if os.IsNotExist(err) {
			return Load("")
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Load(DefaultPath)
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "pgx", "sqlite":
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", "pgx", "sqlite", c.Database.Driver)
	}
	if c.Database.ConnectTimeout < 0 {
		return fmt.Errorf("connect_timeout must be non-negative, got %d", c.Database.ConnectTimeout)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	if c.Webhook.URL != "" {
		u, err := url.Parse(c.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook.url must be an absolute http(s) URL, got %q", c.Webhook.URL)
		}
	}
	for _, e := range c.Webhook.Events {
		if !validEvent(e) {
			return fmt.Errorf("unknown webhook event %q", e)
		}
	}
	return nil
}

func validEvent(e string) bool {
	for _, known := range WebhookEvents {
		if e == known {
			return true
		}
	}
	return false
}

// SlogLevel maps Log.Level onto a slog level. Unknown values mean warn.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// strDefault fills *dst from envKey if *dst is empty (not set in TOML),
// then falls back to def.
func strDefault(dst *string, envKey, def string) {
	if *dst == "" {
		*dst = os.Getenv(envKey)
	}
	if *dst == "" {
		*dst = def
	}
}

// intDefault fills *dst from envKey if the TOML key was not defined,
// then falls back to def.
func intDefault(md toml.MetaData, dst *int, envKey string, def int, tomlPath ...string) error {
	if md.IsDefined(tomlPath...) {
		return nil
	}
	if v := os.Getenv(envKey); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envKey, err)
		}
		*dst = n
		return nil
	}
	*dst = def
	return nil
}

// boolDefault fills *dst from envKey if the TOML key was not defined,
// then falls back to def. Accepts "true" and "1" as truthy values.
func boolDefault(md toml.MetaData, dst *bool, envKey string, def bool, tomlPath ...string) {
	if md.IsDefined(tomlPath...) {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		*dst = v == "true" || v == "1"
		return
	}
	*dst = def
}
