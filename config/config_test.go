package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgmigrate.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/pgmigrate.toml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_MalformedTOML(t *testing.T) {
	path := writeConfig(t, `[[[invalid toml`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for malformed TOML")
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[database]
driver = "sqlite"
dsn    = "file:app.db"
lock   = false

[migrations]
dir = "db/migrations"

[log]
level = "debug"

[metrics]
textfile = "/var/lib/node_exporter/pgmigrate.prom"
addr     = "127.0.0.1:9187"

[webhook]
url    = "https://hooks.example.com/migrations"
secret = "whsec_dGVzdA=="
events = ["migration.failed"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want %q", cfg.Database.Driver, "sqlite")
	}
	if cfg.Database.DSN != "file:app.db" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Database.Lock {
		t.Error("lock = true, want false (explicitly set)")
	}
	if cfg.Migrations.Dir != "db/migrations" {
		t.Errorf("dir = %q", cfg.Migrations.Dir)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", cfg.SlogLevel())
	}
	if cfg.Metrics.Textfile != "/var/lib/node_exporter/pgmigrate.prom" {
		t.Errorf("textfile = %q", cfg.Metrics.Textfile)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9187" {
		t.Errorf("addr = %q", cfg.Metrics.Addr)
	}
	if len(cfg.Webhook.Events) != 1 || cfg.Webhook.Events[0] != "migration.failed" {
		t.Errorf("events = %v", cfg.Webhook.Events)
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PGMIGRATE_DRIVER", "DATABASE_URL", "PGMIGRATE_DIR", "PGMIGRATE_LOG_LEVEL", "PGMIGRATE_LOCK", "PGMIGRATE_CONNECT_TIMEOUT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "pgx" {
		t.Errorf("driver = %q, want pgx", cfg.Database.Driver)
	}
	if !cfg.Database.Lock {
		t.Error("lock should default to true")
	}
	if cfg.Database.ConnectTimeout != 10 {
		t.Errorf("connect_timeout = %d, want 10", cfg.Database.ConnectTimeout)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Migrations.Dir != "" {
		t.Errorf("dir = %q, want empty (search upward)", cfg.Migrations.Dir)
	}
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/app")
	t.Setenv("PGMIGRATE_LOCK", "0")
	t.Setenv("PGMIGRATE_CONNECT_TIMEOUT", "3")
	t.Setenv("PGMIGRATE_LOG_LEVEL", "info")

	cfg, err := Load(writeConfig(t, `[database]
driver = "pgx"
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.DSN != "postgres://localhost/app" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Database.Lock {
		t.Error("lock = true, want false from env")
	}
	if cfg.Database.ConnectTimeout != 3 {
		t.Errorf("connect_timeout = %d, want 3", cfg.Database.ConnectTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
}

func TestLoad_TOMLBeatsEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/app")
	t.Setenv("PGMIGRATE_LOCK", "false")
	t.Setenv("PGMIGRATE_CONNECT_TIMEOUT", "3")

	cfg, err := Load(writeConfig(t, `
[database]
dsn             = "postgres://toml/app"
lock            = true
connect_timeout = 0
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.DSN != "postgres://toml/app" {
		t.Errorf("dsn = %q, want the TOML value", cfg.Database.DSN)
	}
	if !cfg.Database.Lock {
		t.Error("lock = false, want true from TOML")
	}
	if cfg.Database.ConnectTimeout != 0 {
		t.Errorf("connect_timeout = %d, want 0 (explicitly set)", cfg.Database.ConnectTimeout)
	}
}

func TestLoad_BadEnvInt(t *testing.T) {
	t.Setenv("PGMIGRATE_CONNECT_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric PGMIGRATE_CONNECT_TIMEOUT")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"driver":           "[database]\ndriver = \"mysql\"\n",
		"negative timeout": "[database]\nconnect_timeout = -1\n",
		"log level":        "[log]\nlevel = \"loud\"\n",
		"webhook url":      "[webhook]\nurl = \"ftp://example.com\"\n",
		"webhook event":    "[webhook]\nurl = \"https://example.com\"\nevents = [\"migration.exploded\"]\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadDefault_MissingFileIsFine(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PGMIGRATE_DRIVER", "sqlite")

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite from env", cfg.Database.Driver)
	}
}

func TestLoadDefault_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultPath), []byte("[migrations]\ndir = \"sql\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Migrations.Dir != "sql" {
		t.Errorf("dir = %q, want sql", cfg.Migrations.Dir)
	}
}
