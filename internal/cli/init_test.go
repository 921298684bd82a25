package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pgmigrate/config"
)

func TestInit_WritesTemplate(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := Init(nil); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "pgmigrate.toml"))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	for _, key := range []string{"[database]", "driver", "dsn", "lock", "connect_timeout", "[migrations]", "[log]", "level", "[metrics]", "textfile", "addr", "[webhook]", "url", "secret", "events"} {
		if !strings.Contains(content, key) {
			t.Errorf("config template missing key %q", key)
		}
	}
}

func TestInit_TemplateLoads(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PGMIGRATE_DRIVER", "")
	t.Setenv("PGMIGRATE_LOCK", "")

	if err := Init(nil); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(filepath.Join(dir, "pgmigrate.toml"))
	if err != nil {
		t.Fatalf("template should load cleanly: %v", err)
	}
	if cfg.Database.Driver != "pgx" || !cfg.Database.Lock {
		t.Errorf("template should leave defaults in place, got %+v", cfg.Database)
	}
}

func TestInit_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	os.WriteFile("pgmigrate.toml", []byte("existing"), 0644)

	err := Init(nil)
	if err == nil {
		t.Fatal("expected error when file exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("error = %q, want 'already exists'", err)
	}

	// Verify original content was not changed.
	data, _ := os.ReadFile("pgmigrate.toml")
	if string(data) != "existing" {
		t.Error("existing file was modified")
	}
}
