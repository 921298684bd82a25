package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"pgmigrate/migrate"
)

// versionLayout matches the 14-digit versions that sort correctly as strings.
const versionLayout = "20060102150405"

var (
	migrationNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]*$`)

	now = time.Now
)

const upTemplate = "-- Your SQL goes here\n"

const downTemplate = "-- This file should undo anything in `up.sql`\n"

// New is the entrypoint for `pgmigrate new`.
func New(args []string) error {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (default: ./pgmigrate.toml if present)")
	dir := fs.String("dir", "", "migrations directory (default: search upward for ./migrations)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pgmigrate new [flags] <name> [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Create <timestamp>_<name>/up.sql and down.sql in the migrations directory.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("requires a <name> argument")
	}
	name := fs.Arg(0)
	// Flags may also follow the name.
	fs.Parse(fs.Args()[1:])
	if fs.NArg() > 0 {
		fs.Usage()
		return fmt.Errorf("unexpected arguments after %q: %q", name, fs.Args())
	}
	if !migrationNameRe.MatchString(name) {
		return fmt.Errorf("invalid migration name %q: use letters, digits and underscores", name)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *dir != "" {
		cfg.Migrations.Dir = *dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	root, err := migrate.ResolveMigrationsRoot(wd, cfg.Migrations.Dir)
	if err != nil {
		return err
	}

	target := filepath.Join(root, now().UTC().Format(versionLayout)+"_"+name)
	if err := os.Mkdir(target, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	for _, f := range []struct{ name, body string }{
		{"up.sql", upTemplate},
		{"down.sql", downTemplate},
	} {
		path := filepath.Join(target, f.name)
		if err := os.WriteFile(path, []byte(f.body), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Fprintf(stdout, "Creating %s\n", path)
	}
	return nil
}
