package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"pgmigrate/config"
	"pgmigrate/internal/metrics"
	"pgmigrate/internal/webhook"
	"pgmigrate/migrate"
)

// stdout receives operator output: progress lines, status tables and
// generated files. Logs go to stderr through slog.
var stdout io.Writer = os.Stdout

// lockName seeds the advisory lock key shared by every pgmigrate process.
const lockName = "pgmigrate"

// dbFlags are accepted by every subcommand that talks to the database.
type dbFlags struct {
	config *string
	driver *string
	dsn    *string
	dir    *string

	// createDir makes a missing migrations directory instead of failing.
	createDir bool
}

func addDBFlags(fs *flag.FlagSet) dbFlags {
	return dbFlags{
		config: fs.String("config", "", "path to config file (default: ./"+config.DefaultPath+" if present)"),
		driver: fs.String("driver", "", `database driver: "pgx" or "sqlite" (overrides config)`),
		dsn:    fs.String("dsn", "", "database connection string (overrides config and DATABASE_URL)"),
		dir:    fs.String("dir", "", "migrations directory (default: search upward for ./migrations)"),
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

// session is the state shared by the database subcommands.
type session struct {
	cfg      *config.Config
	db       *sql.DB
	dialect  migrate.Dialect
	root     string
	notifier *webhook.Notifier
}

func openSession(ctx context.Context, f dbFlags) (*session, error) {
	cfg, err := loadConfig(*f.config)
	if err != nil {
		return nil, err
	}
	if *f.driver != "" {
		cfg.Database.Driver = *f.driver
	}
	if *f.dsn != "" {
		cfg.Database.DSN = *f.dsn
	}
	if *f.dir != "" {
		cfg.Migrations.Dir = *f.dir
	}
	configureLogging(cfg)

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	if f.createDir {
		if err := ensureMigrationsDir(wd, cfg.Migrations.Dir); err != nil {
			return nil, err
		}
	}
	root, err := migrate.ResolveMigrationsRoot(wd, cfg.Migrations.Dir)
	if err != nil {
		return nil, err
	}

	db, dialect, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, db: db, dialect: dialect, root: root}
	if cfg.Webhook.URL != "" {
		s.notifier = webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret, cfg.Webhook.Events)
	}
	slog.Debug("session opened", "driver", cfg.Database.Driver, "dir", root)
	return s, nil
}

// ensureMigrationsDir creates the configured directory, or ./migrations when
// none is configured and none is found upward.
func ensureMigrationsDir(wd, dir string) error {
	if dir == "" {
		if _, err := migrate.SearchForMigrationsDirectory(wd); err == nil {
			return nil
		}
		dir = "migrations"
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(wd, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating migrations directory: %w", err)
	}
	return nil
}

func configureLogging(cfg *config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, migrate.Dialect, error) {
	if cfg.Database.DSN == "" {
		return nil, 0, fmt.Errorf("no database configured; use -dsn, set DATABASE_URL or [database] dsn")
	}
	var dialect migrate.Dialect
	switch cfg.Database.Driver {
	case "pgx":
		dialect = migrate.DialectPostgres
	case "sqlite":
		dialect = migrate.DialectSQLite
	default:
		return nil, 0, fmt.Errorf("unsupported driver %q", cfg.Database.Driver)
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, 0, fmt.Errorf("opening database: %w", err)
	}
	if cfg.Database.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Database.ConnectTimeout)*time.Second)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, 0, fmt.Errorf("connecting to database: %w", err)
	}
	return db, dialect, nil
}

func (s *session) migrations() ([]migrate.Migration, error) {
	return migrate.MigrationsInDirectory(s.root)
}

func (s *session) runner() *migrate.Runner {
	opts := []migrate.Option{
		migrate.WithDialect(s.dialect),
		migrate.WithOutput(stdout),
		migrate.WithLogger(slog.Default()),
		migrate.WithObserver(metrics.Observer{}),
	}
	if s.notifier != nil {
		opts = append(opts, migrate.WithObserver(s.notifier))
	}
	if s.dialect == migrate.DialectPostgres && s.cfg.Database.Lock {
		opts = append(opts, migrate.WithLocker(migrate.NewPostgresLock(s.db, lockName)))
	}
	return migrate.NewRunner(s.db, opts...)
}

// Close flushes pending webhooks, writes the metrics textfile and closes the
// database.
func (s *session) Close() {
	s.notifier.Wait()
	if path := s.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			slog.Warn("writing metrics textfile", "path", path, "err", err)
		}
	}
	if err := s.db.Close(); err != nil {
		slog.Warn("closing database", "err", err)
	}
}
