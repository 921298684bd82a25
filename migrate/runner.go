package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// Observer is notified about every migration the runner finishes or fails.
// Callbacks run synchronously on the runner's goroutine.
type Observer interface {
	MigrationApplied(version string, took time.Duration)
	MigrationFailed(version string, err error)
	MigrationReverted(version string, took time.Duration)
}

type Option func(*Runner)

// WithOutput sets the sink for progress lines. Defaults to io.Discard.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithDialect selects the tracking table's bind syntax. Defaults to
// DialectPostgres.
func WithDialect(d Dialect) Option {
	return func(r *Runner) { r.dialect = d }
}

// WithLocker makes Run, Revert and Redo hold l for their whole duration.
func WithLocker(l Locker) Option {
	return func(r *Runner) { r.locker = l }
}

func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// Runner applies and reverts migrations, one transaction per migration.
type Runner struct {
	db        *sql.DB
	store     *Store
	dialect   Dialect
	out       io.Writer
	logger    *slog.Logger
	locker    Locker
	observers []Observer
}

func NewRunner(db *sql.DB, opts ...Option) *Runner {
	r := &Runner{
		db:     db,
		out:    io.Discard,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.store = NewStore(db, r.dialect)
	return r
}

// Store exposes the tracking table the runner writes to.
func (r *Runner) Store() *Store { return r.store }

// Run applies every migration whose version is not recorded yet, in
// ascending version order. Versions older than the latest applied one still
// run if they were never recorded.
//
// Each migration commits on its own. When one fails, Run returns its error
// right away: earlier migrations stay committed and later ones are not
// attempted.
func (r *Runner) Run(ctx context.Context, migrations []Migration) error {
	release, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := r.store.EnsureSchema(ctx); err != nil {
		return err
	}
	pending, err := r.pending(ctx, migrations)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		r.logger.Debug("no pending migrations", "known", len(migrations))
		return nil
	}

	start := time.Now()
	for _, m := range pending {
		if err := r.apply(ctx, m); err != nil {
			return err
		}
	}
	r.logger.Info("migrations applied", "count", len(pending), "duration", time.Since(start))
	return nil
}

// Revert rolls back the most recently applied migration, which must be among
// migrations.
func (r *Runner) Revert(ctx context.Context, migrations []Migration) error {
	release, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	m, err := r.latest(ctx, migrations)
	if err != nil {
		return err
	}
	return r.revert(ctx, m)
}

// Redo reverts the most recently applied migration and applies it again.
func (r *Runner) Redo(ctx context.Context, migrations []Migration) error {
	release, err := r.lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	m, err := r.latest(ctx, migrations)
	if err != nil {
		return err
	}
	if err := r.revert(ctx, m); err != nil {
		return err
	}
	return r.apply(ctx, m)
}

// Pending returns the migrations Run would apply, in the order it would
// apply them.
func (r *Runner) Pending(ctx context.Context, migrations []Migration) ([]Migration, error) {
	if err := r.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return r.pending(ctx, migrations)
}

// Status describes the tracking table relative to a set of migrations.
type Status struct {
	Applied []string
	Pending []Migration
	// Unknown lists recorded versions that match none of the migrations.
	Unknown []string
}

func (r *Runner) Status(ctx context.Context, migrations []Migration) (Status, error) {
	if err := r.store.EnsureSchema(ctx); err != nil {
		return Status{}, err
	}
	applied, err := r.store.ListApplied(ctx)
	if err != nil {
		return Status{}, err
	}
	known := make(map[string]struct{}, len(migrations))
	for _, m := range migrations {
		known[m.Version()] = struct{}{}
	}
	st := Status{Applied: applied}
	for _, v := range applied {
		if _, ok := known[v]; !ok {
			st.Unknown = append(st.Unknown, v)
		}
	}
	st.Pending, err = r.pending(ctx, migrations)
	if err != nil {
		return Status{}, err
	}
	return st, nil
}

func (r *Runner) pending(ctx context.Context, migrations []Migration) ([]Migration, error) {
	applied, err := r.store.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, m := range migrations {
		if _, ok := applied[m.Version()]; !ok {
			pending = append(pending, m)
		}
	}
	SortByVersion(pending)
	return pending, nil
}

func (r *Runner) latest(ctx context.Context, migrations []Migration) (Migration, error) {
	version, ok, err := r.store.LatestAppliedVersion(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoMigrationRun
	}
	for _, m := range migrations {
		if m.Version() == version {
			return m, nil
		}
	}
	return nil, &UnknownVersionError{Version: version}
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	version := m.Version()
	start := time.Now()

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migration %s: acquiring connection: %w", version, err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", version, err)
	}
	if version != BootstrapVersion {
		if err := r.printf("Running migration %s\n", Name(m)); err != nil {
			tx.Rollback()
			return err
		}
	}
	r.logger.Debug("applying migration", "version", version, "path", m.Path())

	if err := m.Up(ctx, tx); err != nil {
		tx.Rollback()
		r.failed(version, err)
		if werr := r.printf("Executing migration script %s\n", ScriptName(m, upFile)); werr != nil {
			r.logger.Warn("writing output", "err", werr)
		}
		return fmt.Errorf("migration %s: %w", version, err)
	}
	if err := r.store.RecordApplied(ctx, tx, version); err != nil {
		tx.Rollback()
		r.failed(version, err)
		return err
	}
	if err := tx.Commit(); err != nil {
		r.failed(version, err)
		return fmt.Errorf("migration %s: commit: %w", version, err)
	}

	took := time.Since(start)
	r.logger.Info("migration applied", "version", version, "duration", took)
	for _, o := range r.observers {
		o.MigrationApplied(version, took)
	}
	return nil
}

func (r *Runner) revert(ctx context.Context, m Migration) error {
	version := m.Version()
	start := time.Now()

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migration %s: acquiring connection: %w", version, err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", version, err)
	}
	if err := r.printf("Rolling back migration %s\n", Name(m)); err != nil {
		tx.Rollback()
		return err
	}

	if err := m.Down(ctx, tx); err != nil {
		tx.Rollback()
		r.failed(version, err)
		if werr := r.printf("Executing migration script %s\n", ScriptName(m, downFile)); werr != nil {
			r.logger.Warn("writing output", "err", werr)
		}
		return fmt.Errorf("migration %s: %w", version, err)
	}
	if err := r.store.RecordReverted(ctx, tx, version); err != nil {
		tx.Rollback()
		r.failed(version, err)
		return err
	}
	if err := tx.Commit(); err != nil {
		r.failed(version, err)
		return fmt.Errorf("migration %s: commit: %w", version, err)
	}

	took := time.Since(start)
	r.logger.Info("migration reverted", "version", version, "duration", took)
	for _, o := range r.observers {
		o.MigrationReverted(version, took)
	}
	return nil
}

func (r *Runner) failed(version string, err error) {
	r.logger.Error("migration failed", "version", version, "err", err)
	for _, o := range r.observers {
		o.MigrationFailed(version, err)
	}
}

func (r *Runner) printf(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.out, format, args...); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func (r *Runner) lock(ctx context.Context) (func(), error) {
	if r.locker == nil {
		return func() {}, nil
	}
	release, err := r.locker.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring migration lock: %w", err)
	}
	return release, nil
}

// Run applies all pending migrations without reporting progress.
func Run(ctx context.Context, db *sql.DB, migrations []Migration, opts ...Option) error {
	return NewRunner(db, opts...).Run(ctx, migrations)
}

// RunWithOutput is Run with one progress line per migration written to w,
// plus the failing script's path on error.
func RunWithOutput(ctx context.Context, db *sql.DB, migrations []Migration, w io.Writer, opts ...Option) error {
	return NewRunner(db, withSink(opts, w)...).Run(ctx, migrations)
}

// RevertLastMigration rolls back the most recently applied migration.
func RevertLastMigration(ctx context.Context, db *sql.DB, migrations []Migration, w io.Writer, opts ...Option) error {
	return NewRunner(db, withSink(opts, w)...).Revert(ctx, migrations)
}

// RunPendingMigrations finds the migrations directory from the working
// directory and applies what is pending, reporting progress on stdout.
func RunPendingMigrations(ctx context.Context, db *sql.DB, opts ...Option) error {
	dir, err := FindMigrationsDirectory()
	if err != nil {
		return err
	}
	return RunPendingMigrationsInDirectory(ctx, db, dir, os.Stdout, opts...)
}

func RunPendingMigrationsInDirectory(ctx context.Context, db *sql.DB, dir string, w io.Writer, opts ...Option) error {
	migrations, err := MigrationsInDirectory(dir)
	if err != nil {
		return err
	}
	return RunWithOutput(ctx, db, migrations, w, opts...)
}

// RevertLastMigrationInDirectory loads the migrations under dir and rolls
// back the most recently applied one.
func RevertLastMigrationInDirectory(ctx context.Context, db *sql.DB, dir string, w io.Writer, opts ...Option) error {
	migrations, err := MigrationsInDirectory(dir)
	if err != nil {
		return err
	}
	return RevertLastMigration(ctx, db, migrations, w, opts...)
}

func withSink(opts []Option, w io.Writer) []Option {
	return append(opts[:len(opts):len(opts)], WithOutput(w))
}
