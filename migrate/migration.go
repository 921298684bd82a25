package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

const (
	upFile   = "up.sql"
	downFile = "down.sql"
)

// Execer runs SQL inside the transaction handed to a migration. *sql.Tx
// satisfies it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Migration is a single schema change. Only FileMigration and
// EmbeddedMigration implement it.
//
// Up and Down run their SQL as one batch on the supplied transaction and must
// not commit, roll back or open connections of their own.
type Migration interface {
	Version() string
	Up(ctx context.Context, tx Execer) error
	Down(ctx context.Context, tx Execer) error
	// Path is the migration directory, or "" when there is none.
	Path() string

	migration()
}

// FileMigration reads its SQL from <dir>/up.sql and <dir>/down.sql each time
// it runs.
type FileMigration struct {
	dir     string
	version string
}

func (m *FileMigration) Version() string { return m.version }
func (m *FileMigration) Path() string    { return m.dir }
func (m *FileMigration) migration()      {}

func (m *FileMigration) Up(ctx context.Context, tx Execer) error {
	return execFile(ctx, tx, filepath.Join(m.dir, upFile))
}

func (m *FileMigration) Down(ctx context.Context, tx Execer) error {
	return execFile(ctx, tx, filepath.Join(m.dir, downFile))
}

func execFile(ctx context.Context, tx Execer, path string) error {
	sqlText, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return execBatch(ctx, tx, string(sqlText))
}

// EmbeddedMigration carries only the up payload. It is produced by generated
// manifests and by EmbeddedFromFS.
type EmbeddedMigration struct {
	version string
	upSQL   string
}

// Embedded returns a migration whose up SQL is compiled into the binary.
func Embedded(version, upSQL string) Migration {
	return &EmbeddedMigration{version: version, upSQL: upSQL}
}

func (m *EmbeddedMigration) Version() string { return m.version }
func (m *EmbeddedMigration) Path() string    { return "" }
func (m *EmbeddedMigration) migration()      {}

func (m *EmbeddedMigration) Up(ctx context.Context, tx Execer) error {
	return execBatch(ctx, tx, m.upSQL)
}

// Down always fails: embedded manifests do not ship down payloads.
func (m *EmbeddedMigration) Down(context.Context, Execer) error {
	return ErrRevertUnsupported
}

// execBatch runs sqlText as a single multi-statement exec. An empty payload is
// rejected before the transaction is touched; whitespace-only payloads still
// run, so a down.sql holding just a newline reverts as a no-op.
func execBatch(ctx context.Context, tx Execer, sqlText string) error {
	if sqlText == "" {
		return ErrEmptyMigration
	}
	_, err := tx.ExecContext(ctx, sqlText)
	return err
}

// Name is how a migration is announced on the output sink: the directory
// name when there is one, otherwise the version.
func Name(m Migration) string {
	if p := m.Path(); p != "" {
		return filepath.Base(p)
	}
	return m.Version()
}

// ScriptName points at the SQL file behind a failing migration.
func ScriptName(m Migration, file string) string {
	if p := m.Path(); p != "" {
		return filepath.Join(p, file)
	}
	return m.Version() + "/" + file
}
