package migrate

import (
	"errors"
	"fmt"
)

var (
	ErrMigrationDirectoryNotFound = errors.New("migrations directory not found")
	ErrUnknownMigrationFormat     = errors.New("unknown migration format")
	ErrUnknownMigrationVersion    = errors.New("unknown migration version")
	ErrNoMigrationRun             = errors.New("no migrations have been run")
	ErrEmptyMigration             = errors.New("attempted to run an empty migration")
	ErrRevertUnsupported          = errors.New("embedded migrations cannot be reverted")
)

// DirectoryNotFoundError reports the path where the upward search for a
// migrations directory started.
type DirectoryNotFoundError struct {
	Path string
}

func (e *DirectoryNotFoundError) Error() string {
	return fmt.Sprintf("unable to find migrations directory in %q or any parent directories", e.Path)
}

func (e *DirectoryNotFoundError) Unwrap() error { return ErrMigrationDirectoryNotFound }

// FormatError reports a migration directory (or name) that does not follow
// the <version>_<name>/{up,down}.sql layout.
type FormatError struct {
	Path string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid migration directory %q: the name should be <timestamp>_<name_of_migration> and it should contain up.sql and down.sql", e.Path)
}

func (e *FormatError) Unwrap() error { return ErrUnknownMigrationFormat }

// UnknownVersionError reports a tracked version that has no matching
// migration among the discovered ones.
type UnknownVersionError struct {
	Version string
}

func (e *UnknownVersionError) Error() string {
	return fmt.Sprintf("unable to find migration version %s in the migrations directory", e.Version)
}

func (e *UnknownVersionError) Unwrap() error { return ErrUnknownMigrationVersion }
