package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// TrackingTable holds one row per applied migration version.
const TrackingTable = "__schema_migrations"

// Dialect selects the bind-parameter syntax of the tracking queries.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	default:
		return "postgres"
	}
}

func (d Dialect) placeholder() string {
	if d == DialectSQLite {
		return "?"
	}
	return "$1"
}

// Store reads and writes the tracking table. Writes go through the caller's
// transaction and never commit or roll back on their own.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// EnsureSchema creates the tracking table if it does not exist yet. It runs
// outside of any migration transaction and is safe to repeat.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+TrackingTable+` (
		version TEXT PRIMARY KEY NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating %s: %w", TrackingTable, err)
	}
	return nil
}

// AppliedVersions returns the set of every recorded version.
func (s *Store) AppliedVersions(ctx context.Context) (map[string]struct{}, error) {
	versions, err := s.ListApplied(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(versions))
	for _, v := range versions {
		set[v] = struct{}{}
	}
	return set, nil
}

// ListApplied returns every recorded version in ascending order.
func (s *Store) ListApplied(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM `+TrackingTable)
	if err != nil {
		return nil, fmt.Errorf("querying applied versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning applied version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating applied versions: %w", err)
	}
	sort.Strings(versions)
	return versions, nil
}

// LatestAppliedVersion returns the greatest recorded version. ok is false
// when the table is empty.
func (s *Store) LatestAppliedVersion(ctx context.Context) (version string, ok bool, err error) {
	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM `+TrackingTable).Scan(&latest); err != nil {
		return "", false, fmt.Errorf("querying latest version: %w", err)
	}
	return latest.String, latest.Valid, nil
}

// RecordApplied inserts version as part of tx. A second insert of the same
// version fails with the driver's unique-violation error.
func (s *Store) RecordApplied(ctx context.Context, tx Execer, version string) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+TrackingTable+` (version) VALUES (`+s.dialect.placeholder()+`)`, version); err != nil {
		return fmt.Errorf("recording migration %s: %w", version, err)
	}
	return nil
}

// RecordReverted deletes version as part of tx.
func (s *Store) RecordReverted(ctx context.Context, tx Execer, version string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+TrackingTable+` WHERE version = `+s.dialect.placeholder(), version); err != nil {
		return fmt.Errorf("removing migration %s: %w", version, err)
	}
	return nil
}
