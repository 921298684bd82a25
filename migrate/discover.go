package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

const migrationsDirName = "migrations"

// FindMigrationsDirectory looks for ./migrations in the working directory and
// then in each parent until the filesystem root.
func FindMigrationsDirectory() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return SearchForMigrationsDirectory(wd)
}

// SearchForMigrationsDirectory is FindMigrationsDirectory with an explicit
// starting point. The returned error names start, not the last directory
// inspected.
func SearchForMigrationsDirectory(start string) (string, error) {
	dir := start
	for {
		candidate := filepath.Join(dir, migrationsDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", &DirectoryNotFoundError{Path: start}
		}
		dir = parent
	}
}

// ResolveMigrationsRoot returns the canonical migrations directory. A
// non-empty explicit path is taken relative to base; otherwise the directory
// is searched for upward from base.
func ResolveMigrationsRoot(base, explicit string) (string, error) {
	var root string
	if explicit != "" {
		root = explicit
		if !filepath.IsAbs(root) {
			root = filepath.Join(base, explicit)
		}
	} else {
		found, err := SearchForMigrationsDirectory(base)
		if err != nil {
			return "", err
		}
		root = found
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", root, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", root, err)
	}
	return canonical, nil
}

// MigrationPaths lists the immediate children of root, skipping dot entries.
func MigrationPaths(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(root, e.Name()))
	}
	return paths, nil
}

// MigrationsInDirectory loads every migration under root. It stops at the
// first child that is not a valid migration directory. The result is not
// sorted; the runner orders migrations itself.
func MigrationsInDirectory(root string) ([]Migration, error) {
	paths, err := MigrationPaths(root)
	if err != nil {
		return nil, err
	}
	migrations := make([]Migration, 0, len(paths))
	for _, p := range paths {
		m, err := MigrationFromPath(p)
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}
	return migrations, nil
}

// MigrationFromPath builds a FileMigration from a single migration directory.
func MigrationFromPath(dir string) (Migration, error) {
	if !validMigrationDir(os.DirFS(dir), ".") {
		return nil, &FormatError{Path: dir}
	}
	version, err := VersionFromPath(dir)
	if err != nil {
		return nil, err
	}
	return &FileMigration{dir: dir, version: version}, nil
}

// EmbeddedFromFS loads migrations from an fs.FS, typically an embed.FS built
// with //go:embed. Directory rules match MigrationsInDirectory but only the up
// payload is kept, and the result is sorted by version.
func EmbeddedFromFS(fsys fs.FS, root string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}
	var migrations []Migration
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := path.Join(root, e.Name())
		if !validMigrationDir(fsys, dir) {
			return nil, &FormatError{Path: dir}
		}
		version, err := ParseVersion(e.Name())
		if err != nil {
			return nil, &FormatError{Path: dir}
		}
		up, err := fs.ReadFile(fsys, path.Join(dir, upFile))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path.Join(dir, upFile), err)
		}
		migrations = append(migrations, Embedded(version, string(up)))
	}
	SortByVersion(migrations)
	return migrations, nil
}

// validMigrationDir reports whether dir holds both up.sql and down.sql.
// Anything unreadable as a directory, plain files included, is invalid.
func validMigrationDir(fsys fs.FS, dir string) bool {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return false
	}
	var hasUp, hasDown bool
	for _, e := range entries {
		switch e.Name() {
		case upFile:
			hasUp = true
		case downFile:
			hasDown = true
		}
	}
	return hasUp && hasDown
}

// SortByVersion orders migrations ascending by version, lexically.
func SortByVersion(migrations []Migration) {
	sort.SliceStable(migrations, func(i, j int) bool {
		return migrations[i].Version() < migrations[j].Version()
	})
}
