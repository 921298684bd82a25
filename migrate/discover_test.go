package migrate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func canonical(t *testing.T, p string) string {
	t.Helper()
	c, err := filepath.EvalSymlinks(p)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSearchForMigrationsDirectory_Parent(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "migrations"), 0o755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := SearchForMigrationsDirectory(nested)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(root, "migrations"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSearchForMigrationsDirectory_IgnoresFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "migrations"), 0o755); err != nil {
		t.Fatal(err)
	}
	child := filepath.Join(root, "child")
	if err := os.Mkdir(child, 0o755); err != nil {
		t.Fatal(err)
	}
	// A plain file named migrations must not stop the search.
	if err := os.WriteFile(filepath.Join(child, "migrations"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := SearchForMigrationsDirectory(child)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(root, "migrations"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFindMigrationsDirectory_NotFound(t *testing.T) {
	start := t.TempDir()
	t.Chdir(start)

	_, err := FindMigrationsDirectory()
	if !errors.Is(err, ErrMigrationDirectoryNotFound) {
		t.Skipf("a migrations directory exists above %s: %v", start, err)
	}
	var nf *DirectoryNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("want *DirectoryNotFoundError, got %T", err)
	}
	wd, _ := os.Getwd()
	if nf.Path != wd {
		t.Fatalf("error path = %q, want the starting directory %q", nf.Path, wd)
	}
}

func TestResolveMigrationsRoot_Explicit(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "db", "migrations"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveMigrationsRoot(base, "db/migrations")
	if err != nil {
		t.Fatal(err)
	}
	if want := canonical(t, filepath.Join(base, "db", "migrations")); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolveMigrationsRoot_Search(t *testing.T) {
	base := t.TempDir()
	if err := os.Mkdir(filepath.Join(base, "migrations"), 0o755); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(base, "pkg")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveMigrationsRoot(sub, "")
	if err != nil {
		t.Fatal(err)
	}
	if want := canonical(t, filepath.Join(base, "migrations")); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolveMigrationsRoot_ExplicitMissing(t *testing.T) {
	if _, err := ResolveMigrationsRoot(t.TempDir(), "nope"); err == nil {
		t.Fatal("expected error for missing explicit directory")
	}
}

func TestMigrationPaths_SkipsDotEntries(t *testing.T) {
	root := t.TempDir()
	writeMigration(t, root, "0001_a", "SELECT 1;", "SELECT 1;")
	if err := os.WriteFile(filepath.Join(root, ".gitkeep"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, ".hidden"), 0o755); err != nil {
		t.Fatal(err)
	}

	paths, err := MigrationPaths(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != filepath.Join(root, "0001_a") {
		t.Fatalf("paths = %q", paths)
	}
}

func TestMigrationsInDirectory(t *testing.T) {
	root := t.TempDir()
	writeMigration(t, root, "0002_b", "SELECT 2;", "SELECT 2;")
	writeMigration(t, root, "0001_a", "SELECT 1;", "SELECT 1;")

	ms, err := MigrationsInDirectory(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 {
		t.Fatalf("got %d migrations", len(ms))
	}
	seen := map[string]bool{}
	for _, m := range ms {
		seen[m.Version()] = true
		if _, ok := m.(*FileMigration); !ok {
			t.Errorf("%s: want *FileMigration, got %T", m.Version(), m)
		}
	}
	if !seen["0001"] || !seen["0002"] {
		t.Fatalf("versions = %v", seen)
	}
}

func TestMigrationsInDirectory_FailFast(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, root string) string
	}{
		{"plain file", func(t *testing.T, root string) string {
			p := filepath.Join(root, "README.md")
			if err := os.WriteFile(p, []byte("hi"), 0o644); err != nil {
				t.Fatal(err)
			}
			return p
		}},
		{"missing down.sql", func(t *testing.T, root string) string {
			dir := writeMigration(t, root, "0003_c", "SELECT 3;", "")
			if err := os.Remove(filepath.Join(dir, "down.sql")); err != nil {
				t.Fatal(err)
			}
			return dir
		}},
		{"missing up.sql", func(t *testing.T, root string) string {
			dir := writeMigration(t, root, "0003_c", "", "SELECT 3;")
			if err := os.Remove(filepath.Join(dir, "up.sql")); err != nil {
				t.Fatal(err)
			}
			return dir
		}},
		{"no separator", func(t *testing.T, root string) string {
			return writeMigration(t, root, "0003", "SELECT 3;", "SELECT 3;")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeMigration(t, root, "0001_a", "SELECT 1;", "SELECT 1;")
			bad := tt.setup(t, root)

			_, err := MigrationsInDirectory(root)
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("want *FormatError, got %v", err)
			}
			if fe.Path != bad {
				t.Fatalf("error path = %q, want %q", fe.Path, bad)
			}
			if !errors.Is(err, ErrUnknownMigrationFormat) {
				t.Fatal("error should match ErrUnknownMigrationFormat")
			}
		})
	}
}

func TestMigrationsInDirectory_MissingRoot(t *testing.T) {
	if _, err := MigrationsInDirectory(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmbeddedFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_b/up.sql":   {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"migrations/0002_b/down.sql": {Data: []byte("DROP TABLE b;")},
		"migrations/0001_a/up.sql":   {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"migrations/0001_a/down.sql": {Data: []byte("DROP TABLE a;")},
		"migrations/.keep":           {Data: nil},
	}

	ms, err := EmbeddedFromFS(fsys, "migrations")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 || ms[0].Version() != "0001" || ms[1].Version() != "0002" {
		t.Fatalf("unexpected migrations: %v", ms)
	}
	for _, m := range ms {
		if _, ok := m.(*EmbeddedMigration); !ok {
			t.Errorf("want *EmbeddedMigration, got %T", m)
		}
	}
	if got := ms[0].(*EmbeddedMigration).upSQL; got != "CREATE TABLE a (id INTEGER);" {
		t.Fatalf("up = %q", got)
	}
}

func TestEmbeddedFromFS_Invalid(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0001_a/up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := EmbeddedFromFS(fsys, "migrations")
	if !errors.Is(err, ErrUnknownMigrationFormat) {
		t.Fatalf("want ErrUnknownMigrationFormat, got %v", err)
	}
}

func TestSortByVersion(t *testing.T) {
	ms := []Migration{Embedded("0003", "x"), Embedded("0001", "x"), Embedded("0002", "x")}
	SortByVersion(ms)
	for i, want := range []string{"0001", "0002", "0003"} {
		if ms[i].Version() != want {
			t.Fatalf("position %d = %s, want %s", i, ms[i].Version(), want)
		}
	}
}
