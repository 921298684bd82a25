// Package embedgen snapshots a migrations directory into Go source so a
// binary can carry its migrations without reading the filesystem at run time.
package embedgen

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"pgmigrate/migrate"
)

const defaultImport = "pgmigrate/migrate"

// Options controls what Generate reads and what it emits.
type Options struct {
	// Dir is the migrations directory. When empty it is searched for upward
	// from Base.
	Dir string
	// Base anchors a relative Dir and the upward search. Defaults to the
	// working directory.
	Base string
	// Package is the package clause of the generated file.
	Package string
	// Var names the generated slice. Defaults to "Migrations".
	Var string
	// Import is the import path of the migrate package.
	Import string
}

type entry struct {
	Version string
	UpSQL   string
}

var tmpl = template.Must(template.New("manifest").Parse(`// Code generated by pgmigrate embed. DO NOT EDIT.

package {{.Package}}

import (
	"context"
	"database/sql"
	"io"

	"{{.Import}}"
)

// {{.Var}} holds the up scripts of every migration, sorted by version.
var {{.Var}} = []migrate.Migration{
{{- range .Migrations}}
	migrate.Embedded({{printf "%q" .Version}}, {{.UpSQL}}),
{{- end}}
}

// Run applies the pending migrations in {{.Var}}.
func Run(ctx context.Context, db *sql.DB, opts ...migrate.Option) error {
	return migrate.Run(ctx, db, {{.Var}}, opts...)
}

// RunWithOutput is Run with progress lines written to w.
func RunWithOutput(ctx context.Context, db *sql.DB, w io.Writer, opts ...migrate.Option) error {
	return migrate.RunWithOutput(ctx, db, {{.Var}}, w, opts...)
}
`))

// Generate reads every migration under the resolved directory and returns
// gofmt'ed Go source declaring them as embedded migrations.
func Generate(opts Options) ([]byte, error) {
	if opts.Package == "" {
		return nil, fmt.Errorf("package name is required")
	}
	if opts.Var == "" {
		opts.Var = "Migrations"
	}
	if !token.IsIdentifier(opts.Var) {
		return nil, fmt.Errorf("invalid variable name %q", opts.Var)
	}
	if opts.Import == "" {
		opts.Import = defaultImport
	}
	if opts.Base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		opts.Base = wd
	}

	root, err := migrate.ResolveMigrationsRoot(opts.Base, opts.Dir)
	if err != nil {
		return nil, err
	}
	entries, err := load(root)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct {
		Options
		Migrations []entry
	}{opts, entries})
	if err != nil {
		return nil, fmt.Errorf("rendering manifest: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("formatting manifest: %w", err)
	}
	return src, nil
}

func load(root string) ([]entry, error) {
	ms, err := migrate.MigrationsInDirectory(root)
	if err != nil {
		return nil, err
	}
	migrate.SortByVersion(ms)

	entries := make([]entry, 0, len(ms))
	for _, m := range ms {
		up, err := os.ReadFile(filepath.Join(m.Path(), "up.sql"))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", migrate.ScriptName(m, "up.sql"), err)
		}
		entries = append(entries, entry{Version: m.Version(), UpSQL: quote(string(up))})
	}
	return entries, nil
}

// quote prefers a raw string literal so the SQL stays readable in the
// generated file.
func quote(s string) string {
	if strings.ContainsAny(s, "`\r") {
		return strconv.Quote(s)
	}
	return "`" + s + "`"
}
