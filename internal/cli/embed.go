package cli

import (
	"flag"
	"fmt"
	"os"

	"pgmigrate/internal/embedgen"
)

// Embed is the entrypoint for `pgmigrate embed`.
func Embed(args []string) error {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	dir := fs.String("dir", "", "migrations directory (default: search upward for ./migrations)")
	pkg := fs.String("pkg", "migrations", "package name of the generated file")
	varName := fs.String("var", "Migrations", "name of the generated slice")
	importPath := fs.String("import", "", "import path of the migrate package (default: pgmigrate/migrate)")
	out := fs.String("out", "", "output file (default: stdout)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pgmigrate embed [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Generate Go source that compiles every up.sql into the binary.\n")
		fmt.Fprintf(os.Stderr, "Embedded migrations can be applied but not reverted.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	src, err := embedgen.Generate(embedgen.Options{
		Dir:     *dir,
		Package: *pkg,
		Var:     *varName,
		Import:  *importPath,
	})
	if err != nil {
		return err
	}

	if *out == "" {
		_, err := stdout.Write(src)
		return err
	}
	if err := os.WriteFile(*out, src, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", *out, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", *out)
	return nil
}
