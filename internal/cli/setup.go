package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
)

// Setup is the entrypoint for `pgmigrate setup`. It creates the migrations
// directory if needed and the tracking table in the database.
func Setup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	f := addDBFlags(fs)
	f.createDir = true
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pgmigrate setup [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Create the migrations directory and the tracking table.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	s, err := openSession(ctx, f)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.runner().Store().EnsureSchema(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Migrations directory: %s\n", s.root)
	return nil
}
