package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
)

// Revert is the entrypoint for `pgmigrate revert`.
func Revert(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revert", flag.ExitOnError)
	f := addDBFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pgmigrate revert [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Roll back the most recently applied migration.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	s, err := openSession(ctx, f)
	if err != nil {
		return err
	}
	defer s.Close()

	ms, err := s.migrations()
	if err != nil {
		return err
	}
	return s.runner().Revert(ctx, ms)
}

// Redo is the entrypoint for `pgmigrate redo`.
func Redo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("redo", flag.ExitOnError)
	f := addDBFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pgmigrate redo [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Roll back the most recently applied migration and apply it again.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	s, err := openSession(ctx, f)
	if err != nil {
		return err
	}
	defer s.Close()

	ms, err := s.migrations()
	if err != nil {
		return err
	}
	return s.runner().Redo(ctx, ms)
}
