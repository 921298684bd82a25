package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"pgmigrate/migrate"
)

// Status is the entrypoint for `pgmigrate status`.
func Status(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	f := addDBFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pgmigrate status [flags]\n\n")
		fmt.Fprintf(os.Stderr, "List applied and pending migrations.\n\n")
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
	st, err := s.runner().Status(ctx, ms)
	if err != nil {
		return err
	}
	return printStatus(ms, st)
}

func printStatus(ms []migrate.Migration, st migrate.Status) error {
	names := make(map[string]string, len(ms))
	for _, m := range ms {
		names[m.Version()] = migrate.Name(m)
	}
	unknown := make(map[string]bool, len(st.Unknown))
	for _, v := range st.Unknown {
		unknown[v] = true
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tVERSION\tNAME")
	for _, v := range st.Applied {
		state, name := "applied", names[v]
		if unknown[v] {
			state, name = "missing", "(no migration directory)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", state, v, name)
	}
	for _, m := range st.Pending {
		fmt.Fprintf(tw, "pending\t%s\t%s\n", m.Version(), migrate.Name(m))
	}
	return tw.Flush()
}
