package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"pgmigrate/internal/admin"
	"pgmigrate/internal/metrics"
	"pgmigrate/internal/watch"
)

// Run is the entrypoint for `pgmigrate run`.
func Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	f := addDBFlags(fs)
	watchMode := fs.Bool("watch", false, "keep running and apply new migrations as they appear")
	debounce := fs.Duration("debounce", 500*time.Millisecond, "quiet period before a change is applied in -watch mode")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pgmigrate run [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Apply every pending migration, one transaction each.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	s, err := openSession(ctx, f)
	if err != nil {
		return err
	}
	defer s.Close()

	runner := s.runner()
	apply := func(ctx context.Context) error {
		ms, err := s.migrations()
		if err != nil {
			return err
		}
		if err := runner.Run(ctx, ms); err != nil {
			return err
		}
		metrics.MarkRun(time.Now())
		return nil
	}

	if err := apply(ctx); err != nil {
		if !*watchMode {
			return err
		}
		slog.Error("applying migrations", "err", err)
	}
	if !*watchMode {
		return nil
	}

	if addr := s.cfg.Metrics.Addr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: s.observabilityMux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("metrics listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics listener", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck // best-effort on exit
		}()
	}

	w := watch.New(s.root, func(ctx context.Context) {
		if err := apply(ctx); err != nil {
			slog.Error("applying migrations", "err", err)
		}
	}, watch.WithDebounce(*debounce))
	if err := w.Start(ctx); err != nil {
		return err
	}
	slog.Info("watching for migrations", "dir", s.root)
	<-ctx.Done()
	return w.Stop()
}

func (s *session) observabilityMux() *http.ServeMux {
	runner := s.runner()
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /healthz", admin.NewHealthHandler(s.db, func(ctx context.Context) (int, error) {
		ms, err := s.migrations()
		if err != nil {
			return 0, err
		}
		pending, err := runner.Pending(ctx, ms)
		return len(pending), err
	}))
	return mux
}
