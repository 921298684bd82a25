// Package watch re-runs a callback whenever a migrations directory settles
// after a change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// MinDebounce is the shortest quiet period a Watcher accepts. Smaller values
// are raised to it.
const MinDebounce = 10 * time.Millisecond

type Option func(*Watcher)

// WithDebounce sets how long the directory must stay quiet before the
// callback fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// Watcher watches a migrations root and each migration directory in it.
// fsnotify is not recursive, so directories created later are added as they
// appear.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger
	onChange func(context.Context)

	fsWatcher *fsnotify.Watcher
	cancel    context.CancelFunc
	stopOnce  sync.Once
	wg        sync.WaitGroup

	pending time.Time
}

func New(root string, onChange func(context.Context), opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		debounce: 500 * time.Millisecond,
		logger:   slog.Default(),
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.debounce < MinDebounce {
		w.debounce = MinDebounce
	}
	return w
}

// Start registers the watches and begins delivering changes. onChange runs
// on the watcher's goroutine, so calls never overlap.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create fsnotify: %w", err)
	}
	if err := fsw.Add(w.root); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch: reading %s: %w", w.root, err)
	}
	for _, e := range entries {
		if e.IsDir() && !hidden(e.Name()) {
			if err := fsw.Add(filepath.Join(w.root, e.Name())); err != nil {
				_ = fsw.Close()
				return fmt.Errorf("watch %s: %w", e.Name(), err)
			}
		}
	}
	w.fsWatcher = fsw

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop terminates the watcher and waits for the background goroutine,
// including a callback in progress. It is safe to call Stop multiple times.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
		if w.fsWatcher != nil {
			err = w.fsWatcher.Close()
		}
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("migrations watcher error", "err", err)

		case <-ticker.C:
			if w.pending.IsZero() || time.Since(w.pending) < w.debounce {
				continue
			}
			w.pending = time.Time{}
			w.logger.Info("migrations changed", "dir", w.root)
			w.onChange(ctx)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if hidden(filepath.Base(event.Name)) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 && filepath.Dir(event.Name) == w.root {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsWatcher.Add(event.Name); err != nil {
				w.logger.Warn("watch: adding directory", "path", event.Name, "err", err)
			}
		}
	}
	w.logger.Debug("migrations watcher event", "op", event.Op.String(), "path", event.Name)
	w.pending = time.Now()
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
