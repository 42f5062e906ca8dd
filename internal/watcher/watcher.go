// Package watcher subscribes to filesystem changes under the recording
// and optimization roots and schedules the matching reindex pipeline.
// Events are classified, debounced per class, and executed with one run
// of a class in flight at a time.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	xerrors "github.com/imudex/imudex/internal/errors"
	"github.com/imudex/imudex/internal/indexer"
	"github.com/imudex/imudex/internal/store"
)

// Options configures debounce and retry behavior.
type Options struct {
	// Debounce is the per-class quiet period before a reindex fires.
	Debounce time.Duration

	// Retry governs pipeline retries on storage-layer failures.
	Retry xerrors.RetryConfig
}

// DefaultOptions returns the production defaults: a two second debounce
// and five attempts with a fixed two second delay.
func DefaultOptions() Options {
	return Options{
		Debounce: 2 * time.Second,
		Retry:    xerrors.DefaultRetryConfig(),
	}
}

// Watcher wires fsnotify to the indexer pipelines.
type Watcher struct {
	ix    *indexer.Indexer
	store *store.Store
	roots []string
	opts  Options
	log   *slog.Logger

	debounce *debouncer
	pending  [numClasses]chan struct{}
	runMu    [numClasses]sync.Mutex
}

// New returns a watcher over the given roots. Typically two roots are
// watched: the recording data root and the optimization root.
func New(ix *indexer.Indexer, st *store.Store, roots []string, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	// A zero-value config means unset. A deliberate zero-retry policy
	// still carries its delay fields and is honored as configured.
	if opts.Retry == (xerrors.RetryConfig{}) {
		opts.Retry = DefaultOptions().Retry
	}
	w := &Watcher{
		ix:       ix,
		store:    st,
		roots:    roots,
		opts:     opts,
		log:      slog.Default().With("component", "watcher"),
		debounce: newDebouncer(opts.Debounce),
	}
	for i := range w.pending {
		w.pending[i] = make(chan struct{}, 1)
	}
	return w
}

// Run watches until the context is cancelled. It owns the fsnotify
// subscription, the debounce dispatch, and one worker goroutine per
// class.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()
	defer w.debounce.Stop()

	for _, root := range w.roots {
		if err := w.addRecursive(fsw, root); err != nil {
			w.log.Warn("root not watchable", "root", root, "error", err)
		}
	}

	var wg sync.WaitGroup
	for c := Class(0); c < numClasses; c++ {
		wg.Add(1)
		go func(c Class) {
			defer wg.Done()
			w.worker(ctx, c)
		}(c)
	}
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-w.debounce.Output():
			if !ok {
				return nil
			}
			w.schedule(c)
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("fsnotify error", "error", err)
		}
	}
}

// Trigger arms the debounce timer for a class, as if a matching
// filesystem event had arrived. Used for the initial index on startup.
func (w *Watcher) Trigger(c Class) {
	w.debounce.Add(c)
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&fsnotify.Chmod != 0 {
		return
	}

	// New directories join the watch so nested copies keep reporting.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fsw, event.Name); err != nil {
				w.log.Warn("watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	c, ok := Classify(event.Name)
	if !ok {
		return
	}
	w.log.Debug("change detected", "path", event.Name, "class", c.String(), "op", event.Op.String())
	w.debounce.Add(c)
}

// schedule queues one run for the class. A full pending slot means a run
// is already queued behind the current one; the queued run will see the
// new filesystem state, so the event is not lost.
func (w *Watcher) schedule(c Class) {
	select {
	case w.pending[c] <- struct{}{}:
	default:
	}
}

func (w *Watcher) worker(ctx context.Context, c Class) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.pending[c]:
			w.runClass(ctx, c)
		}
	}
}

// runClass executes one pipeline run with retries. The per-class mutex
// keeps at most one run of a class in flight even when runs are
// triggered externally via Trigger.
func (w *Watcher) runClass(ctx context.Context, c Class) {
	w.runMu[c].Lock()
	defer w.runMu[c].Unlock()

	switch c {
	case ClassManifest:
		w.runManifest(ctx)
	case ClassOptimization:
		w.runOptimization(ctx)
	}
}

// runManifest runs the manifest pipeline. When every retry fails it
// falls back to a destructive schema rebuild before giving up.
func (w *Watcher) runManifest(ctx context.Context) {
	err := xerrors.Retry(ctx, w.opts.Retry, func() error {
		_, err := w.ix.IndexManifests(ctx)
		return err
	})
	if err == nil || ctx.Err() != nil {
		return
	}

	w.log.Error("manifest reindex exhausted retries, rebuilding schema", "error", err)
	if err := w.store.DropAndRecreate(); err != nil {
		w.log.Error("schema rebuild failed", "error", err)
		return
	}
	if _, err := w.ix.IndexManifests(ctx); err != nil {
		w.log.Error("manifest reindex failed after schema rebuild", "error", err)
	}
}

// runOptimization runs the optimization pipeline. There is no fallback;
// the pipeline is incremental and a later run heals a failed one.
func (w *Watcher) runOptimization(ctx context.Context) {
	err := xerrors.Retry(ctx, w.opts.Retry, func() error {
		_, err := w.ix.IndexOptimization(ctx)
		return err
	})
	if err != nil && ctx.Err() == nil {
		w.log.Error("optimization reindex exhausted retries", "error", err)
	}
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			if p == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(p); err != nil {
				w.log.Warn("watch directory", "path", p, "error", err)
			}
		}
		return nil
	})
}
