package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/imudex/imudex/internal/api"
	"github.com/imudex/imudex/internal/indexer"
	"github.com/imudex/imudex/internal/store"
	"github.com/imudex/imudex/internal/watcher"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing daemon and HTTP API",
		Long: `Serve opens the database, runs an initial index of both trees,
then watches for filesystem changes and serves the search API until
interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// One process per database. The lock file lives next to the db so a
	// second serve on the same config fails fast instead of contending.
	lock := flock.New(cfg.Paths.Database + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire database lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("database %s is locked by another imudex process", cfg.Paths.Database)
	}
	defer lock.Unlock()

	st, err := store.Open(cfg.Paths.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ix := indexer.New(st, cfg.Paths.DataRoot, cfg.Paths.OptimizationRoot)
	w := watcher.New(ix, st, []string{cfg.Paths.DataRoot, cfg.Paths.OptimizationRoot}, watcher.Options{
		Debounce: cfg.Watcher.Debounce,
		Retry:    cfg.RetryConfig(),
	})

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.New(st, cfg.Paths.OptimizationRoot, cfg.Server.APIKey).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := w.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		slog.Info("api listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Queue the initial index of both trees through the same debounced
	// path filesystem events take.
	w.Trigger(watcher.ClassManifest)
	w.Trigger(watcher.ClassOptimization)

	slog.Info("imudex serving",
		"data_root", cfg.Paths.DataRoot,
		"optimization_root", cfg.Paths.OptimizationRoot,
		"database", cfg.Paths.Database)
	return g.Wait()
}
