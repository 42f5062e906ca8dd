package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imudex/imudex/internal/indexer"
	"github.com/imudex/imudex/internal/store"
)

func newIndexCmd() *cobra.Command {
	var manifestsOnly, optimizationOnly bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run both reindex pipelines once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if manifestsOnly && optimizationOnly {
				return fmt.Errorf("--manifests-only and --optimization-only are mutually exclusive")
			}
			return runIndex(cmd.Context(), cmd, manifestsOnly, optimizationOnly)
		},
	}

	cmd.Flags().BoolVar(&manifestsOnly, "manifests-only", false, "Only run the manifest pipeline")
	cmd.Flags().BoolVar(&optimizationOnly, "optimization-only", false, "Only run the optimization pipeline")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, manifestsOnly, optimizationOnly bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Paths.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ix := indexer.New(st, cfg.Paths.DataRoot, cfg.Paths.OptimizationRoot)

	if !optimizationOnly {
		stats, err := ix.IndexManifests(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "manifests: %d found, %d indexed, %d failed, %d deleted\n",
			stats.Found, stats.Indexed, stats.Failed, stats.Deleted)
	}
	if !manifestsOnly {
		stats, err := ix.IndexOptimization(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "optimization: %d parameters, %d results, %d visualizations, %d skipped\n",
			stats.Parameters, stats.Results, stats.Visualizations, stats.Skipped)
	}
	return nil
}
