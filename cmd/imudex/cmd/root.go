// Package cmd provides the CLI commands for imudex.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/imudex/imudex/internal/config"
	"github.com/imudex/imudex/internal/logging"
	"github.com/imudex/imudex/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the imudex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imudex",
		Short: "Index and search IMU experiment recordings",
		Long: `imudex indexes a tree of IMU experiment recordings and their
optimization artifacts into SQLite, keeps the index current while files
change, and serves a JSON search API over the result.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("imudex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to imudex.yaml (default: ./imudex.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level := cfg.Logging.Level
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.Setup(logging.Config{
		Level:    level,
		FilePath: cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}
