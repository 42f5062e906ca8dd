package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imudex/imudex/internal/store"
)

// searchOptions holds the test search predicates.
type searchOptions struct {
	subject   string
	subjectID string
	sensorID  string
	scenario  string
	date      string
	project   string
	format    string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search indexed tests from the command line",
		Long: `Search runs a test search against the index. All supplied
predicates must match; text predicates match substrings.

Examples:
  imudex search --subject-id sub_001
  imudex search --scenario slc --date 2025-08 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearchCmd(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.subject, "subject", "", "Subject display name")
	cmd.Flags().StringVar(&opts.subjectID, "subject-id", "", "Normalized subject id (sub_NNN)")
	cmd.Flags().StringVar(&opts.sensorID, "sensor", "", "Sensor id")
	cmd.Flags().StringVar(&opts.scenario, "scenario", "", "Experiment scenario")
	cmd.Flags().StringVar(&opts.date, "date", "", "Experiment date")
	cmd.Flags().StringVar(&opts.project, "project", "", "Project name")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runSearchCmd(cmd *cobra.Command, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Paths.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	tests, err := st.SearchTests(store.TestSearch{
		Subject:   opts.subject,
		SubjectID: opts.subjectID,
		SensorID:  opts.sensorID,
		Scenario:  opts.scenario,
		Date:      opts.date,
		Project:   opts.project,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(tests)
	}

	if len(tests) == 0 {
		fmt.Fprintln(out, "no tests matched")
		return nil
	}
	for _, t := range tests {
		fmt.Fprintf(out, "%6d  %-24s %-10s %-8s %-12s %d sensors\n",
			t.ID, t.TestID, t.SubjectID, t.Scenario, t.Date, t.SensorCount)
	}
	fmt.Fprintf(out, "%d tests\n", len(tests))
	return nil
}
