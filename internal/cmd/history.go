package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newHistoryCommand lists recorded runs of tool
func newHistoryCommand(tool string, o *commonOptions) *cobra.Command {
	var (
		limit int
		all   bool
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: fmt.Sprintf("Show recorded %s runs", tool),
		Long: fmt.Sprintf(`Show the latest recorded %s runs, newest first.

With --run, list the failed files of one run instead.
--all includes the runs of every tidyfs tool.`, tool),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.open(cmd, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if runID != "" {
				failures, err := s.runner.Failures(runID)
				if err != nil {
					return err
				}
				return s.printer.Failures(runID, failures)
			}

			filter := tool
			if all {
				filter = ""
			}
			records, err := s.runner.History(filter, limit)
			if err != nil {
				return err
			}
			return s.printer.History(records)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().BoolVar(&all, "all", false, "include runs of every tool")
	cmd.Flags().StringVar(&runID, "run", "", "show the failed files of this run id")
	return cmd
}
