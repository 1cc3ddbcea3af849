package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Tidyfs/internal/config"
	"github.com/Ning0612/Tidyfs/internal/core/linecount"
	"github.com/Ning0612/Tidyfs/internal/domain"
)

// NewLineCountCommand creates the linecount command
func NewLineCountCommand() *cobra.Command {
	o := &commonOptions{}
	var excludeDirs, excludeExts []string

	cmd := newToolCommand(
		"linecount [dir]",
		"Count lines per file and per directory",
		`Count the lines of every file below a directory (default: the current
directory) and print per-file counts, per-directory subtotals and a total.

Directories given with --exclude-dir are relative to the counted directory
(default: venv, .git). Files ending with an --exclude-ext suffix are skipped.`,
		o,
	)
	cmd.Args = cobra.MaximumNArgs(1)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		s, err := o.open(cmd, func(cfg *config.Config) {
			if cmd.Flags().Changed("exclude-dir") {
				cfg.LineCount.ExcludeDirs = excludeDirs
			}
			if cmd.Flags().Changed("exclude-ext") {
				cfg.LineCount.ExcludeExts = excludeExts
			}
		})
		if err != nil {
			return err
		}
		defer s.Close()

		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}

		c, err := linecount.Open(dir, linecount.Options{
			ExcludeDirs: s.cfg.LineCount.ExcludeDirs,
			ExcludeExts: s.cfg.LineCount.ExcludeExts,
		})
		if err != nil {
			return err
		}

		var res linecount.Result
		op := func(ctx context.Context) (domain.Tally, error) {
			var err error
			res, err = c.Run(ctx)
			return res.Tally, err
		}
		details := func() any {
			return map[string]any{"files": res.Files, "dirs": res.Dirs, "total_lines": res.TotalLines}
		}

		if _, err := s.run(cmd.Context(), "linecount", dir, "", op, details); err != nil {
			return err
		}
		return s.printer.LineCounts(res)
	}

	cmd.Flags().StringArrayVar(&excludeDirs, "exclude-dir", nil, "directory to skip, relative to dir (repeatable)")
	cmd.Flags().StringArrayVar(&excludeExts, "exclude-ext", nil, "file name suffix to skip (repeatable)")
	return cmd
}
