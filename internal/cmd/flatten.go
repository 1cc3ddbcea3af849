package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Tidyfs/internal/core/flatten"
	"github.com/Ning0612/Tidyfs/internal/domain"
)

// NewFlattenCommand creates the flatten command
func NewFlattenCommand() *cobra.Command {
	o := &commonOptions{}

	cmd := newToolCommand(
		"flatten <source> [backup]",
		"Back a directory up, then move every nested file to its top level",
		`Copy the whole source tree into a backup directory (default: <source>Bak
next to the source, merged into it when it exists), then move every file
from the subdirectories to the source root and remove the emptied
directories.

A name already taken at the root becomes name_1.ext, name_2.ext, ...
If the backup fails nothing is moved.`,
		o,
	)
	cmd.Args = cobra.RangeArgs(1, 2)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		s, err := o.open(cmd, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		var backup string
		if len(args) > 1 {
			backup = args[1]
		}
		f, err := flatten.Open(args[0], flatten.Options{Backup: backup, Reporter: s.reporter})
		if err != nil {
			return err
		}

		var res flatten.Result
		op := func(ctx context.Context) (domain.Tally, error) {
			var err error
			res, err = f.Run(ctx)
			return res.Tally, err
		}
		details := func() any {
			return map[string]any{
				"backup_dir":   res.BackupDir,
				"backed_up":    res.BackedUp,
				"moved":        res.Moved,
				"removed_dirs": res.RemovedDirs,
			}
		}

		if _, err := s.run(cmd.Context(), "flatten", args[0], "moved", op, details); err != nil {
			return err
		}
		s.printer.Linef("Backup: %s (%d files)", res.BackupDir, res.BackedUp)
		s.printer.Linef("Removed %d empty directories.", len(res.RemovedDirs))
		return nil
	}

	return cmd
}
