package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Tidyfs/internal/core/renumber"
	"github.com/Ning0612/Tidyfs/internal/domain"
)

// NewRenumberCommand creates the renumber command
func NewRenumberCommand() *cobra.Command {
	o := &commonOptions{}

	cmd := newToolCommand(
		"renumber <root>",
		"Rename the files of every directory to <dirname>-<n>.<ext>",
		`For the root and every directory below it, rename the regular files,
sorted by name, to <dirname>-1.ext, <dirname>-2.ext, ...

A taken name falls back to <dirname>-<n>.ext(2); when that is taken too the
file is left alone and reported as failed.`,
		o,
	)
	cmd.Args = cobra.ExactArgs(1)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		s, err := o.open(cmd, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		r, err := renumber.Open(args[0], renumber.Options{Reporter: s.reporter})
		if err != nil {
			return err
		}

		var res renumber.Result
		op := func(ctx context.Context) (domain.Tally, error) {
			var err error
			res, err = r.Run(ctx)
			return res.Tally, err
		}
		details := func() any { return map[string]int{"dirs": res.Dirs} }

		if _, err := s.run(cmd.Context(), "renumber", args[0], "renamed", op, details); err != nil {
			return err
		}
		s.printer.Linef("Processed %d directories.", res.Dirs)
		return nil
	}

	return cmd
}
