package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Tidyfs/internal/core/appledouble"
	"github.com/Ning0612/Tidyfs/internal/domain"
)

// NewAdCollectCommand creates the adcollect command
func NewAdCollectCommand() *cobra.Command {
	o := &commonOptions{}
	var target string

	cmd := newToolCommand(
		"adcollect <directory_path>",
		"Collect macOS AppleDouble (._*) files into one directory",
		`Move every file whose name starts with "._" below a directory into
<directory>/AppleDoubleFiles-YYYY-MM-DD-HH-MM-SS-ffffff, or into an existing
directory given with --target.

A name already present in the collect directory is first renamed in place
to "-<name>-same<N>". Nothing is ever overwritten.`,
		o,
	)
	cmd.Args = cobra.ExactArgs(1)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		s, err := o.open(cmd, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		c, err := appledouble.Open(ctx, args[0], appledouble.Options{
			Target:       target,
			TargetPrefix: s.cfg.AppleDouble.TargetPrefix,
			Reporter:     s.reporter,
		})
		if err != nil {
			return err
		}

		var res appledouble.Result
		op := func(ctx context.Context) (domain.Tally, error) {
			var err error
			res, err = c.Run(ctx)
			return res.Tally, err
		}
		details := func() any {
			return map[string]string{"collect_dir": res.CollectDir}
		}

		if _, err := s.run(ctx, "adcollect", args[0], "moved", op, details); err != nil {
			return err
		}
		if res.CollectDir != "" {
			s.printer.Linef("Collected into: %s", res.CollectDir)
		}
		return nil
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "existing directory to collect into")
	return cmd
}
