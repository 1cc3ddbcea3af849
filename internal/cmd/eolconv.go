package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Ning0612/Tidyfs/internal/core/eol"
)

// NewEOLConvCommand creates the eolconv command
func NewEOLConvCommand() *cobra.Command {
	o := &commonOptions{}
	var to string

	cmd := newToolCommand(
		"eolconv <dir> <ext>...",
		"Convert line endings of files with the given extensions",
		`Rewrite every file below dir whose name ends with one of the given
extensions so that all line endings are LF (default) or CRLF (--to crlf).

Existing CRLF is never doubled. Files already in the requested form are not
rewritten.`,
		o,
	)
	cmd.Args = cobra.MinimumNArgs(2)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		mode, err := eol.ParseMode(to)
		if err != nil {
			return err
		}

		s, err := o.open(cmd, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := eol.Open(args[0], eol.Options{
			Mode:       mode,
			Extensions: args[1:],
			Reporter:   s.reporter,
		})
		if err != nil {
			return err
		}

		_, err = s.run(cmd.Context(), "eolconv", args[0], "converted", c.Run, nil)
		return err
	}

	cmd.Flags().StringVar(&to, "to", string(eol.LF), "target line ending: lf or crlf")
	return cmd
}
