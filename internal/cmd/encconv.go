package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Tidyfs/internal/core/transcode"
	"github.com/Ning0612/Tidyfs/internal/domain"
)

// NewEncConvCommand creates the encconv command
func NewEncConvCommand() *cobra.Command {
	o := &commonOptions{}
	var file, dir, output string

	cmd := newToolCommand(
		"encconv (-f FILE | -d DIR) <from> <to>",
		"Convert text files between character encodings",
		`Convert one file (-f) or every regular file directly inside a directory
(-d, not recursive) from one encoding to another. Encodings are WHATWG or
IANA names such as gbk, gb18030, big5, shift_jis, utf-8 or utf-16le.

Files are converted in place. With -f, --output writes the result to a new
file instead; it must not exist yet. Files with bytes that are invalid in
the source encoding, or characters the target cannot represent, are
reported as failed and left untouched.`,
		o,
	)
	cmd.Args = cobra.ExactArgs(2)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if output != "" && file == "" {
			return fmt.Errorf("%w: --output needs -f", domain.ErrInvalidArgument)
		}

		s, err := o.open(cmd, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		opts := transcode.Options{From: args[0], To: args[1], Reporter: s.reporter}
		if dir != "" {
			t, err := transcode.Open(dir, opts)
			if err != nil {
				return err
			}
			op := func(ctx context.Context) (domain.Tally, error) { return t.ConvertDir(ctx, "") }
			_, err = s.run(cmd.Context(), "encconv", dir, "converted", op, nil)
			return err
		}

		path, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
		}
		if output != "" {
			if output, err = filepath.Abs(output); err != nil {
				return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
			}
		}

		t, err := transcode.Open(filepath.Dir(path), opts)
		if err != nil {
			return err
		}
		op := func(ctx context.Context) (domain.Tally, error) {
			tally := domain.Tally{Scanned: 1}
			err := t.ConvertFile(ctx, path, output)
			switch {
			case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotFile):
				return domain.Tally{}, fmt.Errorf("%w: %s: %w", domain.ErrInvalidArgument, file, err)
			case err != nil:
				tally.RecordFailure(path, err.Error())
			default:
				tally.RecordSuccess()
			}
			return tally, nil
		}
		_, err = s.run(cmd.Context(), "encconv", filepath.Dir(path), "converted", op, nil)
		return err
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "file to convert")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory whose files are converted")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the converted file here instead of in place (-f only)")
	cmd.MarkFlagsMutuallyExclusive("file", "dir")
	cmd.MarkFlagsOneRequired("file", "dir")
	return cmd
}
