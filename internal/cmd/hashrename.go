package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Ning0612/Tidyfs/internal/config"
	"github.com/Ning0612/Tidyfs/internal/core/hashname"
)

// NewHashRenameCommand creates the hashrename command
func NewHashRenameCommand() *cobra.Command {
	o := &commonOptions{}
	var (
		algorithm string
		workers   int
		retry     bool
	)

	cmd := newToolCommand(
		"hashrename <directory_path>",
		"Rename every file below a directory to a salted hash",
		`Rename every regular file below a directory to the hex digest of its
absolute path, the current time and a random salt, keeping the extension.

An existing file is never overwritten: a taken name leaves the file where it
is and reports it as failed. Files are independent, one failure never stops
the batch.

Exit code: 0 when the batch completed (even with failed files),
1 when the directory is invalid or the configuration is wrong`,
		o,
	)
	cmd.Args = cobra.ExactArgs(1)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		s, err := o.open(cmd, func(cfg *config.Config) {
			if cmd.Flags().Changed("algorithm") {
				cfg.HashRename.Algorithm = algorithm
			}
			if cmd.Flags().Changed("workers") {
				cfg.HashRename.Workers = workers
			}
			if cmd.Flags().Changed("retry-on-collision") {
				cfg.HashRename.RetryOnCollision = retry
			}
		})
		if err != nil {
			return err
		}
		defer s.Close()

		r, err := hashname.Open(args[0], hashname.Options{
			Algorithm:        s.cfg.Algorithm(),
			SaltBytes:        s.cfg.HashRename.SaltBytes,
			Workers:          s.cfg.HashRename.Workers,
			RetryOnCollision: s.cfg.HashRename.RetryOnCollision,
			Reporter:         s.reporter,
		})
		if err != nil {
			return err
		}

		_, err = s.run(cmd.Context(), "hashrename", r.Root(), "renamed", r.RunBatch, nil)
		return err
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", "", "hash algorithm: md5, sha1, sha256, sha512 (default from config, sha1)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of files renamed in parallel (default from config, 1)")
	cmd.Flags().BoolVar(&retry, "retry-on-collision", false, "retry a taken name once with a fresh salt")

	cmd.AddCommand(newHistoryCommand("hashrename", o))
	return cmd
}
