// Package renumber renames the files of every directory in a tree to
// "<dirname>-<n><ext>".
package renumber

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/Tidyfs/internal/adapter"
	"github.com/Ning0612/Tidyfs/internal/adapter/local"
	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/logger"
	"github.com/Ning0612/Tidyfs/internal/progress"
)

// FallbackSuffix is appended to a target name that is already taken
const FallbackSuffix = "(2)"

// Options configures a Renumberer
type Options struct {
	Logger   logger.Logger
	Reporter progress.Reporter
}

// Result is the outcome of a renumber run.
// Tally.Renamed counts files that landed on the fallback name.
type Result struct {
	domain.Tally

	Dirs int
}

// Renumberer renumbers the files below one root
type Renumberer struct {
	fs   adapter.Adapter
	opts Options
}

// New creates a Renumberer over fs
func New(fs adapter.Adapter, opts Options) *Renumberer {
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.NullReporter{}
	}
	opts.Logger = opts.Logger.With("component", "renumber")

	return &Renumberer{fs: fs, opts: opts}
}

// Open validates root on the real filesystem and returns a Renumberer
func Open(root string, opts Options) (*Renumberer, error) {
	fs, err := local.OpenRoot(afero.NewOsFs(), root)
	if err != nil {
		return nil, err
	}
	return New(fs, opts), nil
}

// TargetName returns the numbered name for the n-th file (from 1) of dir
func TargetName(dir, name string, n int) string {
	_, ext := domain.SplitExt(name)
	return fmt.Sprintf("%s-%d%s", filepath.Base(dir), n, ext)
}

// Run renumbers the root and every directory below it
func (r *Renumberer) Run(ctx context.Context) (Result, error) {
	start := time.Now()

	dirs, err := r.fs.Dirs(ctx, "", nil)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := r.renumberDir(ctx, dir, &result); err != nil {
			r.opts.Logger.Warn("list directory failed", "dir", dir, "error", err)
			continue
		}
		result.Dirs++
	}
	result.Elapsed = time.Since(start)

	r.opts.Logger.Info("renumber finished",
		"root", r.fs.Root(),
		"dirs", result.Dirs,
		"renamed", result.Successes-result.Skipped,
		"failed", result.Failures,
	)
	return result, nil
}

func (r *Renumberer) renumberDir(ctx context.Context, dir string, result *Result) error {
	entries, err := r.fs.List(ctx, dir)
	if err != nil {
		return err
	}

	var files []domain.FileInfo
	for _, e := range entries {
		if e.IsFile() {
			files = append(files, e)
		}
	}
	r.opts.Logger.Debug("processing directory", "dir", dir, "files", len(files))

	for i, file := range files {
		result.Scanned++
		name := filepath.Base(file.Path)
		target := filepath.Join(dir, TargetName(dir, name, i+1))

		if target == file.Path {
			result.Skipped++
			r.record(result, file.Path, nil)
			continue
		}

		err := r.fs.RenameNoReplace(ctx, file.Path, target)
		if errors.Is(err, domain.ErrAlreadyExists) {
			r.opts.Logger.Warn("target exists, using fallback name", "target", target)
			target += FallbackSuffix
			err = r.fs.RenameNoReplace(ctx, file.Path, target)
			if err == nil {
				result.Renamed++
			}
		}

		if err != nil {
			kind := domain.ErrOSFailure
			if errors.Is(err, domain.ErrAlreadyExists) {
				kind = domain.ErrNameCollision
			}
			r.record(result, file.Path, domain.NewPerFileError(file.Path, kind, err))
			continue
		}

		r.opts.Logger.Debug("renamed", "from", name, "to", filepath.Base(target))
		r.record(result, file.Path, nil)
	}

	return nil
}

func (r *Renumberer) record(result *Result, path string, pfe *domain.PerFileError) {
	if pfe != nil {
		r.opts.Logger.Warn("rename failed", "path", path, "reason", pfe.Reason())
		result.RecordFailure(path, pfe.Reason())
		r.opts.Reporter.Step(path, false)
		return
	}
	result.RecordSuccess()
	r.opts.Reporter.Step(path, true)
}
