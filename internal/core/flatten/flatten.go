// Package flatten backs a directory up and then pulls every nested file up
// to its top level.
package flatten

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/Tidyfs/internal/adapter"
	"github.com/Ning0612/Tidyfs/internal/adapter/local"
	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/logger"
	"github.com/Ning0612/Tidyfs/internal/progress"
)

// BackupSuffix is appended to the source name for the default backup dir
const BackupSuffix = "Bak"

// Options configures a Flattener
type Options struct {
	// Backup is the backup directory; empty means "<source>Bak" beside the source
	Backup string

	Logger   logger.Logger
	Reporter progress.Reporter
}

// Moved records one file pulled up to the root
type Moved struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// Result is the outcome of a flatten run
type Result struct {
	domain.Tally

	BackupDir   string
	BackedUp    int
	Moved       []Moved
	RemovedDirs []string
}

// Flattener backs up and flattens one directory
type Flattener struct {
	fs   adapter.Adapter
	opts Options
}

// DefaultBackupDir returns "<source>Bak" next to source
func DefaultBackupDir(source string) string {
	source = filepath.Clean(source)
	return filepath.Join(filepath.Dir(source), filepath.Base(source)+BackupSuffix)
}

// New creates a Flattener over fs
func New(fs adapter.Adapter, opts Options) (*Flattener, error) {
	if opts.Backup == "" {
		opts.Backup = DefaultBackupDir(fs.Root())
	}
	if !filepath.IsAbs(opts.Backup) {
		abs, err := filepath.Abs(opts.Backup)
		if err != nil {
			return nil, fmt.Errorf("%w: backup %q: %w", domain.ErrInvalidArgument, opts.Backup, err)
		}
		opts.Backup = abs
	}
	opts.Backup = filepath.Clean(opts.Backup)
	if isWithin(opts.Backup, fs.Root()) {
		return nil, fmt.Errorf("%w: backup %s is inside the source", domain.ErrInvalidArgument, opts.Backup)
	}

	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.NullReporter{}
	}
	opts.Logger = opts.Logger.With("component", "flatten")

	return &Flattener{fs: fs, opts: opts}, nil
}

// Open validates source on the real filesystem and returns a Flattener
func Open(source string, opts Options) (*Flattener, error) {
	fs, err := local.OpenRoot(afero.NewOsFs(), source)
	if err != nil {
		return nil, err
	}
	return New(fs, opts)
}

// Run backs up the source, then flattens it. A failed backup returns an
// error and leaves the source untouched.
func (f *Flattener) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{BackupDir: f.opts.Backup}

	n, err := f.Backup(ctx)
	if err != nil {
		return result, fmt.Errorf("backup to %s failed: %w", f.opts.Backup, err)
	}
	result.BackedUp = n
	f.opts.Logger.Info("backup complete", "backup", f.opts.Backup, "files", n)

	if err := f.flatten(ctx, &result); err != nil {
		return result, err
	}

	result.RemovedDirs = f.removeEmptyDirs(ctx)
	result.Elapsed = time.Since(start)

	f.opts.Logger.Info("flatten finished",
		"source", f.fs.Root(),
		"moved", result.Successes,
		"failed", result.Failures,
		"removed_dirs", len(result.RemovedDirs),
	)
	return result, nil
}

// Backup copies the whole source tree into the backup dir, merging into it
// if it exists. Empty directories are recreated.
func (f *Flattener) Backup(ctx context.Context) (int, error) {
	root := f.fs.Root()

	dirs, err := f.fs.Dirs(ctx, "", nil)
	if err != nil {
		return 0, err
	}
	for _, dir := range dirs {
		if err := f.fs.Mkdir(ctx, f.backupPath(root, dir)); err != nil {
			return 0, err
		}
	}

	files, err := f.fs.Walk(ctx, "", nil)
	if err != nil {
		return 0, err
	}

	f.opts.Reporter.SetTotal(len(files), totalSize(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := f.fs.Copy(ctx, file.Path, f.backupPath(root, file.Path), f.opts.Reporter); err != nil {
			return 0, fmt.Errorf("copy %s: %w", file.Path, err)
		}
	}

	return len(files), nil
}

func (f *Flattener) backupPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return f.opts.Backup
	}
	return filepath.Join(f.opts.Backup, rel)
}

func (f *Flattener) flatten(ctx context.Context, result *Result) error {
	root := f.fs.Root()

	files, err := f.fs.Walk(ctx, "", nil)
	if err != nil {
		return err
	}

	for _, file := range files {
		if filepath.Dir(file.Path) == root {
			continue
		}
		result.Scanned++

		if err := ctx.Err(); err != nil {
			result.RecordFailure(file.Path, err.Error())
			continue
		}

		target, err := f.pullUp(ctx, file.Path)
		if err != nil {
			pfe := domain.NewPerFileError(file.Path, domain.ErrOSFailure, err)
			f.opts.Logger.Warn("move failed", "path", file.Path, "reason", pfe.Reason())
			result.RecordFailure(file.Path, pfe.Reason())
			continue
		}

		if filepath.Base(target) != filepath.Base(file.Path) {
			result.Renamed++
		}
		result.RecordSuccess()
		result.Moved = append(result.Moved, Moved{From: file.Path, To: target})
		f.opts.Logger.Debug("moved", "from", file.Path, "to", target)
	}

	return nil
}

// pullUp moves path to the root under the first free name of
// name, name_1.ext, name_2.ext, ...
func (f *Flattener) pullUp(ctx context.Context, path string) (string, error) {
	root := f.fs.Root()
	base := filepath.Base(path)
	stem, ext := domain.SplitExt(base)

	for n := 0; ; n++ {
		name := base
		if n > 0 {
			name = stem + "_" + strconv.Itoa(n) + ext
		}
		target := filepath.Join(root, name)

		exists, err := f.fs.Exists(ctx, target)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}

		err = f.fs.Move(ctx, path, target)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return "", err
		}
		// taken between the check and the move: try the next name
	}
}

// removeEmptyDirs removes empty subdirectories, deepest first
func (f *Flattener) removeEmptyDirs(ctx context.Context) []string {
	dirs, err := f.fs.Dirs(ctx, "", nil)
	if err != nil {
		f.opts.Logger.Warn("list directories failed", "error", err)
		return nil
	}

	sort.SliceStable(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})

	var removed []string
	for _, dir := range dirs {
		if dir == f.fs.Root() {
			continue
		}
		entries, err := f.fs.List(ctx, dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := f.fs.Remove(ctx, dir); err != nil {
			f.opts.Logger.Warn("remove directory failed", "dir", dir, "error", err)
			continue
		}
		removed = append(removed, dir)
		f.opts.Logger.Debug("removed empty directory", "dir", dir)
	}

	sort.Strings(removed)
	return removed
}

func totalSize(files []domain.FileInfo) int64 {
	var n int64
	for _, f := range files {
		n += f.Size
	}
	return n
}

func isWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
