// Package appledouble gathers macOS "._" sidecar files into one directory.
package appledouble

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
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

const (
	// FilePrefix marks AppleDouble files
	FilePrefix = "._"
	// DefaultTargetPrefix names the default collect directory
	DefaultTargetPrefix = "AppleDoubleFiles"
	// DirTimeLayout formats the collect dir time. Go only reads fractional
	// seconds after a dot; CollectDirName turns it into a dash.
	DirTimeLayout = "2006-01-02-15-04-05.000000"

	clashTag = "same"
)

// Options configures a Collector
type Options struct {
	// Target is an existing directory to collect into. Empty means a new
	// timestamped directory under the root.
	Target string

	// TargetPrefix names the timestamped directory
	TargetPrefix string

	Clock    func() time.Time
	Logger   logger.Logger
	Reporter progress.Reporter
}

// Result is the outcome of one collection
type Result struct {
	domain.Tally

	// CollectDir is where files went; empty when nothing was found
	CollectDir string
}

// Collector moves AppleDouble files out of a tree
type Collector struct {
	fs   adapter.Adapter
	opts Options
}

// IsAppleDouble reports whether a base name is an AppleDouble file
func IsAppleDouble(name string) bool {
	return strings.HasPrefix(name, FilePrefix)
}

// CollectDirName returns "<prefix>-YYYY-MM-DD-HH-MM-SS-ffffff" for t
func CollectDirName(prefix string, t time.Time) string {
	return prefix + "-" + strings.Replace(t.Format(DirTimeLayout), ".", "-", 1)
}

// New creates a Collector over fs. A non-empty Target must be an existing,
// accessible directory (domain.ErrInvalidArgument otherwise).
func New(ctx context.Context, fs adapter.Adapter, opts Options) (*Collector, error) {
	if opts.TargetPrefix == "" {
		opts.TargetPrefix = DefaultTargetPrefix
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.NullReporter{}
	}
	opts.Logger = opts.Logger.With("component", "appledouble")

	if opts.Target != "" {
		if !filepath.IsAbs(opts.Target) {
			opts.Target = filepath.Join(fs.Root(), opts.Target)
		}
		if err := fs.CheckAccess(ctx, opts.Target); err != nil {
			return nil, fmt.Errorf("%w: target %q: %w", domain.ErrInvalidArgument, opts.Target, err)
		}
	}

	return &Collector{fs: fs, opts: opts}, nil
}

// Open validates root on the real filesystem and returns a Collector
func Open(ctx context.Context, root string, opts Options) (*Collector, error) {
	fs, err := local.OpenRoot(afero.NewOsFs(), root)
	if err != nil {
		return nil, err
	}
	return New(ctx, fs, opts)
}

// Capture lists every AppleDouble file below the root, outside the target
func (c *Collector) Capture(ctx context.Context) ([]string, error) {
	var skip func(string) bool
	if c.opts.Target != "" {
		target := filepath.Clean(c.opts.Target)
		skip = func(dir string) bool { return dir == target }
	}

	files, err := c.fs.Walk(ctx, "", skip)
	if err != nil {
		return nil, err
	}

	var found []string
	for _, f := range files {
		if IsAppleDouble(filepath.Base(f.Path)) {
			found = append(found, f.Path)
		}
	}
	return found, nil
}

// Run captures and moves every AppleDouble file. A file whose name is taken
// in the collect dir is first renamed in place to "-<name>-same<N>".
func (c *Collector) Run(ctx context.Context) (Result, error) {
	start := time.Now()

	files, err := c.Capture(ctx)
	if err != nil {
		return Result{}, err
	}

	result := Result{Tally: domain.Tally{Scanned: len(files)}}
	if len(files) == 0 {
		return result, nil
	}

	collectDir := c.opts.Target
	if collectDir == "" {
		name := CollectDirName(c.opts.TargetPrefix, c.opts.Clock())
		collectDir = filepath.Join(c.fs.Root(), name)
	}
	if err := c.fs.Mkdir(ctx, collectDir); err != nil {
		return Result{}, fmt.Errorf("create collect dir: %w", err)
	}
	result.CollectDir = collectDir
	c.opts.Reporter.SetTotal(len(files), 0)

	clash := 1
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			result.RecordFailure(path, err.Error())
			c.opts.Reporter.Step(path, false)
			continue
		}

		renamed, err := c.move(ctx, path, collectDir, &clash)
		if err != nil {
			pfe := domain.NewPerFileError(path, kindOf(err), err)
			c.opts.Logger.Warn("move failed", "path", path, "reason", pfe.Reason())
			result.RecordFailure(path, pfe.Reason())
			c.opts.Reporter.Step(path, false)
			continue
		}
		if renamed {
			result.Renamed++
		}
		result.RecordSuccess()
		c.opts.Reporter.Step(path, true)
	}

	result.Elapsed = time.Since(start)
	c.opts.Logger.Info("collection finished",
		"root", c.fs.Root(),
		"collect_dir", collectDir,
		"moved", result.Successes,
		"renamed", result.Renamed,
		"failed", result.Failures,
	)
	return result, nil
}

func (c *Collector) move(ctx context.Context, path, collectDir string, clash *int) (bool, error) {
	name := filepath.Base(path)
	exists, err := c.fs.Exists(ctx, filepath.Join(collectDir, name))
	if err != nil {
		return false, err
	}

	renamed := false
	if exists {
		name = "-" + name + "-" + clashTag + strconv.Itoa(*clash)
		inPlace := filepath.Join(filepath.Dir(path), name)
		if err := c.fs.RenameNoReplace(ctx, path, inPlace); err != nil {
			return false, err
		}
		c.opts.Logger.Debug("renamed before move", "path", path, "name", name)
		*clash++
		path = inPlace
		renamed = true
	}

	if err := c.fs.Move(ctx, path, filepath.Join(collectDir, name)); err != nil {
		return renamed, err
	}
	return renamed, nil
}

func kindOf(err error) error {
	if errors.Is(err, domain.ErrAlreadyExists) {
		return domain.ErrNameCollision
	}
	return domain.ErrOSFailure
}
