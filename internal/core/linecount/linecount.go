// Package linecount counts text lines per file and per directory.
package linecount

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/Tidyfs/internal/adapter"
	"github.com/Ning0612/Tidyfs/internal/adapter/local"
	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/logger"
)

// DefaultExcludeDirs are skipped unless the caller overrides them
var DefaultExcludeDirs = []string{"venv", ".git"}

// Options configures a Counter
type Options struct {
	// ExcludeDirs are directories relative to the root that are not descended into
	ExcludeDirs []string
	// ExcludeExts are name suffixes of files that are not counted
	ExcludeExts []string

	Logger logger.Logger
}

// FileCount is the line count of one file
type FileCount struct {
	Path  string `yaml:"path" json:"path"`
	Lines int    `yaml:"lines" json:"lines"`
}

// DirCount is the subtotal of the files directly inside one directory
type DirCount struct {
	Path  string `yaml:"path" json:"path"`
	Files int    `yaml:"files" json:"files"`
	Lines int    `yaml:"lines" json:"lines"`
}

// Result holds every count of a run. Paths are relative to the root.
type Result struct {
	domain.Tally

	Root       string      `yaml:"root" json:"root"`
	Files      []FileCount `yaml:"files" json:"files"`
	Dirs       []DirCount  `yaml:"dirs" json:"dirs"`
	TotalLines int         `yaml:"total_lines" json:"total_lines"`
}

// Counter counts lines below one root
type Counter struct {
	fs       adapter.Adapter
	opts     Options
	excluded map[string]bool
}

// New creates a Counter over fs
func New(fs adapter.Adapter, opts Options) *Counter {
	if opts.ExcludeDirs == nil {
		opts.ExcludeDirs = DefaultExcludeDirs
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	opts.Logger = opts.Logger.With("component", "linecount")

	excluded := make(map[string]bool, len(opts.ExcludeDirs))
	for _, d := range opts.ExcludeDirs {
		excluded[filepath.Join(fs.Root(), filepath.FromSlash(d))] = true
	}

	return &Counter{fs: fs, opts: opts, excluded: excluded}
}

// Open validates root on the real filesystem and returns a Counter
func Open(root string, opts Options) (*Counter, error) {
	fs, err := local.OpenRoot(afero.NewOsFs(), root)
	if err != nil {
		return nil, err
	}
	return New(fs, opts), nil
}

// Run counts every file below the root. An unreadable file counts as zero
// lines and is recorded as a failure.
func (c *Counter) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	root := c.fs.Root()

	files, err := c.fs.Walk(ctx, "", func(dir string) bool { return c.excluded[dir] })
	if err != nil {
		return Result{}, err
	}

	result := Result{Root: root}
	dirIndex := make(map[string]int)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if c.skipFile(file.Path) {
			continue
		}
		result.Scanned++

		lines, err := c.countFile(ctx, file.Path)
		if err != nil {
			c.opts.Logger.Warn("unable to read file", "path", file.Path, "error", err)
			result.RecordFailure(file.Path, err.Error())
		} else {
			result.RecordSuccess()
		}

		rel := relPath(root, file.Path)
		result.Files = append(result.Files, FileCount{Path: rel, Lines: lines})
		result.TotalLines += lines

		dir := filepath.Dir(rel)
		i, ok := dirIndex[dir]
		if !ok {
			i = len(result.Dirs)
			dirIndex[dir] = i
			result.Dirs = append(result.Dirs, DirCount{Path: dir})
		}
		result.Dirs[i].Files++
		result.Dirs[i].Lines += lines
	}

	result.Elapsed = time.Since(start)
	c.opts.Logger.Info("count finished",
		"root", root,
		"dirs", len(result.Dirs),
		"files", len(result.Files),
		"lines", result.TotalLines,
	)
	return result, nil
}

func (c *Counter) skipFile(path string) bool {
	name := filepath.Base(path)
	for _, ext := range c.opts.ExcludeExts {
		if ext != "" && strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func (c *Counter) countFile(ctx context.Context, path string) (int, error) {
	rc, err := c.fs.Read(ctx, path)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	n, err := CountLines(rc)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// CountLines counts newline characters, plus one for a final line without one
func CountLines(r io.Reader) (int, error) {
	buf := make([]byte, 32*1024)

	var (
		lines int
		last  byte
		empty = true
	)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			empty = false
			lines += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if !empty && last != '\n' {
		lines++
	}
	return lines, nil
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}
