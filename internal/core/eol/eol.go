// Package eol rewrites the line endings of text files.
package eol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/Tidyfs/internal/adapter"
	"github.com/Ning0612/Tidyfs/internal/adapter/local"
	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/logger"
	"github.com/Ning0612/Tidyfs/internal/progress"
)

// Mode is the line ending files are converted to
type Mode string

const (
	LF   Mode = "lf"
	CRLF Mode = "crlf"
)

// ParseMode parses "lf" or "crlf", case-insensitively
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case LF, CRLF:
		return m, nil
	}
	return "", fmt.Errorf("%w: line ending %q (want lf or crlf)", domain.ErrInvalidArgument, s)
}

var (
	crlf = []byte("\r\n")
	lf   = []byte("\n")
)

// Convert returns content with every line ending in mode. CRLF input is
// normalized first so existing CRLF is never doubled.
func Convert(content []byte, mode Mode) []byte {
	out := bytes.ReplaceAll(content, crlf, lf)
	if mode == CRLF {
		out = bytes.ReplaceAll(out, lf, crlf)
	}
	return out
}

// Options configures a Converter
type Options struct {
	Mode       Mode
	Extensions []string

	Logger   logger.Logger
	Reporter progress.Reporter
}

// Converter rewrites matching files below one root
type Converter struct {
	fs   adapter.Adapter
	opts Options
}

// New creates a Converter. Mode defaults to LF; at least one extension is required.
func New(fs adapter.Adapter, opts Options) (*Converter, error) {
	if opts.Mode == "" {
		opts.Mode = LF
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}

	var exts []string
	for _, ext := range opts.Extensions {
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	if len(exts) == 0 {
		return nil, fmt.Errorf("%w: no file extensions given", domain.ErrInvalidArgument)
	}
	opts.Extensions = exts

	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.NullReporter{}
	}
	opts.Logger = opts.Logger.With("component", "eol")

	return &Converter{fs: fs, opts: opts}, nil
}

// Open validates root on the real filesystem and returns a Converter
func Open(root string, opts Options) (*Converter, error) {
	fs, err := local.OpenRoot(afero.NewOsFs(), root)
	if err != nil {
		return nil, err
	}
	return New(fs, opts)
}

// Matches reports whether name ends with one of the configured extensions
func (c *Converter) Matches(name string) bool {
	for _, ext := range c.opts.Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// Run converts every matching file. Files already in the target form are
// counted as skipped and left untouched.
func (c *Converter) Run(ctx context.Context) (domain.Tally, error) {
	start := time.Now()

	files, err := c.fs.Walk(ctx, "", nil)
	if err != nil {
		return domain.Tally{}, err
	}

	var tally domain.Tally
	for _, file := range files {
		if !c.Matches(filepath.Base(file.Path)) {
			continue
		}
		tally.Scanned++

		if err := ctx.Err(); err != nil {
			tally.RecordFailure(file.Path, err.Error())
			c.opts.Reporter.Step(file.Path, false)
			continue
		}

		changed, err := c.ConvertFile(ctx, file.Path)
		if err != nil {
			pfe := domain.NewPerFileError(file.Path, domain.ErrOSFailure, err)
			c.opts.Logger.Warn("conversion failed", "path", file.Path, "reason", pfe.Reason())
			tally.RecordFailure(file.Path, pfe.Reason())
			c.opts.Reporter.Step(file.Path, false)
			continue
		}

		if !changed {
			tally.Skipped++
		}
		tally.RecordSuccess()
		c.opts.Reporter.Step(file.Path, true)
	}

	tally.Elapsed = time.Since(start)
	c.opts.Logger.Info("conversion finished",
		"root", c.fs.Root(),
		"mode", c.opts.Mode,
		"converted", tally.Successes-tally.Skipped,
		"failed", tally.Failures,
	)
	return tally, nil
}

// ConvertFile rewrites one file atomically and reports whether it changed
func (c *Converter) ConvertFile(ctx context.Context, path string) (bool, error) {
	rc, err := c.fs.Read(ctx, path)
	if err != nil {
		return false, err
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return false, err
	}

	out := Convert(content, c.opts.Mode)
	if bytes.Equal(out, content) {
		return false, nil
	}

	if err := c.fs.Write(ctx, path, bytes.NewReader(out)); err != nil {
		return false, err
	}
	c.opts.Logger.Debug("converted", "path", path, "mode", c.opts.Mode)
	return true, nil
}
