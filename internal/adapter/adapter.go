package adapter

import (
	"context"
	"io"

	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/progress"
)

// Adapter is the filesystem surface every tool works through.
// Paths may be absolute or relative to Root, but must stay inside Root.
// Errors are domain sentinels (wrapping the OS error when there is one).
type Adapter interface {
	// Root returns the absolute root directory
	Root() string

	// Walk returns every regular file below path as absolute paths, in lexical order.
	// Directories and symlinks are never returned. skipDir may prune subdirectories.
	Walk(ctx context.Context, path string, skipDir func(dir string) bool) ([]domain.FileInfo, error)

	// Dirs returns path and every directory below it, parents before children,
	// in lexical order. skipDir prunes like in Walk.
	Dirs(ctx context.Context, path string, skipDir func(dir string) bool) ([]string, error)

	// List returns the immediate children of a directory, sorted by name
	// Returns domain.ErrNotDirectory if path is a file
	List(ctx context.Context, path string) ([]domain.FileInfo, error)

	// Stat returns metadata for a single path without following symlinks
	// Returns domain.ErrNotFound if path doesn't exist
	Stat(ctx context.Context, path string) (domain.FileInfo, error)

	// Read opens a regular file for reading; caller closes it
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write creates or replaces a file atomically (temp file then rename).
	// An existing file keeps its permission bits.
	Write(ctx context.Context, path string, r io.Reader) error

	// Create writes a new file and fails with domain.ErrAlreadyExists if path exists
	Create(ctx context.Context, path string, r io.Reader) error

	// Copy copies a regular file, creating parent directories and keeping mode and mtime
	Copy(ctx context.Context, src, dst string, reporter progress.Reporter) (int64, error)

	// RenameNoReplace renames oldPath to newPath and fails with
	// domain.ErrAlreadyExists if newPath exists. The check and the rename are atomic.
	RenameNoReplace(ctx context.Context, oldPath, newPath string) error

	// Move is RenameNoReplace with a copy-then-remove fallback across devices
	Move(ctx context.Context, oldPath, newPath string) error

	// Remove removes a file or an empty directory
	Remove(ctx context.Context, path string) error

	// Mkdir creates a directory and any necessary parents
	Mkdir(ctx context.Context, path string) error

	// CheckAccess verifies the caller may read, write and enter a directory
	CheckAccess(ctx context.Context, path string) error

	// Exists checks if a path exists
	Exists(ctx context.Context, path string) (bool, error)

	// Close releases any resources held by the adapter
	Close() error
}
