package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/afero"

	"github.com/Ning0612/Tidyfs/internal/adapter"
	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/progress"
)

// tempPattern names the temp file Write creates next to its target
const tempPattern = ".tidyfs-*.tmp"

// Adapter implements adapter.Adapter on top of an afero filesystem
type Adapter struct {
	fs   afero.Fs
	root string
	osFS bool

	// renameMu serializes check-then-rename when the filesystem
	// offers no atomic no-replace rename
	renameMu sync.Mutex

	// writing holds temp files of in-flight Writes; scans hide only these
	writingMu sync.Mutex
	writing   map[string]struct{}
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates an adapter over the real filesystem.
// root must be an existing, accessible directory.
func New(root string) (*Adapter, error) {
	return NewWithFs(afero.NewOsFs(), root)
}

// NewWithFs creates an adapter over any afero filesystem
func NewWithFs(fsys afero.Fs, root string) (*Adapter, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty root path", domain.ErrInvalidArgument)
	}

	_, osFS := fsys.(*afero.OsFs)

	absRoot := root
	if osFS {
		var err error
		absRoot, err = filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
		}
	} else {
		absRoot = filepath.Clean(root)
	}

	info, err := fsys.Stat(absRoot)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.IsDir() {
		return nil, domain.ErrNotDirectory
	}

	if osFS {
		if err := checkAccess(absRoot); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
		}
	}

	return &Adapter{fs: fsys, root: absRoot, osFS: osFS}, nil
}

// OpenRoot is NewWithFs for user-supplied roots: every rejection matches
// domain.ErrInvalidArgument and keeps the specific cause.
func OpenRoot(fsys afero.Fs, root string) (*Adapter, error) {
	a, err := NewWithFs(fsys, root)
	if err == nil {
		return a, nil
	}
	if errors.Is(err, domain.ErrInvalidArgument) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %q: %w", domain.ErrInvalidArgument, root, err)
}

// Root returns the root path of this adapter
func (a *Adapter) Root() string {
	return a.root
}

// Fs exposes the underlying filesystem
func (a *Adapter) Fs() afero.Fs {
	return a.fs
}

// resolvePath resolves a relative or absolute path to an absolute path within root.
// Returns ErrPermissionDenied if the path escapes the root directory.
func (a *Adapter) resolvePath(p string) (string, error) {
	if p == "" || p == "." {
		return a.root, nil
	}

	p = filepath.Clean(filepath.FromSlash(p))

	fullPath := p
	if !filepath.IsAbs(p) {
		fullPath = filepath.Join(a.root, p)
	}

	// filepath.Rel handles root="/data" vs fullPath="/data2"
	rel, err := filepath.Rel(a.root, fullPath)
	if err != nil {
		return "", domain.ErrPermissionDenied
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", domain.ErrPermissionDenied, p, a.root)
	}

	return fullPath, nil
}

// Walk returns every regular file below path
func (a *Adapter) Walk(ctx context.Context, path string, skipDir func(dir string) bool) ([]domain.FileInfo, error) {
	start, err := a.resolvePath(path)
	if err != nil {
		return nil, err
	}

	info, err := lstat(a.fs, start)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.IsDir() {
		return nil, domain.ErrNotDirectory
	}

	var result []domain.FileInfo
	err = afero.Walk(a.fs, start, func(p string, info os.FileInfo, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if walkErr != nil {
			if p == start {
				return walkErr
			}
			// Unreadable subtree: skip it rather than failing the whole scan
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if p != start && skipDir != nil && skipDir(p) {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		if a.isWriting(p) {
			return nil
		}

		result = append(result, fileInfoFromOS(p, info))
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, mapError(err)
	}

	return result, nil
}

// Dirs returns path and every directory below it
func (a *Adapter) Dirs(ctx context.Context, path string, skipDir func(dir string) bool) ([]string, error) {
	start, err := a.resolvePath(path)
	if err != nil {
		return nil, err
	}

	info, err := lstat(a.fs, start)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.IsDir() {
		return nil, domain.ErrNotDirectory
	}

	var dirs []string
	err = afero.Walk(a.fs, start, func(p string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if p == start {
				return walkErr
			}
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if p != start && skipDir != nil && skipDir(p) {
			return filepath.SkipDir
		}
		dirs = append(dirs, p)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, mapError(err)
	}

	return dirs, nil
}

// List returns the immediate children of a directory
func (a *Adapter) List(ctx context.Context, path string) ([]domain.FileInfo, error) {
	fullPath, err := a.resolvePath(path)
	if err != nil {
		return nil, err
	}

	info, err := a.fs.Stat(fullPath)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.IsDir() {
		return nil, domain.ErrNotDirectory
	}

	entries, err := afero.ReadDir(a.fs, fullPath)
	if err != nil {
		return nil, mapError(err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	result := make([]domain.FileInfo, 0, len(entries))
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		p := filepath.Join(fullPath, entry.Name())
		if a.isWriting(p) {
			continue
		}
		result = append(result, fileInfoFromOS(p, entry))
	}

	return result, nil
}

// Stat returns metadata for a single path
func (a *Adapter) Stat(ctx context.Context, path string) (domain.FileInfo, error) {
	fullPath, err := a.resolvePath(path)
	if err != nil {
		return domain.FileInfo{}, err
	}

	info, err := lstat(a.fs, fullPath)
	if err != nil {
		return domain.FileInfo{}, mapError(err)
	}

	return fileInfoFromOS(fullPath, info), nil
}

// Read opens a file for reading
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(path)
	if err != nil {
		return nil, err
	}

	info, err := a.fs.Stat(fullPath)
	if err != nil {
		return nil, mapError(err)
	}
	if info.IsDir() {
		return nil, domain.ErrNotFile
	}

	file, err := a.fs.Open(fullPath)
	if err != nil {
		return nil, mapError(err)
	}

	return file, nil
}

// Write creates or replaces a file
func (a *Adapter) Write(ctx context.Context, path string, r io.Reader) error {
	fullPath, err := a.resolveOutside(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(fullPath)
	if err := a.fs.MkdirAll(dir, 0755); err != nil {
		return mapError(err)
	}

	mode := os.FileMode(0644)
	if info, err := a.fs.Stat(fullPath); err == nil {
		if info.IsDir() {
			return domain.ErrNotFile
		}
		mode = info.Mode().Perm()
	}

	file, err := afero.TempFile(a.fs, dir, tempPattern)
	if err != nil {
		return mapError(err)
	}
	tempPath := file.Name()
	a.trackWrite(tempPath, true)
	defer a.trackWrite(tempPath, false)

	_, copyErr := io.Copy(file, r)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil {
		copyErr = a.fs.Chmod(tempPath, mode)
	}
	if copyErr != nil {
		a.fs.Remove(tempPath)
		return copyErr
	}

	if err := a.fs.Rename(tempPath, fullPath); err != nil {
		a.fs.Remove(tempPath)
		return mapError(err)
	}

	return nil
}

func (a *Adapter) trackWrite(path string, on bool) {
	a.writingMu.Lock()
	defer a.writingMu.Unlock()
	if !on {
		delete(a.writing, path)
		return
	}
	if a.writing == nil {
		a.writing = make(map[string]struct{})
	}
	a.writing[path] = struct{}{}
}

func (a *Adapter) isWriting(path string) bool {
	a.writingMu.Lock()
	defer a.writingMu.Unlock()
	_, ok := a.writing[path]
	return ok
}

// Create writes a new file, never replacing an existing one
func (a *Adapter) Create(ctx context.Context, path string, r io.Reader) error {
	fullPath, err := a.resolveOutside(path)
	if err != nil {
		return err
	}

	if err := a.fs.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return mapError(err)
	}

	file, err := a.fs.OpenFile(fullPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return mapError(err)
	}

	_, copyErr := io.Copy(file, r)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		a.fs.Remove(fullPath)
		return copyErr
	}
	return nil
}

// Copy copies a regular file
func (a *Adapter) Copy(ctx context.Context, src, dst string, reporter progress.Reporter) (int64, error) {
	srcPath, err := a.resolvePath(src)
	if err != nil {
		return 0, err
	}
	dstPath, err := a.resolveOutside(dst)
	if err != nil {
		return 0, err
	}

	info, err := a.fs.Stat(srcPath)
	if err != nil {
		return 0, mapError(err)
	}
	if !info.Mode().IsRegular() {
		return 0, domain.ErrNotFile
	}

	in, err := a.fs.Open(srcPath)
	if err != nil {
		return 0, mapError(err)
	}
	defer in.Close()

	if err := a.fs.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return 0, mapError(err)
	}

	out, err := a.fs.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return 0, mapError(err)
	}

	var reader io.Reader = in
	if reporter != nil {
		reporter.Start(srcPath, info.Size())
		reader = progress.NewProgressReader(in, reporter)
	}

	n, copyErr := io.Copy(out, reader)
	closeErr := out.Close()
	if copyErr != nil {
		if reporter != nil {
			reporter.Error(copyErr)
		}
		return n, copyErr
	}
	if closeErr != nil {
		return n, closeErr
	}

	if err := a.fs.Chtimes(dstPath, info.ModTime(), info.ModTime()); err != nil {
		return n, mapError(err)
	}
	if reporter != nil {
		reporter.Complete()
	}

	return n, nil
}

// RenameNoReplace renames without ever overwriting newPath
func (a *Adapter) RenameNoReplace(ctx context.Context, oldPath, newPath string) error {
	oldFull, err := a.resolvePath(oldPath)
	if err != nil {
		return err
	}
	newFull, err := a.resolveOutside(newPath)
	if err != nil {
		return err
	}

	if a.osFS {
		return mapError(renameNoReplace(oldFull, newFull))
	}

	a.renameMu.Lock()
	defer a.renameMu.Unlock()

	if _, err := lstat(a.fs, newFull); err == nil {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, newFull)
	} else if !os.IsNotExist(err) {
		return mapError(err)
	}

	return mapError(a.fs.Rename(oldFull, newFull))
}

// Move renames, falling back to copy and remove across devices
func (a *Adapter) Move(ctx context.Context, oldPath, newPath string) error {
	err := a.RenameNoReplace(ctx, oldPath, newPath)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	exists, err := a.Exists(ctx, newPath)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, newPath)
	}

	if _, err := a.Copy(ctx, oldPath, newPath, nil); err != nil {
		return err
	}
	return a.Remove(ctx, oldPath)
}

// Remove removes a file or empty directory
func (a *Adapter) Remove(ctx context.Context, path string) error {
	fullPath, err := a.resolvePath(path)
	if err != nil {
		return err
	}
	if fullPath == a.root {
		return fmt.Errorf("%w: refusing to remove root", domain.ErrPermissionDenied)
	}

	return mapError(a.fs.Remove(fullPath))
}

// Mkdir creates a directory and any necessary parents
func (a *Adapter) Mkdir(ctx context.Context, path string) error {
	fullPath, err := a.resolveOutside(path)
	if err != nil {
		return err
	}

	return mapError(a.fs.MkdirAll(fullPath, 0755))
}

// CheckAccess verifies a directory is readable, writable and searchable.
// Only the OS filesystem has permissions worth checking.
func (a *Adapter) CheckAccess(ctx context.Context, path string) error {
	fullPath, err := a.resolveOutside(path)
	if err != nil {
		return err
	}

	info, err := a.fs.Stat(fullPath)
	if err != nil {
		return mapError(err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", domain.ErrNotDirectory, fullPath)
	}
	if !a.osFS {
		return nil
	}
	if err := checkAccess(fullPath); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
	}
	return nil
}

// Exists checks if a path exists
func (a *Adapter) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := a.resolveOutside(path)
	if err != nil {
		return false, err
	}

	_, err = lstat(a.fs, fullPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, mapError(err)
}

// Close releases any resources (no-op for local adapter)
func (a *Adapter) Close() error {
	return nil
}

// resolveOutside resolves destination paths. Absolute destinations may live outside
// root (backup directories, external collect targets); relative ones are joined to root.
func (a *Adapter) resolveOutside(p string) (string, error) {
	if p != "" && filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return a.resolvePath(p)
}

// lstat uses Lstat when the filesystem supports it
func lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}

// fileInfoFromOS converts os.FileInfo to domain.FileInfo
func fileInfoFromOS(path string, info os.FileInfo) domain.FileInfo {
	fileType := domain.FileTypeOther
	switch {
	case info.IsDir():
		fileType = domain.FileTypeDirectory
	case info.Mode()&os.ModeSymlink != 0:
		fileType = domain.FileTypeSymlink
	case info.Mode().IsRegular():
		fileType = domain.FileTypeRegular
	}

	size := info.Size()
	if fileType == domain.FileTypeDirectory {
		size = 0
	}

	return domain.FileInfo{
		Path:    path,
		Type:    fileType,
		Size:    size,
		ModTime: info.ModTime(),
	}
}

// mapError converts OS errors to domain errors, keeping the cause
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %w", domain.ErrAlreadyExists, err)
	case errors.Is(err, syscall.ENOTEMPTY):
		return fmt.Errorf("%w: %w", domain.ErrDirectoryNotEmpty, err)
	case errors.Is(err, syscall.ENOTDIR):
		return fmt.Errorf("%w: %w", domain.ErrNotDirectory, err)
	}

	// Directory not empty on platforms without ENOTEMPTY in the chain
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && strings.Contains(pathErr.Err.Error(), "not empty") {
		return fmt.Errorf("%w: %w", domain.ErrDirectoryNotEmpty, err)
	}

	return err
}
