package domain

import (
	"strings"
	"time"
)

// FileType represents the type of a filesystem entry
type FileType int

const (
	FileTypeRegular FileType = iota
	FileTypeDirectory
	FileTypeSymlink
	FileTypeOther
)

// FileInfo represents metadata about a file or directory
type FileInfo struct {
	// Path is the absolute path of the entry
	Path string

	// Type indicates if this is a file, directory, or symlink
	Type FileType

	// Size in bytes (0 for directories)
	Size int64

	// ModTime is the last modification time
	ModTime time.Time
}

// IsDir returns true if this is a directory
func (f FileInfo) IsDir() bool {
	return f.Type == FileTypeDirectory
}

// IsFile returns true if this is a regular file
func (f FileInfo) IsFile() bool {
	return f.Type == FileTypeRegular
}

// FileRecord is an absolute path of a regular file found by a scan.
// It only promises the file existed at scan time.
type FileRecord struct {
	Path string
	Size int64
}

// SplitExt splits a base name into stem and extension. The extension starts
// at the last dot and keeps it; leading dots never start one, so ".bashrc"
// has no extension and "a.tar.gz" splits into "a.tar" and ".gz".
func SplitExt(name string) (stem, ext string) {
	lead := len(name) - len(strings.TrimLeft(name, "."))
	i := strings.LastIndexByte(name, '.')
	if i < lead {
		return name, ""
	}
	return name[:i], name[i:]
}
