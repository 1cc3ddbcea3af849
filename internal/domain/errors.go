package domain

import (
	"errors"
	"fmt"
)

// Argument and configuration errors. These abort the operation that detected them.
var (
	// ErrInvalidArgument indicates a malformed or inaccessible root, or a bad per-call argument
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedAlgorithm indicates an unknown hash algorithm identifier
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

	// ErrUnsupportedEncoding indicates an unknown text encoding name
	ErrUnsupportedEncoding = errors.New("unsupported text encoding")

	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")

	// ErrBatchInProgress indicates another run already holds the lock for the same root
	ErrBatchInProgress = errors.New("batch already in progress")
)

// Per-file outcomes. These never abort a batch; they are folded into a Tally.
var (
	// ErrNameCollision indicates the computed target name already exists
	ErrNameCollision = errors.New("target name already exists")

	// ErrOSFailure indicates an operating system call failed for a single file
	ErrOSFailure = errors.New("operating system failure")

	// ErrDecode indicates bytes that are invalid in the source encoding
	ErrDecode = errors.New("decode error")

	// ErrEncode indicates a character the target encoding cannot represent
	ErrEncode = errors.New("encode error")
)

// Filesystem adapter errors
var (
	// ErrNotFound indicates the requested path does not exist
	ErrNotFound = errors.New("path not found")

	// ErrAlreadyExists indicates the path already exists
	ErrAlreadyExists = errors.New("path already exists")

	// ErrPermissionDenied indicates insufficient permissions or a path escaping the root
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFile indicates expected a regular file but got something else
	ErrNotFile = errors.New("not a regular file")

	// ErrDirectoryNotEmpty indicates a directory removal hit remaining entries
	ErrDirectoryNotEmpty = errors.New("directory not empty")
)

// PerFileError records why a single file failed inside a batch.
// It matches both its Kind and its Cause with errors.Is.
type PerFileError struct {
	Path  string
	Kind  error
	Cause error
}

// NewPerFileError builds a PerFileError; cause may be nil
func NewPerFileError(path string, kind, cause error) *PerFileError {
	return &PerFileError{Path: path, Kind: kind, Cause: cause}
}

func (e *PerFileError) Error() string {
	if e.Cause == nil || e.Cause == e.Kind {
		return fmt.Sprintf("%s: %v", e.Path, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind, e.Cause)
}

// Unwrap exposes both the kind and the underlying cause
func (e *PerFileError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Reason returns a short human-readable failure reason
func (e *PerFileError) Reason() string {
	if e.Cause == nil || e.Cause == e.Kind {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
}
