package local

import (
	"errors"
	"os"
)

// removeFile unlinks the old name after a link; replaced in tests
var removeFile = os.Remove

// linkRename moves oldpath to newpath by hard-linking then unlinking.
// link(2) fails with EEXIST when newpath exists, which makes the move no-replace.
// Filesystems without hard links fall back to an unguarded check and rename.
func linkRename(oldpath, newpath string) error {
	err := os.Link(oldpath, newpath)
	if err == nil {
		if err := removeFile(oldpath); err != nil {
			// keep only the old name so a failed rename changes nothing
			os.Remove(newpath)
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: err}
		}
		return nil
	}
	if errors.Is(err, os.ErrExist) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return err
	}

	if _, statErr := os.Lstat(newpath); statErr == nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: os.ErrExist}
	}
	return os.Rename(oldpath, newpath)
}
