//go:build windows

package local

import "golang.org/x/sys/windows"

// checkAccess rejects read-only directories; ACLs are left to the actual calls
func checkAccess(dir string) error {
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return err
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}
	if attrs&windows.FILE_ATTRIBUTE_READONLY != 0 {
		return windows.ERROR_ACCESS_DENIED
	}
	return nil
}
