package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Ning0612/Tidyfs/internal/core/checksum"
	"github.com/Ning0612/Tidyfs/internal/domain"
)

const (
	// LockFileExt is the extension of lock files in the lock dir
	LockFileExt = ".lock"
	// DefaultStaleTimeout is the age after which a lock from another host is stale
	DefaultStaleTimeout = 24 * time.Hour
)

// LockInfo contains metadata about the lock holder
type LockInfo struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartTime time.Time `json:"start_time"`
	Tool      string    `json:"tool"`
	Root      string    `json:"root"`
}

// FileLock keeps two runs of the same tool off the same root
type FileLock struct {
	lockPath     string
	tool         string
	root         string
	staleTimeout time.Duration
	info         *LockInfo
}

// LockFileName returns the lock file name for a (tool, root) pair
func LockFileName(tool, root string) string {
	sum, err := checksum.Hash(checksum.SHA1, []byte(filepath.Clean(root)))
	if err != nil {
		// sha1 is always available
		panic(err)
	}
	return fmt.Sprintf("%s-%s%s", tool, sum[:16], LockFileExt)
}

// NewFileLock creates a lock for tool on root inside lockDir
func NewFileLock(lockDir, tool, root string) (*FileLock, error) {
	if tool == "" || root == "" {
		return nil, fmt.Errorf("%w: lock needs a tool and a root", domain.ErrInvalidArgument)
	}
	if lockDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config dir: %w", err)
		}
		lockDir = filepath.Join(configDir, "tidyfs", "locks")
	}

	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &FileLock{
		lockPath:     filepath.Join(lockDir, LockFileName(tool, root)),
		tool:         tool,
		root:         filepath.Clean(root),
		staleTimeout: DefaultStaleTimeout,
	}, nil
}

// SetStaleTimeout sets the duration after which a foreign-host lock is stale
func (l *FileLock) SetStaleTimeout(d time.Duration) {
	if d > 0 {
		l.staleTimeout = d
	}
}

// Path returns the lock file path
func (l *FileLock) Path() string {
	return l.lockPath
}

// Acquire takes the lock. It is a no-op if this instance already holds it.
func (l *FileLock) Acquire() error {
	if l.info != nil {
		existingInfo, err := l.readLockInfo()
		if err == nil && l.isHeldByThisInstance(existingInfo) {
			return nil
		}
		l.info = nil
	}

	existingInfo, err := l.readLockInfo()
	if err == nil {
		if !l.isStale(existingInfo) {
			return &LockError{
				Holder: existingInfo,
				Reason: "another run is using this directory",
			}
		}
		if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	info := &LockInfo{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		Tool:      l.tool,
		Root:      l.root,
	}

	// O_EXCL makes creation the arbiter when two runs start together
	file, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			existingInfo, readErr := l.readLockInfo()
			if readErr != nil {
				return &LockError{Reason: "lock created concurrently"}
			}
			return &LockError{
				Holder: existingInfo,
				Reason: "lock acquired by another run during acquisition",
			}
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(info); err != nil {
		os.Remove(l.lockPath)
		return fmt.Errorf("failed to write lock info: %w", err)
	}

	l.info = info
	return nil
}

// Release releases the lock
func (l *FileLock) Release() error {
	if l.info == nil {
		return nil
	}

	existingInfo, err := l.readLockInfo()
	if err != nil {
		l.info = nil
		return nil
	}

	if !l.isHeldByThisInstance(existingInfo) {
		l.info = nil
		return fmt.Errorf("lock was taken over by PID %d", existingInfo.PID)
	}

	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	l.info = nil
	return nil
}

// IsLocked reports whether a live lock exists
func (l *FileLock) IsLocked() bool {
	info, err := l.readLockInfo()
	if err != nil {
		return false
	}
	return !l.isStale(info)
}

// GetHolder returns the current live holder
func (l *FileLock) GetHolder() (*LockInfo, error) {
	info, err := l.readLockInfo()
	if err != nil {
		return nil, err
	}
	if l.isStale(info) {
		return nil, fmt.Errorf("lock is stale")
	}
	return info, nil
}

// ForceRelease removes the lock file regardless of holder
func (l *FileLock) ForceRelease() error {
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to force remove lock: %w", err)
	}
	l.info = nil
	return nil
}

func (l *FileLock) readLockInfo() (*LockInfo, error) {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}

	return &info, nil
}

// isStale: same host means stale only when the process is gone; other hosts
// fall back to the timeout since their processes cannot be checked.
func (l *FileLock) isStale(info *LockInfo) bool {
	hostname, _ := os.Hostname()

	if info.Hostname == hostname {
		return !processExists(info.PID)
	}

	return time.Since(info.StartTime) > l.staleTimeout
}

func (l *FileLock) isHeldByThisInstance(info *LockInfo) bool {
	if l.info == nil {
		return false
	}
	hostname, _ := os.Hostname()
	return info.PID == os.Getpid() &&
		info.Hostname == hostname &&
		l.info.StartTime.Equal(info.StartTime)
}

// LockError is returned when the lock is held by a live run.
// It matches domain.ErrBatchInProgress.
type LockError struct {
	Holder *LockInfo
	Reason string
}

func (e *LockError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("%s: %s (%s held by PID %d on %s since %s)",
			domain.ErrBatchInProgress,
			e.Reason,
			e.Holder.Tool,
			e.Holder.PID,
			e.Holder.Hostname,
			e.Holder.StartTime.Format(time.RFC3339),
		)
	}
	return fmt.Sprintf("%s: %s", domain.ErrBatchInProgress, e.Reason)
}

func (e *LockError) Unwrap() error {
	return domain.ErrBatchInProgress
}

// IsLockError checks if an error is a LockError
func IsLockError(err error) bool {
	var le *LockError
	return errors.As(err, &le)
}
