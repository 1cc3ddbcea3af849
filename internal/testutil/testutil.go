package testutil

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// TempDir creates a temporary directory for testing
// It returns the directory path and a cleanup function
func TempDir(t *testing.T) (string, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "tidyfs-test-*")
	require.NoError(t, err, "failed to create temp dir")

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

// CreateTestFile creates a test file (and its parent directories) with the given content
func CreateTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755), "failed to create parent dir")
	require.NoError(t, os.WriteFile(path, content, 0644), "failed to create test file")

	return path
}

// CreateTree creates every file of a name->content map below dir
func CreateTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		CreateTestFile(t, dir, name, []byte(content))
	}
}

// CreateMemTree creates a name->content map below dir in an afero filesystem
func CreateMemTree(t *testing.T, fs afero.Fs, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755), "failed to create parent dir")
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644), "failed to create test file")
	}
}

// CreateTestFileWithSize creates a test file with random content of the given size
func CreateTestFileWithSize(t *testing.T, dir, name string, size int64) string {
	t.Helper()

	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	require.NoError(t, err, "failed to create test file")
	defer file.Close()

	const chunkSize = 1024 * 1024
	buf := make([]byte, chunkSize)
	remaining := size

	for remaining > 0 {
		writeSize := chunkSize
		if remaining < int64(chunkSize) {
			writeSize = int(remaining)
		}

		rand.Read(buf[:writeSize])
		_, err := file.Write(buf[:writeSize])
		require.NoError(t, err, "failed to write test file")

		remaining -= int64(writeSize)
	}

	return path
}

// ListFiles returns every regular file below dir as slash-separated relative paths, sorted
func ListFiles(t *testing.T, dir string) []string {
	t.Helper()

	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			rel, _ := filepath.Rel(dir, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err, "failed to list %s", dir)

	sort.Strings(files)
	return files
}

// RandomString generates a random string of the given length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
