package local

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/Tidyfs/internal/testutil"
)

func TestLinkRename(t *testing.T) {
	dir := t.TempDir()
	old := testutil.CreateTestFile(t, dir, "a.txt", []byte("a"))
	taken := testutil.CreateTestFile(t, dir, "b.txt", []byte("b"))

	err := linkRename(old, taken)
	assert.ErrorIs(t, err, os.ErrExist)

	require.NoError(t, linkRename(old, filepath.Join(dir, "c.txt")))
	assert.Equal(t, []string{"b.txt", "c.txt"}, testutil.ListFiles(t, dir))
}

func TestLinkRename_UnlinkFailureLeavesTreeUnchanged(t *testing.T) {
	dir := t.TempDir()
	old := testutil.CreateTestFile(t, dir, "a.txt", []byte("a"))

	unlinkErr := errors.New("device busy")
	removeFile = func(string) error { return unlinkErr }
	t.Cleanup(func() { removeFile = os.Remove })

	err := linkRename(old, filepath.Join(dir, "b.txt"))
	assert.ErrorIs(t, err, unlinkErr)
	assert.Equal(t, []string{"a.txt"}, testutil.ListFiles(t, dir))
}
