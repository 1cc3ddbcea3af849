package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/testutil"
)

func TestNew_InvalidRoots(t *testing.T) {
	dir := t.TempDir()
	file := testutil.CreateTestFile(t, dir, "plain.txt", []byte("x"))

	_, err := New("")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = New(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = New(file)
	assert.ErrorIs(t, err, domain.ErrNotDirectory)
}

func TestNew_RelativeRootIsMadeAbsolute(t *testing.T) {
	a, err := New(".")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(a.Root()))
}

func TestWalk_RegularFilesOnly(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateTree(t, dir, map[string]string{
		"a.txt":         "a",
		"b.txt":         "b",
		"sub/c.txt":     "c",
		"sub/d.md":      "d",
		"sub/deep/e.go": "e",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "empty"), 0755))
	if runtime.GOOS != "windows" {
		require.NoError(t, os.Symlink(filepath.Join(dir, "a.txt"), filepath.Join(dir, "link.txt")))
	}

	a, err := New(dir)
	require.NoError(t, err)

	files, err := a.Walk(context.Background(), "", nil)
	require.NoError(t, err)

	var got []string
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.Path), "path %s should be absolute", f.Path)
		assert.True(t, f.IsFile())
		rel, _ := filepath.Rel(dir, f.Path)
		got = append(got, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "sub/c.txt", "sub/d.md", "sub/deep/e.go"}, got)
}

func TestWalk_SkipDir(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateTree(t, dir, map[string]string{
		"keep.txt":      "k",
		".git/config":   "c",
		"venv/lib/x.py": "x",
		"src/venv/y.py": "y",
		"src/main.go":   "m",
	})

	a, err := New(dir)
	require.NoError(t, err)

	excluded := filepath.Join(dir, "venv")
	files, err := a.Walk(context.Background(), "", func(d string) bool {
		return d == excluded || filepath.Base(d) == ".git"
	})
	require.NoError(t, err)

	var got []string
	for _, f := range files {
		rel, _ := filepath.Rel(dir, f.Path)
		got = append(got, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{"keep.txt", "src/main.go", "src/venv/y.py"}, got)
}

func TestWalk_Cancelled(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateTestFile(t, dir, "a.txt", []byte("a"))

	a, err := New(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = a.Walk(ctx, "", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolvePath_Escape(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	require.NoError(t, err)

	_, err = a.Stat(context.Background(), "../outside")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = a.Stat(context.Background(), dir+"2")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = a.Read(context.Background(), "/etc/hostname")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestRenameNoReplace_OS(t *testing.T) {
	dir := t.TempDir()
	src := testutil.CreateTestFile(t, dir, "src.txt", []byte("source"))
	dst := testutil.CreateTestFile(t, dir, "dst.txt", []byte("existing"))

	a, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	err = a.RenameNoReplace(ctx, src, dst)
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	// Both files are untouched
	data, _ := os.ReadFile(src)
	assert.Equal(t, "source", string(data))
	data, _ = os.ReadFile(dst)
	assert.Equal(t, "existing", string(data))

	fresh := filepath.Join(dir, "fresh.txt")
	require.NoError(t, a.RenameNoReplace(ctx, src, fresh))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	data, _ = os.ReadFile(fresh)
	assert.Equal(t, "source", string(data))
}

func TestRenameNoReplace_VanishedSource(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	require.NoError(t, err)

	err = a.RenameNoReplace(context.Background(), filepath.Join(dir, "gone.txt"), filepath.Join(dir, "new.txt"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRenameNoReplace_MemRace(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.CreateMemTree(t, fs, "/data", map[string]string{
		"one.txt": "1",
		"two.txt": "2",
	})

	a, err := NewWithFs(fs, "/data")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, name := range []string{"/data/one.txt", "/data/two.txt"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = a.RenameNoReplace(context.Background(), name, "/data/target.txt")
		}(i, name)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, domain.ErrAlreadyExists)
		}
	}
	assert.Equal(t, 1, wins, "exactly one rename must win")
}

func TestWrite_KeepsMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not preserved on windows")
	}
	dir := t.TempDir()
	path := testutil.CreateTestFile(t, dir, "script.sh", []byte("echo hi\r\n"))
	require.NoError(t, os.Chmod(path, 0750))

	a, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, a.Write(context.Background(), "script.sh", strings.NewReader("echo hi\n")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0750), info.Mode().Perm())
	data, _ := os.ReadFile(path)
	assert.Equal(t, "echo hi\n", string(data))
	assert.Equal(t, []string{"script.sh"}, testutil.ListFiles(t, dir), "temp file should be gone")
}

func TestWalk_TempLikeNamesAreUserFiles(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateTree(t, dir, map[string]string{
		"a.txt":               "a",
		"notes.tidyfs.tmp":    "n",
		"sub/.tidyfs-123.tmp": "t",
	})

	a, err := New(dir)
	require.NoError(t, err)

	files, err := a.Walk(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	entries, err := a.List(context.Background(), "")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, filepath.Base(e.Path))
	}
	assert.Equal(t, []string{"a.txt", "notes.tidyfs.tmp", "sub"}, names)
}

func TestWalk_HidesInFlightWrite(t *testing.T) {
	mem := afero.NewMemMapFs()
	testutil.CreateMemTree(t, mem, "/data", map[string]string{"a.txt": "a"})
	a, err := NewWithFs(mem, "/data")
	require.NoError(t, err)

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- a.Write(context.Background(), "b.txt", pr) }()

	// the temp file exists once the first chunk is copied
	_, err = pw.Write([]byte("partial"))
	require.NoError(t, err)

	files, err := a.Walk(context.Background(), "", nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "/data/a.txt", files[0].Path)

	require.NoError(t, pw.Close())
	require.NoError(t, <-done)

	files, err = a.Walk(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestCopy_KeepsModTime(t *testing.T) {
	dir := t.TempDir()
	src := testutil.CreateTestFile(t, dir, "src/a.bin", bytes.Repeat([]byte("z"), 4096))
	old := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, old, old))

	a, err := New(filepath.Join(dir, "src"))
	require.NoError(t, err)

	dst := filepath.Join(dir, "backup", "nested", "a.bin")
	n, err := a.Copy(context.Background(), src, dst, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, n)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old))
}

func TestRemove_RefusesRoot(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	require.NoError(t, err)

	assert.ErrorIs(t, a.Remove(context.Background(), ""), domain.ErrPermissionDenied)
}

func TestList_SortedChildren(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.CreateMemTree(t, fs, "/root", map[string]string{
		"b.txt":     "b",
		"a.txt":     "a",
		"dir/c.txt": "c",
	})
	a, err := NewWithFs(fs, "/root")
	require.NoError(t, err)

	entries, err := a.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "/root/a.txt", filepath.ToSlash(entries[0].Path))
	assert.Equal(t, "/root/b.txt", filepath.ToSlash(entries[1].Path))
	assert.True(t, entries[2].IsDir())

	_, err = a.List(context.Background(), "a.txt")
	assert.ErrorIs(t, err, domain.ErrNotDirectory)
}

func TestRead_Directory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/root/sub", 0755))
	a, err := NewWithFs(fs, "/root")
	require.NoError(t, err)

	_, err = a.Read(context.Background(), "sub")
	assert.ErrorIs(t, err, domain.ErrNotFile)

	rc, err := a.Read(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	if rc != nil {
		io.Copy(io.Discard, rc)
	}
}

func TestDirs_ParentsFirst(t *testing.T) {
	mem := afero.NewMemMapFs()
	testutil.CreateMemTree(t, mem, "/data", map[string]string{
		"a/b/f.txt": "x",
		"c/g.txt":   "y",
		"skip/h":    "z",
	})
	a, err := NewWithFs(mem, "/data")
	require.NoError(t, err)

	dirs, err := a.Dirs(context.Background(), "", func(dir string) bool {
		return filepath.Base(dir) == "skip"
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/data", "/data/a", "/data/a/b", "/data/c"}, dirs)
}

func TestCreate_NeverReplaces(t *testing.T) {
	mem := afero.NewMemMapFs()
	testutil.CreateMemTree(t, mem, "/data", map[string]string{"old.txt": "keep"})
	a, err := NewWithFs(mem, "/data")
	require.NoError(t, err)

	err = a.Create(context.Background(), "old.txt", strings.NewReader("new"))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	data, _ := afero.ReadFile(mem, "/data/old.txt")
	assert.Equal(t, "keep", string(data))

	require.NoError(t, a.Create(context.Background(), "out/new.txt", strings.NewReader("fresh")))
	data, _ = afero.ReadFile(mem, "/data/out/new.txt")
	assert.Equal(t, "fresh", string(data))
}

func TestCheckAccess(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateTestFile(t, dir, "f.txt", []byte("x"))
	a, err := New(dir)
	require.NoError(t, err)

	assert.NoError(t, a.CheckAccess(context.Background(), dir))
	assert.ErrorIs(t, a.CheckAccess(context.Background(), "f.txt"), domain.ErrNotDirectory)
	assert.ErrorIs(t, a.CheckAccess(context.Background(), filepath.Join(dir, "missing")), domain.ErrNotFound)

	if runtime.GOOS != "windows" && os.Getuid() != 0 {
		locked := filepath.Join(dir, "locked")
		require.NoError(t, os.Mkdir(locked, 0500))
		t.Cleanup(func() { os.Chmod(locked, 0755) })
		assert.ErrorIs(t, a.CheckAccess(context.Background(), locked), domain.ErrPermissionDenied)
	}
}

func TestOpenRoot_InvalidArgument(t *testing.T) {
	dir := t.TempDir()
	file := testutil.CreateTestFile(t, dir, "f.txt", []byte("x"))

	for _, root := range []string{"", filepath.Join(dir, "missing"), file} {
		_, err := OpenRoot(afero.NewOsFs(), root)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, root)
	}
}
