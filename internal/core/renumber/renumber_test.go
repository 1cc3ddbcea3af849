package renumber

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/Tidyfs/internal/adapter/local"
	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/testutil"
)

func newMemRenumberer(t *testing.T, root string, files map[string]string) (*Renumberer, afero.Fs) {
	t.Helper()
	mem := afero.NewMemMapFs()
	testutil.CreateMemTree(t, mem, root, files)
	fs, err := local.OpenRoot(mem, root)
	require.NoError(t, err)
	return New(fs, Options{}), mem
}

func names(t *testing.T, mem afero.Fs, dir string) []string {
	t.Helper()
	entries, err := afero.ReadDir(mem, dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

func TestTargetName(t *testing.T) {
	tests := []struct {
		dir  string
		name string
		n    int
		want string
	}{
		{"/p/trip", "IMG_01.JPG", 1, "trip-1.JPG"},
		{"/p/trip", "notes", 2, "trip-2"},
		{"/p/trip", "archive.tar.gz", 3, "trip-3.gz"},
		{"/p/trip", ".hidden", 4, "trip-4"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TargetName(tt.dir, tt.name, tt.n), "TargetName(%q, %q, %d)", tt.dir, tt.name, tt.n)
	}
}

func TestRun_RenumbersEveryDirectory(t *testing.T) {
	r, mem := newMemRenumberer(t, "/photos", map[string]string{
		"b.jpg":           "b",
		"a.png":           "a",
		"notes":           "n",
		"trip/x.jpg":      "x",
		"trip/trip-2.jpg": "t",
	})
	require.NoError(t, mem.MkdirAll("/photos/empty", 0755))

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Dirs)
	assert.Equal(t, 5, res.Scanned)
	assert.Equal(t, 5, res.Successes)
	assert.Equal(t, 0, res.Renamed)
	assert.True(t, res.Balanced())

	assert.Equal(t, []string{"photos-1.png", "photos-2.jpg", "photos-3"}, names(t, mem, "/photos"))
	assert.Equal(t, []string{"trip-1.jpg", "trip-2.jpg"}, names(t, mem, "/photos/trip"))

	b, err := afero.ReadFile(mem, "/photos/trip/trip-1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "t", string(b))
}

func TestRun_FallbackName(t *testing.T) {
	r, mem := newMemRenumberer(t, "/d", map[string]string{
		"a.txt":   "a",
		"d-1.txt": "one",
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Successes)
	assert.Equal(t, 1, res.Renamed)
	assert.Equal(t, []string{"d-1.txt(2)", "d-2.txt"}, names(t, mem, "/d"))

	b, _ := afero.ReadFile(mem, "/d/d-1.txt(2)")
	assert.Equal(t, "a", string(b))
	b, _ = afero.ReadFile(mem, "/d/d-2.txt")
	assert.Equal(t, "one", string(b))
}

func TestRun_AlreadyNumberedIsSkipped(t *testing.T) {
	r, mem := newMemRenumberer(t, "/s", map[string]string{"s-1.txt": "x"})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successes)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"s-1.txt"}, names(t, mem, "/s"))
}

func TestRun_BothNamesTaken(t *testing.T) {
	r, mem := newMemRenumberer(t, "/f", map[string]string{
		"a.txt":      "a",
		"f-1.txt":    "1",
		"f-1.txt(2)": "2",
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 2, res.Successes)
	assert.Equal(t, 1, res.Failures)
	assert.True(t, res.Balanced())
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "/f/a.txt", res.Failed[0].Path)
	assert.Contains(t, res.Failed[0].Reason, domain.ErrNameCollision.Error())

	// the failed file is untouched and nothing was overwritten
	b, _ := afero.ReadFile(mem, "/f/a.txt")
	assert.Equal(t, "a", string(b))
	assert.Equal(t, []string{"a.txt", "f-2.txt", "f-3.txt(2)"}, names(t, mem, "/f"))
}

func TestRun_Cancelled(t *testing.T) {
	r, _ := newMemRenumberer(t, "/c", map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestOpen_OS(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	root := filepath.Join(dir, "album")
	testutil.CreateTree(t, root, map[string]string{
		"z.jpg":     "z",
		"y.jpg":     "y",
		"day1/a.md": "a",
	})

	r, err := Open(root, Options{})
	require.NoError(t, err)
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Dirs)
	assert.Equal(t, 3, res.Successes)

	for _, p := range []string{"album-1.jpg", "album-2.jpg", filepath.Join("day1", "day1-1.md")} {
		_, err := os.Stat(filepath.Join(root, p))
		assert.NoError(t, err, p)
	}
	b, err := os.ReadFile(filepath.Join(root, "album-1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "y", string(b))

	_, err = Open(filepath.Join(dir, "missing"), Options{})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}
