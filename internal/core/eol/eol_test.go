package eol

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/Tidyfs/internal/adapter/local"
	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/testutil"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"lf", LF, false},
		{"LF", LF, false},
		{" crlf ", CRLF, false},
		{"cr", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if tt.wantErr {
			assert.ErrorIs(t, err, domain.ErrInvalidArgument, "ParseMode(%q)", tt.input)
			continue
		}
		require.NoError(t, err, "ParseMode(%q)", tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name  string
		input string
		mode  Mode
		want  string
	}{
		{"crlf to lf", "a\r\nb\r\n", LF, "a\nb\n"},
		{"lf unchanged", "a\nb\n", LF, "a\nb\n"},
		{"lone cr kept", "a\rb\r\n", LF, "a\rb\n"},
		{"lf to crlf", "a\nb\n", CRLF, "a\r\nb\r\n"},
		{"crlf not doubled", "a\r\nb\n", CRLF, "a\r\nb\r\n"},
		{"empty", "", CRLF, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(Convert([]byte(tt.input), tt.mode)))
		})
	}
}

func newMemConverter(t *testing.T, files map[string]string, opts Options) (*Converter, afero.Fs) {
	t.Helper()
	mem := afero.NewMemMapFs()
	testutil.CreateMemTree(t, mem, "/code", files)
	fs, err := local.OpenRoot(mem, "/code")
	require.NoError(t, err)
	c, err := New(fs, opts)
	require.NoError(t, err)
	return c, mem
}

func TestNew_Validation(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll("/code", 0755))
	fs, err := local.OpenRoot(mem, "/code")
	require.NoError(t, err)

	_, err = New(fs, Options{})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	_, err = New(fs, Options{Extensions: []string{""}})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	_, err = New(fs, Options{Mode: "cr", Extensions: []string{".go"}})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	c, err := New(fs, Options{Extensions: []string{".go"}})
	require.NoError(t, err)
	assert.Equal(t, LF, c.opts.Mode)
}

func TestRun_ToLF(t *testing.T) {
	c, mem := newMemConverter(t, map[string]string{
		"a.py":       "x\r\ny\r\n",
		"b.py":       "already\n",
		"sub/c.sh":   "echo\r\n",
		"notes.md":   "keep\r\n",
		"sub/d.py.t": "keep\r\n",
	}, Options{Extensions: []string{".py", ".sh"}})

	tally, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, tally.Scanned)
	assert.Equal(t, 3, tally.Successes)
	assert.Equal(t, 1, tally.Skipped)
	assert.True(t, tally.Balanced())

	want := map[string]string{
		"/code/a.py":       "x\ny\n",
		"/code/b.py":       "already\n",
		"/code/sub/c.sh":   "echo\n",
		"/code/notes.md":   "keep\r\n",
		"/code/sub/d.py.t": "keep\r\n",
	}
	for path, content := range want {
		b, err := afero.ReadFile(mem, path)
		require.NoError(t, err)
		assert.Equal(t, content, string(b), path)
	}
}

func TestRun_ToCRLF(t *testing.T) {
	c, mem := newMemConverter(t, map[string]string{
		"a.bat": "a\nb\r\nc",
	}, Options{Mode: CRLF, Extensions: []string{".bat"}})

	tally, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Successes)
	assert.Equal(t, 0, tally.Skipped)

	b, err := afero.ReadFile(mem, "/code/a.bat")
	require.NoError(t, err)
	assert.Equal(t, "a\r\nb\r\nc", string(b))

	// converting twice changes nothing
	tally, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Skipped)
}

func TestRun_Cancelled(t *testing.T) {
	c, _ := newMemConverter(t, map[string]string{"a.txt": "a\r\n"}, Options{Extensions: []string{".txt"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestOpen_KeepsPermissions(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	path := testutil.CreateTestFile(t, dir, "run.sh", []byte("#!/bin/sh\r\necho hi\r\n"))
	require.NoError(t, os.Chmod(path, 0755))

	c, err := Open(dir, Options{Extensions: []string{".sh"}})
	require.NoError(t, err)
	tally, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Successes)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(b))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	_, err = Open(filepath.Join(dir, "missing"), Options{Extensions: []string{".sh"}})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}
