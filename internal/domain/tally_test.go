package domain

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTally_Status(t *testing.T) {
	tests := []struct {
		name  string
		tally Tally
		want  RunStatus
	}{
		{"empty", Tally{}, RunSuccess},
		{"all ok", Tally{Scanned: 2, Successes: 2}, RunSuccess},
		{"some failed", Tally{Scanned: 2, Successes: 1, Failures: 1}, RunPartial},
		{"all failed", Tally{Scanned: 2, Failures: 2}, RunFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tally.Status())
		})
	}
}

func TestTally_RecordFailure(t *testing.T) {
	var tally Tally
	tally.Scanned = 2
	tally.RecordSuccess()
	tally.RecordFailure("/tmp/a.txt", "target name already exists")

	assert.True(t, tally.Balanced(), "%+v", tally)
	assert.Equal(t, []string{"/tmp/a.txt"}, tally.FailedPaths())
	assert.Equal(t, []Failure{{Path: "/tmp/a.txt", Reason: "target name already exists"}}, tally.Failed)
}

func TestPerFileError_Is(t *testing.T) {
	err := NewPerFileError("/tmp/a.txt", ErrOSFailure, fs.ErrNotExist)

	assert.ErrorIs(t, err, ErrOSFailure)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, ErrNameCollision)

	collision := NewPerFileError("/tmp/b.txt", ErrNameCollision, nil)
	assert.Equal(t, ErrNameCollision.Error(), collision.Reason())
}

func TestRenameKey_Payload(t *testing.T) {
	key := RenameKey{Path: "/a/b.txt", Timestamp: "2024-01-02 03:04:05.000006", Salt: "ff"}
	assert.Equal(t, "/a/b.txt2024-01-02 03:04:05.000006ff", string(key.Payload()))
}

func TestSplitExt(t *testing.T) {
	tests := []struct {
		in, stem, ext string
	}{
		{"a.txt", "a", ".txt"},
		{"a.tar.gz", "a.tar", ".gz"},
		{"README", "README", ""},
		{".bashrc", ".bashrc", ""},
		{"..foo", "..foo", ""},
		{".env.bak", ".env", ".bak"},
		{"trail.", "trail", "."},
	}
	for _, tt := range tests {
		stem, ext := SplitExt(tt.in)
		assert.Equal(t, tt.stem, stem, "stem of %q", tt.in)
		assert.Equal(t, tt.ext, ext, "ext of %q", tt.in)
	}
}
