package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Ning0612/Tidyfs/internal/core/linecount"
	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/state"
)

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)

	p.Summary("renamed", domain.Tally{
		Scanned:   3,
		Successes: 2,
		Failures:  1,
		Failed:    []domain.Failure{{Path: "/data/b.txt", Reason: "target name already exists"}},
		Elapsed:   1500 * time.Millisecond,
	})

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "3 files have been scanned.", lines[0])
	assert.Equal(t, "2 files were renamed successfully.", lines[1])
	assert.Equal(t, "1 files failed to be renamed.", lines[2])
	assert.Equal(t, "Failed files:", lines[3])
	assert.Equal(t, "    /data/b.txt (target name already exists)", lines[4])
	assert.Equal(t, "Elapsed: 1.5s", lines[5])

	// a buffer is never a terminal
	assert.NotContains(t, out, "\x1b[")
}

func TestSummary_NoFailures(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, true).Summary("moved", domain.Tally{Scanned: 2, Successes: 2, Renamed: 1})

	out := buf.String()
	assert.Contains(t, out, "2 files were moved successfully.")
	assert.Contains(t, out, "1 of them under a substitute name.")
	assert.Contains(t, out, "0 files failed to be moved.")
	assert.NotContains(t, out, "Failed files:")
}

func TestErrorf(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, true).Errorf("invalid root %q", "/nonexistent")
	assert.Equal(t, "Error: invalid root \"/nonexistent\"\n", buf.String())
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Microsecond, "500µs"},
		{1234567 * time.Microsecond, "1.235s"},
		{90*time.Second + 400*time.Millisecond, "1m30s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatElapsed(tt.in), "FormatElapsed(%v)", tt.in)
	}
}

func TestLineCounts(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf, true).LineCounts(linecount.Result{
		Root: "/src",
		Files: []linecount.FileCount{
			{Path: "a.go", Lines: 1200},
			{Path: filepath.Join("pkg", "b.go"), Lines: 34},
		},
		Dirs: []linecount.DirCount{
			{Path: ".", Files: 1, Lines: 1200},
			{Path: "pkg", Files: 1, Lines: 34},
		},
		TotalLines: 1234,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Counting lines in /src")
	assert.Contains(t, out, "a.go")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "Total: 2 directories, 2 files, 1,234 lines")
	assert.NotContains(t, out, "could not be read")
}

func TestHistory(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	require.NoError(t, p.History(nil))
	assert.Equal(t, "No runs recorded.\n", buf.String())

	buf.Reset()
	err := p.History([]state.RunRecord{{
		RunID:     "0f8fad5b-d9cb-469f-a165-70867728950e",
		Tool:      "hashrename",
		Root:      "/data",
		StartTime: time.Now().Add(-2 * time.Hour),
		Status:    domain.RunPartial,
		Scanned:   4,
		Succeeded: 3,
		Failed:    1,
	}})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "0f8fad5b")
	assert.Contains(t, out, "hashrename")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "2 hours ago")
}

func TestFailures(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	require.NoError(t, p.Failures("abc", nil))
	assert.Contains(t, buf.String(), "has no failed files")

	buf.Reset()
	require.NoError(t, p.Failures("abc", []domain.Failure{{Path: "/data/x", Reason: "permission denied"}}))
	assert.Contains(t, buf.String(), "/data/x")
	assert.Contains(t, buf.String(), "permission denied")
}

func TestDocument_WriteFile(t *testing.T) {
	started := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	doc := NewDocument("hashrename", "/data", "run-1", started, domain.Tally{
		Scanned:   2,
		Successes: 1,
		Failures:  1,
		Failed:    []domain.Failure{{Path: "/data/b", Reason: "target name already exists"}},
		Elapsed:   2 * time.Second,
	}, map[string]int{"workers": 4})

	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, doc.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "hashrename", got["tool"])
	assert.Equal(t, "partial", got["status"])
	assert.Equal(t, "2s", got["elapsed"])
	assert.Equal(t, 2, got["scanned"])
	assert.Equal(t, map[string]any{"workers": 4}, got["details"])

	failed, ok := got["failed"].([]any)
	require.True(t, ok)
	require.Len(t, failed, 1)
	assert.Equal(t, "/data/b", failed[0].(map[string]any)["path"])
	assert.NotContains(t, string(data), "renamed:")
}
