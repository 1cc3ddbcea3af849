package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/Tidyfs/internal/config"
	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/lock"
)

func testConfig(t *testing.T, historyEnabled bool) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.State.Enabled = historyEnabled
	cfg.State.Dir = t.TempDir()
	cfg.Lock.Dir = t.TempDir()
	return cfg
}

func newTestRunner(t *testing.T, historyEnabled bool) *Runner {
	t.Helper()
	r, err := NewRunner(testConfig(t, historyEnabled))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestNewRunner_NilConfig(t *testing.T) {
	_, err := NewRunner(nil)
	assert.Error(t, err)
}

func TestRun_RecordsHistory(t *testing.T) {
	r := newTestRunner(t, true)
	root := t.TempDir()

	outcome, err := r.Run(context.Background(), "hashrename", root, func(ctx context.Context) (domain.Tally, error) {
		return domain.Tally{
			Scanned:   3,
			Successes: 2,
			Failures:  1,
			Failed:    []domain.Failure{{Path: root + "/b.txt", Reason: "target name already exists"}},
		}, nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, outcome.RunID)
	assert.Equal(t, root, outcome.Root)
	assert.Equal(t, 2, outcome.Tally.Successes)

	runs, err := r.History("hashrename", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, outcome.RunID, runs[0].RunID)
	assert.Equal(t, domain.RunPartial, runs[0].Status)
	assert.Equal(t, 3, runs[0].Scanned)

	failures, err := r.Failures(outcome.RunID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, root+"/b.txt", failures[0].Path)

	all, err := r.History("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRun_OperationErrorIsRecordedAsFailed(t *testing.T) {
	r := newTestRunner(t, true)
	boom := errors.New("boom")

	_, err := r.Run(context.Background(), "flatten", t.TempDir(), func(ctx context.Context) (domain.Tally, error) {
		return domain.Tally{}, boom
	})
	assert.ErrorIs(t, err, boom)

	runs, err := r.History("flatten", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunFailed, runs[0].Status)
	assert.Equal(t, "boom", runs[0].Error)
}

func TestRun_SecondRunOnSameRootFails(t *testing.T) {
	cfg := testConfig(t, false)
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	root := t.TempDir()

	held, err := lock.NewFileLock(cfg.LockDir(), "hashrename", root)
	require.NoError(t, err)
	require.NoError(t, held.Acquire())
	defer held.Release()

	called := false
	_, err = r.Run(context.Background(), "hashrename", root, func(ctx context.Context) (domain.Tally, error) {
		called = true
		return domain.Tally{}, nil
	})
	assert.True(t, errors.Is(err, domain.ErrBatchInProgress))
	assert.True(t, lock.IsLockError(err))
	assert.False(t, called)

	// a different tool on the same root is not blocked
	_, err = r.Run(context.Background(), "linecount", root, func(ctx context.Context) (domain.Tally, error) {
		return domain.Tally{}, nil
	})
	assert.NoError(t, err)
}

func TestRun_ReleasesLock(t *testing.T) {
	cfg := testConfig(t, false)
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	root := t.TempDir()

	op := func(ctx context.Context) (domain.Tally, error) { return domain.Tally{Scanned: 1, Successes: 1}, nil }
	for i := 0; i < 2; i++ {
		_, err := r.Run(context.Background(), "renumber", root, op)
		require.NoError(t, err, "run %d", i)
	}

	relock, err := lock.NewFileLock(cfg.LockDir(), "renumber", root)
	require.NoError(t, err)
	assert.False(t, relock.IsLocked())
}

func TestRun_PassesContext(t *testing.T) {
	r := newTestRunner(t, false)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, err := r.Run(ctx, "eolconv", t.TempDir(), func(got context.Context) (domain.Tally, error) {
		_, ok := got.Deadline()
		assert.True(t, ok)
		return domain.Tally{}, nil
	})
	require.NoError(t, err)
}

func TestHistory_Disabled(t *testing.T) {
	r := newTestRunner(t, false)
	assert.False(t, r.HistoryEnabled())

	_, err := r.History("hashrename", 10)
	assert.Error(t, err)
	_, err = r.Failures("x")
	assert.Error(t, err)
}

// blockedDir returns a path that cannot be created because a file is in the way
func blockedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	return filepath.Join(file, "sub")
}

func TestRun_UnusableStateAndLockDirs(t *testing.T) {
	cfg := config.Default()
	cfg.State.Enabled = true
	cfg.State.Dir = blockedDir(t)
	cfg.Lock.Dir = blockedDir(t)

	r, err := NewRunner(cfg)
	require.NoError(t, err)
	defer r.Close()
	assert.False(t, r.HistoryEnabled())

	ran := false
	outcome, err := r.Run(context.Background(), "hashrename", t.TempDir(), func(ctx context.Context) (domain.Tally, error) {
		ran = true
		return domain.Tally{Scanned: 1, Successes: 1}, nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, outcome.Tally.Successes)

	_, err = r.History("hashrename", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open run history")
	_, err = r.Failures(outcome.RunID)
	assert.Error(t, err)
}
