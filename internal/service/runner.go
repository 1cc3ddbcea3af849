package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Ning0612/Tidyfs/internal/config"
	"github.com/Ning0612/Tidyfs/internal/domain"
	"github.com/Ning0612/Tidyfs/internal/lock"
	"github.com/Ning0612/Tidyfs/internal/logger"
	"github.com/Ning0612/Tidyfs/internal/state"
)

// Operation is one tool run over a validated root
type Operation func(ctx context.Context) (domain.Tally, error)

// Outcome describes a finished run
type Outcome struct {
	RunID   string
	Tool    string
	Root    string
	Started time.Time
	Tally   domain.Tally
}

// Runner wraps tool runs with the per-root lock and the run history
type Runner struct {
	config  *config.Config
	history *state.Manager

	// historyErr is why history could not be opened
	historyErr error
}

// NewRunner creates a Runner. History is opened only when state is enabled;
// a history database that cannot be opened is logged and runs go unrecorded.
func NewRunner(cfg *config.Config) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	r := &Runner{config: cfg}
	if cfg.State.Enabled {
		mgr, err := state.NewManager(cfg.StateDir())
		if err != nil {
			r.historyErr = fmt.Errorf("failed to open run history: %w", err)
			logger.Get().Warn("runs will not be recorded", "error", r.historyErr)
		} else {
			r.history = mgr
		}
	}
	return r, nil
}

// HistoryEnabled reports whether runs are recorded
func (r *Runner) HistoryEnabled() bool {
	return r.history != nil
}

// Run locks root for tool, executes op and records the result.
// A second run of the same tool on the same root fails with domain.ErrBatchInProgress.
func (r *Runner) Run(ctx context.Context, tool, root string, op Operation) (Outcome, error) {
	log := logger.Get().With("tool", tool)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}

	release, err := r.lock(log, tool, absRoot)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	outcome := Outcome{
		RunID:   state.NewRunID(),
		Tool:    tool,
		Root:    absRoot,
		Started: time.Now(),
	}
	log = log.With("run_id", outcome.RunID)
	log.Info("run started", "root", absRoot)

	tally, runErr := op(ctx)
	outcome.Tally = tally

	r.record(log, outcome, runErr)

	if runErr != nil {
		log.Error("run failed", "root", absRoot, "error", runErr)
		return outcome, runErr
	}
	log.Info("run finished",
		"root", absRoot,
		"status", tally.Status(),
		"scanned", tally.Scanned,
		"failed", tally.Failures,
	)
	return outcome, nil
}

// lock takes the per-root lock. Only a lock held by another run is an error;
// a lock that cannot be written is logged and the run goes ahead unlocked.
func (r *Runner) lock(log logger.Logger, tool, absRoot string) (func(), error) {
	fileLock, err := lock.NewFileLock(r.config.LockDir(), tool, absRoot)
	if err != nil {
		log.Warn("running without lock", "root", absRoot, "error", err)
		return func() {}, nil
	}
	fileLock.SetStaleTimeout(r.config.Lock.StaleTimeout)

	log.Debug("acquiring lock", "root", absRoot, "lock", fileLock.Path())
	if err := fileLock.Acquire(); err != nil {
		if lock.IsLockError(err) {
			log.Warn("failed to acquire lock", "root", absRoot, "error", err)
			return nil, err
		}
		log.Warn("running without lock", "root", absRoot, "error", err)
		return func() {}, nil
	}

	return func() {
		if err := fileLock.Release(); err != nil {
			log.Error("failed to release lock", "root", absRoot, "error", err)
		}
	}, nil
}

// record saves the run. History problems are logged, never fatal.
func (r *Runner) record(log logger.Logger, o Outcome, runErr error) {
	if r.history == nil {
		return
	}

	rec := state.RunRecord{
		RunID:     o.RunID,
		Tool:      o.Tool,
		Root:      o.Root,
		StartTime: o.Started,
		EndTime:   time.Now(),
		Status:    o.Tally.Status(),
		Scanned:   o.Tally.Scanned,
		Succeeded: o.Tally.Successes,
		Failed:    o.Tally.Failures,
		Failures:  o.Tally.Failed,
	}
	if runErr != nil {
		rec.Status = domain.RunFailed
		rec.Error = runErr.Error()
	}

	if _, err := r.history.SaveRun(rec); err != nil {
		log.Warn("failed to save run history", "error", err)
	}
}

// History returns the latest runs of tool, or of every tool when tool is empty
func (r *Runner) History(tool string, limit int) ([]state.RunRecord, error) {
	if err := r.historyUnavailable(); err != nil {
		return nil, err
	}
	if tool == "" {
		return r.history.GetAllHistory(limit)
	}
	return r.history.GetHistory(tool, limit)
}

// Failures returns the failed files of one run
func (r *Runner) Failures(runID string) ([]domain.Failure, error) {
	if err := r.historyUnavailable(); err != nil {
		return nil, err
	}
	return r.history.GetFailures(runID)
}

func (r *Runner) historyUnavailable() error {
	if r.historyErr != nil {
		return r.historyErr
	}
	if r.history == nil {
		return fmt.Errorf("run history is disabled (state.enabled: false)")
	}
	return nil
}

// Close releases the history database
func (r *Runner) Close() error {
	if r.history == nil {
		return nil
	}
	return r.history.Close()
}
