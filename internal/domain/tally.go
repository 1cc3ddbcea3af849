package domain

import "time"

// RunStatus summarizes how a batch ended
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// IsValid checks if the status is a known value
func (s RunStatus) IsValid() bool {
	switch s {
	case RunSuccess, RunPartial, RunFailed:
		return true
	}
	return false
}

// Failure pairs a failed path with its reason
type Failure struct {
	Path   string `yaml:"path" json:"path"`
	Reason string `yaml:"reason" json:"reason"`
}

// Tally accumulates the outcome of one batch run.
// Scanned always equals Successes + Failures once the batch returns.
type Tally struct {
	Scanned   int       `yaml:"scanned" json:"scanned"`
	Successes int       `yaml:"successes" json:"successes"`
	Failures  int       `yaml:"failures" json:"failures"`
	Failed    []Failure `yaml:"failed,omitempty" json:"failed,omitempty"`

	// Renamed counts files that had to be renamed before they could be placed
	// (AppleDouble clashes, renumber fallbacks). It is a subset of Successes.
	Renamed int `yaml:"renamed,omitempty" json:"renamed,omitempty"`

	// Skipped counts files that needed no change. It is a subset of Successes.
	Skipped int `yaml:"skipped,omitempty" json:"skipped,omitempty"`

	Elapsed time.Duration `yaml:"elapsed" json:"elapsed"`
}

// RecordSuccess counts one completed file
func (t *Tally) RecordSuccess() {
	t.Successes++
}

// RecordFailure counts one failed file
func (t *Tally) RecordFailure(path, reason string) {
	t.Failures++
	t.Failed = append(t.Failed, Failure{Path: path, Reason: reason})
}

// FailedPaths returns the failed paths in recording order
func (t *Tally) FailedPaths() []string {
	paths := make([]string, 0, len(t.Failed))
	for _, f := range t.Failed {
		paths = append(paths, f.Path)
	}
	return paths
}

// Balanced reports whether every scanned file has an outcome
func (t *Tally) Balanced() bool {
	return t.Scanned == t.Successes+t.Failures
}

// Status derives the run status from the counts
func (t *Tally) Status() RunStatus {
	switch {
	case t.Failures == 0:
		return RunSuccess
	case t.Successes == 0:
		return RunFailed
	default:
		return RunPartial
	}
}
