// Package types defines the core domain model shared across fontmake-mp.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OutputKind is a font binary format the compiler can emit.
type OutputKind string

const (
	KindTTF OutputKind = "ttf" // TrueType outlines (master_ttf)
	KindOTF OutputKind = "otf" // CFF outlines (master_otf)
)

// ErrInvalidOutputKind is returned when a format name is not recognised.
var ErrInvalidOutputKind = errors.New("invalid output kind")

// ParseOutputKind converts a user-supplied format name into an OutputKind.
func ParseOutputKind(s string) (OutputKind, error) {
	switch OutputKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindTTF:
		return KindTTF, nil
	case KindOTF:
		return KindOTF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOutputKind, s)
}

// OutputKinds is an ordered set of requested formats, fixed for one run.
type OutputKinds []OutputKind

// DefaultOutputKinds returns the formats built when none are selected.
func DefaultOutputKinds() OutputKinds {
	return OutputKinds{KindTTF, KindOTF}
}

// ParseOutputKinds parses names and drops duplicates, keeping first-seen order.
func ParseOutputKinds(names []string) (OutputKinds, error) {
	kinds := make(OutputKinds, 0, len(names))
	for _, name := range names {
		k, err := ParseOutputKind(name)
		if err != nil {
			return nil, err
		}
		if !kinds.Contains(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// Contains reports whether k is part of the set.
func (ks OutputKinds) Contains(k OutputKind) bool {
	for _, existing := range ks {
		if existing == k {
			return true
		}
	}
	return false
}

// Strings returns the formats as plain strings, e.g. for command arguments.
func (ks OutputKinds) Strings() []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = string(k)
	}
	return out
}

func (ks OutputKinds) String() string {
	return strings.Join(ks.Strings(), ",")
}

// Job is one build request for a single UFO source directory.
// It is immutable once created and consumed exactly once by a runner.
type Job struct {
	SourcePath  string      `json:"source_path"`
	OutputKinds OutputKinds `json:"output_kinds"`
}

// JobOutcome is the recorded result of one Job.
type JobOutcome struct {
	SourcePath string        `json:"source_path"`
	Succeeded  bool          `json:"succeeded"`
	Diagnostic string        `json:"diagnostic,omitempty"` // set only on failure
	Trace      string        `json:"trace,omitempty"`      // detailed failure rendering, when enabled
	Duration   time.Duration `json:"duration"`
	Worker     int           `json:"worker"` // 0 when run on the calling goroutine
}

// RunResult aggregates all outcomes of one invocation.
type RunResult struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Workers   int           `json:"workers"`
	Pooled    bool          `json:"pooled"`
	Kinds     OutputKinds   `json:"output_kinds"`
	Outcomes  []JobOutcome  `json:"outcomes"`
}

// AnyFailed reports whether at least one job failed.
func (r RunResult) AnyFailed() bool {
	return r.Failed() > 0
}

// Failed returns the number of failed jobs.
func (r RunResult) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Succeeded {
			n++
		}
	}
	return n
}

// Succeeded returns the number of successful jobs.
func (r RunResult) Succeeded() int {
	return len(r.Outcomes) - r.Failed()
}

// ExitCode maps the run to a process exit status: 0 if every job succeeded, 1 otherwise.
func (r RunResult) ExitCode() int {
	if r.AnyFailed() {
		return 1
	}
	return 0
}
