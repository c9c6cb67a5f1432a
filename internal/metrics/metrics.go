// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from error-localization runs.
//
// It exposes a narrow interface (Backend) focused on counters and timing data
// (histograms), and a global, pluggable backend that defaults to a no-op
// implementation, so metrics are always safe to call even when no real
// backend is configured. Concrete metric systems live in subpackages
// (prompush, datadog).
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal            = "fh_step_total"
	StepDurationSeconds  = "fh_step_duration_seconds"
	RowsTotal            = "fh_rows_total"
	FlagsTotal           = "fh_flags_total"
	SolveTotal           = "fh_solve_total"
	SolveDurationSeconds = "fh_solve_duration_seconds"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend.
//
// Behavior:
//   - Passing nil keeps the existing backend.
//   - The swap is atomic with respect to the Record functions. Values
//     recorded on the previous backend are not carried over, so install the
//     backend before the run starts and Flush it at the end.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Reset restores the no-op backend.
func Reset() {
	mu.Lock()
	backend = nopBackend{}
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep measures latency + success/failure of a run step
// (load_rules, read_dataset, locate, write_output).
func RecordStep(job, step string, err error, d time.Duration) {
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": statusOf(err),
	}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRow increments a row-level counter for the given job and kind.
//
// Kinds mirror the batch summary:
//   - "processed"
//   - "consistent"
//   - "flagged"
//   - "degraded"
//   - "failed"
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordFlag counts one flagged cell of field.
func RecordFlag(job, field string) {
	current().IncCounter(FlagsTotal, 1, Labels{
		"job":   job,
		"field": field,
	})
}

// RecordSolve records one solver invocation with its terminal status
// ("optimal", "limit", "timeout", "infeasible", "error", ...).
//
// Behavior:
//   - Increments SolveTotal and observes d in SolveDurationSeconds, both
//     labelled by job and status.
//   - Rows answered by the consistency check without a solve are recorded
//     with status "consistent", so the series covers every located row.
func RecordSolve(job, status string, d time.Duration) {
	lbls := Labels{
		"job":    job,
		"status": status,
	}
	b := current()
	b.IncCounter(SolveTotal, 1, lbls)
	b.ObserveHistogram(SolveDurationSeconds, d.Seconds(), lbls)
}

func statusOf(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
