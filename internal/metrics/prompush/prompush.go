// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Runs are short-lived batch jobs, so collected metrics are pushed to a
// Pushgateway on Flush instead of being exposed on a scrape endpoint. The job
// label is the Pushgateway grouping key; the remaining labels map onto
// CounterVec and SummaryVec collectors.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/lverweijen/fellegiholt/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec // fh_step_total
	stepDuration *prometheus.SummaryVec // fh_step_duration_seconds

	rowCounter  *prometheus.CounterVec // fh_rows_total
	flagCounter *prometheus.CounterVec // fh_flags_total

	solveCounter  *prometheus.CounterVec // fh_solve_total
	solveDuration *prometheus.SummaryVec // fh_solve_duration_seconds
}

var objectives = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

// NewBackend constructs a Prometheus Pushgateway backend.
//
// Behavior:
//   - gatewayURL is the base URL of the Pushgateway and is required.
//   - jobName becomes the Pushgateway "job" grouping key; empty means
//     "fellegiholt". Because it is the grouping key, the "job" label passed
//     to IncCounter and ObserveHistogram is not repeated on the series.
//   - Collectors live in a private registry, so the process default
//     registry and its Go runtime metrics are never pushed.
//
// NewBackend does no I/O; the gateway is first contacted by Flush.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "fellegiholt"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Run step executions, partitioned by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDurationSeconds,
			Help:       "Duration of run steps in seconds, partitioned by step and status.",
			Objectives: objectives,
		}, []string{"step", "status"}),
		rowCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Row-level counts per kind (processed, consistent, flagged, degraded, failed).",
		}, []string{"kind"}),
		flagCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.FlagsTotal,
			Help: "Cells flagged as erroneous, partitioned by field.",
		}, []string{"field"}),
		solveCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.SolveTotal,
			Help: "Row model solves, partitioned by terminal status.",
		}, []string{"status"}),
		solveDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.SolveDurationSeconds,
			Help:       "Row model solve time in seconds, partitioned by terminal status.",
			Objectives: objectives,
		}, []string{"status"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":  b.stepCounter,
		"step summary":  b.stepDuration,
		"row counter":   b.rowCounter,
		"flag counter":  b.flagCounter,
		"solve counter": b.solveCounter,
		"solve summary": b.solveDuration,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter == nil {
			return
		}
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)

	case metrics.RowsTotal:
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["kind"]).Add(delta)

	case metrics.FlagsTotal:
		if b.flagCounter == nil {
			return
		}
		b.flagCounter.WithLabelValues(labels["field"]).Add(delta)

	case metrics.SolveTotal:
		if b.solveCounter == nil {
			return
		}
		b.solveCounter.WithLabelValues(labels["status"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.StepDurationSeconds:
		if b.stepDuration == nil {
			return
		}
		b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
	case metrics.SolveDurationSeconds:
		if b.solveDuration == nil {
			return
		}
		b.solveDuration.WithLabelValues(labels["status"]).Observe(value)
	}
}

// Flush pushes the current registry to the Pushgateway.
//
// Behavior:
//   - Push replaces every series of the job's group, so a second Flush
//     sends cumulative values rather than increments.
//   - Network and gateway errors are returned as is.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
