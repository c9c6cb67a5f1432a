// Package batch runs error localization over a whole dataset and applies a
// correction policy to the flagged cells.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lverweijen/fellegiholt/internal/detector"
	"github.com/lverweijen/fellegiholt/internal/metrics"
	"github.com/lverweijen/fellegiholt/internal/record"
)

// ErrUnknownPolicy is returned for policy names other than none, remove and
// replace.
var ErrUnknownPolicy = errors.New("batch: unknown policy")

// Policy decides what happens to flagged cells.
type Policy string

const (
	// PolicyNone only reports.
	PolicyNone Policy = "none"
	// PolicyRemove overwrites flagged cells with Missing.
	PolicyRemove Policy = "remove"
	// PolicyReplace overwrites flagged cells with the suggested value.
	PolicyReplace Policy = "replace"
)

// ParsePolicy parses a policy name; "" means PolicyNone.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyNone:
		return PolicyNone, nil
	case PolicyRemove, PolicyReplace:
		return p, nil
	}
	return "", fmt.Errorf("%w %q (want none, remove or replace)", ErrUnknownPolicy, s)
}

// Locator locates errors in one record. *detector.Detector implements it.
type Locator interface {
	Locate(ctx context.Context, rec record.Record) (detector.RowResult, error)
}

// Options configures Run.
type Options struct {
	Policy Policy
	// Workers bounds concurrent row solves (default 1).
	Workers int
	// ApplyDegraded also applies the policy to rows whose solve hit a budget.
	ApplyDegraded bool
	// Job labels metrics and logs.
	Job string
	// ProgressEvery logs progress every n finished rows (0 disables).
	ProgressEvery int
	Logger        *zap.Logger
}

// RowResult is the outcome for one row.
type RowResult struct {
	detector.RowResult
	// Index is the row position in the dataset, Label its dataset label.
	Index int
	Label int
	// Err is set when the row could not be solved; the row is left untouched.
	Err error
	// Applied is set when the policy changed the row.
	Applied bool
}

// Stats summarizes a run.
type Stats struct {
	Rows         int
	Consistent   int
	Flagged      int
	FlaggedCells int
	Degraded     int
	Failed       int
	Skipped      int
	Elapsed      time.Duration
}

// Result is the outcome of Run. Dataset is the input dataset with the
// policy applied in place.
type Result struct {
	RunID   uuid.UUID
	Policy  Policy
	Dataset *record.Dataset
	Rows    []RowResult
	Stats   Stats
}

var tracer = otel.Tracer("fellegiholt.batch")

// Run locates errors in every row of ds and applies opts.Policy to it in
// place. Rows are solved independently by up to opts.Workers goroutines; a
// failing row is recorded and does not stop its siblings. When ctx is
// canceled, rows not yet started are skipped and Run returns the partial
// result together with the context error.
func Run(ctx context.Context, loc Locator, ds *record.Dataset, opts Options) (*Result, error) {
	policy, err := ParsePolicy(string(opts.Policy))
	if err != nil {
		return nil, err
	}
	if loc == nil || ds == nil {
		return nil, errors.New("batch: nil locator or dataset")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	res := &Result{
		RunID:   uuid.New(),
		Policy:  policy,
		Dataset: ds,
		Rows:    make([]RowResult, ds.Len()),
	}
	log = log.With(zap.String("run_id", res.RunID.String()), zap.String("job", opts.Job))

	ctx, span := tracer.Start(ctx, "batch.Run", trace.WithAttributes(
		attribute.String("run.id", res.RunID.String()),
		attribute.String("run.policy", string(policy)),
		attribute.Int("run.rows", ds.Len()),
		attribute.Int("run.workers", opts.Workers),
	))
	defer span.End()

	log.Info("batch: start",
		zap.Int("rows", ds.Len()),
		zap.String("policy", string(policy)),
		zap.Int("workers", opts.Workers),
	)
	start := time.Now()

	var done atomic.Int64
	started := make([]bool, ds.Len())
	g := new(errgroup.Group)
	g.SetLimit(opts.Workers)
	for i := range ds.Rows {
		if ctx.Err() != nil {
			break
		}
		started[i] = true
		g.Go(func() error {
			res.Rows[i] = runRow(ctx, loc, ds, i, policy, opts, log)
			if n := done.Add(1); opts.ProgressEvery > 0 && n%int64(opts.ProgressEvery) == 0 {
				log.Info("batch: progress", zap.Int64("done", n), zap.Int("rows", ds.Len()))
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range res.Rows {
		if !started[i] {
			res.Rows[i] = RowResult{Index: i, Label: ds.Label(i), Err: ctx.Err()}
		}
	}
	res.Stats.Elapsed = time.Since(start)
	tally(res, started)

	err = ctx.Err()
	metrics.RecordStep(opts.Job, "locate", err, res.Stats.Elapsed)
	metrics.RecordRow(opts.Job, "processed", int64(res.Stats.Rows-res.Stats.Skipped))
	metrics.RecordRow(opts.Job, "consistent", int64(res.Stats.Consistent))
	metrics.RecordRow(opts.Job, "flagged", int64(res.Stats.Flagged))
	metrics.RecordRow(opts.Job, "degraded", int64(res.Stats.Degraded))
	metrics.RecordRow(opts.Job, "failed", int64(res.Stats.Failed))

	span.SetAttributes(
		attribute.Int("run.flagged", res.Stats.Flagged),
		attribute.Int("run.failed", res.Stats.Failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("batch: canceled", zap.Int("skipped", res.Stats.Skipped), zap.Error(err))
		return res, err
	}
	span.SetStatus(codes.Ok, "")

	log.Info("batch: done",
		zap.Int("rows", res.Stats.Rows),
		zap.Int("consistent", res.Stats.Consistent),
		zap.Int("flagged_rows", res.Stats.Flagged),
		zap.Int("flagged_cells", res.Stats.FlaggedCells),
		zap.Int("degraded", res.Stats.Degraded),
		zap.Int("failed", res.Stats.Failed),
		zap.Duration("elapsed", res.Stats.Elapsed),
	)
	return res, nil
}

func runRow(ctx context.Context, loc Locator, ds *record.Dataset, i int, policy Policy, opts Options, log *zap.Logger) RowResult {
	out := RowResult{Index: i, Label: ds.Label(i)}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	t0 := time.Now()
	rr, err := loc.Locate(ctx, ds.Rows[i])
	out.RowResult = rr
	status := rr.Status.String()
	switch {
	case err != nil:
		status = "error"
	case rr.Consistent:
		status = "consistent"
	}
	metrics.RecordSolve(opts.Job, status, time.Since(t0))

	if err != nil {
		out.Err = fmt.Errorf("row %d: %w", ds.Label(i), err)
		log.Warn("batch: row failed", zap.Int("row", ds.Label(i)), zap.Error(err))
		return out
	}
	for _, f := range rr.Flagged() {
		metrics.RecordFlag(opts.Job, f)
	}
	if rr.Degraded {
		log.Warn("batch: row solved within budget only", zap.Int("row", ds.Label(i)), zap.Strings("flagged", rr.Flagged()))
		if !opts.ApplyDegraded {
			return out
		}
	}
	out.Applied = apply(ds.Rows[i], rr, policy)
	return out
}

// apply overwrites the flagged cells of r according to policy.
func apply(r record.Record, rr detector.RowResult, policy Policy) bool {
	changed := false
	for f, c := range rr.Corrections {
		if !c.IsError {
			continue
		}
		switch policy {
		case PolicyRemove:
			r[f] = record.Missing
			changed = true
		case PolicyReplace:
			if c.Suggested != nil {
				r[f] = record.Num(*c.Suggested)
				changed = true
			}
		}
	}
	return changed
}

func tally(res *Result, started []bool) {
	s := &res.Stats
	s.Rows = len(res.Rows)
	for i, r := range res.Rows {
		switch {
		case !started[i]:
			s.Skipped++
			continue
		case r.Err != nil:
			s.Failed++
			continue
		case r.Consistent:
			s.Consistent++
		}
		if n := len(r.Flagged()); n > 0 {
			s.Flagged++
			s.FlaggedCells += n
		}
		if r.Degraded {
			s.Degraded++
		}
	}
}

// Errors returns the boolean error table: one map per row, field to
// whether it was flagged. Rows that failed have a nil map.
func (r *Result) Errors() []map[string]bool {
	out := make([]map[string]bool, len(r.Rows))
	for i, row := range r.Rows {
		if row.Err != nil {
			continue
		}
		m := make(map[string]bool, len(row.Corrections))
		for f, c := range row.Corrections {
			m[f] = c.IsError
		}
		out[i] = m
	}
	return out
}

// Correction is one flagged cell.
type Correction struct {
	Row       int
	Field     string
	Original  record.Value
	Suggested *float64
	Degraded  bool
}

// Corrections returns every flagged cell ordered by row, then field.
// original holds the pre-policy values and may be nil, in which case the
// Original column is left missing.
func (r *Result) Corrections(original *record.Dataset) []Correction {
	var out []Correction
	for _, row := range r.Rows {
		if row.Err != nil {
			continue
		}
		for _, f := range row.Flagged() {
			c := Correction{Row: row.Label, Field: f, Suggested: row.Corrections[f].Suggested, Degraded: row.Degraded}
			if original != nil && row.Index < original.Len() {
				c.Original = original.Rows[row.Index][f]
			}
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Field < out[j].Field
	})
	return out
}

// Failures returns the rows that could not be solved.
func (r *Result) Failures() []RowResult {
	var out []RowResult
	for _, row := range r.Rows {
		if row.Err != nil {
			out = append(out, row)
		}
	}
	return out
}
