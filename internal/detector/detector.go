// Package detector locates erroneous fields in records with the
// Fellegi-Holt method: it finds a minimum-weight set of fields that, once
// freed, let the remaining values satisfy every edit rule.
//
// A Detector compiles its rules once in New. Locate then builds a fresh
// model per record (compiled rule constraints plus per-field linkage
// constraints), solves it, and reads the flagged fields and suggested values
// off the solution. Locate is safe for concurrent use.
package detector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lverweijen/fellegiholt/internal/compile"
	"github.com/lverweijen/fellegiholt/internal/lp"
	"github.com/lverweijen/fellegiholt/internal/lp/bnb"
	"github.com/lverweijen/fellegiholt/internal/record"
	"github.com/lverweijen/fellegiholt/internal/rules"
)

var (
	// ErrInfeasible means the row model had no solution. The formulation is
	// always feasible when every rule can hold for some values, so this
	// points at a BigM too small for the data or at contradictory rules.
	ErrInfeasible = errors.New("detector: row model is infeasible")
	// ErrSolverTimeout means a solve budget ran out before any feasible
	// assignment was found.
	ErrSolverTimeout = errors.New("detector: solver budget exhausted without a solution")
	// ErrSolver wraps unexpected solver failures.
	ErrSolver = errors.New("detector: solver failure")
	// ErrOptions is returned by New for invalid options.
	ErrOptions = errors.New("detector: invalid options")
)

// Options configures a Detector. The zero value is usable.
type Options struct {
	// BigM and Epsilon are passed to the rule compiler and BigM also bounds
	// how far a freed field may move from its recorded value.
	BigM    float64
	Epsilon float64

	TieBreak TieBreak
	Seed     int64
	// Weights holds per-field base weights (default 1). Must be positive.
	Weights map[string]float64

	// Tags, when set, restricts the detector to rules carrying one of them.
	Tags []string

	// Solver defaults to a branch-and-bound solver with the limits below.
	Solver    lp.Solver
	TimeLimit time.Duration
	NodeLimit int

	// AlwaysSolve disables the shortcut that skips rows already satisfying
	// every rule.
	AlwaysSolve bool

	Logger *zap.Logger
}

// Correction is the verdict for one field of a record.
type Correction struct {
	IsError bool
	// Suggested is the solved value for flagged fields, nil otherwise.
	Suggested *float64
}

// RowResult is the outcome of Locate for one record.
type RowResult struct {
	Corrections map[string]Correction
	Status      lp.Status
	// Degraded is set when a budget ran out and the corrections come from
	// the best assignment found rather than a proven optimum.
	Degraded bool
	// Consistent is set when the record already satisfied every rule and
	// no model was solved.
	Consistent bool
	Objective  float64
	// Solution holds every solved variable by name.
	Solution map[string]float64
	// Violated lists the rules the record broke before correction. Rules
	// that reference a missing field are not evaluated.
	Violated []string
	Nodes    int
	Elapsed  time.Duration
}

// Flagged returns the flagged field names, sorted.
func (r RowResult) Flagged() []string {
	var out []string
	for f, c := range r.Corrections {
		if c.IsError {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// FieldLink ties one present field of a record to its decision variable and
// error indicator.
type FieldLink struct {
	Field  string
	Value  float64
	Var    *lp.Var
	Err    *lp.Var
	Weight float64
}

// Detector locates errors against a fixed rule set.
type Detector struct {
	opts        Options
	pool        *compile.Pool
	compiler    *compile.Compiler
	fields      []string
	rules       []rules.Rule
	booleans    [][]string // per rule, its fields compiled as binaries
	constraints []compile.Constraint
	diags       []compile.Diagnostic
	weigher     *Weigher
	solver      lp.Solver
	log         *zap.Logger
}

// New compiles rs and returns a detector. Rules that fail to compile are
// skipped and reported by Diagnostics. Rule names must be unique.
func New(rs []rules.Rule, opts Options) (*Detector, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	mode, err := ParseTieBreak(string(opts.TieBreak))
	if err != nil {
		return nil, err
	}
	opts.TieBreak = mode
	for f, w := range opts.Weights {
		if !(w > 0) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: weight of %q must be positive, got %v", ErrOptions, f, w)
		}
	}
	if opts.TimeLimit < 0 || opts.NodeLimit < 0 {
		return nil, fmt.Errorf("%w: negative solver limit", ErrOptions)
	}
	seen := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("%w: %w: %q", ErrOptions, compile.ErrDuplicateRule, r.Name)
		}
		seen[r.Name] = struct{}{}
	}

	pool := compile.NewPool()
	c, err := compile.New(pool, compile.Options{BigM: opts.BigM, Epsilon: opts.Epsilon, Logger: opts.Logger})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOptions, err)
	}
	eff := c.Options()
	opts.BigM, opts.Epsilon = eff.BigM, eff.Epsilon

	selected := rules.FilterTags(rs, opts.Tags...)
	constraints, diags := c.CompileAll(selected)

	d := &Detector{
		opts:        opts,
		pool:        pool,
		compiler:    c,
		fields:      pool.Fields(),
		constraints: constraints,
		diags:       diags,
		weigher:     NewWeigher(opts.TieBreak, opts.Seed, opts.Weights),
		solver:      opts.Solver,
		log:         opts.Logger,
	}
	skipped := make(map[string]struct{}, len(diags))
	for _, dg := range diags {
		skipped[dg.Rule] = struct{}{}
	}
	for _, r := range selected {
		if _, ok := skipped[r.Name]; ok {
			continue
		}
		var bools []string
		for _, f := range rules.Fields(r.Expr) {
			if v, ok := pool.Lookup(f); ok && v.IsBinary() {
				bools = append(bools, f)
			}
		}
		d.rules = append(d.rules, r)
		d.booleans = append(d.booleans, bools)
	}
	if d.solver == nil {
		d.solver = bnb.New(bnb.Options{TimeLimit: opts.TimeLimit, NodeLimit: opts.NodeLimit})
	}

	d.log.Info("detector: rules compiled",
		zap.Int("rules", len(d.rules)),
		zap.Int("skipped", len(diags)),
		zap.Int("constraints", len(constraints)),
		zap.Int("fields", len(d.fields)),
	)
	return d, nil
}

// Rules returns the rules that compiled.
func (d *Detector) Rules() []rules.Rule { return d.rules }

// Constraints returns the compiled rule constraints.
func (d *Detector) Constraints() []compile.Constraint { return d.constraints }

// Diagnostics returns the rules skipped at compile time.
func (d *Detector) Diagnostics() []compile.Diagnostic { return d.diags }

// Fields returns the fields referenced by the compiled rules.
func (d *Detector) Fields() []string { return append([]string(nil), d.fields...) }

// Options returns the effective options.
func (d *Detector) Options() Options { return d.opts }

// Formulate builds the row model for rec: the compiled constraints, plus for
// every present rule field f an error indicator err:f with
//
//	var(f) <= v_f + M*err_f   (f_ub)
//	var(f) >= v_f - M*err_f   (f_lb)
//
// and the objective sum of w_f*err_f. Missing fields and fields no rule
// references get no indicator.
func (d *Detector) Formulate(rec record.Record) (*lp.Problem, []FieldLink) {
	var key uint64
	if d.opts.TieBreak == TieBreakRandom {
		key = RecordKey(rec, d.fields)
	}
	p := lp.NewProblem("row")
	for _, c := range d.constraints {
		p.Add(c.Constraint)
	}
	m := d.opts.BigM
	var links []FieldLink
	obj := lp.Expr{}
	for _, f := range d.fields {
		val, ok := rec.Lookup(f)
		if !ok {
			continue
		}
		v, _ := d.pool.Lookup(f)
		e := lp.NewVar("err:"+f, lp.Binary)
		w := d.weigher.Weight(f, key)
		obj = obj.Plus(e, w)
		p.Add(
			lp.Constraint{Name: f + "_ub", Expr: lp.V(v).Plus(e, -m).AddConst(-val), Sense: lp.LE},
			lp.Constraint{Name: f + "_lb", Expr: lp.V(v).Plus(e, m).AddConst(-val), Sense: lp.GE},
		)
		links = append(links, FieldLink{Field: f, Value: val, Var: v, Err: e, Weight: w})
	}
	p.Objective = obj
	return p, links
}

// Violated checks every compiled rule against rec and returns the names of
// the broken ones. complete is false when some rule could not be evaluated
// because it references a missing field.
//
// Rules are checked with the semantics of the row model (Compiler.Holds),
// so a rule passes here exactly when the model can keep every field of it
// at its recorded value. A rule also fails when one of its boolean fields
// holds a value other than 0 or 1.
func (d *Detector) Violated(rec record.Record) (violated []string, complete bool) {
	complete = true
	for i, r := range d.rules {
		ok, err := d.compiler.Holds(r.Expr, rec.Lookup)
		if err != nil {
			complete = false
			continue
		}
		if !ok || !binaryValues(rec, d.booleans[i]) {
			violated = append(violated, r.Name)
		}
	}
	return violated, complete
}

func binaryValues(rec record.Record, fields []string) bool {
	for _, f := range fields {
		if v, ok := rec.Lookup(f); ok && v != 0 && v != 1 {
			return false
		}
	}
	return true
}

// Locate finds the minimum-weight set of fields to free in rec.
func (d *Detector) Locate(ctx context.Context, rec record.Record) (RowResult, error) {
	ctx, span := startLocateSpan(ctx, len(rec))
	defer span.End()

	violated, complete := d.Violated(rec)
	res := RowResult{Violated: violated}

	if complete && len(violated) == 0 && !d.opts.AlwaysSolve {
		res.Status = lp.StatusOptimal
		res.Consistent = true
		res.Corrections = make(map[string]Correction)
		for _, f := range d.fields {
			if _, ok := rec.Lookup(f); ok {
				res.Corrections[f] = Correction{}
			}
		}
		setLocateSpanResult(span, res, nil)
		return res, nil
	}

	p, links := d.Formulate(rec)
	sol, err := d.solver.Solve(ctx, p)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			setLocateSpanResult(span, res, err)
			return res, err
		}
		err = fmt.Errorf("%w: %w", ErrSolver, err)
		setLocateSpanResult(span, res, err)
		return res, err
	}
	res.Status = sol.Status
	res.Nodes = sol.Nodes
	res.Elapsed = sol.Elapsed

	switch sol.Status {
	case lp.StatusOptimal:
	case lp.StatusLimit:
		res.Degraded = true
	case lp.StatusTimeout:
		err = fmt.Errorf("%w after %d nodes (%s)", ErrSolverTimeout, sol.Nodes, sol.Elapsed)
	case lp.StatusInfeasible:
		err = fmt.Errorf("%w: %d constraints over %d fields; check big_m against the data range", ErrInfeasible, len(p.Constraints), len(links))
	default:
		err = fmt.Errorf("%w: status %s", ErrSolver, sol.Status)
	}
	if err != nil {
		setLocateSpanResult(span, res, err)
		return res, err
	}

	interpret(&res, sol, links)
	setLocateSpanResult(span, res, nil)
	return res, nil
}

func interpret(res *RowResult, sol *lp.Solution, links []FieldLink) {
	res.Objective = sol.Objective
	res.Solution = sol.ByName()
	res.Corrections = make(map[string]Correction, len(links))
	for _, l := range links {
		if sol.Value(l.Err) < 0.5 {
			res.Corrections[l.Field] = Correction{}
			continue
		}
		v := snap(sol.Value(l.Var), l.Var.IsBinary())
		res.Corrections[l.Field] = Correction{IsError: true, Suggested: &v}
	}
}

// snap removes solver round-off from a suggested value: binaries become 0
// or 1 and values within 1e-9 (relative) of an integer become that integer.
func snap(x float64, binary bool) float64 {
	r := math.Round(x)
	if binary || math.Abs(x-r) <= 1e-9*math.Max(1, math.Abs(x)) {
		return r
	}
	return x
}
