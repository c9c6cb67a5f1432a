package bnb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/lverweijen/fellegiholt/internal/lp"
)

// ErrModel is returned for models the solver cannot represent exactly, such
// as coefficients that are NaN or infinite.
var ErrModel = errors.New("bnb: unsupported model")

// Options configures the search.
type Options struct {
	// TimeLimit bounds the wall time of one Solve call. Zero means no limit.
	TimeLimit time.Duration
	// NodeLimit bounds the number of explored nodes. Zero means no limit.
	NodeLimit int
	// Gap is the absolute objective improvement a node must promise to
	// survive pruning against the incumbent. Zero keeps the search exact.
	Gap float64
}

// DefaultOptions returns an exact search without budgets.
func DefaultOptions() Options { return Options{} }

// Solver implements lp.Solver with depth-first Branch-and-Bound.
type Solver struct {
	opts Options
}

// New returns a Solver. A negative or non-finite Gap counts as zero.
func New(opts Options) *Solver {
	if !(opts.Gap > 0) || math.IsInf(opts.Gap, 0) {
		opts.Gap = 0
	}
	return &Solver{opts: opts}
}

var _ lp.Solver = (*Solver)(nil)

// Solve implements lp.Solver.
func (s *Solver) Solve(ctx context.Context, p *lp.Problem) (*lp.Solution, error) {
	if p == nil {
		return nil, fmt.Errorf("bnb: nil problem")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	e, err := newEngine(p, s.opts)
	if err != nil {
		return nil, err
	}
	if s.opts.TimeLimit > 0 {
		e.useDeadline = true
		e.deadline = start.Add(s.opts.TimeLimit)
	}

	fixed := make([]int8, len(e.vars))
	for i := range fixed {
		fixed[i] = free
	}
	if err := e.dfs(ctx, fixed); err != nil {
		return nil, err
	}

	sol := &lp.Solution{Nodes: e.nodes, Elapsed: time.Since(start)}
	switch {
	case e.unbounded:
		sol.Status = lp.StatusUnbounded
		return sol, nil
	case e.limitHit && e.found:
		sol.Status = lp.StatusLimit
	case e.limitHit:
		sol.Status = lp.StatusTimeout
		return sol, nil
	case e.found:
		sol.Status = lp.StatusOptimal
	default:
		sol.Status = lp.StatusInfeasible
		return sol, nil
	}

	sol.Objective, _ = e.bestObj.Float64()
	sol.Values = make(map[*lp.Var]float64, len(e.vars))
	for j, v := range e.vars {
		sol.Values[v], _ = e.best[j].Float64()
	}
	return sol, nil
}

const free int8 = -1

var half = big.NewRat(1, 2)

// term is one non-zero coefficient of a row or of the objective.
type term struct {
	j int
	a *big.Rat
}

// row is a model constraint: Σ a·x ⋈ rhs.
type row struct {
	terms []term
	rhs   *big.Rat
	sense lp.Sense
}

// engine holds the per-call search state. All arithmetic is exact.
type engine struct {
	opts Options

	vars   []*lp.Var
	binary []bool
	rows   []row
	obj    []term
	objK   *big.Rat
	gap    *big.Rat

	useDeadline bool
	deadline    time.Time
	nodes       int

	best      []*big.Rat
	bestObj   *big.Rat
	cutoff    *big.Rat
	found     bool
	limitHit  bool
	unbounded bool
}

func newEngine(p *lp.Problem, opts Options) (*engine, error) {
	vars := p.Variables()
	index := make(map[*lp.Var]int, len(vars))
	for j, v := range vars {
		index[v] = j
	}
	e := &engine{
		opts:   opts,
		vars:   vars,
		binary: make([]bool, len(vars)),
		rows:   make([]row, 0, len(p.Constraints)),
	}
	for j, v := range vars {
		e.binary[j] = v.IsBinary()
	}

	var err error
	if e.gap, err = exact(opts.Gap, "gap"); err != nil {
		return nil, err
	}
	if e.objK, err = exact(p.Objective.Constant(), "objective constant"); err != nil {
		return nil, err
	}
	if e.obj, err = e.terms(p.Objective, index, "objective"); err != nil {
		return nil, err
	}
	for _, c := range p.Constraints {
		ts, err := e.terms(c.Expr, index, c.Name)
		if err != nil {
			return nil, err
		}
		rhs, err := exact(-c.Expr.Constant(), c.Name)
		if err != nil {
			return nil, err
		}
		e.rows = append(e.rows, row{terms: ts, rhs: rhs, sense: c.Sense})
	}
	return e, nil
}

// terms merges the coefficients of x per variable and converts them.
func (e *engine) terms(x lp.Expr, index map[*lp.Var]int, what string) ([]term, error) {
	coef := make(map[int]float64)
	var order []int
	for _, t := range x.Terms() {
		j := index[t.Var]
		if _, ok := coef[j]; !ok {
			order = append(order, j)
		}
		coef[j] += t.Coef
	}
	out := make([]term, 0, len(order))
	for _, j := range order {
		if coef[j] == 0 {
			continue
		}
		a, err := exact(coef[j], what)
		if err != nil {
			return nil, err
		}
		out = append(out, term{j: j, a: a})
	}
	return out, nil
}

func exact(f float64, what string) (*big.Rat, error) {
	r, ok := lp.ExactRat(f)
	if !ok {
		return nil, fmt.Errorf("%w: %s has coefficient %v", ErrModel, what, f)
	}
	return r, nil
}

// exhausted reports whether a budget ran out, recording it.
func (e *engine) exhausted() bool {
	if e.limitHit {
		return true
	}
	if e.opts.NodeLimit > 0 && e.nodes >= e.opts.NodeLimit {
		e.limitHit = true
	}
	if e.useDeadline && time.Now().After(e.deadline) {
		e.limitHit = true
	}
	return e.limitHit
}

func (e *engine) dfs(ctx context.Context, fixed []int8) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.exhausted() || e.unbounded {
		return nil
	}
	e.nodes++

	x, obj, st := e.relax(fixed)
	switch st {
	case lp.StatusInfeasible:
		return nil
	case lp.StatusUnbounded:
		e.unbounded = true
		return nil
	}
	if e.found && obj.Cmp(e.cutoff) >= 0 {
		return nil
	}

	j := e.mostFractional(x, fixed)
	if j < 0 {
		// Every binary is exactly 0 or 1, so x is feasible as it stands.
		e.best, e.bestObj, e.found = x, obj, true
		e.cutoff = new(big.Rat).Sub(obj, e.gap)
		return nil
	}

	first := int8(0)
	if x[j].Cmp(half) >= 0 {
		first = 1
	}
	for _, val := range [2]int8{first, 1 - first} {
		fixed[j] = val
		err := e.dfs(ctx, fixed)
		fixed[j] = free
		if err != nil {
			return err
		}
		if e.limitHit || e.unbounded {
			return nil
		}
	}
	return nil
}

// mostFractional returns the free binary farthest from integrality, or -1
// when every binary is integral. Ties go to the lowest index.
func (e *engine) mostFractional(x []*big.Rat, fixed []int8) int {
	best, bestDist := -1, -1.0
	for j, isBin := range e.binary {
		if !isBin || fixed[j] != free || x[j].IsInt() {
			continue
		}
		f, _ := x[j].Float64()
		if d := math.Abs(f - math.Round(f)); d > bestDist {
			best, bestDist = j, d
		}
	}
	return best
}
