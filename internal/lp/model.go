package lp

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Sense is the comparison of a constraint expression against zero.
type Sense int8

const (
	// LE means Expr <= 0.
	LE Sense = -1
	// EQ means Expr == 0.
	EQ Sense = 0
	// GE means Expr >= 0.
	GE Sense = 1
)

// String implements fmt.Stringer.
func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case EQ:
		return "=="
	case GE:
		return ">="
	default:
		return "sense(" + strconv.Itoa(int(s)) + ")"
	}
}

// Constraint is the linear relation "Expr Sense 0".
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
}

// NewConstraint builds the constraint lhs ⋈ rhs, moving everything to the
// left-hand side.
func NewConstraint(name string, lhs Expr, sense Sense, rhs Expr) Constraint {
	return Constraint{Name: name, Expr: lhs.Sub(rhs), Sense: sense}
}

// Slack returns how far the assignment is from violating the constraint
// (negative when violated). For equalities it is -|Expr|.
func (c Constraint) Slack(values map[*Var]float64) float64 {
	v := c.Expr.Eval(values)
	switch c.Sense {
	case GE:
		return v
	case LE:
		return -v
	default:
		return -math.Abs(v)
	}
}

// Satisfied reports whether the assignment satisfies the constraint within tol.
func (c Constraint) Satisfied(values map[*Var]float64, tol float64) bool {
	return c.Slack(values) >= -tol
}

// String renders the constraint, e.g. "profit_0: profit - turnover + cost == 0".
func (c Constraint) String() string {
	lhs := Expr{terms: c.Expr.terms}
	rhs := 0 - c.Expr.constant
	s := fmt.Sprintf("%s %s %s", lhs, c.Sense, formatFloat(rhs))
	if c.Name != "" {
		return c.Name + ": " + s
	}
	return s
}

// Problem is a minimization model.
type Problem struct {
	Name        string
	Objective   Expr
	Constraints []Constraint
}

// NewProblem returns an empty minimization problem.
func NewProblem(name string) *Problem { return &Problem{Name: name} }

// Add appends constraints.
func (p *Problem) Add(cs ...Constraint) { p.Constraints = append(p.Constraints, cs...) }

// Variables returns every variable referenced by the objective or a
// constraint, in first-appearance order.
func (p *Problem) Variables() []*Var {
	seen := make(map[*Var]struct{})
	var out []*Var
	visit := func(e Expr) {
		for _, t := range e.terms {
			if _, ok := seen[t.Var]; ok {
				continue
			}
			seen[t.Var] = struct{}{}
			out = append(out, t.Var)
		}
	}
	visit(p.Objective)
	for _, c := range p.Constraints {
		visit(c.Expr)
	}
	return out
}

// Violations returns the constraints not satisfied within tol, plus an
// entry for every binary variable whose value is not within tol of 0 or 1.
func (p *Problem) Violations(values map[*Var]float64, tol float64) []string {
	var out []string
	for _, c := range p.Constraints {
		if !c.Satisfied(values, tol) {
			out = append(out, c.String())
		}
	}
	for _, v := range p.Variables() {
		if !v.IsBinary() {
			continue
		}
		x := values[v]
		if math.Abs(x) > tol && math.Abs(x-1) > tol {
			out = append(out, fmt.Sprintf("%s = %s is not binary", v.name, formatFloat(x)))
		}
	}
	return out
}

// Status is the terminal state of a solve.
type Status uint8

const (
	// StatusOptimal: the returned assignment is proven optimal.
	StatusOptimal Status = iota
	// StatusLimit: a time or node budget ran out; the returned assignment is
	// the best feasible one found but optimality is not guaranteed.
	StatusLimit
	// StatusTimeout: a budget ran out before any feasible assignment was found.
	StatusTimeout
	// StatusInfeasible: the model has no feasible assignment.
	StatusInfeasible
	// StatusUnbounded: the objective is unbounded below.
	StatusUnbounded
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusLimit:
		return "limit"
	case StatusTimeout:
		return "timeout"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// HasSolution reports whether the status carries a feasible assignment.
func (s Status) HasSolution() bool { return s == StatusOptimal || s == StatusLimit }

// Solution is a solver's terminal answer.
type Solution struct {
	Status    Status
	Objective float64
	Values    map[*Var]float64
	Nodes     int
	Elapsed   time.Duration
}

// Value returns the solved value of v (0 if absent).
func (s *Solution) Value(v *Var) float64 {
	if s == nil {
		return 0
	}
	return s.Values[v]
}

// ByName returns the assignment keyed by variable name.
func (s *Solution) ByName() map[string]float64 {
	if s == nil {
		return nil
	}
	out := make(map[string]float64, len(s.Values))
	for v, x := range s.Values {
		out[v.name] = x
	}
	return out
}

// Solver solves a Problem. Implementations must not retain p after Solve
// returns and must be safe for concurrent calls on distinct problems.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Solution, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, p *Problem) (*Solution, error)

// Solve implements Solver.
func (f SolverFunc) Solve(ctx context.Context, p *Problem) (*Solution, error) { return f(ctx, p) }
