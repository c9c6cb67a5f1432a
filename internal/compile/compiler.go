// Package compile turns edit rules into linear constraints over a shared
// variable pool using the big-M method.
//
// Every node is compiled under a slack S: the emitted constraints force the
// node to hold when S = 0 and are vacuous when S >= 1. A disjunction L | R
// introduces a fresh binary b and compiles L under S+b and R under S+(1-b),
// so at least one side is enforced. Negation is pushed down to the leaves
// (De Morgan), where comparisons are replaced by their epsilon-shifted
// strict complements.
package compile

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/lverweijen/fellegiholt/internal/lp"
	"github.com/lverweijen/fellegiholt/internal/rules"
)

// Defaults for Options.
const (
	DefaultBigM    = 1e6
	DefaultEpsilon = 0.5
)

var (
	// ErrUnsupportedOperator is returned for strict comparisons and !=.
	ErrUnsupportedOperator = errors.New("compile: unsupported comparison operator")
	// ErrComparisonChain is returned for chains such as a <= b <= c.
	ErrComparisonChain = errors.New("compile: comparison chains are not supported")
	// ErrUnsupportedExpression is returned for nil or unknown nodes.
	ErrUnsupportedExpression = errors.New("compile: unsupported expression")
	// ErrUnsatisfiable is returned for rules that reduce to a false constant.
	ErrUnsatisfiable = errors.New("compile: rule can never hold")
	// ErrOptions is returned for invalid compiler options.
	ErrOptions = errors.New("compile: invalid options")
	// ErrDuplicateRule is reported for a rule whose name is already taken.
	// Constraint and auxiliary variable names derive from rule names, so
	// they must be unique.
	ErrDuplicateRule = errors.New("compile: duplicate rule name")
)

// Options tunes the formulation.
type Options struct {
	// BigM must dominate every |lhs - rhs| reachable for any field value.
	BigM float64
	// Epsilon is the strict-inequality shift used under negation. It must be
	// smaller than the smallest meaningful gap between field values.
	Epsilon float64
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.BigM == 0 {
		o.BigM = DefaultBigM
	}
	if o.Epsilon == 0 {
		o.Epsilon = DefaultEpsilon
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) validate() error {
	switch {
	case math.IsNaN(o.BigM) || math.IsInf(o.BigM, 0) || o.BigM <= 0:
		return fmt.Errorf("%w: big_m must be a positive finite number, got %v", ErrOptions, o.BigM)
	case math.IsNaN(o.Epsilon) || o.Epsilon <= 0:
		return fmt.Errorf("%w: epsilon must be positive, got %v", ErrOptions, o.Epsilon)
	case o.Epsilon >= o.BigM:
		return fmt.Errorf("%w: epsilon %v must be smaller than big_m %v", ErrOptions, o.Epsilon, o.BigM)
	}
	return nil
}

// Constraint is a compiled constraint tagged with its originating rule.
type Constraint struct {
	lp.Constraint
	Rule  string
	Index int
}

// Diagnostic records a rule that could not be compiled.
type Diagnostic struct {
	Rule string
	Err  error
}

func (d Diagnostic) String() string { return d.Rule + ": " + d.Err.Error() }

// Compiler compiles rules against a Pool. A Compiler is not safe for
// concurrent use; compile every rule first, then share the results.
type Compiler struct {
	pool *Pool
	opts Options
}

// New returns a compiler writing field variables into pool.
func New(pool *Pool, opts Options) (*Compiler, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if pool == nil {
		pool = NewPool()
	}
	return &Compiler{pool: pool, opts: opts}, nil
}

// Pool returns the variable pool.
func (c *Compiler) Pool() *Pool { return c.pool }

// Options returns the effective options.
func (c *Compiler) Options() Options { return c.opts }

// Compile compiles one rule. Constraints are named <rule>_<i> in emission
// order. On error nothing is returned and the pool's variable domains are
// left untouched.
func (c *Compiler) Compile(r rules.Rule) ([]Constraint, error) {
	if r.Expr == nil {
		return nil, fmt.Errorf("%w: rule %q has no expression", ErrUnsupportedExpression, r.Name)
	}
	e := &emitter{c: c, rule: r.Name, binaries: map[*lp.Var]struct{}{}}
	if err := e.node(r.Expr, Slack{}, false); err != nil {
		return nil, fmt.Errorf("rule %q: %w", r.Name, err)
	}

	out := make([]Constraint, 0, len(e.out))
	for _, lc := range e.out {
		if lc.Expr.IsConstant() {
			if !lc.Satisfied(nil, 0) {
				return nil, fmt.Errorf("rule %q: %w: %s", r.Name, ErrUnsatisfiable, lc)
			}
			continue
		}
		lc.Name = r.Name + "_" + strconv.Itoa(len(out))
		out = append(out, Constraint{Constraint: lc, Rule: r.Name, Index: len(out)})
	}
	for v := range e.binaries {
		v.MarkBinary()
	}
	return out, nil
}

// CompileAll compiles every rule, skipping the ones that fail. Skipped rules
// are reported as diagnostics and logged at warn level. A rule reusing the
// name of an earlier one is skipped with ErrDuplicateRule.
func (c *Compiler) CompileAll(rs []rules.Rule) ([]Constraint, []Diagnostic) {
	var (
		out   []Constraint
		diags []Diagnostic
		seen  = make(map[string]struct{}, len(rs))
	)
	for _, r := range rs {
		_, dup := seen[r.Name]
		seen[r.Name] = struct{}{}
		var (
			cs  []Constraint
			err error
		)
		if dup {
			err = fmt.Errorf("%w: %q", ErrDuplicateRule, r.Name)
		} else {
			cs, err = c.Compile(r)
		}
		if err != nil {
			c.opts.Logger.Warn("rule skipped", zap.String("rule", r.Name), zap.Error(err))
			diags = append(diags, Diagnostic{Rule: r.Name, Err: err})
			continue
		}
		c.opts.Logger.Debug("rule compiled",
			zap.String("rule", r.Name),
			zap.Int("constraints", len(cs)),
		)
		out = append(out, cs...)
	}
	return out, diags
}

// emitter holds the per-rule compilation state. Binary marks on pooled
// field variables are staged and applied only when the whole rule compiles.
type emitter struct {
	c        *Compiler
	rule     string
	aux      int
	out      []lp.Constraint
	binaries map[*lp.Var]struct{}
}

func (e *emitter) fresh() *lp.Var {
	v := lp.NewVar(fmt.Sprintf("aux:%s#%d", e.rule, e.aux), lp.Binary)
	e.aux++
	return v
}

func (e *emitter) emit(expr lp.Expr, sense lp.Sense) {
	e.out = append(e.out, lp.Constraint{Expr: expr, Sense: sense})
}

// node emits constraints enforcing n (or ~n when neg) unless s >= 1.
func (e *emitter) node(n rules.Node, s Slack, neg bool) error {
	switch t := n.(type) {
	case rules.Name:
		v := e.c.pool.Var(t.Field)
		e.binaries[v] = struct{}{}
		if neg {
			// v - S <= 1 - eps, i.e. v = 0 once binary.
			e.emit(lp.V(v).Sub(s.Expr()).AddConst(e.c.opts.Epsilon-1), lp.LE)
		} else {
			e.emit(lp.V(v).Add(s.Expr()).AddConst(-1), lp.GE)
		}
		return nil
	case rules.Not:
		if t.X == nil {
			return fmt.Errorf("%w: not without operand", ErrUnsupportedExpression)
		}
		return e.node(t.X, s, !neg)
	case rules.And:
		if t.L == nil || t.R == nil {
			return fmt.Errorf("%w: and with nil operand", ErrUnsupportedExpression)
		}
		if neg {
			return e.either(t.L, t.R, s, true)
		}
		return e.both(t.L, t.R, s, false)
	case rules.Or:
		if t.L == nil || t.R == nil {
			return fmt.Errorf("%w: or with nil operand", ErrUnsupportedExpression)
		}
		if neg {
			return e.both(t.L, t.R, s, true)
		}
		return e.either(t.L, t.R, s, false)
	case rules.Compare:
		return e.compare(t, s, neg)
	case nil:
		return fmt.Errorf("%w: nil node", ErrUnsupportedExpression)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedExpression, n)
	}
}

func (e *emitter) both(l, r rules.Node, s Slack, neg bool) error {
	if err := e.node(l, s, neg); err != nil {
		return err
	}
	return e.node(r, s, neg)
}

func (e *emitter) either(l, r rules.Node, s Slack, neg bool) error {
	b := e.fresh()
	if err := e.node(l, s.With(b), neg); err != nil {
		return err
	}
	return e.node(r, s.WithComplement(b), neg)
}

func (e *emitter) compare(t rules.Compare, s Slack, neg bool) error {
	if len(t.Ops) == 0 || len(t.Operands) != len(t.Ops)+1 {
		return fmt.Errorf("%w: %d operands for %d operators", ErrUnsupportedExpression, len(t.Operands), len(t.Ops))
	}
	if len(t.Ops) > 1 {
		return fmt.Errorf("%w: %s", ErrComparisonChain, t)
	}
	op := t.Ops[0]
	switch op {
	case rules.OpGE, rules.OpLE, rules.OpEQ:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}

	cond := e.linear(t.Operands[0]).Sub(e.linear(t.Operands[1]))
	m, eps := e.c.opts.BigM, e.c.opts.Epsilon
	ms := s.Expr().Scale(m)

	switch {
	case op == rules.OpGE && !neg:
		e.emit(cond.Add(ms), lp.GE)
	case op == rules.OpGE:
		// cond < 0 becomes cond <= -eps.
		e.emit(cond.Sub(ms).AddConst(eps), lp.LE)
	case op == rules.OpLE && !neg:
		e.emit(cond.Sub(ms), lp.LE)
	case op == rules.OpLE:
		e.emit(cond.Add(ms).AddConst(-eps), lp.GE)
	case !neg && s.IsZero():
		e.emit(cond, lp.EQ)
	case !neg:
		e.emit(cond.Add(ms), lp.GE)
		e.emit(cond.Sub(ms), lp.LE)
	default:
		// cond != 0 is cond >= eps or cond <= -eps.
		d := e.fresh()
		e.emit(cond.AddConst(-eps).Add(s.With(d).Expr().Scale(m)), lp.GE)
		e.emit(cond.AddConst(eps).Sub(s.WithComplement(d).Expr().Scale(m)), lp.LE)
	}
	return nil
}

func (e *emitter) linear(l rules.LinExpr) lp.Expr {
	out := lp.C(l.Const)
	for _, t := range l.Terms {
		out = out.Plus(e.c.pool.Var(t.Field), t.Coef)
	}
	return out
}
