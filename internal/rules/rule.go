package rules

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrMissingField is returned by Eval when a referenced field has no value.
	ErrMissingField = errors.New("rules: field has no value")
	// ErrMalformed is returned for structurally invalid trees (nil children,
	// operand/operator count mismatch).
	ErrMalformed = errors.New("rules: malformed expression")
)

// Rule is a named edit rule. Rules are immutable once built.
type Rule struct {
	Name string
	Tags []string
	Expr Node
}

// HasTag reports whether the rule carries tag.
func (r Rule) HasTag(tag string) bool { return slices.Contains(r.Tags, tag) }

// String implements fmt.Stringer.
func (r Rule) String() string {
	if r.Expr == nil {
		return r.Name + ": <nil>"
	}
	return r.Name + ": " + r.Expr.String()
}

// FilterTags returns the rules carrying at least one of tags. With no tags
// every rule is returned.
func FilterTags(rs []Rule, tags ...string) []Rule {
	if len(tags) == 0 {
		return rs
	}
	out := make([]Rule, 0, len(rs))
	for _, r := range rs {
		for _, t := range tags {
			if r.HasTag(t) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Lookup resolves a field to its numeric value. ok is false for missing
// fields.
type Lookup func(field string) (value float64, ok bool)

// Eval evaluates n against a record. Comparisons use an absolute tolerance:
// a >= b holds when a-b >= -tol, a == b when |a-b| <= tol, a > b when a-b > tol.
// Boolean names hold when their value is >= 0.5. Comparison chains hold
// when every adjacent pair holds.
func Eval(n Node, lookup Lookup, tol float64) (bool, error) {
	switch t := n.(type) {
	case Name:
		v, ok := lookup(t.Field)
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrMissingField, t.Field)
		}
		return v >= 0.5, nil
	case Not:
		if t.X == nil {
			return false, fmt.Errorf("%w: not without operand", ErrMalformed)
		}
		v, err := Eval(t.X, lookup, tol)
		return !v, err
	case And:
		if t.L == nil || t.R == nil {
			return false, fmt.Errorf("%w: and with nil operand", ErrMalformed)
		}
		l, err := Eval(t.L, lookup, tol)
		if err != nil {
			return false, err
		}
		r, err := Eval(t.R, lookup, tol)
		return l && r, err
	case Or:
		if t.L == nil || t.R == nil {
			return false, fmt.Errorf("%w: or with nil operand", ErrMalformed)
		}
		l, err := Eval(t.L, lookup, tol)
		if err != nil {
			return false, err
		}
		r, err := Eval(t.R, lookup, tol)
		return l || r, err
	case Compare:
		if len(t.Ops) == 0 || len(t.Operands) != len(t.Ops)+1 {
			return false, fmt.Errorf("%w: %d operands for %d operators", ErrMalformed, len(t.Operands), len(t.Ops))
		}
		vals := make([]float64, len(t.Operands))
		for i, o := range t.Operands {
			v, err := EvalLinear(o, lookup)
			if err != nil {
				return false, err
			}
			vals[i] = v
		}
		for i, op := range t.Ops {
			if !holds(vals[i]-vals[i+1], op, tol) {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w: node type %T", ErrMalformed, n)
	}
}

// EvalLinear evaluates an affine field expression.
func EvalLinear(l LinExpr, lookup Lookup) (float64, error) {
	sum := l.Const
	for _, t := range l.Terms {
		if t.Coef == 0 {
			continue
		}
		v, ok := lookup(t.Field)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingField, t.Field)
		}
		sum += t.Coef * v
	}
	return sum, nil
}

func holds(d float64, op Op, tol float64) bool {
	switch op {
	case OpGE:
		return d >= -tol
	case OpLE:
		return d <= tol
	case OpEQ:
		return math.Abs(d) <= tol
	case OpGT:
		return d > tol
	case OpLT:
		return d < -tol
	case OpNE:
		return math.Abs(d) > tol
	}
	return false
}
