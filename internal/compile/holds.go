package compile

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/lverweijen/fellegiholt/internal/lp"
	"github.com/lverweijen/fellegiholt/internal/rules"
)

// ErrNotFinite is returned by Holds for NaN or infinite values.
var ErrNotFinite = errors.New("compile: value is not finite")

// Holds reports whether a record satisfies n the way the compiled
// constraints see it when every field is pinned to its recorded value.
//
// Behavior:
//   - A name holds at exactly 1 and its negation at exactly 0. Any other
//     value fails the whole rule, even inside a disjunction decided by its
//     other side, as no binary variable can be pinned to it.
//   - A negated comparison needs a margin of Options.Epsilon: ~(a >= b)
//     holds only when a - b <= -Epsilon.
//   - Arithmetic is exact over the shortest decimal form of each number
//     (lp.ExactRat), as in the solver, so 0.6*200 >= 120 holds.
//   - A field with no value yields rules.ErrMissingField, even when the
//     other side of a disjunction would decide the result.
//
// Holds only reads the compiler's options and is safe for concurrent use.
func (c *Compiler) Holds(n rules.Node, lookup rules.Lookup) (bool, error) {
	ok, err := c.holds(n, lookup, false)
	if err != nil || !ok {
		return false, err
	}
	return namesBinary(n, lookup), nil
}

// namesBinary reports whether every name in n looks up to 0 or 1.
func namesBinary(n rules.Node, lookup rules.Lookup) bool {
	switch t := n.(type) {
	case rules.Name:
		v, _ := lookup(t.Field)
		return v == 0 || v == 1
	case rules.Not:
		return namesBinary(t.X, lookup)
	case rules.And:
		return namesBinary(t.L, lookup) && namesBinary(t.R, lookup)
	case rules.Or:
		return namesBinary(t.L, lookup) && namesBinary(t.R, lookup)
	default:
		return true
	}
}

func (c *Compiler) holds(n rules.Node, lookup rules.Lookup, neg bool) (bool, error) {
	eps := c.opts.Epsilon
	switch t := n.(type) {
	case rules.Name:
		v, ok := lookup(t.Field)
		if !ok {
			return false, fmt.Errorf("%w: %s", rules.ErrMissingField, t.Field)
		}
		if neg {
			return v == 0 && eps <= 1, nil
		}
		return v == 1, nil
	case rules.Not:
		if t.X == nil {
			return false, fmt.Errorf("%w: not without operand", ErrUnsupportedExpression)
		}
		return c.holds(t.X, lookup, !neg)
	case rules.And:
		if t.L == nil || t.R == nil {
			return false, fmt.Errorf("%w: and with nil operand", ErrUnsupportedExpression)
		}
		return c.pair(t.L, t.R, lookup, neg, !neg)
	case rules.Or:
		if t.L == nil || t.R == nil {
			return false, fmt.Errorf("%w: or with nil operand", ErrUnsupportedExpression)
		}
		return c.pair(t.L, t.R, lookup, neg, neg)
	case rules.Compare:
		return c.compareHolds(t, lookup, neg)
	default:
		return false, fmt.Errorf("%w: %T", ErrUnsupportedExpression, n)
	}
}

// pair evaluates both sides and combines them with "and" when both is set,
// "or" otherwise.
func (c *Compiler) pair(l, r rules.Node, lookup rules.Lookup, neg, both bool) (bool, error) {
	lv, err := c.holds(l, lookup, neg)
	if err != nil {
		return false, err
	}
	rv, err := c.holds(r, lookup, neg)
	if err != nil {
		return false, err
	}
	if both {
		return lv && rv, nil
	}
	return lv || rv, nil
}

func (c *Compiler) compareHolds(t rules.Compare, lookup rules.Lookup, neg bool) (bool, error) {
	if len(t.Ops) != 1 || len(t.Operands) != 2 {
		return false, fmt.Errorf("%w: %s", ErrComparisonChain, t)
	}
	cond := t.Operands[0].Minus(t.Operands[1])
	k, eps := cond.Const, c.opts.Epsilon

	switch op := t.Ops[0]; {
	case op == rules.OpGE && !neg:
		s, err := exactSign(cond, k, lookup)
		return s >= 0, err
	case op == rules.OpGE:
		s, err := exactSign(cond, k+eps, lookup)
		return s <= 0, err
	case op == rules.OpLE && !neg:
		s, err := exactSign(cond, k, lookup)
		return s <= 0, err
	case op == rules.OpLE:
		s, err := exactSign(cond, k+(-eps), lookup)
		return s >= 0, err
	case op == rules.OpEQ && !neg:
		s, err := exactSign(cond, k, lookup)
		return s == 0, err
	case op == rules.OpEQ:
		above, err := exactSign(cond, k+(-eps), lookup)
		if err != nil {
			return false, err
		}
		below, err := exactSign(cond, k+eps, lookup)
		return above >= 0 || below <= 0, err
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}
}

// exactSign returns the sign of Σ coef·value + k over l's terms.
func exactSign(l rules.LinExpr, k float64, lookup rules.Lookup) (int, error) {
	sum, ok := lp.ExactRat(k)
	if !ok {
		return 0, fmt.Errorf("%w: constant %v", ErrNotFinite, k)
	}
	prod := new(big.Rat)
	for _, t := range l.Terms {
		if t.Coef == 0 {
			continue
		}
		v, ok := lookup(t.Field)
		if !ok {
			return 0, fmt.Errorf("%w: %s", rules.ErrMissingField, t.Field)
		}
		a, ok := lp.ExactRat(t.Coef)
		if !ok {
			return 0, fmt.Errorf("%w: coefficient of %s", ErrNotFinite, t.Field)
		}
		x, ok := lp.ExactRat(v)
		if !ok {
			return 0, fmt.Errorf("%w: %s = %v", ErrNotFinite, t.Field, v)
		}
		sum.Add(sum, prod.Mul(a, x))
	}
	return sum.Sign(), nil
}
