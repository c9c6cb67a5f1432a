package compile

import "github.com/lverweijen/fellegiholt/internal/lp"

// Slack is the escape term threaded through compilation: either the
// constant zero (no escape; the zero value) or an affine combination of
// binary "branch already satisfied" flags. Constraints emitted under a
// slack S are vacuous whenever S >= 1.
type Slack struct {
	expr lp.Expr
}

// IsZero reports whether the slack is syntactically the constant 0.
func (s Slack) IsZero() bool {
	return s.expr.IsConstant() && s.expr.Constant() == 0
}

// With returns S + b.
func (s Slack) With(b *lp.Var) Slack { return Slack{expr: s.expr.Plus(b, 1)} }

// WithComplement returns S + (1 - b).
func (s Slack) WithComplement(b *lp.Var) Slack {
	return Slack{expr: s.expr.Plus(b, -1).AddConst(1)}
}

// Expr returns the slack as a linear expression.
func (s Slack) Expr() lp.Expr { return s.expr }

// String implements fmt.Stringer.
func (s Slack) String() string { return s.expr.String() }
