package lp

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpr_Arithmetic(t *testing.T) {
	t.Parallel()

	x := NewVar("x", Continuous)
	y := NewVar("y", Continuous)

	e := V(x).Add(V(y).Scale(2)).AddConst(3) // x + 2y + 3
	assert.Equal(t, "x + 2*y + 3", e.String())
	assert.Equal(t, 2.0, e.Coef(y))

	// Cancelling a term drops it entirely.
	d := e.Sub(V(x))
	assert.Equal(t, 0.0, d.Coef(x))
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, "2*y + 3", d.String())

	// Operations never alias the receiver.
	_ = e.Plus(x, 10)
	assert.Equal(t, 1.0, e.Coef(x))

	assert.Equal(t, 3+1+2*2.0, e.Eval(map[*Var]float64{x: 1, y: 2}))
	assert.True(t, C(4).IsConstant())
	assert.Equal(t, "-x - 1", V(x).Scale(-1).AddConst(-1).String())
}

func TestConstraint_SlackAndString(t *testing.T) {
	t.Parallel()

	x := NewVar("x", Continuous)
	ge := NewConstraint("c", V(x), GE, C(5))
	le := NewConstraint("d", V(x), LE, C(5))
	eq := NewConstraint("e", V(x), EQ, C(5))

	vals := map[*Var]float64{x: 4}
	assert.InDelta(t, -1, ge.Slack(vals), 1e-12)
	assert.InDelta(t, 1, le.Slack(vals), 1e-12)
	assert.InDelta(t, -1, eq.Slack(vals), 1e-12)
	assert.False(t, ge.Satisfied(vals, 1e-9))
	assert.True(t, le.Satisfied(vals, 1e-9))

	assert.Equal(t, "c: x >= 5", ge.String())
	assert.Equal(t, "e: x == 5", eq.String())
}

func TestProblem_VariablesAndViolations(t *testing.T) {
	t.Parallel()

	b := NewVar("b", Binary)
	x := NewVar("x", Continuous)
	y := NewVar("y", Continuous)

	p := NewProblem("p")
	p.Objective = V(b)
	p.Add(NewConstraint("xy", V(x).Add(V(y)), GE, C(1)))
	p.Add(NewConstraint("bx", V(x).Sub(V(b)), LE, C(0)))

	require.Equal(t, []*Var{b, x, y}, p.Variables())

	ok := map[*Var]float64{b: 1, x: 1, y: 0}
	assert.Empty(t, p.Violations(ok, 1e-9))

	bad := map[*Var]float64{b: 0.5, x: 1, y: -1}
	v := p.Violations(bad, 1e-9)
	assert.Len(t, v, 3) // xy, bx, and b not binary
}

func TestStatus_HasSolution(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusOptimal.HasSolution())
	assert.True(t, StatusLimit.HasSolution())
	assert.False(t, StatusTimeout.HasSolution())
	assert.False(t, StatusInfeasible.HasSolution())
	assert.Equal(t, "infeasible", StatusInfeasible.String())
}

func TestExactRat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want *big.Rat
	}{
		{in: 0, want: big.NewRat(0, 1)},
		{in: -750, want: big.NewRat(-750, 1)},
		{in: 0.6, want: big.NewRat(3, 5)},
		{in: 1e6, want: big.NewRat(1000000, 1)},
		{in: -0.125, want: big.NewRat(-1, 8)},
		{in: 1e-3, want: big.NewRat(1, 1000)},
	}
	for _, tc := range tests {
		got, ok := ExactRat(tc.in)
		require.True(t, ok, "%v", tc.in)
		assert.Zero(t, got.Cmp(tc.want), "%v: got %s", tc.in, got)
	}

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, ok := ExactRat(bad)
		assert.False(t, ok)
	}
}
