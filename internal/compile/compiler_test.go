package compile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lverweijen/fellegiholt/internal/lp"
	"github.com/lverweijen/fellegiholt/internal/lp/bnb"
	"github.com/lverweijen/fellegiholt/internal/rules"
)

func ge(field string, c float64) rules.Node {
	return rules.Ge(rules.Field(field), rules.Constant(c))
}

func le(field string, c float64) rules.Node {
	return rules.Le(rules.Field(field), rules.Constant(c))
}

func name(field string) rules.Node { return rules.Name{Field: field} }

func not(n rules.Node) rules.Node { return rules.Not{X: n} }

// feasible reports whether the compiled rule admits the field assignment
// when every field variable is pinned to its value.
func feasible(t *testing.T, expr rules.Node, assign map[string]float64) bool {
	t.Helper()

	c, err := New(NewPool(), Options{})
	require.NoError(t, err)
	cs, err := c.Compile(rules.Rule{Name: "r", Expr: expr})
	require.NoError(t, err)

	p := lp.NewProblem("check")
	for _, k := range cs {
		p.Add(k.Constraint)
	}
	for field, val := range assign {
		v, ok := c.Pool().Lookup(field)
		require.True(t, ok, "field %s not pooled", field)
		p.Add(lp.NewConstraint("pin_"+field, lp.V(v), lp.EQ, lp.C(val)))
	}
	sol, err := bnb.New(bnb.DefaultOptions()).Solve(context.Background(), p)
	require.NoError(t, err)
	return sol.Status == lp.StatusOptimal
}

func TestCompile_AgreesWithEval(t *testing.T) {
	t.Parallel()

	profit := rules.Eq(rules.Field("profit"), rules.Field("turnover").Minus(rules.Field("cost")))
	marriage := rules.Implies(name("married"), ge("age", 16))

	tests := []struct {
		name   string
		expr   rules.Node
		assign map[string]float64
	}{
		{"profit consistent", profit, map[string]float64{"profit": 75, "turnover": 200, "cost": 125}},
		{"profit inconsistent", profit, map[string]float64{"profit": 750, "turnover": 200, "cost": 125}},
		{"married minor", marriage, map[string]float64{"married": 1, "age": 15}},
		{"unmarried minor", marriage, map[string]float64{"married": 0, "age": 15}},
		{"married adult", marriage, map[string]float64{"married": 1, "age": 30}},
		{"not equal holds", not(rules.Eq(rules.Field("x"), rules.Constant(5))), map[string]float64{"x": 7}},
		{"not equal below", not(rules.Eq(rules.Field("x"), rules.Constant(5))), map[string]float64{"x": 3}},
		{"not equal fails", not(rules.Eq(rules.Field("x"), rules.Constant(5))), map[string]float64{"x": 5}},
		{"not ge", not(ge("x", 3)), map[string]float64{"x": 2}},
		{"not ge fails", not(ge("x", 3)), map[string]float64{"x": 3}},
		{"not le", not(le("x", 3)), map[string]float64{"x": 4}},
		{"not le fails", not(le("x", 3)), map[string]float64{"x": 3}},
		{"nand 11", not(rules.And{L: name("a"), R: name("b")}), map[string]float64{"a": 1, "b": 1}},
		{"nand 10", not(rules.And{L: name("a"), R: name("b")}), map[string]float64{"a": 1, "b": 0}},
		{"nand 00", not(rules.And{L: name("a"), R: name("b")}), map[string]float64{"a": 0, "b": 0}},
		{"nor 00", not(rules.Or{L: ge("x", 3), R: le("y", 1)}), map[string]float64{"x": 0, "y": 5}},
		{"nor 10", not(rules.Or{L: ge("x", 3), R: le("y", 1)}), map[string]float64{"x": 4, "y": 5}},
		{"nor 01", not(rules.Or{L: ge("x", 3), R: le("y", 1)}), map[string]float64{"x": 0, "y": 0}},
		{"double negation", not(not(name("p"))), map[string]float64{"p": 1}},
		{"double negation fails", not(not(name("p"))), map[string]float64{"p": 0}},
		{"nested or-and true", rules.Or{L: rules.And{L: name("p"), R: ge("x", 2)}, R: not(name("q"))}, map[string]float64{"p": 1, "x": 2, "q": 1}},
		{"nested or-and false", rules.Or{L: rules.And{L: name("p"), R: ge("x", 2)}, R: not(name("q"))}, map[string]float64{"p": 1, "x": 1, "q": 1}},
		{"nested or-and via not", rules.Or{L: rules.And{L: name("p"), R: ge("x", 2)}, R: not(name("q"))}, map[string]float64{"p": 0, "x": 1, "q": 0}},
		{"negated equality under or", rules.Or{L: name("p"), R: not(rules.Eq(rules.Field("x"), rules.Constant(1)))}, map[string]float64{"p": 0, "x": 1}},
		{"negated equality under or holds", rules.Or{L: name("p"), R: not(rules.Eq(rules.Field("x"), rules.Constant(1)))}, map[string]float64{"p": 0, "x": 4}},
		{"equality under or", rules.Or{L: name("p"), R: rules.Eq(rules.Field("x"), rules.Constant(1))}, map[string]float64{"p": 0, "x": 2}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			want, err := rules.Eval(tc.expr, func(f string) (float64, bool) {
				v, ok := tc.assign[f]
				return v, ok
			}, 1e-9)
			require.NoError(t, err)
			assert.Equal(t, want, feasible(t, tc.expr, tc.assign))
		})
	}
}

func TestHolds_AgreesWithPinnedModel(t *testing.T) {
	t.Parallel()

	marriage := rules.Implies(name("married"), ge("age", 16))
	share := rules.Ge(rules.Field("cost"), rules.Field("turnover").Times(0.6))

	tests := []struct {
		name   string
		expr   rules.Node
		assign map[string]float64
		want   bool
	}{
		{"married adult", marriage, map[string]float64{"married": 1, "age": 30}, true},
		{"married minor", marriage, map[string]float64{"married": 1, "age": 15}, false},
		{"boolean out of domain", marriage, map[string]float64{"married": 2, "age": 30}, false},
		{"boolean fraction", not(name("p")), map[string]float64{"p": 0.25}, false},
		{"not ge inside margin", not(ge("x", 3)), map[string]float64{"x": 2.7}, false},
		{"not ge at margin", not(ge("x", 3)), map[string]float64{"x": 2.5}, true},
		{"not le inside margin", not(le("x", 3)), map[string]float64{"x": 3.2}, false},
		{"not equal inside margin", not(rules.Eq(rules.Field("x"), rules.Constant(5))), map[string]float64{"x": 5.3}, false},
		{"not equal outside margin", not(rules.Eq(rules.Field("x"), rules.Constant(5))), map[string]float64{"x": 4.5}, true},
		{"decimal product", share, map[string]float64{"cost": 120, "turnover": 200}, true},
		{"decimal product short", share, map[string]float64{"cost": 119.99, "turnover": 200}, false},
		{"nand 10", not(rules.And{L: name("a"), R: name("b")}), map[string]float64{"a": 1, "b": 0}, true},
		{"nor 01", not(rules.Or{L: ge("x", 3), R: le("y", 1)}), map[string]float64{"x": 0, "y": 0}, false},
	}

	c, err := New(NewPool(), Options{})
	require.NoError(t, err)
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := c.Holds(tc.expr, func(f string) (float64, bool) {
				v, ok := tc.assign[f]
				return v, ok
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, feasible(t, tc.expr, tc.assign), got, "pinned model disagrees")
		})
	}

	_, err = c.Holds(marriage, func(string) (float64, bool) { return 0, false })
	assert.ErrorIs(t, err, rules.ErrMissingField)
}

func TestCompile_Shapes(t *testing.T) {
	t.Parallel()

	c, err := New(NewPool(), Options{BigM: 100, Epsilon: 0.5})
	require.NoError(t, err)

	cs, err := c.Compile(rules.Rule{Name: "profit", Expr: rules.Eq(rules.Field("profit"), rules.Field("turnover").Minus(rules.Field("cost")))})
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "profit_0: profit - turnover + cost == 0", cs[0].String())
	assert.Equal(t, "profit", cs[0].Rule)

	cs, err = c.Compile(rules.Rule{Name: "marriage", Expr: rules.Implies(name("married"), ge("age", 16))})
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "marriage_0: married - aux:marriage#0 <= 0.5", cs[0].String())
	assert.Equal(t, "marriage_1: age - 100*aux:marriage#0 >= -84", cs[1].String())
	assert.Equal(t, 1, cs[1].Index)

	married, ok := c.Pool().Lookup("married")
	require.True(t, ok)
	assert.True(t, married.IsBinary())
	age, _ := c.Pool().Lookup("age")
	assert.False(t, age.IsBinary())
	assert.Equal(t, []string{"profit", "turnover", "cost", "married", "age"}, c.Pool().Fields())
}

func TestCompile_SharedPool(t *testing.T) {
	t.Parallel()

	c, err := New(nil, Options{})
	require.NoError(t, err)
	a, err := c.Compile(rules.Rule{Name: "a", Expr: ge("x", 0)})
	require.NoError(t, err)
	b, err := c.Compile(rules.Rule{Name: "b", Expr: le("x", 10)})
	require.NoError(t, err)

	xa := a[0].Expr.Terms()[0].Var
	xb := b[0].Expr.Terms()[0].Var
	assert.Same(t, xa, xb)
	assert.Equal(t, 1, c.Pool().Len())
}

func TestCompile_Errors(t *testing.T) {
	t.Parallel()

	chain := rules.Compare{
		Operands: []rules.LinExpr{rules.Constant(0), rules.Field("x"), rules.Constant(10)},
		Ops:      []rules.Op{rules.OpLE, rules.OpLE},
	}
	tests := []struct {
		name string
		expr rules.Node
		want error
	}{
		{"strict", rules.Cmp(rules.Field("x"), rules.OpGT, rules.Constant(0)), ErrUnsupportedOperator},
		{"not equal op", rules.Cmp(rules.Field("x"), rules.OpNE, rules.Constant(0)), ErrUnsupportedOperator},
		{"chain", chain, ErrComparisonChain},
		{"nil", nil, ErrUnsupportedExpression},
		{"nil child", rules.And{L: name("p")}, ErrUnsupportedExpression},
		{"malformed", rules.Compare{Operands: []rules.LinExpr{rules.Field("x")}, Ops: []rules.Op{rules.OpGE}}, ErrUnsupportedExpression},
		{"constant false", rules.Ge(rules.Constant(0), rules.Constant(1)), ErrUnsatisfiable},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, err := New(nil, Options{})
			require.NoError(t, err)
			cs, err := c.Compile(rules.Rule{Name: "bad", Expr: tc.expr})
			require.ErrorIs(t, err, tc.want)
			assert.Nil(t, cs)
		})
	}
}

func TestCompile_FailedRuleLeavesDomainsAlone(t *testing.T) {
	t.Parallel()

	c, err := New(nil, Options{})
	require.NoError(t, err)
	_, err = c.Compile(rules.Rule{Name: "bad", Expr: rules.Or{L: name("x"), R: rules.Cmp(rules.Field("y"), rules.OpGT, rules.Constant(0))}})
	require.Error(t, err)

	x, ok := c.Pool().Lookup("x")
	require.True(t, ok)
	assert.False(t, x.IsBinary())
}

func TestCompileAll_Diagnostics(t *testing.T) {
	t.Parallel()

	c, err := New(nil, Options{})
	require.NoError(t, err)
	cs, diags := c.CompileAll([]rules.Rule{
		{Name: "ok", Expr: ge("x", 0)},
		{Name: "chain", Expr: rules.Compare{
			Operands: []rules.LinExpr{rules.Constant(0), rules.Field("x"), rules.Constant(1)},
			Ops:      []rules.Op{rules.OpLE, rules.OpLE},
		}},
		{Name: "tautology", Expr: rules.Ge(rules.Constant(1), rules.Constant(0))},
		{Name: "ok", Expr: le("y", 5)},
	})
	require.Len(t, cs, 1)
	assert.Equal(t, "ok", cs[0].Rule)
	require.Len(t, diags, 2)
	assert.Equal(t, "chain", diags[0].Rule)
	assert.ErrorIs(t, diags[0].Err, ErrComparisonChain)
	assert.Equal(t, "ok", diags[1].Rule)
	assert.ErrorIs(t, diags[1].Err, ErrDuplicateRule)
	_, pooled := c.Pool().Lookup("y")
	assert.False(t, pooled, "a duplicate must not reach the pool")
}

func TestNew_Options(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Options{BigM: -1})
	require.ErrorIs(t, err, ErrOptions)
	_, err = New(nil, Options{Epsilon: -0.1})
	require.ErrorIs(t, err, ErrOptions)
	_, err = New(nil, Options{BigM: 1, Epsilon: 2})
	require.ErrorIs(t, err, ErrOptions)

	c, err := New(nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultBigM, c.Options().BigM)
	assert.Equal(t, DefaultEpsilon, c.Options().Epsilon)
}
