package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupOf(m map[string]float64) Lookup {
	return func(f string) (float64, bool) {
		v, ok := m[f]
		return v, ok
	}
}

// profitRule is profit == turnover - cost.
func profitRule() Node { return Eq(Field("profit"), Field("turnover").Minus(Field("cost"))) }

// marriageRule is married ⇒ age >= 16.
func marriageRule() Node { return Implies(Name{Field: "married"}, Ge(Field("age"), Constant(16))) }

func TestEval_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		expr Node
		rec  map[string]float64
		want bool
	}{
		{"profit consistent", profitRule(), map[string]float64{"profit": 75, "turnover": 200, "cost": 125}, true},
		{"profit inconsistent", profitRule(), map[string]float64{"profit": 750, "turnover": 200, "cost": 125}, false},
		{"married minor", marriageRule(), map[string]float64{"married": 1, "age": 15}, false},
		{"unmarried minor", marriageRule(), map[string]float64{"married": 0, "age": 15}, true},
		{"married adult", marriageRule(), map[string]float64{"married": 1, "age": 16}, true},
		{"chain holds", Compare{Operands: []LinExpr{Constant(0), Field("x"), Constant(10)}, Ops: []Op{OpLE, OpLE}}, map[string]float64{"x": 5}, true},
		{"chain breaks", Compare{Operands: []LinExpr{Constant(0), Field("x"), Constant(10)}, Ops: []Op{OpLE, OpLE}}, map[string]float64{"x": 11}, false},
		{"not equal", Not{X: Eq(Field("a"), Constant(5))}, map[string]float64{"a": 5}, false},
		{"strict greater", Cmp(Field("a"), OpGT, Constant(5)), map[string]float64{"a": 5}, false},
		{"and", And{L: Name{Field: "p"}, R: Name{Field: "q"}}, map[string]float64{"p": 1, "q": 0}, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Eval(tc.expr, lookupOf(tc.rec), 1e-9)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEval_MissingAndMalformed(t *testing.T) {
	t.Parallel()

	_, err := Eval(profitRule(), lookupOf(map[string]float64{"profit": 1}), 0)
	require.ErrorIs(t, err, ErrMissingField)

	_, err = Eval(Compare{Operands: []LinExpr{Field("a")}, Ops: []Op{OpGE}}, lookupOf(nil), 0)
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Eval(And{L: Name{Field: "a"}}, lookupOf(map[string]float64{"a": 1}), 0)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestString_AndFields(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "profit == turnover - cost", profitRule().String())
	assert.Equal(t, "~married | (age >= 16)", marriageRule().String())
	assert.Equal(t, []string{"married", "age"}, Fields(marriageRule()))
	assert.Equal(t, []string{"profit", "turnover", "cost"}, Fields(profitRule()))
	assert.Equal(t, "0.6*turnover + 3", Field("turnover").Times(0.6).Plus(Constant(3)).String())
}

func TestFilterTags(t *testing.T) {
	t.Parallel()

	rs := []Rule{
		{Name: "a", Tags: []string{"hard"}, Expr: Name{Field: "x"}},
		{Name: "b", Tags: []string{"soft"}, Expr: Name{Field: "y"}},
		{Name: "c", Expr: Name{Field: "z"}},
	}
	assert.Len(t, FilterTags(rs), 3)
	got := FilterTags(rs, "hard")
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name)
}

func TestDecode_Document(t *testing.T) {
	t.Parallel()

	const doc = `
rules:
  - name: addition_profit
    tags: [hard]
    expr:
      eq: [profit, {turnover: 1, cost: -1}]
  - name: cost_gt_turnover
    tags: [soft]
    expr:
      ge: [cost, {turnover: 0.6}]
  - name: positive_costs
    expr: {ge: [cost, 0]}
  - name: eligible_for_marriage
    expr:
      implies: [married, {ge: [age, 16]}]
  - name: range
    expr:
      compare: [0, "<=", x, "<=", {const: 10}]
  - expr:
      or:
        - not: {name: a}
        - and: [b, {le: [c, 3]}]
`
	rs, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, rs, 6)

	assert.Equal(t, "addition_profit", rs[0].Name)
	assert.True(t, rs[0].HasTag("hard"))
	assert.Equal(t, "profit == turnover - cost", rs[0].Expr.String())
	assert.Equal(t, "cost >= 0.6*turnover", rs[1].Expr.String())
	assert.Equal(t, "cost >= 0", rs[2].Expr.String())
	assert.Equal(t, marriageRule(), rs[3].Expr)

	chain, ok := rs[4].Expr.(Compare)
	require.True(t, ok)
	assert.Len(t, chain.Ops, 2)

	assert.Equal(t, "rule_5", rs[5].Name)
	assert.Equal(t, "~a | (b & (c <= 3))", rs[5].Expr.String())
}

func TestDecode_JSONAndTopLevelList(t *testing.T) {
	t.Parallel()

	const doc = `[{"name": "nonneg", "expr": {"ge": ["x", 0]}}]`
	rs, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "x >= 0", rs[0].Expr.String())
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	bad := map[string]string{
		"unknown key":    `[{name: r, expr: {xor: [a, b]}}]`,
		"one operand":    `[{name: r, expr: {ge: [a]}}]`,
		"missing expr":   `[{name: r}]`,
		"single or":      `[{name: r, expr: {or: [a]}}]`,
		"bad coef":       `[{name: r, expr: {ge: [{a: x}, 0]}}]`,
		"bad chain":      `[{name: r, expr: {compare: [a, "<=", b, "<="]}}]`,
		"duplicate name": `[{name: r, expr: a}, {name: r, expr: b}]`,
		"no rules key":   `{other: []}`,
		"numeric name":   `[{name: r, expr: 5}]`,
	}
	for name, doc := range bad {
		name, doc := name, doc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(strings.NewReader(doc))
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}
