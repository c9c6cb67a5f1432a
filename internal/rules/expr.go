// Package rules models edit rules: boolean/comparison expressions over named
// record fields.
//
// An expression tree is built from five node kinds:
//
//	Name     a boolean field ("this indicator must be 1")
//	Not      logical negation
//	And, Or  binary conjunction / disjunction
//	Compare  a comparison between affine expressions over fields
//
// Compare keeps the full operator chain (a <= b <= c has two operators) so
// that consumers can reject chains explicitly instead of silently dropping
// operands.
package rules

import (
	"strconv"
	"strings"
)

// Op is a comparison operator.
type Op uint8

const (
	OpGE Op = iota // >=
	OpLE           // <=
	OpEQ           // ==
	OpGT           // >
	OpLT           // <
	OpNE           // !=
)

var opSymbols = [...]string{OpGE: ">=", OpLE: "<=", OpEQ: "==", OpGT: ">", OpLT: "<", OpNE: "!="}

// String implements fmt.Stringer.
func (o Op) String() string {
	if int(o) < len(opSymbols) {
		return opSymbols[o]
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// ParseOp maps a symbol or keyword ("ge", ">=", ...) to an Op.
func ParseOp(s string) (Op, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ">=", "ge":
		return OpGE, true
	case "<=", "le":
		return OpLE, true
	case "==", "=", "eq":
		return OpEQ, true
	case ">", "gt":
		return OpGT, true
	case "<", "lt":
		return OpLT, true
	case "!=", "ne":
		return OpNE, true
	}
	return 0, false
}

// FieldTerm is coef·field.
type FieldTerm struct {
	Field string
	Coef  float64
}

// LinExpr is an affine expression Σ coef·field + Const over field names.
// Term order is insertion order; repeated fields are merged.
type LinExpr struct {
	Terms []FieldTerm
	Const float64
}

// Field returns the expression 1·name.
func Field(name string) LinExpr { return LinExpr{Terms: []FieldTerm{{Field: name, Coef: 1}}} }

// Constant returns the constant expression c.
func Constant(c float64) LinExpr { return LinExpr{Const: c} }

// Plus returns l + o.
func (l LinExpr) Plus(o LinExpr) LinExpr {
	out := LinExpr{Terms: make([]FieldTerm, 0, len(l.Terms)+len(o.Terms)), Const: l.Const + o.Const}
	out.Terms = append(out.Terms, l.Terms...)
	for _, t := range o.Terms {
		out = out.withTerm(t.Field, t.Coef)
	}
	return out
}

// Minus returns l - o.
func (l LinExpr) Minus(o LinExpr) LinExpr { return l.Plus(o.Times(-1)) }

// Times returns k·l.
func (l LinExpr) Times(k float64) LinExpr {
	out := LinExpr{Terms: make([]FieldTerm, len(l.Terms)), Const: l.Const * k}
	for i, t := range l.Terms {
		out.Terms[i] = FieldTerm{Field: t.Field, Coef: t.Coef * k}
	}
	return out
}

func (l LinExpr) withTerm(field string, coef float64) LinExpr {
	for i := range l.Terms {
		if l.Terms[i].Field == field {
			l.Terms[i].Coef += coef
			return l
		}
	}
	l.Terms = append(l.Terms, FieldTerm{Field: field, Coef: coef})
	return l
}

// Fields returns the referenced field names in order.
func (l LinExpr) Fields() []string {
	out := make([]string, 0, len(l.Terms))
	for _, t := range l.Terms {
		out = append(out, t.Field)
	}
	return out
}

// String renders the expression, e.g. "turnover - cost".
func (l LinExpr) String() string {
	var b strings.Builder
	for i, t := range l.Terms {
		c := t.Coef
		switch {
		case i == 0 && c < 0:
			b.WriteString("-")
			c = -c
		case i > 0 && c < 0:
			b.WriteString(" - ")
			c = -c
		case i > 0:
			b.WriteString(" + ")
		}
		if c != 1 {
			b.WriteString(formatNum(c))
			b.WriteString("*")
		}
		b.WriteString(t.Field)
	}
	switch {
	case len(l.Terms) == 0:
		b.WriteString(formatNum(l.Const))
	case l.Const > 0:
		b.WriteString(" + " + formatNum(l.Const))
	case l.Const < 0:
		b.WriteString(" - " + formatNum(-l.Const))
	}
	return b.String()
}

func formatNum(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// Node is an expression tree node. The set of implementations is closed:
// Name, Not, And, Or and Compare.
type Node interface {
	String() string
	node()
}

// Name is a boolean field reference.
type Name struct{ Field string }

// Not negates X.
type Not struct{ X Node }

// And holds when both L and R hold.
type And struct{ L, R Node }

// Or holds when L or R holds.
type Or struct{ L, R Node }

// Compare is Operands[0] Ops[0] Operands[1] Ops[1] ... ; len(Operands) must
// equal len(Ops)+1.
type Compare struct {
	Operands []LinExpr
	Ops      []Op
}

func (Name) node()    {}
func (Not) node()     {}
func (And) node()     {}
func (Or) node()      {}
func (Compare) node() {}

func (n Name) String() string { return n.Field }
func (n Not) String() string  { return "~" + paren(n.X) }
func (n And) String() string  { return paren(n.L) + " & " + paren(n.R) }
func (n Or) String() string   { return paren(n.L) + " | " + paren(n.R) }

func (n Compare) String() string {
	var b strings.Builder
	for i, o := range n.Operands {
		if i > 0 {
			b.WriteString(" " + n.Ops[i-1].String() + " ")
		}
		b.WriteString(o.String())
	}
	return b.String()
}

func paren(n Node) string {
	switch n.(type) {
	case Name, Not:
		return n.String()
	default:
		return "(" + n.String() + ")"
	}
}

// Cmp builds the single comparison l op r.
func Cmp(l LinExpr, op Op, r LinExpr) Compare {
	return Compare{Operands: []LinExpr{l, r}, Ops: []Op{op}}
}

// Ge builds l >= r.
func Ge(l, r LinExpr) Compare { return Cmp(l, OpGE, r) }

// Le builds l <= r.
func Le(l, r LinExpr) Compare { return Cmp(l, OpLE, r) }

// Eq builds l == r.
func Eq(l, r LinExpr) Compare { return Cmp(l, OpEQ, r) }

// Implies builds a ⇒ b as ~a | b.
func Implies(a, b Node) Node { return Or{L: Not{X: a}, R: b} }

// AllOf folds nodes into a left-deep conjunction. It returns nil for no nodes.
func AllOf(nodes ...Node) Node { return fold(nodes, func(l, r Node) Node { return And{L: l, R: r} }) }

// AnyOf folds nodes into a left-deep disjunction. It returns nil for no nodes.
func AnyOf(nodes ...Node) Node { return fold(nodes, func(l, r Node) Node { return Or{L: l, R: r} }) }

func fold(nodes []Node, join func(l, r Node) Node) Node {
	if len(nodes) == 0 {
		return nil
	}
	acc := nodes[0]
	for _, n := range nodes[1:] {
		acc = join(acc, n)
	}
	return acc
}

// Fields returns every field referenced by n, in first-appearance order.
func Fields(n Node) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(f string) {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	var walk func(Node)
	walk = func(n Node) {
		switch t := n.(type) {
		case Name:
			add(t.Field)
		case Not:
			walk(t.X)
		case And:
			walk(t.L)
			walk(t.R)
		case Or:
			walk(t.L)
			walk(t.R)
		case Compare:
			for _, o := range t.Operands {
				for _, f := range o.Fields() {
					add(f)
				}
			}
		}
	}
	walk(n)
	return out
}
