package lp

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the domain of a decision variable.
type Kind uint8

const (
	// Continuous variables are free: no lower or upper bound.
	Continuous Kind = iota
	// Binary variables take the values 0 or 1.
	Binary
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Binary:
		return "binary"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Var is a decision variable. Variables are compared by identity; two Vars
// with the same name are still different columns in a model.
type Var struct {
	name string
	kind Kind
}

// NewVar returns a fresh variable.
func NewVar(name string, kind Kind) *Var {
	return &Var{name: name, kind: kind}
}

// Name returns the variable name.
func (v *Var) Name() string { return v.name }

// Kind returns the variable domain.
func (v *Var) Kind() Kind { return v.kind }

// IsBinary reports whether the variable is restricted to {0, 1}.
func (v *Var) IsBinary() bool { return v.kind == Binary }

// MarkBinary restricts the variable to {0, 1}. It must only be called while
// the variable is still private to the goroutine building the model.
func (v *Var) MarkBinary() { v.kind = Binary }

// String implements fmt.Stringer.
func (v *Var) String() string { return v.name }

// Term is a single coefficient·variable product.
type Term struct {
	Var  *Var
	Coef float64
}

// Expr is an affine expression Σ Coef·Var + Constant. The zero value is the
// constant 0. Expr values are immutable: every operation returns a new Expr.
type Expr struct {
	terms    []Term
	constant float64
}

// V returns the expression 1·v.
func V(v *Var) Expr { return Expr{terms: []Term{{Var: v, Coef: 1}}} }

// C returns the constant expression c.
func C(c float64) Expr { return Expr{constant: c} }

// NewExpr builds an expression from terms and a constant. Repeated variables
// are merged and zero coefficients dropped.
func NewExpr(constant float64, terms ...Term) Expr {
	e := Expr{constant: constant}
	for _, t := range terms {
		e = e.Plus(t.Var, t.Coef)
	}
	return e
}

// Terms returns a copy of the expression terms in insertion order.
func (e Expr) Terms() []Term {
	out := make([]Term, len(e.terms))
	copy(out, e.terms)
	return out
}

// Len returns the number of variable terms.
func (e Expr) Len() int { return len(e.terms) }

// Constant returns the constant part.
func (e Expr) Constant() float64 { return e.constant }

// IsConstant reports whether the expression has no variable terms.
func (e Expr) IsConstant() bool { return len(e.terms) == 0 }

// Coef returns the coefficient of v (0 when v does not occur).
func (e Expr) Coef(v *Var) float64 {
	for _, t := range e.terms {
		if t.Var == v {
			return t.Coef
		}
	}
	return 0
}

// Plus returns e + c·v.
func (e Expr) Plus(v *Var, c float64) Expr {
	out := Expr{terms: make([]Term, 0, len(e.terms)+1), constant: e.constant}
	merged := false
	for _, t := range e.terms {
		if t.Var == v {
			t.Coef += c
			merged = true
			if t.Coef == 0 {
				continue
			}
		}
		out.terms = append(out.terms, t)
	}
	if !merged && c != 0 {
		out.terms = append(out.terms, Term{Var: v, Coef: c})
	}
	return out
}

// Add returns e + o.
func (e Expr) Add(o Expr) Expr {
	out := e.AddConst(o.constant)
	for _, t := range o.terms {
		out = out.Plus(t.Var, t.Coef)
	}
	return out
}

// Sub returns e - o.
func (e Expr) Sub(o Expr) Expr { return e.Add(o.Scale(-1)) }

// Scale returns k·e.
func (e Expr) Scale(k float64) Expr {
	if k == 0 {
		return Expr{}
	}
	out := Expr{terms: make([]Term, len(e.terms)), constant: e.constant * k}
	for i, t := range e.terms {
		out.terms[i] = Term{Var: t.Var, Coef: t.Coef * k}
	}
	return out
}

// AddConst returns e + c.
func (e Expr) AddConst(c float64) Expr {
	out := Expr{terms: e.Terms(), constant: e.constant + c}
	return out
}

// Eval evaluates the expression under the given assignment. Variables
// missing from values evaluate to 0.
func (e Expr) Eval(values map[*Var]float64) float64 {
	sum := e.constant
	for _, t := range e.terms {
		sum += t.Coef * values[t.Var]
	}
	return sum
}

// String renders the expression, e.g. "2*x - y + 3".
func (e Expr) String() string {
	var b strings.Builder
	for i, t := range e.terms {
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
			b.WriteString(formatFloat(c))
			b.WriteString("*")
		}
		b.WriteString(t.Var.name)
	}
	switch {
	case len(e.terms) == 0:
		b.WriteString(formatFloat(e.constant))
	case e.constant > 0:
		fmt.Fprintf(&b, " + %s", formatFloat(e.constant))
	case e.constant < 0:
		fmt.Fprintf(&b, " - %s", formatFloat(-e.constant))
	}
	return b.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
