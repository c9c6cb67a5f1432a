package compile

import "github.com/lverweijen/fellegiholt/internal/lp"

// Pool maps field names to one persistent continuous decision variable. A
// field always maps to the same *lp.Var, so compiled rule constraints and
// per-row linkage constraints talk about the same column.
//
// Pool is populated during compilation and read-only afterwards; concurrent
// readers are safe once compilation has finished.
type Pool struct {
	vars  map[string]*lp.Var
	order []string
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{vars: make(map[string]*lp.Var)}
}

// Var returns the variable for field, creating it on first use.
func (p *Pool) Var(field string) *lp.Var {
	if v, ok := p.vars[field]; ok {
		return v
	}
	v := lp.NewVar(field, lp.Continuous)
	p.vars[field] = v
	p.order = append(p.order, field)
	return v
}

// Lookup returns the variable for field without creating it.
func (p *Pool) Lookup(field string) (*lp.Var, bool) {
	v, ok := p.vars[field]
	return v, ok
}

// Fields returns the pooled field names in creation order.
func (p *Pool) Fields() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Len returns the number of pooled variables.
func (p *Pool) Len() int { return len(p.order) }
