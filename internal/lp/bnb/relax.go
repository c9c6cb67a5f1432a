package bnb

import (
	"math/big"

	"github.com/lverweijen/fellegiholt/internal/lp"
)

var (
	ratZero = new(big.Rat)
	ratOne  = big.NewRat(1, 1)
)

// relax solves the LP relaxation of a node. Binaries pinned by fixed and
// single-variable rows are folded into variable bounds first; a variable
// whose bounds meet is substituted out of every row. It returns the full
// assignment and its objective value.
//
// Bound entries are never mutated once stored, so they may be shared.
func (e *engine) relax(fixed []int8) ([]*big.Rat, *big.Rat, lp.Status) {
	n := len(e.vars)
	lo := make([]*big.Rat, n)
	hi := make([]*big.Rat, n)
	for j := range e.vars {
		switch {
		case fixed[j] != free:
			v := big.NewRat(int64(fixed[j]), 1)
			lo[j], hi[j] = v, v
		case e.binary[j]:
			lo[j], hi[j] = ratZero, ratOne
		}
	}
	pinned := func(j int) bool {
		return lo[j] != nil && hi[j] != nil && lo[j].Cmp(hi[j]) == 0
	}

	done := make([]bool, len(e.rows))
	for changed := true; changed; {
		changed = false
		for i, r := range e.rows {
			if done[i] {
				continue
			}
			rhs := new(big.Rat).Set(r.rhs)
			live, nlive := -1, 0
			for k, t := range r.terms {
				if pinned(t.j) {
					rhs.Sub(rhs, new(big.Rat).Mul(t.a, lo[t.j]))
					continue
				}
				live, nlive = k, nlive+1
			}
			switch nlive {
			case 0:
				if !constantHolds(rhs, r.sense) {
					return nil, nil, lp.StatusInfeasible
				}
				done[i] = true
			case 1:
				t := r.terms[live]
				sense := r.sense
				if t.a.Sign() < 0 {
					sense = -sense
				}
				if !e.tighten(lo, hi, t.j, rhs.Quo(rhs, t.a), sense) {
					return nil, nil, lp.StatusInfeasible
				}
				done[i] = true
				if pinned(t.j) {
					changed = true
				}
			}
		}
	}

	// Column layout over the variables still free: x = lo + y when lo is
	// finite, x = hi - y when only hi is, x = y⁺ - y⁻ otherwise.
	active := make([]bool, n)
	for i, r := range e.rows {
		if done[i] {
			continue
		}
		for _, t := range r.terms {
			if !pinned(t.j) {
				active[t.j] = true
			}
		}
	}
	for _, t := range e.obj {
		if !pinned(t.j) {
			active[t.j] = true
		}
	}
	base := make([]*big.Rat, n)
	sign := make([]int, n)
	pos := make([]int, n)
	neg := make([]int, n)
	cols := 0
	for j := 0; j < n; j++ {
		pos[j], neg[j] = -1, -1
		switch {
		case pinned(j):
			base[j] = lo[j]
		case !active[j]:
			base[j] = ratZero
			if lo[j] != nil {
				base[j] = lo[j]
			} else if hi[j] != nil {
				base[j] = hi[j]
			}
		case lo[j] != nil:
			base[j], sign[j], pos[j] = lo[j], 1, cols
			cols++
		case hi[j] != nil:
			base[j], sign[j], pos[j] = hi[j], -1, cols
			cols++
		default:
			base[j], sign[j], pos[j], neg[j] = ratZero, 1, cols, cols+1
			cols += 2
		}
	}

	spread := func(ts []term, dst []*big.Rat, rhs *big.Rat) {
		tmp := new(big.Rat)
		for _, t := range ts {
			if rhs != nil {
				rhs.Sub(rhs, tmp.Mul(t.a, base[t.j]))
			}
			if pos[t.j] < 0 {
				continue
			}
			if sign[t.j] > 0 {
				dst[pos[t.j]].Add(dst[pos[t.j]], t.a)
			} else {
				dst[pos[t.j]].Sub(dst[pos[t.j]], t.a)
			}
			if neg[t.j] >= 0 {
				dst[neg[t.j]].Sub(dst[neg[t.j]], t.a)
			}
		}
	}

	var std []stdRow
	for i, r := range e.rows {
		if done[i] {
			continue
		}
		sr := stdRow{a: zeros(cols), b: new(big.Rat).Set(r.rhs), sense: r.sense}
		spread(r.terms, sr.a, sr.b)
		std = append(std, sr)
	}
	for j := 0; j < n; j++ {
		if pos[j] >= 0 && neg[j] < 0 && lo[j] != nil && hi[j] != nil {
			sr := stdRow{a: zeros(cols), b: new(big.Rat).Sub(hi[j], lo[j]), sense: lp.LE}
			sr.a[pos[j]].SetInt64(1)
			std = append(std, sr)
		}
	}
	c := zeros(cols)
	spread(e.obj, c, nil)

	y, st := simplex(std, c)
	if st != lp.StatusOptimal {
		return nil, nil, st
	}

	x := make([]*big.Rat, n)
	obj := new(big.Rat).Set(e.objK)
	for j := 0; j < n; j++ {
		v := new(big.Rat).Set(base[j])
		if pos[j] >= 0 {
			if sign[j] > 0 {
				v.Add(v, y[pos[j]])
			} else {
				v.Sub(v, y[pos[j]])
			}
		}
		if neg[j] >= 0 {
			v.Sub(v, y[neg[j]])
		}
		x[j] = v
	}
	tmp := new(big.Rat)
	for _, t := range e.obj {
		obj.Add(obj, tmp.Mul(t.a, x[t.j]))
	}
	return x, obj, lp.StatusOptimal
}

// tighten applies "x_j ⋈ b" to the bounds of x_j and reports whether they
// are still consistent. Binary bounds are rounded inward to 0 or 1.
func (e *engine) tighten(lo, hi []*big.Rat, j int, b *big.Rat, sense lp.Sense) bool {
	if sense != lp.GE && (hi[j] == nil || b.Cmp(hi[j]) < 0) {
		hi[j] = b
	}
	if sense != lp.LE && (lo[j] == nil || b.Cmp(lo[j]) > 0) {
		lo[j] = b
	}
	if e.binary[j] {
		if hi[j].Sign() >= 0 && hi[j].Cmp(ratOne) < 0 {
			hi[j] = ratZero
		}
		if lo[j].Sign() > 0 && lo[j].Cmp(ratOne) <= 0 {
			lo[j] = ratOne
		}
	}
	return lo[j] == nil || hi[j] == nil || lo[j].Cmp(hi[j]) <= 0
}

// constantHolds checks "0 ⋈ rhs" for a row whose variables are all pinned.
func constantHolds(rhs *big.Rat, sense lp.Sense) bool {
	switch sense {
	case lp.LE:
		return rhs.Sign() >= 0
	case lp.GE:
		return rhs.Sign() <= 0
	default:
		return rhs.Sign() == 0
	}
}

func zeros(n int) []*big.Rat {
	out := make([]*big.Rat, n)
	for i := range out {
		out[i] = new(big.Rat)
	}
	return out
}
