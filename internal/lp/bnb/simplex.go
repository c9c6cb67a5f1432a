package bnb

import (
	"math/big"

	"github.com/lverweijen/fellegiholt/internal/lp"
)

// stdRow is one row of an LP over non-negative columns: a·y ⋈ b.
type stdRow struct {
	a     []*big.Rat
	b     *big.Rat
	sense lp.Sense
}

// tableau is a dense simplex tableau in exact arithmetic. Row i holds
// B⁻¹A | B⁻¹b; z holds the reduced costs followed by the negated objective.
type tableau struct {
	t     [][]*big.Rat
	z     []*big.Rat
	basis []int
	art   []bool
	width int
}

// simplex minimizes c·y subject to rows and y >= 0 with the two-phase
// method. Pivots follow Bland's rule, which cannot cycle. The rows are
// consumed.
func simplex(rows []stdRow, c []*big.Rat) ([]*big.Rat, lp.Status) {
	n := len(c)
	var nslack, nart int
	for i := range rows {
		r := &rows[i]
		if r.b.Sign() < 0 {
			for _, a := range r.a {
				a.Neg(a)
			}
			r.b.Neg(r.b)
			r.sense = -r.sense
		}
		switch r.sense {
		case lp.LE:
			nslack++
		case lp.GE:
			nslack++
			nart++
		default:
			nart++
		}
	}

	tb := &tableau{
		t:     make([][]*big.Rat, len(rows)),
		basis: make([]int, len(rows)),
		width: n + nslack + nart,
	}
	tb.art = make([]bool, tb.width)
	s, a := n, n+nslack
	for i, r := range rows {
		line := make([]*big.Rat, tb.width+1)
		copy(line, r.a)
		for k := n; k < tb.width; k++ {
			line[k] = new(big.Rat)
		}
		line[tb.width] = r.b
		switch r.sense {
		case lp.LE:
			line[s].SetInt64(1)
			tb.basis[i] = s
			s++
		case lp.GE:
			line[s].SetInt64(-1)
			s++
			fallthrough
		default:
			line[a].SetInt64(1)
			tb.art[a] = true
			tb.basis[i] = a
			a++
		}
		tb.t[i] = line
	}

	if nart > 0 {
		tb.z = zeros(tb.width + 1)
		for k := n + nslack; k < tb.width; k++ {
			tb.z[k].SetInt64(1)
		}
		for i, line := range tb.t {
			if tb.art[tb.basis[i]] {
				for k, v := range line {
					tb.z[k].Sub(tb.z[k], v)
				}
			}
		}
		tb.run(func(int) bool { return true })
		if tb.z[tb.width].Sign() != 0 {
			return nil, lp.StatusInfeasible
		}
		tb.dropArtificials()
	}

	tb.z = zeros(tb.width + 1)
	for j := 0; j < n; j++ {
		tb.z[j].Set(c[j])
	}
	tmp := new(big.Rat)
	for i, line := range tb.t {
		bj := tb.basis[i]
		if bj >= n || c[bj].Sign() == 0 {
			continue
		}
		for k, v := range line {
			if v.Sign() != 0 {
				tb.z[k].Sub(tb.z[k], tmp.Mul(c[bj], v))
			}
		}
	}
	if !tb.run(func(j int) bool { return !tb.art[j] }) {
		return nil, lp.StatusUnbounded
	}

	y := zeros(n)
	for i, bj := range tb.basis {
		if bj < n {
			y[bj].Set(tb.t[i][tb.width])
		}
	}
	return y, lp.StatusOptimal
}

// run pivots until no allowed column has a negative reduced cost. It
// returns false when the objective is unbounded along an entering column.
func (tb *tableau) run(allowed func(int) bool) bool {
	ratio := new(big.Rat)
	for {
		col := -1
		for j := 0; j < tb.width; j++ {
			if tb.z[j].Sign() < 0 && allowed(j) {
				col = j
				break
			}
		}
		if col < 0 {
			return true
		}
		pr := -1
		var best *big.Rat
		for i, line := range tb.t {
			if line[col].Sign() <= 0 {
				continue
			}
			ratio.Quo(line[tb.width], line[col])
			if pr < 0 || ratio.Cmp(best) < 0 || (ratio.Cmp(best) == 0 && tb.basis[i] < tb.basis[pr]) {
				pr, best = i, new(big.Rat).Set(ratio)
			}
		}
		if pr < 0 {
			return false
		}
		tb.pivot(pr, col)
	}
}

// dropArtificials pivots zero-valued artificials out of the basis after
// phase one. Rows where that is impossible are redundant and removed.
func (tb *tableau) dropArtificials() {
	for i := 0; i < len(tb.t); {
		if !tb.art[tb.basis[i]] {
			i++
			continue
		}
		col := -1
		for j := 0; j < tb.width; j++ {
			if !tb.art[j] && tb.t[i][j].Sign() != 0 {
				col = j
				break
			}
		}
		if col < 0 {
			tb.t = append(tb.t[:i], tb.t[i+1:]...)
			tb.basis = append(tb.basis[:i], tb.basis[i+1:]...)
			continue
		}
		tb.pivot(i, col)
		i++
	}
}

func (tb *tableau) pivot(r, c int) {
	pr := tb.t[r]
	inv := new(big.Rat).Inv(pr[c])
	for _, v := range pr {
		if v.Sign() != 0 {
			v.Mul(v, inv)
		}
	}
	tmp := new(big.Rat)
	eliminate := func(line []*big.Rat) {
		if line[c].Sign() == 0 {
			return
		}
		f := new(big.Rat).Set(line[c])
		for k, v := range pr {
			if v.Sign() != 0 {
				line[k].Sub(line[k], tmp.Mul(f, v))
			}
		}
	}
	for i, line := range tb.t {
		if i != r {
			eliminate(line)
		}
	}
	if tb.z != nil {
		eliminate(tb.z)
	}
	tb.basis[r] = c
}
