package lp

import (
	"math"
	"math/big"
	"strconv"
)

// ExactRat converts f to the rational with the shortest decimal expansion
// that reads back as f, so 0.6 becomes 3/5 rather than the binary fraction
// nearest to it. ok is false for NaN and infinities.
func ExactRat(f float64) (r *big.Rat, ok bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return new(big.Rat).SetInt64(int64(f)), true
	}
	return new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
}
