package detector

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/lverweijen/fellegiholt/internal/record"
)

// TieBreak selects how field weights are perturbed so that equally cheap
// corrections do not always resolve to the same field order.
type TieBreak string

const (
	// TieBreakHash derives the perturbation from an xxh3 hash of the field
	// name. Weights are identical across runs and processes.
	TieBreakHash TieBreak = "hash"
	// TieBreakRandom draws the perturbation from a PRNG seeded with the
	// detector seed, the record and the field. Different records get
	// different draws, but a record always gets the same weights, whatever
	// the worker count or the order rows are processed in.
	TieBreakRandom TieBreak = "random"
	// TieBreakNone disables the perturbation.
	TieBreakNone TieBreak = "none"
)

// ParseTieBreak parses a tie-break mode; "" means TieBreakHash.
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(strings.ToLower(strings.TrimSpace(s))) {
	case "", TieBreakHash:
		return TieBreakHash, nil
	case TieBreakRandom:
		return TieBreakRandom, nil
	case TieBreakNone:
		return TieBreakNone, nil
	}
	return "", fmt.Errorf("%w: unknown tiebreak %q (want hash, random or none)", ErrOptions, s)
}

// Weigher computes error-indicator weights w = base * (1 + t/2), t in [0, 1).
// It holds no mutable state and is safe for concurrent use.
type Weigher struct {
	mode TieBreak
	seed uint64
	base map[string]float64
}

// NewWeigher returns a weigher. Fields missing from base weigh 1.
func NewWeigher(mode TieBreak, seed int64, base map[string]float64) *Weigher {
	return &Weigher{mode: mode, seed: uint64(seed), base: base}
}

// Weight returns the weight of field in the record identified by key (see
// RecordKey). Only TieBreakRandom looks at key.
func (w *Weigher) Weight(field string, key uint64) float64 {
	b, ok := w.base[field]
	if !ok {
		b = 1
	}
	return b * (1 + w.jitter(field, key)/2)
}

func (w *Weigher) jitter(field string, key uint64) float64 {
	switch w.mode {
	case TieBreakNone:
		return 0
	case TieBreakRandom:
		src := rand.NewSource(int64(xxh3.HashStringSeed(field, w.seed^key)))
		return rand.New(src).Float64()
	default:
		// top 53 bits as a float in [0, 1)
		return float64(xxh3.HashString(field)>>11) / (1 << 53)
	}
}

// RecordKey fingerprints the values rec holds for fields, in order.
// Records with equal values for those fields share a key.
func RecordKey(rec record.Record, fields []string) uint64 {
	var sb strings.Builder
	for _, f := range fields {
		v, ok := rec.Lookup(f)
		if !ok {
			continue
		}
		sb.WriteString(f)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		sb.WriteByte(';')
	}
	return xxh3.HashString(sb.String())
}
