// Package record holds the tabular data the detector works on: records of
// named numeric fields, with explicit missing values.
package record

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// ErrNotNumeric is returned when a raw value cannot be coerced to a number.
var ErrNotNumeric = errors.New("record: value is not numeric")

// Value is a numeric cell that may be missing. The zero value is Missing.
type Value struct {
	num float64
	ok  bool
}

// Missing is the absent value.
var Missing = Value{}

// Num returns a present value. NaN is treated as missing.
func Num(f float64) Value {
	if math.IsNaN(f) {
		return Missing
	}
	return Value{num: f, ok: true}
}

// Float returns the number and whether it is present.
func (v Value) Float() (float64, bool) { return v.num, v.ok }

// IsMissing reports whether the value is absent.
func (v Value) IsMissing() bool { return !v.ok }

// String implements fmt.Stringer.
func (v Value) String() string {
	if !v.ok {
		return "NA"
	}
	return cast.ToString(v.num)
}

var missingTokens = map[string]struct{}{
	"": {}, "na": {}, "nan": {}, "null": {}, "none": {}, "n/a": {},
}

// Coerce converts a raw cell into a Value. Numbers and numeric strings keep
// their value, booleans (including "true"/"false" strings) become 1 and 0,
// and nil, NaN and the usual missing markers ("", "NA", "null", ...) become
// Missing.
func Coerce(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Missing, nil
	case Value:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if _, ok := missingTokens[strings.ToLower(s)]; ok {
			return Missing, nil
		}
		raw = s
	}
	if f, err := cast.ToFloat64E(raw); err == nil {
		return Num(f), nil
	}
	if b, err := cast.ToBoolE(raw); err == nil {
		if b {
			return Num(1), nil
		}
		return Num(0), nil
	}
	return Missing, fmt.Errorf("%w: %v", ErrNotNumeric, raw)
}

// Record is one row: field name to value. Fields absent from the map are
// missing.
type Record map[string]Value

// FromMap coerces every entry of m.
func FromMap(m map[string]any) (Record, error) {
	out := make(Record, len(m))
	for k, raw := range m {
		v, err := Coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Lookup returns the numeric value of field and whether it is present.
func (r Record) Lookup(field string) (float64, bool) {
	return r[field].Float()
}

// Present returns the names of the present fields, sorted.
func (r Record) Present() []string {
	out := make([]string, 0, len(r))
	for k, v := range r {
		if v.ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
