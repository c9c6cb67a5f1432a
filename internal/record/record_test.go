package record

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     any
		want    float64
		missing bool
	}{
		{name: "int", raw: 15, want: 15},
		{name: "float", raw: 0.6, want: 0.6},
		{name: "numeric string", raw: " 200 ", want: 200},
		{name: "bool true", raw: true, want: 1},
		{name: "bool false", raw: false, want: 0},
		{name: "string true", raw: "true", want: 1},
		{name: "string FALSE", raw: "FALSE", want: 0},
		{name: "nil", raw: nil, missing: true},
		{name: "empty", raw: "  ", missing: true},
		{name: "NA", raw: "NA", missing: true},
		{name: "NaN float", raw: math.NaN(), missing: true},
		{name: "value passthrough", raw: Num(3), want: 3},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v, err := Coerce(tc.raw)
			require.NoError(t, err)
			if tc.missing {
				assert.True(t, v.IsMissing())
				return
			}
			f, ok := v.Float()
			require.True(t, ok)
			assert.InDelta(t, tc.want, f, 1e-12)
		})
	}

	_, err := Coerce("twelve")
	require.ErrorIs(t, err, ErrNotNumeric)
}

func TestRecord(t *testing.T) {
	t.Parallel()

	r, err := FromMap(map[string]any{"age": "15", "married": true, "income": nil})
	require.NoError(t, err)

	age, ok := r.Lookup("age")
	require.True(t, ok)
	assert.Equal(t, 15.0, age)
	_, ok = r.Lookup("income")
	assert.False(t, ok)
	_, ok = r.Lookup("unknown")
	assert.False(t, ok)
	assert.Equal(t, []string{"age", "married"}, r.Present())

	c := r.Clone()
	c["age"] = Num(16)
	age, _ = r.Lookup("age")
	assert.Equal(t, 15.0, age)

	_, err = FromMap(map[string]any{"x": "abc"})
	require.ErrorIs(t, err, ErrNotNumeric)
	assert.Equal(t, "NA", Missing.String())
}

func TestDataset(t *testing.T) {
	t.Parallel()

	d, err := FromMaps([]string{"a", "b"}, []map[string]any{
		{"a": 1, "b": 2},
		{"a": 3},
	})
	require.NoError(t, err)
	require.Equal(t, 2, d.Len())
	assert.Equal(t, []any{3.0, nil}, d.Values(1))
	assert.Equal(t, 1, d.Label(1))

	c := d.Clone()
	c.Rows[0]["a"] = Num(9)
	a, _ := d.Rows[0].Lookup("a")
	assert.Equal(t, 1.0, a)

	d.AppendLabelled(42, Record{"a": Num(5)})
	assert.Equal(t, 42, d.Label(2))

	_, err = FromMaps([]string{"a"}, []map[string]any{{"a": "x"}})
	require.Error(t, err)
}
