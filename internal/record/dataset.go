package record

import "fmt"

// Dataset is an ordered collection of records sharing a column list.
// Rows are addressed by their position; Index holds the row labels
// (source line numbers for CSV input) and is parallel to Rows.
type Dataset struct {
	Columns []string
	Rows    []Record
	Index   []int
}

// NewDataset returns an empty dataset with the given columns.
func NewDataset(columns ...string) *Dataset {
	return &Dataset{Columns: columns}
}

// Append adds a record labelled with the next position.
func (d *Dataset) Append(r Record) {
	d.AppendLabelled(len(d.Rows), r)
}

// AppendLabelled adds a record with an explicit label.
func (d *Dataset) AppendLabelled(label int, r Record) {
	d.Rows = append(d.Rows, r)
	d.Index = append(d.Index, label)
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// Label returns the label of row i.
func (d *Dataset) Label(i int) int {
	if i < len(d.Index) {
		return d.Index[i]
	}
	return i
}

// Clone deep-copies the dataset.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		Columns: append([]string(nil), d.Columns...),
		Rows:    make([]Record, len(d.Rows)),
		Index:   append([]int(nil), d.Index...),
	}
	for i, r := range d.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// FromMaps builds a dataset from raw rows, coercing every cell.
func FromMaps(columns []string, rows []map[string]any) (*Dataset, error) {
	d := NewDataset(columns...)
	for i, m := range rows {
		r, err := FromMap(m)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		d.Append(r)
	}
	return d, nil
}

// Values returns row i as a []any in column order, with nil for missing
// cells. Used by output sinks.
func (d *Dataset) Values(i int) []any {
	r := d.Rows[i]
	out := make([]any, len(d.Columns))
	for j, c := range d.Columns {
		if f, ok := r.Lookup(c); ok {
			out[j] = f
		}
	}
	return out
}
