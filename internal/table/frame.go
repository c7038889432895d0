// Package table holds the in-memory columnar representation of one
// segment of a table, which internal/transform's pipeline reads and
// mutates.
package table

import "fmt"

// Frame is a columnar view over one segment's rows: Columns gives the
// ordered column names, Rows holds one []any per row in column order.
// A row's position in Rows is its original order — transformers that
// split/filter/recombine rows must restore this order.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// NewFrame builds a Frame, validating that every row has the right
// column count.
func NewFrame(columns []string, rows [][]any) (*Frame, error) {
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d columns", i, len(row), len(columns))
		}
	}
	return &Frame{Columns: columns, Rows: rows}, nil
}

// ColumnIndex returns the position of name in Columns, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether name is a column of this frame.
func (f *Frame) HasColumn(name string) bool {
	return f.ColumnIndex(name) >= 0
}

// Column returns the values of the named column in row order. The
// second return is false if the column does not exist.
func (f *Frame) Column(name string) ([]any, bool) {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]any, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row[idx]
	}
	return out, true
}

// SetColumn overwrites the named column in place with values (one per
// row, same order). It is an error if len(values) != len(f.Rows).
func (f *Frame) SetColumn(name string, values []any) error {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return fmt.Errorf("column %q not found", name)
	}
	if len(values) != len(f.Rows) {
		return fmt.Errorf("SetColumn(%q): %d values for %d rows", name, len(values), len(f.Rows))
	}
	for i, v := range values {
		f.Rows[i][idx] = v
	}
	return nil
}

// DropColumn returns a new Frame with name removed. It is a no-op
// (returns a copy made by Clone) if the column is absent.
func (f *Frame) DropColumn(name string) *Frame {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return f.Clone()
	}
	cols := make([]string, 0, len(f.Columns)-1)
	cols = append(cols, f.Columns[:idx]...)
	cols = append(cols, f.Columns[idx+1:]...)

	rows := make([][]any, len(f.Rows))
	for i, row := range f.Rows {
		r := make([]any, 0, len(row)-1)
		r = append(r, row[:idx]...)
		r = append(r, row[idx+1:]...)
		rows[i] = r
	}
	return &Frame{Columns: cols, Rows: rows}
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	cols := make([]string, len(f.Columns))
	copy(cols, f.Columns)
	rows := make([][]any, len(f.Rows))
	for i, row := range f.Rows {
		r := make([]any, len(row))
		copy(r, row)
		rows[i] = r
	}
	return &Frame{Columns: cols, Rows: rows}
}

// Select returns a new Frame containing only the rows at the given
// indices, in the order given.
func (f *Frame) Select(indices []int) *Frame {
	rows := make([][]any, len(indices))
	for i, idx := range indices {
		r := make([]any, len(f.Rows[idx]))
		copy(r, f.Rows[idx])
		rows[i] = r
	}
	cols := make([]string, len(f.Columns))
	copy(cols, f.Columns)
	return &Frame{Columns: cols, Rows: rows}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }
