// Package identifier holds the value objects that describe what gets
// de-identified: the column/uid pair, and the append-only reference
// frames that map original values to their surrogates.
package identifier

import (
	"fmt"
	"strconv"
)

// ValueCast is the output representation a transformer casts its
// column to after surrogation.
type ValueCast string

const (
	CastInteger  ValueCast = "integer"
	CastString   ValueCast = "string"
	CastFloat    ValueCast = "float"
	CastDateTime ValueCast = "datetime"
)

// Identifier describes one de-identifiable column: name is the column
// in the current table, uid is the logical identity shared across
// columns and tables that must surrogate to the same space.
type Identifier struct {
	Name        string
	UID         string
	Description string
}

// DeidName is the column name after surrogation — the source column
// is overwritten in place, so this is always Name.
func (id Identifier) DeidName() string { return id.Name }

// DeidUID names the surrogate column of this identifier's ID-map
// reference frame; the frame itself is stored under UID.
func (id Identifier) DeidUID() string { return id.UID + "__deid" }

// ShiftUID names the shift-map reference frame for this identifier's uid.
func (id Identifier) ShiftUID() string { return id.UID + "_shift" }

func (id Identifier) String() string {
	return fmt.Sprintf("%s(uid=%s)", id.Name, id.UID)
}

// Row is one entry of a reference Frame. For ID maps, Deid holds the
// integer surrogate (as a decimal string); for shift maps, Shift holds
// the per-entity temporal offset.
type Row struct {
	Value string
	Deid  string
	Shift float64
}

// Frame is an ordered, append-only sequence of rows for one uid, plus
// a value -> position index for O(1) append-or-lookup. This is the Go
// analogue of the source's in-memory tabular join: persistence can
// still be a flat table (see internal/ioadapter), but lookups during a
// run never re-scan the whole frame.
type Frame struct {
	Rows  []Row
	index map[string]int
}

// NewFrame builds a Frame from already-loaded rows, constructing the
// lookup index. Used when loading a reference store from storage.
func NewFrame(rows []Row) *Frame {
	f := &Frame{Rows: rows, index: make(map[string]int, len(rows))}
	for i, r := range rows {
		f.index[r.Value] = i
	}
	return f
}

// Lookup returns the row for value and whether it was present.
func (f *Frame) Lookup(value string) (Row, bool) {
	if f == nil {
		return Row{}, false
	}
	i, ok := f.index[value]
	if !ok {
		return Row{}, false
	}
	return f.Rows[i], ok
}

// LookupByDeid finds the row whose Deid surrogate equals deid — used
// by the ID transformer's reverse mode.
func (f *Frame) LookupByDeid(deid string) (Row, bool) {
	if f == nil {
		return Row{}, false
	}
	for _, r := range f.Rows {
		if r.Deid == deid {
			return r, true
		}
	}
	return Row{}, false
}

// MaxDeid returns the highest integer surrogate currently assigned
// (0 if the frame is empty), used to allocate the next contiguous run.
func (f *Frame) MaxDeid() int {
	max := 0
	for _, r := range f.Rows {
		if n, err := strconv.Atoi(r.Deid); err == nil && n > max {
			max = n
		}
	}
	return max
}

// Append adds a new row and indexes it. Callers must already hold
// whatever lock protects this frame (see internal/refstore).
func (f *Frame) Append(r Row) {
	if f.index == nil {
		f.index = make(map[string]int)
	}
	f.index[r.Value] = len(f.Rows)
	f.Rows = append(f.Rows, r)
}

// Clone returns a deep copy safe to hand to a reader outside the lock.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	rows := make([]Row, len(f.Rows))
	copy(rows, f.Rows)
	return NewFrame(rows)
}
