package series

import (
	"database/sql"
	"fmt"
	"slices"
	"time"
)

// Row is one timestamped observation. Values is parallel to Table.Columns.
type Row struct {
	Time   time.Time
	Values []sql.NullInt64
}

// Table is a set of integer columns indexed by timestamp.
type Table struct {
	Columns []string
	Rows    []Row
}

// Point is a single observation of one column.
type Point struct {
	Time  time.Time
	Value sql.NullInt64
}

// Column is one named series as decoded from a provider payload.
type Column struct {
	Name   string
	Points []Point
}

// New returns an empty table with the given columns.
func New(columns []string) *Table {
	return &Table{Columns: slices.Clone(columns)}
}

// Int returns a valid cell holding v.
func Int(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

// Len returns the number of rows. A nil table has none.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether t has no rows.
func (t *Table) Empty() bool { return t.Len() == 0 }

// Start returns the first timestamp, or the zero time for an empty table.
func (t *Table) Start() time.Time {
	if t.Empty() {
		return time.Time{}
	}
	return t.Rows[0].Time
}

// End returns the last timestamp, or the zero time for an empty table.
func (t *Table) End() time.Time {
	if t.Empty() {
		return time.Time{}
	}
	return t.Rows[len(t.Rows)-1].Time
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	return slices.Index(t.Columns, name)
}

// Sort orders rows by ascending timestamp. Rows sharing a timestamp keep
// their relative order.
func (t *Table) Sort() {
	slices.SortStableFunc(t.Rows, func(a, b Row) int {
		return a.Time.Compare(b.Time)
	})
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	out := New(t.Columns)
	out.Rows = cloneRows(t.Rows)
	return out
}

// After returns a copy of t holding only the rows strictly after ts.
func (t *Table) After(ts time.Time) *Table {
	out := New(t.Columns)
	for _, r := range t.Rows {
		if r.Time.After(ts) {
			out.Rows = append(out.Rows, cloneRow(r))
		}
	}
	return out
}

// Reorder returns a copy of t whose columns follow order. It fails unless
// order names exactly the columns of t.
func (t *Table) Reorder(order []string) (*Table, error) {
	if !SameColumns(t.Columns, order) {
		return nil, fmt.Errorf("series: columns %q cannot be reordered as %q", t.Columns, order)
	}
	src := make([]int, len(order))
	for i, name := range order {
		src[i] = t.Index(name)
	}
	out := New(order)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		vals := make([]sql.NullInt64, len(order))
		for j, k := range src {
			vals[j] = r.Values[k]
		}
		out.Rows[i] = Row{Time: r.Time, Values: vals}
	}
	return out, nil
}

// Concat returns a new table with the rows of t followed by the rows of
// other. Both tables must have identical columns in the same order.
func (t *Table) Concat(other *Table) (*Table, error) {
	if !slices.Equal(t.Columns, other.Columns) {
		return nil, fmt.Errorf("series: concat columns %q with %q", t.Columns, other.Columns)
	}
	out := New(t.Columns)
	out.Rows = make([]Row, 0, len(t.Rows)+len(other.Rows))
	out.Rows = append(out.Rows, cloneRows(t.Rows)...)
	out.Rows = append(out.Rows, cloneRows(other.Rows)...)
	return out, nil
}

// SameColumns reports whether a and b name the same columns, ignoring order.
// Duplicate names never match.
func SameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, c := range a {
		if seen[c] {
			return false
		}
		seen[c] = true
	}
	for _, c := range b {
		if !seen[c] {
			return false
		}
		delete(seen, c)
	}
	return true
}

// Join outer-joins cols on timestamp and sorts the result. A timestamp absent
// from a column leaves that cell missing; a later point for the same
// timestamp within one column replaces the earlier one.
func Join(cols []Column) *Table {
	t := &Table{Columns: make([]string, len(cols))}
	rowAt := make(map[int64]int)
	for i, c := range cols {
		t.Columns[i] = c.Name
	}
	for i, c := range cols {
		for _, p := range c.Points {
			key := p.Time.UnixNano()
			r, ok := rowAt[key]
			if !ok {
				r = len(t.Rows)
				rowAt[key] = r
				t.Rows = append(t.Rows, Row{
					Time:   p.Time.UTC(),
					Values: make([]sql.NullInt64, len(cols)),
				})
			}
			t.Rows[r].Values[i] = p.Value
		}
	}
	t.Sort()
	return t
}

func cloneRow(r Row) Row {
	return Row{Time: r.Time, Values: slices.Clone(r.Values)}
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = cloneRow(r)
	}
	return out
}
