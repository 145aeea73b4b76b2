package series

import (
	"database/sql"
	"time"
)

// Violation kinds reported by Check.
const (
	ViolationDuplicate = "duplicate"
	ViolationDisorder  = "disorder"
	ViolationGap       = "gap"
	ViolationOffGrid   = "off_grid"
)

// Violation describes a break between the rows at Index-1 and Index.
type Violation struct {
	Index int
	Kind  string
	Prev  time.Time
	Next  time.Time
}

// Resample re-indexes t onto a grid of the given step, aligned to midnight
// UTC, from the slot of the first row to the slot of the last row. Rows must
// be sorted. Each row lands in the slot its timestamp truncates to; when
// several rows share a slot, later valid cells replace earlier ones. Slots
// with no observation hold missing cells.
func (t *Table) Resample(step time.Duration) *Table {
	out := New(t.Columns)
	if t.Empty() || step <= 0 {
		out.Rows = cloneRows(t.Rows)
		return out
	}

	first := t.Start().Truncate(step)
	last := t.End().Truncate(step)
	n := int(last.Sub(first)/step) + 1

	out.Rows = make([]Row, n)
	for i := range out.Rows {
		out.Rows[i] = Row{
			Time:   first.Add(time.Duration(i) * step),
			Values: make([]sql.NullInt64, len(t.Columns)),
		}
	}
	for _, r := range t.Rows {
		slot := int(r.Time.Truncate(step).Sub(first) / step)
		if slot < 0 || slot >= n {
			continue // unsorted input
		}
		for j, v := range r.Values {
			if v.Valid {
				out.Rows[slot].Values[j] = v
			}
		}
	}
	return out
}

// Check walks adjacent rows and reports ordering and cadence violations.
// Duplicates and out-of-order rows are always reported. A step larger than
// the interval is a gap; when grid is set, a step shorter than the interval
// is reported as off-grid as well.
func (t *Table) Check(interval time.Duration, grid bool) []Violation {
	var out []Violation
	for i := 1; i < t.Len(); i++ {
		prev, next := t.Rows[i-1].Time, t.Rows[i].Time
		d := next.Sub(prev)

		var kind string
		switch {
		case d == 0:
			kind = ViolationDuplicate
		case d < 0:
			kind = ViolationDisorder
		case interval > 0 && d > interval:
			kind = ViolationGap
		case grid && d != interval:
			kind = ViolationOffGrid
		default:
			continue
		}
		out = append(out, Violation{Index: i, Kind: kind, Prev: prev, Next: next})
	}
	return out
}

// Missing counts the rows whose cells are all missing.
func (t *Table) Missing() int {
	var n int
	for _, r := range t.Rows {
		empty := true
		for _, v := range r.Values {
			if v.Valid {
				empty = false
				break
			}
		}
		if empty {
			n++
		}
	}
	return n
}
