package merge

import (
	"errors"
	"fmt"
	"time"

	"github.com/steamstats/steamstats/pkg/series"
)

// Outcome describes what a merge did to the history.
type Outcome string

const (
	// Seeded means there was no history; the batch became the record.
	Seeded Outcome = "seeded"
	// Appended means newer rows were added to the history.
	Appended Outcome = "appended"
	// Unchanged means the batch held nothing newer than the history.
	Unchanged Outcome = "unchanged"
	// NotAnchored means the batch's last observation is not yet final.
	NotAnchored Outcome = "not_anchored"
)

// Changed reports whether the history must be written back.
func (o Outcome) Changed() bool {
	return o == Seeded || o == Appended
}

// ErrSchemaMismatch is returned when batch and history columns differ.
var ErrSchemaMismatch = errors.New("batch columns do not match history")

// GapError reports a batch that starts too long after the history ends.
type GapError struct {
	OldEnd   time.Time
	NewStart time.Time
	Interval time.Duration
}

// Gap is the time between the history end and the batch start.
func (e *GapError) Gap() time.Duration { return e.NewStart.Sub(e.OldEnd) }

func (e *GapError) Error() string {
	return fmt.Sprintf("merge: gap of %s between history end %s and batch start %s exceeds interval %s",
		e.Gap(), e.OldEnd.UTC().Format(time.DateTime), e.NewStart.UTC().Format(time.DateTime), e.Interval)
}

// Policy carries the per-feed merge rules.
type Policy struct {
	// Interval is the nominal spacing of observations. It bounds the gap
	// between history and batch and is the resample step.
	Interval time.Duration
	// AnchorHour, when set, is the UTC hour-of-day the batch's last
	// observation must fall on.
	AnchorHour *int
	// Resample re-indexes the merged record onto the Interval grid.
	Resample bool
}

// Result is the outcome of a merge. Table is the record to persist when
// Outcome.Changed() and the untouched history otherwise.
type Result struct {
	Outcome Outcome
	Table   *series.Table
	// Added counts the fresh rows taken into the record. Grid slots the
	// resample filled with missing cells are not counted.
	Added int
	// End is the last timestamp of Table.
	End time.Time
}

// Merge combines history old with batch under p. Neither input is modified.
func Merge(old, batch *series.Table, p Policy) (*Result, error) {
	if batch.Empty() {
		return nil, fmt.Errorf("merge: empty batch")
	}
	b := batch.Clone()
	b.Sort()

	if old.Empty() {
		return seed(old, b)
	}

	// A resampled history only holds grid slots, so the batch is compared
	// and appended on the same grid.
	base := old
	if p.Resample && p.Interval > 0 {
		base = old.Resample(p.Interval)
		b = b.Resample(p.Interval)
	}

	oldEnd := base.End()
	if !b.End().After(oldEnd) {
		return &Result{Outcome: Unchanged, Table: old, End: old.End()}, nil
	}

	if p.AnchorHour != nil && b.End().UTC().Hour() != *p.AnchorHour {
		return &Result{Outcome: NotAnchored, Table: old, End: old.End()}, nil
	}

	if p.Interval > 0 && b.Start().Sub(oldEnd) > p.Interval {
		return nil, &GapError{OldEnd: oldEnd, NewStart: b.Start(), Interval: p.Interval}
	}

	b, err := b.Reorder(base.Columns)
	if err != nil {
		return nil, fmt.Errorf("merge: %w: history %q, batch %q", ErrSchemaMismatch, old.Columns, batch.Columns)
	}

	fresh := b.After(oldEnd)
	merged, err := base.Concat(fresh)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if p.Resample {
		merged = merged.Resample(p.Interval)
	}

	return &Result{
		Outcome: Appended,
		Table:   merged,
		Added:   fresh.Len() - fresh.Missing(),
		End:     merged.End(),
	}, nil
}

// seed returns the batch as the first record. A header-only history fixes
// the column order; its column set must still match.
func seed(old, b *series.Table) (*Result, error) {
	if old != nil && len(old.Columns) > 0 {
		reordered, err := b.Reorder(old.Columns)
		if err != nil {
			return nil, fmt.Errorf("merge: %w: history %q, batch %q", ErrSchemaMismatch, old.Columns, b.Columns)
		}
		b = reordered
	}
	return &Result{Outcome: Seeded, Table: b, Added: b.Len(), End: b.End()}, nil
}
