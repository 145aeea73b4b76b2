package merge

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/steamstats/steamstats/pkg/series"
)

var (
	day     = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	regions = []string{"Europe", "Asia", "Oceania"}
	step    = 10 * time.Minute
)

var bandwidth = Policy{Interval: step, Resample: true}

// table builds a table with one row per timestamp; every cell holds the
// row's minute offset from day.
func table(cols []string, times ...time.Time) *series.Table {
	t := series.New(cols)
	for _, ts := range times {
		vals := make([]sql.NullInt64, len(cols))
		for i := range vals {
			vals[i] = series.Int(int64(ts.Sub(day) / time.Minute))
		}
		t.Rows = append(t.Rows, series.Row{Time: ts, Values: vals})
	}
	return t
}

// span returns timestamps from..to (inclusive, minutes after day) every step.
func span(from, to int) []time.Time {
	var out []time.Time
	for m := from; m <= to; m += int(step / time.Minute) {
		out = append(out, day.Add(time.Duration(m)*time.Minute))
	}
	return out
}

func hour(h int) *int { return &h }

func TestMerge_SeedsEmptyHistory(t *testing.T) {
	batch := table(regions, day.Add(20*time.Minute), day, day.Add(10*time.Minute))

	for _, old := range []*series.Table{nil, series.New(nil)} {
		res, err := Merge(old, batch, bandwidth)
		if err != nil {
			t.Fatalf("Merge() error = %v", err)
		}
		if res.Outcome != Seeded {
			t.Errorf("Outcome = %q, want seeded", res.Outcome)
		}
		if res.Added != 3 || res.Table.Len() != 3 {
			t.Errorf("Added = %d, Len = %d, want 3", res.Added, res.Table.Len())
		}
		if !res.Table.Start().Equal(day) || !res.End.Equal(day.Add(20*time.Minute)) {
			t.Errorf("range = %v..%v, want sorted batch", res.Table.Start(), res.End)
		}
	}

	if batch.Rows[0].Time != day.Add(20*time.Minute) {
		t.Error("Merge() modified its batch argument")
	}
}

func TestMerge_SeedKeepsHeaderOrder(t *testing.T) {
	header := series.New([]string{"Oceania", "Europe", "Asia"})
	res, err := Merge(header, table(regions, day), bandwidth)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got := res.Table.Columns; got[0] != "Oceania" || got[2] != "Asia" {
		t.Errorf("Columns = %q, want header order", got)
	}

	_, err = Merge(series.New([]string{"Pending"}), table(regions, day), bandwidth)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Merge() error = %v, want ErrSchemaMismatch", err)
	}
}

func TestMerge_AppendsContiguousBatch(t *testing.T) {
	old := table(regions, span(-20, 0)...)
	batch := table(regions, span(10, 60)...)

	res, err := Merge(old, batch, bandwidth)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Outcome != Appended {
		t.Fatalf("Outcome = %q, want appended", res.Outcome)
	}
	if res.Added != 6 {
		t.Errorf("Added = %d, want 6", res.Added)
	}
	if want := day.Add(time.Hour); !res.End.Equal(want) {
		t.Errorf("End = %v, want %v", res.End, want)
	}
	if res.Table.Len() != 9 {
		t.Errorf("Len() = %d, want 9", res.Table.Len())
	}
	if v := res.Table.Check(step, true); len(v) != 0 {
		t.Errorf("Check() = %+v, want none", v)
	}
	if n := res.Table.Missing(); n != 0 {
		t.Errorf("Missing() = %d, want 0", n)
	}
	if old.Len() != 3 {
		t.Error("Merge() modified its history argument")
	}
}

func TestMerge_OverlapTakesOnlyNewerRows(t *testing.T) {
	old := table(regions, span(0, 30)...)
	batch := table(regions, span(10, 50)...)

	res, err := Merge(old, batch, bandwidth)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Added != 2 {
		t.Errorf("Added = %d, want 2", res.Added)
	}
	if v := res.Table.Check(step, true); len(v) != 0 {
		t.Errorf("Check() = %+v, want none", v)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	old := table(regions, span(0, 60)...)

	tests := []struct {
		name  string
		batch *series.Table
	}{
		{"same batch", table(regions, span(0, 60)...)},
		{"older batch", table(regions, span(0, 30)...)},
		{"ends at history end", table(regions, span(40, 60)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Merge(old, tt.batch, bandwidth)
			if err != nil {
				t.Fatalf("Merge() error = %v", err)
			}
			if res.Outcome != Unchanged {
				t.Errorf("Outcome = %q, want unchanged", res.Outcome)
			}
			if res.Outcome.Changed() {
				t.Error("Changed() = true, want false")
			}
			if res.Table != old {
				t.Error("Table is not the untouched history")
			}
		})
	}
}

func TestMerge_GapEnforcement(t *testing.T) {
	old := table(regions, span(-20, 0)...)

	tests := []struct {
		name    string
		start   int
		wantGap time.Duration
	}{
		{"exactly one interval", 10, 0},
		{"overlapping", -10, 0},
		{"off-grid start fills the next slot", 11, 0},
		{"twenty minutes", 20, 20 * time.Minute},
		{"thirty minutes", 30, 30 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := table(regions, span(tt.start, 60)...)
			res, err := Merge(old, batch, bandwidth)

			if tt.wantGap == 0 {
				if err != nil {
					t.Fatalf("Merge() error = %v, want nil", err)
				}
				if res.Outcome != Appended {
					t.Errorf("Outcome = %q, want appended", res.Outcome)
				}
				return
			}

			var gap *GapError
			if !errors.As(err, &gap) {
				t.Fatalf("Merge() error = %v, want *GapError", err)
			}
			if gap.Gap() != tt.wantGap {
				t.Errorf("Gap() = %v, want %v", gap.Gap(), tt.wantGap)
			}
			if !gap.OldEnd.Equal(day) || gap.Interval != step {
				t.Errorf("GapError = %+v", gap)
			}
			if res != nil {
				t.Error("Result returned alongside gap error")
			}
		})
	}
}

func TestMerge_AnchorGate(t *testing.T) {
	statuses := []string{"Pending", "Processed"}
	daily := Policy{Interval: 24 * time.Hour, AnchorHour: hour(7)}

	at := func(d, h int) time.Time { return day.AddDate(0, 0, d).Add(time.Duration(h) * time.Hour) }
	old := table(statuses, at(0, 7), at(1, 7))

	t.Run("off anchor", func(t *testing.T) {
		res, err := Merge(old, table(statuses, at(2, 7), at(2, 15)), daily)
		if err != nil {
			t.Fatalf("Merge() error = %v", err)
		}
		if res.Outcome != NotAnchored {
			t.Errorf("Outcome = %q, want not_anchored", res.Outcome)
		}
		if res.Table != old {
			t.Error("Table is not the untouched history")
		}
	})

	t.Run("on anchor", func(t *testing.T) {
		res, err := Merge(old, table(statuses, at(1, 7), at(2, 7)), daily)
		if err != nil {
			t.Fatalf("Merge() error = %v", err)
		}
		if res.Outcome != Appended || res.Added != 1 {
			t.Errorf("Outcome = %q Added = %d, want appended 1", res.Outcome, res.Added)
		}
		if res.Table.Len() != 3 {
			t.Errorf("Len() = %d, want 3", res.Table.Len())
		}
	})

	t.Run("stale batch is unchanged before anchor check", func(t *testing.T) {
		res, err := Merge(old, table(statuses, at(0, 9)), daily)
		if err != nil {
			t.Fatalf("Merge() error = %v", err)
		}
		if res.Outcome != Unchanged {
			t.Errorf("Outcome = %q, want unchanged", res.Outcome)
		}
	})

	t.Run("missed day is a gap", func(t *testing.T) {
		_, err := Merge(old, table(statuses, at(3, 7)), daily)
		var gap *GapError
		if !errors.As(err, &gap) {
			t.Fatalf("Merge() error = %v, want *GapError", err)
		}
		if gap.Gap() != 48*time.Hour {
			t.Errorf("Gap() = %v, want 48h", gap.Gap())
		}
	})
}

func TestMerge_SchemaMismatch(t *testing.T) {
	old := table(regions, span(0, 20)...)
	batch := table([]string{"Europe", "Asia", "Africa"}, span(30, 40)...)

	if _, err := Merge(old, batch, bandwidth); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("Merge() error = %v, want ErrSchemaMismatch", err)
	}
}

func TestMerge_ReordersBatchColumns(t *testing.T) {
	old := table(regions, span(0, 10)...)
	batch := table([]string{"Oceania", "Asia", "Europe"}, span(20, 20)...)
	batch.Rows[0].Values = []sql.NullInt64{series.Int(3), series.Int(2), series.Int(1)}

	res, err := Merge(old, batch, bandwidth)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	last := res.Table.Rows[res.Table.Len()-1].Values
	for i, want := range []int64{1, 2, 3} {
		if last[i].Int64 != want {
			t.Errorf("%s = %d, want %d", regions[i], last[i].Int64, want)
		}
	}
}

func TestMerge_ResamplesOntoGrid(t *testing.T) {
	old := table(regions, span(-20, 0)...)
	batch := table(regions,
		day.Add(10*time.Minute),
		day.Add(21*time.Minute),
		day.Add(43*time.Minute),
	)

	res, err := Merge(old, batch, bandwidth)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	wantTimes := span(-20, 40)
	if res.Table.Len() != len(wantTimes) {
		t.Fatalf("Len() = %d, want %d", res.Table.Len(), len(wantTimes))
	}
	for i, ts := range wantTimes {
		if !res.Table.Rows[i].Time.Equal(ts) {
			t.Errorf("row %d = %v, want %v", i, res.Table.Rows[i].Time, ts)
		}
	}
	if v := res.Table.Check(step, true); len(v) != 0 {
		t.Errorf("Check() = %+v, want none", v)
	}
	if n := res.Table.Missing(); n != 1 {
		t.Errorf("Missing() = %d, want 1 (00:30 slot)", n)
	}
	if got := res.Table.Rows[4].Values[0].Int64; got != 21 {
		t.Errorf("00:20 slot = %d, want the 00:21 observation", got)
	}
	if res.Added != 3 {
		t.Errorf("Added = %d, want 3", res.Added)
	}
}

func TestMerge_OffGridBatches(t *testing.T) {
	// provider stamps fall five minutes past each slot
	offset := func(from, to int) []time.Time {
		var out []time.Time
		for _, ts := range span(from, to) {
			out = append(out, ts.Add(5*time.Minute))
		}
		return out
	}

	seeded, err := Merge(nil, table(regions, offset(-20, 0)...), bandwidth)
	if err != nil {
		t.Fatalf("seed Merge() error = %v", err)
	}

	batch := table(regions, offset(10, 40)...)
	first, err := Merge(seeded.Table, batch, bandwidth)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if first.Outcome != Appended || first.Added != 4 {
		t.Fatalf("Outcome = %q Added = %d, want appended 4", first.Outcome, first.Added)
	}
	if want := day.Add(40 * time.Minute); !first.End.Equal(want) {
		t.Errorf("End = %v, want %v", first.End, want)
	}
	if v := first.Table.Check(step, true); len(v) != 0 {
		t.Errorf("Check() = %+v, want none", v)
	}

	again, err := Merge(first.Table, batch, bandwidth)
	if err != nil {
		t.Fatalf("repeat Merge() error = %v", err)
	}
	if again.Outcome != Unchanged {
		t.Errorf("repeat Outcome = %q Added = %d, want unchanged", again.Outcome, again.Added)
	}

	next, err := Merge(first.Table, table(regions, offset(50, 70)...), bandwidth)
	if err != nil {
		t.Fatalf("contiguous Merge() error = %v, want nil", err)
	}
	if next.Outcome != Appended || next.Added != 3 {
		t.Errorf("Outcome = %q Added = %d, want appended 3", next.Outcome, next.Added)
	}
	if v := next.Table.Check(step, true); len(v) != 0 {
		t.Errorf("Check() = %+v, want none", v)
	}
}

func TestMerge_NoResampleKeepsObservedTimes(t *testing.T) {
	daily := Policy{Interval: 24 * time.Hour}
	old := table(regions, day)
	batch := table(regions, day.Add(3*time.Hour), day.Add(5*time.Hour))

	res, err := Merge(old, batch, daily)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Table.Len() != 3 {
		t.Errorf("Len() = %d, want 3", res.Table.Len())
	}
}

func TestMerge_EmptyBatch(t *testing.T) {
	if _, err := Merge(table(regions, day), series.New(regions), bandwidth); err == nil {
		t.Fatal("Merge() error = nil, want error")
	}
}
