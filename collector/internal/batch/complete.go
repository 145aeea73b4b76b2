package batch

import (
	"slices"

	"github.com/steamstats/steamstats/pkg/series"
)

// Complete reports whether t carries exactly the expected columns: none
// missing, none extra, none repeated. A nil expected set accepts any
// non-empty set of distinct columns.
func Complete(t *series.Table, expected []string) bool {
	if t == nil || len(t.Columns) == 0 {
		return false
	}
	if expected == nil {
		return series.SameColumns(t.Columns, t.Columns)
	}
	return series.SameColumns(t.Columns, expected)
}

// Diff returns the expected columns absent from t and the columns of t that
// were not expected, both sorted. Used to explain a failed Complete.
func Diff(t *series.Table, expected []string) (missing, extra []string) {
	var have []string
	if t != nil {
		have = t.Columns
	}
	for _, c := range expected {
		if !slices.Contains(have, c) {
			missing = append(missing, c)
		}
	}
	for _, c := range have {
		if !slices.Contains(expected, c) {
			extra = append(extra, c)
		}
	}
	slices.Sort(missing)
	slices.Sort(extra)
	return missing, extra
}
