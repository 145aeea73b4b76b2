// Package series defines the timestamp-indexed table shared by the collector
// and anything that reads its history files (dashboards, notebooks).
//
// A Table holds ordered column names and rows; each Row carries a UTC
// timestamp and one nullable integer per column. A missing cell is a
// sql.NullInt64 with Valid == false and is distinct from a zero count.
//
// table.go: construction, Join (outer join of single-column series), Sort,
// After, Reorder, Concat.
// resample.go: Resample onto a fixed grid and Check for ordering/cadence
// violations.
// csv.go: ReadCSV / WriteCSV for the on-disk format
// (header "Timestamp,<columns...>", empty cell = missing).
package series
