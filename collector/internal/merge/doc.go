// Package merge folds a validated observation batch into a feed's history.
//
// Merge is a pure function of (history, batch, Policy). Checks run in order:
// an empty history is seeded with the batch as is; a batch ending at or
// before the history end is Unchanged; an anchored feed whose batch does not
// end on the anchor hour is NotAnchored; a batch starting more than one
// interval after the history end fails with *GapError; a batch with other
// columns fails with ErrSchemaMismatch. Otherwise the strictly newer rows are
// appended and, when the policy asks for it, the record is resampled onto
// its fixed grid.
package merge
