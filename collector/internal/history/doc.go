// Package history persists each feed's accumulated time series as a CSV file.
//
// A Store owns one file. Read returns ErrEmpty when the file does not exist
// yet. Write replaces the file atomically (temp file in the same directory,
// fsync, rename) so readers never observe a partially written history.
// Lock takes an advisory <path>.lock file lock so overlapping collector runs
// do not interleave read-merge-write cycles on the same feed.
package history
