// Package report writes the outcome of a collector run as a Prometheus
// text-exposition file for the node-exporter textfile collector.
//
// Per-run gauges (last run time and success, rows appended, outcome) are
// rebuilt every run. last_success_timestamp_seconds, history_end and the
// failures_total counter are carried forward from the previous file for
// feeds that did not report them this run, so a scheduler that stops
// running the collector leaves a visibly stale file rather than an empty one.
package report
