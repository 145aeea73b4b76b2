// Package pipeline runs one ingestion cycle across every configured feed.
//
// Feeds are processed one after another: lock history, read it, probe the
// provider for the freshest complete batch, merge, write back, unlock. A feed
// with no new data, nothing newer, or an unanchored batch is skipped. A feed
// that fails (gap, schema mismatch, lock timeout, I/O) is recorded and the
// next feed still runs. After all feeds the run report is written and each
// failure is sent to the configured webhooks.
package pipeline
