// Package probe fetches the freshest complete observation batch for a feed.
//
// Each feed kind has a Prober: the bandwidth prober (bandwidth.go) fetches
// every cache-buster candidate and keeps the complete batch with the latest
// final timestamp; the support prober (support.go) fetches the series list
// once with a time-based cache version. Factory: New(config.Feed,
// config.ClientConfig) returns the correct Prober.
//
// Selection is the pure fold Freshest(tables, expected). Candidates that fail
// to fetch, fail to parse, or are incomplete are skipped; when none remain
// the prober returns an error wrapping ErrNoData.
//
// Requests share one http.Client built in base.go: a per-request timeout, a
// random User-Agent from the configured pool (userAgentRoundTripper) and
// bounded exponential-backoff retries on transient failures.
package probe
