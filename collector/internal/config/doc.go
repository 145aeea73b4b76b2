// Package config loads the collector configuration file (collector.yaml).
//
// Top-level types:
//   - Config{Collector}: full config tree parsed from YAML
//   - CollectorConfig: client, lock_timeout, metrics_file, feeds [], webhooks []
//   - ClientConfig: timeout, retries, retry_wait, user_agents
//   - Feed: id, kind (bandwidth|support), endpoint, categories, interval,
//     anchor_hour, resample, history, language, label_suffix
//   - WebhookConfig: type (slack|teams|http), url_env; URL() resolves from
//     the environment
//
// Load(path) reads the YAML file, applies defaults (10s timeout, 2 retries,
// 30s lock timeout, the two Steam feeds when none are listed, per-kind
// interval/language/suffix), then validates required fields and enums.
// Default() returns the same tree without reading a file.
package config
