package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Feed kinds. The kind selects the request shape and payload parser.
const (
	KindBandwidth = "bandwidth"
	KindSupport   = "support"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultRetries        = 2
	DefaultRetryWait      = time.Second
	DefaultLockTimeout    = 30 * time.Second

	DefaultBandwidthInterval = 10 * time.Minute
	DefaultSupportInterval   = 24 * time.Hour
	DefaultSupportAnchorHour = 7
	DefaultLanguage          = "english"
	DefaultLabelSuffix       = "requests"

	DefaultBandwidthEndpoint = "https://cdn.akamai.steamstatic.com/steam/publicstats/contentserver_bandwidth_stacked.jsonp"
	DefaultSupportEndpoint   = "https://store.steampowered.com/stats/supportdata.json"
	DefaultBandwidthHistory  = "data/bandwidth_usage.csv"
	DefaultSupportHistory    = "data/support_requests.csv"
)

// BandwidthRegions is the category set served by the bandwidth endpoint.
var BandwidthRegions = []string{
	"North America",
	"Central America",
	"South America",
	"Europe",
	"Russia",
	"Middle East",
	"Asia",
	"Oceania",
	"Africa",
}

// DefaultUserAgents is the client identifier pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.2478.80",
}

// Config is the top-level configuration file.
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
}

// CollectorConfig holds all collector settings.
type CollectorConfig struct {
	// Client configures outbound requests to the feed endpoints.
	Client ClientConfig `yaml:"client"`

	// LockTimeout bounds how long a run waits for another run's history lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// MetricsFile is the Prometheus textfile written after every run.
	// Empty disables the report.
	MetricsFile string `yaml:"metrics_file"`

	// Feeds is the list of tracked series. Defaults to the two Steam feeds.
	Feeds []Feed `yaml:"feeds"`

	// Webhooks receive a message for every feed that fails a run.
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// ClientConfig holds HTTP client options shared by all feeds.
type ClientConfig struct {
	// Timeout bounds a single request, including reading the body.
	Timeout time.Duration `yaml:"timeout"`

	// Retries is the number of extra attempts after a transient failure.
	Retries int `yaml:"retries"`

	// RetryWait is the first backoff delay; later delays grow exponentially.
	RetryWait time.Duration `yaml:"retry_wait"`

	// UserAgents is the pool a random client identifier is drawn from.
	UserAgents []string `yaml:"user_agents"`
}

// Feed describes one tracked series.
type Feed struct {
	// ID is a unique, human-readable identifier used in logs and metrics.
	ID string `yaml:"id"`

	// Kind is one of: bandwidth | support.
	Kind string `yaml:"kind"`

	// Endpoint is the provider URL without query parameters.
	Endpoint string `yaml:"endpoint"`

	// Categories is the exact column set a batch must carry. When empty the
	// existing history header is used instead.
	Categories []string `yaml:"categories"`

	// Interval is the nominal sampling interval; consecutive records may be
	// at most this far apart.
	Interval time.Duration `yaml:"interval"`

	// AnchorHour, when set, is the UTC hour-of-day the newest observation
	// must fall on before a batch is merged.
	AnchorHour *int `yaml:"anchor_hour"`

	// Resample re-indexes the merged record onto an exact Interval grid.
	// Defaults to true for bandwidth feeds.
	Resample *bool `yaml:"resample"`

	// History is the path of the CSV file holding the record.
	History string `yaml:"history"`

	// Language is sent as the "l" parameter (support feeds).
	Language string `yaml:"language"`

	// LabelSuffix is trimmed from series labels (support feeds).
	LabelSuffix string `yaml:"label_suffix"`
}

// Resampled reports whether merges of this feed are resampled.
func (f Feed) Resampled() bool {
	if f.Resample != nil {
		return *f.Resample
	}
	return f.Kind == KindBandwidth
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyFeedDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no config file exists:
// both Steam feeds with their default history paths.
func Default() *Config {
	cfg := defaults()
	applyFeedDefaults(cfg)
	return cfg
}

// DefaultFeeds returns the bandwidth and support-request feeds.
func DefaultFeeds() []Feed {
	anchor := DefaultSupportAnchorHour
	return []Feed{
		{
			ID:         "bandwidth",
			Kind:       KindBandwidth,
			Endpoint:   DefaultBandwidthEndpoint,
			Categories: slices.Clone(BandwidthRegions),
			History:    DefaultBandwidthHistory,
		},
		{
			ID:         "support",
			Kind:       KindSupport,
			Endpoint:   DefaultSupportEndpoint,
			AnchorHour: &anchor,
			History:    DefaultSupportHistory,
		},
	}
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Collector: CollectorConfig{
			Client: ClientConfig{
				Timeout:   DefaultRequestTimeout,
				Retries:   DefaultRetries,
				RetryWait: DefaultRetryWait,
			},
			LockTimeout: DefaultLockTimeout,
		},
	}
}

// applyFeedDefaults fills per-feed fields that depend on the feed kind.
func applyFeedDefaults(cfg *Config) {
	c := &cfg.Collector
	if len(c.Feeds) == 0 {
		c.Feeds = DefaultFeeds()
	}
	if len(c.Client.UserAgents) == 0 {
		c.Client.UserAgents = slices.Clone(DefaultUserAgents)
	}
	for i := range c.Feeds {
		f := &c.Feeds[i]
		switch f.Kind {
		case KindBandwidth:
			if f.Interval == 0 {
				f.Interval = DefaultBandwidthInterval
			}
		case KindSupport:
			if f.Interval == 0 {
				f.Interval = DefaultSupportInterval
			}
			if f.Language == "" {
				f.Language = DefaultLanguage
			}
			if f.LabelSuffix == "" {
				f.LabelSuffix = DefaultLabelSuffix
			}
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	c := cfg.Collector
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("collector.client.timeout must be positive")
	}
	if c.Client.Retries < 0 {
		return fmt.Errorf("collector.client.retries must not be negative")
	}
	if c.Client.RetryWait <= 0 {
		return fmt.Errorf("collector.client.retry_wait must be positive")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("collector.lock_timeout must be positive")
	}

	ids := make(map[string]bool, len(c.Feeds))
	histories := make(map[string]bool, len(c.Feeds))
	for i, f := range c.Feeds {
		if f.ID == "" {
			return fmt.Errorf("feeds[%d]: id is required", i)
		}
		if ids[f.ID] {
			return fmt.Errorf("feeds[%d]: duplicate id %q", i, f.ID)
		}
		ids[f.ID] = true

		switch f.Kind {
		case KindBandwidth, KindSupport:
		default:
			return fmt.Errorf("feeds[%d] %q: unknown kind %q", i, f.ID, f.Kind)
		}
		if f.Endpoint == "" {
			return fmt.Errorf("feeds[%d] %q: endpoint is required", i, f.ID)
		}
		if f.History == "" {
			return fmt.Errorf("feeds[%d] %q: history is required", i, f.ID)
		}
		if histories[f.History] {
			return fmt.Errorf("feeds[%d] %q: history %q is shared with another feed", i, f.ID, f.History)
		}
		histories[f.History] = true

		if f.Interval <= 0 {
			return fmt.Errorf("feeds[%d] %q: interval must be positive", i, f.ID)
		}
		if f.AnchorHour != nil && (*f.AnchorHour < 0 || *f.AnchorHour > 23) {
			return fmt.Errorf("feeds[%d] %q: anchor_hour %d out of range 0-23", i, f.ID, *f.AnchorHour)
		}
		seen := make(map[string]bool, len(f.Categories))
		for _, cat := range f.Categories {
			if cat == "" || seen[cat] {
				return fmt.Errorf("feeds[%d] %q: categories must be unique and non-empty", i, f.ID)
			}
			seen[cat] = true
		}
	}

	for i, w := range c.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("webhooks[%d]: unknown type %q", i, w.Type)
		}
		if w.URLEnv == "" {
			return fmt.Errorf("webhooks[%d]: url_env is required", i)
		}
	}
	return nil
}
