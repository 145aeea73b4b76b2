package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steamstats/steamstats/collector/internal/batch"
	"github.com/steamstats/steamstats/collector/internal/config"
	"github.com/steamstats/steamstats/pkg/series"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 32 << 20

// ErrNoData is returned when no candidate yielded a complete batch.
var ErrNoData = errors.New("no new data")

// Prober is the common interface implemented by every feed kind.
type Prober interface {
	// Probe returns the freshest batch whose columns equal expected (any
	// column set when expected is nil), or an error wrapping ErrNoData.
	Probe(ctx context.Context, expected []string) (*series.Table, error)
}

// New returns the appropriate Prober for the given feed.
// It builds the HTTP client once and reuses it across requests.
func New(feed config.Feed, client config.ClientConfig) (Prober, error) {
	f := &fetcher{
		client:    buildHTTPClient(client),
		retries:   client.Retries,
		retryWait: client.RetryWait,
	}
	switch feed.Kind {
	case config.KindBandwidth:
		return &bandwidthProber{feed: feed, fetch: f, now: time.Now}, nil
	case config.KindSupport:
		return &supportProber{feed: feed, fetch: f, now: time.Now}, nil
	default:
		return nil, fmt.Errorf("probe: unsupported kind %q", feed.Kind)
	}
}

// Freshest returns the table with the greatest final timestamp among those
// that are non-empty and complete for expected. Incomplete tables are
// dropped before comparison. The first table wins ties.
func Freshest(tables []*series.Table, expected []string) (*series.Table, bool) {
	var best *series.Table
	for _, t := range tables {
		if t.Empty() || !batch.Complete(t, expected) {
			continue
		}
		if best == nil || t.End().After(best.End()) {
			best = t
		}
	}
	return best, best != nil
}

// userAgentRoundTripper sets a client identifier drawn from a pool on every
// outgoing request.
type userAgentRoundTripper struct {
	base   http.RoundTripper
	agents []string
}

func (t *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.agents) > 0 {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agents[rand.Intn(len(t.agents))])
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the client settings.
func buildHTTPClient(cfg config.ClientConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	return &http.Client{
		Transport: &userAgentRoundTripper{
			base:   http.DefaultTransport,
			agents: cfg.UserAgents,
		},
		Timeout: timeout,
	}
}

// fetcher performs GET requests with bounded exponential-backoff retries.
type fetcher struct {
	client    *http.Client
	retries   int
	retryWait time.Duration
}

// get requests endpoint with query and returns the response body.
// Connection errors, 5xx and 429 responses are retried; other non-2xx
// statuses fail immediately.
func (f *fetcher) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	u.RawQuery = query.Encode()
	target := u.String()

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("http get: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			err := fmt.Errorf("unexpected status %d", resp.StatusCode)
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		body = b
		return nil
	}

	notify := func(err error, wait time.Duration) {
		slog.Debug("probe: request failed, retrying",
			"url", target,
			"err", err,
			"retry_in", wait,
		)
	}

	if err := backoff.RetryNotify(op, f.backOff(ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *fetcher) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if f.retryWait > 0 {
		b.InitialInterval = f.retryWait
	}
	b.MaxElapsedTime = 0
	retries := f.retries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// collect parses each fetched candidate body with parse and returns the
// tables that decoded. Failed candidates are logged and skipped.
func collect(feedID string, bodies []candidate, parse func([]byte) (*series.Table, error), expected []string) []*series.Table {
	tables := make([]*series.Table, 0, len(bodies))
	for _, c := range bodies {
		t, err := parse(c.body)
		if err != nil {
			slog.Warn("probe: candidate unparseable, skipping",
				"feed", feedID, "candidate", c.id, "err", err)
			continue
		}
		if !batch.Complete(t, expected) {
			missing, extra := batch.Diff(t, expected)
			slog.Warn("probe: candidate incomplete, skipping",
				"feed", feedID, "candidate", c.id,
				"missing", missing, "unexpected", extra)
		} else {
			slog.Debug("probe: candidate parsed",
				"feed", feedID, "candidate", c.id,
				"rows", t.Len(), "end", t.End())
		}
		tables = append(tables, t)
	}
	return tables
}

// candidate is one fetched response body and the identifier that produced it.
type candidate struct {
	id   string
	body []byte
}
