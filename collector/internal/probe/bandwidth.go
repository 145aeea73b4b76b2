package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/steamstats/steamstats/collector/internal/batch"
	"github.com/steamstats/steamstats/collector/internal/config"
	"github.com/steamstats/steamstats/pkg/series"
)

// cacheBusterParam is the query parameter the bandwidth endpoint keys its
// cached responses on.
const cacheBusterParam = "v"

// cacheBusterDay is the date layout of a cache-buster value.
const cacheBusterDay = "01-02-2006"

// CacheBusters returns the candidate cache-buster values for now, in the
// order they are tried: current hour, today, tomorrow, 30 days ago (UTC).
// The provider answers each with a differently stale snapshot, so all of
// them are fetched and the freshest complete one kept.
func CacheBusters(now time.Time) []string {
	now = now.UTC()
	return []string{
		now.Format(cacheBusterDay + "-15"),
		now.Format(cacheBusterDay),
		now.AddDate(0, 0, 1).Format(cacheBusterDay),
		now.AddDate(0, 0, -30).Format(cacheBusterDay),
	}
}

type bandwidthProber struct {
	feed  config.Feed
	fetch *fetcher
	now   func() time.Time
}

// Probe fetches every cache-buster candidate and returns the complete batch
// with the latest final timestamp.
func (p *bandwidthProber) Probe(ctx context.Context, expected []string) (*series.Table, error) {
	var bodies []candidate
	for _, v := range CacheBusters(p.now()) {
		body, err := p.fetch.get(ctx, p.feed.Endpoint, url.Values{cacheBusterParam: {v}})
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("probe %q: %w", p.feed.ID, ctx.Err())
			}
			slog.Warn("probe: candidate request failed, skipping",
				"feed", p.feed.ID, "candidate", v, "err", err)
			continue
		}
		bodies = append(bodies, candidate{id: v, body: body})
	}

	tables := collect(p.feed.ID, bodies, batch.ParseCallback, expected)
	best, ok := Freshest(tables, expected)
	if !ok {
		return nil, fmt.Errorf("probe %q: %w (%d candidates fetched, %d parsed)",
			p.feed.ID, ErrNoData, len(bodies), len(tables))
	}

	slog.Info("probe: freshest batch selected",
		"feed", p.feed.ID,
		"rows", best.Len(),
		"start", best.Start(),
		"end", best.End(),
	)
	return best, nil
}
