package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/steamstats/steamstats/collector/internal/batch"
	"github.com/steamstats/steamstats/collector/internal/config"
	"github.com/steamstats/steamstats/pkg/series"
)

type supportProber struct {
	feed  config.Feed
	fetch *fetcher
	now   func() time.Time
}

// Probe fetches the support-request series once, using the current Unix
// time as the cache version.
func (p *supportProber) Probe(ctx context.Context, expected []string) (*series.Table, error) {
	version := strconv.FormatInt(p.now().Unix(), 10)
	query := url.Values{
		"l":                    {p.feed.Language},
		"global_cache_version": {version},
	}

	body, err := p.fetch.get(ctx, p.feed.Endpoint, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("probe %q: %w", p.feed.ID, ctx.Err())
		}
		slog.Warn("probe: request failed", "feed", p.feed.ID, "err", err)
		return nil, fmt.Errorf("probe %q: %w: %v", p.feed.ID, ErrNoData, err)
	}

	parse := func(b []byte) (*series.Table, error) {
		return batch.ParseSeriesList(b, p.feed.LabelSuffix)
	}
	tables := collect(p.feed.ID, []candidate{{id: version, body: body}}, parse, expected)
	best, ok := Freshest(tables, expected)
	if !ok {
		return nil, fmt.Errorf("probe %q: %w", p.feed.ID, ErrNoData)
	}

	slog.Info("probe: batch fetched",
		"feed", p.feed.ID,
		"rows", best.Len(),
		"columns", best.Columns,
		"end", best.End(),
	)
	return best, nil
}
