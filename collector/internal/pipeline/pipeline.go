package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/steamstats/steamstats/collector/internal/config"
	"github.com/steamstats/steamstats/collector/internal/history"
	"github.com/steamstats/steamstats/collector/internal/merge"
	"github.com/steamstats/steamstats/collector/internal/notify"
	"github.com/steamstats/steamstats/collector/internal/probe"
	"github.com/steamstats/steamstats/collector/internal/report"
	"github.com/steamstats/steamstats/pkg/series"
)

// Outcomes not produced by merge.
const (
	OutcomeNoData    = "no_data"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// FeedResult is the result of one feed in a run.
type FeedResult struct {
	Feed    string
	Outcome string
	// Added counts the batch rows taken into the history.
	Added int
	// End is the last timestamp of the history after the run, zero when
	// there is none.
	End time.Time
	Err error
}

// Summary describes a completed run.
type Summary struct {
	Started  time.Time
	Finished time.Time
	Feeds    []FeedResult
}

// Failed returns the results of the feeds that failed.
func (s *Summary) Failed() []FeedResult {
	var out []FeedResult
	for _, f := range s.Feeds {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

type feedRunner struct {
	feed   config.Feed
	prober probe.Prober
	store  *history.Store
	policy merge.Policy
}

// Pipeline holds the per-feed components of a collector run.
type Pipeline struct {
	feeds       []feedRunner
	lockTimeout time.Duration
	report      *report.Writer
	notifier    *notify.Notifier
	now         func() time.Time
}

// New builds a Pipeline for cfg.
func New(cfg config.CollectorConfig) (*Pipeline, error) {
	p := &Pipeline{
		lockTimeout: cfg.LockTimeout,
		report:      report.New(cfg.MetricsFile),
		notifier:    notify.New(cfg.Webhooks),
		now:         time.Now,
	}
	for _, f := range cfg.Feeds {
		pr, err := probe.New(f, cfg.Client)
		if err != nil {
			return nil, fmt.Errorf("pipeline: feed %q: %w", f.ID, err)
		}
		p.feeds = append(p.feeds, feedRunner{
			feed:   f,
			prober: pr,
			store:  history.New(f.History),
			policy: merge.Policy{
				Interval:   f.Interval,
				AnchorHour: f.AnchorHour,
				Resample:   f.Resampled(),
			},
		})
	}
	return p, nil
}

// Run performs one ingestion cycle. The returned error joins every feed
// failure, each wrapped with its feed id, and is nil when none failed.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{Started: p.now()}
	slog.Info("pipeline: run started", "feeds", len(p.feeds))

	var errs []error
	for _, fr := range p.feeds {
		var res FeedResult
		if ctx.Err() != nil {
			res = FeedResult{Feed: fr.feed.ID, Outcome: OutcomeCancelled}
		} else {
			res = p.runFeed(ctx, fr)
		}
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("feed %q: %w", res.Feed, res.Err))
		}
		sum.Feeds = append(sum.Feeds, res)
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, fmt.Errorf("run interrupted: %w", err))
	}
	sum.Finished = p.now()

	if err := p.report.Write(toReport(sum)); err != nil {
		slog.Error("pipeline: report write failed", "err", err)
	}
	for _, f := range sum.Failed() {
		p.notifier.Notify(context.WithoutCancel(ctx), notify.Failure{Feed: f.Feed, Err: f.Err, At: sum.Finished})
	}

	slog.Info("pipeline: run finished",
		"duration", sum.Finished.Sub(sum.Started),
		"failed", len(sum.Failed()),
	)
	return sum, errors.Join(errs...)
}

func (p *Pipeline) runFeed(ctx context.Context, fr feedRunner) FeedResult {
	id := fr.feed.ID
	res := FeedResult{Feed: id}
	fail := func(err error) FeedResult {
		res.Outcome = OutcomeFailed
		res.Err = err
		slog.Error("pipeline: feed failed", "feed", id, "err", err)
		return res
	}

	unlock, err := fr.store.Lock(ctx, p.lockTimeout)
	if err != nil {
		return fail(err)
	}
	defer unlock()

	old, err := fr.store.Read()
	switch {
	case errors.Is(err, history.ErrEmpty):
		slog.Info("pipeline: no history yet, seeding", "feed", id, "path", fr.store.Path())
	case err != nil:
		return fail(err)
	default:
		res.End = old.End()
	}

	batch, err := fr.prober.Probe(ctx, expectedColumns(fr.feed, old))
	if err != nil {
		if ctx.Err() != nil {
			res.Outcome = OutcomeCancelled
			slog.Warn("pipeline: feed cancelled", "feed", id)
			return res
		}
		if errors.Is(err, probe.ErrNoData) {
			res.Outcome = OutcomeNoData
			slog.Info("pipeline: no new data, skipping", "feed", id)
			return res
		}
		return fail(err)
	}

	m, err := merge.Merge(old, batch, fr.policy)
	if err != nil {
		return fail(err)
	}
	res.Outcome = string(m.Outcome)

	if !m.Outcome.Changed() {
		slog.Info("pipeline: nothing to merge, skipping",
			"feed", id, "outcome", m.Outcome, "history_end", res.End, "batch_end", batch.End())
		return res
	}

	if err := fr.store.Write(m.Table); err != nil {
		return fail(err)
	}
	res.Added = m.Added
	res.End = m.End

	slog.Info("pipeline: history updated",
		"feed", id,
		"outcome", m.Outcome,
		"added", m.Added,
		"rows", m.Table.Len(),
		"end", m.End,
	)
	return res
}

// expectedColumns is the column set a batch must carry: the configured
// categories, else the history header, else nil (any non-empty set).
func expectedColumns(f config.Feed, old *series.Table) []string {
	if len(f.Categories) > 0 {
		return f.Categories
	}
	if old != nil && len(old.Columns) > 0 {
		return old.Columns
	}
	return nil
}

func toReport(s *Summary) report.Run {
	run := report.Run{At: s.Finished}
	for _, f := range s.Feeds {
		run.Feeds = append(run.Feeds, report.FeedStat{
			ID:      f.Feed,
			Outcome: f.Outcome,
			Added:   f.Added,
			End:     f.End,
			Failed:  f.Err != nil,
		})
	}
	return run
}
