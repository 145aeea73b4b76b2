package pipeline

import (
	"errors"
	"log/slog"
	"time"

	"github.com/steamstats/steamstats/collector/internal/history"
	"github.com/steamstats/steamstats/pkg/series"
)

// Audit is the continuity report for one feed history.
type Audit struct {
	Feed  string
	Path  string
	Rows  int
	Start time.Time
	End   time.Time
	// Missing counts rows whose cells are all missing (resampled holes).
	Missing    int
	Violations []series.Violation
	Err        error
}

// OK reports whether the history is readable and continuous.
func (a Audit) OK() bool {
	return a.Err == nil && len(a.Violations) == 0
}

// Check reads every feed history without locking and reports its range and
// continuity. Resampled feeds must sit exactly on their grid; other feeds
// must not step further than their interval.
func (p *Pipeline) Check() []Audit {
	out := make([]Audit, 0, len(p.feeds))
	for _, fr := range p.feeds {
		a := Audit{Feed: fr.feed.ID, Path: fr.store.Path()}

		t, err := fr.store.Read()
		switch {
		case errors.Is(err, history.ErrEmpty):
			slog.Info("pipeline: history empty", "feed", a.Feed, "path", a.Path)
		case err != nil:
			a.Err = err
		default:
			a.Rows = t.Len()
			a.Start = t.Start()
			a.End = t.End()
			a.Missing = t.Missing()
			a.Violations = t.Check(fr.policy.Interval, fr.policy.Resample)
		}

		if !a.OK() {
			slog.Warn("pipeline: history check failed",
				"feed", a.Feed, "violations", len(a.Violations), "err", a.Err)
		}
		out = append(out, a)
	}
	return out
}
