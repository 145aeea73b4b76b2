package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "steamstats"

// Metric names carried between runs.
const (
	lastSuccessMetric = namespace + "_feed_last_success_timestamp_seconds"
	historyEndMetric  = namespace + "_feed_history_end_timestamp_seconds"
	failuresMetric    = namespace + "_feed_failures_total"
)

// FeedStat is the result of one feed in a run.
type FeedStat struct {
	ID      string
	Outcome string
	Added   int
	// End is the last timestamp of the persisted history, zero if unknown.
	End    time.Time
	Failed bool
}

// Run is the input to Write.
type Run struct {
	At    time.Time
	Feeds []FeedStat
}

// Success reports whether no feed failed.
func (r Run) Success() bool {
	for _, f := range r.Feeds {
		if f.Failed {
			return false
		}
	}
	return true
}

// Writer writes run reports to one file.
type Writer struct {
	path string
}

// New returns a Writer for path. An empty path disables reporting.
func New(path string) *Writer {
	return &Writer{path: path}
}

// Write replaces the report file with the metrics for run.
func (w *Writer) Write(run Run) error {
	if w == nil || w.path == "" {
		return nil
	}

	prev := w.previous()
	reg := prometheus.NewRegistry()

	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "collector", Name: "last_run_timestamp_seconds",
		Help: "Unix time the last collector run finished.",
	})
	lastRunSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "collector", Name: "last_run_success",
		Help: "1 if no feed failed in the last run, 0 otherwise.",
	})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "feed", Name: "last_success_timestamp_seconds",
		Help: "Unix time of the last run in which the feed did not fail.",
	}, []string{"feed"})
	historyEnd := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "feed", Name: "history_end_timestamp_seconds",
		Help: "Timestamp of the newest row in the feed history.",
	}, []string{"feed"})
	appended := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "feed", Name: "rows_appended",
		Help: "Rows added to the feed history by the last run.",
	}, []string{"feed"})
	outcome := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "feed", Name: "outcome",
		Help: "Outcome of the feed in the last run (1 for the reported outcome).",
	}, []string{"feed", "outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "feed", Name: "failures_total",
		Help: "Runs in which the feed failed.",
	}, []string{"feed"})

	reg.MustRegister(lastRun, lastRunSuccess, lastSuccess, historyEnd, appended, outcome, failures)

	lastRun.Set(unix(run.At))
	if run.Success() {
		lastRunSuccess.Set(1)
	}

	seen := make(map[string]bool, len(run.Feeds))
	for _, f := range run.Feeds {
		seen[f.ID] = true

		if f.Failed {
			if ts, ok := prev[lastSuccessMetric][f.ID]; ok {
				lastSuccess.WithLabelValues(f.ID).Set(ts)
			}
		} else {
			lastSuccess.WithLabelValues(f.ID).Set(unix(run.At))
		}

		if !f.End.IsZero() {
			historyEnd.WithLabelValues(f.ID).Set(unix(f.End))
		} else if ts, ok := prev[historyEndMetric][f.ID]; ok {
			historyEnd.WithLabelValues(f.ID).Set(ts)
		}

		appended.WithLabelValues(f.ID).Set(float64(f.Added))
		outcome.WithLabelValues(f.ID, f.Outcome).Set(1)

		n := prev[failuresMetric][f.ID]
		if f.Failed {
			n++
		}
		failures.WithLabelValues(f.ID).Add(n)
	}

	// Feeds dropped from the config keep their carried series.
	for name, vec := range map[string]*prometheus.GaugeVec{
		lastSuccessMetric: lastSuccess,
		historyEndMetric:  historyEnd,
	} {
		for feed, v := range prev[name] {
			if !seen[feed] {
				vec.WithLabelValues(feed).Set(v)
			}
		}
	}
	for feed, v := range prev[failuresMetric] {
		if !seen[feed] {
			failures.WithLabelValues(feed).Add(v)
		}
	}

	mfs, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("report: gather: %w", err)
	}
	return w.replace(func(out io.Writer) error {
		for _, mf := range mfs {
			if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
				return err
			}
		}
		return nil
	})
}

// previous returns the carried metrics of the last report keyed by metric
// name and feed label. A missing or unreadable file yields no values.
func (w *Writer) previous() map[string]map[string]float64 {
	out := map[string]map[string]float64{
		lastSuccessMetric: {},
		historyEndMetric:  {},
		failuresMetric:    {},
	}

	f, err := os.Open(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return out
	}
	if err != nil {
		slog.Warn("report: previous report unreadable", "path", w.path, "err", err)
		return out
	}
	defer f.Close()

	mfs, err := parseMetrics(f)
	if err != nil {
		slog.Warn("report: previous report unparseable, starting fresh", "path", w.path, "err", err)
		return out
	}
	for name, values := range out {
		mf := mfs[name]
		if mf == nil {
			continue
		}
		for _, m := range mf.GetMetric() {
			feed := label(m, "feed")
			if feed == "" {
				continue
			}
			v := value(m)
			if name == failuresMetric && (v < 0 || math.IsNaN(v)) {
				slog.Warn("report: ignoring invalid carried counter",
					"path", w.path, "metric", name, "feed", feed, "value", v)
				continue
			}
			values[feed] = v
		}
	}
	return out
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func value(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}

func unix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// replace writes the file through a temp file in the same directory so the
// textfile collector never reads a partial report.
func (w *Writer) replace(write func(io.Writer) error) (err error) {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("report: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("report: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("report: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("report: replace %s: %w", w.path, err)
	}
	slog.Debug("report: written", "path", w.path)
	return nil
}
