package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/steamstats/steamstats/collector/internal/config"
	"github.com/steamstats/steamstats/collector/internal/pipeline"
)

const defaultConfigPath = "collector.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app().Run(ctx, os.Args); err != nil {
		slog.Error("collector failed", "err", err)
		cancel()
		os.Exit(1)
	}
}

func app() *cli.Command {
	return &cli.Command{
		Name:  "collector",
		Usage: "incrementally collect Steam bandwidth and support-request statistics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "path to config file",
				Sources: cli.EnvVars("STEAMSTATS_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "debug | info | warn | error",
				Sources: cli.EnvVars("STEAMSTATS_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "json | text",
				Sources: cli.EnvVars("STEAMSTATS_LOG_FORMAT"),
			},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "perform one ingestion cycle across all feeds",
				Action: runCmd,
			},
			{
				Name:   "check",
				Usage:  "audit every feed history for ordering and continuity",
				Action: checkCmd,
			},
		},
		Action: runCmd,
	}
}

func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
		return ctx, fmt.Errorf("invalid --log-level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cmd.String("log-format")) {
	case "json":
		h = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		return ctx, fmt.Errorf("invalid --log-format %q: want json or text", cmd.String("log-format"))
	}
	slog.SetDefault(slog.New(h))
	return ctx, nil
}

// loadConfig reads --config. When the flag was left at its default and the
// file does not exist the built-in feeds are used.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err == nil {
		slog.Info("config loaded", "path", path, "feeds", len(cfg.Collector.Feeds))
		return cfg, nil
	}
	if !cmd.IsSet("config") && errors.Is(err, fs.ErrNotExist) {
		slog.Info("no config file, using built-in feeds", "path", path)
		return config.Default(), nil
	}
	return nil, err
}

func newPipeline(cmd *cli.Command) (*pipeline.Pipeline, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg.Collector)
}

func runCmd(ctx context.Context, cmd *cli.Command) error {
	p, err := newPipeline(cmd)
	if err != nil {
		return err
	}

	sum, err := p.Run(ctx)
	for _, f := range sum.Feeds {
		slog.Info("feed result",
			"feed", f.Feed,
			"outcome", f.Outcome,
			"added", f.Added,
			"history_end", f.End,
		)
	}
	return err
}

func checkCmd(_ context.Context, cmd *cli.Command) error {
	p, err := newPipeline(cmd)
	if err != nil {
		return err
	}

	var failed []string
	for _, a := range p.Check() {
		slog.Info("history audit",
			"feed", a.Feed,
			"path", a.Path,
			"rows", a.Rows,
			"start", a.Start,
			"end", a.End,
			"missing_rows", a.Missing,
			"violations", len(a.Violations),
			"err", a.Err,
		)
		for _, v := range a.Violations {
			slog.Warn("history violation",
				"feed", a.Feed,
				"kind", v.Kind,
				"row", v.Index,
				"prev", v.Prev,
				"next", v.Next,
			)
		}
		if !a.OK() {
			failed = append(failed, a.Feed)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("history check failed for %s", strings.Join(failed, ", "))
	}
	return nil
}
