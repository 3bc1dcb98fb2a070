package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fortuna/janus/internal/backfill"
	"github.com/fortuna/janus/internal/cache"
	"github.com/fortuna/janus/internal/config"
	"github.com/fortuna/janus/internal/engine"
	"github.com/fortuna/janus/internal/ingest/bbref"
	"github.com/fortuna/janus/internal/ingest/pbpcsv"
	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/publisher"
	"github.com/fortuna/janus/internal/store"
	"github.com/fortuna/janus/internal/store/repository"
	"github.com/fortuna/janus/pkg/logger"
)

const (
	appName    = "janus-backfill"
	appVersion = "1.0.0"
)

var validFormats = []string{"text", "json"}

// rootOptions holds the flags shared by every subcommand. Unset flags fall
// back to the loaded configuration.
type rootOptions struct {
	cfg *config.Config

	dataDir       string
	bbrefURL      string
	rendered      bool
	offline       bool
	workers       int
	lineups       bool
	possessions   bool
	dropMiscounts bool
	persist       bool
	publish       bool
	format        string
	verbose       bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "janus-backfill",
		Short:   "Reconstruct lineups and possessions from season play-by-play files",
		Version: appVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !contains(validFormats, opts.format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.format, validFormats)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.applyConfig(cmd, cfg)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.dataDir, "data-dir", "", "directory holding NBA_PBP_<season>.csv files (default PBP_DATA_DIR)")
	flags.StringVar(&opts.bbrefURL, "bbref-url", "", "basketball-reference base URL (default BBREF_BASE_URL)")
	flags.BoolVar(&opts.rendered, "rendered", false, "fetch basketball-reference pages with a headless browser")
	flags.BoolVar(&opts.offline, "offline", false, "skip player and box score lookups")
	flags.IntVar(&opts.workers, "workers", 0, "games processed in parallel (default WORKERS)")
	flags.BoolVar(&opts.lineups, "lineups", true, "reconstruct lineups")
	flags.BoolVar(&opts.possessions, "possessions", true, "annotate possessions")
	flags.BoolVar(&opts.dropMiscounts, "drop-miscounts", true, "leave games with unresolved quarters out of lineup results")
	flags.BoolVar(&opts.persist, "persist", false, "write timelines and lineup results to the database")
	flags.BoolVar(&opts.publish, "publish", false, "publish summaries to the Redis streams")
	flags.StringVar(&opts.format, "format", "text", "output format (json|text)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")

	cmd.AddCommand(newSeasonCommand(opts))
	cmd.AddCommand(newGamesCommand(opts))

	return cmd
}

func (o *rootOptions) applyConfig(cmd *cobra.Command, cfg *config.Config) {
	o.cfg = cfg
	flags := cmd.Flags()
	if !flags.Changed("data-dir") {
		o.dataDir = cfg.PBPDataDir
	}
	if !flags.Changed("bbref-url") {
		o.bbrefURL = cfg.BBRefBaseURL
	}
	if !flags.Changed("rendered") {
		o.rendered = cfg.BBRefRendered
	}
	if !flags.Changed("workers") {
		o.workers = cfg.Workers
	}
}

func newSeasonCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "season <season>",
		Short:         "Process every game of a season",
		Example:       "  janus-backfill season 2015-16 --persist",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd, opts, backfill.JobTypeSeason, args[0], nil)
		},
	}
}

func newGamesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "games <season> <game-id>...",
		Short:         "Process specific games of a season",
		Example:       "  janus-backfill games 2016 /boxscores/201510270ATL.html",
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd, opts, backfill.JobTypeGame, args[0], args[1:])
		},
	}
}

func runBackfill(cmd *cobra.Command, opts *rootOptions, jobType backfill.JobType, season string, gameIDs []string) error {
	label, ok := pbp.NormalizeSeason(season)
	if !ok {
		return fmt.Errorf("invalid season %q", season)
	}

	level := opts.cfg.LogLevel
	if opts.verbose {
		level = "debug"
	}
	log := logger.InitLogger(level, opts.cfg.LogFormat)
	log.SetOutput(cmd.ErrOrStderr())
	log.WithField("version", appVersion).Infof("%s starting", appName)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := engine.NewEnv(cache.NewMemory(), nil, nil, nil, log)
	if !opts.offline {
		var fetcher bbref.Fetcher = bbref.NewHTTPFetcher()
		if opts.rendered {
			bf := bbref.NewBrowserFetcher()
			defer bf.Close()
			fetcher = bf
		}
		client := bbref.NewClient(fetcher, log,
			bbref.WithBaseURL(opts.bbrefURL),
			bbref.WithInterval(opts.cfg.ScrapeInterval),
		)
		env = engine.NewEnv(cache.NewMemory(), client, client, nil, log)
	}

	var runnerOpts []backfill.RunnerOption
	if opts.persist {
		db, err := store.NewDatabase(opts.cfg.DatabaseURL, log)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		env.Miscounts = repository.NewMiscountRepository(db)
		runnerOpts = append(runnerOpts,
			backfill.WithTimelineStore(repository.NewGameRepository(db)),
			backfill.WithLineupStore(repository.NewLineupRepository(db)),
		)
	}
	if opts.publish {
		pub, err := publisher.NewRedisPublisher(opts.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer pub.Close()
		runnerOpts = append(runnerOpts, backfill.WithSink(pub))
	}

	runner := backfill.NewRunner(pbpcsv.NewLoader(opts.dataDir, log), env, runnerOpts...)
	spec := backfill.JobSpec{
		Type:    jobType,
		Season:  label,
		GameIDs: gameIDs,
		Persist: opts.persist,
		Options: engine.Options{
			Lineups:           opts.lineups,
			Possessions:       opts.possessions,
			DropMiscountGames: opts.dropMiscounts,
			Workers:           opts.workers,
		},
	}

	summary, err := runner.Run(ctx, spec, &consoleReporter{log: log})
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}
	return writeSummary(cmd.OutOrStdout(), opts.format, label, summary)
}

func writeSummary(w io.Writer, format, season string, s backfill.Summary) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Season string `json:"season"`
			backfill.Summary
		}{season, s})
	}
	_, err := fmt.Fprintf(w, "season %s: %d games, %d kept, %d miscounted quarters, %d failed, %d lineups\n",
		season, s.Games, s.Kept, s.Miscounts, s.Failed, s.Lineups)
	return err
}

// consoleReporter logs runner progress
type consoleReporter struct {
	log logrus.FieldLogger
}

func (c *consoleReporter) OnJobStart(spec backfill.JobSpec) {
	c.log.WithFields(logrus.Fields{
		"type":    spec.Type,
		"season":  spec.Season,
		"persist": spec.Persist,
	}).Info("starting job")
}

func (c *consoleReporter) OnGameProcessed(res *engine.Result) {
	entry := logger.WithGame(c.log, res.Game.ID).WithField("miscounts", len(res.Miscounts))
	if res.Err != nil {
		entry.WithError(res.Err).Warn("game failed")
		return
	}
	entry.Debug("processed game")
}

func (c *consoleReporter) OnProgress(message string, current int, total int) {
	c.log.Infof("Progress: %s (%d/%d)", message, current, total)
}

func (c *consoleReporter) OnJobComplete(s backfill.Summary) {
	c.log.WithField("games", s.Games).Info("job complete")
}

func (c *consoleReporter) OnJobError(err error) {
	c.log.WithError(err).Error("job error")
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
