package backfill

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/janus/internal/analytics"
	"github.com/fortuna/janus/internal/engine"
	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/publisher"
	"github.com/fortuna/janus/pkg/logger"
)

// GameSource loads raw games; pbpcsv.Loader is the production source.
type GameSource interface {
	LoadSeason(ctx context.Context, season string) ([]*pbp.Game, error)
	LoadGames(ctx context.Context, season string, gameIDs []string) ([]*pbp.Game, error)
}

// TimelineStore persists annotated timelines.
type TimelineStore interface {
	SaveTimeline(ctx context.Context, g *pbp.Game, excluded bool) error
}

// LineupStore keeps each game's contribution to the per-lineup season totals.
type LineupStore interface {
	ReplaceGameResults(ctx context.Context, gameID string, results []analytics.LineupResult) error
}

// Runner executes backfill specs: load, reconstruct, persist, publish.
type Runner struct {
	source    GameSource
	env       engine.Env
	timelines TimelineStore
	lineups   LineupStore
	sink      publisher.Sink
	log       *logrus.Entry
}

// RunnerOption configures optional runner outputs.
type RunnerOption func(*Runner)

func WithTimelineStore(s TimelineStore) RunnerOption {
	return func(r *Runner) { r.timelines = s }
}

func WithLineupStore(s LineupStore) RunnerOption {
	return func(r *Runner) { r.lineups = s }
}

func WithSink(s publisher.Sink) RunnerOption {
	return func(r *Runner) { r.sink = s }
}

// NewRunner constructs a runner processing games from source with env.
func NewRunner(source GameSource, env engine.Env, opts ...RunnerOption) *Runner {
	log := env.Log
	if log == nil {
		log = logger.GetLogger()
	}
	r := &Runner{
		source: source,
		env:    env,
		log:    logger.WithComponent(log, "backfill"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the job spec, reporting progress via the Reporter if provided.
// Per-game failures are counted in the summary; only load, cancellation and
// persistence errors fail the run.
func (r *Runner) Run(ctx context.Context, spec JobSpec, reporter Reporter) (Summary, error) {
	var summary Summary
	if reporter == nil {
		reporter = nopReporter{}
	}
	reporter.OnJobStart(spec)

	games, err := r.load(ctx, spec)
	if err != nil {
		reporter.OnJobError(err)
		return summary, err
	}
	total := len(games)
	summary.Games = total
	if total == 0 {
		reporter.OnProgress("No games to process", 0, 0)
		reporter.OnJobComplete(summary)
		return summary, nil
	}
	reporter.OnProgress(fmt.Sprintf("Processing %d games", total), 0, total)

	processor := engine.NewProcessor(r.env, spec.Options)
	batch, err := processor.ProcessAll(ctx, games)
	if err != nil {
		reporter.OnJobError(err)
		return summary, fmt.Errorf("process %s: %w", spec.Season, err)
	}

	persist := spec.Persist && r.timelines != nil
	for idx, res := range batch.Results {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if res.Err != nil {
			summary.Failed++
		}
		if persist && res.Err == nil {
			if err := r.timelines.SaveTimeline(ctx, res.Game, res.Excluded()); err != nil {
				err = fmt.Errorf("save %s: %w", res.Game.ID, err)
				reporter.OnJobError(err)
				return summary, err
			}
		}
		reporter.OnGameProcessed(res)
		reporter.OnProgress(fmt.Sprintf("Game %s complete", res.Game.ID), idx+1, total)
	}
	summary.Miscounts = len(batch.Miscounts())

	kept := processor.Kept(batch)
	summary.Kept = len(kept)
	if spec.Options.Lineups && spec.Options.Possessions {
		summary.Lineups = len(analytics.LineupResults(kept...))
		if spec.Persist && r.lineups != nil {
			if err := r.saveLineups(ctx, batch, kept); err != nil {
				reporter.OnJobError(err)
				return summary, err
			}
		}
	}

	if r.sink != nil {
		if err := publisher.PublishBatch(ctx, r.sink, batch); err != nil {
			r.log.WithError(err).Warn("failed to publish batch")
		}
	}

	r.log.WithFields(logrus.Fields{
		"season":    spec.Season,
		"games":     summary.Games,
		"kept":      summary.Kept,
		"miscounts": summary.Miscounts,
		"failed":    summary.Failed,
	}).Info("backfill run complete")
	reporter.OnJobComplete(summary)
	return summary, nil
}

// saveLineups replaces the contribution of every processed game. Games left out of the
// totals have theirs removed.
func (r *Runner) saveLineups(ctx context.Context, batch *engine.Batch, kept []*pbp.Game) error {
	keep := make(map[string]bool, len(kept))
	for _, g := range kept {
		keep[g.ID] = true
	}
	for _, res := range batch.Results {
		if res.Err != nil {
			continue
		}
		var results []analytics.LineupResult
		if keep[res.Game.ID] {
			results = analytics.LineupResults(res.Game)
		}
		if err := r.lineups.ReplaceGameResults(ctx, res.Game.ID, results); err != nil {
			return fmt.Errorf("save lineup results of %s: %w", res.Game.ID, err)
		}
	}
	return nil
}

func (r *Runner) load(ctx context.Context, spec JobSpec) ([]*pbp.Game, error) {
	switch spec.Type {
	case JobTypeSeason:
		games, err := r.source.LoadSeason(ctx, spec.Season)
		if err != nil {
			return nil, fmt.Errorf("load season %s: %w", spec.Season, err)
		}
		return games, nil
	case JobTypeGame:
		if len(spec.GameIDs) == 0 {
			return nil, fmt.Errorf("no game IDs provided for job type 'game'")
		}
		games, err := r.source.LoadGames(ctx, spec.Season, spec.GameIDs)
		if err != nil {
			return nil, fmt.Errorf("load games: %w", err)
		}
		if len(games) < len(spec.GameIDs) {
			r.log.WithFields(logrus.Fields{
				"requested": len(spec.GameIDs),
				"found":     len(games),
			}).Warn("some games were not found in the season file")
		}
		return games, nil
	default:
		return nil, fmt.Errorf("unsupported job type %s", spec.Type)
	}
}

type nopReporter struct{}

func (nopReporter) OnJobStart(JobSpec) {}
func (nopReporter) OnGameProcessed(*engine.Result) {}
func (nopReporter) OnProgress(string, int, int) {}
func (nopReporter) OnJobComplete(Summary) {}
func (nopReporter) OnJobError(error) {}
