// Package engine runs the reconstruction pipeline over games: timestamps, team assignment,
// lineups and possessions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fortuna/janus/internal/lineup"
	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/possession"
	"github.com/fortuna/janus/internal/reconciliation"
	"github.com/fortuna/janus/internal/roster"
	"github.com/fortuna/janus/internal/timeline"
	"github.com/fortuna/janus/pkg/logger"
	"github.com/fortuna/janus/pkg/metrics"
)

// MiscountRegistry accumulates unresolved quarters for exclusion.
type MiscountRegistry interface {
	RecordMiscount(ctx context.Context, rec pbp.MiscountRecord) error
	IsExcluded(ctx context.Context, gameID string) (bool, error)
}

// Cache is the run-owned store behind the providers and the registry.
type Cache interface {
	roster.PlayerCache
	reconciliation.BoxScoreCache
	MiscountRegistry
}

// Env carries the shared state of one run. Only Miscounts is written by more than one game.
type Env struct {
	Players   roster.PlayerProvider
	BoxScores reconciliation.BoxScoreProvider
	Miscounts MiscountRegistry
	Metrics   *metrics.Manager
	Log       logrus.FieldLogger
}

// NewEnv puts c in front of both providers and uses it as the miscount registry.
func NewEnv(c Cache, players roster.PlayerProvider, boxScores reconciliation.BoxScoreProvider, m *metrics.Manager, log logrus.FieldLogger) Env {
	env := Env{Miscounts: c, Metrics: m, Log: log}
	if players != nil {
		env.Players = roster.NewCachedProvider(c, players)
	}
	if boxScores != nil {
		env.BoxScores = reconciliation.NewCachedBoxScores(c, boxScores)
	}
	return env
}

// Options mirror the season loader flags.
type Options struct {
	Lineups           bool
	Possessions       bool
	DropMiscountGames bool
	Workers           int
}

func DefaultOptions() Options {
	return Options{Lineups: true, Possessions: true, DropMiscountGames: true, Workers: 4}
}

// Result is the outcome of one game.
type Result struct {
	Game        *pbp.Game
	Assignment  *roster.Assignment
	Stints      []lineup.Stint
	Corrections []lineup.Correction
	Miscounts   []pbp.MiscountRecord
	Duration    time.Duration
	Err         error
}

// Excluded reports whether lineup-dependent consumers should skip the game.
func (r *Result) Excluded() bool {
	return r.Err != nil || len(r.Miscounts) > 0
}

// Processor runs games through the pipeline.
type Processor struct {
	env           Env
	opts          Options
	log           *logrus.Entry
	assigner      *roster.Assigner
	reconstructor *lineup.Reconstructor
	detector      *possession.Detector
}

func NewProcessor(env Env, opts Options) *Processor {
	if env.Log == nil {
		env.Log = logger.GetLogger()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	var resolver lineup.Resolver
	if env.BoxScores != nil {
		resolver = reconciliation.NewResolver(env.BoxScores, env.Log)
	}
	return &Processor{
		env:           env,
		opts:          opts,
		log:           logger.WithComponent(env.Log, "engine"),
		assigner:      roster.NewAssigner(env.Players, env.Log),
		reconstructor: lineup.NewReconstructor(resolver, env.Log),
		detector:      possession.NewDetector(env.Log),
	}
}

// Options returns the options the processor runs with.
func (p *Processor) Options() Options {
	return p.opts
}

// Process annotates g in place. Only context cancellation is returned as an error;
// everything else is reported on the Result.
func (p *Processor) Process(ctx context.Context, g *pbp.Game) (*Result, error) {
	start := time.Now()
	res := &Result{Game: g}
	defer func() {
		res.Duration = time.Since(start)
		p.env.Metrics.RecordGame(outcome(res), res.Duration)
	}()

	timeline.Normalize(g)
	if !p.opts.Lineups && !p.opts.Possessions {
		return res, nil
	}

	assignment, err := p.assigner.Assign(ctx, g)
	if err != nil {
		res.Err = err
		return res, err
	}
	res.Assignment = assignment

	if p.opts.Lineups {
		lr, err := p.reconstructor.Reconstruct(ctx, g, assignment)
		if err != nil {
			res.Err = err
			return res, err
		}
		res.Stints = lr.Stints
		res.Corrections = lr.Corrections
		res.Miscounts = lr.Miscounts
		for range lr.Corrections {
			p.env.Metrics.RecordRepair()
		}
		p.register(ctx, lr.Miscounts)
	}

	if p.opts.Possessions {
		p.detector.Annotate(g, assignment.Sides)
	}
	return res, nil
}

func (p *Processor) register(ctx context.Context, recs []pbp.MiscountRecord) {
	for _, rec := range recs {
		p.env.Metrics.RecordMiscount(rec.Side.String())
		if p.env.Miscounts == nil {
			continue
		}
		if err := p.env.Miscounts.RecordMiscount(ctx, rec); err != nil {
			logger.WithGame(p.log, rec.GameID).WithError(err).Warn("failed to register miscount")
		}
	}
}

func outcome(r *Result) string {
	switch {
	case r.Err != nil:
		return "failed"
	case len(r.Miscounts) > 0:
		return "miscount"
	default:
		return "ok"
	}
}

// Batch is the outcome of a set of games, in input order.
type Batch struct {
	Results []*Result
}

// Games returns the processed games, without miscount games when drop is set.
func (b *Batch) Games(drop bool) []*pbp.Game {
	var out []*pbp.Game
	for _, r := range b.Results {
		if r.Err != nil || (drop && r.Excluded()) {
			continue
		}
		out = append(out, r.Game)
	}
	return out
}

// Kept applies the processor's DropMiscountGames option.
func (p *Processor) Kept(b *Batch) []*pbp.Game {
	return b.Games(p.opts.Lineups && p.opts.DropMiscountGames)
}

// Miscounts returns every unresolved quarter of the batch.
func (b *Batch) Miscounts() []pbp.MiscountRecord {
	var out []pbp.MiscountRecord
	for _, r := range b.Results {
		out = append(out, r.Miscounts...)
	}
	return out
}

// Failures maps game ids to their processing error.
func (b *Batch) Failures() map[string]error {
	out := make(map[string]error)
	for _, r := range b.Results {
		if r.Err != nil {
			out[r.Game.ID] = r.Err
		}
	}
	return out
}

// ProcessAll runs games concurrently with at most Workers in flight. A failing game never
// stops the others; the returned error is non-nil only when ctx ends the run early.
func (p *Processor) ProcessAll(ctx context.Context, games []*pbp.Game) (*Batch, error) {
	batch := &Batch{Results: make([]*Result, len(games))}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.opts.Workers)
	for i, g := range games {
		i, g := i, g
		eg.Go(func() error {
			p.env.Metrics.WorkerStarted()
			defer p.env.Metrics.WorkerDone()

			res, err := p.Process(egCtx, g)
			batch.Results[i] = res
			if err != nil && isCancellation(err) {
				return err
			}
			if err != nil {
				logger.WithGame(p.log, g.ID).WithError(err).Error("game failed")
			}
			return nil
		})
	}
	err := eg.Wait()

	for i, r := range batch.Results {
		if r == nil {
			batch.Results[i] = &Result{Game: games[i], Err: fmt.Errorf("not processed: %w", context.Canceled)}
		}
	}

	p.log.WithFields(logrus.Fields{
		"games":     len(games),
		"miscounts": len(batch.Miscounts()),
		"failed":    len(batch.Failures()),
	}).Info("batch processed")
	return batch, err
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
