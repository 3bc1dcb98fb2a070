// Package reconciliation repairs lineup miscounts against box score minutes.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/janus/internal/lineup"
	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/pkg/logger"
)

// Tolerance is how far, in minutes, a discrepancy may be from a quarter's length.
const Tolerance = 0.25

var (
	ErrNoCandidate = errors.New("no player explains the miscount")
	ErrAmbiguous   = errors.New("more than one player explains the miscount")
)

// BoxScoreProvider returns the official minutes played of a game.
type BoxScoreProvider interface {
	FetchBoxScore(ctx context.Context, gameID string) (*pbp.BoxScore, error)
}

// Metrics tracks resolution statistics
type Metrics struct {
	Attempts       int
	Resolved       int
	Ambiguous      int
	NoCandidate    int
	FetchFailures  int
	LastResolution time.Time
}

// Resolver finds the player whose whole-quarter presence or absence explains a miscount.
type Resolver struct {
	boxScores BoxScoreProvider
	tolerance float64
	log       *logrus.Entry

	mu      sync.Mutex
	metrics Metrics
}

func NewResolver(boxScores BoxScoreProvider, log logrus.FieldLogger) *Resolver {
	return &Resolver{
		boxScores: boxScores,
		tolerance: Tolerance,
		log:       logger.WithComponent(log, "reconciliation"),
	}
}

// Resolve compares every box score player's minutes with the minutes reconstructed for the
// whole game. An undercounted quarter is explained by a player the box score credits with
// one quarter more than reconstructed; an overcounted quarter by one credited with a quarter
// less. Exactly one such player is required.
func (r *Resolver) Resolve(ctx context.Context, req lineup.Repair) (string, error) {
	r.record(func(m *Metrics) { m.Attempts++ })

	box, err := r.boxScores.FetchBoxScore(ctx, req.Game.ID)
	if err != nil {
		r.record(func(m *Metrics) { m.FetchFailures++ })
		return "", fmt.Errorf("box score %s: %w", req.Game.ID, err)
	}

	team := req.Game.Team(req.Side)
	ds := Discrepancies(box.PlayerLines(team), req.Presence.Minutes)
	candidates := Candidates(ds, pbp.PeriodMinutes(req.Quarter), req.Undercount, r.tolerance)

	log := logger.WithGame(r.log, req.Game.ID).WithFields(logrus.Fields{
		"quarter": req.Quarter,
		"team":    team,
	})
	switch len(candidates) {
	case 1:
		r.record(func(m *Metrics) { m.Resolved++ })
		log.WithField("player_id", candidates[0]).Debug("miscount explained")
		return candidates[0], nil
	case 0:
		r.record(func(m *Metrics) { m.NoCandidate++ })
		log.WithField("discrepancies", ds).Debug("no candidate")
		return "", ErrNoCandidate
	default:
		r.record(func(m *Metrics) { m.Ambiguous++ })
		return "", fmt.Errorf("%w: %v", ErrAmbiguous, candidates)
	}
}

func (r *Resolver) record(update func(*Metrics)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	update(&r.metrics)
	r.metrics.LastResolution = time.Now()
}

// GetMetrics returns a snapshot of the resolution metrics
func (r *Resolver) GetMetrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}
