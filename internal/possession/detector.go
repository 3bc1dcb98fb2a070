// Package possession marks where each team's possessions end and derives running
// possession counts, points and margins.
package possession

import (
	"github.com/sirupsen/logrus"

	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/pkg/logger"
)

// Detector annotates normalized games with possession boundaries.
type Detector struct {
	log *logrus.Entry
}

func NewDetector(log logrus.FieldLogger) *Detector {
	return &Detector{log: logger.WithComponent(log, "possession")}
}

// Annotate sets HomePossEnd/AwayPossEnd, the running possession counts, points and margins
// of every play. sides maps player ids to teams and is used to attribute the opening tip.
//
// Rules apply in order: defensive rebounds end the other team's possession; turnovers, made
// final free throws and made field goals end the acting team's possession, except a field
// goal sharing its timestamp with a 1 of 1 free throw. Then each end-of-quarter row without a
// possession end at its timestamp, and each jump ball after the start of a period, ends the
// possession of the team holding the ball.
func (d *Detector) Annotate(g *pbp.Game, sides map[string]pbp.Side) {
	andOne := make(map[int]bool)
	for _, p := range g.Plays {
		if p.FreeThrow.IsAndOne() {
			andOne[p.Timestamp] = true
		}
	}

	for _, p := range g.Plays {
		side := p.Side()
		if side == pbp.NoSide {
			continue
		}
		if p.ReboundType == pbp.ReboundDefensive {
			p.SetPossEnd(side.Opponent())
		}
		if p.IsTurnover() {
			p.SetPossEnd(side)
		}
		if p.FreeThrow.IsFinal() && p.FreeThrowOutcome == pbp.Make {
			p.SetPossEnd(side)
		}
		if p.IsFieldGoal() && p.IsMake() && !andOne[p.Timestamp] {
			p.SetPossEnd(side)
		}
	}

	for i, p := range g.Plays {
		if !p.IsEndOfQuarter() || endsAtTimestamp(g, p.Timestamp) {
			continue
		}
		p.SetPossEnd(InPossessionAt(g, i, sides))
	}

	for i, p := range g.Plays {
		if !p.IsJumpBall() || p.IsPeriodStart() {
			continue
		}
		holder := InPossessionAt(g, i, sides)
		logger.WithGame(d.log, g.ID).WithFields(logrus.Fields{
			"quarter":  p.Quarter,
			"sec_left": p.SecLeft,
			"side":     holder.String(),
		}).Debug("mid-quarter jump ball ends possession")
		p.SetPossEnd(holder)
	}

	Score(g)
}

func endsAtTimestamp(g *pbp.Game, ts int) bool {
	for _, p := range g.Plays {
		if p.Timestamp == ts && (p.HomePossEnd || p.AwayPossEnd) {
			return true
		}
	}
	return false
}

// InPossessionAt returns the team holding the ball at position i: the team opposite the most
// recent possession end strictly before i. Before any possession has ended, the winner of the
// opening tip has the ball; a winner not known to be home is treated as away.
func InPossessionAt(g *pbp.Game, i int, sides map[string]pbp.Side) pbp.Side {
	lastHome, lastAway := -1, -1
	for j := 0; j < i && j < len(g.Plays); j++ {
		if g.Plays[j].HomePossEnd {
			lastHome = j
		}
		if g.Plays[j].AwayPossEnd {
			lastAway = j
		}
	}

	if lastHome < 0 && lastAway < 0 {
		if sides[OpeningTipWinner(g)] == pbp.Home {
			return pbp.Home
		}
		return pbp.Away
	}
	if lastAway > lastHome {
		return pbp.Home
	}
	return pbp.Away
}

// OpeningTipWinner returns the first JumpballPoss recorded at timestamp 1. Period-start
// rows and substitutions at the same instant are skipped.
func OpeningTipWinner(g *pbp.Game) string {
	for _, p := range g.Plays {
		if p.Timestamp > 1 {
			break
		}
		if p.Timestamp == 1 && p.JumpballPoss != "" {
			return p.JumpballPoss
		}
	}
	return ""
}

// Score fills possession counts, per-play points and the margin fields.
func Score(g *pbp.Game) {
	homePoss, awayPoss := 0, 0
	for i, p := range g.Plays {
		if p.HomePossEnd {
			homePoss++
		}
		if p.AwayPossEnd {
			awayPoss++
		}
		p.HomePoss = homePoss
		p.AwayPoss = awayPoss

		if i > 0 {
			prev := g.Plays[i-1]
			p.HomePts = p.HomeScore - prev.HomeScore
			p.AwayPts = p.AwayScore - prev.AwayScore
		}
		p.Margin = p.HomeScore - p.AwayScore
	}

	if len(g.Plays) == 0 {
		return
	}
	final := g.Plays[len(g.Plays)-1].Margin
	closest := abs(final)
	for i := len(g.Plays) - 1; i >= 0; i-- {
		p := g.Plays[i]
		if m := abs(p.Margin); m < closest {
			closest = m
		}
		p.FinalMargin = final
		p.ClosestRemainingMargin = closest
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
