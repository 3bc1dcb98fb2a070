// Package timeline assigns discrete timestamps and elapsed seconds to an ordered game.
package timeline

import (
	"math"

	"github.com/fortuna/janus/internal/pbp"
)

// Normalize annotates every play of g with Timestamp and SecElapsed. The game must already
// be ordered by quarter ascending and clock descending (pbp.NewGame does this).
//
// A new timestamp starts whenever (quarter, clock) differs from the previous play, so plays
// recorded at the same instant share one. SecElapsed is the clock difference from the previous
// play, zero at the start of a period, and wrapped by the period length when a quarter boundary
// makes the difference negative. Plays without a parseable clock keep NaN.
func Normalize(g *pbp.Game) {
	timestamp := 0
	for i, p := range g.Plays {
		if i == 0 || !sameInstant(g.Plays[i-1], p) {
			timestamp++
		}
		p.Timestamp = timestamp

		switch {
		case p.IsPeriodStart():
			p.SecElapsed = 0
		case i == 0:
			p.SecElapsed = math.NaN()
		default:
			elapsed := g.Plays[i-1].SecLeft - p.SecLeft
			if elapsed < 0 {
				elapsed += pbp.PeriodSeconds(p.Quarter)
			}
			p.SecElapsed = elapsed
		}
	}
}

func sameInstant(a, b *pbp.Play) bool {
	if a.Quarter != b.Quarter {
		return false
	}
	if math.IsNaN(a.SecLeft) || math.IsNaN(b.SecLeft) {
		return math.IsNaN(a.SecLeft) && math.IsNaN(b.SecLeft)
	}
	return a.SecLeft == b.SecLeft
}

// Seconds sums elapsed seconds over the positions where include returns true,
// skipping plays without a clock.
func Seconds(g *pbp.Game, include func(i int, p *pbp.Play) bool) float64 {
	total := 0.0
	for i, p := range g.Plays {
		if math.IsNaN(p.SecElapsed) || !include(i, p) {
			continue
		}
		total += p.SecElapsed
	}
	return total
}
