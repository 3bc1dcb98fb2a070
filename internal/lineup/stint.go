// Package lineup rebuilds the five players on court for each team at every play of a game.
package lineup

import (
	"sort"

	"github.com/fortuna/janus/internal/pbp"
)

// Stint is a closed range of timeline positions during which Player was on court.
type Stint struct {
	Player  string   `json:"player"`
	Side    pbp.Side `json:"side"`
	Quarter int      `json:"quarter"`
	Start   int      `json:"start"`
	End     int      `json:"end"`
}

// Len is the number of plays covered.
func (s Stint) Len() int {
	return s.End - s.Start + 1
}

// QuarterStints pairs a player's substitutions within one quarter into stints.
//
// start and end are the quarter's first and last timeline positions; enters and leaves are
// the positions of the player's enter and leave events. A player is on court from the play
// after entering through the play on which they leave. A leave with no earlier unmatched
// enter closes a stint that began with the quarter; an enter with no later leave runs to the
// end of the quarter. A player without substitutions plays the whole quarter.
func QuarterStints(player string, side pbp.Side, quarter, start, end int, enters, leaves []int) []Stint {
	enters = sortedCopy(enters)
	leaves = sortedCopy(leaves)

	if len(enters) == 0 && len(leaves) == 0 {
		return []Stint{{Player: player, Side: side, Quarter: quarter, Start: start, End: end}}
	}

	var stints []Stint
	add := func(from, to int) {
		if from > to {
			return
		}
		stints = append(stints, Stint{Player: player, Side: side, Quarter: quarter, Start: from, End: to})
	}

	for len(enters) > 0 || len(leaves) > 0 {
		switch {
		case len(enters) == 0:
			add(start, leaves[0])
			leaves = leaves[1:]
		case len(leaves) == 0:
			add(enters[0]+1, end)
			enters = enters[1:]
		case enters[0] < leaves[0]:
			add(enters[0]+1, leaves[0])
			enters = enters[1:]
			leaves = leaves[1:]
		default:
			add(start, leaves[0])
			leaves = leaves[1:]
		}
	}
	return stints
}

func sortedCopy(xs []int) []int {
	out := append([]int(nil), xs...)
	sort.Ints(out)
	return out
}
