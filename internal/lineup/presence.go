package lineup

import (
	"sort"

	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/timeline"
)

// Presence is the on-court matrix of one game: for each player, one flag per play.
type Presence struct {
	game    *pbp.Game
	sides   map[string]pbp.Side
	onCourt map[string][]bool
}

func NewPresence(g *pbp.Game, sides map[string]pbp.Side) *Presence {
	p := &Presence{
		game:    g,
		sides:   make(map[string]pbp.Side, len(sides)),
		onCourt: make(map[string][]bool, len(sides)),
	}
	for id, side := range sides {
		p.sides[id] = side
		p.onCourt[id] = make([]bool, len(g.Plays))
	}
	return p
}

// Side returns the side of player, NoSide when unknown.
func (p *Presence) Side(player string) pbp.Side {
	return p.sides[player]
}

// Players returns the known players of side in id order.
func (p *Presence) Players(side pbp.Side) []string {
	var out []string
	for id, s := range p.sides {
		if s == side {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// OnCourt reports whether player is on court at position i.
func (p *Presence) OnCourt(player string, i int) bool {
	flags, ok := p.onCourt[player]
	return ok && flags[i]
}

// Apply marks every position of s as on court.
func (p *Presence) Apply(s Stint) {
	p.Set(s.Player, s.Side, s.Start, s.End, true)
}

// Set forces player on or off court for positions start..end. A player not yet known is
// added to side.
func (p *Presence) Set(player string, side pbp.Side, start, end int, on bool) {
	flags, ok := p.onCourt[player]
	if !ok {
		flags = make([]bool, len(p.game.Plays))
		p.onCourt[player] = flags
		p.sides[player] = side
	}
	for i := start; i <= end; i++ {
		flags[i] = on
	}
}

// Count returns the number of side's players on court at position i.
func (p *Presence) Count(side pbp.Side, i int) int {
	n := 0
	for id, flags := range p.onCourt {
		if p.sides[id] == side && flags[i] {
			n++
		}
	}
	return n
}

// Minutes returns the reconstructed minutes of player over the whole game.
func (p *Presence) Minutes(player string) float64 {
	flags, ok := p.onCourt[player]
	if !ok {
		return 0
	}
	return timeline.Seconds(p.game, func(i int, _ *pbp.Play) bool { return flags[i] }) / 60
}

// Stints returns the contiguous on-court runs of every player, split at quarter boundaries,
// ordered by quarter, side (away first), player and start.
func (p *Presence) Stints() []Stint {
	var out []Stint
	for q := 1; q <= p.game.Quarters(); q++ {
		start, end, ok := p.game.QuarterBounds(q)
		if !ok {
			continue
		}
		for _, side := range []pbp.Side{pbp.Away, pbp.Home} {
			for _, id := range p.Players(side) {
				flags := p.onCourt[id]
				runStart := -1
				for i := start; i <= end+1; i++ {
					on := i <= end && flags[i]
					switch {
					case on && runStart < 0:
						runStart = i
					case !on && runStart >= 0:
						out = append(out, Stint{Player: id, Side: side, Quarter: q, Start: runStart, End: i - 1})
						runStart = -1
					}
				}
			}
		}
	}
	return out
}
