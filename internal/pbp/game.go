package pbp

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Play is an Event plus the annotations derived by the pipeline.
type Play struct {
	Event

	Timestamp  int
	SecElapsed float64

	HomeLineup []string
	AwayLineup []string

	HomePossEnd bool
	AwayPossEnd bool
	HomePoss    int
	AwayPoss    int

	HomePts                int
	AwayPts                int
	Margin                 int
	FinalMargin            int
	ClosestRemainingMargin int
}

// PossEnd reports whether side's possession ends at this play.
func (p *Play) PossEnd(side Side) bool {
	switch side {
	case Home:
		return p.HomePossEnd
	case Away:
		return p.AwayPossEnd
	default:
		return false
	}
}

// SetPossEnd marks side's possession as ending at this play.
func (p *Play) SetPossEnd(side Side) {
	switch side {
	case Home:
		p.HomePossEnd = true
	case Away:
		p.AwayPossEnd = true
	}
}

// Lineup returns the on-court players of side at this play.
func (p *Play) Lineup(side Side) []string {
	if side == Home {
		return p.HomeLineup
	}
	return p.AwayLineup
}

// LineupKey returns the comma-joined lineup used for grouping and export.
func (p *Play) LineupKey(side Side) string {
	return strings.Join(p.Lineup(side), ",")
}

// Game is the ordered timeline of one game.
type Game struct {
	ID       string
	Season   string
	Date     time.Time
	HomeTeam string
	AwayTeam string
	Plays    []*Play
}

// NewGame orders the events of a single game by quarter ascending, clock descending and
// original row order. Events with a malformed clock sort last within their quarter.
func NewGame(events []Event) *Game {
	plays := make([]*Play, len(events))
	for i := range events {
		plays[i] = &Play{Event: events[i], SecElapsed: math.NaN()}
	}
	sort.SliceStable(plays, func(i, j int) bool {
		a, b := plays[i], plays[j]
		if a.Quarter != b.Quarter {
			return a.Quarter < b.Quarter
		}
		an, bn := math.IsNaN(a.SecLeft), math.IsNaN(b.SecLeft)
		if an && bn {
			return a.Row < b.Row
		}
		if an || bn {
			return bn
		}
		if a.SecLeft != b.SecLeft {
			return a.SecLeft > b.SecLeft
		}
		return a.Row < b.Row
	})

	g := &Game{Plays: plays}
	if len(plays) > 0 {
		first := plays[0]
		g.ID = first.GameID
		g.Season = first.Season
		g.Date = first.Date
		g.HomeTeam = first.HomeTeam
		g.AwayTeam = first.AwayTeam
	}
	return g
}

// GroupGames splits a season's rows into games, in order of first appearance.
func GroupGames(events []Event) []*Game {
	order := make([]string, 0)
	byGame := make(map[string][]Event)
	for _, e := range events {
		if _, ok := byGame[e.GameID]; !ok {
			order = append(order, e.GameID)
		}
		byGame[e.GameID] = append(byGame[e.GameID], e)
	}

	games := make([]*Game, 0, len(order))
	for _, id := range order {
		games = append(games, NewGame(byGame[id]))
	}
	return games
}

// Team returns the team code of side.
func (g *Game) Team(side Side) string {
	switch side {
	case Home:
		return g.HomeTeam
	case Away:
		return g.AwayTeam
	default:
		return ""
	}
}

// Quarters returns the highest quarter number present.
func (g *Game) Quarters() int {
	max := 0
	for _, p := range g.Plays {
		if p.Quarter > max {
			max = p.Quarter
		}
	}
	return max
}

// QuarterBounds returns the first and last timeline positions of quarter q.
func (g *Game) QuarterBounds(q int) (start, end int, ok bool) {
	start, end = -1, -1
	for i, p := range g.Plays {
		if p.Quarter != q {
			continue
		}
		if start < 0 {
			start = i
		}
		end = i
	}
	return start, end, start >= 0
}

// MiscountRecord marks a quarter whose reconstructed lineup is not five players for one team.
type MiscountRecord struct {
	GameID  string `json:"game_id"`
	Season  string `json:"season"`
	Quarter int    `json:"quarter"`
	Side    Side   `json:"side"`
	Team    string `json:"team"`
	// Magnitude is the signed deviation from five with the largest absolute value.
	Magnitude int `json:"magnitude"`
	Events    int `json:"events"`
}
