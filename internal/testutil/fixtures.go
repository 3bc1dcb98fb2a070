// Package testutil builds synthetic play-by-play games and fake providers for tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fortuna/janus/internal/pbp"
)

const (
	HomeTeam = "BOS"
	AwayTeam = "NYK"
	Season   = "2015-16"
)

// HomeStarters and AwayStarters are the default five on court for each team.
var (
	HomeStarters = []string{"h1", "h2", "h3", "h4", "h5"}
	AwayStarters = []string{"a1", "a2", "a3", "a4", "a5"}
)

// GameBuilder appends events to a synthetic game, carrying the score forward.
type GameBuilder struct {
	id        string
	events    []pbp.Event
	quarter   int
	secLeft   float64
	homeScore int
	awayScore int
}

// NewGame starts a game at the opening of the first quarter.
func NewGame(id string) *GameBuilder {
	return &GameBuilder{id: id, quarter: 1, secLeft: pbp.RegulationSeconds}
}

// At moves the clock for subsequent events.
func (b *GameBuilder) At(quarter int, secLeft float64) *GameBuilder {
	b.quarter = quarter
	b.secLeft = secLeft
	return b
}

// Add appends e at the current clock, filling identity and score fields.
func (b *GameBuilder) Add(e pbp.Event) *GameBuilder {
	e.GameID = b.id
	e.Row = len(b.events)
	e.Season = Season
	e.Date = time.Date(2015, time.November, 3, 19, 30, 0, 0, time.UTC)
	e.HomeTeam = HomeTeam
	e.AwayTeam = AwayTeam
	e.Quarter = b.quarter
	e.SecLeft = b.secLeft

	if e.IsMake() {
		pts := e.ShotType.Points()
		if e.FreeThrowOutcome == pbp.Make {
			pts = 1
		}
		if e.Side() == pbp.Home {
			b.homeScore += pts
		} else {
			b.awayScore += pts
		}
	}
	e.HomeScore = b.homeScore
	e.AwayScore = b.awayScore

	b.events = append(b.events, e)
	return b
}

func describe(side pbp.Side, text string) pbp.Event {
	if side == pbp.Home {
		return pbp.Event{HomePlay: text}
	}
	return pbp.Event{AwayPlay: text}
}

// JumpBall records a tip between the two players won by winner.
func (b *GameBuilder) JumpBall(awayPlayer, homePlayer, winner string) *GameBuilder {
	e := describe(pbp.Away, fmt.Sprintf("Jump ball: %s vs. %s (%s gains possession)", awayPlayer, homePlayer, winner))
	e.JumpballAwayPlayer = awayPlayer
	e.JumpballHomePlayer = homePlayer
	e.JumpballPoss = winner
	return b.Add(e)
}

// Shot records a field goal attempt.
func (b *GameBuilder) Shot(side pbp.Side, shooter string, t pbp.ShotType, o pbp.Outcome) *GameBuilder {
	e := describe(side, fmt.Sprintf("%s %d-pt shot", shooter, t.Points()))
	e.Shooter = shooter
	e.ShotType = t
	e.ShotOutcome = o
	return b.Add(e)
}

// FreeThrow records attempt num of of.
func (b *GameBuilder) FreeThrow(side pbp.Side, shooter string, num, of int, o pbp.Outcome) *GameBuilder {
	e := describe(side, fmt.Sprintf("%s free throw %d of %d", shooter, num, of))
	e.FreeThrowShooter = shooter
	e.FreeThrow = pbp.FreeThrow{Num: num, Of: of, Attempted: true}
	e.FreeThrowOutcome = o
	return b.Add(e)
}

// Foul records a shooting foul by fouler on fouled; the text sits with the fouling team.
func (b *GameBuilder) Foul(side pbp.Side, fouler, fouled string) *GameBuilder {
	e := describe(side, fmt.Sprintf("Shooting foul by %s (drawn by %s)", fouler, fouled))
	e.FoulType = "shooting"
	e.Fouler = fouler
	e.Fouled = fouled
	return b.Add(e)
}

// Technical records a technical foul charged to the team bench.
func (b *GameBuilder) Technical(side pbp.Side) *GameBuilder {
	e := describe(side, "Technical foul by Team")
	e.FoulType = pbp.FoulTechnical
	e.Fouler = pbp.TeamPlayer
	return b.Add(e)
}

// Rebound records a rebound by player.
func (b *GameBuilder) Rebound(side pbp.Side, player string, t pbp.ReboundType) *GameBuilder {
	e := describe(side, fmt.Sprintf("Rebound by %s", player))
	e.Rebounder = player
	e.ReboundType = t
	return b.Add(e)
}

// Turnover records a turnover committed by player.
func (b *GameBuilder) Turnover(side pbp.Side, player string) *GameBuilder {
	e := describe(side, fmt.Sprintf("Turnover by %s (bad pass)", player))
	e.TurnoverPlayer = player
	e.TurnoverType = "bad pass"
	return b.Add(e)
}

// Sub records in entering the game for out.
func (b *GameBuilder) Sub(side pbp.Side, in, out string) *GameBuilder {
	e := describe(side, fmt.Sprintf("%s enters the game for %s", in, out))
	e.EnterGame = in
	e.LeaveGame = out
	return b.Add(e)
}

// EndOfQuarter records the end of the current period.
func (b *GameBuilder) EndOfQuarter() *GameBuilder {
	return b.Add(pbp.Event{AwayPlay: fmt.Sprintf("End of %s", ordinalPeriod(b.quarter))})
}

// Touch records a neutral play that puts every given player on the stat sheet, so
// participants without substitutions are indexed for the quarter.
func (b *GameBuilder) Touch(side pbp.Side, players ...string) *GameBuilder {
	for _, p := range players {
		e := describe(side, fmt.Sprintf("%s misses 2-pt shot", p))
		e.Shooter = p
		e.ShotType = pbp.ShotTwo
		e.ShotOutcome = pbp.Miss
		b.Add(e)
	}
	return b
}

// Events returns the rows added so far.
func (b *GameBuilder) Events() []pbp.Event {
	out := make([]pbp.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Game returns the ordered game.
func (b *GameBuilder) Game() *pbp.Game {
	return pbp.NewGame(b.Events())
}

func ordinalPeriod(q int) string {
	switch q {
	case 1:
		return "1st quarter"
	case 2:
		return "2nd quarter"
	case 3:
		return "3rd quarter"
	case 4:
		return "4th quarter"
	default:
		return fmt.Sprintf("%d overtime", q-4)
	}
}

// Sides returns the home/away assignment of the default starters plus extra players.
func Sides(extraHome, extraAway []string) map[string]pbp.Side {
	sides := make(map[string]pbp.Side)
	for _, p := range append(append([]string{}, HomeStarters...), extraHome...) {
		sides[p] = pbp.Home
	}
	for _, p := range append(append([]string{}, AwayStarters...), extraAway...) {
		sides[p] = pbp.Away
	}
	return sides
}

// Players is an in-memory PlayerProvider.
type Players struct {
	mu      sync.Mutex
	byID    map[string]*pbp.Player
	Fetches map[string]int
}

func NewPlayers(players ...*pbp.Player) *Players {
	p := &Players{byID: make(map[string]*pbp.Player), Fetches: make(map[string]int)}
	for _, pl := range players {
		p.byID[pl.ID] = pl
	}
	return p
}

func (p *Players) FetchPlayer(_ context.Context, id string) (*pbp.Player, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Fetches[id]++
	pl, ok := p.byID[id]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", id, pbp.ErrPlayerNotFound)
	}
	return pl, nil
}

// Roster builds players that played only for team in Season.
func Roster(team string, ids ...string) []*pbp.Player {
	out := make([]*pbp.Player, 0, len(ids))
	for i, id := range ids {
		out = append(out, &pbp.Player{
			ID:            id,
			Name:          id,
			HeightCM:      190 + i,
			MassKG:        90 + i,
			TeamsBySeason: map[string][]string{Season: {team}},
		})
	}
	return out
}

// BoxScores is an in-memory BoxScoreProvider.
type BoxScores struct {
	mu      sync.Mutex
	byGame  map[string]*pbp.BoxScore
	Fetches int
}

func NewBoxScores(scores ...*pbp.BoxScore) *BoxScores {
	b := &BoxScores{byGame: make(map[string]*pbp.BoxScore)}
	for _, s := range scores {
		b.byGame[s.GameID] = s
	}
	return b
}

func (b *BoxScores) FetchBoxScore(_ context.Context, gameID string) (*pbp.BoxScore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Fetches++
	s, ok := b.byGame[gameID]
	if !ok {
		return nil, fmt.Errorf("fetch box score %s: %w", gameID, pbp.ErrNoBoxScore)
	}
	return s, nil
}
