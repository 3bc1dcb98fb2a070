package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/pkg/logger"
)

// PlayerProvider returns biography and season history for a player id.
type PlayerProvider interface {
	FetchPlayer(ctx context.Context, id string) (*pbp.Player, error)
}

// Assignment is the team side of every participant of one game plus the player
// records that were available.
type Assignment struct {
	Sides   map[string]pbp.Side
	Players map[string]*pbp.Player
	// Undetermined lists players placed on the away side for lack of evidence.
	Undetermined []string
}

// Side returns the side of id, NoSide if id did not participate.
func (a *Assignment) Side(id string) pbp.Side {
	if a == nil {
		return pbp.NoSide
	}
	return a.Sides[id]
}

// OnSide returns the participants on side, sorted by id.
func (a *Assignment) OnSide(side pbp.Side) []string {
	set := make(map[string]struct{})
	for id, s := range a.Sides {
		if s == side {
			set[id] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Assigner decides home or away for every participant of a game.
type Assigner struct {
	players PlayerProvider
	log     *logrus.Entry
}

func NewAssigner(players PlayerProvider, log logrus.FieldLogger) *Assigner {
	return &Assigner{players: players, log: logger.WithComponent(log, "roster")}
}

// Assign looks every participant up in the season roster data. A player listed for exactly
// one of the two teams is assigned to it. Players listed for both or neither fall back to the
// description column of their substitutions. Lookup failures are logged and treated as
// "neither"; only context cancellation is returned as an error.
func (a *Assigner) Assign(ctx context.Context, g *pbp.Game) (*Assignment, error) {
	log := logger.WithGame(a.log, g.ID)
	out := &Assignment{
		Sides:   make(map[string]pbp.Side),
		Players: make(map[string]*pbp.Player),
	}

	for _, id := range GameParticipants(g) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("assign %s: %w", g.ID, err)
		}

		var player *pbp.Player
		if a.players != nil {
			p, err := a.players.FetchPlayer(ctx, id)
			switch {
			case err == nil:
				player = p
				out.Players[id] = p
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil, fmt.Errorf("assign %s: %w", g.ID, err)
			default:
				log.WithError(err).WithField("player_id", id).Warn("player lookup failed, using play text")
			}
		}

		home := player.PlayedFor(g.Season, g.HomeTeam)
		away := player.PlayedFor(g.Season, g.AwayTeam)
		if home != away {
			if home {
				out.Sides[id] = pbp.Home
			} else {
				out.Sides[id] = pbp.Away
			}
			continue
		}

		side, ok := sideFromSubstitutions(g, id)
		if !ok {
			log.WithField("player_id", id).Warn("team undetermined, defaulting to away")
			out.Undetermined = append(out.Undetermined, id)
			side = pbp.Away
		}
		out.Sides[id] = side
	}
	return out, nil
}

// sideFromSubstitutions reads the description columns of the player's substitution events.
// Away text overrides home text when both occur.
func sideFromSubstitutions(g *pbp.Game, id string) (pbp.Side, bool) {
	side := pbp.NoSide
	sawAway := false
	for _, p := range g.Plays {
		if p.EnterGame != id && p.LeaveGame != id {
			continue
		}
		if p.HomePlay != "" {
			side = pbp.Home
		}
		if p.AwayPlay != "" {
			sawAway = true
		}
	}
	if sawAway {
		side = pbp.Away
	}
	return side, side != pbp.NoSide
}
