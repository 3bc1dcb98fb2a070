package service

import (
	"context"
	"fmt"

	"github.com/fortuna/janus/internal/analytics"
	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/store"
)

// GameReader is the part of the game repository the read side needs.
type GameReader interface {
	GetTimeline(ctx context.Context, gameID string) (*pbp.Game, error)
	GetBySeason(ctx context.Context, season string, includeExcluded bool) ([]*store.Game, error)
}

// GameService handles game-related business logic
type GameService struct {
	games GameReader
}

// NewGameService creates a new game service
func NewGameService(games GameReader) *GameService {
	return &GameService{games: games}
}

// GetTimeline retrieves the annotated timeline of a game
func (s *GameService) GetTimeline(ctx context.Context, gameID string) (*TimelineView, error) {
	g, err := s.games.GetTimeline(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("fetching timeline: %w", err)
	}
	return timelineView(g), nil
}

// GetMatchups aggregates the lineup matchups of a stored game
func (s *GameService) GetMatchups(ctx context.Context, gameID string) ([]MatchupView, error) {
	g, err := s.games.GetTimeline(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("fetching timeline: %w", err)
	}

	matchups := analytics.LineupMatchups(g)
	out := make([]MatchupView, 0, len(matchups))
	for _, m := range matchups {
		out = append(out, MatchupView{
			Matchup: m,
			AwayPPP: finite(m.AwayPPP),
			HomePPP: finite(m.HomePPP),
		})
	}
	return out, nil
}

// GetSeasonGames lists the stored games of a season
func (s *GameService) GetSeasonGames(ctx context.Context, season string, includeExcluded bool) ([]*store.Game, error) {
	label, ok := pbp.NormalizeSeason(season)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeason, season)
	}
	games, err := s.games.GetBySeason(ctx, label, includeExcluded)
	if err != nil {
		return nil, fmt.Errorf("fetching season games: %w", err)
	}
	return games, nil
}
