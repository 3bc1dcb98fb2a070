package service

import (
	"context"
	"fmt"

	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/roster"
)

// PlayerService handles player-related business logic
type PlayerService struct {
	players roster.PlayerProvider
}

// NewPlayerService creates a new player service over a (usually cached) provider
func NewPlayerService(players roster.PlayerProvider) *PlayerService {
	return &PlayerService{players: players}
}

// GetPlayer retrieves a player profile. With a season, the age and salary of that season
// are included.
func (s *PlayerService) GetPlayer(ctx context.Context, playerID, season string) (*PlayerView, error) {
	p, err := s.players.FetchPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("fetching player: %w", err)
	}

	view := &PlayerView{Player: p}
	if season == "" {
		return view, nil
	}

	label, ok := pbp.NormalizeSeason(season)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeason, season)
	}
	view.Season = label
	if age, ok := p.Age(label); ok {
		view.Age = &age
	}
	salary := p.Salary(label)
	view.Salary = &salary
	return view, nil
}
