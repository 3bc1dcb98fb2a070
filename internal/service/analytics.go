package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/fortuna/janus/internal/analytics"
	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/store"
)

// ErrInvalidSeason is returned for season labels that cannot be normalized.
var ErrInvalidSeason = errors.New("invalid season")

// LineupReader is the part of the lineup repository the read side needs.
type LineupReader interface {
	TopBySeason(ctx context.Context, season string, limit int) ([]*store.LineupResult, error)
}

// AnalyticsService serves lineup results and lineup features
type AnalyticsService struct {
	lineups  LineupReader
	games    GameReader
	features *analytics.FeatureBuilder
}

// NewAnalyticsService creates a new analytics service. features may be nil when no player
// provider is configured.
func NewAnalyticsService(lineups LineupReader, games GameReader, features *analytics.FeatureBuilder) *AnalyticsService {
	return &AnalyticsService{
		lineups:  lineups,
		games:    games,
		features: features,
	}
}

// TopLineups returns the most used lineups of a season
func (s *AnalyticsService) TopLineups(ctx context.Context, season string, limit int) ([]LineupView, error) {
	label, ok := pbp.NormalizeSeason(season)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeason, season)
	}

	rows, err := s.lineups.TopBySeason(ctx, label, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching lineups: %w", err)
	}

	out := make([]LineupView, 0, len(rows))
	for _, r := range rows {
		out = append(out, LineupView{
			Season:     r.Season,
			Lineup:     r.Lineup,
			Home:       r.Home,
			SecElapsed: r.SecElapsed,
			OffPoss:    r.OffPoss,
			DefPoss:    r.DefPoss,
			PtsScored:  r.PtsScored,
			PtsAllowed: r.PtsAllowed,
			OffPPP:     finite(safeDiv(r.PtsScored, r.OffPoss)),
			DefPPP:     finite(safeDiv(r.PtsAllowed, r.DefPoss)),
		})
	}
	return out, nil
}

// GetLineupFeature computes a lineup feature over a stored game
func (s *AnalyticsService) GetLineupFeature(ctx context.Context, gameID string, attr analytics.Attribute, agg analytics.Aggregation, delta bool) ([]FeatureView, error) {
	if s.features == nil {
		return nil, fmt.Errorf("lineup features are not configured")
	}

	g, err := s.games.GetTimeline(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("fetching timeline: %w", err)
	}

	rows, err := s.features.LineupFeature(ctx, g, attr, agg, delta)
	if err != nil {
		return nil, fmt.Errorf("computing %s %s: %w", agg, attr, err)
	}

	out := make([]FeatureView, len(rows))
	for i, r := range rows {
		out[i] = FeatureView{
			Timestamp: r.Timestamp,
			Away:      finiteAll(r.Away),
			Home:      finiteAll(r.Home),
			Delta:     finiteAll(r.Delta),
		}
	}
	return out, nil
}

// safeDiv is NaN without possessions
func safeDiv(pts, poss int) float64 {
	if poss == 0 {
		return math.NaN()
	}
	return float64(pts) / float64(poss)
}
