package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/janus/internal/analytics"
	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/store"
	fixtures "github.com/fortuna/janus/internal/testutil"
	"github.com/fortuna/janus/pkg/logger"
)

var errMissing = errors.New("game not found")

type stubGames struct {
	games   map[string]*pbp.Game
	season  string
	include bool
}

func (s *stubGames) GetTimeline(_ context.Context, id string) (*pbp.Game, error) {
	g, ok := s.games[id]
	if !ok {
		return nil, errMissing
	}
	return g, nil
}

func (s *stubGames) GetBySeason(_ context.Context, season string, include bool) ([]*store.Game, error) {
	s.season, s.include = season, include
	return []*store.Game{{GameID: "g1", Season: season}}, nil
}

type stubLineups []*store.LineupResult

func (s stubLineups) TopBySeason(_ context.Context, season string, limit int) ([]*store.LineupResult, error) {
	var out []*store.LineupResult
	for _, r := range s {
		if r.Season == season && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubMiscounts []*store.Miscount

func (s stubMiscounts) List(_ context.Context, season string) ([]*store.Miscount, error) {
	var out []*store.Miscount
	for _, m := range s {
		if season == "" || m.Season == season {
			out = append(out, m)
		}
	}
	return out, nil
}

func annotated() *pbp.Game {
	home := append([]string(nil), fixtures.HomeStarters...)
	away := append([]string(nil), fixtures.AwayStarters...)
	return &pbp.Game{
		ID: "g1", Season: "2015-16", HomeTeam: fixtures.HomeTeam, AwayTeam: fixtures.AwayTeam,
		Plays: []*pbp.Play{
			{
				Event:      pbp.Event{Row: 1, Quarter: 1, SecLeft: 720, Season: "2015-16"},
				Timestamp:  1,
				SecElapsed: math.NaN(),
				HomeLineup: home,
				AwayLineup: away,
			},
			{
				Event:       pbp.Event{Row: 2, Quarter: 1, SecLeft: 700, Season: "2015-16", HomeScore: 2},
				Timestamp:   2,
				SecElapsed:  20,
				HomeLineup:  home,
				AwayLineup:  away,
				HomePossEnd: true,
				HomePoss:    1,
				HomePts:     2,
				Margin:      2,
				FinalMargin: 2,
			},
		},
	}
}

func TestGetTimelineEncodesNaNAsNull(t *testing.T) {
	svc := NewGameService(&stubGames{games: map[string]*pbp.Game{"g1": annotated()}})

	view, err := svc.GetTimeline(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, view.Plays, 2)
	assert.Nil(t, view.Plays[0].SecElapsed)
	assert.Equal(t, 20.0, *view.Plays[1].SecElapsed)

	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sec_elapsed":null`)

	_, err = svc.GetTimeline(context.Background(), "nope")
	assert.ErrorIs(t, err, errMissing)
}

func TestGetMatchups(t *testing.T) {
	svc := NewGameService(&stubGames{games: map[string]*pbp.Game{"g1": annotated()}})

	matchups, err := svc.GetMatchups(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, matchups, 1)
	m := matchups[0]
	assert.Equal(t, 1, m.HomePoss)
	assert.Equal(t, 2.0, *m.HomePPP)
	assert.Nil(t, m.AwayPPP)

	data, err := json.Marshal(matchups)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"away_ppp":null`)
}

func TestGetSeasonGamesNormalizes(t *testing.T) {
	games := &stubGames{}
	svc := NewGameService(games)

	_, err := svc.GetSeasonGames(context.Background(), "16", true)
	require.NoError(t, err)
	assert.Equal(t, "2015-16", games.season)
	assert.True(t, games.include)

	_, err = svc.GetSeasonGames(context.Background(), "sixteen", false)
	assert.ErrorIs(t, err, ErrInvalidSeason)
}

func TestTopLineups(t *testing.T) {
	lineups := stubLineups{
		{Season: "2015-16", Lineup: "h1,h2,h3,h4,h5", Home: true, OffPoss: 10, PtsScored: 12, DefPoss: 0},
		{Season: "2014-15", Lineup: "x", OffPoss: 4},
	}
	svc := NewAnalyticsService(lineups, &stubGames{}, nil)

	views, err := svc.TopLineups(context.Background(), "2016", 5)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.InDelta(t, 1.2, *views[0].OffPPP, 1e-9)
	assert.Nil(t, views[0].DefPPP)
}

func TestGetLineupFeature(t *testing.T) {
	players := fixtures.NewPlayers(append(
		fixtures.Roster(fixtures.HomeTeam, fixtures.HomeStarters...),
		fixtures.Roster(fixtures.AwayTeam, fixtures.AwayStarters...)...,
	)...)
	games := &stubGames{games: map[string]*pbp.Game{"g1": annotated()}}
	svc := NewAnalyticsService(nil, games, analytics.NewFeatureBuilder(players, logger.Discard()))

	rows, err := svc.GetLineupFeature(context.Background(), "g1", analytics.Height, analytics.Mean, false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Len(t, rows[0].Home, 1)
	assert.InDelta(t, 192.0, *rows[0].Home[0], 1e-9)

	_, err = NewAnalyticsService(nil, games, nil).GetLineupFeature(context.Background(), "g1", analytics.Height, analytics.Mean, false)
	assert.Error(t, err)
}

func TestMiscountList(t *testing.T) {
	svc := NewMiscountService(stubMiscounts{
		{GameID: "g1", Season: "2015-16", Quarter: 2, Side: "home", Magnitude: -1},
		{GameID: "g1", Season: "2015-16", Quarter: 3, Side: "away", Magnitude: 1},
		{GameID: "g9", Season: "2016-17", Quarter: 1, Side: "home", Magnitude: 1},
	})

	summary, err := svc.List(context.Background(), "16")
	require.NoError(t, err)
	assert.Equal(t, "2015-16", summary.Season)
	assert.Equal(t, 1, summary.Games)
	require.Len(t, summary.Records, 2)
	assert.Equal(t, pbp.Away, summary.Records[1].Side)

	all, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, all.Games)
}

func TestGetPlayer(t *testing.T) {
	p := &pbp.Player{
		ID: "h1", Name: "Home One", HeightCM: 200,
		BirthDate:      time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC),
		SalaryBySeason: map[string]int64{"2015-16": 1000000},
	}
	svc := NewPlayerService(fixtures.NewPlayers(p))

	view, err := svc.GetPlayer(context.Background(), "h1", "2015-16")
	require.NoError(t, err)
	assert.InDelta(t, 26.0, *view.Age, 0.01)
	assert.Equal(t, int64(1000000), *view.Salary)

	bare, err := svc.GetPlayer(context.Background(), "h1", "")
	require.NoError(t, err)
	assert.Nil(t, bare.Age)

	_, err = svc.GetPlayer(context.Background(), "nobody", "")
	assert.ErrorIs(t, err, pbp.ErrPlayerNotFound)
}
