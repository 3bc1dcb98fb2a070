package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/janus/internal/cache"
	"github.com/fortuna/janus/internal/pbp"
	fixtures "github.com/fortuna/janus/internal/testutil"
	"github.com/fortuna/janus/pkg/logger"
	"github.com/fortuna/janus/pkg/metrics"
)

func game(id string, homeQ2 ...string) *pbp.Game {
	if len(homeQ2) == 0 {
		homeQ2 = fixtures.HomeStarters
	}
	return fixtures.NewGame(id).
		JumpBall("a1", "h1", "h2").
		At(1, 700).Touch(pbp.Home, fixtures.HomeStarters...).
		At(1, 650).Touch(pbp.Away, fixtures.AwayStarters...).
		At(1, 600).Shot(pbp.Home, "h1", pbp.ShotTwo, pbp.Make).
		At(1, 0).EndOfQuarter().
		At(2, 700).Touch(pbp.Home, homeQ2...).
		At(2, 650).Touch(pbp.Away, fixtures.AwayStarters...).
		At(2, 600).Shot(pbp.Away, "a1", pbp.ShotThree, pbp.Make).
		At(2, 0).EndOfQuarter().
		Game()
}

func env(t *testing.T) (Env, *cache.Memory, *metrics.Manager) {
	t.Helper()
	players := fixtures.NewPlayers(append(
		fixtures.Roster(fixtures.HomeTeam, fixtures.HomeStarters...),
		fixtures.Roster(fixtures.AwayTeam, fixtures.AwayStarters...)...,
	)...)
	boxes := fixtures.NewBoxScores()
	store := cache.NewMemory()
	m := metrics.NewManager()
	return NewEnv(store, players, boxes, m, logger.Discard()), store, m
}

func TestProcessAnnotatesGame(t *testing.T) {
	e, _, _ := env(t)
	g := game("g1")

	res, err := NewProcessor(e, DefaultOptions()).Process(context.Background(), g)
	require.NoError(t, err)

	assert.False(t, res.Excluded())
	assert.Empty(t, res.Miscounts)
	assert.Len(t, res.Stints, 20)
	for _, p := range g.Plays {
		assert.NotZero(t, p.Timestamp)
		assert.Len(t, p.HomeLineup, 5)
		assert.Len(t, p.AwayLineup, 5)
	}
	last := g.Plays[len(g.Plays)-1]
	assert.Equal(t, -1, last.FinalMargin)
	assert.Equal(t, 2, last.HomePoss)
	assert.Equal(t, 2, last.AwayPoss)
	assert.Equal(t, pbp.Home, res.Assignment.Side("h3"))
}

func TestProcessWithoutLineups(t *testing.T) {
	e, _, _ := env(t)
	g := game("g1")

	opts := DefaultOptions()
	opts.Lineups = false
	res, err := NewProcessor(e, opts).Process(context.Background(), g)
	require.NoError(t, err)

	assert.Nil(t, res.Stints)
	for _, p := range g.Plays {
		assert.Empty(t, p.HomeLineup)
	}
	assert.Equal(t, 2, g.Plays[len(g.Plays)-1].HomePoss)
}

func TestProcessAllKeepsGoingAndDropsMiscountGames(t *testing.T) {
	e, store, m := env(t)
	games := []*pbp.Game{
		game("g1"),
		game("g2", "h1", "h2", "h3", "h4"),
		game("g3"),
	}

	p := NewProcessor(e, DefaultOptions())
	batch, err := p.ProcessAll(context.Background(), games)
	require.NoError(t, err)
	require.Len(t, batch.Results, 3)

	assert.Empty(t, batch.Failures())
	recs := batch.Miscounts()
	require.Len(t, recs, 1)
	assert.Equal(t, "g2", recs[0].GameID)
	assert.Equal(t, 2, recs[0].Quarter)
	assert.Equal(t, -1, recs[0].Magnitude)

	kept := p.Kept(batch)
	require.Len(t, kept, 2)
	assert.Equal(t, "g1", kept[0].ID)
	assert.Equal(t, "g3", kept[1].ID)
	assert.Len(t, batch.Games(false), 3)

	excluded, err := store.IsExcluded(context.Background(), "g2")
	require.NoError(t, err)
	assert.True(t, excluded)

	assert.Equal(t, 2.0, gamesProcessed(t, m, "ok"))
	assert.Equal(t, 1.0, gamesProcessed(t, m, "miscount"))
}

func gamesProcessed(t *testing.T, m *metrics.Manager, outcome string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "janus_pipeline_games_processed_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestProcessAllCancelled(t *testing.T) {
	e, _, _ := env(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := NewProcessor(e, DefaultOptions()).ProcessAll(ctx, []*pbp.Game{game("g1"), game("g2")})
	require.Error(t, err)
	require.Len(t, batch.Results, 2)
	assert.Len(t, batch.Failures(), 2)
}

func TestPlayersFetchedOncePerRun(t *testing.T) {
	players := fixtures.NewPlayers(append(
		fixtures.Roster(fixtures.HomeTeam, fixtures.HomeStarters...),
		fixtures.Roster(fixtures.AwayTeam, fixtures.AwayStarters...)...,
	)...)
	e := NewEnv(cache.NewMemory(), players, nil, nil, logger.Discard())

	opts := DefaultOptions()
	opts.Workers = 1
	_, err := NewProcessor(e, opts).ProcessAll(context.Background(), []*pbp.Game{game("g1"), game("g2")})
	require.NoError(t, err)
	assert.Equal(t, 1, players.Fetches["h1"])
}
