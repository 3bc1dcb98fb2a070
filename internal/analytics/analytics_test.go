package analytics

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/janus/internal/pbp"
	fixtures "github.com/fortuna/janus/internal/testutil"
	"github.com/fortuna/janus/pkg/logger"
)

var (
	homeA = []string{"h1", "h2", "h3", "h4", "h5"}
	homeB = []string{"h1", "h2", "h3", "h4", "h6"}
	awayA = []string{"a1", "a2", "a3", "a4", "a5"}
)

type play struct {
	home, away []string
	secs       float64
	homeEnd    bool
	awayEnd    bool
	homePts    int
	awayPts    int
}

func annotated(id string, plays ...play) *pbp.Game {
	g := &pbp.Game{ID: id, Season: fixtures.Season, HomeTeam: fixtures.HomeTeam, AwayTeam: fixtures.AwayTeam}
	for i, p := range plays {
		g.Plays = append(g.Plays, &pbp.Play{
			Event:       pbp.Event{GameID: id, Season: fixtures.Season},
			Timestamp:   i + 1,
			SecElapsed:  p.secs,
			HomeLineup:  p.home,
			AwayLineup:  p.away,
			HomePossEnd: p.homeEnd,
			AwayPossEnd: p.awayEnd,
			HomePts:     p.homePts,
			AwayPts:     p.awayPts,
		})
	}
	return g
}

func sampleGame() *pbp.Game {
	return annotated("g1",
		play{home: homeA, away: awayA, secs: math.NaN()},
		play{home: homeA, away: awayA, secs: 20, homeEnd: true, homePts: 2},
		play{home: homeA, away: awayA, secs: 15, awayEnd: true, awayPts: 3},
		play{home: homeA, away: awayA, secs: 10, homeEnd: true},
		play{home: homeB, away: awayA, secs: 30, awayEnd: true, awayPts: 2},
		play{home: homeB, away: awayA},
	)
}

func TestLineupMatchups(t *testing.T) {
	ms := LineupMatchups(sampleGame())
	require.Len(t, ms, 2)

	first := ms[0]
	assert.Equal(t, "h1,h2,h3,h4,h5", first.HomeLineup)
	assert.Equal(t, "a1,a2,a3,a4,a5", first.AwayLineup)
	assert.Equal(t, 45.0, first.SecElapsed)
	assert.Equal(t, 2, first.HomePoss)
	assert.Equal(t, 1, first.AwayPoss)
	assert.Equal(t, 3, first.TotalPossessions)
	assert.Equal(t, 1.0, first.HomePPP)
	assert.Equal(t, 3.0, first.AwayPPP)
	assert.InDelta(t, 45.0/75, first.SecElapsedCumDist, 1e-9)
	assert.InDelta(t, 0.75, first.TotPossCumDist, 1e-9)

	second := ms[1]
	assert.Equal(t, "h1,h2,h3,h4,h6", second.HomeLineup)
	assert.True(t, math.IsNaN(second.HomePPP))
	assert.Equal(t, 2.0, second.AwayPPP)
	assert.InDelta(t, 1.0, second.SecElapsedCumDist, 1e-9)
	assert.InDelta(t, 1.0, second.TotPossCumDist, 1e-9)
}

func TestLineupMatchupsDropsEmptyPairs(t *testing.T) {
	g := annotated("g1",
		play{home: homeA, away: awayA, secs: 10, homeEnd: true},
		play{home: homeB, away: awayA},
		play{},
	)
	ms := LineupMatchups(g)
	require.Len(t, ms, 1)
	assert.Equal(t, "h1,h2,h3,h4,h5", ms[0].HomeLineup)
}

func TestLineupResults(t *testing.T) {
	rs := LineupResults(sampleGame())
	require.Len(t, rs, 3)

	away := rs[0]
	assert.False(t, away.Home)
	assert.Equal(t, "a1,a2,a3,a4,a5", away.Lineup)
	assert.Equal(t, 2, away.OffPoss)
	assert.Equal(t, 2, away.DefPoss)
	assert.Equal(t, 5, away.PtsScored)
	assert.Equal(t, 2, away.PtsAllowed)
	assert.Equal(t, 2.5, away.OffPPP)
	assert.Equal(t, 1.0, away.DefPPP)
	assert.Equal(t, 75.0, away.SecElapsed)

	assert.True(t, rs[1].Home)
	assert.Equal(t, "h1,h2,h3,h4,h5", rs[1].Lineup)
	assert.Equal(t, 3, rs[1].TotalPossessions)
	assert.Equal(t, "h1,h2,h3,h4,h6", rs[2].Lineup)
	assert.InDelta(t, 1.0, rs[2].TotPossCumDist, 1e-9)
}

func TestReduce(t *testing.T) {
	vals := []float64{4, 1, 3, 2, 5}
	tests := []struct {
		agg  Aggregation
		want []float64
	}{
		{List, []float64{4, 1, 3, 2, 5}},
		{Mean, []float64{3}},
		{Median, []float64{3}},
		{Min, []float64{1}},
		{Max, []float64{5}},
		{Range, []float64{4}},
		{Std, []float64{math.Sqrt(2)}},
	}
	for _, tt := range tests {
		t.Run(tt.agg.String(), func(t *testing.T) {
			assert.InDeltaSlice(t, tt.want, Reduce(tt.agg, vals), 1e-9)
		})
	}

	assert.Equal(t, 2.5, Reduce(Median, []float64{1, 2, 3, 4})[0])
	assert.True(t, math.IsNaN(Reduce(Mean, nil)[0]))
}

func TestParseAggregation(t *testing.T) {
	for _, name := range []string{"list", "mean", "median", "min", "max", "range", "std"} {
		agg, err := ParseAggregation(name)
		require.NoError(t, err)
		assert.Equal(t, name, agg.String())
	}
	_, err := ParseAggregation("mode")
	assert.Error(t, err)
}

func TestParseAttribute(t *testing.T) {
	attr, err := ParseAttribute("Height")
	require.NoError(t, err)
	assert.Equal(t, Height, attr)
	assert.Equal(t, "salary", Salary.String())

	_, err = ParseAttribute("wingspan")
	assert.Error(t, err)
	_, err = ParseAttribute("stat")
	assert.Error(t, err, "stats need a table and column")
}

func TestStatAttribute(t *testing.T) {
	attr, err := StatAttribute("", "pts_per_poss", -2)
	require.NoError(t, err)
	assert.Equal(t, Attribute{Kind: KindStat, Table: "per_poss", Column: "pts_per_poss", SeasonsAgo: 2}, attr)
	assert.Equal(t, "per_poss.pts_per_poss@2", attr.String())

	_, err = StatAttribute("advanced", "", 1)
	assert.Error(t, err)

	p := &pbp.Player{Stats: map[string]pbp.StatTable{
		"advanced": {
			"2014-15": {"ws_per_48": 0.15},
			"2015-16": {"ws_per_48": 0.2},
		},
	}}
	prior, err := StatAttribute("advanced", "ws_per_48", 1)
	require.NoError(t, err)
	assert.Equal(t, 0.15, PlayerAttribute(p, prior, "2015-16"))
	same, err := StatAttribute("advanced", "ws_per_48", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.2, PlayerAttribute(p, same, "2015-16"))

	assert.True(t, math.IsNaN(PlayerAttribute(p, prior, "2014-15")), "no row two seasons back")
	assert.True(t, math.IsNaN(PlayerAttribute(nil, prior, "2015-16")))
}

func TestPlayerAttribute(t *testing.T) {
	p := &pbp.Player{
		ID:             "h1",
		HeightCM:       201,
		MassKG:         100,
		BirthDate:      time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC),
		SalaryBySeason: map[string]int64{"2015-16": 1500000},
	}

	assert.InDelta(t, 26.0, PlayerAttribute(p, Age, "2015-16"), 0.01)
	assert.Equal(t, 1500000.0, PlayerAttribute(p, Salary, "2015-16"))
	assert.Equal(t, float64(pbp.SalaryFloor), PlayerAttribute(p, Salary, "2016-17"))
	assert.Equal(t, 201.0, PlayerAttribute(p, Height, ""))
	assert.Equal(t, 100.0, PlayerAttribute(p, Mass, ""))

	assert.True(t, math.IsNaN(PlayerAttribute(nil, Age, "2015-16")))
	assert.True(t, math.IsNaN(PlayerAttribute(nil, Height, "2015-16")))
	assert.Equal(t, float64(pbp.SalaryFloor), PlayerAttribute(nil, Salary, "2015-16"))
}

func TestLineupFeature(t *testing.T) {
	players := fixtures.NewPlayers(append(
		fixtures.Roster(fixtures.HomeTeam, "h1", "h2", "h3", "h4", "h5", "h6"),
		fixtures.Roster(fixtures.AwayTeam, "a1", "a2", "a3", "a4", "a5")...,
	)...)
	b := NewFeatureBuilder(players, logger.Discard())
	g := sampleGame()

	rows, err := b.LineupFeature(context.Background(), g, Height, Mean, false)
	require.NoError(t, err)
	require.Len(t, rows, len(g.Plays))
	assert.InDeltaSlice(t, []float64{192}, rows[0].Home, 1e-9)
	assert.InDeltaSlice(t, []float64{192}, rows[0].Away, 1e-9)
	assert.InDeltaSlice(t, []float64{192.2}, rows[4].Home, 1e-9)
	assert.Equal(t, 1, players.Fetches["h1"])

	rows, err = b.LineupFeature(context.Background(), g, Height, List, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 1}, rows[4].Delta)
	assert.Empty(t, rows[4].Home)
}
