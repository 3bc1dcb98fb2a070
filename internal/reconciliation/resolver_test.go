package reconciliation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/janus/internal/cache"
	"github.com/fortuna/janus/internal/lineup"
	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/roster"
	"github.com/fortuna/janus/internal/testutil"
	"github.com/fortuna/janus/internal/timeline"
	"github.com/fortuna/janus/pkg/logger"
)

// twoQuarters builds a game whose second quarter never mentions the home players in missing.
func twoQuarters(missing ...string) *pbp.Game {
	skip := map[string]bool{}
	for _, id := range missing {
		skip[id] = true
	}
	var q2Home []string
	for _, id := range testutil.HomeStarters {
		if !skip[id] {
			q2Home = append(q2Home, id)
		}
	}

	return testutil.NewGame("g1").
		JumpBall("a1", "h1", "h2").
		At(1, 700).Touch(pbp.Home, testutil.HomeStarters...).
		At(1, 650).Touch(pbp.Away, testutil.AwayStarters...).
		At(1, 0).EndOfQuarter().
		At(2, 700).Touch(pbp.Home, q2Home...).
		At(2, 650).Touch(pbp.Away, testutil.AwayStarters...).
		At(2, 0).EndOfQuarter().
		Game()
}

func fullGameBox(gameID string, minutes float64) *pbp.BoxScore {
	line := func(ids []string) []pbp.BoxScoreLine {
		var out []pbp.BoxScoreLine
		total := 0.0
		for _, id := range ids {
			out = append(out, pbp.BoxScoreLine{PlayerID: id, Minutes: minutes})
			total += minutes
		}
		return append(out, pbp.BoxScoreLine{PlayerID: "Team Totals", Minutes: total, Totals: true})
	}
	return &pbp.BoxScore{
		GameID: gameID,
		Teams: map[string][]pbp.BoxScoreLine{
			testutil.HomeTeam: line(testutil.HomeStarters),
			testutil.AwayTeam: line(testutil.AwayStarters),
		},
	}
}

func reconstruct(t *testing.T, g *pbp.Game, resolver lineup.Resolver) *lineup.Result {
	t.Helper()
	timeline.Normalize(g)
	a := &roster.Assignment{Sides: testutil.Sides(nil, nil), Players: map[string]*pbp.Player{}}
	res, err := lineup.NewReconstructor(resolver, logger.Discard()).Reconstruct(context.Background(), g, a)
	require.NoError(t, err)
	return res
}

func TestRepairedUndercount(t *testing.T) {
	g := twoQuarters("h5")
	boxes := testutil.NewBoxScores(fullGameBox("g1", 24))
	resolver := NewResolver(boxes, logger.Discard())

	res := reconstruct(t, g, resolver)

	assert.True(t, res.Valid())
	assert.Empty(t, res.Miscounts)
	require.Len(t, res.Corrections, 1)
	assert.Equal(t, "h5", res.Corrections[0].Player)
	assert.True(t, res.Corrections[0].Undercount)

	start, end, _ := g.QuarterBounds(2)
	for i := start; i <= end; i++ {
		assert.Contains(t, g.Plays[i].HomeLineup, "h5")
		assert.Len(t, g.Plays[i].HomeLineup, lineup.Size)
	}

	m := resolver.GetMetrics()
	assert.Equal(t, 1, m.Attempts)
	assert.Equal(t, 1, m.Resolved)
}

func TestAmbiguousUndercountStaysRecorded(t *testing.T) {
	g := twoQuarters("h4", "h5")
	resolver := NewResolver(testutil.NewBoxScores(fullGameBox("g1", 24)), logger.Discard())

	res := reconstruct(t, g, resolver)

	require.Len(t, res.Miscounts, 1)
	assert.Equal(t, -2, res.Miscounts[0].Magnitude)
	assert.Equal(t, 2, res.Miscounts[0].Quarter)
	assert.Equal(t, 1, resolver.GetMetrics().Ambiguous)
}

func TestMissingBoxScoreLeavesQuarterUnresolved(t *testing.T) {
	g := twoQuarters("h5")
	resolver := NewResolver(testutil.NewBoxScores(), logger.Discard())

	res := reconstruct(t, g, resolver)

	require.Len(t, res.Miscounts, 1)
	assert.Equal(t, testutil.HomeTeam, res.Miscounts[0].Team)
	assert.Equal(t, 1, resolver.GetMetrics().FetchFailures)
}

func TestResolveOvercount(t *testing.T) {
	g := twoQuarters()
	timeline.Normalize(g)

	presence := lineup.NewPresence(g, testutil.Sides([]string{"h9"}, nil))
	for _, id := range append([]string{"h9"}, testutil.HomeStarters...) {
		presence.Set(id, pbp.Home, 0, len(g.Plays)-1, true)
	}
	box := fullGameBox("g1", 24)
	box.Teams[testutil.HomeTeam] = append([]pbp.BoxScoreLine{{PlayerID: "h9", Minutes: 12}}, box.Teams[testutil.HomeTeam]...)

	resolver := NewResolver(testutil.NewBoxScores(box), logger.Discard())
	player, err := resolver.Resolve(context.Background(), lineup.Repair{
		Game: g, Presence: presence, Quarter: 1, Side: pbp.Home, Undercount: false,
	})
	require.NoError(t, err)
	assert.Equal(t, "h9", player)
}

func TestResolveNoCandidate(t *testing.T) {
	g := twoQuarters()
	timeline.Normalize(g)
	presence := lineup.NewPresence(g, testutil.Sides(nil, nil))

	resolver := NewResolver(testutil.NewBoxScores(fullGameBox("g1", 3)), logger.Discard())
	_, err := resolver.Resolve(context.Background(), lineup.Repair{Game: g, Presence: presence, Quarter: 2, Side: pbp.Away, Undercount: true})
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestDiscrepanciesAndCandidates(t *testing.T) {
	lines := []pbp.BoxScoreLine{
		{PlayerID: "p1", Minutes: 30},
		{PlayerID: "p2", Minutes: 17.9},
		{PlayerID: "p3", Minutes: 5},
	}
	reconstructed := map[string]float64{"p1": 30, "p2": 6, "p3": 10.1}

	ds := Discrepancies(lines, func(id string) float64 { return reconstructed[id] })
	require.Len(t, ds, 3)
	assert.Equal(t, "p2", ds[0].PlayerID)
	assert.InDelta(t, 11.9, ds[0].Delta, 1e-9)
	assert.Equal(t, "p3", ds[2].PlayerID)

	assert.Equal(t, []string{"p2"}, Candidates(ds, 12, true, Tolerance))
	assert.Empty(t, Candidates(ds, 12, false, Tolerance))
	assert.Equal(t, []string{"p3"}, Candidates(ds, 5, false, Tolerance))
}

func TestCachedBoxScores(t *testing.T) {
	next := testutil.NewBoxScores(fullGameBox("g1", 24))
	provider := NewCachedBoxScores(cache.NewMemory(), next)

	for i := 0; i < 3; i++ {
		b, err := provider.FetchBoxScore(context.Background(), "g1")
		require.NoError(t, err)
		assert.Equal(t, "g1", b.GameID)
	}
	assert.Equal(t, 1, next.Fetches)

	_, err := provider.FetchBoxScore(context.Background(), "g2")
	assert.ErrorIs(t, err, pbp.ErrNoBoxScore)
}
