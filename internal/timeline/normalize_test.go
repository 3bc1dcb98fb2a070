package timeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/janus/internal/pbp"
	fixtures "github.com/fortuna/janus/internal/testutil"
)

func TestNormalize(t *testing.T) {
	g := fixtures.NewGame("g1").
		JumpBall("a1", "h1", "h2").
		At(1, 700).Shot(pbp.Home, "h1", pbp.ShotTwo, pbp.Make).
		Touch(pbp.Away, "a1").
		At(1, 650).Touch(pbp.Away, "a2").
		At(2, 720).Touch(pbp.Home, "h3").
		At(5, 300).Touch(pbp.Home, "h4").
		At(5, 290).Touch(pbp.Away, "a3").
		Game()

	Normalize(g)

	var stamps []int
	var elapsed []float64
	for _, p := range g.Plays {
		stamps = append(stamps, p.Timestamp)
		elapsed = append(elapsed, p.SecElapsed)
	}
	assert.Equal(t, []int{1, 2, 2, 3, 4, 5, 6}, stamps)
	assert.Equal(t, []float64{0, 20, 0, 50, 0, 0, 10}, elapsed)
}

func TestNormalizeWrapsAcrossQuarters(t *testing.T) {
	g := fixtures.NewGame("g1").
		JumpBall("a1", "h1", "h2").
		At(1, 10).Touch(pbp.Home, "h1").
		At(2, 700).Touch(pbp.Home, "h1").
		Game()

	Normalize(g)

	require.Len(t, g.Plays, 3)
	assert.Equal(t, 710.0, g.Plays[1].SecElapsed)
	assert.Equal(t, 30.0, g.Plays[2].SecElapsed, "10 left in Q1 to 700 left in Q2")
}

func TestNormalizeKeepsNaN(t *testing.T) {
	g := fixtures.NewGame("g1").
		At(1, 600).Touch(pbp.Home, "h1").
		At(1, math.NaN()).Touch(pbp.Home, "h2", "h3").
		Game()

	Normalize(g)

	require.Len(t, g.Plays, 3)
	assert.True(t, math.IsNaN(g.Plays[0].SecElapsed), "no previous clock")
	assert.True(t, math.IsNaN(g.Plays[1].SecElapsed))
	assert.Equal(t, 1, g.Plays[0].Timestamp)
	assert.Equal(t, 2, g.Plays[1].Timestamp)
	assert.Equal(t, 2, g.Plays[2].Timestamp, "malformed clocks share an instant")
}

func TestTimestampsNeverDecrease(t *testing.T) {
	b := fixtures.NewGame("g1").JumpBall("a1", "h1", "h2")
	for q := 1; q <= 4; q++ {
		for sec := 700.0; sec > 0; sec -= 37 {
			b.At(q, sec).Touch(pbp.Home, "h1")
			if int(sec)%2 == 0 {
				b.Touch(pbp.Away, "a1")
			}
		}
		b.At(q, 0).EndOfQuarter()
	}
	g := b.Game()

	Normalize(g)

	for i := 1; i < len(g.Plays); i++ {
		prev, cur := g.Plays[i-1], g.Plays[i]
		require.GreaterOrEqual(t, cur.Timestamp, prev.Timestamp)
		require.LessOrEqual(t, cur.Timestamp-prev.Timestamp, 1)
		if !math.IsNaN(cur.SecElapsed) {
			require.GreaterOrEqual(t, cur.SecElapsed, 0.0)
		}
	}
}

func TestSeconds(t *testing.T) {
	g := fixtures.NewGame("g1").
		JumpBall("a1", "h1", "h2").
		At(1, 700).Touch(pbp.Home, "h1").
		At(1, 690).Touch(pbp.Home, "h1").
		At(1, math.NaN()).Touch(pbp.Home, "h1").
		Game()
	Normalize(g)

	all := Seconds(g, func(int, *pbp.Play) bool { return true })
	assert.Equal(t, 30.0, all)

	tail := Seconds(g, func(i int, _ *pbp.Play) bool { return i >= 2 })
	assert.Equal(t, 10.0, tail)
}
