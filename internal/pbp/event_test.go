package pbp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGameOrdersShuffledEvents(t *testing.T) {
	nan := math.NaN()
	events := []Event{
		{GameID: "g", Row: 1, Quarter: 1, SecLeft: 720},
		{GameID: "g", Row: 2, Quarter: 1, SecLeft: 700},
		{GameID: "g", Row: 3, Quarter: 1, SecLeft: 700},
		{GameID: "g", Row: 4, Quarter: 1, SecLeft: nan},
		{GameID: "g", Row: 5, Quarter: 2, SecLeft: 720},
		{GameID: "g", Row: 6, Quarter: 2, SecLeft: nan},
		{GameID: "g", Row: 7, Quarter: 1, SecLeft: 0},
		{GameID: "g", Row: 8, Quarter: 2, SecLeft: 10},
		{GameID: "g", Row: 9, Quarter: 1, SecLeft: nan},
		{GameID: "g", Row: 10, Quarter: 5, SecLeft: 300},
	}
	want := []int{1, 2, 3, 7, 4, 9, 5, 8, 6, 10}

	for seed := int64(1); seed <= 20; seed++ {
		shuffled := append([]Event(nil), events...)
		rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		g := NewGame(shuffled)
		require.Len(t, g.Plays, len(events))
		rows := make([]int, len(g.Plays))
		for i, p := range g.Plays {
			rows[i] = p.Row
			assert.True(t, math.IsNaN(p.SecElapsed), "elapsed is filled by normalization")
		}
		assert.Equal(t, want, rows, "seed %d", seed)
		assert.Equal(t, "g", g.ID)
	}
}

func TestGroupGamesKeepsFirstAppearance(t *testing.T) {
	games := GroupGames([]Event{
		{GameID: "b", Row: 2, Quarter: 1, SecLeft: 600},
		{GameID: "a", Row: 1, Quarter: 1, SecLeft: 700},
		{GameID: "b", Row: 1, Quarter: 1, SecLeft: 700},
	})
	require.Len(t, games, 2)
	assert.Equal(t, "b", games[0].ID)
	assert.Equal(t, 1, games[0].Plays[0].Row)
	assert.Equal(t, "a", games[1].ID)
}

func TestParseFreeThrow(t *testing.T) {
	tests := []struct {
		label   string
		want    FreeThrow
		final   bool
		andOne  bool
		display string
	}{
		{"", FreeThrow{}, false, false, ""},
		{"1 of 1", FreeThrow{1, 1, true}, true, true, "1 of 1"},
		{"1 of 2", FreeThrow{1, 2, true}, false, false, "1 of 2"},
		{" 2 of 2 ", FreeThrow{2, 2, true}, true, false, "2 of 2"},
		{"3 of 3", FreeThrow{3, 3, true}, true, false, "3 of 3"},
		{"technical", FreeThrow{Attempted: true}, false, false, "other"},
		{"flagrant 2 of 2", FreeThrow{Attempted: true}, false, false, "other"},
		{"clear path 1 of 2", FreeThrow{Attempted: true}, false, false, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got := ParseFreeThrow(tt.label)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.final, got.IsFinal())
			assert.Equal(t, tt.andOne, got.IsAndOne())
			assert.Equal(t, tt.display, got.String())
			assert.Equal(t, got, ParseFreeThrow(got.String()))
		})
	}
}

func TestNormalizeSeason(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"16", "2015-16", true},
		{"2016", "2015-16", true},
		{"2015-16", "2015-16", true},
		{" 2016 ", "2015-16", true},
		{"2000", "1999-00", true},
		{"1999-00", "1999-00", true},
		{"09", "2008-09", true},
		{"2015-17", "", false},
		{"2015/16", "", false},
		{"abcd", "", false},
		{"201", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeSeason(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeasonArithmetic(t *testing.T) {
	end, ok := SeasonEndYear("1999-00")
	require.True(t, ok)
	assert.Equal(t, 2000, end)

	prev, ok := ShiftSeason("2000-01", 1)
	require.True(t, ok)
	assert.Equal(t, "1999-00", prev)

	prev, ok = ShiftSeason("2015-16", 3)
	require.True(t, ok)
	assert.Equal(t, "2012-13", prev)

	_, ok = ShiftSeason("2015", 1)
	assert.False(t, ok)
}
