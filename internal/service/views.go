package service

import (
	"math"
	"time"

	"github.com/fortuna/janus/internal/analytics"
	"github.com/fortuna/janus/internal/pbp"
)

// finite returns nil for NaN and infinities so they encode as JSON null.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func finiteAll(vals []float64) []*float64 {
	if vals == nil {
		return nil
	}
	out := make([]*float64, len(vals))
	for i, v := range vals {
		out[i] = finite(v)
	}
	return out
}

// PlayView is one annotated play as served over the API
type PlayView struct {
	Row        int      `json:"row"`
	Quarter    int      `json:"quarter"`
	SecLeft    *float64 `json:"sec_left"`
	Timestamp  int      `json:"timestamp"`
	SecElapsed *float64 `json:"sec_elapsed"`
	AwayPlay   string   `json:"away_play,omitempty"`
	HomePlay   string   `json:"home_play,omitempty"`
	AwayScore  int      `json:"away_score"`
	HomeScore  int      `json:"home_score"`

	AwayLineup []string `json:"away_lineup"`
	HomeLineup []string `json:"home_lineup"`

	AwayPossEnd bool `json:"away_poss_end"`
	HomePossEnd bool `json:"home_poss_end"`
	AwayPoss    int  `json:"away_poss"`
	HomePoss    int  `json:"home_poss"`

	AwayPts                int `json:"away_pts"`
	HomePts                int `json:"home_pts"`
	Margin                 int `json:"margin"`
	FinalMargin            int `json:"final_margin"`
	ClosestRemainingMargin int `json:"closest_remaining_margin"`
}

// TimelineView is a stored game with its plays
type TimelineView struct {
	GameID   string     `json:"game_id"`
	Season   string     `json:"season"`
	Date     time.Time  `json:"date"`
	HomeTeam string     `json:"home_team"`
	AwayTeam string     `json:"away_team"`
	Plays    []PlayView `json:"plays"`
}

func timelineView(g *pbp.Game) *TimelineView {
	v := &TimelineView{
		GameID:   g.ID,
		Season:   g.Season,
		Date:     g.Date,
		HomeTeam: g.HomeTeam,
		AwayTeam: g.AwayTeam,
		Plays:    make([]PlayView, 0, len(g.Plays)),
	}
	for _, p := range g.Plays {
		v.Plays = append(v.Plays, PlayView{
			Row:                    p.Row,
			Quarter:                p.Quarter,
			SecLeft:                finite(p.SecLeft),
			Timestamp:              p.Timestamp,
			SecElapsed:             finite(p.SecElapsed),
			AwayPlay:               p.AwayPlay,
			HomePlay:               p.HomePlay,
			AwayScore:              p.AwayScore,
			HomeScore:              p.HomeScore,
			AwayLineup:             p.AwayLineup,
			HomeLineup:             p.HomeLineup,
			AwayPossEnd:            p.AwayPossEnd,
			HomePossEnd:            p.HomePossEnd,
			AwayPoss:               p.AwayPoss,
			HomePoss:               p.HomePoss,
			AwayPts:                p.AwayPts,
			HomePts:                p.HomePts,
			Margin:                 p.Margin,
			FinalMargin:            p.FinalMargin,
			ClosestRemainingMargin: p.ClosestRemainingMargin,
		})
	}
	return v
}

// MatchupView shadows the PPP fields, which are NaN without possessions.
type MatchupView struct {
	analytics.Matchup
	AwayPPP *float64 `json:"away_ppp"`
	HomePPP *float64 `json:"home_ppp"`
}

// LineupView is a stored season lineup with its per-possession rates
type LineupView struct {
	Season     string   `json:"season"`
	Lineup     string   `json:"lineup"`
	Home       bool     `json:"home"`
	SecElapsed float64  `json:"sec_elapsed"`
	OffPoss    int      `json:"off_poss"`
	DefPoss    int      `json:"def_poss"`
	PtsScored  int      `json:"pts_scored"`
	PtsAllowed int      `json:"pts_allowed"`
	OffPPP     *float64 `json:"off_ppp"`
	DefPPP     *float64 `json:"def_ppp"`
}

// FeatureView is one play's lineup feature
type FeatureView struct {
	Timestamp int        `json:"timestamp"`
	Away      []*float64 `json:"away,omitempty"`
	Home      []*float64 `json:"home,omitempty"`
	Delta     []*float64 `json:"delta,omitempty"`
}

// PlayerView is a player profile with the derived season attributes
type PlayerView struct {
	*pbp.Player
	Season string   `json:"season,omitempty"`
	Age    *float64 `json:"age,omitempty"`
	Salary *int64   `json:"salary,omitempty"`
}
