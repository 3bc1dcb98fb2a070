// Package analytics summarizes annotated games into lineup results and lineup features.
package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/fortuna/janus/internal/pbp"
)

// Matchup is the aggregate of every play one away lineup spent against one home lineup.
type Matchup struct {
	Season     string  `json:"season"`
	AwayLineup string  `json:"away_lineup"`
	HomeLineup string  `json:"home_lineup"`
	SecElapsed float64 `json:"sec_elapsed"`
	AwayPoss   int     `json:"away_poss"`
	HomePoss   int     `json:"home_poss"`
	AwayPts    int     `json:"away_pts"`
	HomePts    int     `json:"home_pts"`

	AwayPPP          float64 `json:"away_ppp"`
	HomePPP          float64 `json:"home_ppp"`
	TotalPossessions int     `json:"total_possessions"`

	SecElapsedCumDist float64 `json:"sec_elapsed_cum_dist"`
	TotPossCumDist    float64 `json:"tot_poss_cum_dist"`
}

func (m *Matchup) empty() bool {
	return m.SecElapsed == 0 && m.AwayPoss == 0 && m.HomePoss == 0 && m.AwayPts == 0 && m.HomePts == 0
}

type matchupKey struct {
	season, away, home string
}

// LineupMatchups groups plays by season and lineup pair, most used pairs first. Plays
// without both lineups are ignored and all-zero pairs are dropped.
func LineupMatchups(games ...*pbp.Game) []Matchup {
	index := make(map[matchupKey]int)
	var out []Matchup
	for _, g := range games {
		for _, p := range g.Plays {
			if len(p.HomeLineup) == 0 || len(p.AwayLineup) == 0 {
				continue
			}
			k := matchupKey{season: p.Season, away: p.LineupKey(pbp.Away), home: p.LineupKey(pbp.Home)}
			i, ok := index[k]
			if !ok {
				i = len(out)
				index[k] = i
				out = append(out, Matchup{Season: k.season, AwayLineup: k.away, HomeLineup: k.home})
			}
			m := &out[i]
			if !math.IsNaN(p.SecElapsed) {
				m.SecElapsed += p.SecElapsed
			}
			if p.AwayPossEnd {
				m.AwayPoss++
			}
			if p.HomePossEnd {
				m.HomePoss++
			}
			m.AwayPts += p.AwayPts
			m.HomePts += p.HomePts
		}
	}

	kept := out[:0]
	for _, m := range out {
		if m.empty() {
			continue
		}
		m.AwayPPP = ppp(m.AwayPts, m.AwayPoss)
		m.HomePPP = ppp(m.HomePts, m.HomePoss)
		m.TotalPossessions = m.AwayPoss + m.HomePoss
		kept = append(kept, m)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return byUsage(kept[i].TotalPossessions, kept[i].SecElapsed, kept[j].TotalPossessions, kept[j].SecElapsed)
	})
	secs, poss := cumulative(len(kept), func(i int) (float64, float64) {
		return kept[i].SecElapsed, float64(kept[i].TotalPossessions)
	})
	for i := range kept {
		kept[i].SecElapsedCumDist = secs[i]
		kept[i].TotPossCumDist = poss[i]
	}
	return kept
}

// LineupResult is one lineup's totals on one side of the floor.
type LineupResult struct {
	Season     string  `json:"season"`
	Lineup     string  `json:"lineup"`
	Home       bool    `json:"home"`
	SecElapsed float64 `json:"sec_elapsed"`
	OffPoss    int     `json:"off_poss"`
	DefPoss    int     `json:"def_poss"`
	PtsScored  int     `json:"pts_scored"`
	PtsAllowed int     `json:"pts_allowed"`

	OffPPP           float64 `json:"off_ppp"`
	DefPPP           float64 `json:"def_ppp"`
	TotalPossessions int     `json:"total_possessions"`

	SecElapsedCumDist float64 `json:"sec_elapsed_cum_dist"`
	TotPossCumDist    float64 `json:"tot_poss_cum_dist"`
}

type lineupKey struct {
	season, lineup string
	home           bool
}

// LineupResults rolls matchups up per lineup. A lineup that played both home and away
// games has one row per side.
func LineupResults(games ...*pbp.Game) []LineupResult {
	matchups := LineupMatchups(games...)

	index := make(map[lineupKey]int)
	var out []LineupResult
	add := func(k lineupKey, m Matchup) {
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, LineupResult{Season: k.season, Lineup: k.lineup, Home: k.home})
		}
		r := &out[i]
		r.SecElapsed += m.SecElapsed
		if k.home {
			r.OffPoss += m.HomePoss
			r.DefPoss += m.AwayPoss
			r.PtsScored += m.HomePts
			r.PtsAllowed += m.AwayPts
		} else {
			r.OffPoss += m.AwayPoss
			r.DefPoss += m.HomePoss
			r.PtsScored += m.AwayPts
			r.PtsAllowed += m.HomePts
		}
	}
	for _, m := range matchups {
		add(lineupKey{season: m.Season, lineup: m.AwayLineup}, m)
	}
	for _, m := range matchups {
		add(lineupKey{season: m.Season, lineup: m.HomeLineup, home: true}, m)
	}

	for i := range out {
		r := &out[i]
		r.OffPPP = ppp(r.PtsScored, r.OffPoss)
		r.DefPPP = ppp(r.PtsAllowed, r.DefPoss)
		r.TotalPossessions = r.OffPoss + r.DefPoss
	}
	sort.SliceStable(out, func(i, j int) bool {
		return byUsage(out[i].TotalPossessions, out[i].SecElapsed, out[j].TotalPossessions, out[j].SecElapsed)
	})
	secs, poss := cumulative(len(out), func(i int) (float64, float64) {
		return out[i].SecElapsed, float64(out[i].TotalPossessions)
	})
	for i := range out {
		out[i].SecElapsedCumDist = secs[i]
		out[i].TotPossCumDist = poss[i]
	}
	return out
}

func byUsage(possA int, secA float64, possB int, secB float64) bool {
	if possA != possB {
		return possA > possB
	}
	return secA > secB
}

// ppp is NaN when the side had no possessions.
func ppp(pts, poss int) float64 {
	if poss == 0 {
		return math.NaN()
	}
	return float64(pts) / float64(poss)
}

// cumulative returns the running share of the total for both series.
func cumulative(n int, at func(i int) (float64, float64)) ([]float64, []float64) {
	secs := make([]float64, n)
	poss := make([]float64, n)
	for i := 0; i < n; i++ {
		secs[i], poss[i] = at(i)
	}
	return share(secs), share(poss)
}

func share(s []float64) []float64 {
	out := make([]float64, len(s))
	if len(s) == 0 {
		return out
	}
	floats.CumSum(out, s)
	if total := out[len(out)-1]; total != 0 {
		floats.Scale(1/total, out)
	} else {
		for i := range out {
			out[i] = math.NaN()
		}
	}
	return out
}
