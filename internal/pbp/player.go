package pbp

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// SalaryFloor is used when a player has no salary recorded for a season.
const SalaryFloor int64 = 20000

var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrNoBoxScore     = errors.New("box score not found")
)

// Player is the biography and season history of one player.
type Player struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	HeightCM       int                 `json:"height_cm"`
	MassKG         int                 `json:"mass_kg"`
	BirthDate      time.Time           `json:"birth_date"`
	TeamsBySeason  map[string][]string `json:"teams_by_season"`
	SalaryBySeason map[string]int64    `json:"salary_by_season"`
	// Stats holds the season rows of the player page stat tables, keyed by table id
	// ("per_game", "per_poss", "advanced").
	Stats map[string]StatTable `json:"stats,omitempty"`
}

// StatLine maps data-stat names ("pts_per_poss", "ws_per_48") to one season's values.
type StatLine map[string]float64

// StatTable holds one line per season. A player who changed teams keeps the combined row.
type StatTable map[string]StatLine

// Stat returns column of table for the season seasonsAgo before season.
func (p *Player) Stat(table, column, season string, seasonsAgo int) (float64, bool) {
	if p == nil {
		return 0, false
	}
	if seasonsAgo < 0 {
		seasonsAgo = -seasonsAgo
	}
	target, ok := ShiftSeason(season, seasonsAgo)
	if !ok {
		return 0, false
	}
	v, ok := p.Stats[table][target][column]
	return v, ok
}

// PlayedFor reports whether the player appeared for team in season.
func (p *Player) PlayedFor(season, team string) bool {
	if p == nil {
		return false
	}
	for _, t := range p.TeamsBySeason[season] {
		if strings.EqualFold(t, team) {
			return true
		}
	}
	return false
}

// Salary returns the season salary, or SalaryFloor when unknown.
func (p *Player) Salary(season string) int64 {
	if p == nil {
		return SalaryFloor
	}
	if s, ok := p.SalaryBySeason[season]; ok && s > 0 {
		return s
	}
	return SalaryFloor
}

// Age returns the player's age in years on January 1st of the season's closing year.
// Returns false when the birth date or season is unknown.
func (p *Player) Age(season string) (float64, bool) {
	if p == nil || p.BirthDate.IsZero() {
		return 0, false
	}
	year, ok := SeasonEndYear(season)
	if !ok {
		return 0, false
	}
	ref := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return ref.Sub(p.BirthDate).Hours() / 24 / 365.2425, true
}

// SeasonEndYear returns 2016 for "2015-16" and 2000 for "1999-00".
func SeasonEndYear(season string) (int, bool) {
	if len(season) != 7 || season[4] != '-' {
		return 0, false
	}
	start, err := strconv.Atoi(season[:4])
	if err != nil {
		return 0, false
	}
	yy, err := strconv.Atoi(season[5:])
	if err != nil || (start+1)%100 != yy {
		return 0, false
	}
	return start + 1, true
}

// ShiftSeason returns the season n years earlier ("2015-16", 1 -> "2014-15").
func ShiftSeason(season string, n int) (string, bool) {
	end, ok := SeasonEndYear(season)
	if !ok {
		return "", false
	}
	return SeasonLabel(end - n), true
}

// SeasonLabel formats the season ending in endYear ("2016" -> "2015-16").
func SeasonLabel(endYear int) string {
	start := endYear - 1
	return strconv.Itoa(start) + "-" + twoDigits(endYear%100)
}

// NormalizeSeason accepts 16, "16", "2016" and "2015-16" and returns "2015-16".
func NormalizeSeason(season string) (string, bool) {
	season = strings.TrimSpace(season)
	if _, ok := SeasonEndYear(season); ok {
		return season, true
	}
	if len(season) == 2 {
		season = "20" + season
	}
	if len(season) != 4 {
		return "", false
	}
	year, err := strconv.Atoi(season)
	if err != nil {
		return "", false
	}
	return SeasonLabel(year), true
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// BoxScoreLine is one row of a team's basic box score.
type BoxScoreLine struct {
	PlayerID string  `json:"player_id"`
	Minutes  float64 `json:"minutes"`
	// Totals marks the trailing "Team Totals" row.
	Totals bool `json:"totals,omitempty"`
}

// BoxScore holds minutes played per team code.
type BoxScore struct {
	GameID string                    `json:"game_id"`
	Teams  map[string][]BoxScoreLine `json:"teams"`
}

// PlayerLines returns team's rows without the totals trailer.
func (b *BoxScore) PlayerLines(team string) []BoxScoreLine {
	if b == nil {
		return nil
	}
	lines := make([]BoxScoreLine, 0, len(b.Teams[team]))
	for _, l := range b.Teams[team] {
		if l.Totals {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}
