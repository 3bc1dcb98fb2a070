package pbpcsv

import "github.com/fortuna/janus/internal/pbp"

// rowCorrection overwrites a misrecorded substitution, addressed by data row.
type rowCorrection struct {
	row       int
	awayPlay  string
	enterGame string
	leaveGame string
}

// Substitutions cross-checked against another play-by-play source.
var corrections = map[string][]rowCorrection{
	"2015-16": {
		{row: 53066, awayPlay: "L. Thomas enters the game for J. Calderón", enterGame: "thomala01", leaveGame: "caldejo01"},
	},
}

// ApplyCorrections patches known bad rows of season in place.
func ApplyCorrections(season string, events []pbp.Event) int {
	fixes := corrections[season]
	if len(fixes) == 0 {
		return 0
	}
	byRow := make(map[int]rowCorrection, len(fixes))
	for _, c := range fixes {
		byRow[c.row] = c
	}

	applied := 0
	for i := range events {
		c, ok := byRow[events[i].Row]
		if !ok {
			continue
		}
		events[i].AwayPlay = c.awayPlay
		events[i].EnterGame = c.enterGame
		events[i].LeaveGame = c.leaveGame
		applied++
	}
	return applied
}
