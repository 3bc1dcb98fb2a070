// Package roster indexes the players appearing in a game and assigns each to a team.
package roster

import (
	"sort"

	"github.com/fortuna/janus/internal/pbp"
)

// ParticipantsByQuarter returns, for quarters 1 through the last quarter played, the sorted
// set of players named in any role slot. Technical fouls and the "Team" placeholder are
// not counted as participation.
func ParticipantsByQuarter(g *pbp.Game) map[int][]string {
	sets := make(map[int]map[string]struct{})
	for q := 1; q <= g.Quarters(); q++ {
		sets[q] = make(map[string]struct{})
	}

	for _, p := range g.Plays {
		if p.FoulType == pbp.FoulTechnical {
			continue
		}
		set, ok := sets[p.Quarter]
		if !ok {
			continue
		}
		for _, id := range p.Slots() {
			if id == "" || id == pbp.TeamPlayer {
				continue
			}
			set[id] = struct{}{}
		}
	}

	out := make(map[int][]string, len(sets))
	for q, set := range sets {
		out[q] = sortedKeys(set)
	}
	return out
}

// GameParticipants returns the sorted union of all quarter participants.
func GameParticipants(g *pbp.Game) []string {
	all := make(map[string]struct{})
	for _, ids := range ParticipantsByQuarter(g) {
		for _, id := range ids {
			all[id] = struct{}{}
		}
	}
	return sortedKeys(all)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
