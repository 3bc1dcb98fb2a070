package lineup

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/roster"
	"github.com/fortuna/janus/pkg/logger"
)

// Size is the number of players each team has on court.
const Size = 5

// Repair describes a quarter in which every play has the wrong number of players for Side.
type Repair struct {
	Game     *pbp.Game
	Presence *Presence
	Quarter  int
	Side     pbp.Side
	// Undercount is true when the team is short a player, false when it has one too many.
	Undercount bool
}

// Resolver names the single player whose presence (undercount) or absence (overcount) for
// the whole quarter explains a Repair. Any error leaves the quarter unresolved.
type Resolver interface {
	Resolve(ctx context.Context, r Repair) (string, error)
}

// Correction is a repair that was applied.
type Correction struct {
	Quarter    int      `json:"quarter"`
	Side       pbp.Side `json:"side"`
	Player     string   `json:"player"`
	Undercount bool     `json:"undercount"`
}

// Result is what reconstruction produced besides the lineups written to the plays.
type Result struct {
	Stints      []Stint
	Corrections []Correction
	// Miscounts holds the quarters still wrong after repair.
	Miscounts []pbp.MiscountRecord
}

// Valid reports whether every play ended with five players per team.
func (r *Result) Valid() bool {
	return len(r.Miscounts) == 0
}

// Reconstructor builds lineups from substitutions and repairs whole-quarter miscounts.
type Reconstructor struct {
	resolver Resolver
	log      *logrus.Entry
}

// NewReconstructor returns a Reconstructor. A nil resolver disables repair.
func NewReconstructor(resolver Resolver, log logrus.FieldLogger) *Reconstructor {
	return &Reconstructor{resolver: resolver, log: logger.WithComponent(log, "lineup")}
}

// Reconstruct fills HomeLineup and AwayLineup of every play of g. The game must be
// normalized so elapsed seconds are available for repair.
func (r *Reconstructor) Reconstruct(ctx context.Context, g *pbp.Game, a *roster.Assignment) (*Result, error) {
	log := logger.WithGame(r.log, g.ID)
	presence := NewPresence(g, a.Sides)

	for q, players := range roster.ParticipantsByQuarter(g) {
		start, end, ok := g.QuarterBounds(q)
		if !ok {
			continue
		}
		for _, id := range players {
			enters, leaves := substitutions(g, id, start, end)
			for _, s := range QuarterStints(id, a.Side(id), q, start, end, enters, leaves) {
				presence.Apply(s)
			}
		}
	}

	res := &Result{}
	for q := 1; q <= g.Quarters(); q++ {
		for _, side := range []pbp.Side{pbp.Home, pbp.Away} {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("reconstruct %s: %w", g.ID, err)
			}
			c := tally(g, presence, q, side)
			if c.miscounted == 0 {
				continue
			}
			qlog := log.WithFields(logrus.Fields{"quarter": q, "side": side.String(), "plays": c.miscounted})
			if c.miscounted < c.plays {
				qlog.Warn("lineup miscount in part of quarter, not repairable")
				continue
			}

			undercount := c.under > 0 && c.over == 0
			qlog.WithField("undercount", undercount).Info("lineup miscount for entire quarter")
			if fix, ok := r.repair(ctx, qlog, Repair{Game: g, Presence: presence, Quarter: q, Side: side, Undercount: undercount}); ok {
				res.Corrections = append(res.Corrections, fix)
			}
		}
	}

	for q := 1; q <= g.Quarters(); q++ {
		for _, side := range []pbp.Side{pbp.Home, pbp.Away} {
			c := tally(g, presence, q, side)
			if c.miscounted == 0 {
				continue
			}
			res.Miscounts = append(res.Miscounts, pbp.MiscountRecord{
				GameID:    g.ID,
				Season:    g.Season,
				Quarter:   q,
				Side:      side,
				Team:      g.Team(side),
				Magnitude: c.magnitude,
				Events:    c.miscounted,
			})
		}
	}
	if res.Valid() {
		if len(res.Corrections) > 0 {
			log.Info("lineup miscount rectified")
		}
	} else {
		log.WithField("quarters", len(res.Miscounts)).Warn("lineup miscount persists")
	}

	writeLineups(g, presence, a.Players)
	res.Stints = presence.Stints()
	return res, nil
}

func (r *Reconstructor) repair(ctx context.Context, log *logrus.Entry, req Repair) (Correction, bool) {
	if r.resolver == nil {
		return Correction{}, false
	}
	player, err := r.resolver.Resolve(ctx, req)
	if err != nil {
		log.WithError(err).Warn("miscount unresolved")
		return Correction{}, false
	}

	start, end, _ := req.Game.QuarterBounds(req.Quarter)
	req.Presence.Set(player, req.Side, start, end, req.Undercount)
	log.WithField("player_id", player).Info("miscount repaired")
	return Correction{Quarter: req.Quarter, Side: req.Side, Player: player, Undercount: req.Undercount}, true
}

// substitutions returns the positions within start..end where id enters and leaves.
func substitutions(g *pbp.Game, id string, start, end int) (enters, leaves []int) {
	for i := start; i <= end; i++ {
		p := g.Plays[i]
		if p.EnterGame == id {
			enters = append(enters, i)
		}
		if p.LeaveGame == id {
			leaves = append(leaves, i)
		}
	}
	return enters, leaves
}

type quarterCount struct {
	plays      int
	miscounted int
	under      int
	over       int
	magnitude  int
}

func tally(g *pbp.Game, presence *Presence, q int, side pbp.Side) quarterCount {
	var c quarterCount
	start, end, ok := g.QuarterBounds(q)
	if !ok {
		return c
	}
	for i := start; i <= end; i++ {
		c.plays++
		dev := presence.Count(side, i) - Size
		switch {
		case dev < 0:
			c.under++
		case dev > 0:
			c.over++
		default:
			continue
		}
		c.miscounted++
		if abs(dev) > abs(c.magnitude) {
			c.magnitude = dev
		}
	}
	return c
}

// writeLineups stores each side's on-court players, shortest and lightest first when
// biographies are known, then by id.
func writeLineups(g *pbp.Game, presence *Presence, bios map[string]*pbp.Player) {
	order := make(map[pbp.Side][]string)
	for _, side := range []pbp.Side{pbp.Home, pbp.Away} {
		ids := presence.Players(side)
		sort.SliceStable(ids, func(i, j int) bool {
			hi, mi := bodySize(bios[ids[i]])
			hj, mj := bodySize(bios[ids[j]])
			if hi != hj {
				return hi < hj
			}
			if mi != mj {
				return mi < mj
			}
			return ids[i] < ids[j]
		})
		order[side] = ids
	}

	for i, p := range g.Plays {
		p.HomeLineup = onCourt(presence, order[pbp.Home], i)
		p.AwayLineup = onCourt(presence, order[pbp.Away], i)
	}
}

func onCourt(presence *Presence, ids []string, i int) []string {
	out := make([]string, 0, Size)
	for _, id := range ids {
		if presence.OnCourt(id, i) {
			out = append(out, id)
		}
	}
	return out
}

func bodySize(p *pbp.Player) (int, int) {
	if p == nil {
		return 0, 0
	}
	return p.HeightCM, p.MassKG
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
