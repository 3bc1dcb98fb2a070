package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/roster"
	"github.com/fortuna/janus/pkg/logger"
)

// Aggregation reduces the five values of a lineup.
type Aggregation int

const (
	List Aggregation = iota
	Mean
	Median
	Min
	Max
	Range
	Std
)

var aggregationNames = []string{"list", "mean", "median", "min", "max", "range", "std"}

func (a Aggregation) String() string {
	if a < 0 || int(a) >= len(aggregationNames) {
		return fmt.Sprintf("aggregation(%d)", int(a))
	}
	return aggregationNames[a]
}

// ParseAggregation accepts the lowercase names used by String.
func ParseAggregation(s string) (Aggregation, error) {
	for i, name := range aggregationNames {
		if strings.EqualFold(s, name) {
			return Aggregation(i), nil
		}
	}
	return 0, fmt.Errorf("unknown aggregation %q", s)
}

// Reduce applies a to vals. List returns a copy; every other aggregation returns one value.
// Std is the population standard deviation.
func Reduce(a Aggregation, vals []float64) []float64 {
	if a == List {
		return append([]float64(nil), vals...)
	}
	if len(vals) == 0 {
		return []float64{math.NaN()}
	}

	var v float64
	switch a {
	case Mean:
		v = stat.Mean(vals, nil)
	case Median:
		v = median(vals)
	case Min:
		v = floats.Min(vals)
	case Max:
		v = floats.Max(vals)
	case Range:
		v = floats.Max(vals) - floats.Min(vals)
	case Std:
		_, v = stat.PopMeanStdDev(vals, nil)
	default:
		v = math.NaN()
	}
	return []float64{v}
}

// median averages the two middle values of an even-sized sample.
func median(vals []float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// AttributeKind selects where a player value comes from.
type AttributeKind int

const (
	KindAge AttributeKind = iota
	KindSalary
	KindHeight
	KindMass
	KindStat
)

var attributeNames = []string{"age", "salary", "height", "mass", "stat"}

// Attribute is a per-player value looked up for lineup features. A KindStat attribute
// reads Column of the Table row SeasonsAgo seasons before the game.
type Attribute struct {
	Kind       AttributeKind
	Table      string
	Column     string
	SeasonsAgo int
}

var (
	Age    = Attribute{Kind: KindAge}
	Salary = Attribute{Kind: KindSalary}
	Height = Attribute{Kind: KindHeight}
	Mass   = Attribute{Kind: KindMass}
)

// DefaultStatTable is read when a stat attribute names no table.
const DefaultStatTable = "per_poss"

// StatAttribute reads column of table from the season seasonsAgo before the game.
func StatAttribute(table, column string, seasonsAgo int) (Attribute, error) {
	if column == "" {
		return Attribute{}, errors.New("stat attribute needs a column")
	}
	if table == "" {
		table = DefaultStatTable
	}
	if seasonsAgo < 0 {
		seasonsAgo = -seasonsAgo
	}
	return Attribute{Kind: KindStat, Table: table, Column: column, SeasonsAgo: seasonsAgo}, nil
}

func (a Attribute) String() string {
	if a.Kind < 0 || int(a.Kind) >= len(attributeNames) {
		return fmt.Sprintf("attribute(%d)", int(a.Kind))
	}
	if a.Kind == KindStat {
		return fmt.Sprintf("%s.%s@%d", a.Table, a.Column, a.SeasonsAgo)
	}
	return attributeNames[a.Kind]
}

// ParseAttribute maps a name such as "height" to its Attribute. Stats are built with
// StatAttribute.
func ParseAttribute(s string) (Attribute, error) {
	for i, name := range attributeNames {
		if AttributeKind(i) != KindStat && strings.EqualFold(s, name) {
			return Attribute{Kind: AttributeKind(i)}, nil
		}
	}
	return Attribute{}, fmt.Errorf("unknown attribute %q", s)
}

// PlayerAttribute returns attr of p for season. Unknown values are NaN, except salary
// which falls back to the league floor.
func PlayerAttribute(p *pbp.Player, attr Attribute, season string) float64 {
	switch attr.Kind {
	case KindAge:
		age, ok := p.Age(season)
		if !ok {
			return math.NaN()
		}
		return math.Round(age*100) / 100
	case KindSalary:
		return float64(p.Salary(season))
	case KindHeight:
		if p == nil || p.HeightCM == 0 {
			return math.NaN()
		}
		return float64(p.HeightCM)
	case KindMass:
		if p == nil || p.MassKG == 0 {
			return math.NaN()
		}
		return float64(p.MassKG)
	case KindStat:
		v, ok := p.Stat(attr.Table, attr.Column, season, attr.SeasonsAgo)
		if !ok {
			return math.NaN()
		}
		return v
	default:
		return math.NaN()
	}
}

// FeatureRow holds one play's reduced lineup values. Delta is home minus away and is only
// filled when requested, in which case Home and Away are left empty.
type FeatureRow struct {
	Timestamp int       `json:"timestamp"`
	Away      []float64 `json:"away,omitempty"`
	Home      []float64 `json:"home,omitempty"`
	Delta     []float64 `json:"delta,omitempty"`
}

// FeatureBuilder computes lineup features from player attributes.
type FeatureBuilder struct {
	players roster.PlayerProvider
	log     *logrus.Entry
}

func NewFeatureBuilder(players roster.PlayerProvider, log logrus.FieldLogger) *FeatureBuilder {
	return &FeatureBuilder{players: players, log: logger.WithComponent(log, "analytics")}
}

// LineupFeature reduces attr over both lineups of every play of g. Each player is looked
// up once; lookup failures other than cancellation fall back to unknown values.
func (b *FeatureBuilder) LineupFeature(ctx context.Context, g *pbp.Game, attr Attribute, agg Aggregation, delta bool) ([]FeatureRow, error) {
	values := make(map[string]float64)
	lookup := func(id string) (float64, error) {
		if v, ok := values[id]; ok {
			return v, nil
		}
		var p *pbp.Player
		if b.players != nil {
			var err error
			p, err = b.players.FetchPlayer(ctx, id)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return 0, err
			}
			if err != nil {
				logger.WithGame(b.log, g.ID).WithError(err).WithField("player_id", id).Debug("player lookup failed")
				p = nil
			}
		}
		v := PlayerAttribute(p, attr, g.Season)
		values[id] = v
		return v, nil
	}
	side := func(lineup []string) ([]float64, error) {
		vals := make([]float64, 0, len(lineup))
		for _, id := range lineup {
			v, err := lookup(id)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		return Reduce(agg, vals), nil
	}

	rows := make([]FeatureRow, 0, len(g.Plays))
	for _, p := range g.Plays {
		away, err := side(p.AwayLineup)
		if err != nil {
			return nil, err
		}
		home, err := side(p.HomeLineup)
		if err != nil {
			return nil, err
		}
		row := FeatureRow{Timestamp: p.Timestamp}
		if delta {
			row.Delta = difference(home, away)
		} else {
			row.Away, row.Home = away, home
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func difference(home, away []float64) []float64 {
	n := len(home)
	if len(away) < n {
		n = len(away)
	}
	out := make([]float64, n)
	floats.SubTo(out, home[:n], away[:n])
	return out
}
