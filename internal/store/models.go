package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"

	"github.com/fortuna/janus/internal/pbp"
)

// Game is one processed timeline header
type Game struct {
	GameID      string       `json:"game_id" db:"game_id"`
	Season      string       `json:"season" db:"season"`
	GameDate    sql.NullTime `json:"game_date,omitempty" db:"game_date"`
	HomeTeam    string       `json:"home_team" db:"home_team"`
	AwayTeam    string       `json:"away_team" db:"away_team"`
	HomeScore   int          `json:"home_score" db:"home_score"`
	AwayScore   int          `json:"away_score" db:"away_score"`
	HomePoss    int          `json:"home_poss" db:"home_poss"`
	AwayPoss    int          `json:"away_poss" db:"away_poss"`
	FinalMargin int          `json:"final_margin" db:"final_margin"`
	HasLineups  bool         `json:"has_lineups" db:"has_lineups"`
	Excluded    bool         `json:"excluded" db:"excluded"`
	ProcessedAt time.Time    `json:"processed_at" db:"processed_at"`
}

// Play is one annotated timeline row
type Play struct {
	GameID                 string          `db:"game_id"`
	Position               int             `db:"position"`
	SourceRow              int             `db:"source_row"`
	Quarter                int             `db:"quarter"`
	SecLeft                sql.NullFloat64 `db:"sec_left"`
	Timestamp              int             `db:"timestamp"`
	SecElapsed             sql.NullFloat64 `db:"sec_elapsed"`
	AwayPlay               string          `db:"away_play"`
	HomePlay               string          `db:"home_play"`
	AwayScore              int             `db:"away_score"`
	HomeScore              int             `db:"home_score"`
	AwayLineup             pq.StringArray  `db:"away_lineup"`
	HomeLineup             pq.StringArray  `db:"home_lineup"`
	AwayPossEnd            bool            `db:"away_poss_end"`
	HomePossEnd            bool            `db:"home_poss_end"`
	AwayPoss               int             `db:"away_poss"`
	HomePoss               int             `db:"home_poss"`
	AwayPts                int             `db:"away_pts"`
	HomePts                int             `db:"home_pts"`
	Margin                 int             `db:"margin"`
	FinalMargin            int             `db:"final_margin"`
	ClosestRemainingMargin int             `db:"closest_remaining_margin"`
	// Event holds the typed event fields and role slots as a JSON document.
	Event []byte `db:"event"`
}

// playEvent is the stored form of the pbp.Event fields without a column of their own.
type playEvent struct {
	ShotType         pbp.ShotType    `json:"shot_type,omitempty"`
	ShotOutcome      pbp.Outcome     `json:"shot_outcome,omitempty"`
	FreeThrow        string          `json:"free_throw,omitempty"`
	FreeThrowOutcome pbp.Outcome     `json:"free_throw_outcome,omitempty"`
	ReboundType      pbp.ReboundType `json:"rebound_type,omitempty"`
	TurnoverType     string          `json:"turnover_type,omitempty"`
	FoulType         pbp.FoulType    `json:"foul_type,omitempty"`

	Shooter            string `json:"shooter,omitempty"`
	Assister           string `json:"assister,omitempty"`
	Blocker            string `json:"blocker,omitempty"`
	Fouler             string `json:"fouler,omitempty"`
	Fouled             string `json:"fouled,omitempty"`
	Rebounder          string `json:"rebounder,omitempty"`
	ViolationPlayer    string `json:"violation_player,omitempty"`
	FreeThrowShooter   string `json:"free_throw_shooter,omitempty"`
	EnterGame          string `json:"enter_game,omitempty"`
	LeaveGame          string `json:"leave_game,omitempty"`
	TurnoverPlayer     string `json:"turnover_player,omitempty"`
	TurnoverCauser     string `json:"turnover_causer,omitempty"`
	JumpballAwayPlayer string `json:"jumpball_away_player,omitempty"`
	JumpballHomePlayer string `json:"jumpball_home_player,omitempty"`
	JumpballPoss       string `json:"jumpball_poss,omitempty"`
}

func encodeEvent(e *pbp.Event) ([]byte, error) {
	return json.Marshal(playEvent{
		ShotType:           e.ShotType,
		ShotOutcome:        e.ShotOutcome,
		FreeThrow:          e.FreeThrow.String(),
		FreeThrowOutcome:   e.FreeThrowOutcome,
		ReboundType:        e.ReboundType,
		TurnoverType:       e.TurnoverType,
		FoulType:           e.FoulType,
		Shooter:            e.Shooter,
		Assister:           e.Assister,
		Blocker:            e.Blocker,
		Fouler:             e.Fouler,
		Fouled:             e.Fouled,
		Rebounder:          e.Rebounder,
		ViolationPlayer:    e.ViolationPlayer,
		FreeThrowShooter:   e.FreeThrowShooter,
		EnterGame:          e.EnterGame,
		LeaveGame:          e.LeaveGame,
		TurnoverPlayer:     e.TurnoverPlayer,
		TurnoverCauser:     e.TurnoverCauser,
		JumpballAwayPlayer: e.JumpballAwayPlayer,
		JumpballHomePlayer: e.JumpballHomePlayer,
		JumpballPoss:       e.JumpballPoss,
	})
}

// decodeEvent fills the document fields of e. Rows written before the column existed
// carry an empty document.
func decodeEvent(doc []byte, e *pbp.Event) error {
	if len(doc) == 0 {
		return nil
	}
	var d playEvent
	if err := json.Unmarshal(doc, &d); err != nil {
		return err
	}
	e.ShotType = d.ShotType
	e.ShotOutcome = d.ShotOutcome
	e.FreeThrow = pbp.ParseFreeThrow(d.FreeThrow)
	e.FreeThrowOutcome = d.FreeThrowOutcome
	e.ReboundType = d.ReboundType
	e.TurnoverType = d.TurnoverType
	e.FoulType = d.FoulType
	e.Shooter = d.Shooter
	e.Assister = d.Assister
	e.Blocker = d.Blocker
	e.Fouler = d.Fouler
	e.Fouled = d.Fouled
	e.Rebounder = d.Rebounder
	e.ViolationPlayer = d.ViolationPlayer
	e.FreeThrowShooter = d.FreeThrowShooter
	e.EnterGame = d.EnterGame
	e.LeaveGame = d.LeaveGame
	e.TurnoverPlayer = d.TurnoverPlayer
	e.TurnoverCauser = d.TurnoverCauser
	e.JumpballAwayPlayer = d.JumpballAwayPlayer
	e.JumpballHomePlayer = d.JumpballHomePlayer
	e.JumpballPoss = d.JumpballPoss
	return nil
}

// Miscount is a persisted unresolved quarter
type Miscount struct {
	GameID     string    `json:"game_id" db:"game_id"`
	Season     string    `json:"season" db:"season"`
	Quarter    int       `json:"quarter" db:"quarter"`
	Side       string    `json:"side" db:"side"`
	Team       string    `json:"team" db:"team"`
	Magnitude  int       `json:"magnitude" db:"magnitude"`
	Events     int       `json:"events" db:"events"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// Player is a cached player profile
type Player struct {
	PlayerID       string       `db:"player_id"`
	Name           string       `db:"name"`
	HeightCM       int          `db:"height_cm"`
	MassKG         int          `db:"mass_kg"`
	BirthDate      sql.NullTime `db:"birth_date"`
	TeamsBySeason  []byte       `db:"teams_by_season"`
	SalaryBySeason []byte       `db:"salary_by_season"`
	Stats          []byte       `db:"stats"`
	FetchedAt      time.Time    `db:"fetched_at"`
}

// LineupResult is a season total for one lineup on one side
type LineupResult struct {
	Season     string  `json:"season" db:"season"`
	Lineup     string  `json:"lineup" db:"lineup"`
	Home       bool    `json:"home" db:"home"`
	SecElapsed float64 `json:"sec_elapsed" db:"sec_elapsed"`
	OffPoss    int     `json:"off_poss" db:"off_poss"`
	DefPoss    int     `json:"def_poss" db:"def_poss"`
	PtsScored  int     `json:"pts_scored" db:"pts_scored"`
	PtsAllowed int     `json:"pts_allowed" db:"pts_allowed"`
}

// GameFromTimeline builds the header row of g.
func GameFromTimeline(g *pbp.Game, excluded bool) *Game {
	row := &Game{
		GameID:   g.ID,
		Season:   g.Season,
		GameDate: sql.NullTime{Time: g.Date, Valid: !g.Date.IsZero()},
		HomeTeam: g.HomeTeam,
		AwayTeam: g.AwayTeam,
		Excluded: excluded,
	}
	if n := len(g.Plays); n > 0 {
		last := g.Plays[n-1]
		row.HomeScore = last.HomeScore
		row.AwayScore = last.AwayScore
		row.HomePoss = last.HomePoss
		row.AwayPoss = last.AwayPoss
		row.FinalMargin = last.FinalMargin
		row.HasLineups = len(last.HomeLineup) > 0
	}
	return row
}

// PlaysFromTimeline converts the plays of g in timeline order.
func PlaysFromTimeline(g *pbp.Game) ([]*Play, error) {
	rows := make([]*Play, 0, len(g.Plays))
	for i, p := range g.Plays {
		doc, err := encodeEvent(&p.Event)
		if err != nil {
			return nil, fmt.Errorf("encode play %d: %w", i, err)
		}
		rows = append(rows, &Play{
			GameID:                 g.ID,
			Position:               i,
			SourceRow:              p.Row,
			Quarter:                p.Quarter,
			SecLeft:                nullFloat(p.SecLeft),
			Timestamp:              p.Timestamp,
			SecElapsed:             nullFloat(p.SecElapsed),
			AwayPlay:               p.AwayPlay,
			HomePlay:               p.HomePlay,
			AwayScore:              p.AwayScore,
			HomeScore:              p.HomeScore,
			AwayLineup:             pq.StringArray(nonNil(p.AwayLineup)),
			HomeLineup:             pq.StringArray(nonNil(p.HomeLineup)),
			AwayPossEnd:            p.AwayPossEnd,
			HomePossEnd:            p.HomePossEnd,
			AwayPoss:               p.AwayPoss,
			HomePoss:               p.HomePoss,
			AwayPts:                p.AwayPts,
			HomePts:                p.HomePts,
			Margin:                 p.Margin,
			FinalMargin:            p.FinalMargin,
			ClosestRemainingMargin: p.ClosestRemainingMargin,
			Event:                  doc,
		})
	}
	return rows, nil
}

// ToTimeline rebuilds an annotated game from stored rows, events included, so the result
// can be processed again.
func ToTimeline(game *Game, plays []*Play) (*pbp.Game, error) {
	g := &pbp.Game{
		ID:       game.GameID,
		Season:   game.Season,
		HomeTeam: game.HomeTeam,
		AwayTeam: game.AwayTeam,
		Plays:    make([]*pbp.Play, 0, len(plays)),
	}
	if game.GameDate.Valid {
		g.Date = game.GameDate.Time
	}
	for _, r := range plays {
		play := &pbp.Play{
			Event: pbp.Event{
				GameID:    g.ID,
				Row:       r.SourceRow,
				Season:    g.Season,
				Date:      g.Date,
				HomeTeam:  g.HomeTeam,
				AwayTeam:  g.AwayTeam,
				Quarter:   r.Quarter,
				SecLeft:   floatOrNaN(r.SecLeft),
				AwayPlay:  r.AwayPlay,
				HomePlay:  r.HomePlay,
				AwayScore: r.AwayScore,
				HomeScore: r.HomeScore,
			},
			Timestamp:              r.Timestamp,
			SecElapsed:             floatOrNaN(r.SecElapsed),
			AwayLineup:             []string(r.AwayLineup),
			HomeLineup:             []string(r.HomeLineup),
			AwayPossEnd:            r.AwayPossEnd,
			HomePossEnd:            r.HomePossEnd,
			AwayPoss:               r.AwayPoss,
			HomePoss:               r.HomePoss,
			AwayPts:                r.AwayPts,
			HomePts:                r.HomePts,
			Margin:                 r.Margin,
			FinalMargin:            r.FinalMargin,
			ClosestRemainingMargin: r.ClosestRemainingMargin,
		}
		if err := decodeEvent(r.Event, &play.Event); err != nil {
			return nil, fmt.Errorf("decode play %d of %s: %w", r.Position, game.GameID, err)
		}
		g.Plays = append(g.Plays, play)
	}
	return g, nil
}

func MiscountFromRecord(rec pbp.MiscountRecord) *Miscount {
	return &Miscount{
		GameID:    rec.GameID,
		Season:    rec.Season,
		Quarter:   rec.Quarter,
		Side:      rec.Side.String(),
		Team:      rec.Team,
		Magnitude: rec.Magnitude,
		Events:    rec.Events,
	}
}

func (m *Miscount) Record() pbp.MiscountRecord {
	var side pbp.Side
	_ = side.UnmarshalText([]byte(m.Side))
	return pbp.MiscountRecord{
		GameID:    m.GameID,
		Season:    m.Season,
		Quarter:   m.Quarter,
		Side:      side,
		Team:      m.Team,
		Magnitude: m.Magnitude,
		Events:    m.Events,
	}
}

// PlayerFromProfile encodes the season maps as JSON documents.
func PlayerFromProfile(p *pbp.Player) (*Player, error) {
	teams, err := json.Marshal(nonNilMap(p.TeamsBySeason))
	if err != nil {
		return nil, fmt.Errorf("encode teams: %w", err)
	}
	salaries, err := json.Marshal(nonNilMap(p.SalaryBySeason))
	if err != nil {
		return nil, fmt.Errorf("encode salaries: %w", err)
	}
	stats, err := json.Marshal(nonNilMap(p.Stats))
	if err != nil {
		return nil, fmt.Errorf("encode stats: %w", err)
	}
	return &Player{
		PlayerID:       p.ID,
		Name:           p.Name,
		HeightCM:       p.HeightCM,
		MassKG:         p.MassKG,
		BirthDate:      sql.NullTime{Time: p.BirthDate, Valid: !p.BirthDate.IsZero()},
		TeamsBySeason:  teams,
		SalaryBySeason: salaries,
		Stats:          stats,
	}, nil
}

func (r *Player) Profile() (*pbp.Player, error) {
	p := &pbp.Player{
		ID:       r.PlayerID,
		Name:     r.Name,
		HeightCM: r.HeightCM,
		MassKG:   r.MassKG,
	}
	if r.BirthDate.Valid {
		p.BirthDate = r.BirthDate.Time
	}
	if len(r.TeamsBySeason) > 0 {
		if err := json.Unmarshal(r.TeamsBySeason, &p.TeamsBySeason); err != nil {
			return nil, fmt.Errorf("decode teams of %s: %w", r.PlayerID, err)
		}
	}
	if len(r.SalaryBySeason) > 0 {
		if err := json.Unmarshal(r.SalaryBySeason, &p.SalaryBySeason); err != nil {
			return nil, fmt.Errorf("decode salaries of %s: %w", r.PlayerID, err)
		}
	}
	if len(r.Stats) > 0 {
		if err := json.Unmarshal(r.Stats, &p.Stats); err != nil {
			return nil, fmt.Errorf("decode stats of %s: %w", r.PlayerID, err)
		}
		if len(p.Stats) == 0 {
			p.Stats = nil
		}
	}
	return p, nil
}

func nullFloat(f float64) sql.NullFloat64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func floatOrNaN(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}
