// Package pbpcsv reads season play-by-play CSV files into typed events.
package pbpcsv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/pkg/logger"
)

var ErrMissingColumn = errors.New("missing column")

var requiredColumns = []string{"URL", "Date", "Quarter", "SecLeft", "AwayTeam", "HomeTeam", "AwayPlay", "HomePlay"}

var dateLayouts = []string{
	"January 2 2006 3:04 PM",
	"January 2 2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 3:04 PM",
	"January 2 2006",
	"2006-01-02",
}

// SeasonFile returns the path of a season's file under dir.
func SeasonFile(dir, season string) string {
	return filepath.Join(dir, fmt.Sprintf("NBA_PBP_%s.csv", season))
}

// Loader reads season files from a data directory.
type Loader struct {
	dir string
	log *logrus.Entry
}

func NewLoader(dir string, log logrus.FieldLogger) *Loader {
	return &Loader{dir: dir, log: logger.WithComponent(log, "pbpcsv")}
}

// LoadSeason reads every game of season ("16", "2016" or "2015-16"), in file order.
func (l *Loader) LoadSeason(ctx context.Context, season string) ([]*pbp.Game, error) {
	label, ok := pbp.NormalizeSeason(season)
	if !ok {
		return nil, fmt.Errorf("invalid season %q", season)
	}

	path := SeasonFile(l.dir, label)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	events, err := Read(ctx, f, label)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	ApplyCorrections(label, events)

	games := pbp.GroupGames(events)
	l.log.WithFields(logrus.Fields{"season": label, "rows": len(events), "games": len(games)}).Info("season loaded")
	return games, nil
}

// LoadGames reads season and keeps only gameIDs. With no ids, the first game of the file is
// returned.
func (l *Loader) LoadGames(ctx context.Context, season string, gameIDs []string) ([]*pbp.Game, error) {
	games, err := l.LoadSeason(ctx, season)
	if err != nil {
		return nil, err
	}
	if len(gameIDs) == 0 {
		if len(games) == 0 {
			return nil, nil
		}
		return games[:1], nil
	}

	want := make(map[string]bool, len(gameIDs))
	for _, id := range gameIDs {
		want[id] = true
	}
	var out []*pbp.Game
	for _, g := range games {
		if want[g.ID] {
			out = append(out, g)
		}
	}
	return out, nil
}

// Read decodes rows into events. Malformed numeric cells become NaN or zero; only
// structural problems (unreadable CSV, missing columns) are errors.
func Read(ctx context.Context, r io.Reader, season string) ([]pbp.Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	var events []pbp.Event
	for row := 0; ; row++ {
		if row%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		events = append(events, parseRow(row, season, record{cols: cols, values: rec}))
	}
	return events, nil
}

type record struct {
	cols   map[string]int
	values []string
}

func (r record) get(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.values) {
		return ""
	}
	v := strings.TrimSpace(r.values[i])
	if v == "nan" || v == "NaN" {
		return ""
	}
	return v
}

// player keeps the id of a "Name - id" cell.
func (r record) player(name string) string {
	v := r.get(name)
	if i := strings.LastIndex(v, "-"); i >= 0 {
		v = v[i+1:]
	}
	return strings.TrimSpace(v)
}

func parseRow(row int, season string, r record) pbp.Event {
	e := pbp.Event{
		GameID:   r.get("URL"),
		Row:      row,
		Season:   season,
		Date:     parseDate(r.get("Date"), r.get("Time")),
		HomeTeam: r.get("HomeTeam"),
		AwayTeam: r.get("AwayTeam"),
		Quarter:  atoi(r.get("Quarter")),
		SecLeft:  atof(r.get("SecLeft")),

		AwayPlay:  r.get("AwayPlay"),
		HomePlay:  r.get("HomePlay"),
		AwayScore: atoi(r.get("AwayScore")),
		HomeScore: atoi(r.get("HomeScore")),

		ShotType:         pbp.ParseShotType(r.get("ShotType")),
		ShotOutcome:      pbp.ParseOutcome(r.get("ShotOutcome")),
		FreeThrow:        pbp.ParseFreeThrow(r.get("FreeThrowNum")),
		FreeThrowOutcome: pbp.ParseOutcome(r.get("FreeThrowOutcome")),
		ReboundType:      pbp.ParseReboundType(r.get("ReboundType")),
		TurnoverType:     r.get("TurnoverType"),
		FoulType:         pbp.FoulType(r.get("FoulType")),

		Shooter:            r.player("Shooter"),
		Assister:           r.player("Assister"),
		Blocker:            r.player("Blocker"),
		Fouler:             r.player("Fouler"),
		Fouled:             r.player("Fouled"),
		Rebounder:          r.player("Rebounder"),
		ViolationPlayer:    r.player("ViolationPlayer"),
		FreeThrowShooter:   r.player("FreeThrowShooter"),
		EnterGame:          r.player("EnterGame"),
		LeaveGame:          r.player("LeaveGame"),
		TurnoverPlayer:     r.player("TurnoverPlayer"),
		TurnoverCauser:     r.player("TurnoverCauser"),
		JumpballAwayPlayer: r.player("JumpballAwayPlayer"),
		JumpballHomePlayer: r.player("JumpballHomePlayer"),
		JumpballPoss:       r.player("JumpballPoss"),
	}
	// Coach technicals carry a coach id ("...c"); they count against the team.
	if strings.HasSuffix(e.Fouler, "c") {
		e.Fouler = pbp.TeamPlayer
	}
	if e.Fouled == "NULL" {
		e.Fouled = ""
	}
	// These fouls are written under the fouled team's column.
	if e.FoulType.SwapsDescription() {
		e.AwayPlay, e.HomePlay = e.HomePlay, e.AwayPlay
	}
	return e
}

func parseDate(date, clock string) time.Time {
	value := strings.TrimSpace(date + " " + clock)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(date)); err == nil {
			return t
		}
	}
	return time.Time{}
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return int(f)
}

func atof(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
