package pbp

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TeamPlayer is the placeholder role value used for team-level events
// (team rebounds, coach and bench technicals).
const TeamPlayer = "Team"

const (
	RegulationQuarters = 4
	RegulationSeconds  = 720
	OvertimeSeconds    = 300
)

// PeriodSeconds returns the length of a quarter in seconds (5+ is overtime).
func PeriodSeconds(quarter int) float64 {
	if quarter > RegulationQuarters {
		return OvertimeSeconds
	}
	return RegulationSeconds
}

// PeriodMinutes returns the length of a quarter in minutes.
func PeriodMinutes(quarter int) float64 {
	return PeriodSeconds(quarter) / 60
}

// Side identifies which team an event or player belongs to.
type Side int

const (
	NoSide Side = iota
	Home
	Away
)

func (s Side) String() string {
	switch s {
	case Home:
		return "home"
	case Away:
		return "away"
	default:
		return "none"
	}
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "home":
		*s = Home
	case "away":
		*s = Away
	default:
		*s = NoSide
	}
	return nil
}

// Opponent returns the other team. NoSide has no opponent.
func (s Side) Opponent() Side {
	switch s {
	case Home:
		return Away
	case Away:
		return Home
	default:
		return NoSide
	}
}

// ShotType is the field goal value decided at ingestion.
type ShotType int

const (
	ShotNone ShotType = iota
	ShotTwo
	ShotThree
)

// ParseShotType maps free-text shot descriptions ("2-pt jump shot", "3-pt layup") to a ShotType.
func ParseShotType(s string) ShotType {
	switch {
	case strings.Contains(s, "3"):
		return ShotThree
	case strings.Contains(s, "2"):
		return ShotTwo
	default:
		return ShotNone
	}
}

// Points returns the value of a made field goal of this type.
func (t ShotType) Points() int {
	switch t {
	case ShotTwo:
		return 2
	case ShotThree:
		return 3
	default:
		return 0
	}
}

// Outcome is the result of a field goal or free throw attempt.
type Outcome int

const (
	OutcomeNone Outcome = iota
	Make
	Miss
)

func ParseOutcome(s string) Outcome {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "make":
		return Make
	case "miss":
		return Miss
	default:
		return OutcomeNone
	}
}

// FreeThrow is the position of a free throw within its trip ("2 of 3" -> Num 2, Of 3).
// Attempted is set for every free throw row, including labels without a position
// such as "technical".
type FreeThrow struct {
	Num       int
	Of        int
	Attempted bool
}

var freeThrowLabel = regexp.MustCompile(`^(\d+) of (\d+)$`)

// ParseFreeThrow decodes a "k of n" label.
func ParseFreeThrow(label string) FreeThrow {
	label = strings.TrimSpace(label)
	if label == "" {
		return FreeThrow{}
	}
	ft := FreeThrow{Attempted: true}
	if m := freeThrowLabel.FindStringSubmatch(label); m != nil {
		ft.Num, _ = strconv.Atoi(m[1])
		ft.Of, _ = strconv.Atoi(m[2])
	}
	return ft
}

// IsFinal reports whether this is the last attempt of a one, two or three shot trip.
func (f FreeThrow) IsFinal() bool {
	return f.Attempted && f.Num == f.Of && f.Of >= 1 && f.Of <= 3
}

// IsAndOne reports whether this is a lone "1 of 1" attempt.
func (f FreeThrow) IsAndOne() bool {
	return f.Attempted && f.Num == 1 && f.Of == 1
}

func (f FreeThrow) String() string {
	if !f.Attempted {
		return ""
	}
	if f.Of == 0 {
		return "other"
	}
	return strconv.Itoa(f.Num) + " of " + strconv.Itoa(f.Of)
}

// ReboundType distinguishes offensive from defensive rebounds.
type ReboundType int

const (
	ReboundNone ReboundType = iota
	ReboundOffensive
	ReboundDefensive
)

func ParseReboundType(s string) ReboundType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "offensive":
		return ReboundOffensive
	case "defensive":
		return ReboundDefensive
	default:
		return ReboundNone
	}
}

// FoulType is the foul label as recorded.
type FoulType string

const (
	FoulLooseBall FoulType = "loose ball"
	FoulOffensive FoulType = "offensive"
	FoulTechnical FoulType = "technical"
)

// SwapsDescription reports whether the play text of this foul is recorded under the
// fouled team rather than the fouling team.
func (f FoulType) SwapsDescription() bool {
	return f == FoulLooseBall || f == FoulOffensive || f == FoulTechnical
}

// Event is one row of raw play-by-play.
type Event struct {
	GameID   string
	Row      int
	Season   string
	Date     time.Time
	HomeTeam string
	AwayTeam string

	Quarter int
	// SecLeft is NaN when the clock could not be parsed.
	SecLeft float64

	AwayPlay  string
	HomePlay  string
	AwayScore int
	HomeScore int

	ShotType         ShotType
	ShotOutcome      Outcome
	FreeThrow        FreeThrow
	FreeThrowOutcome Outcome
	ReboundType      ReboundType
	TurnoverType     string
	FoulType         FoulType

	Shooter            string
	Assister           string
	Blocker            string
	Fouler             string
	Fouled             string
	Rebounder          string
	ViolationPlayer    string
	FreeThrowShooter   string
	EnterGame          string
	LeaveGame          string
	TurnoverPlayer     string
	TurnoverCauser     string
	JumpballAwayPlayer string
	JumpballHomePlayer string
	JumpballPoss       string
}

// Side returns the team whose description column carries the event.
func (e *Event) Side() Side {
	switch {
	case e.HomePlay != "":
		return Home
	case e.AwayPlay != "":
		return Away
	default:
		return NoSide
	}
}

// Slots returns every role slot value of the event, empty ones included.
func (e *Event) Slots() []string {
	return []string{
		e.Shooter, e.Assister, e.Blocker, e.Fouler, e.Fouled, e.Rebounder,
		e.TurnoverPlayer, e.TurnoverCauser, e.ViolationPlayer, e.FreeThrowShooter,
		e.EnterGame, e.LeaveGame, e.JumpballAwayPlayer, e.JumpballHomePlayer, e.JumpballPoss,
	}
}

func (e *Event) IsSubstitution() bool {
	return e.EnterGame != "" || e.LeaveGame != ""
}

func (e *Event) IsJumpBall() bool {
	return e.JumpballAwayPlayer != ""
}

func (e *Event) IsTurnover() bool {
	return e.TurnoverType != ""
}

// IsMake reports a made field goal or free throw.
func (e *Event) IsMake() bool {
	return e.ShotOutcome == Make || e.FreeThrowOutcome == Make
}

func (e *Event) IsFieldGoal() bool {
	return e.ShotType == ShotTwo || e.ShotType == ShotThree
}

// IsEndOfQuarter matches "End of 2nd quarter" / "End of 1st overtime" rows but not "End of Game".
func (e *Event) IsEndOfQuarter() bool {
	return strings.Contains(e.AwayPlay, "End of") && !strings.Contains(e.AwayPlay, "Game")
}

// IsPeriodStart reports whether the clock reads the full length of the event's quarter.
func (e *Event) IsPeriodStart() bool {
	return e.SecLeft == PeriodSeconds(e.Quarter)
}

// HasClock reports whether the clock value parsed.
func (e *Event) HasClock() bool {
	return !math.IsNaN(e.SecLeft)
}
