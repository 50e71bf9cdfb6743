package game

import (
	"time"
)

type Role string

const (
	RoleMafia     Role = "mafia"
	RoleDoctor    Role = "doctor"
	RoleDetective Role = "detective"
	RoleVillager  Role = "villager"
)

// Roles lists every role in assignment order.
var Roles = []Role{RoleMafia, RoleDetective, RoleDoctor, RoleVillager}

func (r Role) Valid() bool {
	switch r {
	case RoleMafia, RoleDoctor, RoleDetective, RoleVillager:
		return true
	}
	return false
}

func (r Role) Alignment() Alignment {
	if r == RoleMafia {
		return AlignmentMafia
	}
	return AlignmentTown
}

// Alignment is what a Detective learns about an inspected player.
type Alignment string

const (
	AlignmentMafia Alignment = "mafia"
	AlignmentTown  Alignment = "town"
)

type Phase string

const (
	PhaseNight Phase = "night"
	PhaseDay   Phase = "day"
)

// State is the Phase Engine state.
type State string

const (
	StateNightActive    State = "NightActive"
	StateNightResolving State = "NightResolving"
	StateDayActive      State = "DayActive"
	StateDayResolving   State = "DayResolving"
	StateGameOver       State = "GameOver"
)

func (s State) Phase() Phase {
	switch s {
	case StateDayActive, StateDayResolving:
		return PhaseDay
	}
	return PhaseNight
}

func (s State) Active() bool {
	return s == StateNightActive || s == StateDayActive
}

type Winner string

const (
	WinnerTown  Winner = "town"
	WinnerMafia Winner = "mafia"
	WinnerNone  Winner = "none" // round cap reached
)

// Channel is where a turn is spoken.
type Channel string

const (
	ChannelPublic    Channel = "public"
	ChannelMafia     Channel = "mafia"
	ChannelPrivate   Channel = "private"
	ChannelGraveyard Channel = "graveyard" // dead players only
)

type Player struct {
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Alive    bool   `json:"alive"`
	Human    bool   `json:"human"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Seat is a roster entry before roles are dealt. Role may be pinned.
type Seat struct {
	Name     string `json:"name"`
	Human    bool   `json:"human"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Role     Role   `json:"role,omitempty"`
}

// RoleCounts is the role distribution for a roster.
type RoleCounts map[Role]int

func (rc RoleCounts) Total() int {
	n := 0
	for _, c := range rc {
		n += c
	}
	return n
}

// DefaultRoleCounts deals two Mafia for six or more players, one otherwise,
// plus a Detective and a Doctor once the table is big enough.
func DefaultRoleCounts(n int) RoleCounts {
	rc := RoleCounts{RoleMafia: 1}
	if n >= 6 {
		rc[RoleMafia] = 2
	}
	if n >= 4 {
		rc[RoleDetective] = 1
	}
	if n >= 5 {
		rc[RoleDoctor] = 1
	}
	rc[RoleVillager] = n - rc.Total()
	return rc
}

type Config struct {
	NightDuration time.Duration `json:"nightDuration"`
	DayDuration   time.Duration `json:"dayDuration"`
	TurnTimeout   time.Duration `json:"turnTimeout"`
	PollInterval  time.Duration `json:"pollInterval"`
	TurnsPerPhase int           `json:"turnsPerPhase"` // agent polling ticks per phase
	MaxRounds     int           `json:"maxRounds"`     // 0 means unlimited
	Seed          int64         `json:"seed"`          // 0 draws a random seed
	RecapLimit    int           `json:"recapLimit"`
	Graveyard     bool          `json:"graveyard"` // poll dead agents on the graveyard channel
}

func DefaultConfig() Config {
	return Config{
		NightDuration: 60 * time.Second,
		DayDuration:   120 * time.Second,
		TurnTimeout:   120 * time.Second,
		PollInterval:  1500 * time.Millisecond,
		TurnsPerPhase: 3,
		MaxRounds:     10,
		RecapLimit:    12,
		Graveyard:     true,
	}
}

func (c Config) validate() error {
	switch {
	case c.NightDuration <= 0:
		return &ConfigError{Field: "nightDuration", Reason: "must be positive"}
	case c.DayDuration <= 0:
		return &ConfigError{Field: "dayDuration", Reason: "must be positive"}
	case c.TurnTimeout <= 0:
		return &ConfigError{Field: "turnTimeout", Reason: "must be positive"}
	case c.PollInterval < 0:
		return &ConfigError{Field: "pollInterval", Reason: "must not be negative"}
	case c.TurnsPerPhase < 0:
		return &ConfigError{Field: "turnsPerPhase", Reason: "must not be negative"}
	case c.MaxRounds < 0:
		return &ConfigError{Field: "maxRounds", Reason: "must not be negative"}
	}
	return nil
}

// Turn is one parsed player turn: optional speech plus at most one action.
type Turn struct {
	Channel Channel    `json:"channel"`
	Speech  string     `json:"speech,omitempty"`
	Action  ActionKind `json:"action,omitempty"`
	Target  string     `json:"target,omitempty"`
	Abstain bool       `json:"abstain,omitempty"`
}

func (t Turn) Empty() bool {
	return t.Speech == "" && t.Action == ""
}

// Reply is what the Agent Gateway returns for a turn request.
type Reply struct {
	Text   string     `json:"text"`
	Action ActionKind `json:"action,omitempty"`
	Target string     `json:"target,omitempty"`
}

// HumanAction is a turn submitted by a human seat.
type HumanAction struct {
	Text   string     `json:"text"`
	Action ActionKind `json:"action,omitempty"`
	Target string     `json:"target,omitempty"`
}

// PhaseInfo describes the active phase. PrevEarlyExit reports whether the
// phase before it ended on an early-exit rule rather than its timer.
type PhaseInfo struct {
	State         State     `json:"state"`
	Phase         Phase     `json:"phase"`
	Round         int       `json:"round"`
	Night         int       `json:"night"`
	Day           int       `json:"day"`
	Generation    uint64    `json:"generation"`
	StartedAt     time.Time `json:"startedAt"`
	Deadline      time.Time `json:"deadline"`
	PrevEarlyExit bool      `json:"prevEarlyExit"`
	LastWordsFor  string    `json:"lastWordsFor,omitempty"` // lynch victim who may still speak
	Winner        Winner    `json:"winner,omitempty"`
}

// Slot is a player allowed to act in the active phase, and on which channel.
type Slot struct {
	Player  Player  `json:"player"`
	Channel Channel `json:"channel"`
}
