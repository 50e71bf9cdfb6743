package game

import (
	"time"
)

type EventKind string

const (
	EventSpeech     EventKind = "speech"
	EventAction     EventKind = "action" // private night action
	EventVote       EventKind = "vote"
	EventPhase      EventKind = "phase"
	EventDeath      EventKind = "death"
	EventInspection EventKind = "inspection"
	EventNoResponse EventKind = "no_response"
	EventGameEnd    EventKind = "game_end"
	EventLastWords  EventKind = "last_words"
)

type ActionKind string

const (
	ActionKill    ActionKind = "KILL"
	ActionProtect ActionKind = "PROTECT"
	ActionInspect ActionKind = "INSPECT"
	ActionVote    ActionKind = "VOTE"
)

// Visibility scopes who may read an event.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityMafia     Visibility = "mafia"
	VisibilityActor     Visibility = "actor"
	VisibilityGraveyard Visibility = "graveyard"
)

// Draft is an event before the timeline commits it.
type Draft struct {
	Generation uint64     `json:"generation"`
	Phase      Phase      `json:"phase"`
	Round      int        `json:"round"`
	Kind       EventKind  `json:"kind"`
	Visibility Visibility `json:"visibility"`
	Actor      string     `json:"actor,omitempty"`
	Target     string     `json:"target,omitempty"`
	Action     ActionKind `json:"action,omitempty"`
	Abstain    bool       `json:"abstain,omitempty"`
	Text       string     `json:"text,omitempty"`
	Role       Role       `json:"role,omitempty"`
	Alignment  Alignment  `json:"alignment,omitempty"`
	State      State      `json:"state,omitempty"`
	Winner     Winner     `json:"winner,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// Event is a committed, immutable timeline entry.
type Event struct {
	Seq uint64    `json:"seq"`
	ID  string    `json:"id"`
	At  time.Time `json:"at"`
	Draft
}

// Visible reports whether viewer may read e. A nil viewer is a spectator.
func (e Event) Visible(viewer *Player) bool {
	switch e.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityMafia:
		return viewer != nil && viewer.Role == RoleMafia
	case VisibilityActor:
		return viewer != nil && viewer.Name == e.Actor
	case VisibilityGraveyard:
		return viewer != nil && !viewer.Alive
	default:
		return false
	}
}
