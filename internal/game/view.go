package game

import (
	"fmt"
	"strings"
	"time"
)

// Everything that leaves the engine goes through the functions in this file.
// They are the only read paths, and each is scoped to one viewer.

type PlayerView struct {
	Name  string `json:"name"`
	Alive bool   `json:"alive"`
	Human bool   `json:"human"`
	Role  Role   `json:"role,omitempty"`
}

// View is the state of a session as one viewer is allowed to see it.
type View struct {
	Code string `json:"sessionCode"`
	PhaseInfo
	You     *PlayerView       `json:"you,omitempty"`
	Players []PlayerView      `json:"players"`
	Events  []Event           `json:"events"`
	Private []Event           `json:"private,omitempty"`
	Votes   map[string]string `json:"votes,omitempty"`
}

// TurnRequest is the context handed to the Agent Gateway for one turn. It is
// built from the requesting player's view only.
type TurnRequest struct {
	Session   string               `json:"session"`
	Player    Player               `json:"player"`
	Channel   Channel              `json:"channel"`
	Phase     Phase                `json:"phase"`
	Night     int                  `json:"night"`
	Day       int                  `json:"day"`
	Deadline  time.Time            `json:"deadline"`
	Alive     []string             `json:"alive"`
	Dead      []PlayerView         `json:"dead"`
	Teammates []string             `json:"teammates,omitempty"`
	Known     map[string]Alignment `json:"known,omitempty"`
	Votes     map[string]string    `json:"votes,omitempty"`
	Recap     []string             `json:"recap"`
	Human     string               `json:"human,omitempty"`
	HumanLast string               `json:"humanLast,omitempty"` // the human's latest public line
	LastWords bool                 `json:"lastWords,omitempty"` // the player was just lynched
}

func visible(events []Event, viewer *Player) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Visible(viewer) {
			out = append(out, e)
		}
	}
	return out
}

func playerViews(players []Player, viewer *Player, over bool) []PlayerView {
	out := make([]PlayerView, 0, len(players))
	for _, p := range players {
		out = append(out, playerView(p, viewer, over))
	}
	return out
}

func playerView(p Player, viewer *Player, over bool) PlayerView {
	v := PlayerView{Name: p.Name, Alive: p.Alive, Human: p.Human}
	switch {
	case over, !p.Alive:
		v.Role = p.Role
	case viewer == nil:
	case viewer.Name == p.Name:
		v.Role = p.Role
	case viewer.Role == RoleMafia && p.Role == RoleMafia:
		v.Role = p.Role
	}
	return v
}

// known collects the inspection results delivered to viewer.
func known(events []Event, viewer *Player) map[string]Alignment {
	if viewer == nil || viewer.Role != RoleDetective {
		return nil
	}
	out := map[string]Alignment{}
	for _, e := range events {
		if e.Kind == EventInspection && e.Actor == viewer.Name {
			out[e.Target] = e.Alignment
		}
	}
	return out
}

func buildView(code string, info PhaseInfo, players []Player, events []Event, viewer *Player, limit int) View {
	over := info.State == StateGameOver
	v := View{
		Code:      code,
		PhaseInfo: info,
		Players:   playerViews(players, viewer, over),
	}
	if viewer != nil {
		pv := playerView(*viewer, viewer, over)
		v.You = &pv
	}
	seen := visible(events, viewer)
	if limit > 0 && len(seen) > limit {
		seen = seen[len(seen)-limit:]
	}
	v.Events = seen
	if viewer != nil {
		for _, e := range events {
			if e.Kind == EventInspection && e.Actor == viewer.Name {
				v.Private = append(v.Private, e)
			}
		}
	}
	if info.Phase == PhaseDay && info.State.Active() {
		v.Votes = DayVoteOutcome(events, info.Day, players).Votes
	}
	return v
}

func buildTurnRequest(code string, info PhaseInfo, slot Slot, players []Player, events []Event, since uint64, limit int) TurnRequest {
	viewer := slot.Player
	req := TurnRequest{
		Session:  code,
		Player:   viewer,
		Channel:  slot.Channel,
		Phase:    info.Phase,
		Night:    info.Night,
		Day:      info.Day,
		Deadline: info.Deadline,
		Known:    known(events, &viewer),
	}
	for _, p := range players {
		switch {
		case !p.Alive:
			req.Dead = append(req.Dead, playerView(p, &viewer, false))
		default:
			req.Alive = append(req.Alive, p.Name)
			if viewer.Role == RoleMafia && p.Role == RoleMafia && p.Name != viewer.Name {
				req.Teammates = append(req.Teammates, p.Name)
			}
		}
	}
	if info.Phase == PhaseDay {
		req.Votes = DayVoteOutcome(events, info.Day, players).Votes
	}
	req.Human, req.HumanLast = humanLast(players, events)
	var fresh []Event
	for _, e := range visible(events, &viewer) {
		if e.Seq > since {
			fresh = append(fresh, e)
		}
	}
	if limit > 0 && len(fresh) > limit {
		fresh = fresh[len(fresh)-limit:]
	}
	for _, e := range fresh {
		req.Recap = append(req.Recap, Describe(e))
	}
	return req
}

// humanLast finds the human seat and the last thing they said in public.
func humanLast(players []Player, events []Event) (string, string) {
	human := ""
	for _, p := range players {
		if p.Human {
			human = p.Name
			break
		}
	}
	if human == "" {
		return "", ""
	}
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Kind == EventSpeech && e.Visibility == VisibilityPublic && e.Actor == human {
			return human, e.Text
		}
	}
	return human, ""
}

// Describe renders an event as one recap line, e.g. "[DAY2] bob votes carol".
func Describe(e Event) string {
	tag := fmt.Sprintf("[%s%d]", strings.ToUpper(string(e.Phase)), e.Round)
	switch e.Kind {
	case EventSpeech:
		if e.Visibility == VisibilityMafia {
			return fmt.Sprintf("%s (mafia) %s: %s", tag, e.Actor, e.Text)
		}
		if e.Visibility == VisibilityActor {
			return fmt.Sprintf("%s (notes) %s: %s", tag, e.Actor, e.Text)
		}
		if e.Visibility == VisibilityGraveyard {
			return fmt.Sprintf("%s (graveyard) %s: %s", tag, e.Actor, e.Text)
		}
		return fmt.Sprintf("%s %s: %s", tag, e.Actor, e.Text)
	case EventVote:
		if e.Abstain {
			return fmt.Sprintf("%s %s abstains", tag, e.Actor)
		}
		return fmt.Sprintf("%s %s votes %s", tag, e.Actor, e.Target)
	case EventAction:
		return fmt.Sprintf("%s %s: %s %s", tag, e.Actor, e.Action, e.Target)
	case EventInspection:
		return fmt.Sprintf("%s inspection: %s is %s", tag, e.Target, e.Alignment)
	case EventDeath:
		if e.Reason == "lynch" {
			return fmt.Sprintf("%s %s was eliminated (%s)", tag, e.Target, e.Role)
		}
		return fmt.Sprintf("%s %s died (%s)", tag, e.Target, e.Role)
	case EventLastWords:
		return fmt.Sprintf("%s %s's last words: %s", tag, e.Actor, e.Text)
	case EventNoResponse:
		return fmt.Sprintf("%s %s did not respond", tag, e.Actor)
	case EventPhase:
		return fmt.Sprintf("%s %s begins", tag, e.Phase)
	case EventGameEnd:
		return fmt.Sprintf("%s game over, winner: %s", tag, e.Winner)
	}
	return tag
}
