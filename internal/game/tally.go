package game

import (
	"strings"
)

// Tally functions are pure: they read a timeline snapshot and the current
// player list and never mutate either.

// KillTally is the Mafia's standing kill decision for one night.
type KillTally struct {
	Targets   map[string]string `json:"targets"` // living mafia -> latest target
	Unanimous string            `json:"unanimous,omitempty"`
	Target    string            `json:"target,omitempty"` // what resolution would kill now
}

// NightKillTarget counts KILL actions of the given night. Only the latest
// action of each living Mafia member counts. Unanimous is set once every
// living Mafia member names the same target; otherwise Target falls back to
// the plurality of standing targets, and a tie kills nobody.
func NightKillTarget(events []Event, night int, players []Player) KillTally {
	t := KillTally{Targets: map[string]string{}}
	for _, e := range events {
		if e.Kind != EventAction || e.Action != ActionKill || e.Phase != PhaseNight || e.Round != night {
			continue
		}
		actor, ok := find(players, e.Actor)
		if !ok || !actor.Alive || actor.Role != RoleMafia {
			continue
		}
		target, ok := find(players, e.Target)
		if !ok || !target.Alive || target.Role == RoleMafia {
			continue
		}
		t.Targets[actor.Name] = target.Name
	}

	mafia := 0
	agreed := ""
	unanimous := true
	for _, p := range players {
		if !p.Alive || p.Role != RoleMafia {
			continue
		}
		mafia++
		target, ok := t.Targets[p.Name]
		switch {
		case !ok:
			unanimous = false
		case agreed == "":
			agreed = target
		case agreed != target:
			unanimous = false
		}
	}
	if mafia > 0 && unanimous && agreed != "" {
		t.Unanimous = agreed
		t.Target = agreed
		return t
	}

	counts := map[string]int{}
	for _, target := range t.Targets {
		counts[target]++
	}
	t.Target, _ = leader(counts)
	return t
}

// ProtectTarget returns the latest PROTECT target of a living Doctor.
func ProtectTarget(events []Event, night int, players []Player) string {
	target := ""
	for _, e := range events {
		if e.Kind != EventAction || e.Action != ActionProtect || e.Phase != PhaseNight || e.Round != night {
			continue
		}
		actor, ok := find(players, e.Actor)
		if !ok || !actor.Alive || actor.Role != RoleDoctor {
			continue
		}
		target = e.Target
	}
	return target
}

// InspectRequests maps each living Detective to the latest player they asked
// to inspect this night.
func InspectRequests(events []Event, night int, players []Player) map[string]string {
	out := map[string]string{}
	for _, e := range events {
		if e.Kind != EventAction || e.Action != ActionInspect || e.Phase != PhaseNight || e.Round != night {
			continue
		}
		actor, ok := find(players, e.Actor)
		if !ok || !actor.Alive || actor.Role != RoleDetective {
			continue
		}
		out[actor.Name] = e.Target
	}
	return out
}

type NightOutcome struct {
	Target string `json:"target,omitempty"`
	Victim string `json:"victim,omitempty"`
	Saved  bool   `json:"saved"`
}

// ResolveNight kills the target unless the Doctor protected the same player.
func ResolveNight(kill, protect string) NightOutcome {
	if kill == "" {
		return NightOutcome{}
	}
	if protect != "" && strings.EqualFold(kill, protect) {
		return NightOutcome{Target: kill, Saved: true}
	}
	return NightOutcome{Target: kill, Victim: kill}
}

// Inspect reveals the alignment of target.
func Inspect(players []Player, target string) (Alignment, bool) {
	p, ok := find(players, target)
	if !ok {
		return "", false
	}
	return p.Role.Alignment(), true
}

type VoteOutcome struct {
	Living    int               `json:"living"`
	Threshold int               `json:"threshold"`
	Votes     map[string]string `json:"votes"` // voter -> target, "" abstains
	Counts    map[string]int    `json:"counts"`
	Abstained int               `json:"abstained"`
	Leader    string            `json:"leader,omitempty"`
	Tie       bool              `json:"tie"`
	Majority  bool              `json:"majority"`
}

// Lynch is who the day ends up eliminating: the sole leader, or nobody.
func (v VoteOutcome) Lynch() string {
	if v.Tie {
		return ""
	}
	return v.Leader
}

// DayVoteOutcome tallies explicit votes cast on the given day. Only the latest
// vote of each living voter counts and votes on dead players are ignored.
// Majority means more than half of the living players back the leader.
func DayVoteOutcome(events []Event, day int, players []Player) VoteOutcome {
	living := len(Living(players))
	v := VoteOutcome{
		Living:    living,
		Threshold: living/2 + 1,
		Votes:     map[string]string{},
		Counts:    map[string]int{},
	}
	for _, e := range events {
		if e.Kind != EventVote || e.Phase != PhaseDay || e.Round != day {
			continue
		}
		voter, ok := find(players, e.Actor)
		if !ok || !voter.Alive {
			continue
		}
		if e.Abstain {
			v.Votes[voter.Name] = ""
			continue
		}
		target, ok := find(players, e.Target)
		if !ok || !target.Alive {
			continue
		}
		v.Votes[voter.Name] = target.Name
	}
	for _, target := range v.Votes {
		if target == "" {
			v.Abstained++
			continue
		}
		v.Counts[target]++
	}
	v.Leader, v.Tie = leader(v.Counts)
	if v.Leader != "" && !v.Tie && v.Counts[v.Leader] > living/2 {
		v.Majority = true
	}
	return v
}

// leader returns the unique top entry of counts. On an exact tie at the top
// it returns "" and true.
func leader(counts map[string]int) (string, bool) {
	best, top := 0, []string{}
	for name, c := range counts {
		switch {
		case c > best:
			best, top = c, []string{name}
		case c == best:
			top = append(top, name)
		}
	}
	if len(top) == 1 {
		return top[0], false
	}
	return "", len(top) > 1
}

// CheckWinner applies the win conditions to the current player list.
func CheckWinner(players []Player) (Winner, bool) {
	mafia, town := 0, 0
	for _, p := range players {
		if !p.Alive {
			continue
		}
		if p.Role == RoleMafia {
			mafia++
		} else {
			town++
		}
	}
	switch {
	case mafia == 0:
		return WinnerTown, true
	case mafia >= town:
		return WinnerMafia, true
	}
	return "", false
}
