package game

import (
	"testing"
	"time"
)

// table seats seven players with every role pinned:
// Ann, Bob mafia; Cat detective; Dan doctor; Eve, Fay, Gus villagers.
func table() []Seat {
	return []Seat{
		{Name: "Ann", Role: RoleMafia},
		{Name: "Bob", Role: RoleMafia},
		{Name: "Cat", Role: RoleDetective},
		{Name: "Dan", Role: RoleDoctor},
		{Name: "Eve", Role: RoleVillager},
		{Name: "Fay", Role: RoleVillager},
		{Name: "Gus", Role: RoleVillager},
	}
}

func countsOf(seats []Seat) RoleCounts {
	rc := RoleCounts{}
	for _, s := range seats {
		rc[s.Role]++
	}
	return rc
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 42
	return cfg
}

func newTestEngine(t *testing.T, seats []Seat, cfg Config) (*Engine, *Roster, *Timeline) {
	t.Helper()
	roster, err := DealRoles(seats, countsOf(seats), 1)
	if err != nil {
		t.Fatalf("deal roles: %v", err)
	}
	tl := NewTimeline()
	e := NewEngine(cfg, roster, tl)
	if _, err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return e, roster, tl
}

func mustSubmit(t *testing.T, e *Engine, actor string, turn Turn) []Event {
	t.Helper()
	evs, err := e.SubmitCurrent(actor, turn)
	if err != nil {
		t.Fatalf("submit %s %+v: %v", actor, turn, err)
	}
	return evs
}

func kindsOf(events []Event, kind EventKind) []Event {
	var out []Event
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// ev builds a committed-looking event for tally tests.
func ev(kind EventKind, phase Phase, round int, actor string, action ActionKind, target string) Event {
	return Event{Draft: Draft{Kind: kind, Phase: phase, Round: round, Actor: actor, Action: action, Target: target}}
}

func waitFor(t *testing.T, ch <-chan struct{}, d time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(d):
		t.Fatalf("timed out waiting for %s", what)
	}
}
