package game

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPlayerViewHidesRoles(t *testing.T) {
	ps := withDead(seated(t), "Gus")
	ann, _ := find(ps, "Ann")
	eve, _ := find(ps, "Eve")

	byName := func(views []PlayerView) map[string]Role {
		out := map[string]Role{}
		for _, v := range views {
			out[v.Name] = v.Role
		}
		return out
	}

	mafia := byName(playerViews(ps, &ann, false))
	if mafia["Bob"] != RoleMafia || mafia["Cat"] != "" {
		t.Fatalf("mafia should see teammates only, got %v", mafia)
	}
	villager := byName(playerViews(ps, &eve, false))
	if villager["Eve"] != RoleVillager || villager["Ann"] != "" {
		t.Fatalf("villager should see only self, got %v", villager)
	}
	if villager["Gus"] != RoleVillager {
		t.Fatal("dead players' roles are revealed")
	}
	spectator := byName(playerViews(ps, nil, false))
	if spectator["Ann"] != "" {
		t.Fatal("spectator must not see living roles")
	}
	if over := byName(playerViews(ps, nil, true)); over["Ann"] != RoleMafia {
		t.Fatal("all roles are revealed after the game")
	}
}

func TestTurnRequestRecapOnlyCarriesNewVisibleEvents(t *testing.T) {
	e, roster, tl := newTestEngine(t, table(), testConfig())
	mustSubmit(t, e, "Ann", Turn{Speech: "Fay tonight?"})
	mustSubmit(t, e, "Cat", Turn{Action: ActionInspect, Target: "Bob"})
	info, _ := e.Current()
	e.Expire(info.Generation)

	info, _ = e.Current()
	cat, _ := roster.Get("Cat")
	events := tl.Snapshot()
	req := buildTurnRequest("T", info, Slot{Player: cat, Channel: ChannelPublic}, roster.Players(), events, 0, 0)
	if req.Known["Bob"] != AlignmentMafia {
		t.Fatalf("detective should know Bob's alignment, got %v", req.Known)
	}
	for _, line := range req.Recap {
		if strings.Contains(line, "Fay tonight") {
			t.Fatalf("mafia chatter leaked into detective recap: %q", line)
		}
	}

	last := events[len(events)-1].Seq
	req = buildTurnRequest("T", info, Slot{Player: cat, Channel: ChannelPublic}, roster.Players(), events, last, 0)
	if len(req.Recap) != 0 {
		t.Fatalf("nothing new since last turn, got %v", req.Recap)
	}
	if len(req.Alive) != 7 || len(req.Dead) != 0 {
		t.Fatalf("unexpected alive/dead lists %v %v", req.Alive, req.Dead)
	}
}

func TestDescribe(t *testing.T) {
	e := Event{Draft: Draft{Kind: EventVote, Phase: PhaseDay, Round: 2, Actor: "bob", Target: "carol"}}
	if got := Describe(e); got != "[DAY2] bob votes carol" {
		t.Fatalf("unexpected line %q", got)
	}
	e = Event{Draft: Draft{Kind: EventDeath, Phase: PhaseNight, Round: 1, Target: "eve", Role: RoleDoctor, Reason: "night_kill"}}
	if got := Describe(e); got != "[NIGHT1] eve died (doctor)" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestExportTranscript(t *testing.T) {
	tr := Transcript{
		Code:      "ABCDE",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Winner:    WinnerTown,
		Players: []Player{
			{Name: "Ann", Role: RoleMafia, Alive: false, Model: "gpt-4o-mini"},
			{Name: "You", Role: RoleVillager, Alive: true, Human: true},
		},
		Events: []Event{
			{Seq: 1, Draft: Draft{Kind: EventPhase, Phase: PhaseNight, Round: 1}},
			{Seq: 2, Draft: Draft{Kind: EventVote, Phase: PhaseDay, Round: 1, Actor: "You", Target: "Ann"}},
			{Seq: 3, Draft: Draft{Kind: EventDeath, Phase: PhaseDay, Round: 1, Target: "Ann", Role: RoleMafia, Reason: "lynch"}},
		},
	}
	file := filepath.Join(t.TempDir(), "exports", "games.txt")
	if err := ExportTranscript(tr, file); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := ExportTranscript(tr, file); err != nil {
		t.Fatalf("second export: %v", err)
	}
	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)
	for _, want := range []string{
		"Session ABCDE",
		"- Ann: mafia (dead, gpt-4o-mini)",
		"- You: villager (alive, human)",
		"[DAY1] You votes Ann",
		"[DAY1] Ann was eliminated (mafia)",
		"Winner: town",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("export missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "Session ABCDE") != 2 {
		t.Fatal("exports should append")
	}
}
