package agent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiliankoe/gptmafia/internal/ai"
	"github.com/kiliankoe/gptmafia/internal/ai/echo"
	"github.com/kiliankoe/gptmafia/internal/game"
)

type stubProvider struct {
	calls  atomic.Int32
	answer func(n int32, ctx context.Context, system, prompt string) (string, error)
}

func (s *stubProvider) Complete(ctx context.Context, model, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, model, "", prompt)
}

func (s *stubProvider) CompleteWithSystem(ctx context.Context, model, system, prompt string) (string, error) {
	n := s.calls.Add(1)
	return s.answer(n, ctx, system, prompt)
}

func request(name string, role game.Role, channel game.Channel, phase game.Phase) game.TurnRequest {
	return game.TurnRequest{
		Player:  game.Player{Name: name, Role: role, Alive: true, Provider: "stub", Model: "m1"},
		Channel: channel,
		Phase:   phase,
		Night:   1,
		Alive:   []string{"Ann", "Bob", "Cat"},
	}
}

func TestRequestTurnReturnsReply(t *testing.T) {
	var gotSystem, gotPrompt string
	p := &stubProvider{answer: func(_ int32, _ context.Context, system, prompt string) (string, error) {
		gotSystem, gotPrompt = system, prompt
		return "  KILL: Cat  ", nil
	}}
	g := New(map[string]ai.Provider{"stub": p}, Options{DefaultProvider: "stub"})
	req := request("Ann", game.RoleMafia, game.ChannelMafia, game.PhaseNight)
	req.Teammates = []string{"Bob"}

	reply, err := g.RequestTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("request turn: %v", err)
	}
	if reply.Text != "KILL: Cat" {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
	if !strings.Contains(gotSystem, "KILL: <exact name>") || !strings.Contains(gotSystem, "first night") {
		t.Fatalf("system prompt lacks mafia rules: %s", gotSystem)
	}
	if !strings.Contains(gotPrompt, "Mafia teammates: Bob") {
		t.Fatalf("turn prompt lacks teammates: %s", gotPrompt)
	}
}

func TestRequestTurnTimesOutOnStuckProvider(t *testing.T) {
	stuck := make(chan struct{})
	defer close(stuck)
	p := &stubProvider{answer: func(int32, context.Context, string, string) (string, error) {
		<-stuck // ignores ctx
		return "late", nil
	}}
	g := New(map[string]ai.Provider{"stub": p}, Options{DefaultProvider: "stub", Retries: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.RequestTurn(ctx, request("Ann", game.RoleVillager, game.ChannelPublic, game.PhaseDay))
	if !errors.Is(err, game.ErrAgentTimeout) {
		t.Fatalf("expected ErrAgentTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("gateway should return at the deadline")
	}
	if n := p.calls.Load(); n != 1 {
		t.Fatalf("timed-out turns must not retry, got %d calls", n)
	}
}

func TestRequestTurnRetriesTemporaryFailures(t *testing.T) {
	p := &stubProvider{answer: func(n int32, _ context.Context, _, _ string) (string, error) {
		if n == 1 {
			return "", &ai.StatusError{Provider: "stub", Code: 503}
		}
		if n == 2 {
			return "...", nil
		}
		return "VOTE: Bob", nil
	}}
	g := New(map[string]ai.Provider{"stub": p}, Options{DefaultProvider: "stub", Retries: 2, Backoff: time.Millisecond})
	reply, err := g.RequestTurn(context.Background(), request("Cat", game.RoleVillager, game.ChannelPublic, game.PhaseDay))
	if err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if reply.Text != "VOTE: Bob" || p.calls.Load() != 3 {
		t.Fatalf("unexpected reply %q after %d calls", reply.Text, p.calls.Load())
	}
}

func TestRequestTurnDoesNotRetryPermanentFailures(t *testing.T) {
	p := &stubProvider{answer: func(int32, context.Context, string, string) (string, error) {
		return "", &ai.StatusError{Provider: "stub", Code: 401}
	}}
	g := New(map[string]ai.Provider{"stub": p}, Options{DefaultProvider: "stub", Retries: 3, Backoff: time.Millisecond})
	_, err := g.RequestTurn(context.Background(), request("Cat", game.RoleVillager, game.ChannelPublic, game.PhaseDay))
	if !errors.Is(err, game.ErrAgentError) {
		t.Fatalf("expected ErrAgentError, got %v", err)
	}
	if p.calls.Load() != 1 {
		t.Fatalf("401 must not be retried, got %d calls", p.calls.Load())
	}
}

func TestResolveFallsBackToDefaults(t *testing.T) {
	g := New(map[string]ai.Provider{"echo": echo.New()}, Options{DefaultProvider: "echo", DefaultModel: "echo"})
	provider, model := g.Resolve(game.Player{Name: "x", Provider: "openai"})
	if provider != "echo" || model != "echo" {
		t.Fatalf("expected echo/echo, got %s/%s", provider, model)
	}
	reply, err := g.RequestTurn(context.Background(), request("Ann", game.RoleDoctor, game.ChannelPrivate, game.PhaseNight))
	if err != nil {
		t.Fatalf("echo turn: %v", err)
	}
	if !strings.HasPrefix(reply.Text, "[night 1, private channel, Ann]") {
		t.Fatalf("unexpected echo reply %q", reply.Text)
	}
	if models := g.Models(context.Background()); len(models["echo"]) != 1 {
		t.Fatalf("expected echo model listing, got %v", models)
	}
}

func TestTurnPromptListsVisibleState(t *testing.T) {
	req := request("Cat", game.RoleDetective, game.ChannelPublic, game.PhaseDay)
	req.Day = 2
	req.Known = map[string]game.Alignment{"Bob": game.AlignmentMafia}
	req.Votes = map[string]string{"Ann": "Cat", "Bob": ""}
	req.Dead = []game.PlayerView{{Name: "Eve", Role: game.RoleVillager}}
	req.Recap = []string{"[DAY2] Ann: it's Cat"}
	req.Human, req.HumanLast = "You", "Cat has been quiet"
	out := TurnPrompt(req)
	for _, want := range []string{
		"day 2, public channel, Cat",
		"Dead: Eve (villager)",
		"Your inspections: Bob is mafia",
		"Votes so far: Ann -> Cat, Bob -> none",
		"[DAY2] Ann: it's Cat",
		`You (human) last said: "Cat has been quiet"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt missing %q:\n%s", want, out)
		}
	}
}

func TestSystemPromptForTheDead(t *testing.T) {
	req := request("Eve", game.RoleVillager, game.ChannelGraveyard, game.PhaseDay)
	req.Player.Alive = false
	if out := SystemPrompt("", req, "m1"); !strings.Contains(out, "graveyard") {
		t.Fatalf("graveyard rules missing: %s", out)
	}
	req = request("Gus", game.RoleVillager, game.ChannelPublic, game.PhaseNight)
	req.Night = 2
	req.LastWords = true
	out := SystemPrompt("", req, "m1")
	if !strings.Contains(out, "LAST WORDS: <message>") || strings.Contains(out, "VOTE: <exact name>") {
		t.Fatalf("expected last words rules only: %s", out)
	}
}
