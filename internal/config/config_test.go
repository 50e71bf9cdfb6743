package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kiliankoe/gptmafia/internal/game"
)

func TestFromEnvDefaults(t *testing.T) {
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if c.Port != "8080" || c.NightSeconds != 60 || c.DaySeconds != 120 || c.AgentTimeoutS != 120 {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if len(c.AgentNames) != len(DefaultAgentNames) {
		t.Fatalf("expected default agent names, got %v", c.AgentNames)
	}
	g := c.Game()
	if g.NightDuration != time.Minute || g.DayDuration != 2*time.Minute || g.TurnTimeout != 2*time.Minute {
		t.Fatalf("unexpected game timing %+v", g)
	}
	if g.PollInterval != 1500*time.Millisecond || g.TurnsPerPhase != 3 || g.MaxRounds != 10 || !g.Graveyard {
		t.Fatalf("unexpected polling config %+v", g)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("AGENT_NAMES", "alpha, beta,gamma")
	t.Setenv("AGENT_TIMEOUT_S", "2.5")
	t.Setenv("NIGHT_SECONDS", "5")
	t.Setenv("GAME_ROLE_SEED", "99")
	t.Setenv("HUMAN_NAME", "Kilian")
	t.Setenv("DEFAULT_PROVIDER", "ollama")
	t.Setenv("AGENT_MODEL_MAP", `{"alpha":"llama3:8b"}`)
	t.Setenv("AGENT_MODEL_BETA", "qwen2")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	g := c.Game()
	if g.TurnTimeout != 2500*time.Millisecond || g.NightDuration != 5*time.Second || g.Seed != 99 {
		t.Fatalf("unexpected game config %+v", g)
	}

	seats := c.Seats()
	if len(seats) != 4 {
		t.Fatalf("expected 3 agents and a human, got %+v", seats)
	}
	want := map[string]string{"alpha": "llama3:8b", "beta": "qwen2", "gamma": c.DefaultModel}
	for _, s := range seats[:3] {
		if s.Provider != "ollama" || s.Model != want[s.Name] {
			t.Fatalf("unexpected seat %+v", s)
		}
	}
	human := seats[3]
	if human.Name != "Kilian" || !human.Human || human.Role != game.RoleVillager {
		t.Fatalf("unexpected human seat %+v", human)
	}
}

func TestOpenAIWithoutKeyFallsBackToEcho(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	c, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if c.Provider() != "echo" || c.ModelFor("gpt-5.2") != "echo" {
		t.Fatalf("expected echo fallback, got %s/%s", c.Provider(), c.ModelFor("gpt-5.2"))
	}
}

func TestOpenRouterModelSlugs(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "k")
	t.Setenv("OPENAI_BASE_URL", "https://openrouter.ai/api")
	t.Setenv("AGENT_MODEL_MAP", "glm-4.7=z-ai/glm-4.6")
	c, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if m := c.ModelFor("claude-4.5-opus"); m != "anthropic/claude-opus-4.5" {
		t.Fatalf("unexpected slug %s", m)
	}
	if m := c.ModelFor("glm-4.7"); m != "z-ai/glm-4.6" {
		t.Fatalf("map override ignored, got %s", m)
	}
	if m := c.ModelFor("mystery"); m != "openrouter/auto" {
		t.Fatalf("unknown codename should route to auto, got %s", m)
	}
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	t.Setenv("AGENT_TIMEOUT_S", "0")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for zero timeout")
	}
	t.Setenv("AGENT_TIMEOUT_S", "10")
	t.Setenv("DEFAULT_PROVIDER", "carrier-pigeon")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	t.Setenv("DEFAULT_PROVIDER", "echo")
	t.Setenv("AGENT_MODEL_MAP", "no-equals-sign")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for malformed model map")
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PORT=9999\nHUMAN_NAME=FromFile\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7000")
	t.Setenv("HUMAN_NAME", "")
	os.Unsetenv("HUMAN_NAME")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("PORT"); got != "7000" {
		t.Fatalf("existing PORT overridden: %s", got)
	}
	if got := os.Getenv("HUMAN_NAME"); got != "FromFile" {
		t.Fatalf("expected HUMAN_NAME from file, got %q", got)
	}
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
}
