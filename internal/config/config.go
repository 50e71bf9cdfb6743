package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/kiliankoe/gptmafia/internal/game"
)

type Config struct {
	Port            string `env:"PORT" envDefault:"8080"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	DefaultProvider string `env:"DEFAULT_PROVIDER" envDefault:"openai"`
	DefaultModel    string `env:"DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	SystemPrompt    string `env:"SYSTEM_PROMPT"`

	OpenAIKey         string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `env:"OPENAI_BASE_URL"`
	OpenRouterSiteURL string `env:"OPENROUTER_SITE_URL"`
	OpenRouterAppName string `env:"OPENROUTER_APP_NAME"`
	OllamaHost        string `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`

	AgentNames    []string `env:"AGENT_NAMES" envSeparator:","`
	AgentModelMap ModelMap `env:"AGENT_MODEL_MAP"`
	HumanName     string   `env:"HUMAN_NAME" envDefault:"You"`

	NightSeconds   int     `env:"NIGHT_SECONDS" envDefault:"60"`
	DaySeconds     int     `env:"DAY_SECONDS" envDefault:"120"`
	AgentTimeoutS  float64 `env:"AGENT_TIMEOUT_S" envDefault:"120"`
	AgentRetries   int     `env:"AGENT_RETRIES" envDefault:"1"`
	PollIntervalMS int     `env:"POLL_INTERVAL_MS" envDefault:"1500"`
	TurnsPerPhase  int     `env:"TURNS_PER_PHASE" envDefault:"3"`
	MaxRounds      int     `env:"MAX_ROUNDS" envDefault:"10"`
	GameRoleSeed   int64   `env:"GAME_ROLE_SEED"`
	GraveyardChat  bool    `env:"GRAVEYARD_CHAT" envDefault:"true"`

	GMUser        string `env:"GM_USER"`
	GMPass        string `env:"GM_PASS"`
	SingleSession bool   `env:"SINGLE_SESSION" envDefault:"true"`

	ExportEnabled bool   `env:"EXPORT_ENABLED"`
	ExportFile    string `env:"EXPORT_FILE" envDefault:"exports/games.txt"`
	DatabaseURL   string `env:"DATABASE_URL"`
}

// DefaultAgentNames are the codenames seated when AGENT_NAMES is unset.
var DefaultAgentNames = []string{
	"gpt-5.2",
	"claude-4.5-opus",
	"sonnet-4.5",
	"llama-405b",
	"mixtral-8x22b",
	"gemini-2.0",
	"deepseek-r1",
	"deepseek-v3.2",
	"glm-4.7",
}

// openRouterModels maps codenames to OpenRouter model slugs.
var openRouterModels = map[string]string{
	"gpt-5.2":         "openai/gpt-5.2",
	"claude-4.5-opus": "anthropic/claude-opus-4.5",
	"sonnet-4.5":      "anthropic/claude-sonnet-4.5",
	"llama-405b":      "meta-llama/llama-3.1-405b-instruct",
	"mixtral-8x22b":   "mistralai/mixtral-8x22b-instruct",
	"gemini-2.0":      "google/gemini-2.0-flash-001",
	"deepseek-r1":     "deepseek/deepseek-r1",
	"deepseek-v3.2":   "deepseek/deepseek-v3.2",
	"glm-4.7":         "z-ai/glm-4.7",
}

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if len(c.AgentNames) == 0 {
		c.AgentNames = append([]string(nil), DefaultAgentNames...)
	}
	for i, n := range c.AgentNames {
		c.AgentNames[i] = strings.TrimSpace(n)
	}
	switch c.DefaultProvider {
	case "openai", "ollama", "echo":
	default:
		return Config{}, fmt.Errorf("DEFAULT_PROVIDER: unknown provider %q", c.DefaultProvider)
	}
	switch {
	case c.NightSeconds <= 0:
		return Config{}, fmt.Errorf("NIGHT_SECONDS must be positive")
	case c.DaySeconds <= 0:
		return Config{}, fmt.Errorf("DAY_SECONDS must be positive")
	case c.AgentTimeoutS <= 0:
		return Config{}, fmt.Errorf("AGENT_TIMEOUT_S must be positive")
	case c.AgentRetries < 0:
		return Config{}, fmt.Errorf("AGENT_RETRIES must not be negative")
	}
	return c, nil
}

// Provider is the provider agents actually use: openai without a key falls
// back to the offline echo provider.
func (c Config) Provider() string {
	if c.DefaultProvider == "openai" && c.OpenAIKey == "" {
		return "echo"
	}
	return c.DefaultProvider
}

// OpenRouter reports whether the OpenAI-compatible base URL is OpenRouter.
func (c Config) OpenRouter() bool {
	return strings.Contains(c.OpenAIBaseURL, "openrouter.ai")
}

var unsafeEnv = regexp.MustCompile(`[^A-Za-z0-9]+`)

// ModelFor resolves an agent's model: AGENT_MODEL_MAP, then
// AGENT_MODEL_<NAME>, then the OpenRouter slug for known codenames, then
// DEFAULT_MODEL.
func (c Config) ModelFor(name string) string {
	if c.Provider() == "echo" {
		return "echo"
	}
	if m := c.AgentModelMap[name]; m != "" {
		return m
	}
	key := "AGENT_MODEL_" + strings.ToUpper(strings.Trim(unsafeEnv.ReplaceAllString(name, "_"), "_"))
	if m := os.Getenv(key); m != "" {
		return m
	}
	if c.OpenRouter() {
		if m, ok := openRouterModels[name]; ok {
			return m
		}
		return "openrouter/auto"
	}
	return c.DefaultModel
}

// Seats is the default roster: every agent codename plus the human seat,
// pinned to Villager.
func (c Config) Seats() []game.Seat {
	seats := make([]game.Seat, 0, len(c.AgentNames)+1)
	for _, name := range c.AgentNames {
		if name == "" {
			continue
		}
		seats = append(seats, game.Seat{Name: name, Provider: c.Provider(), Model: c.ModelFor(name)})
	}
	if c.HumanName != "" {
		seats = append(seats, game.Seat{Name: c.HumanName, Human: true, Role: game.RoleVillager})
	}
	return seats
}

// Game converts the environment settings into engine timing.
func (c Config) Game() game.Config {
	g := game.DefaultConfig()
	g.NightDuration = time.Duration(c.NightSeconds) * time.Second
	g.DayDuration = time.Duration(c.DaySeconds) * time.Second
	g.TurnTimeout = time.Duration(c.AgentTimeoutS * float64(time.Second))
	g.PollInterval = time.Duration(c.PollIntervalMS) * time.Millisecond
	g.TurnsPerPhase = c.TurnsPerPhase
	g.MaxRounds = c.MaxRounds
	g.Seed = c.GameRoleSeed
	g.Graveyard = c.GraveyardChat
	return g
}

// ModelMap maps agent codenames to model ids. It accepts a JSON object or
// comma-separated name=model pairs.
type ModelMap map[string]string

func (m *ModelMap) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	out := ModelMap{}
	if raw == "" {
		*m = out
		return nil
	}
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), (*map[string]string)(&out)); err != nil {
			return fmt.Errorf("AGENT_MODEL_MAP: %w", err)
		}
		*m = out
		return nil
	}
	for _, pair := range strings.Split(raw, ",") {
		name, model, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("AGENT_MODEL_MAP: bad pair %q", pair)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(model)
	}
	*m = out
	return nil
}
