package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/gptmafia/internal/agent"
	"github.com/kiliankoe/gptmafia/internal/ai"
	"github.com/kiliankoe/gptmafia/internal/ai/echo"
	"github.com/kiliankoe/gptmafia/internal/ai/ollama"
	"github.com/kiliankoe/gptmafia/internal/ai/openai"
	"github.com/kiliankoe/gptmafia/internal/api"
	"github.com/kiliankoe/gptmafia/internal/archive"
	"github.com/kiliankoe/gptmafia/internal/config"
	"github.com/kiliankoe/gptmafia/internal/game"
	"github.com/kiliankoe/gptmafia/internal/ws"
)

const version = "v0.3.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
		envFile     = flag.String("env", ".env", "Path to a .env file")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`GPTmafia - AI agents play Mafia against each other (and you)

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)
  --env FILE      Load environment from FILE (default: .env)

Environment Variables:
  PORT                Port to listen on (default: 8080)
  LOG_LEVEL           debug, info, warn or error (default: info)
  DEFAULT_PROVIDER    AI provider: "openai", "ollama" or "echo" (default: openai)
  DEFAULT_MODEL       AI model to use (default: gpt-4o-mini)
  OPENAI_API_KEY      OpenAI API key; without it agents use the echo provider
  OPENAI_BASE_URL     OpenAI-compatible base URL, e.g. https://openrouter.ai/api
  OLLAMA_HOST         Ollama host URL (default: http://localhost:11434)
  AGENT_NAMES         Comma-separated agent codenames
  AGENT_MODEL_MAP     JSON object or name=model pairs overriding agent models
  HUMAN_NAME          Name of the human seat; empty for an all-agent table
  NIGHT_SECONDS       Night phase length (default: 60)
  DAY_SECONDS         Day phase length (default: 120)
  AGENT_TIMEOUT_S     Per-turn agent deadline in seconds (default: 120)
  MAX_ROUNDS          Day cap before the game ends without a winner (default: 10)
  GAME_ROLE_SEED      Fixed seed for role dealing
  GRAVEYARD_CHAT      Let dead agents talk in the graveyard (default: true)
  GM_USER             GM username for basic auth on session creation
  GM_PASS             GM password for basic auth on session creation
  SINGLE_SESSION      Refuse a new game while one is running (default: true)
  EXPORT_ENABLED      Append finished transcripts to EXPORT_FILE
  EXPORT_FILE         Export path (default: exports/games.txt)
  DATABASE_URL        Postgres DSN; archives finished games when set

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("GPTmafia %s\n", version)
		return
	}

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(cw)

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatal().Err(err).Str("file", *envFile).Msg("load env file")
	}
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown LOG_LEVEL, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		log.Info().Str("method", c.Request.Method).Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	// Providers and agent gateway
	var oaOpts []openai.Option
	if cfg.OpenRouter() {
		oaOpts = append(oaOpts, openai.WithOpenRouter(cfg.OpenRouterSiteURL, cfg.OpenRouterAppName))
	}
	providers := map[string]ai.Provider{
		"openai": openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL, oaOpts...),
		"ollama": ollama.New(cfg.OllamaHost),
		"echo":   echo.New(),
	}
	defaultModel := cfg.DefaultModel
	if cfg.Provider() == "echo" {
		defaultModel = "echo"
	}
	gw := agent.New(providers, agent.Options{
		DefaultProvider: cfg.Provider(),
		DefaultModel:    defaultModel,
		SystemPrompt:    cfg.SystemPrompt,
		Retries:         cfg.AgentRetries,
	})
	log.Info().Str("provider", cfg.Provider()).Bool("openrouter", cfg.OpenRouter()).Int("agents", len(cfg.AgentNames)).Msg("agents configured")

	rm := game.NewRoomManager(gw)
	if cfg.ExportEnabled {
		rm.OnFinish(func(s *game.Session) {
			t, err := s.Transcript()
			if err != nil {
				return
			}
			if err := game.ExportTranscript(t, cfg.ExportFile); err != nil {
				log.Error().Err(err).Str("code", s.Code).Msg("failed to export game data")
				return
			}
			log.Info().Str("code", s.Code).Str("file", cfg.ExportFile).Msg("exported game data")
		})
	}
	if cfg.DatabaseURL != "" {
		store, err := archive.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("open archive")
		}
		defer store.Close()
		rm.OnFinish(store.Archive)
	}

	api.New(rm, cfg, gw).Mount(r)
	ws.NewStream(rm).Mount(r)
	io := ws.New(rm).Mount(r)
	defer io.Close()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info().Str("port", cfg.Port).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	rm.Close()
}
