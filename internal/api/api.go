package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/gptmafia/internal/config"
	"github.com/kiliankoe/gptmafia/internal/game"
)

// Models is the part of the agent gateway the control surface reports on.
type Models interface {
	Resolve(p game.Player) (provider, model string)
	Models(ctx context.Context) map[string][]string
}

// Settings are runtime knobs applied to sessions created afterwards.
type Settings struct {
	mu            sync.RWMutex
	AgentTimeoutS float64 `json:"agent_timeout_s"`
}

func (s *Settings) get() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.AgentTimeoutS
}

func (s *Settings) set(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AgentTimeoutS = v
}

type Handler struct {
	rm       *game.RoomManager
	cfg      config.Config
	models   Models
	settings *Settings
}

func New(rm *game.RoomManager, cfg config.Config, models Models) *Handler {
	return &Handler{rm: rm, cfg: cfg, models: models, settings: &Settings{AgentTimeoutS: cfg.AgentTimeoutS}}
}

// Mount registers the REST routes. Session creation and settings changes sit
// behind GM basic auth when GM_USER and GM_PASS are set.
func (h *Handler) Mount(r gin.IRouter) {
	gm := []gin.HandlerFunc{}
	if h.cfg.GMUser != "" && h.cfg.GMPass != "" {
		gm = append(gm, gin.BasicAuth(gin.Accounts{h.cfg.GMUser: h.cfg.GMPass}))
	}
	api := r.Group("/api")
	api.POST("/sessions", append(gm, h.createSession)...)
	api.GET("/sessions/active", h.activeSession)
	api.GET("/sessions/:code/state", h.state)
	api.POST("/sessions/:code/actions", h.action)
	api.GET("/sessions/:code/transcript", h.transcript)
	api.GET("/agents/models", h.listModels)
	api.GET("/settings", h.readSettings)
	api.POST("/settings", append(gm, h.writeSettings)...)
}

type createReq struct {
	Seats        []game.Seat     `json:"seats"`
	Roles        game.RoleCounts `json:"roles"`
	NightSeconds float64         `json:"nightSeconds"`
	DaySeconds   float64         `json:"daySeconds"`
	MaxRounds    *int            `json:"maxRounds"`
	Seed         int64           `json:"seed"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (h *Handler) createSession(c *gin.Context) {
	var req createReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}
	if h.cfg.SingleSession {
		if _, s := h.rm.Active(); s != nil && s.Info().State != game.StateGameOver {
			fail(c, http.StatusConflict, "game_in_progress", "a game is already running")
			return
		}
	}
	seats := req.Seats
	if len(seats) == 0 {
		seats = h.cfg.Seats()
	}
	cfg := h.cfg.Game()
	cfg.TurnTimeout = seconds(h.settings.get())
	if req.NightSeconds > 0 {
		cfg.NightDuration = seconds(req.NightSeconds)
	}
	if req.DaySeconds > 0 {
		cfg.DayDuration = seconds(req.DaySeconds)
	}
	if req.MaxRounds != nil {
		cfg.MaxRounds = *req.MaxRounds
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}

	s, err := h.rm.CreateSession(seats, req.Roles, cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	view, _ := s.Snapshot("")
	log.Info().Str("code", s.Code).Int("seats", len(seats)).Msg("session created")
	c.JSON(http.StatusOK, gin.H{"sessionCode": s.Code, "tokens": s.Tokens(), "state": view})
}

func (h *Handler) activeSession(c *gin.Context) {
	if code, s := h.rm.Active(); s != nil {
		c.JSON(http.StatusOK, gin.H{"sessionCode": code, "state": s.Info().State})
		return
	}
	c.Status(http.StatusNotFound)
}

// seatToken reads the caller's seat token. An empty token is a spectator.
func seatToken(c *gin.Context) string {
	if t := c.GetHeader("X-Seat-Token"); t != "" {
		return t
	}
	return c.Query("token")
}

func (h *Handler) state(c *gin.Context) {
	s, err := h.rm.Get(c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	view, err := s.Snapshot(seatToken(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type actionReq struct {
	Token  string          `json:"token"`
	Text   string          `json:"text"`
	Action game.ActionKind `json:"action"`
	Target string          `json:"target"`
}

func (h *Handler) action(c *gin.Context) {
	s, err := h.rm.Get(c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req actionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	token := req.Token
	if token == "" {
		token = seatToken(c)
	}
	events, err := s.SubmitHumanAction(token, game.HumanAction{Text: req.Text, Action: req.Action, Target: req.Target})
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []game.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) transcript(c *gin.Context) {
	s, err := h.rm.Get(c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	t, err := s.Transcript()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type agentInfo struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (h *Handler) listModels(c *gin.Context) {
	agents := []agentInfo{}
	for _, seat := range h.cfg.Seats() {
		if seat.Human {
			continue
		}
		provider, model := h.models.Resolve(game.Player{Name: seat.Name, Provider: seat.Provider, Model: seat.Model})
		agents = append(agents, agentInfo{Name: seat.Name, Provider: provider, Model: model})
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	c.JSON(http.StatusOK, gin.H{
		"provider":   h.cfg.Provider(),
		"openrouter": h.cfg.OpenRouter() && h.cfg.Provider() == "openai",
		"agents":     agents,
		"available":  h.models.Models(ctx),
	})
}

func (h *Handler) readSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agent_timeout_s": h.settings.get()})
}

type settingsReq struct {
	AgentTimeoutS *float64 `json:"agent_timeout_s"`
}

func (h *Handler) writeSettings(c *gin.Context) {
	var req settingsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.AgentTimeoutS != nil {
		if *req.AgentTimeoutS <= 0 {
			fail(c, http.StatusBadRequest, "bad_request", "agent_timeout_s must be > 0")
			return
		}
		h.settings.set(*req.AgentTimeoutS)
		log.Info().Float64("agent_timeout_s", *req.AgentTimeoutS).Msg("settings updated")
	}
	c.JSON(http.StatusOK, gin.H{"agent_timeout_s": h.settings.get()})
}

// ErrorCode maps an engine error to its stable transport code and HTTP
// status.
func ErrorCode(err error) (string, int) {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		return "session_not_found", http.StatusNotFound
	case errors.Is(err, game.ErrUnauthorized):
		return "unauthorized", http.StatusUnauthorized
	case errors.Is(err, game.ErrInvalidAction):
		return "invalid_action", http.StatusBadRequest
	case errors.Is(err, game.ErrPlayerDead):
		return "player_dead", http.StatusBadRequest
	case errors.Is(err, game.ErrUnknownPlayer):
		return "bad_request", http.StatusBadRequest
	case errors.Is(err, game.ErrLateTurn):
		return "late_turn", http.StatusConflict
	case errors.Is(err, game.ErrGameOver):
		return "game_over", http.StatusConflict
	case errors.Is(err, game.ErrGameInProgress):
		return "game_in_progress", http.StatusConflict
	case errors.Is(err, game.ErrConfig):
		return "invalid_config", http.StatusBadRequest
	}
	return "internal", http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	code, status := ErrorCode(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	fail(c, status, code, err.Error())
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}
