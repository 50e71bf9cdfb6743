package ws

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/gptmafia/internal/api"
	"github.com/kiliankoe/gptmafia/internal/game"
)

// ConnCtx is what a socket is watching. An empty Token is a spectator.
type ConnCtx struct {
	Code        string
	Token       string
	unsubscribe func()
}

type Server struct {
	RM      *game.RoomManager
	mu      sync.Mutex
	members map[string]map[string]socketio.Conn // sessionCode -> socketID -> Conn
}

func New(rm *game.RoomManager) *Server {
	return &Server{RM: rm, members: make(map[string]map[string]socketio.Conn)}
}

// EventMessage is one timeline event as pushed to a client.
type EventMessage struct {
	game.Event
	Line string `json:"line"`
}

func message(e game.Event) EventMessage {
	return EventMessage{Event: e, Line: game.Describe(e)}
}

// Mount attaches Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	// game:watch attaches the socket to a session, as a seat (token) or as a
	// spectator. Reconnecting clients send the same payload again.
	io.OnEvent("/", "game:watch", func(s socketio.Conn, payload struct {
		SessionCode string `json:"sessionCode"`
		Token       string `json:"token"`
	}) map[string]any {
		sess, err := srv.RM.Get(payload.SessionCode)
		if err != nil {
			return srv.err(s, err)
		}
		srv.detach(s)
		g := newGate(func(m EventMessage) { s.Emit("game:event", m) })
		unsubscribe, err := sess.Subscribe(payload.Token, g.push)
		if err != nil {
			return srv.err(s, err)
		}
		// Snapshot after subscribing so nothing committed in between is lost.
		view, err := sess.Snapshot(payload.Token)
		if err != nil {
			unsubscribe()
			return srv.err(s, err)
		}
		s.SetContext(&ConnCtx{Code: payload.SessionCode, Token: payload.Token, unsubscribe: unsubscribe})
		s.Join(payload.SessionCode)
		n := srv.addMember(payload.SessionCode, s)
		log.Info().Str("sid", s.ID()).Str("code", payload.SessionCode).Bool("seat", payload.Token != "").Int("watchers", n).Msg("game:watch")
		s.Emit("game:state", view)
		g.open(view)
		return map[string]any{"ok": true}
	})

	// game:state re-sends the caller's scoped snapshot.
	io.OnEvent("/", "game:state", func(s socketio.Conn) map[string]any {
		ctx := connCtx(s)
		sess, err := srv.RM.Get(ctx.Code)
		if err != nil {
			return srv.err(s, err)
		}
		view, err := sess.Snapshot(ctx.Token)
		if err != nil {
			return srv.err(s, err)
		}
		s.Emit("game:state", view)
		return map[string]any{"ok": true}
	})

	// game:act submits a turn for the watching human seat.
	io.OnEvent("/", "game:act", func(s socketio.Conn, payload struct {
		Text   string          `json:"text"`
		Action game.ActionKind `json:"action"`
		Target string          `json:"target"`
	}) map[string]any {
		ctx := connCtx(s)
		sess, err := srv.RM.Get(ctx.Code)
		if err != nil {
			return srv.err(s, err)
		}
		events, err := sess.SubmitHumanAction(ctx.Token, game.HumanAction{Text: payload.Text, Action: payload.Action, Target: payload.Target})
		if err != nil {
			return srv.err(s, err)
		}
		log.Info().Str("code", ctx.Code).Int("events", len(events)).Msg("game:act")
		return map[string]any{"events": events}
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		srv.detach(s)
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io serve")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// Basic CORS preflight for Socket.IO POST
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

// gate holds events that arrive before the snapshot has been sent, then
// passes on the ones the snapshot does not already cover.
type gate struct {
	mu     sync.Mutex
	emit   func(EventMessage)
	held   []game.Event
	opened bool
}

func newGate(emit func(EventMessage)) *gate {
	return &gate{emit: emit}
}

func (g *gate) push(e game.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.opened {
		g.held = append(g.held, e)
		return
	}
	g.emit(message(e))
}

func (g *gate) open(view game.View) {
	last := lastSeq(view)
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.held {
		if e.Seq > last {
			g.emit(message(e))
		}
	}
	g.held = nil
	g.opened = true
}

// lastSeq is the newest event a snapshot covers.
func lastSeq(view game.View) uint64 {
	if n := len(view.Events); n > 0 {
		return view.Events[n-1].Seq
	}
	return 0
}

func connCtx(s socketio.Conn) *ConnCtx {
	if ctx, ok := s.Context().(*ConnCtx); ok && ctx != nil {
		return ctx
	}
	return &ConnCtx{}
}

// detach drops the socket's subscription and room membership, if any.
func (srv *Server) detach(s socketio.Conn) {
	ctx := connCtx(s)
	if ctx.unsubscribe != nil {
		ctx.unsubscribe()
	}
	if ctx.Code != "" {
		s.Leave(ctx.Code)
		srv.removeMember(ctx.Code, s)
	}
	s.SetContext(&ConnCtx{})
}

func (srv *Server) addMember(code string, c socketio.Conn) int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.members[code] == nil {
		srv.members[code] = make(map[string]socketio.Conn)
	}
	srv.members[code][c.ID()] = c
	return len(srv.members[code])
}

func (srv *Server) removeMember(code string, c socketio.Conn) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if m := srv.members[code]; m != nil {
		delete(m, c.ID())
		if len(m) == 0 {
			delete(srv.members, code)
		}
	}
}

func (srv *Server) err(s socketio.Conn, err error) map[string]any {
	code, _ := api.ErrorCode(err)
	if errors.Is(err, game.ErrUnauthorized) {
		log.Info().Str("sid", s.ID()).Msg("socket unauthorized")
	}
	s.Emit("error", map[string]any{"code": code, "message": err.Error()})
	return map[string]any{"error": code, "message": err.Error()}
}
