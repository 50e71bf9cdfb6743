package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/gptmafia/internal/api"
	"github.com/kiliankoe/gptmafia/internal/game"
)

const (
	outboxSize   = 256
	writeTimeout = 10 * time.Second
)

// StreamMessage is one frame on the plain websocket stream.
type StreamMessage struct {
	Type  string        `json:"type"` // "snapshot" | "event"
	State *game.View    `json:"state,omitempty"`
	Event *EventMessage `json:"event,omitempty"`
}

// Stream serves a read-only websocket per viewer: a scoped snapshot first,
// then every event the viewer may see, in sequence order.
type Stream struct {
	RM       *game.RoomManager
	upgrader websocket.Upgrader
}

func NewStream(rm *game.RoomManager) *Stream {
	return &Stream{
		RM: rm,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (st *Stream) Mount(r gin.IRouter) {
	r.GET("/ws/sessions/:code", st.handle)
}

func (st *Stream) handle(c *gin.Context) {
	code := c.Param("code")
	token := c.Query("token")
	sess, err := st.RM.Get(code)
	if err == nil {
		_, err = sess.Snapshot(token)
	}
	if err != nil {
		status, httpStatus := api.ErrorCode(err)
		c.AbortWithStatusJSON(httpStatus, gin.H{"error": status, "message": err.Error()})
		return
	}
	conn, err := st.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	log.Info().Str("code", code).Str("remote", c.Request.RemoteAddr).Bool("seat", token != "").Msg("ws connected")

	w := newStreamConn(conn)
	unsubscribe, err := sess.Subscribe(token, func(e game.Event) {
		m := message(e)
		w.enqueue(StreamMessage{Type: "event", Event: &m})
	})
	if err != nil {
		_ = conn.Close()
		return
	}
	// Snapshot after subscribing so nothing committed in between is lost.
	view, _ := sess.Snapshot(token)
	w.prepend(view)

	go w.writeLoop(sess.Done())
	w.readLoop()
	unsubscribe()
	w.stop()
	log.Info().Str("code", code).Msg("ws disconnected")
}

type streamConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	outbox []StreamMessage
	wake   chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newStreamConn(conn *websocket.Conn) *streamConn {
	return &streamConn{conn: conn, wake: make(chan struct{}, 1), closed: make(chan struct{})}
}

// enqueue never blocks the feed. A client that falls too far behind is cut
// off rather than slowing down the game.
func (w *streamConn) enqueue(m StreamMessage) {
	w.mu.Lock()
	if len(w.outbox) >= outboxSize {
		w.mu.Unlock()
		log.Warn().Str("remote", w.conn.RemoteAddr().String()).Msg("ws client lagging, closing")
		w.stop()
		return
	}
	w.outbox = append(w.outbox, m)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// prepend puts the snapshot first and drops queued events it already covers.
func (w *streamConn) prepend(view game.View) {
	last := lastSeq(view)
	w.mu.Lock()
	out := []StreamMessage{{Type: "snapshot", State: &view}}
	for _, m := range w.outbox {
		if m.Event != nil && m.Event.Seq <= last {
			continue
		}
		out = append(out, m)
	}
	w.outbox = out
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *streamConn) take() []StreamMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.outbox
	w.outbox = nil
	return out
}

func (w *streamConn) flush() bool {
	for _, m := range w.take() {
		_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := w.conn.WriteJSON(m); err != nil {
			return false
		}
	}
	return true
}

func (w *streamConn) writeLoop(gameDone <-chan struct{}) {
	defer w.stop()
	for {
		select {
		case <-w.closed:
			return
		case <-w.wake:
			if !w.flush() {
				return
			}
		case <-gameDone:
			// the feed is drained before a session reports done
			w.flush()
			_ = w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "game over"),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (w *streamConn) readLoop() {
	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (w *streamConn) stop() {
	w.once.Do(func() {
		close(w.closed)
		_ = w.conn.Close()
	})
}
