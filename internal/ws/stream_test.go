package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kiliankoe/gptmafia/internal/game"
)

type scriptedGateway struct{}

func (scriptedGateway) RequestTurn(_ context.Context, req game.TurnRequest) (game.Reply, error) {
	switch {
	case req.Phase == game.PhaseNight && req.Player.Role == game.RoleMafia:
		return game.Reply{Text: "KILL Eve"}, nil
	case req.Phase == game.PhaseNight && req.Player.Role == game.RoleDetective:
		return game.Reply{Text: "INSPECT Ann"}, nil
	}
	return game.Reply{Text: "I have a feeling about this."}, nil
}

func seats() []game.Seat {
	return []game.Seat{
		{Name: "Ann", Role: game.RoleMafia},
		{Name: "Cat", Role: game.RoleDetective},
		{Name: "Dan", Role: game.RoleDoctor},
		{Name: "Eve", Role: game.RoleVillager},
		{Name: "You", Role: game.RoleVillager, Human: true},
	}
}

func newStreamServer(t *testing.T) (*httptest.Server, *game.Session) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rm := game.NewRoomManager(scriptedGateway{})
	t.Cleanup(rm.Close)

	cfg := game.DefaultConfig()
	cfg.Seed = 7
	cfg.NightDuration = 150 * time.Millisecond
	cfg.DayDuration = 150 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	cfg.TurnsPerPhase = 1
	cfg.MaxRounds = 1
	counts := game.RoleCounts{game.RoleMafia: 1, game.RoleDetective: 1, game.RoleDoctor: 1, game.RoleVillager: 2}
	sess, err := rm.CreateSession(seats(), counts, cfg)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	r := gin.New()
	NewStream(rm).Mount(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, sess
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Skipf("skipping test; websocket dial unavailable: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// drain reads until the server closes the stream and returns the snapshot's
// events followed by every streamed event.
func drain(t *testing.T, conn *websocket.Conn) []game.Event {
	t.Helper()
	var events []game.Event
	first := true
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var m StreamMessage
		if err := conn.ReadJSON(&m); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return events
			}
			t.Fatalf("read: %v", err)
		}
		if first {
			if m.Type != "snapshot" || m.State == nil {
				t.Fatalf("expected snapshot first, got %q", m.Type)
			}
			events = append(events, m.State.Events...)
			first = false
			continue
		}
		if m.Type != "event" || m.Event == nil {
			t.Fatalf("unexpected frame %q", m.Type)
		}
		if m.Event.Line == "" {
			t.Fatalf("event %d has no rendered line", m.Event.Seq)
		}
		events = append(events, m.Event.Event)
	}
}

func TestStreamSpectatorSeesOnlyPublicEvents(t *testing.T) {
	ts, sess := newStreamServer(t)
	conn := dial(t, ts, "/ws/sessions/"+sess.Code)
	events := drain(t, conn)

	var last uint64
	ended := false
	for _, e := range events {
		if e.Seq <= last {
			t.Fatalf("events out of order or repeated: %d after %d", e.Seq, last)
		}
		last = e.Seq
		if e.Visibility != game.VisibilityPublic {
			t.Fatalf("spectator received %s event %+v", e.Visibility, e)
		}
		if e.Kind == game.EventGameEnd {
			ended = true
		}
	}
	if !ended {
		t.Fatal("stream closed without a game end event")
	}
}

func TestStreamSeatNeverSeesMafiaChannel(t *testing.T) {
	ts, sess := newStreamServer(t)
	token := sess.Tokens()["You"]
	conn := dial(t, ts, "/ws/sessions/"+sess.Code+"?token="+token)
	for _, e := range drain(t, conn) {
		if e.Visibility == game.VisibilityMafia {
			t.Fatalf("villager seat received mafia event %+v", e)
		}
		if e.Visibility == game.VisibilityActor && e.Actor != "You" {
			t.Fatalf("villager seat received %s's private event", e.Actor)
		}
	}
}

func TestStreamRejectsBadRequests(t *testing.T) {
	ts, sess := newStreamServer(t)
	base := "ws" + strings.TrimPrefix(ts.URL, "http")
	for _, tc := range []struct {
		path   string
		status int
	}{
		{"/ws/sessions/" + sess.Code + "?token=forged", http.StatusUnauthorized},
		{"/ws/sessions/NOPE", http.StatusNotFound},
	} {
		conn, resp, err := websocket.DefaultDialer.Dial(base+tc.path, nil)
		if err == nil {
			_ = conn.Close()
			t.Fatalf("%s: expected handshake failure", tc.path)
		}
		if resp == nil {
			t.Skipf("skipping test; websocket dial unavailable: %v", err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.status, resp.StatusCode)
		}
	}
}
