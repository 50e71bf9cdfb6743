package game

import (
	"errors"
	"testing"
	"time"
)

func TestNewRoomManager(t *testing.T) {
	rm := NewRoomManager(&fakeGateway{})
	defer rm.Close()
	if rm.sessions == nil {
		t.Fatal("sessions map should be initialized")
	}
	if code, s := rm.Active(); code != "" || s != nil {
		t.Fatal("active session should be empty initially")
	}
}

func TestCreateSessionRunsToCompletion(t *testing.T) {
	rm := NewRoomManager(&fakeGateway{})
	defer rm.Close()
	finished := make(chan *Session, 1)
	rm.OnFinish(func(s *Session) { finished <- s })

	s, err := rm.CreateSession(table(), nil, fastConfig())
	if err != nil {
		t.Fatalf("should be able to create session: %v", err)
	}
	if len(s.Code) != 5 {
		t.Fatalf("unexpected session code %q", s.Code)
	}

	got, err := rm.Get(s.Code)
	if err != nil || got != s {
		t.Fatalf("should be able to retrieve created session: %v", err)
	}
	if code, active := rm.Active(); code != s.Code || active != s {
		t.Fatalf("expected %s to be active, got %s", s.Code, code)
	}

	select {
	case done := <-finished:
		if done != s {
			t.Fatal("finish hook got the wrong session")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("game did not finish")
	}
	tr, err := s.Transcript()
	if err != nil {
		t.Fatalf("transcript after game over: %v", err)
	}
	if tr.Winner != WinnerNone {
		t.Fatalf("silent agents should reach the round cap, got %s", tr.Winner)
	}
}

func TestCreateSessionRejectsInvalidRoster(t *testing.T) {
	rm := NewRoomManager(&fakeGateway{})
	defer rm.Close()
	_, err := rm.CreateSession([]Seat{{Name: "a"}, {Name: "a"}, {Name: "b"}}, nil, fastConfig())
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if code, _ := rm.Active(); code != "" {
		t.Fatal("rejected session must not become active")
	}
}

func TestGetUnknownSession(t *testing.T) {
	rm := NewRoomManager(&fakeGateway{})
	defer rm.Close()
	if _, err := rm.Get("NOPE"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestCloseStopsRunningGames(t *testing.T) {
	rm := NewRoomManager(&fakeGateway{})
	cfg := fastConfig()
	cfg.NightDuration = time.Hour
	s, err := rm.CreateSession(table(), nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	rm.Close()
	waitFor(t, s.Done(), time.Second, "session to stop")
	if _, err := rm.CreateSession(table(), nil, cfg); err == nil {
		t.Fatal("closed manager should refuse new sessions")
	}
}
