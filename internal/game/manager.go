package game

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"
)

// RoomManager owns every session of the process and runs each game in its
// own goroutine.
type RoomManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	active   string // most recently created session
	gateway  Gateway
	onFinish []func(*Session)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRoomManager(gw Gateway) *RoomManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &RoomManager{
		sessions: make(map[string]*Session),
		gateway:  gw,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnFinish registers fn to run after a game ends, e.g. to export or archive
// its transcript.
func (rm *RoomManager) OnFinish(fn func(*Session)) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.onFinish = append(rm.onFinish, fn)
}

// CreateSession validates the roster, deals roles and starts the game.
func (rm *RoomManager) CreateSession(seats []Seat, counts RoleCounts, cfg Config) (*Session, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.ctx.Err() != nil {
		return nil, errors.New("room manager closed")
	}

	code := randomCode(5)
	for rm.sessions[code] != nil {
		code = randomCode(5)
	}
	s, err := NewSession(code, seats, counts, cfg, rm.gateway)
	if err != nil {
		return nil, err
	}
	rm.sessions[code] = s
	rm.active = code
	hooks := append([]func(*Session){}, rm.onFinish...)

	rm.wg.Add(1)
	go func() {
		defer rm.wg.Done()
		if err := s.Run(rm.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("code", code).Msg("session stopped")
		}
		if !s.engine.Over() {
			return
		}
		for _, fn := range hooks {
			fn(s)
		}
	}()
	return s, nil
}

func (rm *RoomManager) Get(code string) (*Session, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	s := rm.sessions[code]
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (rm *RoomManager) Active() (string, *Session) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	if rm.active == "" {
		return "", nil
	}
	return rm.active, rm.sessions[rm.active]
}

// Close cancels every running game and waits for them to stop.
func (rm *RoomManager) Close() {
	rm.cancel()
	rm.wg.Wait()
}

func randomCode(n int) string {
	letters := []rune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
