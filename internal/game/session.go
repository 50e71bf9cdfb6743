package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Gateway turns a TurnRequest into an agent reply. Implementations must
// respect ctx: the session abandons a turn once its deadline passes.
type Gateway interface {
	RequestTurn(ctx context.Context, req TurnRequest) (Reply, error)
}

// Session drives one game: it owns the timeline, roster and engine, runs
// the phase timer and polls agents, and serves role-scoped reads.
type Session struct {
	Code      string
	CreatedAt time.Time

	cfg      Config
	roster   *Roster
	timeline *Timeline
	engine   *Engine
	gateway  Gateway
	feed     *feed
	log      zerolog.Logger

	mu       sync.Mutex
	tokens   map[string]string // seat token -> player name
	lastSeen map[string]uint64 // player -> last seq sent in a turn request
	running  bool
	finished chan struct{}
}

// NewSession deals roles and prepares a game. A nil counts uses
// DefaultRoleCounts for the roster size.
func NewSession(code string, seats []Seat, counts RoleCounts, cfg Config, gw Gateway) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if gw == nil {
		return nil, &ConfigError{Field: "gateway", Reason: "is required"}
	}
	if counts == nil {
		counts = DefaultRoleCounts(len(seats))
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = newSeed()
	}
	roster, err := DealRoles(seats, counts, seed)
	if err != nil {
		return nil, err
	}
	timeline := NewTimeline()
	s := &Session{
		Code:      code,
		CreatedAt: time.Now().UTC(),
		cfg:       cfg,
		roster:    roster,
		timeline:  timeline,
		engine:    NewEngine(cfg, roster, timeline),
		gateway:   gw,
		feed:      newFeed(),
		log:       log.With().Str("code", code).Logger(),
		tokens:    map[string]string{},
		lastSeen:  map[string]uint64{},
		finished:  make(chan struct{}),
	}
	timeline.OnCommit(s.feed.push)
	for _, p := range roster.Players() {
		if p.Human {
			s.tokens[uuid.NewString()] = p.Name
		}
	}
	return s, nil
}

// Tokens maps each human seat to the token it authenticates with.
func (s *Session) Tokens() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.tokens))
	for token, name := range s.tokens {
		out[name] = token
	}
	return out
}

// viewer resolves a token to its player. The empty token is a spectator.
func (s *Session) viewer(token string) (*Player, error) {
	if token == "" {
		return nil, nil
	}
	s.mu.Lock()
	name, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUnauthorized
	}
	p, ok := s.roster.Get(name)
	if !ok {
		return nil, ErrUnauthorized
	}
	return &p, nil
}

// Run plays the game to completion or until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("session %s already running", s.Code)
	}
	s.running = true
	s.mu.Unlock()
	defer close(s.finished)
	defer s.feed.close()

	if _, err := s.engine.Start(); err != nil {
		return err
	}
	s.log.Info().Int("players", len(s.roster.Players())).Msg("game started")
	for {
		info, done := s.engine.Current()
		if info.State == StateGameOver {
			s.log.Info().Str("winner", string(info.Winner)).Int("events", s.timeline.Len()).Msg("game over")
			return nil
		}
		s.log.Info().Str("state", string(info.State)).Int("round", info.Round).Uint64("generation", info.Generation).Msg("phase started")
		if err := s.runPhase(ctx, info, done); err != nil {
			s.log.Warn().Err(err).Msg("game aborted")
			return err
		}
	}
}

// Done is closed once Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.finished
}

// runPhase waits out one active phase. The phase timer runs independently of
// agent polling; whichever of timer, early exit or cancellation comes first
// ends the phase.
func (s *Session) runPhase(ctx context.Context, info PhaseInfo, done <-chan struct{}) error {
	timer := time.NewTimer(time.Until(info.Deadline))
	defer timer.Stop()

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		s.poll(pctx, info, done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	case <-timer.C:
		if s.engine.Expire(info.Generation) {
			s.log.Info().Uint64("generation", info.Generation).Msg("phase timer expired")
		}
	}
	cancel()
	<-polled
	return nil
}

// poll runs one polling loop per agent so a slow agent only ever delays its
// own next turn. Humans act on their own through SubmitHumanAction.
func (s *Session) poll(ctx context.Context, info PhaseInfo, done <-chan struct{}) {
	slots := s.engine.Eligible()
	if s.cfg.Graveyard {
		slots = append(slots, s.engine.Graveyard()...)
	}
	g, gctx := errgroup.WithContext(ctx)
	if info.LastWordsFor != "" {
		if p, ok := s.roster.Get(info.LastWordsFor); ok && !p.Human {
			g.Go(func() error {
				s.takeLastWords(gctx, info.Generation, p)
				return nil
			})
		}
	}
	for _, slot := range slots {
		if slot.Player.Human || slot.Player.Name == info.LastWordsFor {
			continue
		}
		g.Go(func() error {
			s.pollPlayer(gctx, info.Generation, slot, done)
			return nil
		})
	}
	_ = g.Wait()
}

// pollPlayer asks one agent for TurnsPerPhase turns, pausing PollInterval
// after each.
func (s *Session) pollPlayer(ctx context.Context, gen uint64, slot Slot, done <-chan struct{}) {
	for tick := 0; tick < s.cfg.TurnsPerPhase; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		default:
		}
		s.takeTurn(ctx, gen, slot)

		pause := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			pause.Stop()
			return
		case <-done:
			pause.Stop()
			return
		case <-pause.C:
		}
	}
}

func (s *Session) takeTurn(ctx context.Context, gen uint64, slot Slot) {
	name := slot.Player.Name
	req := s.turnRequest(slot)
	tctx, cancel := context.WithTimeout(ctx, s.cfg.TurnTimeout)
	defer cancel()

	start := time.Now()
	reply, err := s.gateway.RequestTurn(tctx, req)
	l := s.log.With().Str("player", name).Uint64("generation", gen).Dur("dur", time.Since(start)).Logger()
	if err != nil {
		if ctx.Err() != nil {
			l.Debug().Err(err).Msg("turn abandoned")
			return
		}
		reason := "error"
		if errors.Is(err, ErrAgentTimeout) || errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		l.Warn().Err(err).Msg("agent turn failed")
		if slot.Channel == ChannelGraveyard {
			return
		}
		if _, err := s.engine.MarkSilent(gen, name, reason); err != nil {
			l.Debug().Err(err).Msg("no_response not recorded")
		}
		return
	}

	turn := ParseReply(reply, slot.Player, req.Phase, s.roster.Players())
	events, err := s.engine.Submit(gen, name, turn)
	switch {
	case errors.Is(err, ErrLateTurn), errors.Is(err, ErrGameOver):
		l.Debug().Err(err).Msg("late turn dropped")
	case errors.Is(err, ErrInvalidAction):
		l.Warn().Err(err).Msg("invalid turn discarded")
	case err != nil:
		l.Warn().Err(err).Msg("turn rejected")
	default:
		l.Info().Str("action", string(turn.Action)).Int("events", len(events)).Msg("turn committed")
	}
}

// takeLastWords asks the player lynched the day before for a final public
// statement. Silence is not recorded; the window simply closes.
func (s *Session) takeLastWords(ctx context.Context, gen uint64, p Player) {
	req := s.turnRequest(Slot{Player: p, Channel: ChannelPublic})
	req.LastWords = true
	tctx, cancel := context.WithTimeout(ctx, s.cfg.TurnTimeout)
	defer cancel()

	l := s.log.With().Str("player", p.Name).Uint64("generation", gen).Logger()
	reply, err := s.gateway.RequestTurn(tctx, req)
	if err != nil {
		l.Debug().Err(err).Msg("no last words")
		return
	}
	if _, err := s.engine.RecordLastWords(gen, p.Name, reply.Text); err != nil {
		l.Debug().Err(err).Msg("last words dropped")
		return
	}
	l.Info().Msg("last words recorded")
}

// turnRequest builds the role-scoped context for one agent turn and moves
// that player's recap cursor forward.
func (s *Session) turnRequest(slot Slot) TurnRequest {
	info, _ := s.engine.Current()
	events := s.timeline.Snapshot()
	s.mu.Lock()
	since := s.lastSeen[slot.Player.Name]
	if n := len(events); n > 0 {
		s.lastSeen[slot.Player.Name] = events[n-1].Seq
	}
	s.mu.Unlock()
	return buildTurnRequest(s.Code, info, slot, s.roster.Players(), events, since, s.cfg.RecapLimit)
}

// SubmitHumanAction commits a turn for the human seat holding token, against
// the phase active right now. A seat lynched the day before gives its last
// words this way; after that a dead seat only speaks in the graveyard.
func (s *Session) SubmitHumanAction(token string, a HumanAction) ([]Event, error) {
	viewer, err := s.viewer(token)
	if err != nil {
		return nil, err
	}
	if viewer == nil {
		return nil, ErrUnauthorized
	}
	info, _ := s.engine.Current()
	if info.State == StateGameOver {
		return nil, ErrGameOver
	}
	if info.LastWordsFor == viewer.Name && a.Action == "" {
		ev, err := s.engine.RecordLastWords(info.Generation, viewer.Name, a.Text)
		if err != nil {
			return nil, err
		}
		s.log.Info().Str("player", viewer.Name).Msg("human last words")
		return []Event{ev}, nil
	}
	turn := ParseReply(Reply{Text: a.Text, Action: a.Action, Target: a.Target}, *viewer, info.Phase, s.roster.Players())
	events, err := s.engine.Submit(info.Generation, viewer.Name, turn)
	if err != nil {
		s.log.Info().Err(err).Str("player", viewer.Name).Msg("human action rejected")
		return nil, err
	}
	s.log.Info().Str("player", viewer.Name).Str("action", string(turn.Action)).Msg("human action")
	return events, nil
}

// Snapshot returns the session as the token holder may see it.
func (s *Session) Snapshot(token string) (View, error) {
	viewer, err := s.viewer(token)
	if err != nil {
		return View{}, err
	}
	info, _ := s.engine.Current()
	return buildView(s.Code, info, s.roster.Players(), s.timeline.Snapshot(), viewer, 0), nil
}

// Subscribe streams future events the token holder may see, in order.
func (s *Session) Subscribe(token string, fn func(Event)) (func(), error) {
	viewer, err := s.viewer(token)
	if err != nil {
		return nil, err
	}
	if viewer == nil {
		return s.feed.subscribe(nil, fn), nil
	}
	name := viewer.Name
	return s.feed.subscribe(func() *Player {
		p, _ := s.roster.Get(name)
		return &p
	}, fn), nil
}

// Transcript is the full, unscoped record. It is only released once the game
// is over.
type Transcript struct {
	Code      string    `json:"sessionCode"`
	CreatedAt time.Time `json:"createdAt"`
	Winner    Winner    `json:"winner"`
	Players   []Player  `json:"players"`
	Events    []Event   `json:"events"`
}

func (s *Session) Transcript() (Transcript, error) {
	info, _ := s.engine.Current()
	if info.State != StateGameOver {
		return Transcript{}, ErrGameInProgress
	}
	return Transcript{
		Code:      s.Code,
		CreatedAt: s.CreatedAt,
		Winner:    info.Winner,
		Players:   s.roster.Players(),
		Events:    s.timeline.Snapshot(),
	}, nil
}

// Info describes the active phase without any player data.
func (s *Session) Info() PhaseInfo {
	info, _ := s.engine.Current()
	return info
}
