package game

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Engine is the phase state machine of one game:
//
//	NightActive -> NightResolving -> DayActive -> DayResolving -> NightActive | GameOver
//
// It owns no timers. The session calls Expire when a phase deadline passes;
// every accepted turn re-checks the early-exit rules before Submit returns.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	roster   *Roster
	timeline *Timeline
	now      func() time.Time

	state        State
	night        int
	day          int
	startedAt    time.Time
	deadline     time.Time
	earlyExit    bool   // how the previous phase ended
	lastWordsFor string // open until recorded or the next phase ends
	winner       Winner
	done         chan struct{} // closed when the active phase ends
}

func NewEngine(cfg Config, roster *Roster, timeline *Timeline) *Engine {
	return &Engine{
		cfg:      cfg,
		roster:   roster,
		timeline: timeline,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start enters the first night. The game always opens at night.
func (e *Engine) Start() (Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != "" {
		return Event{}, fmt.Errorf("engine already started")
	}
	return e.enter(StateNightActive, ""), nil
}

// Current describes the active phase together with a channel that is closed
// once that phase ends.
func (e *Engine) Current() (PhaseInfo, <-chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info(), e.done
}

func (e *Engine) Over() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateGameOver
}

func (e *Engine) info() PhaseInfo {
	round := e.night
	if e.state.Phase() == PhaseDay {
		round = e.day
	}
	return PhaseInfo{
		State:         e.state,
		Phase:         e.state.Phase(),
		Round:         round,
		Night:         e.night,
		Day:           e.day,
		Generation:    e.timeline.Generation(),
		StartedAt:     e.startedAt,
		Deadline:      e.deadline,
		PrevEarlyExit: e.earlyExit,
		LastWordsFor:  e.lastWordsFor,
		Winner:        e.winner,
	}
}

// Eligible lists who may act now: every living player by day; at night only
// Mafia (on their channel) and the Doctor and Detective (privately).
func (e *Engine) Eligible() []Slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Active() {
		return nil
	}
	var out []Slot
	for _, p := range Living(e.roster.Players()) {
		if ch, ok := channelFor(p, e.state.Phase()); ok {
			out = append(out, Slot{Player: p, Channel: ch})
		}
	}
	return out
}

// Graveyard lists the dead, who may keep talking among themselves while the
// game runs.
func (e *Engine) Graveyard() []Slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Active() {
		return nil
	}
	var out []Slot
	for _, p := range e.roster.Players() {
		if !p.Alive {
			out = append(out, Slot{Player: p, Channel: ChannelGraveyard})
		}
	}
	return out
}

// SubmitCurrent is Submit against whatever phase is active right now.
func (e *Engine) SubmitCurrent(actor string, t Turn) ([]Event, error) {
	return e.Submit(e.timeline.Generation(), actor, t)
}

// Submit commits one turn taken during generation gen, then runs the
// early-exit check. Turns from an earlier generation are dropped. Dead
// players may still speak, but only in the graveyard.
func (e *Engine) Submit(gen uint64, actor string, t Turn) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateGameOver {
		return nil, ErrGameOver
	}
	if gen != e.timeline.Generation() || !e.state.Active() {
		return nil, fmt.Errorf("turn from %s: %w", actor, ErrLateTurn)
	}
	p, ok := e.roster.Get(actor)
	if !ok {
		return nil, fmt.Errorf("%q: %w", actor, ErrUnknownPlayer)
	}
	if !p.Alive && t.Action != "" {
		return nil, fmt.Errorf("%s: %w", p.Name, ErrPlayerDead)
	}
	phase := e.state.Phase()
	ch, _ := channelFor(p, phase)
	t.Channel = ch
	players := e.roster.Players()
	if err := validateTurn(p, phase, t, players); err != nil {
		return nil, err
	}
	if t.Empty() {
		return nil, nil
	}

	drafts := e.turnDrafts(gen, p, t)
	events, err := e.timeline.AppendBatch(drafts)
	if err != nil {
		return nil, err
	}
	e.checkEarlyExit()
	return events, nil
}

func (e *Engine) turnDrafts(gen uint64, p Player, t Turn) []Draft {
	phase := e.state.Phase()
	base := Draft{Generation: gen, Phase: phase, Round: e.round(), Actor: p.Name}
	vis := VisibilityPublic
	switch t.Channel {
	case ChannelMafia:
		vis = VisibilityMafia
	case ChannelPrivate:
		vis = VisibilityActor
	case ChannelGraveyard:
		vis = VisibilityGraveyard
	}
	var drafts []Draft
	if t.Speech != "" {
		d := base
		d.Kind, d.Visibility, d.Text = EventSpeech, vis, t.Speech
		drafts = append(drafts, d)
	}
	if t.Action != "" {
		d := base
		d.Action, d.Target, d.Abstain = t.Action, t.Target, t.Abstain
		if t.Action == ActionVote {
			d.Kind, d.Visibility = EventVote, VisibilityPublic
		} else {
			d.Kind, d.Visibility = EventAction, vis
		}
		drafts = append(drafts, d)
	}
	return drafts
}

// MarkSilent records that an agent failed to answer during generation gen.
func (e *Engine) MarkSilent(gen uint64, actor string, reason string) (Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateGameOver {
		return Event{}, ErrGameOver
	}
	if gen != e.timeline.Generation() || !e.state.Active() {
		return Event{}, fmt.Errorf("silence from %s: %w", actor, ErrLateTurn)
	}
	p, ok := e.roster.Get(actor)
	if !ok || !p.Alive {
		return Event{}, fmt.Errorf("%q: %w", actor, ErrUnknownPlayer)
	}
	return e.timeline.Append(Draft{
		Generation: gen,
		Phase:      e.state.Phase(),
		Round:      e.round(),
		Kind:       EventNoResponse,
		Visibility: VisibilityPublic,
		Actor:      p.Name,
		Reason:     reason,
	})
}

// RecordLastWords commits the final public statement of the player lynched
// the day before. The window closes once they have spoken or the phase after
// the lynch ends.
func (e *Engine) RecordLastWords(gen uint64, actor, text string) (Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateGameOver {
		return Event{}, ErrGameOver
	}
	if gen != e.timeline.Generation() || !e.state.Active() {
		return Event{}, fmt.Errorf("last words from %s: %w", actor, ErrLateTurn)
	}
	p, ok := e.roster.Get(actor)
	if !ok {
		return Event{}, fmt.Errorf("%q: %w", actor, ErrUnknownPlayer)
	}
	if e.lastWordsFor != p.Name {
		return Event{}, fmt.Errorf("%s has no last words to give: %w", p.Name, ErrInvalidAction)
	}
	words := parseLastWords(text)
	if words == "" {
		return Event{}, fmt.Errorf("empty last words: %w", ErrInvalidAction)
	}
	ev, err := e.timeline.Append(Draft{
		Generation: gen,
		Phase:      PhaseDay,
		Round:      e.day,
		Kind:       EventLastWords,
		Visibility: VisibilityPublic,
		Actor:      p.Name,
		Role:       p.Role,
		Text:       words,
	})
	if err != nil {
		return Event{}, err
	}
	e.lastWordsFor = ""
	return ev, nil
}

// Expire ends the phase of generation gen because its timer fired. It returns
// false when that phase already ended.
func (e *Engine) Expire(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.timeline.Generation() || !e.state.Active() {
		return false
	}
	switch e.state {
	case StateNightActive:
		e.resolveNight("timeout")
	case StateDayActive:
		e.resolveDay("timeout")
	}
	return true
}

func (e *Engine) round() int {
	if e.state.Phase() == PhaseDay {
		return e.day
	}
	return e.night
}

func (e *Engine) checkEarlyExit() {
	events := e.timeline.Snapshot()
	players := e.roster.Players()
	switch e.state {
	case StateNightActive:
		if NightKillTarget(events, e.night, players).Unanimous != "" {
			e.resolveNight("unanimous")
		}
	case StateDayActive:
		if DayVoteOutcome(events, e.day, players).Majority {
			e.resolveDay("majority")
		}
	}
}

func (e *Engine) resolveNight(reason string) {
	e.state = StateNightResolving
	e.earlyExit = reason != "timeout"
	e.lastWordsFor = ""
	close(e.done)
	gen := e.timeline.Generation()
	events := e.timeline.Snapshot()
	players := e.roster.Players()

	kill := NightKillTarget(events, e.night, players)
	outcome := ResolveNight(kill.Target, ProtectTarget(events, e.night, players))

	requests := InspectRequests(events, e.night, players)
	for _, detective := range slices.Sorted(maps.Keys(requests)) {
		target := requests[detective]
		if outcome.Victim == detective {
			continue
		}
		alignment, ok := Inspect(players, target)
		if !ok {
			continue
		}
		_, _ = e.timeline.Append(Draft{
			Generation: gen,
			Phase:      PhaseNight,
			Round:      e.night,
			Kind:       EventInspection,
			Visibility: VisibilityActor,
			Actor:      detective,
			Target:     target,
			Alignment:  alignment,
		})
	}
	if outcome.Victim != "" {
		e.kill(gen, PhaseNight, e.night, outcome.Victim, "night_kill")
	}

	next := "no_death"
	switch {
	case outcome.Victim != "":
		next = "death"
	case outcome.Saved:
		next = "saved"
	}
	if e.finishIfWon() {
		return
	}
	e.enter(StateDayActive, reason+":"+next)
}

func (e *Engine) resolveDay(reason string) {
	e.state = StateDayResolving
	e.earlyExit = reason != "timeout"
	e.lastWordsFor = ""
	close(e.done)
	gen := e.timeline.Generation()
	outcome := DayVoteOutcome(e.timeline.Snapshot(), e.day, e.roster.Players())

	next := "no_lynch"
	victim := outcome.Lynch()
	if victim != "" {
		e.kill(gen, PhaseDay, e.day, victim, "lynch")
		next = "lynch"
	}
	if e.finishIfWon() {
		return
	}
	if e.cfg.MaxRounds > 0 && e.day >= e.cfg.MaxRounds {
		e.finish(WinnerNone)
		return
	}
	e.lastWordsFor = victim
	e.enter(StateNightActive, reason+":"+next)
}

func (e *Engine) kill(gen uint64, phase Phase, round int, name, reason string) {
	p, ok := e.roster.Get(name)
	if !ok || !p.Alive {
		return
	}
	e.roster.kill(p.Name)
	_, _ = e.timeline.Append(Draft{
		Generation: gen,
		Phase:      phase,
		Round:      round,
		Kind:       EventDeath,
		Visibility: VisibilityPublic,
		Target:     p.Name,
		Role:       p.Role,
		Reason:     reason,
	})
}

func (e *Engine) finishIfWon() bool {
	w, ok := CheckWinner(e.roster.Players())
	if !ok {
		return false
	}
	e.finish(w)
	return true
}

func (e *Engine) finish(w Winner) {
	phase, round := e.state.Phase(), e.round()
	e.winner = w
	e.state = StateGameOver
	e.deadline = time.Time{}
	e.timeline.Advance(Draft{
		Phase:      phase,
		Round:      round,
		Kind:       EventGameEnd,
		Visibility: VisibilityPublic,
		State:      StateGameOver,
		Winner:     w,
	})
}

// enter moves into an active state and opens a new phase generation.
func (e *Engine) enter(s State, reason string) Event {
	e.state = s
	if s == StateNightActive {
		e.night++
	} else {
		e.day++
	}
	e.startedAt = e.now().UTC()
	d := e.cfg.NightDuration
	if s == StateDayActive {
		d = e.cfg.DayDuration
	}
	e.deadline = e.startedAt.Add(d)
	e.done = make(chan struct{})
	ev, _ := e.timeline.Advance(Draft{
		Phase:      s.Phase(),
		Round:      e.round(),
		Kind:       EventPhase,
		Visibility: VisibilityPublic,
		State:      s,
		Reason:     reason,
	})
	return ev
}
