package game

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Timeline is the append-only, totally ordered event log of one session.
// Appends are exclusive; snapshots never block on more than one append.
type Timeline struct {
	mu         sync.RWMutex
	events     []Event
	generation uint64
	now        func() time.Time
	onCommit   func(Event)
}

func NewTimeline() *Timeline {
	return &Timeline{now: time.Now}
}

// OnCommit registers fn to be called for every committed event, in sequence
// order, while the append lock is held. fn must not block.
func (t *Timeline) OnCommit(fn func(Event)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCommit = fn
}

func (t *Timeline) Generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generation
}

// Append commits a single draft.
func (t *Timeline) Append(d Draft) (Event, error) {
	evs, err := t.AppendBatch([]Draft{d})
	if err != nil {
		return Event{}, err
	}
	return evs[0], nil
}

// AppendBatch commits drafts of one logical turn with contiguous sequence
// numbers. Drafts stamped with a stale generation are rejected as a whole.
func (t *Timeline) AppendBatch(drafts []Draft) ([]Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range drafts {
		if d.Generation != t.generation {
			return nil, fmt.Errorf("generation %d, current %d: %w", d.Generation, t.generation, ErrLateTurn)
		}
	}
	out := make([]Event, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, t.commit(d))
	}
	return out, nil
}

// Advance starts a new phase generation and commits d as its first event.
func (t *Timeline) Advance(d Draft) (Event, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	d.Generation = t.generation
	return t.commit(d), t.generation
}

func (t *Timeline) commit(d Draft) Event {
	e := Event{
		Seq:   uint64(len(t.events)) + 1,
		ID:    uuid.NewString(),
		At:    t.now().UTC(),
		Draft: d,
	}
	t.events = append(t.events, e)
	if t.onCommit != nil {
		t.onCommit(e)
	}
	return e
}

// Snapshot returns a copy of every committed event.
func (t *Timeline) Snapshot() []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.events)
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.events)
}
