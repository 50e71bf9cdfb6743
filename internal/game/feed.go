package game

import (
	"sync"
)

// feed fans committed events out to subscribers without blocking the
// timeline. Events queue up in commit order and a single dispatcher
// goroutine delivers them, so every subscriber sees them in sequence order.
type feed struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	subs   map[int]subscriber
	nextID int
	closed bool
	done   chan struct{}
}

// subscriber resolves its viewer per event, so a seat that dies starts
// seeing the graveyard. A nil viewer func is a spectator.
type subscriber struct {
	viewer func() *Player
	fn     func(Event)
}

func newFeed() *feed {
	f := &feed{subs: map[int]subscriber{}, done: make(chan struct{})}
	f.cond = sync.NewCond(&f.mu)
	go f.run()
	return f
}

// push is called from Timeline.OnCommit and must stay non-blocking.
func (f *feed) push(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.queue = append(f.queue, e)
	f.cond.Signal()
}

// subscribe delivers every future event viewer may see to fn.
func (f *feed) subscribe(viewer func() *Player, fn func(Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subs[id] = subscriber{viewer: viewer, fn: fn}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// close stops accepting events; already queued ones are still delivered.
func (f *feed) close() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		f.cond.Broadcast()
	}
	f.mu.Unlock()
	<-f.done
}

func (f *feed) run() {
	defer close(f.done)
	for {
		f.mu.Lock()
		for len(f.queue) == 0 && !f.closed {
			f.cond.Wait()
		}
		if len(f.queue) == 0 {
			f.mu.Unlock()
			return
		}
		batch := f.queue
		f.queue = nil
		subs := make([]subscriber, 0, len(f.subs))
		for _, s := range f.subs {
			subs = append(subs, s)
		}
		f.mu.Unlock()

		for _, e := range batch {
			for _, s := range subs {
				var viewer *Player
				if s.viewer != nil {
					viewer = s.viewer()
				}
				if e.Visible(viewer) {
					s.fn(e)
				}
			}
		}
	}
}
