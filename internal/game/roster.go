package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// Roster holds the fixed set of players for one session. Roles never change;
// only death flips a player's Alive flag.
type Roster struct {
	mu      sync.RWMutex
	players []*Player
	byName  map[string]*Player
}

// DealRoles assigns roles to seats. Pinned seat roles are honored; the rest
// are dealt from counts after a shuffle driven by seed.
func DealRoles(seats []Seat, counts RoleCounts, seed int64) (*Roster, error) {
	if err := validateSeats(seats, counts); err != nil {
		return nil, err
	}
	pool := RoleCounts{}
	for r, c := range counts {
		pool[r] = c
	}
	open := make([]int, 0, len(seats))
	for i, s := range seats {
		if s.Role == "" {
			open = append(open, i)
			continue
		}
		pool[s.Role]--
	}
	deck := make([]Role, 0, len(open))
	for _, r := range Roles {
		for i := 0; i < pool[r]; i++ {
			deck = append(deck, r)
		}
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(open), func(i, j int) { open[i], open[j] = open[j], open[i] })

	roster := &Roster{byName: make(map[string]*Player, len(seats))}
	roles := make([]Role, len(seats))
	for i, s := range seats {
		roles[i] = s.Role
	}
	for k, idx := range open {
		roles[idx] = deck[k]
	}
	for i, s := range seats {
		p := &Player{
			Name:     s.Name,
			Role:     roles[i],
			Alive:    true,
			Human:    s.Human,
			Provider: s.Provider,
			Model:    s.Model,
		}
		roster.players = append(roster.players, p)
		roster.byName[strings.ToLower(p.Name)] = p
	}
	return roster, nil
}

func validateSeats(seats []Seat, counts RoleCounts) error {
	if len(seats) < 3 {
		return &ConfigError{Field: "roster", Reason: "needs at least 3 players"}
	}
	seen := make(map[string]bool, len(seats))
	pinned := RoleCounts{}
	for _, s := range seats {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		if name == "" {
			return &ConfigError{Field: "roster", Reason: "has a player without a name"}
		}
		if seen[name] {
			return &ConfigError{Field: "roster", Reason: fmt.Sprintf("has duplicate player %q", s.Name)}
		}
		seen[name] = true
		if s.Role != "" {
			if !s.Role.Valid() {
				return &ConfigError{Field: "roster", Reason: fmt.Sprintf("pins unknown role %q", s.Role)}
			}
			pinned[s.Role]++
		}
	}
	for r, c := range counts {
		if !r.Valid() {
			return &ConfigError{Field: "roles", Reason: fmt.Sprintf("has unknown role %q", r)}
		}
		if c < 0 {
			return &ConfigError{Field: "roles", Reason: fmt.Sprintf("has negative count for %s", r)}
		}
	}
	if counts.Total() != len(seats) {
		return &ConfigError{Field: "roles", Reason: fmt.Sprintf("sum to %d, roster has %d players", counts.Total(), len(seats))}
	}
	mafia := counts[RoleMafia]
	if mafia < 1 {
		return &ConfigError{Field: "roles", Reason: "need at least one mafia"}
	}
	if mafia >= len(seats)-mafia {
		return &ConfigError{Field: "roles", Reason: "give mafia parity at start"}
	}
	for r, c := range pinned {
		if c > counts[r] {
			return &ConfigError{Field: "roster", Reason: fmt.Sprintf("pins %d %s seats, only %d dealt", c, r, counts[r])}
		}
	}
	return nil
}

func (r *Roster) Get(name string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := r.byName[strings.ToLower(name)]
	if p == nil {
		return Player{}, false
	}
	return *p, true
}

// Players returns copies of every player in seat order.
func (r *Roster) Players() []Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}
	return out
}

func (r *Roster) kill(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.byName[strings.ToLower(name)]; p != nil {
		p.Alive = false
	}
}

// Living filters players down to the living ones.
func Living(players []Player) []Player {
	out := make([]Player, 0, len(players))
	for _, p := range players {
		if p.Alive {
			out = append(out, p)
		}
	}
	return out
}

func find(players []Player, name string) (Player, bool) {
	for _, p := range players {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Player{}, false
}

// newSeed draws a seed from crypto/rand for sessions that did not pin one.
func newSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 1
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
