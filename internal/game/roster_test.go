package game

import (
	"errors"
	"testing"
)

func TestDealRolesIsDeterministicForASeed(t *testing.T) {
	seats := []Seat{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}, {Name: "e"}, {Name: "f"}}
	counts := DefaultRoleCounts(len(seats))

	r1, err := DealRoles(seats, counts, 7)
	if err != nil {
		t.Fatalf("deal: %v", err)
	}
	r2, err := DealRoles(seats, counts, 7)
	if err != nil {
		t.Fatalf("deal: %v", err)
	}
	dealt := RoleCounts{}
	for i, p := range r1.Players() {
		if q := r2.Players()[i]; q.Role != p.Role {
			t.Fatalf("same seed dealt %s and %s to %s", p.Role, q.Role, p.Name)
		}
		if !p.Alive {
			t.Fatalf("%s should start alive", p.Name)
		}
		dealt[p.Role]++
	}
	for r, c := range counts {
		if dealt[r] != c {
			t.Fatalf("dealt %d %s, want %d", dealt[r], r, c)
		}
	}
}

func TestDealRolesHonorsPinnedSeats(t *testing.T) {
	seats := []Seat{{Name: "human", Human: true, Role: RoleVillager}, {Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}}
	for seed := int64(1); seed < 20; seed++ {
		r, err := DealRoles(seats, DefaultRoleCounts(len(seats)), seed)
		if err != nil {
			t.Fatalf("deal: %v", err)
		}
		p, ok := r.Get("HUMAN")
		if !ok || p.Role != RoleVillager || !p.Human {
			t.Fatalf("seed %d: pinned seat got %+v", seed, p)
		}
	}
}

func TestDealRolesRejectsBadRosters(t *testing.T) {
	five := []Seat{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}, {Name: "e"}}
	cases := []struct {
		name   string
		seats  []Seat
		counts RoleCounts
	}{
		{"too few players", five[:2], RoleCounts{RoleMafia: 1, RoleVillager: 1}},
		{"duplicate names", []Seat{{Name: "a"}, {Name: "A"}, {Name: "b"}}, RoleCounts{RoleMafia: 1, RoleVillager: 2}},
		{"empty name", []Seat{{Name: " "}, {Name: "a"}, {Name: "b"}}, RoleCounts{RoleMafia: 1, RoleVillager: 2}},
		{"counts do not sum", five, RoleCounts{RoleMafia: 1, RoleVillager: 2}},
		{"no mafia", five, RoleCounts{RoleVillager: 5}},
		{"mafia parity", []Seat{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}}, RoleCounts{RoleMafia: 2, RoleVillager: 2}},
		{"unknown role", five, RoleCounts{RoleMafia: 1, "jester": 4}},
		{"pinned beyond counts", []Seat{{Name: "a", Role: RoleDoctor}, {Name: "b"}, {Name: "c"}}, RoleCounts{RoleMafia: 1, RoleVillager: 2}},
	}
	for _, c := range cases {
		_, err := DealRoles(c.seats, c.counts, 1)
		if !errors.Is(err, ErrConfig) {
			t.Errorf("%s: expected ErrConfig, got %v", c.name, err)
		}
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("%s: expected *ConfigError, got %T", c.name, err)
		}
	}
}

func TestDefaultRoleCounts(t *testing.T) {
	cases := map[int]RoleCounts{
		3: {RoleMafia: 1, RoleVillager: 2},
		4: {RoleMafia: 1, RoleDetective: 1, RoleVillager: 2},
		5: {RoleMafia: 1, RoleDetective: 1, RoleDoctor: 1, RoleVillager: 2},
		7: {RoleMafia: 2, RoleDetective: 1, RoleDoctor: 1, RoleVillager: 3},
	}
	for n, want := range cases {
		got := DefaultRoleCounts(n)
		for _, r := range Roles {
			if got[r] != want[r] {
				t.Errorf("%d players: %s = %d, want %d", n, r, got[r], want[r])
			}
		}
	}
}

func TestRosterKillAndCopies(t *testing.T) {
	r, err := DealRoles(table(), countsOf(table()), 1)
	if err != nil {
		t.Fatal(err)
	}
	ps := r.Players()
	ps[0].Alive = false
	if p, _ := r.Get("Ann"); !p.Alive {
		t.Fatal("Players must return copies")
	}
	r.kill("ann")
	if p, _ := r.Get("Ann"); p.Alive {
		t.Fatal("Ann should be dead")
	}
	if n := len(Living(r.Players())); n != 6 {
		t.Fatalf("expected 6 living, got %d", n)
	}
}
