package territory

import (
	"math/rand"
	"testing"
)

func TestResolve_Basic(t *testing.T) {
	cases := []struct {
		name      string
		influence map[FactionID]int
		margin    int
		want      FactionID
		contested bool
	}{
		{"empty map", map[FactionID]int{}, 10, NoFaction, false},
		{"all zero", map[FactionID]int{1: 0, 2: 0}, 10, NoFaction, false},
		{"clear leader", map[FactionID]int{1: 40, 2: 10}, 10, 1, false},
		{"contested within margin", map[FactionID]int{1: 40, 2: 35}, 10, 1, true},
		{"margin boundary is uncontested", map[FactionID]int{1: 45, 2: 35}, 10, 1, false},
		{"single faction", map[FactionID]int{3: 12}, 10, 3, false},
		{"exact tie lowest id wins", map[FactionID]int{5: 50, 2: 50, 9: 10}, 10, 2, true},
		{"zero margin never contested", map[FactionID]int{1: 40, 2: 40}, 0, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, contested := Resolve(tc.influence, tc.margin)
			if got != tc.want || contested != tc.contested {
				t.Fatalf("Resolve(%v, %d) = (%d, %v), want (%d, %v)",
					tc.influence, tc.margin, got, contested, tc.want, tc.contested)
			}
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		influence := map[FactionID]int{}
		n := 1 + r.Intn(6)
		for f := 1; f <= n; f++ {
			influence[FactionID(f)] = r.Intn(101)
		}
		margin := r.Intn(25)

		c1, contested1 := Resolve(influence, margin)
		c2, contested2 := Resolve(influence, margin)
		if c1 != c2 || contested1 != contested2 {
			t.Fatalf("non-deterministic result for %v margin=%d", influence, margin)
		}
	}
}

func TestResolve_ContestedSymmetry(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	for i := 0; i < 5000; i++ {
		influence := map[FactionID]int{}
		n := 1 + r.Intn(5)
		for f := 1; f <= n; f++ {
			influence[FactionID(f)] = r.Intn(101)
		}
		margin := 1 + r.Intn(20)

		controller, contested := Resolve(influence, margin)

		// Recompute top two by brute force.
		top, second := 0, 0
		for _, v := range influence {
			if v > top {
				second = top
				top = v
			} else if v > second {
				second = v
			}
		}
		if top == 0 {
			if controller != NoFaction || contested {
				t.Fatalf("empty territory resolved to (%d, %v)", controller, contested)
			}
			continue
		}
		if controller == NoFaction {
			t.Fatalf("nonzero top %d but no controller: %v", top, influence)
		}
		if influence[controller] != top {
			t.Fatalf("controller %d does not hold top value %d: %v", controller, top, influence)
		}
		if want := top-second < margin; contested != want {
			t.Fatalf("contested=%v, want %v (top=%d second=%d margin=%d)", contested, want, top, second, margin)
		}
	}
}

func TestPersonalityWeight_SkewsByProfile(t *testing.T) {
	hawk := Personality{Aggression: 0.9, Expansion: 0.7, Negotiation: 0.1}
	dove := Personality{Aggression: 0.1, Expansion: 0.2, Negotiation: 0.9}

	if hawk.Weight(ActionAttack) <= dove.Weight(ActionAttack) {
		t.Fatalf("aggressive profile should weight ATTACK higher")
	}
	if dove.Weight(ActionNegotiate) <= hawk.Weight(ActionNegotiate) {
		t.Fatalf("diplomatic profile should weight NEGOTIATE higher")
	}
	for _, a := range Actions() {
		if hawk.Weight(a) <= 0 || dove.Weight(a) <= 0 {
			t.Fatalf("weight for %s must be positive", a)
		}
	}
}
