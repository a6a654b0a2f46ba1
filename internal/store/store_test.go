package store

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"terrasync.gg/internal/territory"
)

func testFactions() []territory.Faction {
	return []territory.Faction{
		{ID: 1, Name: "Iron Pact", Color: "#c0392b", Personality: territory.Personality{Aggression: 0.9, Expansion: 0.7, Negotiation: 0.1}},
		{ID: 2, Name: "Verdant Accord", Color: "#27ae60", Personality: territory.Personality{Aggression: 0.2, Expansion: 0.4, Negotiation: 0.8}},
		{ID: 3, Name: "Gray Syndicate", Color: "#7f8c8d", Personality: territory.Personality{Aggression: 0.5, Expansion: 0.5, Negotiation: 0.5}},
	}
}

func testTerritories(n int) []territory.Territory {
	out := make([]territory.Territory, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, territory.Territory{
			ID:             territory.TerritoryID(i),
			Name:           fmt.Sprintf("Sector %d", i),
			Type:           "region",
			Center:         territory.Point{X: float64(i) * 100, Y: float64(-i) * 50},
			Radius:         80,
			StrategicValue: 1 + i%10,
		})
	}
	return out
}

func newTestStore(t *testing.T, n int) *Store {
	t.Helper()
	s, err := New(Config{ContestMargin: 10}, testFactions(), testTerritories(n), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestApplyDelta_ControlFlip(t *testing.T) {
	s := newTestStore(t, 1)

	// FactionA 40, FactionB 35: contested, A controls.
	if _, _, err := s.ApplyDelta(1, 1, 40, territory.SourcePlayer); err != nil {
		t.Fatalf("apply: %v", err)
	}
	st, changed, err := s.ApplyDelta(1, 2, 35, territory.SourcePlayer)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if changed {
		t.Fatalf("control should not change while A leads")
	}
	if st.Controller != 1 || !st.Contested {
		t.Fatalf("want A controlling contested, got controller=%d contested=%v", st.Controller, st.Contested)
	}

	// A drops to 20: B (35) takes over with a 15-point lead, uncontested.
	st, changed, err = s.ApplyDelta(1, 1, -20, territory.SourcePlayer)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !changed {
		t.Fatalf("expected control change")
	}
	if st.Controller != 2 || st.Contested {
		t.Fatalf("want B controlling uncontested, got controller=%d contested=%v", st.Controller, st.Contested)
	}

	// The commit stream carries the flip, in order.
	var control *territory.ControlChangeEvent
	for i := 0; i < 3; i++ {
		ev := <-s.Events()
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d: seq=%d", i, ev.Seq)
		}
		if ev.Control != nil {
			control = ev.Control
		}
	}
	if control == nil {
		t.Fatalf("no control change event on stream")
	}
	if control.Old != 1 || control.New != 2 || control.Contested {
		t.Fatalf("bad control event: %+v", control)
	}
}

func TestApplyDelta_UnknownIDs(t *testing.T) {
	s := newTestStore(t, 2)

	if _, _, err := s.ApplyDelta(99, 1, 5, territory.SourcePlayer); !errors.Is(err, ErrUnknownTerritory) {
		t.Fatalf("want ErrUnknownTerritory, got %v", err)
	}
	if _, _, err := s.ApplyDelta(1, 99, 5, territory.SourcePlayer); !errors.Is(err, ErrUnknownFaction) {
		t.Fatalf("want ErrUnknownFaction, got %v", err)
	}
	if _, err := s.Territory(42); !errors.Is(err, ErrUnknownTerritory) {
		t.Fatalf("want ErrUnknownTerritory, got %v", err)
	}
}

func TestApplyDelta_InfluenceClamped(t *testing.T) {
	s := newTestStore(t, 1)
	go func() {
		for range s.Events() {
		}
	}()

	for i := 0; i < 5; i++ {
		if _, _, err := s.ApplyDelta(1, 1, 40, territory.SourceAI); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	st, _ := s.Territory(1)
	if st.Influence[1] != 100 {
		t.Fatalf("influence not clamped: %d", st.Influence[1])
	}
	for i := 0; i < 9; i++ {
		if _, _, err := s.ApplyDelta(1, 1, -40, territory.SourceDecay); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	st, _ = s.Territory(1)
	if st.Influence[1] != 0 {
		t.Fatalf("influence not floored: %d", st.Influence[1])
	}
}

func TestStore_AtMostOneController(t *testing.T) {
	s := newTestStore(t, 10)
	go func() {
		for range s.Events() {
		}
	}()

	r := rand.New(rand.NewSource(31337))
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		seed := r.Int63()
		go func() {
			defer wg.Done()
			rr := rand.New(rand.NewSource(seed))
			for i := 0; i < 500; i++ {
				tid := territory.TerritoryID(1 + rr.Intn(10))
				fid := territory.FactionID(1 + rr.Intn(3))
				delta := rr.Intn(21) - 10
				_, _, _ = s.ApplyDeltaRetry(tid, fid, delta, territory.SourcePlayer, 3)
			}
		}()
	}
	wg.Wait()

	margin := s.ContestMargin()
	for _, st := range s.Snapshot() {
		wantC, wantContested := territory.Resolve(st.Influence, margin)
		if st.Controller != wantC || st.Contested != wantContested {
			t.Fatalf("territory %d state diverged from resolver: got (%d,%v) want (%d,%v) influence=%v",
				st.ID, st.Controller, st.Contested, wantC, wantContested, st.Influence)
		}
	}
}

func TestStore_PerTerritoryEventOrder(t *testing.T) {
	s := newTestStore(t, 5)

	const writers = 6
	const perWriter = 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rr := rand.New(rand.NewSource(int64(n)))
			for i := 0; i < perWriter; i++ {
				tid := territory.TerritoryID(1 + rr.Intn(5))
				_, _, _ = s.ApplyDeltaRetry(tid, territory.FactionID(1+rr.Intn(3)), rr.Intn(5)-2, territory.SourceAI, 5)
			}
		}(w)
	}
	wg.Wait()

	lastSeq := map[territory.TerritoryID]uint64{}
	drained := 0
	for drained < writers*perWriter {
		ev := <-s.Events()
		tid := ev.Influence.Territory
		if ev.Seq != lastSeq[tid]+1 {
			t.Fatalf("territory %d: seq jumped %d -> %d", tid, lastSeq[tid], ev.Seq)
		}
		lastSeq[tid] = ev.Seq
		drained++
	}
}

func TestStore_PersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	s, err := New(Config{ContestMargin: 10}, testFactions(), testTerritories(3), db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	go func() {
		for range s.Events() {
		}
	}()

	if _, _, err := s.ApplyDelta(2, 1, 55, territory.SourcePlayer); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, _, err := s.ApplyDelta(2, 3, 30, territory.SourceAI); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	s2, err := New(Config{ContestMargin: 10}, testFactions(), testTerritories(3), db2)
	if err != nil {
		t.Fatalf("restore store: %v", err)
	}
	defer s2.Close()

	st, err := s2.Territory(2)
	if err != nil {
		t.Fatalf("territory: %v", err)
	}
	if st.Influence[1] != 55 || st.Influence[3] != 30 {
		t.Fatalf("persisted influence lost: %v", st.Influence)
	}
	if st.Controller != 1 || st.Contested {
		t.Fatalf("restored controller wrong: controller=%d contested=%v", st.Controller, st.Contested)
	}
}
