package bus

import (
	"sync"
	"testing"
	"time"

	"terrasync.gg/internal/territory"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := NewEmbedded()
	if err != nil {
		t.Fatalf("start bus: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func TestPublishSubscribe_RoundTrip(t *testing.T) {
	b := newTestBus(t)

	got := make(chan territory.ControlChangeEvent, 1)
	sub, err := b.SubscribeControl(func(ev territory.ControlChangeEvent) { got <- ev })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	want := territory.ControlChangeEvent{
		Territory: 12,
		Old:       territory.NoFaction,
		New:       3,
		Contested: true,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := b.PublishControl(want); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	select {
	case ev := <-got:
		if ev.Territory != want.Territory || ev.Old != want.Old || ev.New != want.New || ev.Contested != want.Contested {
			t.Fatalf("got %+v, want %+v", ev, want)
		}
		if !ev.Timestamp.Equal(want.Timestamp) {
			t.Fatalf("timestamp %v, want %v", ev.Timestamp, want.Timestamp)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestSubscribe_PerTerritoryOrderSurvivesInterleaving(t *testing.T) {
	b := newTestBus(t)

	var mu sync.Mutex
	seen := map[territory.TerritoryID][]territory.FactionID{}
	done := make(chan struct{})
	const perTerritory = 50

	sub, err := b.SubscribeControl(func(ev territory.ControlChangeEvent) {
		mu.Lock()
		seen[ev.Territory] = append(seen[ev.Territory], ev.New)
		total := len(seen[1]) + len(seen[2]) + len(seen[3])
		mu.Unlock()
		if total == 3*perTerritory {
			close(done)
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	// One publisher interleaving three territories. Owners encode the
	// publish sequence so reordering is detectable.
	for i := 0; i < perTerritory; i++ {
		for _, id := range []territory.TerritoryID{1, 2, 3} {
			ev := territory.ControlChangeEvent{Territory: id, New: territory.FactionID(i), Timestamp: time.Now()}
			if err := b.PublishControl(ev); err != nil {
				t.Fatalf("publish: %v", err)
			}
		}
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		mu.Lock()
		defer mu.Unlock()
		t.Fatalf("delivery stalled, got %d/%d/%d", len(seen[1]), len(seen[2]), len(seen[3]))
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []territory.TerritoryID{1, 2, 3} {
		for i, owner := range seen[id] {
			if owner != territory.FactionID(i) {
				t.Fatalf("territory %d delivery %d = owner %d, order broken", id, i, owner)
			}
		}
	}
}
