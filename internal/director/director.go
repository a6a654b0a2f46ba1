// Package director runs the autonomous faction decision loop: every
// strategic tick each faction evaluates the world snapshot through its
// personality profile and feeds one action back into the store as an
// influence delta.
package director

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"terrasync.gg/internal/territory"
)

// Store is the slice of the territorial store the director needs.
type Store interface {
	Snapshot() []territory.Territory
	Factions() []territory.Faction
	ApplyDeltaRetry(tid territory.TerritoryID, fid territory.FactionID, delta int, source territory.Source, attempts int) (territory.Territory, bool, error)
}

type Config struct {
	// Interval between strategic ticks. Slower than the broadcast path.
	Interval time.Duration
	// Deadline bounds one faction's decision computation; a faction that
	// blows it is skipped for the tick, never allowed to stall the others.
	Deadline time.Duration
	// DecayPerTick bleeds influence from factions that are not reinforcing
	// a territory they do not control. 0 disables decay.
	DecayPerTick int
	// Retries for transient store contention.
	Retries int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.Deadline <= 0 {
		c.Deadline = 500 * time.Millisecond
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
}

// Decision is one chosen (action, territory) pair with its influence
// translation.
type Decision struct {
	Faction   territory.FactionID
	Action    territory.Action
	Territory territory.TerritoryID
	Delta     int
}

type Director struct {
	cfg   Config
	store Store
	log   *log.Logger

	// decideFn defaults to Decide; tests substitute failing computations
	// to exercise loop isolation.
	decideFn func(territory.Faction, []territory.Territory) *Decision

	mu     sync.Mutex
	counts map[territory.FactionID]map[territory.Action]int
	ticks  uint64
}

func New(cfg Config, st Store, logger *log.Logger) *Director {
	cfg.applyDefaults()
	return &Director{
		cfg:      cfg,
		store:    st,
		log:      logger,
		decideFn: Decide,
		counts:   map[territory.FactionID]map[territory.Action]int{},
	}
}

// Run executes strategic ticks until the context is cancelled.
func (d *Director) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one strategic tick for every faction. Exported so tests can
// drive the loop without the timer.
func (d *Director) Tick(ctx context.Context) {
	snap := d.store.Snapshot()
	factions := d.store.Factions()

	if d.cfg.DecayPerTick > 0 {
		d.applyDecay(snap)
		snap = d.store.Snapshot()
	}

	for _, f := range factions {
		dec, err := d.decideWithDeadline(ctx, f, snap)
		if err != nil {
			if d.log != nil {
				d.log.Printf("faction %d (%s): decision skipped: %v", f.ID, f.Name, err)
			}
			continue
		}
		if dec == nil {
			continue // nothing worth doing this tick
		}
		if _, _, err := d.store.ApplyDeltaRetry(dec.Territory, dec.Faction, dec.Delta, territory.SourceAI, d.cfg.Retries); err != nil {
			// A rejected delta never crashes the loop for the other factions.
			if d.log != nil {
				d.log.Printf("faction %d (%s): %s on territory %d rejected: %v", f.ID, f.Name, dec.Action, dec.Territory, err)
			}
			continue
		}
		d.record(dec)
	}

	d.mu.Lock()
	d.ticks++
	d.mu.Unlock()
}

func (d *Director) applyDecay(snap []territory.Territory) {
	for _, t := range snap {
		for fid, v := range t.Influence {
			if v == 0 || fid == t.Controller {
				continue
			}
			if _, _, err := d.store.ApplyDeltaRetry(t.ID, fid, -d.cfg.DecayPerTick, territory.SourceDecay, d.cfg.Retries); err != nil && d.log != nil {
				d.log.Printf("decay on territory %d faction %d: %v", t.ID, fid, err)
			}
		}
	}
}

// decideWithDeadline isolates one faction's computation: a panic or a
// blown deadline costs that faction its turn, nothing more.
func (d *Director) decideWithDeadline(ctx context.Context, f territory.Faction, snap []territory.Territory) (dec *Decision, err error) {
	cctx, cancel := context.WithTimeout(ctx, d.cfg.Deadline)
	defer cancel()

	type result struct {
		dec *Decision
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{nil, fmt.Errorf("decision panic: %v", r)}
			}
		}()
		ch <- result{d.decideFn(f, snap), nil}
	}()

	select {
	case <-cctx.Done():
		return nil, fmt.Errorf("deadline exceeded")
	case r := <-ch:
		return r.dec, r.err
	}
}

// Decide scores every applicable (action, territory) pair as
//
//	strategicValue * personalityWeight(action) - distancePenalty - contestedRisk
//
// and returns the best. Scanning territories in ascending ID with a
// strictly-greater comparison makes ties resolve to the lowest territory
// ID. Pure; exercised directly by tests.
func Decide(f territory.Faction, snap []territory.Territory) *Decision {
	if len(snap) == 0 {
		return nil
	}
	ordered := make([]territory.Territory, len(snap))
	copy(ordered, snap)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	home := homePoint(f.ID, ordered)

	var best *Decision
	bestScore := math.Inf(-1)
	for _, t := range ordered {
		dist := math.Hypot(t.Center.X-home.X, t.Center.Y-home.Y)
		distPenalty := dist / 500
		risk := 0.0
		if t.Contested {
			risk = 2 * (1 - f.Personality.Aggression)
		}
		for _, a := range territory.Actions() {
			delta, ok := actionDelta(f, t, a)
			if !ok {
				continue
			}
			score := float64(t.StrategicValue)*f.Personality.Weight(a) - distPenalty - risk
			if score > bestScore {
				bestScore = score
				best = &Decision{Faction: f.ID, Action: a, Territory: t.ID, Delta: delta}
			}
		}
	}
	return best
}

// actionDelta reports whether an action applies to a territory from this
// faction's standpoint, and its influence translation when it does.
func actionDelta(f territory.Faction, t territory.Territory, a territory.Action) (int, bool) {
	own := t.Influence[f.ID]
	mine := t.Controller == f.ID
	enemy := t.Controller != territory.NoFaction && !mine

	switch a {
	case territory.ActionExpand:
		return 5, t.Controller == territory.NoFaction && own < 100
	case territory.ActionDefend:
		return 6, mine && t.Contested
	case territory.ActionAttack:
		return 4 + int(f.Personality.Aggression*6), enemy && own < 100
	case territory.ActionFortify:
		return 4, mine && !t.Contested && own < 100
	case territory.ActionPatrol:
		return 2, mine && own < 100
	case territory.ActionRetreat:
		return -5, enemy && own > 0 && own < 20
	case territory.ActionNegotiate:
		return 3, t.Contested && !mine && own > 0 && own < 100
	default:
		return 0, false
	}
}

// homePoint anchors distance penalties: the centroid of the faction's
// holdings, or the world origin before it controls anything.
func homePoint(f territory.FactionID, terrs []territory.Territory) territory.Point {
	var sum territory.Point
	n := 0
	for _, t := range terrs {
		if t.Controller == f {
			sum.X += t.Center.X
			sum.Y += t.Center.Y
			n++
		}
	}
	if n == 0 {
		return territory.Point{}
	}
	return territory.Point{X: sum.X / float64(n), Y: sum.Y / float64(n)}
}

func (d *Director) record(dec *Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.counts[dec.Faction]
	if m == nil {
		m = map[territory.Action]int{}
		d.counts[dec.Faction] = m
	}
	m[dec.Action]++
}

// Counts returns a copy of per-faction action tallies since start.
func (d *Director) Counts() map[territory.FactionID]map[territory.Action]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[territory.FactionID]map[territory.Action]int, len(d.counts))
	for f, m := range d.counts {
		c := make(map[territory.Action]int, len(m))
		for a, n := range m {
			c[a] = n
		}
		out[f] = c
	}
	return out
}

// Ticks returns how many strategic ticks have completed.
func (d *Director) Ticks() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticks
}
