package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"terrasync.gg/internal/territory"
)

var (
	ErrUnknownTerritory = errors.New("unknown territory")
	ErrUnknownFaction   = errors.New("unknown faction")
	// ErrContended: the per-territory lock was not acquired within the
	// configured bound. Transient; callers retry a few times.
	ErrContended = errors.New("territory write contended")
)

type Config struct {
	// ContestMargin is the influence gap under which a territory is
	// contested. Tunable, not a fixed law.
	ContestMargin int
	// LockWait bounds per-territory lock acquisition for writes.
	LockWait time.Duration
	// EventBuffer sizes the committed-event stream.
	EventBuffer int
}

func (c *Config) applyDefaults() {
	if c.ContestMargin <= 0 {
		c.ContestMargin = 10
	}
	if c.LockWait <= 0 {
		c.LockWait = 50 * time.Millisecond
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 65536
	}
}

// Event is one committed mutation. Events for a territory appear on the
// stream in commit order, tagged with that territory's sequence number.
type Event struct {
	Seq       uint64
	Influence territory.InfluenceChangeEvent
	NewValue  int // post-apply influence of the acting faction

	Contested      bool
	ContestChanged bool

	// Control is non-nil when the controlling faction changed.
	Control *territory.ControlChangeEvent
}

// AuditLogger receives every applied influence mutation.
// Implemented in internal/persistence/log.
type AuditLogger interface {
	WriteInfluence(ev territory.InfluenceChangeEvent) error
}

// Store owns the canonical Territory and Faction records. All mutations
// go through ApplyDelta so resolver invariants hold atomically. Reads are
// lock-free against the static roster plus a per-territory critical
// section; writers to different territories never block each other.
type Store struct {
	cfg Config

	factions map[territory.FactionID]territory.Faction
	slots    map[territory.TerritoryID]*slot

	events  chan Event
	audit   AuditLogger
	commits atomic.Uint64

	db      *DB // nil in tests without persistence
	persist *persister
}

type slot struct {
	mu  sync.RWMutex
	seq uint64
	t   *territory.Territory
}

// lockTimeout bounds writer lock acquisition so a stalled writer surfaces
// as ErrContended instead of queueing behind it indefinitely.
func (sl *slot) lockTimeout(d time.Duration) error {
	if sl.mu.TryLock() {
		return nil
	}
	deadline := time.Now().Add(d)
	for {
		time.Sleep(100 * time.Microsecond)
		if sl.mu.TryLock() {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrContended
		}
	}
}

// New builds a store over a fixed roster. The roster never changes during
// a session. When db is non-nil, previously persisted controller and
// influence state overrides the roster's initial values and every commit
// is written behind to the database.
func New(cfg Config, factions []territory.Faction, terrs []territory.Territory, db *DB) (*Store, error) {
	cfg.applyDefaults()

	if len(terrs) == 0 {
		return nil, fmt.Errorf("empty territory roster")
	}
	if len(factions) == 0 {
		return nil, fmt.Errorf("empty faction roster")
	}

	s := &Store{
		cfg:      cfg,
		factions: make(map[territory.FactionID]territory.Faction, len(factions)),
		slots:    make(map[territory.TerritoryID]*slot, len(terrs)),
		events:   make(chan Event, cfg.EventBuffer),
		db:       db,
	}
	for _, f := range factions {
		if f.ID == territory.NoFaction {
			return nil, fmt.Errorf("faction %q: id 0 is reserved", f.Name)
		}
		if _, dup := s.factions[f.ID]; dup {
			return nil, fmt.Errorf("duplicate faction id %d", f.ID)
		}
		s.factions[f.ID] = f
	}
	for _, t := range terrs {
		if _, dup := s.slots[t.ID]; dup {
			return nil, fmt.Errorf("duplicate territory id %d", t.ID)
		}
		ct := t.Clone()
		if ct.Influence == nil {
			ct.Influence = map[territory.FactionID]int{}
		}
		ct.Controller, ct.Contested = territory.Resolve(ct.Influence, cfg.ContestMargin)
		s.slots[t.ID] = &slot{t: &ct}
	}

	if db != nil {
		if err := db.loadState(s); err != nil {
			return nil, fmt.Errorf("load persisted state: %w", err)
		}
		if err := db.syncRoster(s); err != nil {
			return nil, fmt.Errorf("sync roster: %w", err)
		}
		s.persist = newPersister(db, s)
	}
	return s, nil
}

func (s *Store) SetAuditLogger(l AuditLogger) { s.audit = l }

// Events returns the committed-event stream. A single consumer (the
// broadcast pump) is expected.
func (s *Store) Events() <-chan Event { return s.events }

// ApplyDelta applies one influence mutation atomically: the influence
// update, invariant recomputation and controller decision happen inside
// the territory's critical section. Returns the post-commit territory
// copy and whether the controlling faction changed.
func (s *Store) ApplyDelta(tid territory.TerritoryID, fid territory.FactionID, delta int, source territory.Source) (territory.Territory, bool, error) {
	sl, ok := s.slots[tid]
	if !ok {
		return territory.Territory{}, false, fmt.Errorf("territory %d: %w", tid, ErrUnknownTerritory)
	}
	if _, ok := s.factions[fid]; !ok {
		return territory.Territory{}, false, fmt.Errorf("faction %d: %w", fid, ErrUnknownFaction)
	}

	if err := sl.lockTimeout(s.cfg.LockWait); err != nil {
		return territory.Territory{}, false, fmt.Errorf("territory %d: %w", tid, err)
	}
	defer sl.mu.Unlock()

	t := sl.t
	now := time.Now().UTC()

	t.Influence[fid] = territory.ClampInfluence(t.Influence[fid] + delta)

	oldController, oldContested := t.Controller, t.Contested
	t.Controller, t.Contested = territory.Resolve(t.Influence, s.cfg.ContestMargin)
	controlChanged := t.Controller != oldController

	sl.seq++
	ev := Event{
		Seq: sl.seq,
		Influence: territory.InfluenceChangeEvent{
			Territory: tid,
			Faction:   fid,
			Delta:     delta,
			Source:    source,
			Timestamp: now,
		},
		NewValue:       t.Influence[fid],
		Contested:      t.Contested,
		ContestChanged: t.Contested != oldContested,
	}
	if controlChanged {
		ev.Control = &territory.ControlChangeEvent{
			Territory: tid,
			Old:       oldController,
			New:       t.Controller,
			Contested: t.Contested,
			Timestamp: now,
		}
	}

	if s.audit != nil {
		_ = s.audit.WriteInfluence(ev.Influence)
	}

	// Emitting inside the critical section is what guarantees per-territory
	// order on the stream. The send blocks only when the consumer is
	// severely backed up; that surfaces to other writers as ErrContended
	// rather than reordered or dropped events.
	s.events <- ev
	s.commits.Add(1)

	if s.persist != nil {
		s.persist.markDirty(tid)
	}

	return t.Clone(), controlChanged, nil
}

// ApplyDeltaRetry retries ApplyDelta over transient lock contention.
func (s *Store) ApplyDeltaRetry(tid territory.TerritoryID, fid territory.FactionID, delta int, source territory.Source, attempts int) (territory.Territory, bool, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		t       territory.Territory
		changed bool
		err     error
	)
	for i := 0; i < attempts; i++ {
		t, changed, err = s.ApplyDelta(tid, fid, delta, source)
		if !errors.Is(err, ErrContended) {
			return t, changed, err
		}
	}
	return t, changed, err
}

// Territory returns a copy of one territory's current state.
func (s *Store) Territory(id territory.TerritoryID) (territory.Territory, error) {
	sl, ok := s.slots[id]
	if !ok {
		return territory.Territory{}, fmt.Errorf("territory %d: %w", id, ErrUnknownTerritory)
	}
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.t.Clone(), nil
}

// Snapshot returns copies of every territory ordered by ID. Used for
// initial_state on client join and for director world views.
func (s *Store) Snapshot() []territory.Territory {
	out := make([]territory.Territory, 0, len(s.slots))
	for _, sl := range s.slots {
		sl.mu.RLock()
		out = append(out, sl.t.Clone())
		sl.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Factions returns the static roster ordered by ID.
func (s *Store) Factions() []territory.Faction {
	out := make([]territory.Faction, 0, len(s.factions))
	for _, f := range s.factions {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Faction(id territory.FactionID) (territory.Faction, bool) {
	f, ok := s.factions[id]
	return f, ok
}

// ContestMargin exposes the effective margin for diagnostics.
func (s *Store) ContestMargin() int { return s.cfg.ContestMargin }

// Commits counts applied mutations across all territories.
func (s *Store) Commits() uint64 { return s.commits.Load() }

// Close flushes write-behind persistence. The event stream is not closed;
// consumers stop via their own contexts.
func (s *Store) Close() error {
	if s.persist != nil {
		s.persist.stop()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
