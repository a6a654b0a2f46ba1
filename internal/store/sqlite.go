package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"terrasync.gg/internal/territory"
)

// DB is the durable representation of the store: one row per territory,
// one row per (territory, faction) influence pair. Normalized so that
// per-faction influence updates touch only their own rows.
type DB struct {
	conn *sqlx.DB
}

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) init() error {
	// WAL suits the write-behind workload; NORMAL is a fair
	// durability/latency tradeoff for state the store also holds in memory.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.conn.Exec(p); err != nil {
			return err
		}
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS factions (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT NOT NULL,
			aggression REAL NOT NULL,
			expansion REAL NOT NULL,
			negotiation REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS territories (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			center_x REAL NOT NULL,
			center_y REAL NOT NULL,
			radius REAL NOT NULL,
			strategic_value INTEGER NOT NULL,
			controller INTEGER NOT NULL DEFAULT 0,
			contested INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS influence (
			territory_id INTEGER NOT NULL,
			faction_id INTEGER NOT NULL,
			value INTEGER NOT NULL,
			PRIMARY KEY (territory_id, faction_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_influence_faction ON influence(faction_id);`,
	}
	for _, s := range stmts {
		if _, err := db.conn.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) Close() error { return db.conn.Close() }

type influenceRow struct {
	TerritoryID int `db:"territory_id"`
	FactionID   int `db:"faction_id"`
	Value       int `db:"value"`
}

// loadState restores persisted influence values into the roster slots and
// recomputes controllers with the current margin. Rows for territories or
// factions no longer in the roster are ignored.
func (db *DB) loadState(s *Store) error {
	var rows []influenceRow
	if err := db.conn.Select(&rows, `SELECT territory_id, faction_id, value FROM influence`); err != nil {
		return err
	}
	for _, r := range rows {
		sl, ok := s.slots[territory.TerritoryID(r.TerritoryID)]
		if !ok {
			continue
		}
		if _, ok := s.factions[territory.FactionID(r.FactionID)]; !ok {
			continue
		}
		sl.t.Influence[territory.FactionID(r.FactionID)] = territory.ClampInfluence(r.Value)
	}
	for _, sl := range s.slots {
		sl.t.Controller, sl.t.Contested = territory.Resolve(sl.t.Influence, s.cfg.ContestMargin)
	}
	return nil
}

// syncRoster upserts identity rows and seeds missing influence pairs so
// the normalized table always holds one row per (territory, faction).
func (db *DB) syncRoster(s *Store) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, f := range s.Factions() {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO factions(id,name,color,aggression,expansion,negotiation) VALUES(?,?,?,?,?,?)`,
			int(f.ID), f.Name, f.Color, f.Personality.Aggression, f.Personality.Expansion, f.Personality.Negotiation,
		); err != nil {
			return err
		}
	}
	for _, sl := range s.slots {
		t := sl.t
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO territories(id,name,type,center_x,center_y,radius,strategic_value,controller,contested)
			 VALUES(?,?,?,?,?,?,?,?,?)`,
			int(t.ID), t.Name, t.Type, t.Center.X, t.Center.Y, t.Radius, t.StrategicValue, int(t.Controller), boolInt(t.Contested),
		); err != nil {
			return err
		}
		for fid := range s.factions {
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO influence(territory_id,faction_id,value) VALUES(?,?,?)`,
				int(t.ID), int(fid), t.Influence[fid],
			); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// flush writes the current state of the given territories in one
// transaction. Called only from the persister goroutine.
func (db *DB) flush(s *Store, ids []territory.TerritoryID) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		sl, ok := s.slots[id]
		if !ok {
			continue
		}
		sl.mu.RLock()
		t := sl.t.Clone()
		sl.mu.RUnlock()

		if _, err := tx.Exec(
			`UPDATE territories SET controller=?, contested=? WHERE id=?`,
			int(t.Controller), boolInt(t.Contested), int(t.ID),
		); err != nil {
			return err
		}
		for fid, v := range t.Influence {
			if _, err := tx.Exec(
				`INSERT OR REPLACE INTO influence(territory_id,faction_id,value) VALUES(?,?,?)`,
				int(t.ID), int(fid), v,
			); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// persister coalesces dirty territories and writes them behind the
// in-memory commit path, so ApplyDelta never waits on the database.
type persister struct {
	db *DB
	s  *Store

	mu    sync.Mutex
	dirty map[territory.TerritoryID]struct{}

	kick chan struct{}
	done chan struct{}
	quit chan struct{}
	once sync.Once
}

func newPersister(db *DB, s *Store) *persister {
	p := &persister{
		db:    db,
		s:     s,
		dirty: map[territory.TerritoryID]struct{}{},
		kick:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		quit:  make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *persister) markDirty(id territory.TerritoryID) {
	p.mu.Lock()
	p.dirty[id] = struct{}{}
	p.mu.Unlock()
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *persister) take() []territory.TerritoryID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.dirty) == 0 {
		return nil
	}
	ids := make([]territory.TerritoryID, 0, len(p.dirty))
	for id := range p.dirty {
		ids = append(ids, id)
	}
	p.dirty = map[territory.TerritoryID]struct{}{}
	return ids
}

func (p *persister) loop() {
	defer close(p.done)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.quit:
			_ = p.db.flush(p.s, p.take())
			return
		case <-p.kick:
		case <-ticker.C:
		}
		_ = p.db.flush(p.s, p.take())
	}
}

func (p *persister) stop() {
	p.once.Do(func() { close(p.quit) })
	<-p.done
}
