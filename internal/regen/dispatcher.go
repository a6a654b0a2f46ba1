// Package regen turns control-change events into idempotent regeneration
// requests against the external content-generation collaborator. Gameplay
// state never depends on the outcome; failures are logged and retried,
// nothing more.
package regen

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"terrasync.gg/internal/territory"
)

// Key identifies one generated-content set. Clearing and regenerating the
// same key must never leak a duplicate set.
type Key struct {
	TerritoryID   territory.TerritoryID
	TerritoryType string
}

// Request is the payload handed to the content collaborator.
type Request struct {
	RequestID        string              `json:"request_id"`
	TerritoryID      int                 `json:"territory_id"`
	TerritoryType    string              `json:"territory_type"`
	CenterLocation   territory.Point     `json:"center_location"`
	GenerationRadius float64             `json:"generation_radius"`
	DominantFaction  territory.FactionID `json:"dominant_faction_id"` // NoFaction when unowned
}

// Generator is the external content-generation collaborator. How content
// is actually produced is out of scope here.
type Generator interface {
	Clear(ctx context.Context, key Key) error
	Generate(ctx context.Context, req Request) error
}

// TerritoryLookup resolves a territory's anchor for the request payload.
type TerritoryLookup interface {
	Territory(id territory.TerritoryID) (territory.Territory, error)
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Task is one outstanding regeneration with an observable completion
// state, so dispatch-then-clear ordering can be asserted deterministically.
type Task struct {
	ID    string
	Key   Key
	Event territory.ControlChangeEvent

	done   chan struct{}
	status atomic.Value // Status
	err    atomic.Value // error
}

func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) Status() Status { return t.status.Load().(Status) }

func (t *Task) Err() error {
	if e, ok := t.err.Load().(error); ok {
		return e
	}
	return nil
}

type Config struct {
	Retries int
	Backoff time.Duration
	Timeout time.Duration
	Queue   int
}

func (c *Config) applyDefaults() {
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 250 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Queue <= 0 {
		c.Queue = 1024
	}
}

type Dispatcher struct {
	cfg   Config
	gen   Generator
	store TerritoryLookup
	log   *log.Logger

	queue chan *Task

	mu     sync.Mutex
	active map[Key]string // key -> request id of the live content set

	succeeded atomic.Uint64
	failed    atomic.Uint64
}

func New(cfg Config, gen Generator, store TerritoryLookup, logger *log.Logger) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		cfg:    cfg,
		gen:    gen,
		store:  store,
		log:    logger,
		queue:  make(chan *Task, cfg.Queue),
		active: map[Key]string{},
	}
}

func (d *Dispatcher) Succeeded() uint64 { return d.succeeded.Load() }
func (d *Dispatcher) Failed() uint64    { return d.failed.Load() }

// ActiveSets returns a copy of the live content registry. One entry per
// key at most; that is the idempotency contract.
func (d *Dispatcher) ActiveSets() map[Key]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[Key]string, len(d.active))
	for k, v := range d.active {
		out[k] = v
	}
	return out
}

// Dispatch queues a regeneration for a control-change event and returns
// the task handle. Never blocks the caller: a full queue fails the task
// immediately.
func (d *Dispatcher) Dispatch(ev territory.ControlChangeEvent) *Task {
	t, err := d.store.Territory(ev.Territory)
	key := Key{TerritoryID: ev.Territory, TerritoryType: "region"}
	if err == nil {
		key.TerritoryType = t.Type
	}

	task := &Task{
		ID:    uuid.NewString(),
		Key:   key,
		Event: ev,
		done:  make(chan struct{}),
	}
	task.status.Store(StatusPending)

	if err != nil {
		d.finish(task, fmt.Errorf("lookup territory %d: %w", ev.Territory, err))
		return task
	}

	select {
	case d.queue <- task:
	default:
		d.finish(task, fmt.Errorf("regeneration queue full"))
	}
	return task
}

// Run processes queued tasks sequentially until the context is cancelled.
// Sequential processing is what makes clear-before-generate ordering hold
// across rapid ownership flips of the same territory.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-d.queue:
			d.process(ctx, task)
		}
	}
}

func (d *Dispatcher) process(parent context.Context, task *Task) {
	ctx, cancel := context.WithTimeout(parent, d.cfg.Timeout)
	defer cancel()

	t, err := d.store.Territory(task.Event.Territory)
	if err != nil {
		d.finish(task, err)
		return
	}
	req := Request{
		RequestID:        task.ID,
		TerritoryID:      int(t.ID),
		TerritoryType:    t.Type,
		CenterLocation:   t.Center,
		GenerationRadius: t.Radius,
		DominantFaction:  task.Event.New,
	}

	var lastErr error
	for attempt := 0; attempt < d.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				d.finish(task, fmt.Errorf("regeneration timed out: %w", lastErr))
				return
			case <-time.After(d.cfg.Backoff * time.Duration(attempt)):
			}
		}
		// Clear first, every time: content from a previous owner (or a
		// previous attempt) must be marked for disposal before the new
		// set exists, or repeated flips leak content.
		if err := d.gen.Clear(ctx, task.Key); err != nil {
			lastErr = fmt.Errorf("clear: %w", err)
			continue
		}
		d.mu.Lock()
		delete(d.active, task.Key)
		d.mu.Unlock()

		if err := d.gen.Generate(ctx, req); err != nil {
			lastErr = fmt.Errorf("generate: %w", err)
			continue
		}
		d.mu.Lock()
		d.active[task.Key] = task.ID
		d.mu.Unlock()
		d.finish(task, nil)
		return
	}
	d.finish(task, lastErr)
}

func (d *Dispatcher) finish(task *Task, err error) {
	if err != nil {
		task.err.Store(err)
		task.status.Store(StatusFailed)
		d.failed.Add(1)
		if d.log != nil {
			d.log.Printf("regeneration %s territory %d (%s): %v", task.ID, task.Event.Territory, task.Key.TerritoryType, err)
		}
	} else {
		task.status.Store(StatusSucceeded)
		d.succeeded.Add(1)
		if d.log != nil {
			d.log.Printf("regeneration %s territory %d (%s): ok, owner=%d", task.ID, task.Event.Territory, task.Key.TerritoryType, task.Event.New)
		}
	}
	close(task.done)
}
