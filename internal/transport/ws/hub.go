// Package ws is the broadcast hub: it accepts long-lived websocket
// clients, hands each a full snapshot on join, and fans committed store
// events out to all of them. Slow clients are dropped, never waited on.
package ws

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"terrasync.gg/internal/protocol"
	"terrasync.gg/internal/store"
	"terrasync.gg/internal/territory"
)

type Config struct {
	// ClientQueue bounds each client's outbound queue. A full queue drops
	// that client so delivery to the others never blocks.
	ClientQueue int
	// Heartbeat is the server ping interval; a client missing MaxMissed
	// consecutive heartbeats is reaped.
	Heartbeat time.Duration
	MaxMissed int
	// Retries for transient store contention on influence_action.
	Retries int
}

func (c *Config) applyDefaults() {
	if c.ClientQueue <= 0 {
		c.ClientQueue = 256
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 10 * time.Second
	}
	if c.MaxMissed <= 0 {
		c.MaxMissed = 3
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
}

type joinReq struct {
	c    *client
	resp chan []byte // marshaled initial_state
}

// Hub owns the client set. Registration and fan-out run on one goroutine,
// so a joining client's snapshot and its subsequent event stream can never
// interleave out of order.
type Hub struct {
	cfg   Config
	store *store.Store

	join  chan joinReq
	leave chan *client

	// onControl, when set before Run, receives every committed control
	// change after fan-out, still in per-territory commit order.
	onControl func(territory.ControlChangeEvent)

	connected atomic.Int64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewHub(cfg Config, st *store.Store) *Hub {
	cfg.applyDefaults()
	return &Hub{
		cfg:   cfg,
		store: st,
		join:  make(chan joinReq, 64),
		leave: make(chan *client, 64),
	}
}

// SetControlSink forwards control changes to a downstream consumer such
// as the event bus. Must be called before Run.
func (h *Hub) SetControlSink(fn func(territory.ControlChangeEvent)) { h.onControl = fn }

func (h *Hub) Clients() int64    { return h.connected.Load() }
func (h *Hub) Delivered() uint64 { return h.delivered.Load() }
func (h *Hub) Dropped() uint64   { return h.dropped.Load() }

// Run fans store events out until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	clients := map[*client]struct{}{}
	defer func() {
		for c := range clients {
			c.shutdown()
		}
	}()

	events := h.store.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-h.join:
			clients[req.c] = struct{}{}
			h.connected.Store(int64(len(clients)))
			req.resp <- h.snapshotMsg()
		case c := <-h.leave:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				c.shutdown()
			}
			h.connected.Store(int64(len(clients)))
		case ev := <-events:
			for _, b := range h.encodeEvent(ev) {
				for c := range clients {
					select {
					case c.out <- b:
						h.delivered.Add(1)
					default:
						// ClientDeliveryFailure: this client's queue is
						// full. Disconnect it; the publisher never blocks.
						delete(clients, c)
						c.shutdown()
						h.dropped.Add(1)
					}
				}
			}
			h.connected.Store(int64(len(clients)))
			if ev.Control != nil && h.onControl != nil {
				h.onControl(*ev.Control)
			}
		}
	}
}

// encodeEvent renders one committed store event as its wire messages, all
// tagged with the territory's commit sequence.
func (h *Hub) encodeEvent(ev store.Event) [][]byte {
	tid := ev.Influence.Territory
	name := h.territoryName(tid)
	ts := ev.Influence.Timestamp.UnixMilli()

	msgs := make([][]byte, 0, 3)

	inf := protocol.InfluenceMsg{
		Type:            protocol.TypeInfluence,
		ProtocolVersion: protocol.Version,
		TerritoryID:     int(tid),
		FactionID:       int(ev.Influence.Faction),
		Influence:       ev.NewValue,
		Delta:           ev.Influence.Delta,
		Source:          string(ev.Influence.Source),
		Seq:             ev.Seq,
		Timestamp:       ts,
	}
	if b, err := json.Marshal(inf); err == nil {
		msgs = append(msgs, b)
	}

	if ev.ContestChanged {
		contest := protocol.ContestMsg{
			Type:            protocol.TypeContest,
			ProtocolVersion: protocol.Version,
			TerritoryID:     int(tid),
			TerritoryName:   name,
			Contested:       ev.Contested,
			Seq:             ev.Seq,
			Timestamp:       ts,
		}
		if b, err := json.Marshal(contest); err == nil {
			msgs = append(msgs, b)
		}
	}

	if ev.Control != nil {
		msg := protocol.ControlChangedMsg{
			Type:            protocol.TypeControlChanged,
			ProtocolVersion: protocol.Version,
			TerritoryID:     int(tid),
			TerritoryName:   name,
			Seq:             ev.Seq,
			Timestamp:       ts,
		}
		if ev.Control.New != territory.NoFaction {
			id := int(ev.Control.New)
			msg.ControllerID = &id
			if f, ok := h.store.Faction(ev.Control.New); ok {
				msg.ControllerName = f.Name
			}
		}
		if b, err := json.Marshal(msg); err == nil {
			msgs = append(msgs, b)
		}
	}
	return msgs
}

func (h *Hub) snapshotMsg() []byte {
	snap := h.store.Snapshot()
	records := make([]protocol.TerritoryRecord, 0, len(snap))
	for _, t := range snap {
		rec := protocol.TerritoryRecord{
			TerritoryID:    int(t.ID),
			TerritoryName:  t.Name,
			Contested:      t.Contested,
			StrategicValue: t.StrategicValue,
		}
		if t.Controller != territory.NoFaction {
			id := int(t.Controller)
			rec.ControllerID = &id
		}
		if len(t.Influence) > 0 {
			rec.Influence = make(map[string]int, len(t.Influence))
			for f, v := range t.Influence {
				rec.Influence[strconv.Itoa(int(f))] = v
			}
		}
		records = append(records, rec)
	}
	b, _ := json.Marshal(protocol.InitialStateMsg{
		Type:            protocol.TypeInitialState,
		ProtocolVersion: protocol.Version,
		Territories:     records,
		Timestamp:       time.Now().UnixMilli(),
	})
	return b
}

func (h *Hub) territoryName(id territory.TerritoryID) string {
	t, err := h.store.Territory(id)
	if err != nil {
		return ""
	}
	return t.Name
}

