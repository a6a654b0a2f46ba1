package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"terrasync.gg/internal/protocol"
	"terrasync.gg/internal/store"
	"terrasync.gg/internal/territory"
)

const writeWait = 5 * time.Second

// Server upgrades HTTP requests into hub clients.
type Server struct {
	hub   *Hub
	store *store.Store
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(h *Hub, st *store.Store, logger *log.Logger) *Server {
	return &Server{
		hub:   h,
		store: st,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

type client struct {
	id   string
	conn *websocket.Conn
	out  chan []byte

	// pendingPings counts heartbeats sent without a pong in reply.
	pendingPings atomic.Int32

	closeOnce sync.Once
	done      chan struct{}
}

// shutdown is safe to call from the hub loop and from both connection
// goroutines.
func (c *client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}

		c := &client{
			id:   uuid.NewString(),
			conn: conn,
			out:  make(chan []byte, s.hub.cfg.ClientQueue),
			done: make(chan struct{}),
		}

		// Join first: the hub builds the snapshot on its own goroutine so
		// no fan-out can slip between the snapshot and the event stream.
		resp := make(chan []byte, 1)
		s.hub.join <- joinReq{c: c, resp: resp}
		snapshot := <-resp

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, snapshot); err != nil {
			s.hub.leave <- c
			return
		}

		go s.writeLoop(c)
		s.readLoop(c)
		s.hub.leave <- c
	}
}

// writeLoop is the only goroutine writing to the connection. It drains the
// outbound queue and owns the heartbeat.
func (s *Server) writeLoop(c *client) {
	heartbeat := time.NewTicker(s.hub.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.done:
			return
		case b, ok := <-c.out:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.shutdown()
				return
			}
		case <-heartbeat.C:
			if int(c.pendingPings.Load()) >= s.hub.cfg.MaxMissed {
				s.log.Printf("client %s: missed %d heartbeats, reaping", c.id, s.hub.cfg.MaxMissed)
				c.shutdown()
				return
			}
			ping, _ := json.Marshal(protocol.PingMsg{
				Type:            protocol.TypePing,
				ProtocolVersion: protocol.Version,
				Timestamp:       time.Now().UnixMilli(),
			})
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				c.shutdown()
				return
			}
			c.pendingPings.Add(1)
		}
	}
}

func (s *Server) readLoop(c *client) {
	defer c.shutdown()

	readWait := time.Duration(s.hub.cfg.MaxMissed+1) * s.hub.cfg.Heartbeat
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			s.enqueueAck(c, protocol.ActionAckMsg{
				Type:            protocol.TypeActionAck,
				ProtocolVersion: protocol.Version,
				Accepted:        false,
				Code:            protocol.ErrProtoBadRequest,
				Message:         "malformed message",
			})
			continue
		}

		switch base.Type {
		case protocol.TypePong:
			c.pendingPings.Store(0)

		case protocol.TypePing:
			var ping protocol.PingMsg
			if err := json.Unmarshal(msg, &ping); err != nil {
				continue
			}
			pong, _ := json.Marshal(protocol.PongMsg{
				Type:            protocol.TypePong,
				ProtocolVersion: protocol.Version,
				Timestamp:       ping.Timestamp,
			})
			s.enqueue(c, pong)

		case protocol.TypeAction:
			var act protocol.ActionMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				s.enqueueAck(c, protocol.ActionAckMsg{
					Type:            protocol.TypeActionAck,
					ProtocolVersion: protocol.Version,
					Accepted:        false,
					Code:            protocol.ErrProtoBadRequest,
					Message:         "malformed influence_action",
				})
				continue
			}
			s.handleAction(c, act)
		}
	}
}

// handleAction applies a player-driven influence delta and always answers
// with an explicit ack, so client UIs can report failures.
func (s *Server) handleAction(c *client, act protocol.ActionMsg) {
	ack := protocol.ActionAckMsg{
		Type:            protocol.TypeActionAck,
		ProtocolVersion: protocol.Version,
		ActionID:        act.ActionID,
		TerritoryID:     act.TerritoryID,
	}

	_, _, err := s.store.ApplyDeltaRetry(
		territory.TerritoryID(act.TerritoryID), territory.FactionID(act.FactionID),
		act.InfluenceChange, territory.SourcePlayer, s.hub.cfg.Retries,
	)
	switch {
	case err == nil:
		ack.Accepted = true
	case errors.Is(err, store.ErrUnknownTerritory):
		ack.Code = protocol.ErrInvalidTerritory
		ack.Message = err.Error()
	case errors.Is(err, store.ErrUnknownFaction):
		ack.Code = protocol.ErrInvalidFaction
		ack.Message = err.Error()
	case errors.Is(err, store.ErrContended):
		ack.Code = protocol.ErrContention
		ack.Message = "write contended, retry"
	default:
		ack.Code = protocol.ErrInternal
		ack.Message = err.Error()
	}
	s.enqueueAck(c, ack)
}

func (s *Server) enqueueAck(c *client, ack protocol.ActionAckMsg) {
	b, err := json.Marshal(ack)
	if err != nil {
		return
	}
	s.enqueue(c, b)
}

// enqueue adds to the client's own queue; a full queue means this client
// is too slow and gets dropped, same as on the fan-out path.
func (s *Server) enqueue(c *client, b []byte) {
	select {
	case c.out <- b:
	default:
		c.shutdown()
	}
}
