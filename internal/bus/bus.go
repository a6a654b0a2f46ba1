// Package bus runs an embedded NATS server as the in-process event bus
// between the engine and loosely-coupled consumers such as the
// regeneration dispatcher.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"terrasync.gg/internal/territory"
)

// ControlSubject carries ControlChangeEvents, one subject per territory so
// subscribers keep per-territory publish order.
const ControlSubject = "territory.control"

func controlSubjectFor(id territory.TerritoryID) string {
	return fmt.Sprintf("%s.%d", ControlSubject, id)
}

type Bus struct {
	srv  *server.Server
	conn *nats.Conn
}

// NewEmbedded starts a loopback NATS server on a random port and connects
// to it.
func NewEmbedded() (*Bus, error) {
	srv, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("nats server: %w", err)
	}
	srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		return nil, fmt.Errorf("nats server not ready for connections")
	}
	conn, err := nats.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Bus{srv: srv, conn: conn}, nil
}

// PublishControl emits one control-change event on its territory subject.
func (b *Bus) PublishControl(ev territory.ControlChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.conn.Publish(controlSubjectFor(ev.Territory), data)
}

// SubscribeControl delivers every control-change event, any territory.
// Handler errors are the subscriber's problem; delivery is fire-and-forget.
func (b *Bus) SubscribeControl(h func(territory.ControlChangeEvent)) (*nats.Subscription, error) {
	return b.conn.Subscribe(ControlSubject+".>", func(m *nats.Msg) {
		var ev territory.ControlChangeEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			return
		}
		h(ev)
	})
}

// Flush waits for published messages to reach the server. Used by tests
// and shutdown.
func (b *Bus) Flush() error { return b.conn.Flush() }

func (b *Bus) Close() {
	if b.conn != nil {
		_ = b.conn.Drain()
		b.conn.Close()
	}
	if b.srv != nil {
		b.srv.Shutdown()
		b.srv.WaitForShutdown()
	}
}
