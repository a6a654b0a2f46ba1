package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"terrasync.gg/internal/protocol"
)

// Load/soak client: joins as a faction, pushes random influence actions,
// answers heartbeats, and verifies the per-territory ordering guarantee
// on everything it receives.
func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		faction = flag.Int("faction", 1, "faction id to act for")
		rate    = flag.Duration("rate", 2*time.Second, "interval between influence actions")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Pongs come from the read loop and actions from the ticker
	// goroutine; gorilla allows one concurrent writer.
	var wmu sync.Mutex
	writeJSON := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteJSON(v)
	}

	territoriesCh := make(chan []int, 1)
	go sendActions(logger, writeJSON, territoriesCh, *faction, *rate)

	lastSeq := map[int]uint64{}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}

		switch base.Type {
		case protocol.TypeInitialState:
			var init protocol.InitialStateMsg
			if err := json.Unmarshal(msg, &init); err != nil {
				continue
			}
			ids := make([]int, 0, len(init.Territories))
			for _, t := range init.Territories {
				ids = append(ids, t.TerritoryID)
			}
			logger.Printf("snapshot: %d territories", len(ids))
			territoriesCh <- ids

		case protocol.TypePing:
			var ping protocol.PingMsg
			if err := json.Unmarshal(msg, &ping); err != nil {
				continue
			}
			_ = writeJSON(protocol.PongMsg{
				Type:            protocol.TypePong,
				ProtocolVersion: protocol.Version,
				Timestamp:       ping.Timestamp,
			})

		case protocol.TypeInfluence:
			var inf protocol.InfluenceMsg
			if err := json.Unmarshal(msg, &inf); err != nil {
				continue
			}
			checkSeq(logger, lastSeq, inf.TerritoryID, inf.Seq)

		case protocol.TypeControlChanged:
			var cc protocol.ControlChangedMsg
			if err := json.Unmarshal(msg, &cc); err != nil {
				continue
			}
			checkSeq(logger, lastSeq, cc.TerritoryID, cc.Seq)
			owner := "nobody"
			if cc.ControllerName != "" {
				owner = cc.ControllerName
			}
			logger.Printf("%s now held by %s (seq=%d)", cc.TerritoryName, owner, cc.Seq)

		case protocol.TypeContest:
			var ct protocol.ContestMsg
			if err := json.Unmarshal(msg, &ct); err != nil {
				continue
			}
			checkSeq(logger, lastSeq, ct.TerritoryID, ct.Seq)

		case protocol.TypeActionAck:
			var ack protocol.ActionAckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if !ack.Accepted {
				logger.Printf("action %s rejected: %s %s", ack.ActionID, ack.Code, ack.Message)
			}
		}
	}
}

func sendActions(logger *log.Logger, writeJSON func(any) error, territoriesCh <-chan []int, faction int, rate time.Duration) {
	territories := <-territoriesCh
	if len(territories) == 0 {
		logger.Printf("empty snapshot, nothing to act on")
		return
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	tick := time.NewTicker(rate)
	defer tick.Stop()

	for n := 1; ; n++ {
		<-tick.C
		act := protocol.ActionMsg{
			Type:            protocol.TypeAction,
			ProtocolVersion: protocol.Version,
			ActionID:        fmt.Sprintf("bot_%d", n),
			TerritoryID:     territories[r.Intn(len(territories))],
			FactionID:       faction,
			InfluenceChange: r.Intn(21) - 5,
			Timestamp:       time.Now().UnixMilli(),
		}
		if err := writeJSON(act); err != nil {
			logger.Printf("send action: %v", err)
			return
		}
	}
}

// Sequences for one territory must never go backwards across any message
// type; the server promises commit order end to end.
func checkSeq(logger *log.Logger, last map[int]uint64, territoryID int, seq uint64) {
	if prev, ok := last[territoryID]; ok && seq < prev {
		logger.Printf("ORDER VIOLATION territory=%d seq=%d after %d", territoryID, seq, prev)
	}
	last[territoryID] = seq
}
