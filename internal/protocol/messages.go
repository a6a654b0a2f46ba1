package protocol

// TerritoryRecord is one entry of the initial_state snapshot.
type TerritoryRecord struct {
	TerritoryID    int            `json:"territory_id"`
	TerritoryName  string         `json:"territory_name"`
	ControllerID   *int           `json:"controller_faction_id"` // null when unowned
	Contested      bool           `json:"contested"`
	StrategicValue int            `json:"strategic_value"`
	Influence      map[string]int `json:"influence,omitempty"` // faction id -> 0..100
}

// initial_state (server -> client, on connect)
type InitialStateMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Territories     []TerritoryRecord `json:"territories"`
	Timestamp       int64             `json:"timestamp"`
}

// territory_control_changed (server -> client)
type ControlChangedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	TerritoryID     int    `json:"territory_id"`
	TerritoryName   string `json:"territory_name"`
	ControllerID    *int   `json:"controller_faction_id"` // null when control is lost, not taken
	ControllerName  string `json:"controller_name,omitempty"`
	Seq             uint64 `json:"seq"` // per-territory commit sequence
	Timestamp       int64  `json:"timestamp"`
}

// territorial_contest (server -> client)
type ContestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	TerritoryID     int    `json:"territory_id"`
	TerritoryName   string `json:"territory_name"`
	Contested       bool   `json:"contested"`
	Seq             uint64 `json:"seq"`
	Timestamp       int64  `json:"timestamp"`
}

// influence_update (server -> client): live influence bars.
type InfluenceMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	TerritoryID     int    `json:"territory_id"`
	FactionID       int    `json:"faction_id"`
	Influence       int    `json:"influence"` // post-apply value, 0..100
	Delta           int    `json:"delta"`
	Source          string `json:"source"`
	Seq             uint64 `json:"seq"`
	Timestamp       int64  `json:"timestamp"`
}

// influence_action (client -> server)
type ActionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActionID        string `json:"action_id,omitempty"` // echoed in the ack
	TerritoryID     int    `json:"territory_id"`
	FactionID       int    `json:"faction_id"`
	InfluenceChange int    `json:"influence_change"`
	StrategicValue  int    `json:"strategic_value,omitempty"`
	Timestamp       int64  `json:"timestamp"`
}

// action_ack (server -> client): explicit accept/reject for an
// influence_action. Rejections carry an E_* code; silent drops would
// desynchronize client expectations.
type ActionAckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActionID        string `json:"action_id,omitempty"`
	TerritoryID     int    `json:"territory_id"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// ping / pong (bidirectional): liveness heartbeat with timestamp echo.
type PingMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Timestamp       int64  `json:"timestamp"`
}

type PongMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Timestamp       int64  `json:"timestamp"` // echo of the ping timestamp
}
