package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeInitialState   = "initial_state"
	TypeControlChanged = "territory_control_changed"
	TypeContest        = "territorial_contest"
	TypeInfluence      = "influence_update"
	TypeAction         = "influence_action"
	TypeActionAck      = "action_ack"
	TypePing           = "ping"
	TypePong           = "pong"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
