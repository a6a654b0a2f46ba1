package territory

import "time"

// TerritoryID and FactionID are stable integer identities assigned at
// world initialization. Neither set changes during a session.
type TerritoryID int

type FactionID int

// NoFaction marks a territory without a controller. On the wire it is
// encoded as null, never as 0.
const NoFaction FactionID = 0

// Point is a 2D world-space anchor.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Territory is the canonical record owned by the store. All other
// components see copies.
type Territory struct {
	ID             TerritoryID
	Name           string
	Type           string // regen composite key component, e.g. "region"
	Center         Point
	Radius         float64
	StrategicValue int

	Controller FactionID
	Contested  bool
	Influence  map[FactionID]int // 0..100 per faction
}

// Clone returns a deep copy safe to hand outside the store.
func (t Territory) Clone() Territory {
	inf := make(map[FactionID]int, len(t.Influence))
	for f, v := range t.Influence {
		inf[f] = v
	}
	t.Influence = inf
	return t
}

// Faction is a static roster entry. The color token is opaque to the
// engine; it is carried for clients only.
type Faction struct {
	ID          FactionID
	Name        string
	Color       string
	Personality Personality
}

// Personality weights govern the decision loop. Values are 0..1.
type Personality struct {
	Aggression  float64 `yaml:"aggression"`
	Expansion   float64 `yaml:"expansion"`
	Negotiation float64 `yaml:"negotiation"`
}

// Source tags who produced an influence delta.
type Source string

const (
	SourcePlayer Source = "player"
	SourceAI     Source = "ai"
	SourceDecay  Source = "decay"
)

// InfluenceChangeEvent is one atomic influence mutation. Applied to the
// store, appended to the audit log, then broadcast; not otherwise retained.
type InfluenceChangeEvent struct {
	Territory TerritoryID `json:"territory_id"`
	Faction   FactionID   `json:"faction_id"`
	Delta     int         `json:"delta"`
	Source    Source      `json:"source"`
	Timestamp time.Time   `json:"ts"`
}

// ControlChangeEvent fires when a territory's controller changes.
// Old/New are NoFaction for the unowned side of a transition.
type ControlChangeEvent struct {
	Territory TerritoryID `json:"territory_id"`
	Old       FactionID   `json:"old_controller"`
	New       FactionID   `json:"new_controller"`
	Contested bool        `json:"contested"`
	Timestamp time.Time   `json:"ts"`
}

// ClampInfluence bounds a raw influence value to the 0..100 scale.
func ClampInfluence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
