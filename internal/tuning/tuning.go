package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	// Control resolution.
	ContestMargin int `yaml:"contest_margin"`
	LockWaitMs    int `yaml:"lock_wait_ms"`

	// Director (strategic tick).
	StrategicTickSec   int `yaml:"strategic_tick_sec"`
	DecisionDeadlineMs int `yaml:"decision_deadline_ms"`
	DecayPerTick       int `yaml:"decay_per_tick"`

	// Broadcast hub.
	HeartbeatSec    int `yaml:"heartbeat_sec"`
	HeartbeatMisses int `yaml:"heartbeat_misses"`
	ClientQueue     int `yaml:"client_queue"`

	// Regeneration dispatcher.
	RegenRetries   int `yaml:"regen_retries"`
	RegenBackoffMs int `yaml:"regen_backoff_ms"`
	RegenTimeoutMs int `yaml:"regen_timeout_ms"`

	WorldGen WorldGen `yaml:"worldgen"`
}

// WorldGen seeds the fixed territory roster when no explicit roster file
// is given.
type WorldGen struct {
	Seed        int64   `yaml:"seed"`
	Territories int     `yaml:"territories"`
	Extent      float64 `yaml:"extent"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		ContestMargin:      10,
		LockWaitMs:         50,
		StrategicTickSec:   5,
		DecisionDeadlineMs: 500,
		DecayPerTick:       1,
		HeartbeatSec:       10,
		HeartbeatMisses:    3,
		ClientQueue:        256,
		RegenRetries:       3,
		RegenBackoffMs:     250,
		RegenTimeoutMs:     5000,
		WorldGen: WorldGen{
			Seed:        1337,
			Territories: 24,
			Extent:      2000,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) LockWait() time.Duration         { return time.Duration(t.LockWaitMs) * time.Millisecond }
func (t Tuning) StrategicTick() time.Duration    { return time.Duration(t.StrategicTickSec) * time.Second }
func (t Tuning) DecisionDeadline() time.Duration { return time.Duration(t.DecisionDeadlineMs) * time.Millisecond }
func (t Tuning) Heartbeat() time.Duration        { return time.Duration(t.HeartbeatSec) * time.Second }
func (t Tuning) RegenBackoff() time.Duration     { return time.Duration(t.RegenBackoffMs) * time.Millisecond }
func (t Tuning) RegenTimeout() time.Duration     { return time.Duration(t.RegenTimeoutMs) * time.Millisecond }
