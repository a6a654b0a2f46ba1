package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	raw := []byte("contest_margin: 25\nstrategic_tick_sec: 2\nworldgen:\n  seed: 99\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	tune, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.ContestMargin != 25 {
		t.Fatalf("contest_margin = %d", tune.ContestMargin)
	}
	if tune.StrategicTick() != 2*time.Second {
		t.Fatalf("strategic tick = %v", tune.StrategicTick())
	}
	if tune.WorldGen.Seed != 99 {
		t.Fatalf("seed = %d", tune.WorldGen.Seed)
	}
	// Untouched keys keep their defaults.
	def := Defaults()
	if tune.HeartbeatSec != def.HeartbeatSec || tune.RegenRetries != def.RegenRetries {
		t.Fatalf("defaults lost: %+v", tune)
	}
	if tune.WorldGen.Territories != def.WorldGen.Territories {
		t.Fatalf("nested default lost: %+v", tune.WorldGen)
	}
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}
