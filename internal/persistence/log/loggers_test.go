package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"terrasync.gg/internal/territory"
)

func TestInfluenceLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	lg := NewInfluenceLogger(dir)

	want := []territory.InfluenceChangeEvent{
		{Territory: 1, Faction: 2, Delta: 10, Source: territory.SourcePlayer, Timestamp: time.Now().UTC()},
		{Territory: 1, Faction: 3, Delta: -4, Source: territory.SourceDecay, Timestamp: time.Now().UTC()},
		{Territory: 7, Faction: 2, Delta: 6, Source: territory.SourceAI, Timestamp: time.Now().UTC()},
	}
	for _, ev := range want {
		if err := lg.WriteInfluence(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := lg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ents, err := os.ReadDir(filepath.Join(dir, "audit"))
	if err != nil {
		t.Fatalf("read audit dir: %v", err)
	}
	if len(ents) != 1 || !strings.HasSuffix(ents[0].Name(), ".jsonl.zst") {
		t.Fatalf("audit dir entries = %v", ents)
	}

	f, err := os.Open(filepath.Join(dir, "audit", ents[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var got []territory.InfluenceChangeEvent
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var ev territory.InfluenceChangeEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		got = append(got, ev)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}

	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Territory != want[i].Territory || got[i].Faction != want[i].Faction ||
			got[i].Delta != want[i].Delta || got[i].Source != want[i].Source {
			t.Fatalf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
