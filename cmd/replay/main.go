// Replays the influence audit trail: reads the hourly jsonl.zst files,
// re-applies every mutation in order, and reports the resulting
// standings. Useful for verifying what the live store should contain
// after an incident.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"terrasync.gg/internal/territory"
)

func main() {
	var (
		dataDir   = flag.String("data", "./data", "runtime data directory")
		onlyTerr  = flag.Int("territory", 0, "filter to one territory id (0: all)")
		onlySrc   = flag.String("source", "", "filter by source: player, ai or decay")
		margin    = flag.Int("margin", 10, "contest margin for control resolution")
		printEach = flag.Bool("v", false, "print every event, not just the summary")
	)
	flag.Parse()

	files, err := listAuditFiles(filepath.Join(*dataDir, "audit"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list audit files:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no audit files found")
		os.Exit(2)
	}

	influence := map[territory.TerritoryID]map[territory.FactionID]int{}
	var total, skipped int

	for _, path := range files {
		if err := readEvents(path, func(ev territory.InfluenceChangeEvent) {
			if *onlyTerr != 0 && int(ev.Territory) != *onlyTerr {
				skipped++
				return
			}
			if *onlySrc != "" && string(ev.Source) != *onlySrc {
				skipped++
				return
			}
			total++
			m := influence[ev.Territory]
			if m == nil {
				m = map[territory.FactionID]int{}
				influence[ev.Territory] = m
			}
			m[ev.Faction] = territory.ClampInfluence(m[ev.Faction] + ev.Delta)
			if *printEach {
				fmt.Printf("%s territory=%d faction=%d delta=%+d source=%s -> %d\n",
					ev.Timestamp.UTC().Format("15:04:05.000"), ev.Territory, ev.Faction, ev.Delta, ev.Source, m[ev.Faction])
			}
		}); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
	}

	fmt.Printf("replayed %d events (%d filtered) from %d files\n\n", total, skipped, len(files))

	ids := make([]territory.TerritoryID, 0, len(influence))
	for id := range influence {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		controller, contested := territory.Resolve(influence[id], *margin)
		state := "uncontested"
		if contested {
			state = "CONTESTED"
		}
		owner := "nobody"
		if controller != territory.NoFaction {
			owner = fmt.Sprintf("faction %d", controller)
		}
		fmt.Printf("territory %d: %s, %s, influence %s\n", id, owner, state, formatInfluence(influence[id]))
	}
}

func listAuditFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	// Hourly file names sort chronologically.
	sort.Strings(out)
	return out, nil
}

func readEvents(path string, fn func(territory.InfluenceChangeEvent)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev territory.InfluenceChangeEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("bad event line: %w", err)
		}
		fn(ev)
	}
	return sc.Err()
}

func formatInfluence(m map[territory.FactionID]int) string {
	ids := make([]territory.FactionID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d:%d", id, m[id]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
