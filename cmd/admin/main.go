// Inspects a server's sqlite database offline: faction roster, territory
// standings and per-territory influence. Issues only reads; WAL mode
// keeps it safe to point at a live database.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory")
		dbPath  = flag.String("db", "", "sqlite db path (default: <data>/territory.db)")
	)
	flag.Parse()

	cmd := "standings"
	if flag.NArg() > 0 {
		cmd = strings.TrimSpace(flag.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "territory.db")
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch cmd {
	case "standings":
		standings(db)
	case "factions":
		factions(db)
	case "influence":
		influence(db)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want standings, factions or influence)\n", cmd)
		os.Exit(2)
	}
}

type territoryRow struct {
	ID             int     `db:"id"`
	Name           string  `db:"name"`
	Type           string  `db:"type"`
	StrategicValue int     `db:"strategic_value"`
	Controller     int     `db:"controller"`
	Contested      int     `db:"contested"`
	Radius         float64 `db:"radius"`
}

type factionRow struct {
	ID          int     `db:"id"`
	Name        string  `db:"name"`
	Color       string  `db:"color"`
	Aggression  float64 `db:"aggression"`
	Expansion   float64 `db:"expansion"`
	Negotiation float64 `db:"negotiation"`
}

type influenceRow struct {
	TerritoryID int `db:"territory_id"`
	FactionID   int `db:"faction_id"`
	Value       int `db:"value"`
}

func standings(db *sqlx.DB) {
	var terrs []territoryRow
	if err := db.Select(&terrs, `SELECT id, name, type, strategic_value, controller, contested, radius FROM territories ORDER BY id`); err != nil {
		fatal("territories:", err)
	}
	names := factionNames(db)

	held := map[int]int{}
	contested := 0
	for _, t := range terrs {
		owner := "nobody"
		if t.Controller != 0 {
			owner = names[t.Controller]
			held[t.Controller]++
		}
		state := ""
		if t.Contested != 0 {
			state = "  [contested]"
			contested++
		}
		fmt.Printf("%3d  %-16s %-14s sv=%-2d  %s%s\n", t.ID, t.Name, t.Type, t.StrategicValue, owner, state)
	}

	fmt.Printf("\n%d territories, %d contested\n", len(terrs), contested)
	ids := make([]int, 0, len(held))
	for id := range held {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Printf("  %-16s holds %d\n", names[id], held[id])
	}
}

func factions(db *sqlx.DB) {
	var rows []factionRow
	if err := db.Select(&rows, `SELECT id, name, color, aggression, expansion, negotiation FROM factions ORDER BY id`); err != nil {
		fatal("factions:", err)
	}
	for _, f := range rows {
		fmt.Printf("%3d  %-16s %s  aggression=%.2f expansion=%.2f negotiation=%.2f\n",
			f.ID, f.Name, f.Color, f.Aggression, f.Expansion, f.Negotiation)
	}
}

func influence(db *sqlx.DB) {
	var rows []influenceRow
	if err := db.Select(&rows, `SELECT territory_id, faction_id, value FROM influence WHERE value > 0 ORDER BY territory_id, faction_id`); err != nil {
		fatal("influence:", err)
	}
	names := factionNames(db)
	cur := -1
	for _, r := range rows {
		if r.TerritoryID != cur {
			if cur != -1 {
				fmt.Println()
			}
			cur = r.TerritoryID
			fmt.Printf("territory %d:", cur)
		}
		fmt.Printf("  %s=%d", names[r.FactionID], r.Value)
	}
	if cur != -1 {
		fmt.Println()
	}
}

func factionNames(db *sqlx.DB) map[int]string {
	var rows []factionRow
	if err := db.Select(&rows, `SELECT id, name, color, aggression, expansion, negotiation FROM factions`); err != nil {
		fatal("factions:", err)
	}
	out := make(map[int]string, len(rows))
	for _, f := range rows {
		out[f.ID] = f.Name
	}
	return out
}

func fatal(msg string, err error) {
	fmt.Fprintln(os.Stderr, msg, err)
	os.Exit(1)
}
