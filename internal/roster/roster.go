// Package roster loads the static faction and territory definitions the
// engine runs with. Both sets are fixed at startup.
package roster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"terrasync.gg/internal/territory"
)

type factionFile struct {
	Factions []factionDef `yaml:"factions"`
}

type factionDef struct {
	ID          int                   `yaml:"id"`
	Name        string                `yaml:"name"`
	Color       string                `yaml:"color"`
	Personality territory.Personality `yaml:"personality"`
}

type territoryFile struct {
	Territories []territoryDef `yaml:"territories"`
}

type territoryDef struct {
	ID             int             `yaml:"id"`
	Name           string          `yaml:"name"`
	Type           string          `yaml:"type"`
	Center         territory.Point `yaml:"center"`
	Radius         float64         `yaml:"radius"`
	StrategicValue int             `yaml:"strategic_value"`
}

// LoadFactions reads the faction roster. Personalities are validated into
// the 0..1 range because the decision loop treats them as probabilistic
// weights.
func LoadFactions(path string) ([]territory.Faction, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f factionFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("factions.yaml: %w", err)
	}
	if len(f.Factions) == 0 {
		return nil, fmt.Errorf("factions.yaml: empty roster")
	}
	out := make([]territory.Faction, 0, len(f.Factions))
	for _, d := range f.Factions {
		if d.ID <= 0 {
			return nil, fmt.Errorf("faction %q: id must be positive", d.Name)
		}
		if bad(d.Personality.Aggression) || bad(d.Personality.Expansion) || bad(d.Personality.Negotiation) {
			return nil, fmt.Errorf("faction %q: personality weights must be in [0,1]", d.Name)
		}
		out = append(out, territory.Faction{
			ID:          territory.FactionID(d.ID),
			Name:        d.Name,
			Color:       d.Color,
			Personality: d.Personality,
		})
	}
	return out, nil
}

// LoadTerritories reads an explicit territory roster. Optional; worldgen
// covers the procedural case.
func LoadTerritories(path string) ([]territory.Territory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f territoryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("territories.yaml: %w", err)
	}
	out := make([]territory.Territory, 0, len(f.Territories))
	for _, d := range f.Territories {
		if d.ID <= 0 {
			return nil, fmt.Errorf("territory %q: id must be positive", d.Name)
		}
		typ := d.Type
		if typ == "" {
			typ = "region"
		}
		out = append(out, territory.Territory{
			ID:             territory.TerritoryID(d.ID),
			Name:           d.Name,
			Type:           typ,
			Center:         d.Center,
			Radius:         d.Radius,
			StrategicValue: d.StrategicValue,
		})
	}
	return out, nil
}

func bad(v float64) bool { return v < 0 || v > 1 }
