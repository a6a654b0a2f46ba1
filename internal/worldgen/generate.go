// Package worldgen builds the fixed territory roster procedurally when no
// explicit roster file is provided. Generation is deterministic per seed.
package worldgen

import (
	"fmt"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"terrasync.gg/internal/territory"
)

var regionTypes = []string{"region", "stronghold", "outpost", "resource_field"}

// Generate lays count territories on a ring-and-jitter pattern inside the
// given extent. Strategic value and type come from noise fields so maps
// differ per seed but are reproducible.
func Generate(seed int64, count int, extent float64) []territory.Territory {
	if count <= 0 {
		count = 16
	}
	if extent <= 0 {
		extent = 2000
	}

	valueNoise := opensimplex.NewNormalized(seed)
	typeNoise := opensimplex.NewNormalized(seed + 1)
	jitter := opensimplex.NewNormalized(seed + 2)

	out := make([]territory.Territory, 0, count)
	rings := int(math.Ceil(math.Sqrt(float64(count))))
	idx := 0
	for ring := 1; idx < count && ring <= rings; ring++ {
		ringR := extent * float64(ring) / float64(rings+1)
		slots := ring * 6
		for s := 0; s < slots && idx < count; s++ {
			angle := 2 * math.Pi * float64(s) / float64(slots)
			jx := (jitter.Eval2(float64(ring), float64(s)) - 0.5) * extent * 0.08
			jy := (jitter.Eval2(float64(s), float64(ring)) - 0.5) * extent * 0.08
			cx := ringR*math.Cos(angle) + jx
			cy := ringR*math.Sin(angle) + jy

			nv := valueNoise.Eval2(cx/extent, cy/extent)
			// Central territories skew more valuable.
			centrality := 1 - math.Hypot(cx, cy)/extent
			value := 1 + int(math.Round(nv*5+centrality*4))
			if value < 1 {
				value = 1
			}
			if value > 10 {
				value = 10
			}

			tn := typeNoise.Eval2(cx/extent, cy/extent)
			typ := regionTypes[int(tn*float64(len(regionTypes)))%len(regionTypes)]

			idx++
			out = append(out, territory.Territory{
				ID:             territory.TerritoryID(idx),
				Name:           fmt.Sprintf("%s-%02d", typeLabel(typ), idx),
				Type:           typ,
				Center:         territory.Point{X: cx, Y: cy},
				Radius:         extent * 0.05 * (1 + nv),
				StrategicValue: value,
			})
		}
	}
	return out
}

func typeLabel(typ string) string {
	switch typ {
	case "stronghold":
		return "Bastion"
	case "outpost":
		return "Outpost"
	case "resource_field":
		return "Field"
	default:
		return "Sector"
	}
}
