package worldgen

import "testing"

func TestGenerate_DeterministicPerSeed(t *testing.T) {
	a := Generate(42, 24, 2000)
	b := Generate(42, 24, 2000)
	if len(a) != 24 || len(b) != 24 {
		t.Fatalf("want 24 territories, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Name != b[i].Name || a[i].Type != b[i].Type ||
			a[i].Center != b[i].Center || a[i].Radius != b[i].Radius ||
			a[i].StrategicValue != b[i].StrategicValue {
			t.Fatalf("territory %d differs across runs with same seed: %+v vs %+v", i, a[i], b[i])
		}
	}

	c := Generate(43, 24, 2000)
	same := 0
	for i := range a {
		if a[i].Center == c[i].Center {
			same++
		}
	}
	if same == len(a) {
		t.Fatalf("different seeds produced identical maps")
	}
}

func TestGenerate_RosterShape(t *testing.T) {
	terrs := Generate(7, 30, 1500)
	seen := map[int]bool{}
	for _, tr := range terrs {
		if seen[int(tr.ID)] {
			t.Fatalf("duplicate territory id %d", tr.ID)
		}
		seen[int(tr.ID)] = true
		if tr.StrategicValue < 1 || tr.StrategicValue > 10 {
			t.Fatalf("territory %d: strategic value %d out of range", tr.ID, tr.StrategicValue)
		}
		if tr.Radius <= 0 {
			t.Fatalf("territory %d: non-positive radius", tr.ID)
		}
		if tr.Name == "" || tr.Type == "" {
			t.Fatalf("territory %d: missing name or type", tr.ID)
		}
	}
}
