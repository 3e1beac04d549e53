package terrain

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"scrapbox.gg/internal/sim/convex"
	"scrapbox.gg/internal/sim/physics/box2d"
)

func newField(t *testing.T) *Field {
	t.Helper()
	return New(box2d.New(mgl64.Vec2{0, -9.81}), map[string]Material{
		"dirt":  {Friction: 2, Restitution: 0.05},
		"stone": {Friction: 1, Restitution: 0.3},
	})
}

func square(x0, y0, x1, y1 float64) []mgl64.Vec2 {
	return []mgl64.Vec2{{x0, y1}, {x1, y1}, {x1, y0}, {x0, y0}}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func mustPlace(t *testing.T, f *Field, name string, poly []mgl64.Vec2, additive bool) {
	t.Helper()
	if err := f.Place(name, poly, additive); err != nil {
		t.Fatalf("Place(%q): %v", name, err)
	}
}

func TestPlace_DisjointAddThenSubtractRestores(t *testing.T) {
	f := newField(t)
	mustPlace(t, f, "dirt", square(0, 0, 4, 1), true)
	before := f.Polygons("dirt")

	mustPlace(t, f, "dirt", square(10, 0, 12, 2), true)
	if got := f.Area("dirt"); !near(got, 8) {
		t.Fatalf("area after add=%v want 8", got)
	}
	if n := len(f.Polygons("dirt")); n != 2 {
		t.Fatalf("polygons after add=%d want 2", n)
	}

	mustPlace(t, f, "dirt", square(10, 0, 12, 2), false)
	if got := f.Area("dirt"); !near(got, 4) {
		t.Fatalf("area after subtract=%v want 4", got)
	}
	after := f.Polygons("dirt")
	if len(after) != len(before) || !near(math.Abs(convex.Area(after[0])), math.Abs(convex.Area(before[0]))) {
		t.Fatalf("polygon set not restored: before=%v after=%v", before, after)
	}
}

func TestPlace_UnionAndDifferenceAreas(t *testing.T) {
	f := newField(t)
	mustPlace(t, f, "dirt", square(0, 0, 2, 2), true)
	mustPlace(t, f, "dirt", square(1, 0, 3, 2), true)
	if got := f.Area("dirt"); !near(got, 6) {
		t.Fatalf("union area=%v want 6", got)
	}
	if n := len(f.Polygons("dirt")); n != 1 {
		t.Fatalf("overlapping edits should merge, got %d polygons", n)
	}
	mustPlace(t, f, "dirt", square(-1, 1, 4, 3), false)
	if got := f.Area("dirt"); !near(got, 3) {
		t.Fatalf("difference area=%v want 3", got)
	}
}

func TestPlace_OtherRegionsUntouched(t *testing.T) {
	f := newField(t)
	mustPlace(t, f, "dirt", square(0, 0, 2, 2), true)
	mustPlace(t, f, "stone", square(0, 0, 2, 2), true)
	mustPlace(t, f, "stone", square(0, 0, 1, 2), false)
	if got := f.Area("dirt"); !near(got, 4) {
		t.Fatalf("dirt changed: %v", got)
	}
	if got := f.Area("stone"); !near(got, 2) {
		t.Fatalf("stone area=%v want 2", got)
	}
}

func TestPlace_RemovalCarvesEveryRegion(t *testing.T) {
	f := newField(t)
	mustPlace(t, f, "dirt", square(0, 0, 2, 2), true)
	mustPlace(t, f, "stone", square(2, 0, 4, 2), true)
	mustPlace(t, f, Removal, square(1, 0, 3, 2), false)
	if got := f.Area("dirt"); !near(got, 2) {
		t.Fatalf("dirt area=%v want 2", got)
	}
	if got := f.Area("stone"); !near(got, 2) {
		t.Fatalf("stone area=%v want 2", got)
	}
	if _, ok := f.Regions()[Removal]; ok {
		t.Fatalf("removal must not create a region")
	}
}

func TestRebuild_OnlyDirtyRegionsAndHoles(t *testing.T) {
	f := newField(t)
	mustPlace(t, f, "dirt", square(0, 0, 4, 4), true)
	mustPlace(t, f, "dirt", square(1, 1, 2, 2), false)

	if d := f.Dirty(); len(d) != 1 || d[0] != "dirt" {
		t.Fatalf("dirty=%v", d)
	}
	rings := f.Polygons("dirt")
	if len(rings) != 2 || !convex.IsClockwise(rings[0]) || convex.IsClockwise(rings[1]) {
		t.Fatalf("expected clockwise exterior and counter-clockwise hole, got %v", rings)
	}

	rebuilt, err := f.RebuildIfNeeded()
	if err != nil {
		t.Fatalf("RebuildIfNeeded: %v", err)
	}
	if len(rebuilt) != 1 {
		t.Fatalf("rebuilt=%v", rebuilt)
	}
	if d := f.Dirty(); len(d) != 0 {
		t.Fatalf("still dirty: %v", d)
	}

	var sum float64
	for _, p := range f.State()["dirt"] {
		if convex.Validate(p) != convex.Valid {
			t.Fatalf("piece not valid: %v", p)
		}
		sum += math.Abs(convex.Area(p))
	}
	if !near(sum, 15) {
		t.Fatalf("hole-free pieces cover %v want 15", sum)
	}

	rebuilt, err = f.RebuildIfNeeded()
	if err != nil || len(rebuilt) != 0 {
		t.Fatalf("second rebuild should be a no-op: %v %v", rebuilt, err)
	}
}

func TestReplace_RoundTripsRegions(t *testing.T) {
	f := newField(t)
	mustPlace(t, f, "dirt", square(0, 0, 4, 4), true)
	mustPlace(t, f, "dirt", square(1, 1, 2, 2), false)
	mustPlace(t, f, "stone", square(6, 0, 8, 1), true)

	g := newField(t)
	if err := g.Replace(f.Regions()); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	for _, n := range []string{"dirt", "stone"} {
		if !near(f.Area(n), g.Area(n)) {
			t.Fatalf("%s area %v != %v", n, f.Area(n), g.Area(n))
		}
	}
	if len(g.Dirty()) != 2 {
		t.Fatalf("loaded regions should be dirty: %v", g.Dirty())
	}
}

func TestPlaceCircle_Area(t *testing.T) {
	f := newField(t)
	if err := f.PlaceCircle("slime", mgl64.Vec2{0, 0}, 2, true); err != nil {
		t.Fatalf("PlaceCircle: %v", err)
	}
	// A regular 16-gon inscribed in r=2.
	want := 0.5 * 16 * 4 * math.Sin(2*math.Pi/16)
	if got := f.Area("slime"); !near(got, want) {
		t.Fatalf("area=%v want %v", got, want)
	}
}

func TestRebuild_RandomCarvesKeepFixturesCurrent(t *testing.T) {
	for seed := int64(1); seed <= 40; seed++ {
		rng := rand.New(rand.NewSource(seed))
		f := newField(t)
		mustPlace(t, f, "dirt", square(-20, -10, 20, 0), true)
		if _, err := f.RebuildIfNeeded(); err != nil {
			t.Fatalf("seed %d: initial rebuild: %v", seed, err)
		}

		for i := 0; i < 25; i++ {
			c := mgl64.Vec2{rng.Float64()*36 - 18, rng.Float64()*8 - 6}
			r := 0.5 + rng.Float64()*3
			if err := f.PlaceCircle("dirt", c, r, false); err != nil {
				t.Fatalf("seed %d carve %d: %v", seed, i, err)
			}
			if _, err := f.RebuildIfNeeded(); err != nil {
				t.Fatalf("seed %d carve %d at %v r=%.2f: rebuild: %v", seed, i, c, r, err)
			}
			if d := f.Dirty(); len(d) != 0 {
				t.Fatalf("seed %d carve %d: still dirty %v", seed, i, d)
			}

			want := f.Area("dirt")
			var got float64
			if reg := f.regions["dirt"]; reg != nil {
				for _, tri := range reg.tris {
					got += triArea(tri)
				}
				if len(reg.fixtures) != len(reg.tris) {
					t.Fatalf("seed %d carve %d: %d fixtures for %d triangles", seed, i, len(reg.fixtures), len(reg.tris))
				}
			}
			if math.Abs(got-want) > 0.02*want+0.5 {
				t.Fatalf("seed %d carve %d at %v r=%.2f: fixtures cover %.3f, terrain area %.3f", seed, i, c, r, got, want)
			}
		}
	}
}

func TestHeal_DropsSpikesAndNearCollinearPoints(t *testing.T) {
	ring := []mgl64.Vec2{
		{0, 4}, {2, 4.004}, {4, 4}, // near-collinear middle point
		{4, 0},
		{2, 0}, {2.02, -3}, {2.04, 0}, // spike
		{0, 0},
	}
	got := heal(convex.Clockwise(ring))
	if len(got) != 4 {
		t.Fatalf("heal kept %d points: %v", len(got), got)
	}
	if a := math.Abs(convex.Area(got)); math.Abs(a-16) > 0.05 {
		t.Fatalf("healed area=%v want 16", a)
	}
}

func TestSolid_DropsFixturesTheEngineCannotHull(t *testing.T) {
	tris := [][3]mgl64.Vec2{
		{{0, 0}, {0, 1}, {1, 0}},
		{{0, 0}, {0.001, 0.5}, {0.002, 1}}, // sliver
		{{0, 0}, {0.005, 0}, {0, 3}},       // short edge
	}
	got := solid(tris)
	if len(got) != 1 || got[0][2] != (mgl64.Vec2{1, 0}) {
		t.Fatalf("solid=%v", got)
	}
}
