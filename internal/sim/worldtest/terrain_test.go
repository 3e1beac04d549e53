package worldtest

import (
	"testing"

	"scrapbox.gg/internal/protocol"
	world "scrapbox.gg/internal/sim/world"
	"scrapbox.gg/internal/sim/world/terrain"
)

var floorSlab = []protocol.Vec2{{-20, -10}, {20, -10}, {20, 0}, {-20, 0}}

func TestTerrain_DigUnderRestingObject(t *testing.T) {
	h := NewHarness(t, world.WorldConfig{ID: "dig"}, nil)
	p := h.Connect()
	p.Send(protocol.PlaceTerrain{Material: "dirt", Polygon: floorSlab})
	h.Step(2)
	if p.Count(protocol.TypeTerrainState) != 2 {
		t.Fatalf("terrain edits are broadcast after the rebuild")
	}

	frame := p.Take(world.TypeFrame, 0, 1.05)
	h.Step(40)
	if y := p.Position(frame).Y(); y < 0.8 || y > 1.2 {
		t.Fatalf("frame should rest on the floor, y=%.3f", y)
	}

	p.Send(protocol.PlaceTerrain{Material: terrain.Removal, Position: protocol.Vec2{0, 0}, Strength: 3})
	h.Step(40)
	if y := p.Position(frame).Y(); y > 0 {
		t.Fatalf("frame should drop into the crater, y=%.3f", y)
	}
	state := p.Last(protocol.TypeTerrainState).(protocol.TerrainState)
	if len(state.Regions["dirt"]) == 0 {
		t.Fatalf("dirt region should survive the crater")
	}
}

func TestTerrain_UnknownMaterialIgnored(t *testing.T) {
	h := NewHarness(t, world.WorldConfig{ID: "mat"}, nil)
	p := h.Connect()
	p.Send(protocol.PlaceTerrain{Material: "lava", Position: protocol.Vec2{0, 0}, Strength: 2})
	h.Step(2)
	if len(h.W.Terrain().Names()) != 0 {
		t.Fatalf("unknown materials must not create regions")
	}
}

func TestTerrain_SubtractOnlyTouchesOneMaterial(t *testing.T) {
	h := NewHarness(t, world.WorldConfig{ID: "sub"}, nil)
	p := h.Connect()
	p.Send(
		protocol.PlaceTerrain{Material: "dirt", Polygon: []protocol.Vec2{{-4, -1}, {0, -1}, {0, 1}, {-4, 1}}},
		protocol.PlaceTerrain{Material: "ice", Polygon: []protocol.Vec2{{0, -1}, {4, -1}, {4, 1}, {0, 1}}},
	)
	h.Step(1)
	dirt, ice := h.W.Terrain().Area("dirt"), h.W.Terrain().Area("ice")

	p.Send(protocol.PlaceTerrain{Material: "ice", Position: protocol.Vec2{0, 0}, Strength: 1, Subtract: true})
	h.Step(1)
	if h.W.Terrain().Area("dirt") != dirt {
		t.Fatalf("subtracting ice must leave dirt alone")
	}
	if h.W.Terrain().Area("ice") >= ice {
		t.Fatalf("ice should shrink")
	}
}
