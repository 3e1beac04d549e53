package worldtest

import (
	"testing"

	"scrapbox.gg/internal/protocol"
	"scrapbox.gg/internal/sim/catalogs"
	world "scrapbox.gg/internal/sim/world"
)

func TestDeterminism_SameIntentsSamePoses(t *testing.T) {
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	cfg := world.WorldConfig{ID: "det", TickRateHz: 20}

	run := func() map[int]protocol.MoveGameObject {
		h := NewHarness(t, cfg, cats)
		p := h.Connect()
		p.Send(protocol.PlaceTerrain{Material: "dirt", Polygon: floorSlab})
		h.Step(1)
		a := p.Take(world.TypeFrame, -1, 4)
		b := p.Take(world.TypeFrame, 1.2, 7)
		p.Take(world.TypeBalloon, 6, 2)
		if err := h.W.Join(h.W.Object(b), "left", h.W.Object(a), "right"); err != nil {
			t.Fatalf("Join: %v", err)
		}
		p.Send(protocol.PlaceTerrain{Material: "stone", Position: protocol.Vec2{3, 0}, Strength: 2})
		h.Step(80)
		return p.Poses
	}

	first, second := run(), run()
	if len(first) != len(second) || len(first) != 3 {
		t.Fatalf("object sets differ: %d vs %d", len(first), len(second))
	}
	for id, pa := range first {
		pb, ok := second[id]
		if !ok {
			t.Fatalf("object %d missing in second run", id)
		}
		if pa != pb {
			t.Fatalf("object %d diverged: %+v vs %+v", id, pa, pb)
		}
	}
}
