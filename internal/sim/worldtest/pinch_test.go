package worldtest

import (
	"testing"

	"scrapbox.gg/internal/protocol"
	world "scrapbox.gg/internal/sim/world"
)

func restingFrame(t *testing.T, id string) (*Harness, *Player, int) {
	t.Helper()
	h := NewHarness(t, world.WorldConfig{ID: id}, nil)
	p := h.Connect()
	p.Send(protocol.PlaceTerrain{Material: "dirt", Polygon: floorSlab})
	h.Step(1)
	frame := p.Take(world.TypeFrame, 0, 1.05)
	h.Step(40)
	if y := p.Position(frame).Y(); y < 0.8 || y > 1.2 {
		t.Fatalf("frame should rest on the floor, y=%.3f", y)
	}
	return h, p, frame
}

func TestPinch_DraggedPartStaysOnTerrain(t *testing.T) {
	h, p, frame := restingFrame(t, "drag")
	p.Send(
		protocol.GameObjectPinch{ID: frame},
		protocol.MouseMoved{Position: protocol.Vec2{0, -3}},
	)
	h.Step(40)
	if y := p.Position(frame).Y(); y < 0.5 {
		t.Fatalf("pinched frame was pulled through the floor, y=%.3f", y)
	}
}

func TestGhost_PassesThroughTerrain(t *testing.T) {
	cases := []struct {
		name  string
		ghost func(h *Harness, p *Player, frame int)
	}{
		{"mode set on a resting vehicle", func(h *Harness, p *Player, frame int) {
			h.W.SetMode(h.W.Object(frame), world.ModeGhost)
		}},
		{"ghost toggled while pinched", func(h *Harness, p *Player, frame int) {
			p.Send(
				protocol.GameObjectPinch{ID: frame},
				protocol.MouseMoved{Position: protocol.Vec2{0, -3}},
			)
			h.Step(5)
			p.Send(protocol.PinchingSetGhost{Ghost: true})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, p, frame := restingFrame(t, "ghost")
			tc.ghost(h, p, frame)
			h.Step(40)
			if y := p.Position(frame).Y(); y > -2 {
				t.Fatalf("ghost frame should sink into the terrain, y=%.3f", y)
			}
		})
	}
}
