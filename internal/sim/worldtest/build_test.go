package worldtest

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"scrapbox.gg/internal/protocol"
	world "scrapbox.gg/internal/sim/world"
)

var floatGravity = mgl64.Vec2{0, -1e-9}

func TestBuild_FrameAndWheelThroughIntents(t *testing.T) {
	h := NewHarness(t, world.WorldConfig{ID: "build", Gravity: floatGravity}, nil)
	p := h.Connect()
	if p.Count(protocol.TypeTerrainState) != 1 {
		t.Fatalf("a new player gets the terrain first")
	}

	frame := p.Take(world.TypeFrame, 0, 0)
	wheel := p.Take(world.TypeWheel, 5, 5)

	p.Send(
		protocol.PinchingSetGhost{Ghost: true},
		protocol.GameObjectPinch{ID: wheel},
	)
	h.Step(2)
	if got := p.Poses[wheel].Mode; got != world.ModeGhost.String() {
		t.Fatalf("pinched wheel mode %q, want GHOST", got)
	}

	p.Send(protocol.MouseMoved{Position: protocol.Vec2{0, -1.2}})
	h.Step(60)
	if d := p.Position(wheel).Sub(mgl64.Vec2{0, -1.2}).Len(); d > 0.3 {
		t.Fatalf("mouse joint should drag the wheel near the target, still %.2f away", d)
	}
	if _, ok := p.Last(protocol.TypeShowActivePossibleWelds).(protocol.ShowActivePossibleWelds); !ok {
		t.Fatalf("moving a pinched object reports weld candidates")
	}

	p.Send(protocol.CommitWeld{})
	h.Step(1)
	fo, wo := h.W.Object(frame), h.W.Object(wheel)
	if !h.W.VehicleOf(fo).Contains(wo) {
		t.Fatalf("commit should weld the wheel to the frame")
	}
	if c, ok := wo.Connection(world.EdgeCenter); !ok || c.Peer != frame || c.PeerEdge != "down" {
		t.Fatalf("wheel connection %+v", c)
	}

	// Modes show up in the next tick's MoveGameObject.
	p.Send(protocol.GameObjectRelease{})
	h.Step(2)
	if p.Poses[frame].Mode != "NORMAL" || p.Poses[wheel].Mode != "NORMAL" {
		t.Fatalf("release returns a ghost vehicle to normal: %q %q", p.Poses[frame].Mode, p.Poses[wheel].Mode)
	}

	p.Send(protocol.GameObjectPinch{ID: frame}, protocol.LockGameObject{})
	h.Step(2)
	if p.Poses[frame].Mode != "STATIC" || p.Poses[wheel].Mode != "STATIC" {
		t.Fatalf("lock applies to the whole vehicle")
	}
	if d := p.Position(wheel).Sub(p.Position(frame)).Len(); math.Abs(d-1) > 0.05 {
		t.Fatalf("wheel should sit on the frame's down edge, distance %.3f", d)
	}
}

func TestTrash_RemovesWholeVehicle(t *testing.T) {
	h := NewHarness(t, world.WorldConfig{ID: "trash", Gravity: floatGravity}, nil)
	p := h.Connect()
	frame := p.Take(world.TypeFrame, 0, 0)
	balloon := p.Take(world.TypeBalloon, 0, 3)
	other := p.Take(world.TypeFrame, 8, 0)

	if err := h.W.Join(h.W.Object(balloon), world.EdgeCenter, h.W.Object(frame), "up"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	p.Send(protocol.TrashObject{ID: balloon})
	h.Step(2)

	if !p.Removed[frame] || !p.Removed[balloon] {
		t.Fatalf("both members should be removed: %v", p.Removed)
	}
	if p.Removed[other] || h.W.Object(other) == nil {
		t.Fatalf("unrelated objects stay")
	}
	if h.W.VehicleCount() != 1 {
		t.Fatalf("vehicles %d", h.W.VehicleCount())
	}
}

func TestSecondPlayerSeesExistingObjects(t *testing.T) {
	h := NewHarness(t, world.WorldConfig{ID: "late", Gravity: floatGravity}, nil)
	a := h.Connect()
	id := a.Take(world.TypeFrame, 2, 2)

	b := h.Connect()
	if _, ok := b.Poses[id]; !ok {
		t.Fatalf("late joiner should get AddGameObject for live objects")
	}
	a.Disconnect()
	h.Step(1)
	if h.W.PlayerCount() != 1 {
		t.Fatalf("disconnected players are dropped, have %d", h.W.PlayerCount())
	}
}
