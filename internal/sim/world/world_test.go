package world

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"scrapbox.gg/internal/protocol"
	"scrapbox.gg/internal/sim/catalogs"
	"scrapbox.gg/internal/sim/physics/box2d"
)

// Near-zero gravity keeps bodies where tests put them.
var stillGravity = mgl64.Vec2{0, -1e-9}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	cfg := WorldConfig{ID: "TEST", Gravity: stillGravity}
	cfg.applyDefaults()
	w, err := New(cfg, catalogs.Defaults(), box2d.New(cfg.Gravity))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func mustSpawn(t *testing.T, w *World, typ string, x, y, rot float64) *GameObject {
	t.Helper()
	o, err := w.Spawn(typ, mgl64.Vec2{x, y}, rot, uuid.Nil)
	if err != nil {
		t.Fatalf("Spawn %s: %v", typ, err)
	}
	return o
}

func step(t *testing.T, w *World, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := w.StepOnce(); err != nil {
			t.Fatalf("StepOnce: %v", err)
		}
	}
}

type fakeConn struct {
	in     []protocol.Message
	out    []protocol.Message
	closed bool
}

func (c *fakeConn) Read() []protocol.Message {
	m := c.in
	c.in = nil
	return m
}

func (c *fakeConn) Send(m protocol.Message) { c.out = append(c.out, m) }
func (c *fakeConn) Disconnected() bool      { return c.closed }

func (c *fakeConn) count(typ string) int {
	n := 0
	for _, m := range c.out {
		if m.MessageType() == typ {
			n++
		}
	}
	return n
}

func nearVec(a, b mgl64.Vec2) bool { return a.Sub(b).Len() < 1e-3 }

func TestSpawn_UnknownType(t *testing.T) {
	w := newTestWorld(t)
	if _, err := w.Spawn("hovercraft", mgl64.Vec2{}, 0, uuid.Nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestSpawn_EveryCatalogTypeHasAFactory(t *testing.T) {
	w := newTestWorld(t)
	for _, typ := range catalogs.Defaults().Parts.PartIDs() {
		o := mustSpawn(t, w, typ, 0, 0, 0)
		if o.Type() != typ {
			t.Fatalf("spawned %s, got type %s", typ, o.Type())
		}
		if v := w.VehicleOf(o); v == nil || len(v.Members()) != 1 || v.Root() != o {
			t.Fatalf("%s should start as a singleton vehicle", typ)
		}
	}
	if got, want := len(PartTypes()), len(catalogs.Defaults().Parts.PartIDs()); got != want {
		t.Fatalf("PartTypes=%d catalog=%d", got, want)
	}
}

func TestStep_AdmitsThenReaps(t *testing.T) {
	w := newTestWorld(t)
	conn := &fakeConn{}
	w.AddPlayer(conn)

	o := mustSpawn(t, w, TypeFrame, 0, 0, 0)
	if w.Object(o.ID) != o {
		t.Fatalf("pending object must be reachable by id")
	}
	if w.Metrics().Objects != 0 {
		t.Fatalf("not admitted before the tick")
	}
	step(t, w, 1)
	if m := w.Metrics(); m.Objects != 1 || m.Pending != 0 || m.Vehicles != 1 {
		t.Fatalf("metrics after admit: %+v", m)
	}
	if conn.count(protocol.TypeAddGameObject) != 1 {
		t.Fatalf("expected one AddGameObject, got %+v", conn.out)
	}

	o.Remove()
	step(t, w, 1)
	if w.Object(o.ID) != nil || w.VehicleCount() != 0 {
		t.Fatalf("object should be reaped with its vehicle")
	}
	if conn.count(protocol.TypeRemoveGameObject) != 1 {
		t.Fatalf("expected one RemoveGameObject")
	}
}

func TestStep_PausedDoesNoIntegration(t *testing.T) {
	cfg := WorldConfig{ID: "TEST"}
	cfg.applyDefaults()
	w, err := New(cfg, catalogs.Defaults(), box2d.New(cfg.Gravity))
	if err != nil {
		t.Fatal(err)
	}
	o := mustSpawn(t, w, TypeFrame, 0, 10, 0)
	step(t, w, 2)
	if o.Position().Y() >= 10 {
		t.Fatalf("gravity should move an unpaused body, y=%v", o.Position().Y())
	}
	if got := w.PhysicsSteps(); got != uint64(2*cfg.Substeps) {
		t.Fatalf("steps=%d", got)
	}

	w.SetPaused(true)
	pos, rot, steps := o.Position(), o.Rotation(), w.PhysicsSteps()
	step(t, w, 3)
	if o.Position() != pos || o.Rotation() != rot {
		t.Fatalf("paused tick moved the body: %v -> %v", pos, o.Position())
	}
	if w.PhysicsSteps() != steps {
		t.Fatalf("paused tick stepped physics")
	}
	if w.CurrentTick() != 5 {
		t.Fatalf("tick counter still advances while paused, got %d", w.CurrentTick())
	}
}

func TestContactFilter(t *testing.T) {
	w := newTestWorld(t)
	a := mustSpawn(t, w, TypeFrame, 0, 0, 0)
	b := mustSpawn(t, w, TypeWheel, 5, 0, 0)
	ground := w.Terrain().Body()

	if !w.shouldCollide(a.Body(), b.Body()) || !w.shouldCollide(a.Body(), ground) {
		t.Fatalf("separate normal vehicles collide")
	}
	w.SetMode(b, ModeGhost)
	if w.shouldCollide(a.Body(), b.Body()) || w.shouldCollide(ground, b.Body()) {
		t.Fatalf("ghost collides with nothing")
	}
	w.SetMode(b, ModeNormal)
	if err := w.Join(a, "right", b, EdgeCenter); err != nil {
		t.Fatal(err)
	}
	if w.shouldCollide(a.Body(), b.Body()) {
		t.Fatalf("members of one vehicle never collide")
	}
}

func TestExplode_CarvesTerrainPushesAndArms(t *testing.T) {
	w := newTestWorld(t)
	if err := w.Terrain().Place("dirt", []mgl64.Vec2{{-5, -5}, {-5, 0}, {5, 0}, {5, -5}}, true); err != nil {
		t.Fatal(err)
	}
	box := mustSpawn(t, w, TypeFrame, 1.5, 1.5, 0)
	tnt := mustSpawn(t, w, TypeTNT, -2, 1.5, 0)
	bullet := mustSpawn(t, w, TypeBullet, -0.5, 2.5, 0)
	step(t, w, 1)

	before := w.Terrain().Area("dirt")
	w.Explode(mgl64.Vec2{0, 0}, 1)
	if after := w.Terrain().Area("dirt"); after > before-5 {
		t.Fatalf("explosion should carve about half a radius-2 disc: %v -> %v", before, after)
	}
	if v := box.Body().LinearVelocity(); v.X() <= 0 || v.Y() <= 0 {
		t.Fatalf("box should be pushed away from the blast, v=%v", v)
	}
	if v := bullet.Body().LinearVelocity(); v.Len() > 1e-3 {
		t.Fatalf("bullets are not pushed, v=%v", v)
	}
	if !tnt.Part().(*TNT).Armed {
		t.Fatalf("tnt in range should be armed")
	}
}

func TestTNT_FuseExplodesAndRemoves(t *testing.T) {
	w := newTestWorld(t)
	if err := w.Terrain().Place("stone", []mgl64.Vec2{{-5, -5}, {-5, 0}, {5, 0}, {5, -5}}, true); err != nil {
		t.Fatal(err)
	}
	tnt := mustSpawn(t, w, TypeTNT, 0, 0.5, 0)
	part := tnt.Part().(*TNT)
	part.Fuse = 2
	part.Arm()
	before := w.Terrain().Area("stone")

	step(t, w, 2)
	if !tnt.Removed() {
		t.Fatalf("tnt should flag itself removed when the fuse runs out")
	}
	step(t, w, 1)
	if w.Object(tnt.ID) != nil {
		t.Fatalf("tnt should be reaped")
	}
	if w.Terrain().Area("stone") >= before {
		t.Fatalf("explosion should carve the terrain")
	}
}

func TestParts_TickBehaviour(t *testing.T) {
	w := newTestWorld(t)
	b := mustSpawn(t, w, TypeBullet, 0, 0, 0)
	b.Part().(*Bullet).Remaining = 1
	s := mustSpawn(t, w, TypePositionSensor, 3, 4, 0)
	p := mustSpawn(t, w, TypePropeller, -10, 0, math.Pi/2)
	step(t, w, 2)

	if w.Object(b.ID) != nil {
		t.Fatalf("bullet should expire")
	}
	if got := s.Part().(*PositionSensor).Reading(); !nearVec(got, mgl64.Vec2{3, 4}) {
		t.Fatalf("sensor reading %v", got)
	}
	// Rotated a quarter turn, local up points to -x.
	if v := p.Body().LinearVelocity(); v.X() >= 0 {
		t.Fatalf("propeller should push along its local up, v=%v", v)
	}
}

func TestMathUnit_EvaluateAndPayload(t *testing.T) {
	m := &MathUnit{basePart: basePart{TypeMathUnit}, Ops: []MathOp{OpAdd, OpMul, OpDiv}}
	if got := m.Evaluate(1, 2, 4, 3); got != 4 {
		t.Fatalf("(1+2)*4/3 = %v", got)
	}
	if got := m.Evaluate(1, 2, 4, 0); got != 0 {
		t.Fatalf("division by zero yields zero, got %v", got)
	}

	var back MathUnit
	if err := back.Load(m.Save()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(back.Ops) != 3 || back.Ops[2] != OpDiv {
		t.Fatalf("ops %v", back.Ops)
	}
	if err := back.Load([]byte{0, 0, 0, 5, 0, 0, 0, 1}); err == nil {
		t.Fatalf("expected error for a short payload")
	}
	if err := back.Load([]byte{0, 0, 0, 1, 0, 0, 0, 9}); err == nil {
		t.Fatalf("expected error for an unknown op")
	}
}
