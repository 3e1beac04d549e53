package box2d

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"scrapbox.gg/internal/sim/physics"
)

func dropBox(e *Engine, at mgl64.Vec2) physics.Body {
	b := e.CreateBody(physics.BodyDef{Type: physics.Dynamic, Position: at})
	b.AddFixture(physics.FixtureDef{Shape: physics.Box(0.5, 0.5), Density: 1, Friction: 0.5})
	return b
}

func ground(e *Engine) physics.Body {
	g := e.CreateBody(physics.BodyDef{Type: physics.Static})
	g.AddFixture(physics.FixtureDef{Shape: physics.Shape{Vertices: []mgl64.Vec2{
		{-10, -1}, {10, -1}, {10, 0}, {-10, 0},
	}}, Friction: 1})
	return g
}

func TestEngine_GravityAndGround(t *testing.T) {
	e := New(mgl64.Vec2{0, -9.81})
	ground(e)
	b := dropBox(e, mgl64.Vec2{0, 3})
	for i := 0; i < 240; i++ {
		e.Step(1.0/60, 8, 3)
	}
	y := b.Position().Y()
	if y < 0.3 || y > 0.7 {
		t.Fatalf("box should rest on the ground, y=%v", y)
	}
}

func TestEngine_ContactFilterLetsBodiesPass(t *testing.T) {
	e := New(mgl64.Vec2{0, -9.81})
	ground(e)
	b := dropBox(e, mgl64.Vec2{0, 3})
	e.SetContactFilter(func(a, c physics.Body) bool { return false })
	for i := 0; i < 120; i++ {
		e.Step(1.0/60, 8, 3)
	}
	if y := b.Position().Y(); y > -1 {
		t.Fatalf("box should fall through the ground, y=%v", y)
	}
}

func TestEngine_WeldHoldsOffset(t *testing.T) {
	e := New(mgl64.Vec2{0, -9.81})
	a := dropBox(e, mgl64.Vec2{0, 5})
	b := dropBox(e, mgl64.Vec2{1, 5})
	j := e.Weld(physics.WeldDef{A: b, B: a, AnchorA: mgl64.Vec2{-0.5, 0}, AnchorB: mgl64.Vec2{0.5, 0}})
	for i := 0; i < 60; i++ {
		e.Step(1.0/60, 8, 3)
	}
	if d := b.Position().Sub(a.Position()).Len(); d < 0.95 || d > 1.05 {
		t.Fatalf("welded bodies drifted apart: %v", d)
	}
	e.DestroyJoint(j)
	e.DestroyBody(a)
	// Joint already released; destroying again must be a no-op.
	e.DestroyJoint(j)
}

func TestEngine_StaticTypeFreezes(t *testing.T) {
	e := New(mgl64.Vec2{0, -9.81})
	b := dropBox(e, mgl64.Vec2{0, 5})
	b.SetType(physics.Static)
	for i := 0; i < 30; i++ {
		e.Step(1.0/60, 8, 3)
	}
	if y := b.Position().Y(); y != 5 {
		t.Fatalf("static body moved: y=%v", y)
	}
	if b.Type() != physics.Static {
		t.Fatalf("type=%v", b.Type())
	}
}
