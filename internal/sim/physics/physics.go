// Package physics is the boundary between the simulation and the rigid-body engine.
//
// The world only ever talks to these interfaces; the box2d subpackage is the production
// implementation. Handles are owned by the goroutine that owns the Engine.
package physics

import "github.com/go-gl/mathgl/mgl64"

type BodyType uint8

const (
	Static BodyType = iota
	Dynamic
)

func (t BodyType) String() string {
	if t == Static {
		return "static"
	}
	return "dynamic"
}

// Shape is either a convex polygon (Vertices, body-local) or a circle (Radius around Center).
type Shape struct {
	Vertices []mgl64.Vec2
	Radius   float64
	Center   mgl64.Vec2
}

func Box(halfW, halfH float64) Shape {
	return Shape{Vertices: []mgl64.Vec2{
		{-halfW, -halfH}, {halfW, -halfH}, {halfW, halfH}, {-halfW, halfH},
	}}
}

func Circle(radius float64) Shape { return Shape{Radius: radius} }

type FixtureDef struct {
	Shape       Shape
	Density     float64
	Friction    float64
	Restitution float64
}

type BodyDef struct {
	Type     BodyType
	Position mgl64.Vec2
	Angle    float64
	UserData any
}

// Fixture is an opaque handle to a shape attached to a body.
type Fixture interface{}

type Body interface {
	Position() mgl64.Vec2
	Angle() float64
	SetTransform(pos mgl64.Vec2, angle float64)
	WorldCenter() mgl64.Vec2
	WorldPoint(local mgl64.Vec2) mgl64.Vec2
	LinearVelocity() mgl64.Vec2
	SetLinearVelocity(v mgl64.Vec2)
	AngularVelocity() float64
	SetAngularVelocity(w float64)
	Mass() float64

	ApplyForceToCenter(f mgl64.Vec2)
	ApplyLinearImpulse(impulse, point mgl64.Vec2)
	ApplyAngularImpulse(impulse float64)

	Type() BodyType
	SetType(t BodyType)
	// Refilter reruns the contact filter for contacts the body already has and wakes it.
	Refilter()

	AddFixture(def FixtureDef) Fixture
	RemoveFixture(f Fixture)

	UserData() any
}

type Joint interface {
	BodyA() Body
	BodyB() Body
}

// MouseJoint drags BodyB towards a target point with bounded force.
type MouseJoint interface {
	Joint
	SetTarget(target mgl64.Vec2)
}

// WeldDef anchors are body-local. RefAngle is angle(B) - angle(A) at rest.
type WeldDef struct {
	A, B             Body
	AnchorA, AnchorB mgl64.Vec2
	RefAngle         float64
}

// ContactFilter decides whether two bodies may collide. It runs inside Step.
type ContactFilter func(a, b Body) bool

type Engine interface {
	CreateBody(def BodyDef) Body
	// DestroyBody releases the body and every joint attached to it.
	DestroyBody(b Body)
	Weld(def WeldDef) Joint
	Mouse(ground, body Body, target mgl64.Vec2, maxForce float64) MouseJoint
	DestroyJoint(j Joint)
	SetContactFilter(f ContactFilter)
	Step(dt float64, velocityIterations, positionIterations int)
}
