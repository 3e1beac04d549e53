package box2d

import (
	"github.com/ByteArena/box2d"
	"github.com/go-gl/mathgl/mgl64"

	"scrapbox.gg/internal/sim/physics"
)

type Body struct {
	b    *box2d.B2Body
	data any
}

func (b *Body) Position() mgl64.Vec2 { return fromVec(b.b.GetPosition()) }
func (b *Body) Angle() float64       { return b.b.GetAngle() }

func (b *Body) SetTransform(pos mgl64.Vec2, angle float64) {
	b.b.SetTransform(vec(pos), angle)
	b.b.SetAwake(true)
}

func (b *Body) WorldCenter() mgl64.Vec2 { return fromVec(b.b.GetWorldCenter()) }

func (b *Body) WorldPoint(local mgl64.Vec2) mgl64.Vec2 {
	return fromVec(b.b.GetWorldPoint(vec(local)))
}

func (b *Body) LinearVelocity() mgl64.Vec2      { return fromVec(b.b.GetLinearVelocity()) }
func (b *Body) SetLinearVelocity(v mgl64.Vec2)  { b.b.SetLinearVelocity(vec(v)) }
func (b *Body) AngularVelocity() float64        { return b.b.GetAngularVelocity() }
func (b *Body) SetAngularVelocity(w float64)    { b.b.SetAngularVelocity(w) }
func (b *Body) Mass() float64                   { return b.b.GetMass() }
func (b *Body) ApplyForceToCenter(f mgl64.Vec2) { b.b.ApplyForceToCenter(vec(f), true) }
func (b *Body) ApplyAngularImpulse(imp float64) { b.b.ApplyAngularImpulse(imp, true) }

func (b *Body) ApplyLinearImpulse(impulse, point mgl64.Vec2) {
	b.b.ApplyLinearImpulse(vec(impulse), vec(point), true)
}

func (b *Body) Type() physics.BodyType {
	if b.b.GetType() == box2d.B2BodyType.B2_staticBody {
		return physics.Static
	}
	return physics.Dynamic
}

func (b *Body) SetType(t physics.BodyType) {
	if b.Type() == t {
		return
	}
	b.b.SetType(bodyType(t))
	b.b.SetAwake(true)
}

func (b *Body) Refilter() {
	for f := b.b.GetFixtureList(); f != nil; f = f.M_next {
		f.Refilter()
	}
	if b.b.GetType() != box2d.B2BodyType.B2_staticBody {
		b.b.SetAwake(true)
	}
}

func (b *Body) AddFixture(def physics.FixtureDef) physics.Fixture {
	fd := box2d.MakeB2FixtureDef()
	fd.Density = def.Density
	fd.Friction = def.Friction
	fd.Restitution = def.Restitution
	if len(def.Shape.Vertices) >= 3 {
		poly := box2d.MakeB2PolygonShape()
		verts := make([]box2d.B2Vec2, len(def.Shape.Vertices))
		for i, v := range def.Shape.Vertices {
			verts[i] = vec(v)
		}
		poly.Set(verts, len(verts))
		fd.Shape = &poly
	} else {
		circle := box2d.MakeB2CircleShape()
		circle.M_radius = def.Shape.Radius
		circle.M_p = vec(def.Shape.Center)
		fd.Shape = &circle
	}
	return b.b.CreateFixtureFromDef(&fd)
}

func (b *Body) RemoveFixture(f physics.Fixture) {
	if fx, ok := f.(*box2d.B2Fixture); ok && b.b != nil {
		b.b.DestroyFixture(fx)
	}
}

func (b *Body) UserData() any { return b.data }
