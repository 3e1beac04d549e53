// Package box2d adapts github.com/ByteArena/box2d to the physics.Engine boundary.
package box2d

import (
	"github.com/ByteArena/box2d"
	"github.com/go-gl/mathgl/mgl64"

	"scrapbox.gg/internal/sim/physics"
)

type Engine struct {
	world  *box2d.B2World
	filter physics.ContactFilter
}

func New(gravity mgl64.Vec2) *Engine {
	w := box2d.MakeB2World(vec(gravity))
	e := &Engine{world: &w}
	w.SetContactFilter(contactFilter{e: e})
	return e
}

func (e *Engine) CreateBody(def physics.BodyDef) physics.Body {
	bd := box2d.MakeB2BodyDef()
	bd.Type = bodyType(def.Type)
	bd.Position = vec(def.Position)
	bd.Angle = def.Angle
	b := &Body{data: def.UserData}
	b.b = e.world.CreateBody(&bd)
	b.b.SetUserData(b)
	return b
}

func (e *Engine) DestroyBody(b physics.Body) {
	body, ok := b.(*Body)
	if !ok || body.b == nil {
		return
	}
	e.world.DestroyBody(body.b)
	body.b = nil
}

func (e *Engine) Weld(def physics.WeldDef) physics.Joint {
	jd := box2d.MakeB2WeldJointDef()
	jd.BodyA = def.A.(*Body).b
	jd.BodyB = def.B.(*Body).b
	jd.LocalAnchorA = vec(def.AnchorA)
	jd.LocalAnchorB = vec(def.AnchorB)
	jd.ReferenceAngle = def.RefAngle
	return &Joint{j: e.world.CreateJoint(&jd), a: def.A.(*Body), b: def.B.(*Body)}
}

func (e *Engine) Mouse(ground, body physics.Body, target mgl64.Vec2, maxForce float64) physics.MouseJoint {
	jd := box2d.MakeB2MouseJointDef()
	jd.BodyA = ground.(*Body).b
	jd.BodyB = body.(*Body).b
	jd.Target = vec(target)
	jd.MaxForce = maxForce
	jd.FrequencyHz = 5
	jd.DampingRatio = 0.7
	// The ground is the terrain body; a dragged part must still collide with it.
	jd.CollideConnected = true
	j := e.world.CreateJoint(&jd)
	return &MouseJoint{Joint: Joint{j: j, a: ground.(*Body), b: body.(*Body)}}
}

func (e *Engine) DestroyJoint(j physics.Joint) {
	var handle *Joint
	switch v := j.(type) {
	case *Joint:
		handle = v
	case *MouseJoint:
		handle = &v.Joint
	}
	if handle == nil || handle.j == nil {
		return
	}
	// Destroying either body already released the joint inside box2d.
	if handle.a.b == nil || handle.b.b == nil {
		handle.j = nil
		return
	}
	e.world.DestroyJoint(handle.j)
	handle.j = nil
}

func (e *Engine) SetContactFilter(f physics.ContactFilter) { e.filter = f }

func (e *Engine) Step(dt float64, velocityIterations, positionIterations int) {
	e.world.Step(dt, velocityIterations, positionIterations)
}

type contactFilter struct{ e *Engine }

func (c contactFilter) ShouldCollide(fa, fb *box2d.B2Fixture) bool {
	if c.e.filter == nil {
		return true
	}
	a, okA := fa.GetBody().GetUserData().(*Body)
	b, okB := fb.GetBody().GetUserData().(*Body)
	if !okA || !okB {
		return true
	}
	return c.e.filter(a, b)
}

type Joint struct {
	j    box2d.B2JointInterface
	a, b *Body
}

func (j *Joint) BodyA() physics.Body { return j.a }
func (j *Joint) BodyB() physics.Body { return j.b }

type MouseJoint struct {
	Joint
}

func (m *MouseJoint) SetTarget(target mgl64.Vec2) {
	if mj, ok := m.j.(*box2d.B2MouseJoint); ok {
		mj.SetTarget(vec(target))
	}
}

func vec(v mgl64.Vec2) box2d.B2Vec2 { return box2d.MakeB2Vec2(v.X(), v.Y()) }

func fromVec(v box2d.B2Vec2) mgl64.Vec2 { return mgl64.Vec2{v.X, v.Y} }

func bodyType(t physics.BodyType) uint8 {
	if t == physics.Static {
		return box2d.B2BodyType.B2_staticBody
	}
	return box2d.B2BodyType.B2_dynamicBody
}
