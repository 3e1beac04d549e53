package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"scrapbox.gg/internal/protocol"
	"scrapbox.gg/internal/sim/catalogs"
	"scrapbox.gg/internal/sim/physics"
)

// Spawn creates an object of the given type as a singleton vehicle. Its body exists
// immediately; it joins the live registry at the next tick boundary. A nil id
// generates a fresh UUID.
func (w *World) Spawn(typ string, pos mgl64.Vec2, rotation float64, id uuid.UUID) (*GameObject, error) {
	factory, ok := partFactories[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	def, ok := w.catalogs.Parts.Defs[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no catalog entry", ErrUnknownType, typ)
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	w.nextID++
	o := &GameObject{
		ID:          w.nextID,
		UUID:        id,
		part:        factory(def),
		def:         def,
		connections: map[string]ConnectionData{},
	}
	o.body = w.engine.CreateBody(physics.BodyDef{
		Type:     physics.Dynamic,
		Position: pos,
		Angle:    rotation,
		UserData: o,
	})
	o.body.AddFixture(physics.FixtureDef{
		Shape:       shapeOf(def),
		Density:     def.Density,
		Friction:    def.Friction,
		Restitution: def.Restitution,
	})
	w.nextVeh++
	v := &Vehicle{ID: w.nextVeh, members: []*GameObject{o}}
	w.vehicles[v.ID] = v
	o.vehicle = v.ID
	w.pending = append(w.pending, o)
	return o, nil
}

func shapeOf(def catalogs.PartDef) physics.Shape {
	if def.Radius > 0 {
		return physics.Circle(def.Radius)
	}
	return physics.Box(def.Box[0], def.Box[1])
}

// ObjectByUUID finds a live or pending object.
func (w *World) ObjectByUUID(id uuid.UUID) *GameObject {
	for _, o := range w.objects {
		if o.UUID == id {
			return o
		}
	}
	for _, o := range w.pending {
		if o.UUID == id {
			return o
		}
	}
	return nil
}

func (w *World) admitPending() int {
	n := 0
	for _, o := range w.pending {
		if o.removed {
			// Never announced; release it quietly.
			w.destroy(o)
			continue
		}
		o.admitted = true
		w.objects[o.ID] = o
		w.broadcast(w.addMessage(o))
		n++
	}
	w.pending = nil
	return n
}

func (w *World) reapRemoved() int {
	n := 0
	for _, o := range w.liveObjects() {
		if !o.removed {
			continue
		}
		w.destroy(o)
		w.broadcast(protocol.RemoveGameObject{ID: o.ID})
		n++
	}
	return n
}

// destroy releases every physics resource of o and drops it from all indexes.
// Joints go before the body.
func (w *World) destroy(o *GameObject) {
	for _, p := range w.players {
		if p.pinch != nil && p.pinch.object == o.ID {
			w.clearPinch(p)
		}
	}
	for edge, c := range o.connections {
		w.engine.DestroyJoint(c.joint)
		if peer := w.Object(c.Peer); peer != nil {
			delete(peer.connections, c.PeerEdge)
		}
		delete(o.connections, edge)
	}
	if v := w.vehicles[o.vehicle]; v != nil {
		v.remove(o)
		if len(v.members) == 0 {
			delete(w.vehicles, v.ID)
		}
	}
	w.engine.DestroyBody(o.body)
	delete(w.objects, o.ID)
	o.removed = true
}

// clearAll destroys every live and pending object immediately.
func (w *World) clearAll() {
	for _, p := range w.players {
		w.clearPinch(p)
	}
	for _, o := range w.liveObjects() {
		w.destroy(o)
		w.broadcast(protocol.RemoveGameObject{ID: o.ID})
	}
	for _, o := range w.pending {
		w.destroy(o)
	}
	w.pending = nil
}
