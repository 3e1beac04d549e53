package world

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"scrapbox.gg/internal/protocol"
	"scrapbox.gg/internal/sim/physics"
	"scrapbox.gg/internal/sim/world/terrain"
)

type player struct {
	conn  Connection
	pinch *pinch
	ghost bool
}

type pinch struct {
	object int
	offset mgl64.Vec2
	joint  physics.MouseJoint
}

// handlePlayer drains one player's queue and returns the number of intents applied.
func (w *World) handlePlayer(p *player) int {
	msgs := p.conn.Read()
	for _, m := range msgs {
		w.applyIntent(p, m)
	}
	return len(msgs)
}

func (w *World) applyIntent(p *player, m protocol.Message) {
	switch msg := m.(type) {
	case protocol.ToggleGamePaused:
		w.paused = !w.paused

	case protocol.GameObjectPinch:
		o := w.objects[msg.ID]
		if o == nil || o.removed {
			return
		}
		w.startPinch(p, o, mgl64.Vec2(msg.Offset))

	case protocol.GameObjectRelease:
		w.clearPinch(p)

	case protocol.MouseMoved:
		o := w.pinched(p)
		if o == nil {
			return
		}
		p.pinch.joint.SetTarget(mgl64.Vec2(msg.Position).Sub(p.pinch.offset))
		p.conn.Send(w.weldMessage(o))

	case protocol.TrashObject:
		o := w.objects[msg.ID]
		if o == nil {
			return
		}
		for _, member := range w.VehicleOf(o).members {
			member.Remove()
		}

	case protocol.TakeObject:
		o, err := w.Spawn(msg.ObjectType, mgl64.Vec2(msg.Position), 0, uuid.Nil)
		if err != nil {
			w.logf("take object: %v", err)
			return
		}
		p.conn.Send(protocol.TakeObjectResponse{ID: o.ID, Offset: msg.Offset})

	case protocol.PlaceTerrain:
		w.placeTerrain(msg)

	case protocol.PinchingSetGhost:
		p.ghost = msg.Ghost
		if o := w.pinched(p); o != nil {
			if msg.Ghost {
				w.SetMode(o, ModeGhost)
			} else {
				w.SetMode(o, ModeNormal)
			}
		}

	case protocol.CommitWeld:
		o := w.pinched(p)
		if o == nil {
			return
		}
		for _, c := range w.PossibleWelds(o) {
			if err := w.Join(c.First.Object, c.First.Edge, c.Second.Object, c.Second.Edge); err != nil {
				w.logf("commit weld %d/%s to %d/%s: %v", c.First.Object.ID, c.First.Edge, c.Second.Object.ID, c.Second.Edge, err)
			}
		}
		p.conn.Send(w.weldMessage(o))

	case protocol.LockGameObject:
		o := w.pinched(p)
		if o == nil {
			return
		}
		w.clearPinch(p)
		w.SetMode(o, ModeStatic)

	case protocol.PinchingRotate:
		if o := w.pinched(p); o != nil {
			o.body.ApplyAngularImpulse(-msg.Rotation * w.cfg.PinchRotateImpulse)
		}
	}
}

func (w *World) pinched(p *player) *GameObject {
	if p.pinch == nil {
		return nil
	}
	return w.objects[p.pinch.object]
}

// startPinch grabs o with a mouse joint from the terrain body. A Static vehicle is
// released to Normal, or Ghost when the player has ghost mode on.
func (w *World) startPinch(p *player, o *GameObject, offset mgl64.Vec2) {
	w.clearPinch(p)
	if p.ghost {
		w.SetMode(o, ModeGhost)
	} else if w.ModeOf(o) == ModeStatic {
		w.SetMode(o, ModeNormal)
	}
	target := w.VehicleOf(o).CenterOfMass()
	j := w.engine.Mouse(w.terrain.Body(), o.body, target, w.cfg.PinchMaxForce)
	p.pinch = &pinch{object: o.ID, offset: offset, joint: j}
}

func (w *World) clearPinch(p *player) {
	if p.pinch == nil {
		return
	}
	if o := w.Object(p.pinch.object); o != nil && w.ModeOf(o) == ModeGhost {
		w.SetMode(o, ModeNormal)
	}
	w.engine.DestroyJoint(p.pinch.joint)
	p.pinch = nil
	p.conn.Send(protocol.ShowActivePossibleWelds{})
}

func (w *World) placeTerrain(msg protocol.PlaceTerrain) {
	name := msg.Material
	if name != terrain.Removal {
		if _, ok := w.catalogs.Materials.Defs[name]; !ok {
			w.logf("place terrain: unknown material %q", name)
			return
		}
	}
	var err error
	if len(msg.Polygon) > 0 {
		poly := make([]mgl64.Vec2, len(msg.Polygon))
		for i, p := range msg.Polygon {
			poly[i] = mgl64.Vec2(p)
		}
		err = w.terrain.Place(name, poly, !msg.Subtract)
	} else {
		err = w.terrain.PlaceCircle(name, mgl64.Vec2(msg.Position), msg.Strength, !msg.Subtract)
	}
	if err != nil {
		w.logf("place terrain %q: %v", name, err)
	}
}

func (w *World) dropDisconnected() {
	kept := w.players[:0]
	for _, p := range w.players {
		if p.conn.Disconnected() {
			w.clearPinch(p)
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(w.players); i++ {
		w.players[i] = nil
	}
	w.players = kept
}
