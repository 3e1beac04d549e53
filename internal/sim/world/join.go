package world

import (
	"fmt"

	"scrapbox.gg/internal/sim/physics"
)

// Join welds firstEdge of first to secondEdge of second. At least one side must be a
// frame; when only second is, the sides are swapped so first is always the frame.
// The non-frame side creates the joint and its vehicle is absorbed by the frame's.
func (w *World) Join(first *GameObject, firstEdge string, second *GameObject, secondEdge string) error {
	if first == nil || second == nil || first == second {
		return fmt.Errorf("world: join needs two distinct objects")
	}
	if !first.isFrame() {
		first, firstEdge, second, secondEdge = second, secondEdge, first, firstEdge
	}
	if !first.isFrame() {
		return fmt.Errorf("%w: %s and %s", ErrInvalidJoin, first.Type(), second.Type())
	}
	if err := checkEdge(first, firstEdge); err != nil {
		return err
	}
	if err := checkEdge(second, secondEdge); err != nil {
		return err
	}

	joint, ref, err := second.part.CreateJoint(w, second, secondEdge, first, firstEdge)
	if err != nil {
		return err
	}
	first.connections[firstEdge] = ConnectionData{Peer: second.ID, PeerEdge: secondEdge, RefAngle: ref, joint: joint}
	second.connections[secondEdge] = ConnectionData{Peer: first.ID, PeerEdge: firstEdge, RefAngle: ref, joint: joint}
	w.merge(w.VehicleOf(first), w.VehicleOf(second))
	return nil
}

func checkEdge(o *GameObject, edge string) error {
	if _, ok := o.part.ConnectionEdges()[edge]; !ok {
		return fmt.Errorf("%w: %s has no edge %q", ErrUnknownEdge, o.Type(), edge)
	}
	if _, busy := o.connections[edge]; busy {
		return fmt.Errorf("%w: %s#%d %q", ErrEdgeInUse, o.Type(), o.ID, edge)
	}
	return nil
}

// weld snaps self onto the frame's edge and creates the joint. The relative rotation
// is the nearest quarter turn to the current one. When self belongs to another
// vehicle, that whole vehicle moves rigidly with it.
func (w *World) weld(self *GameObject, selfEdge string, frame *GameObject, frameEdge string) (physics.Joint, float64, error) {
	se, ok := self.part.ConnectionEdges()[selfEdge]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownEdge, selfEdge)
	}
	fe, ok := frame.part.ConnectionEdges()[frameEdge]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownEdge, frameEdge)
	}

	frameAngle := frame.body.Angle()
	offset := SnapQuarterTurn(frameAngle - self.body.Angle())
	angle := frameAngle - offset
	target := frame.body.WorldPoint(fe.Offset)
	pos := target.Sub(rotate(se.Offset, angle))

	if self.vehicle != frame.vehicle {
		oldPos, oldAngle := self.body.Position(), self.body.Angle()
		delta := angle - oldAngle
		for _, m := range w.VehicleOf(self).members {
			if m == self {
				continue
			}
			rel := rotate(m.body.Position().Sub(oldPos), delta)
			m.body.SetTransform(pos.Add(rel), m.body.Angle()+delta)
		}
	}
	self.body.SetTransform(pos, angle)

	joint := w.engine.Weld(physics.WeldDef{
		A:        self.body,
		B:        frame.body,
		AnchorA:  se.Offset,
		AnchorB:  fe.Offset,
		RefAngle: offset,
	})
	return joint, offset, nil
}
