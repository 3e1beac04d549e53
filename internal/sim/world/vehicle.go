package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"scrapbox.gg/internal/sim/physics"
)

type InteractionMode uint8

const (
	ModeNormal InteractionMode = iota
	ModeStatic
	ModeGhost
)

func (m InteractionMode) String() string {
	switch m {
	case ModeStatic:
		return "STATIC"
	case ModeGhost:
		return "GHOST"
	default:
		return "NORMAL"
	}
}

// Vehicle is a rigid assembly of welded objects. members[0] is the root.
type Vehicle struct {
	ID      int
	Mode    InteractionMode
	members []*GameObject
}

func (v *Vehicle) Root() *GameObject { return v.members[0] }

func (v *Vehicle) Members() []*GameObject {
	return append([]*GameObject(nil), v.members...)
}

func (v *Vehicle) MemberIDs() []int {
	ids := make([]int, len(v.members))
	for i, m := range v.members {
		ids[i] = m.ID
	}
	return ids
}

func (v *Vehicle) Contains(o *GameObject) bool { return o != nil && o.vehicle == v.ID }

func (v *Vehicle) remove(o *GameObject) {
	for i, m := range v.members {
		if m == o {
			v.members = append(v.members[:i], v.members[i+1:]...)
			return
		}
	}
}

// CenterOfMass is the mass-weighted centre of all members.
func (v *Vehicle) CenterOfMass() mgl64.Vec2 {
	var sum mgl64.Vec2
	total := 0.0
	for _, m := range v.members {
		mass := m.body.Mass()
		sum = sum.Add(m.body.WorldCenter().Mul(mass))
		total += mass
	}
	if total == 0 {
		return v.Root().Position()
	}
	return sum.Mul(1 / total)
}

func (w *World) Vehicle(id int) *Vehicle { return w.vehicles[id] }

func (w *World) VehicleOf(o *GameObject) *Vehicle {
	if o == nil {
		return nil
	}
	return w.vehicles[o.vehicle]
}

func (w *World) VehicleCount() int { return len(w.vehicles) }

// SetMode applies mode to every member of the vehicle containing o.
func (w *World) SetMode(o *GameObject, mode InteractionMode) {
	v := w.VehicleOf(o)
	if v == nil {
		return
	}
	v.Mode = mode
	bt := physics.Dynamic
	if mode == ModeStatic {
		bt = physics.Static
	}
	// The contact filter only runs when a contact is created, so existing
	// contacts are flagged again after a mode or membership change.
	for _, m := range v.members {
		if m.body.Type() != bt {
			m.body.SetType(bt)
		}
		m.body.Refilter()
	}
}

// ModeOf reports the interaction mode of the vehicle containing o.
func (w *World) ModeOf(o *GameObject) InteractionMode {
	if v := w.VehicleOf(o); v != nil {
		return v.Mode
	}
	return ModeNormal
}

// merge moves every member of from into into. into keeps its root and mode.
func (w *World) merge(into, from *Vehicle) {
	if into == from {
		return
	}
	for _, m := range from.members {
		m.vehicle = into.ID
	}
	into.members = append(into.members, from.members...)
	delete(w.vehicles, from.ID)
	w.SetMode(into.Root(), into.Mode)
}

// shouldCollide is the engine contact filter. Ghost vehicles collide with nothing
// and members of one vehicle never collide with each other.
func (w *World) shouldCollide(a, b physics.Body) bool {
	oa, _ := a.UserData().(*GameObject)
	ob, _ := b.UserData().(*GameObject)
	if oa != nil && w.ModeOf(oa) == ModeGhost {
		return false
	}
	if ob != nil && w.ModeOf(ob) == ModeGhost {
		return false
	}
	if oa != nil && ob != nil && oa.vehicle == ob.vehicle {
		return false
	}
	return true
}
