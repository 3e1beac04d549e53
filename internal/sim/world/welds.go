package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"scrapbox.gg/internal/protocol"
)

// Edges that are not hubs must face each other to weld: the dot product of their
// outward directions stays below this.
const facingDot = -0.7

type EdgeRef struct {
	Object *GameObject
	Edge   string
	Pos    mgl64.Vec2
}

type WeldCandidate struct {
	First, Second EdgeRef
}

// PossibleWelds pairs the free edges of o's vehicle with free edges of other
// objects in weld range. Each edge appears in at most one pair.
func (w *World) PossibleWelds(o *GameObject) []WeldCandidate {
	v := w.VehicleOf(o)
	if v == nil {
		return nil
	}
	used := map[*GameObject]map[string]bool{}
	take := func(obj *GameObject, edge string) {
		if used[obj] == nil {
			used[obj] = map[string]bool{}
		}
		used[obj][edge] = true
	}
	isUsed := func(obj *GameObject, edge string) bool { return used[obj][edge] }

	others := w.liveObjects()
	var out []WeldCandidate
	for _, m := range v.members {
		for _, me := range m.EdgeNames() {
			if _, busy := m.connections[me]; busy || isUsed(m, me) {
				continue
			}
			mp, _ := m.EdgePosition(me)
			for _, x := range others {
				if x.vehicle == v.ID || x.removed || (!m.isFrame() && !x.isFrame()) {
					continue
				}
				found := false
				for _, xe := range x.EdgeNames() {
					if _, busy := x.connections[xe]; busy || isUsed(x, xe) {
						continue
					}
					xp, _ := x.EdgePosition(xe)
					if mp.Sub(xp).Len() >= w.cfg.WeldDistance || !edgesFace(m, me, x, xe) {
						continue
					}
					out = append(out, WeldCandidate{
						First:  EdgeRef{Object: m, Edge: me, Pos: mp},
						Second: EdgeRef{Object: x, Edge: xe, Pos: xp},
					})
					take(m, me)
					take(x, xe)
					found = true
					break
				}
				if found {
					break
				}
			}
		}
	}
	return out
}

func edgesFace(a *GameObject, ae string, b *GameObject, be string) bool {
	ea := a.part.ConnectionEdges()[ae]
	eb := b.part.ConnectionEdges()[be]
	if ea.Hub || eb.Hub {
		return true
	}
	if ea.Offset.Len() == 0 || eb.Offset.Len() == 0 {
		return true
	}
	da := rotate(ea.Offset.Normalize(), a.body.Angle())
	db := rotate(eb.Offset.Normalize(), b.body.Angle())
	return da.Dot(db) < facingDot
}

func (w *World) weldMessage(o *GameObject) protocol.ShowActivePossibleWelds {
	cands := w.PossibleWelds(o)
	msg := protocol.ShowActivePossibleWelds{Welds: make([]protocol.PossibleWeld, 0, len(cands))}
	for _, c := range cands {
		msg.Welds = append(msg.Welds, protocol.PossibleWeld{
			First:  protocol.Vec2(c.First.Pos),
			Second: protocol.Vec2(c.Second.Pos),
		})
	}
	return msg
}
