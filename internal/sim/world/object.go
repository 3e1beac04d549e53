package world

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"scrapbox.gg/internal/sim/catalogs"
	"scrapbox.gg/internal/sim/physics"
)

// ConnectionEdge is a named attachment point in body-local coordinates.
type ConnectionEdge struct {
	Offset mgl64.Vec2
	Hub    bool
}

// ConnectionData is one side of an active weld. Peers are referenced by id.
type ConnectionData struct {
	Peer     int
	PeerEdge string
	RefAngle float64
	joint    physics.Joint
}

type GameObject struct {
	ID   int
	UUID uuid.UUID

	part    Part
	def     catalogs.PartDef
	body    physics.Body
	vehicle int

	connections map[string]ConnectionData
	admitted    bool
	removed     bool
}

func (o *GameObject) Type() string          { return o.part.Type() }
func (o *GameObject) Part() Part            { return o.part }
func (o *GameObject) Def() catalogs.PartDef { return o.def }
func (o *GameObject) Body() physics.Body    { return o.body }
func (o *GameObject) VehicleID() int        { return o.vehicle }
func (o *GameObject) Position() mgl64.Vec2  { return o.body.Position() }
func (o *GameObject) Rotation() float64     { return o.body.Angle() }

// Remove flags the object; it is reaped at the next tick boundary.
func (o *GameObject) Remove()       { o.removed = true }
func (o *GameObject) Removed() bool { return o.removed }

func (o *GameObject) Edges() map[string]ConnectionEdge { return o.part.ConnectionEdges() }

// EdgeNames lists the object's edges in a stable order.
func (o *GameObject) EdgeNames() []string {
	edges := o.part.ConnectionEdges()
	names := make([]string, 0, len(edges))
	for name := range edges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EdgePosition is the world position of the named edge.
func (o *GameObject) EdgePosition(edge string) (mgl64.Vec2, bool) {
	e, ok := o.part.ConnectionEdges()[edge]
	if !ok {
		return mgl64.Vec2{}, false
	}
	return o.body.WorldPoint(e.Offset), true
}

func (o *GameObject) Connection(edge string) (ConnectionData, bool) {
	c, ok := o.connections[edge]
	return c, ok
}

// Connections returns a copy of the active connections keyed by local edge name.
func (o *GameObject) Connections() map[string]ConnectionData {
	out := make(map[string]ConnectionData, len(o.connections))
	for k, v := range o.connections {
		out[k] = v
	}
	return out
}

func (o *GameObject) isFrame() bool { return o.part.Type() == TypeFrame }
