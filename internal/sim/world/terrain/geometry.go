package terrain

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/peterstace/simplefeatures/geom"

	"scrapbox.gg/internal/sim/convex"
)

const (
	brushSegments = 16
	maxCutDepth   = 32

	// healGrid is the snapping step for boolean-op output.
	healGrid = 1.0 / 1024

	// healTolerance is the distance from the neighbours' line under which a point is dropped.
	healTolerance = 0.01

	// minFixtureEdge keeps triangles the physics engine can hull.
	minFixtureEdge = 0.01
)

// Brush approximates a disc as a polygon.
func Brush(center mgl64.Vec2, radius float64) []mgl64.Vec2 {
	out := make([]mgl64.Vec2, brushSegments)
	for i := range out {
		a := -2 * math.Pi * float64(i) / brushSegments
		out[i] = center.Add(mgl64.Vec2{math.Cos(a), math.Sin(a)}.Mul(radius))
	}
	return out
}

func ringOf(points []mgl64.Vec2) (geom.LineString, error) {
	flat := make([]float64, 0, 2*len(points)+2)
	for _, p := range points {
		flat = append(flat, p.X(), p.Y())
	}
	flat = append(flat, points[0].X(), points[0].Y())
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
}

func polygonOf(exterior []mgl64.Vec2, holes ...[]mgl64.Vec2) (geom.Polygon, error) {
	if len(exterior) < 3 {
		return geom.Polygon{}, fmt.Errorf("polygon needs 3 points, got %d", len(exterior))
	}
	ext, err := ringOf(exterior)
	if err != nil {
		return geom.Polygon{}, err
	}
	rings := []geom.LineString{ext}
	for _, h := range holes {
		if len(h) < 3 {
			continue
		}
		ring, err := ringOf(h)
		if err != nil {
			return geom.Polygon{}, err
		}
		rings = append(rings, ring)
	}
	return geom.NewPolygon(rings)
}

func pointsOf(ls geom.LineString) []mgl64.Vec2 {
	seq := ls.Coordinates()
	n := seq.Length()
	if n > 1 {
		first, last := seq.GetXY(0), seq.GetXY(n-1)
		if first == last {
			n--
		}
	}
	out := make([]mgl64.Vec2, n)
	for i := 0; i < n; i++ {
		xy := seq.GetXY(i)
		out[i] = mgl64.Vec2{xy.X, xy.Y}
	}
	return out
}

// polygonsOf flattens the areal parts of a boolean-op result.
func polygonsOf(g geom.Geometry) []geom.Polygon {
	if g.IsEmpty() {
		return nil
	}
	switch g.Type() {
	case geom.TypePolygon:
		p, _ := g.AsPolygon()
		return []geom.Polygon{p}
	case geom.TypeMultiPolygon:
		mp, _ := g.AsMultiPolygon()
		out := make([]geom.Polygon, 0, mp.NumPolygons())
		for i := 0; i < mp.NumPolygons(); i++ {
			out = append(out, mp.PolygonN(i))
		}
		return out
	case geom.TypeGeometryCollection:
		gc, _ := g.AsGeometryCollection()
		var out []geom.Polygon
		for i := 0; i < gc.NumGeometries(); i++ {
			out = append(out, polygonsOf(gc.GeometryN(i))...)
		}
		return out
	}
	return nil
}

func multiOf(polys []geom.Polygon) (geom.Geometry, error) {
	if len(polys) == 0 {
		return geom.Geometry{}, nil
	}
	mp, err := geom.NewMultiPolygon(polys)
	if err != nil {
		return geom.Geometry{}, err
	}
	return mp.AsGeometry(), nil
}

func polygonArea(p geom.Polygon) float64 {
	a := math.Abs(convex.Area(pointsOf(p.ExteriorRing())))
	for i := 0; i < p.NumInteriorRings(); i++ {
		a -= math.Abs(convex.Area(pointsOf(p.InteriorRingN(i))))
	}
	return a
}

func bounds(points []mgl64.Vec2) (lo, hi mgl64.Vec2) {
	lo = mgl64.Vec2{math.Inf(1), math.Inf(1)}
	hi = mgl64.Vec2{math.Inf(-1), math.Inf(-1)}
	for _, p := range points {
		lo = mgl64.Vec2{math.Min(lo.X(), p.X()), math.Min(lo.Y(), p.Y())}
		hi = mgl64.Vec2{math.Max(hi.X(), p.X()), math.Max(hi.Y(), p.Y())}
	}
	return lo, hi
}

func rect(x0, y0, x1, y1 float64) (geom.Geometry, error) {
	p, err := polygonOf([]mgl64.Vec2{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}})
	if err != nil {
		return geom.Geometry{}, err
	}
	return p.AsGeometry(), nil
}

// withoutHoles cuts p vertically through its holes until every piece is a simple
// polygon, then returns the exteriors in clockwise order.
func withoutHoles(p geom.Polygon, depth int) ([][]mgl64.Vec2, error) {
	if p.NumInteriorRings() == 0 {
		ext := pointsOf(p.ExteriorRing())
		if len(ext) < 3 {
			return nil, nil
		}
		return [][]mgl64.Vec2{convex.Clockwise(ext)}, nil
	}
	if depth > maxCutDepth {
		return nil, fmt.Errorf("terrain: hole split did not converge")
	}

	lo, hi := bounds(pointsOf(p.ExteriorRing()))
	hlo, hhi := bounds(pointsOf(p.InteriorRingN(0)))
	cut := (hlo.X() + hhi.X()) / 2
	lo, hi = lo.Sub(mgl64.Vec2{1, 1}), hi.Add(mgl64.Vec2{1, 1})

	var out [][]mgl64.Vec2
	for _, xs := range [][2]float64{{lo.X(), cut}, {cut, hi.X()}} {
		side, err := rect(xs[0], lo.Y(), xs[1], hi.Y())
		if err != nil {
			return nil, fmt.Errorf("terrain: hole split: %w", err)
		}
		half, err := geom.Intersection(p.AsGeometry(), side)
		if err != nil {
			return nil, fmt.Errorf("terrain: hole split: %w", err)
		}
		for _, piece := range polygonsOf(half) {
			sub, err := withoutHoles(piece, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	return out, nil
}

// heal snaps ring to a fine grid and strips the near-collinear points and spikes
// that repeated boolean ops leave behind.
func heal(ring []mgl64.Vec2) []mgl64.Vec2 {
	out := make([]mgl64.Vec2, len(ring))
	for i, p := range ring {
		out[i] = mgl64.Vec2{
			math.Round(p.X()/healGrid) * healGrid,
			math.Round(p.Y()/healGrid) * healGrid,
		}
	}
	out = convex.Clean(out)
	for changed := true; changed && len(out) > 3; {
		changed = false
		for i := 0; i < len(out) && len(out) > 3; i++ {
			n := len(out)
			prev, next := out[(i-1+n)%n], out[(i+1)%n]
			if offLine(out[i], prev, next) < healTolerance || prev.Sub(next).Len() < convex.Epsilon {
				out = append(out[:i], out[i+1:]...)
				changed = true
				i--
			}
		}
	}
	return convex.Clean(out)
}

func offLine(p, a, b mgl64.Vec2) float64 {
	d := b.Sub(a)
	l := d.Len()
	if l < 1e-12 {
		return p.Sub(a).Len()
	}
	return math.Abs(d.X()*(p.Y()-a.Y())-d.Y()*(p.X()-a.X())) / l
}

// solid drops triangles with an edge or area too small for a fixture.
func solid(tris [][3]mgl64.Vec2) [][3]mgl64.Vec2 {
	out := tris[:0]
	for _, t := range tris {
		if triArea(t) < convex.MinTriangleArea {
			continue
		}
		if t[0].Sub(t[1]).Len() < minFixtureEdge ||
			t[1].Sub(t[2]).Len() < minFixtureEdge ||
			t[2].Sub(t[0]).Len() < minFixtureEdge {
			continue
		}
		out = append(out, t)
	}
	return out
}

func triArea(t [3]mgl64.Vec2) float64 { return math.Abs(convex.Area(t[:])) }

// covers reports whether tris add up to want within the loss slivers account for.
func covers(tris [][3]mgl64.Vec2, want float64) bool {
	var got float64
	for _, t := range tris {
		got += triArea(t)
	}
	return math.Abs(got-want) <= 0.01*want+0.05
}
