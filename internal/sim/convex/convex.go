// Package convex splits simple polygons into convex pieces and triangles that can be
// handed to the physics engine as fixtures.
//
// Polygons are point slices in clockwise order (negative signed area in a y-up frame)
// without a repeated closing point. Three neighbouring points must not be collinear
// and edges must not cross; Clean removes the first kind of defect, Validate reports
// the rest.
package convex

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Epsilon is the distance under which two points are the same point and a point is
// considered to lie on a segment.
const Epsilon = 0.1

// MinTriangleArea drops slivers that the physics engine cannot hull.
const MinTriangleArea = 1e-3

// collinearTolerance is the distance from a line under which a middle point is dropped.
const collinearTolerance = 1e-6

var ErrNoSplit = errors.New("convex: no split point for reflex vertex")

// Diagnostic is the result of Validate. The values are bit flags.
type Diagnostic int

const (
	Valid            Diagnostic = 0
	SelfIntersecting Diagnostic = 1
	NotClockwise     Diagnostic = 2
)

func (d Diagnostic) String() string {
	switch d {
	case Valid:
		return "valid"
	case SelfIntersecting:
		return "self-intersecting"
	case NotClockwise:
		return "not-clockwise"
	case SelfIntersecting | NotClockwise:
		return "self-intersecting,not-clockwise"
	default:
		return fmt.Sprintf("diagnostic(%d)", int(d))
	}
}

// Decompose splits a clockwise simple polygon into convex polygons covering exactly the
// same area. Each returned polygon is clockwise.
//
// A reflex vertex without a valid split point means the input is malformed; the whole
// decomposition is aborted with ErrNoSplit.
func Decompose(poly []mgl64.Vec2) ([][]mgl64.Vec2, error) {
	start := Clean(poly)
	if len(start) < 3 {
		return nil, nil
	}

	var out [][]mgl64.Vec2
	queue := [][]mgl64.Vec2{start}
	limit := 64*len(start) + 64

	for steps := 0; len(queue) > 0; steps++ {
		if steps > limit {
			return nil, fmt.Errorf("%w: no convergence after %d splits", ErrNoSplit, steps)
		}
		vec := Clean(queue[0])
		queue = queue[1:]
		if len(vec) < 3 {
			continue
		}

		i, ok := firstReflex(vec)
		if !ok {
			out = append(out, vec)
			continue
		}
		a, b, err := split(vec, i)
		if err != nil {
			return nil, err
		}
		queue = append(queue, a, b)
	}
	return out, nil
}

// Triangles decomposes poly and fans every convex piece into triangles.
func Triangles(poly []mgl64.Vec2) ([][3]mgl64.Vec2, error) {
	pieces, err := Decompose(poly)
	if err != nil {
		return nil, err
	}
	var out [][3]mgl64.Vec2
	for _, p := range pieces {
		out = append(out, Triangulate(p)...)
	}
	return out, nil
}

// Triangulate fans a convex polygon from the vertex that yields the best worst-case
// triangle, dropping slivers below MinTriangleArea.
func Triangulate(poly []mgl64.Vec2) [][3]mgl64.Vec2 {
	n := len(poly)
	if n < 3 {
		return nil
	}
	best, bestScore := 0, -1.0
	for apex := 0; apex < n; apex++ {
		score := math.MaxFloat64
		for k := 1; k < n-1; k++ {
			a := math.Abs(triangleArea(poly[apex], poly[(apex+k)%n], poly[(apex+k+1)%n]))
			score = math.Min(score, a)
		}
		if score > bestScore {
			best, bestScore = apex, score
		}
	}

	out := make([][3]mgl64.Vec2, 0, n-2)
	for k := 1; k < n-1; k++ {
		t := [3]mgl64.Vec2{poly[best], poly[(best+k)%n], poly[(best+k+1)%n]}
		if math.Abs(triangleArea(t[0], t[1], t[2])) < MinTriangleArea {
			continue
		}
		out = append(out, t)
	}
	return out
}

// EarClip triangulates a clockwise simple polygon by clipping ears. Unlike Triangles
// it never fails: when no ear is left the flattest corner is cut. Triangles below
// MinTriangleArea are dropped.
func EarClip(poly []mgl64.Vec2) [][3]mgl64.Vec2 {
	ring := append([]mgl64.Vec2(nil), poly...)
	out := make([][3]mgl64.Vec2, 0, len(ring))
	keep := func(a, b, c mgl64.Vec2) {
		if -triangleArea(a, b, c) >= MinTriangleArea {
			out = append(out, [3]mgl64.Vec2{a, b, c})
		}
	}
	for len(ring) > 3 {
		n := len(ring)
		cut := -1
		for i := 0; i < n; i++ {
			if isEar(ring, i) {
				cut = i
				break
			}
		}
		if cut < 0 {
			cut = flattest(ring)
		}
		keep(ring[(cut-1+n)%n], ring[cut], ring[(cut+1)%n])
		ring = append(ring[:cut], ring[cut+1:]...)
	}
	if len(ring) == 3 {
		keep(ring[0], ring[1], ring[2])
	}
	return out
}

func isEar(ring []mgl64.Vec2, i int) bool {
	n := len(ring)
	ia, ic := (i-1+n)%n, (i+1)%n
	a, b, c := ring[ia], ring[i], ring[ic]
	if cross(a, b, c) >= 0 {
		return false
	}
	for j, p := range ring {
		if j == ia || j == i || j == ic || p == a || p == b || p == c {
			continue
		}
		if cross(a, b, p) < 0 && cross(b, c, p) < 0 && cross(c, a, p) < 0 {
			return false
		}
	}
	return true
}

func flattest(ring []mgl64.Vec2) int {
	n := len(ring)
	best, bestDist := 0, math.MaxFloat64
	for i := range ring {
		if d := distanceToLine(ring[i], ring[(i-1+n)%n], ring[(i+1)%n]); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Validate reports, without side effects, whether poly can be decomposed.
func Validate(poly []mgl64.Vec2) Diagnostic {
	n := len(poly)
	ret := Valid
	wrongWinding := false

	for i := 0; i < n; i++ {
		i2 := (i + 1) % n
		i3 := (i - 1 + n) % n

		hasRight := false
		for j := 0; j < n; j++ {
			if j == i || j == i2 {
				continue
			}
			if !hasRight && cross(poly[i], poly[i2], poly[j]) < 0 {
				hasRight = true
			}
			if j != i3 {
				j2 := (j + 1) % n
				if _, ok := hitSegment(poly[i], poly[i2], poly[j], poly[j2]); ok {
					ret = SelfIntersecting
				}
			}
		}
		if !hasRight {
			wrongWinding = true
		}
	}

	if wrongWinding {
		ret |= NotClockwise
	}
	return ret
}

// Clean coalesces neighbouring points closer than Epsilon, drops a repeated closing
// point and removes middle points of collinear triples.
func Clean(poly []mgl64.Vec2) []mgl64.Vec2 {
	out := make([]mgl64.Vec2, 0, len(poly))
	for _, p := range poly {
		if len(out) > 0 && pointsMatch(out[len(out)-1], p) {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && pointsMatch(out[0], out[len(out)-1]) {
		out = out[:len(out)-1]
	}

	for changed := true; changed && len(out) >= 3; {
		changed = false
		for i := 0; i < len(out) && len(out) >= 3; i++ {
			prev := out[(i-1+len(out))%len(out)]
			next := out[(i+1)%len(out)]
			if distanceToLine(out[i], prev, next) < collinearTolerance {
				out = append(out[:i], out[i+1:]...)
				changed = true
				i--
			}
		}
	}
	return out
}

// Area returns the signed area of poly: negative for clockwise winding.
func Area(poly []mgl64.Vec2) float64 {
	var sum float64
	for i := range poly {
		a := poly[i]
		b := poly[(i+1)%len(poly)]
		sum += a.X()*b.Y() - b.X()*a.Y()
	}
	return sum / 2
}

func IsClockwise(poly []mgl64.Vec2) bool { return Area(poly) < 0 }

// Reverse returns a copy of poly in the opposite winding.
func Reverse(poly []mgl64.Vec2) []mgl64.Vec2 {
	out := make([]mgl64.Vec2, len(poly))
	for i, p := range poly {
		out[len(poly)-1-i] = p
	}
	return out
}

// Clockwise returns poly in clockwise order, copying only when it has to flip.
func Clockwise(poly []mgl64.Vec2) []mgl64.Vec2 {
	if IsClockwise(poly) {
		return poly
	}
	return Reverse(poly)
}

func firstReflex(vec []mgl64.Vec2) (int, bool) {
	n := len(vec)
	for i := 0; i < n; i++ {
		if cross(vec[i], vec[(i+1)%n], vec[(i+2)%n]) > 0 {
			return i, true
		}
	}
	return 0, false
}

// split cuts vec along the ray p1->p2 where p2 is the reflex vertex following i.
func split(vec []mgl64.Vec2, i int) ([]mgl64.Vec2, []mgl64.Vec2, error) {
	n := len(vec)
	i1 := i
	i2 := (i + 1) % n
	p1, p2 := vec[i1], vec[i2]

	h, k := -1, -1
	var hit mgl64.Vec2
	minLen := math.MaxFloat64
	for j := 0; j < n; j++ {
		if j == i1 || j == i2 {
			continue
		}
		j2 := (j + 1) % n
		v, ok := hitRay(p1, p2, vec[j], vec[j2])
		if !ok {
			continue
		}
		if t := v.Sub(p2).LenSqr(); t < minLen {
			h, k, hit, minLen = j, j2, v, t
		}
	}
	if h < 0 {
		return nil, nil, fmt.Errorf("%w: vertex %d at (%.3f, %.3f)", ErrNoSplit, i2, p2.X(), p2.Y())
	}

	j1, j2 := h, k
	v1, v2 := vec[j1], vec[j2]

	var first, second []mgl64.Vec2
	if !pointsMatch(hit, v2) {
		first = append(first, hit)
	}
	if !pointsMatch(hit, v1) {
		second = append(second, hit)
	}

	// Walk backwards from p1 to the far end of the hit edge.
	prev := -1
	for idx := i1; ; {
		if idx != j2 {
			first = append(first, vec[idx])
		} else {
			if prev < 0 {
				return nil, nil, fmt.Errorf("%w: degenerate split at vertex %d", ErrNoSplit, i2)
			}
			if !isOnSegment(v2, vec[prev], p1) {
				first = append(first, vec[idx])
			}
			break
		}
		prev = idx
		idx = (idx - 1 + n) % n
	}
	first = Reverse(first)

	// Walk forwards from p2 to the near end of the hit edge.
	prev = -1
	for idx := i2; ; {
		if idx != j1 {
			second = append(second, vec[idx])
		} else {
			if prev < 0 {
				return nil, nil, fmt.Errorf("%w: degenerate split at vertex %d", ErrNoSplit, i2)
			}
			if !isOnSegment(v1, vec[prev], p2) {
				second = append(second, vec[idx])
			}
			break
		}
		prev = idx
		idx = (idx + 1) % n
	}
	return first, second, nil
}

// hitRay intersects the ray starting at p1 through p2 (beyond p2) with segment a-b.
func hitRay(p1, p2, a, b mgl64.Vec2) (mgl64.Vec2, bool) {
	p, ok := lineIntersection(p1, p2, a, b)
	if !ok {
		return mgl64.Vec2{}, false
	}
	if isOnSegment(p2, p1, p) && isOnSegment(p, a, b) {
		return p, true
	}
	return mgl64.Vec2{}, false
}

func hitSegment(p1, p2, a, b mgl64.Vec2) (mgl64.Vec2, bool) {
	p, ok := lineIntersection(p1, p2, a, b)
	if !ok {
		return mgl64.Vec2{}, false
	}
	if isOnSegment(p, p1, p2) && isOnSegment(p, a, b) {
		return p, true
	}
	return mgl64.Vec2{}, false
}

func lineIntersection(p1, p2, a, b mgl64.Vec2) (mgl64.Vec2, bool) {
	d1 := p2.Sub(p1)
	d2 := b.Sub(a)
	den := d1.Y()*d2.X() - d1.X()*d2.Y()
	if math.Abs(den) < 1e-12 {
		return mgl64.Vec2{}, false
	}
	w := a.Sub(p1)
	t := (d2.X()*w.Y() - d2.Y()*w.X()) / den
	return p1.Add(d1.Mul(t)), true
}

func isOnSegment(p, a, b mgl64.Vec2) bool {
	inX := (a.X()+Epsilon >= p.X() && p.X() >= b.X()-Epsilon) || (a.X()-Epsilon <= p.X() && p.X() <= b.X()+Epsilon)
	inY := (a.Y()+Epsilon >= p.Y() && p.Y() >= b.Y()-Epsilon) || (a.Y()-Epsilon <= p.Y() && p.Y() <= b.Y()+Epsilon)
	return inX && inY && distanceToLine(p, a, b) < Epsilon
}

func pointsMatch(a, b mgl64.Vec2) bool {
	return math.Abs(a.X()-b.X()) < Epsilon && math.Abs(a.Y()-b.Y()) < Epsilon
}

func distanceToLine(p, a, b mgl64.Vec2) float64 {
	d := b.Sub(a)
	l := d.Len()
	if l < 1e-12 {
		return p.Sub(a).Len()
	}
	return math.Abs(cross(a, b, p)) / l
}

// cross is the z component of (b-a)x(c-a): positive when c lies left of a->b.
func cross(a, b, c mgl64.Vec2) float64 {
	return (b.X()-a.X())*(c.Y()-a.Y()) - (b.Y()-a.Y())*(c.X()-a.X())
}

func triangleArea(a, b, c mgl64.Vec2) float64 { return cross(a, b, c) / 2 }
