// Package terrain keeps destructible terrain as named material regions and derives
// static physics fixtures for them on demand.
package terrain

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/peterstace/simplefeatures/geom"

	"scrapbox.gg/internal/sim/convex"
	"scrapbox.gg/internal/sim/physics"
)

// Removal is the material name of edits that erase terrain of every material.
const Removal = ""

var ErrInvalidEdit = errors.New("terrain: invalid edit polygon")

type Material struct {
	Friction    float64
	Restitution float64
}

var defaultMaterial = Material{Friction: 1}

type region struct {
	shape    geom.Geometry
	pieces   [][]mgl64.Vec2
	tris     [][3]mgl64.Vec2
	fixtures []physics.Fixture
	dirty    bool
}

// Field owns every terrain region and the single static body carrying their fixtures.
// It is not safe for concurrent use.
type Field struct {
	body      physics.Body
	materials map[string]Material
	regions   map[string]*region
}

func New(engine physics.Engine, materials map[string]Material) *Field {
	if materials == nil {
		materials = map[string]Material{}
	}
	return &Field{
		body:      engine.CreateBody(physics.BodyDef{Type: physics.Static}),
		materials: materials,
		regions:   map[string]*region{},
	}
}

// Body is the static body that holds terrain fixtures. Mouse joints use it as ground.
func (f *Field) Body() physics.Body { return f.body }

// Place combines poly into the named region: union when additive, difference
// otherwise. The Removal material subtracts from every region.
func (f *Field) Place(name string, poly []mgl64.Vec2, additive bool) error {
	edit, err := polygonOf(convex.Clean(poly))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}
	if name == Removal {
		for _, n := range f.Names() {
			if err := f.combine(n, edit.AsGeometry(), false); err != nil {
				return err
			}
		}
		return nil
	}
	return f.combine(name, edit.AsGeometry(), additive)
}

// PlaceCircle is Place with a disc brush.
func (f *Field) PlaceCircle(name string, center mgl64.Vec2, radius float64, additive bool) error {
	if radius <= 0 {
		return nil
	}
	return f.Place(name, Brush(center, radius), additive)
}

func (f *Field) combine(name string, edit geom.Geometry, additive bool) error {
	r := f.regions[name]
	if r == nil {
		if !additive {
			return nil
		}
		r = &region{}
		f.regions[name] = r
	}

	var (
		next geom.Geometry
		err  error
	)
	if additive {
		next, err = geom.Union(r.shape, edit)
	} else {
		next, err = geom.Difference(r.shape, edit)
	}
	if err != nil {
		return fmt.Errorf("terrain: combine %q: %w", name, err)
	}
	shape, err := multiOf(polygonsOf(next))
	if err != nil {
		return fmt.Errorf("terrain: combine %q: %w", name, err)
	}
	r.shape = shape
	r.dirty = true
	return nil
}

// Dirty lists regions whose polygons changed since their last rebuild.
func (f *Field) Dirty() []string {
	var out []string
	for _, n := range f.Names() {
		if f.regions[n].dirty {
			out = append(out, n)
		}
	}
	return out
}

// RebuildIfNeeded replaces the fixtures of every dirty region. A region whose
// polygons cannot be split stays dirty with its previous fixtures and is retried on
// the next call; its error is returned after the remaining regions were rebuilt.
func (f *Field) RebuildIfNeeded() (rebuilt []string, err error) {
	var errs []error
	for _, name := range f.Dirty() {
		r := f.regions[name]

		pieces, tris, perr := triangulate(r.shape)
		if perr != nil {
			errs = append(errs, fmt.Errorf("terrain: rebuild %q: %w", name, perr))
			continue
		}
		r.dirty = false

		for _, fx := range r.fixtures {
			f.body.RemoveFixture(fx)
		}
		r.fixtures = r.fixtures[:0]
		mat, ok := f.materials[name]
		if !ok {
			mat = defaultMaterial
		}
		for _, t := range tris {
			r.fixtures = append(r.fixtures, f.body.AddFixture(physics.FixtureDef{
				Shape:       physics.Shape{Vertices: t[:]},
				Friction:    mat.Friction,
				Restitution: mat.Restitution,
			}))
		}
		r.pieces = pieces
		r.tris = tris
		rebuilt = append(rebuilt, name)

		if len(r.fixtures) == 0 && r.shape.IsEmpty() {
			delete(f.regions, name)
		}
	}
	return rebuilt, errors.Join(errs...)
}

func triangulate(shape geom.Geometry) ([][]mgl64.Vec2, [][3]mgl64.Vec2, error) {
	var (
		pieces [][]mgl64.Vec2
		tris   [][3]mgl64.Vec2
	)
	for _, p := range polygonsOf(shape) {
		simple, err := withoutHoles(p, 0)
		if err != nil {
			return nil, nil, err
		}
		for _, s := range simple {
			s = heal(s)
			if len(s) < 3 {
				continue
			}
			want := math.Abs(convex.Area(s))
			if want < convex.MinTriangleArea {
				continue
			}
			// Ear clipping takes over when decomposition fails or loses area.
			t, err := convex.Triangles(s)
			if err != nil || !covers(t, want) {
				t = convex.EarClip(s)
			}
			t = solid(t)
			if len(t) == 0 {
				continue
			}
			pieces = append(pieces, s)
			tris = append(tris, t...)
		}
	}
	return pieces, tris, nil
}

// Names returns region names in sorted order.
func (f *Field) Names() []string {
	out := make([]string, 0, len(f.regions))
	for n := range f.regions {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Area is the covered area of one region.
func (f *Field) Area(name string) float64 {
	r := f.regions[name]
	if r == nil {
		return 0
	}
	var a float64
	for _, p := range polygonsOf(r.shape) {
		a += polygonArea(p)
	}
	return a
}

// Polygons returns the rings of every polygon in a region: each exterior ring is
// clockwise and is followed by its holes in counter-clockwise order.
func (f *Field) Polygons(name string) [][]mgl64.Vec2 {
	r := f.regions[name]
	if r == nil {
		return nil
	}
	var out [][]mgl64.Vec2
	for _, p := range polygonsOf(r.shape) {
		out = append(out, convex.Clockwise(pointsOf(p.ExteriorRing())))
		for i := 0; i < p.NumInteriorRings(); i++ {
			h := pointsOf(p.InteriorRingN(i))
			if convex.IsClockwise(h) {
				h = convex.Reverse(h)
			}
			out = append(out, h)
		}
	}
	return out
}

// Regions snapshots Polygons for every region.
func (f *Field) Regions() map[string][][]mgl64.Vec2 {
	out := make(map[string][][]mgl64.Vec2, len(f.regions))
	for _, n := range f.Names() {
		out[n] = f.Polygons(n)
	}
	return out
}

// State returns the hole-free outlines produced by the last rebuild, for clients.
func (f *Field) State() map[string][][]mgl64.Vec2 {
	out := make(map[string][][]mgl64.Vec2, len(f.regions))
	for _, n := range f.Names() {
		if pieces := f.regions[n].pieces; len(pieces) > 0 {
			out[n] = pieces
		}
	}
	return out
}

// Replace drops all regions and loads rings in the layout produced by Polygons.
// Every loaded region is dirty.
func (f *Field) Replace(regions map[string][][]mgl64.Vec2) error {
	for _, r := range f.regions {
		for _, fx := range r.fixtures {
			f.body.RemoveFixture(fx)
		}
	}
	f.regions = map[string]*region{}

	names := make([]string, 0, len(regions))
	for n := range regions {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		rings := regions[name]
		for i := 0; i < len(rings); {
			ext := rings[i]
			i++
			var holes [][]mgl64.Vec2
			for i < len(rings) && !convex.IsClockwise(rings[i]) {
				holes = append(holes, rings[i])
				i++
			}
			if len(ext) < 3 || math.Abs(convex.Area(ext)) == 0 {
				continue
			}
			p, err := polygonOf(ext, holes...)
			if err != nil {
				return fmt.Errorf("terrain: load %q: %w", name, err)
			}
			if err := f.combine(name, p.AsGeometry(), true); err != nil {
				return err
			}
		}
	}
	return nil
}
