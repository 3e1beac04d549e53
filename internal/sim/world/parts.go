package world

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"scrapbox.gg/internal/sim/catalogs"
	"scrapbox.gg/internal/sim/physics"
)

const (
	TypeFrame          = "frame"
	TypeWheel          = "wheel"
	TypeBalloon        = "balloon"
	TypeController     = "controller"
	TypePuncher        = "puncher"
	TypePropeller      = "propeller"
	TypeTNT            = "tnt"
	TypeRotator        = "rotator"
	TypeCannon         = "cannon"
	TypeBullet         = "bullet"
	TypePositionSensor = "position_sensor"
	TypeMathUnit       = "math_unit"
)

const EdgeCenter = "center"

// Part is the per-type behaviour of a game object.
type Part interface {
	Type() string
	ConnectionEdges() map[string]ConnectionEdge
	// Tick runs once per unpaused tick before physics integration.
	Tick(w *World, self *GameObject)
	Save() []byte
	// Load runs after every saved joint has been replayed.
	Load(data []byte) error
	// CreateJoint welds self to frame. It returns the joint and its reference angle.
	CreateJoint(w *World, self *GameObject, selfEdge string, frame *GameObject, frameEdge string) (physics.Joint, float64, error)
}

type PartFactory func(def catalogs.PartDef) Part

var partFactories = map[string]PartFactory{
	TypeFrame:          newFrame,
	TypeWheel:          generic(TypeWheel),
	TypeBalloon:        newBalloon,
	TypeController:     generic(TypeController),
	TypePuncher:        generic(TypePuncher),
	TypePropeller:      newPropeller,
	TypeTNT:            newTNT,
	TypeRotator:        generic(TypeRotator),
	TypeCannon:         generic(TypeCannon),
	TypeBullet:         newBullet,
	TypePositionSensor: func(catalogs.PartDef) Part { return &PositionSensor{basePart: basePart{TypePositionSensor}} },
	TypeMathUnit:       func(catalogs.PartDef) Part { return &MathUnit{basePart: basePart{TypeMathUnit}} },
}

// PartTypes lists every spawnable type tag.
func PartTypes() []string {
	out := make([]string, 0, len(partFactories))
	for t := range partFactories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

var centerOnly = map[string]ConnectionEdge{EdgeCenter: {Hub: true}}

// basePart is a center-hub part with no logic and no payload.
type basePart struct{ typ string }

func generic(typ string) PartFactory {
	return func(catalogs.PartDef) Part { return basePart{typ} }
}

func (p basePart) Type() string                             { return p.typ }
func (basePart) ConnectionEdges() map[string]ConnectionEdge { return centerOnly }
func (basePart) Tick(*World, *GameObject)                   {}
func (basePart) Save() []byte                               { return nil }
func (basePart) Load([]byte) error                          { return nil }

func (basePart) CreateJoint(w *World, self *GameObject, selfEdge string, frame *GameObject, frameEdge string) (physics.Joint, float64, error) {
	return w.weld(self, selfEdge, frame, frameEdge)
}

type Frame struct {
	basePart
	edges map[string]ConnectionEdge
}

func newFrame(def catalogs.PartDef) Part {
	hw, hh := def.Box[0], def.Box[1]
	if hw <= 0 || hh <= 0 {
		hw, hh = 1, 1
	}
	return &Frame{
		basePart: basePart{TypeFrame},
		edges: map[string]ConnectionEdge{
			"up":       {Offset: mgl64.Vec2{0, hh}},
			"down":     {Offset: mgl64.Vec2{0, -hh}},
			"left":     {Offset: mgl64.Vec2{-hw, 0}},
			"right":    {Offset: mgl64.Vec2{hw, 0}},
			EdgeCenter: {Hub: true},
		},
	}
}

func (f *Frame) ConnectionEdges() map[string]ConnectionEdge { return f.edges }

type Balloon struct {
	basePart
	lift float64
}

func newBalloon(def catalogs.PartDef) Part {
	return &Balloon{basePart: basePart{TypeBalloon}, lift: def.Param("lift", 15)}
}

func (b *Balloon) Tick(_ *World, self *GameObject) {
	self.body.ApplyForceToCenter(mgl64.Vec2{0, b.lift})
}

// Propeller pushes along its local up axis. Thrust is part of the payload.
type Propeller struct {
	basePart
	Thrust float64
}

func newPropeller(def catalogs.PartDef) Part {
	return &Propeller{basePart: basePart{TypePropeller}, Thrust: def.Param("thrust", 20)}
}

func (p *Propeller) Tick(_ *World, self *GameObject) {
	dir := rotate(mgl64.Vec2{0, 1}, self.body.Angle())
	self.body.ApplyForceToCenter(dir.Mul(p.Thrust))
}

func (p *Propeller) Save() []byte {
	var w payloadWriter
	w.f64(p.Thrust)
	return w.b
}

func (p *Propeller) Load(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	r := payloadReader{b: data}
	p.Thrust = r.f64()
	return r.err
}

// TNT explodes once its fuse runs out after being armed.
type TNT struct {
	basePart
	Strength float64
	Fuse     int32
	Armed    bool
}

func newTNT(def catalogs.PartDef) Part {
	return &TNT{
		basePart: basePart{TypeTNT},
		Strength: def.Param("strength", 3),
		Fuse:     int32(def.Param("fuse_ticks", 40)),
	}
}

func (t *TNT) Arm() { t.Armed = true }

func (t *TNT) Tick(w *World, self *GameObject) {
	if !t.Armed || self.removed {
		return
	}
	t.Fuse--
	if t.Fuse > 0 {
		return
	}
	self.Remove()
	w.Explode(self.Position(), t.Strength)
}

func (t *TNT) Save() []byte {
	var w payloadWriter
	w.bool(t.Armed)
	w.i32(t.Fuse)
	return w.b
}

func (t *TNT) Load(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	r := payloadReader{b: data}
	t.Armed = r.bool()
	t.Fuse = r.i32()
	return r.err
}

// Bullet removes itself after its lifetime.
type Bullet struct {
	basePart
	Remaining int32
}

func newBullet(def catalogs.PartDef) Part {
	return &Bullet{basePart: basePart{TypeBullet}, Remaining: int32(def.Param("lifetime_ticks", 100))}
}

func (b *Bullet) Tick(_ *World, self *GameObject) {
	b.Remaining--
	if b.Remaining <= 0 {
		self.Remove()
	}
}

func (b *Bullet) Save() []byte {
	var w payloadWriter
	w.i32(b.Remaining)
	return w.b
}

func (b *Bullet) Load(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	r := payloadReader{b: data}
	b.Remaining = r.i32()
	return r.err
}

type PositionSensor struct {
	basePart
	reading mgl64.Vec2
}

func (s *PositionSensor) Tick(_ *World, self *GameObject) { s.reading = self.Position() }

// Reading is the position sampled on the last unpaused tick.
func (s *PositionSensor) Reading() mgl64.Vec2 { return s.reading }

type MathOp int32

const (
	OpAdd MathOp = iota
	OpSub
	OpMul
	OpDiv
)

// MathUnit folds its inputs through a list of binary operations.
type MathUnit struct {
	basePart
	Ops []MathOp
}

// Evaluate returns in[0] op0 in[1] op1 in[2] ... Missing inputs count as zero and
// division by zero yields zero.
func (m *MathUnit) Evaluate(in ...float64) float64 {
	at := func(i int) float64 {
		if i < len(in) {
			return in[i]
		}
		return 0
	}
	acc := at(0)
	for i, op := range m.Ops {
		v := at(i + 1)
		switch op {
		case OpAdd:
			acc += v
		case OpSub:
			acc -= v
		case OpMul:
			acc *= v
		case OpDiv:
			if v == 0 {
				acc = 0
			} else {
				acc /= v
			}
		}
	}
	return acc
}

func (m *MathUnit) Save() []byte {
	var w payloadWriter
	w.i32(int32(len(m.Ops)))
	for _, op := range m.Ops {
		w.i32(int32(op))
	}
	return w.b
}

func (m *MathUnit) Load(data []byte) error {
	if len(data) == 0 {
		m.Ops = nil
		return nil
	}
	r := payloadReader{b: data}
	n := r.i32()
	if n < 0 || int(n)*4 > len(data)-4 {
		return errBadPayload
	}
	ops := make([]MathOp, n)
	for i := range ops {
		ops[i] = MathOp(r.i32())
		if ops[i] < OpAdd || ops[i] > OpDiv {
			return errBadPayload
		}
	}
	if r.err != nil {
		return r.err
	}
	m.Ops = ops
	return nil
}
