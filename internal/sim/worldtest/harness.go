package worldtest

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"scrapbox.gg/internal/persistence/savefile"
	"scrapbox.gg/internal/protocol"
	"scrapbox.gg/internal/sim/catalogs"
	"scrapbox.gg/internal/sim/physics/box2d"
	world "scrapbox.gg/internal/sim/world"
	"scrapbox.gg/internal/transport/local"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Connect() attaches a player over an in-process connection
// - Step() runs StepOnce() and collects what every player was sent
// - Reload() round-trips the world through the save file format
//
// It intentionally avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs
	Cfg  world.WorldConfig
	W    *world.World

	players []*Player
}

// Player is one connected client and everything it has received.
type Player struct {
	h      *Harness
	client *local.Client

	Received []protocol.Message
	// Last known pose per object id, from Add/Move messages.
	Poses   map[int]protocol.MoveGameObject
	Removed map[int]bool
}

func NewHarness(t *testing.T, cfg world.WorldConfig, cats *catalogs.Catalogs) *Harness {
	t.Helper()
	if cats == nil {
		cats = catalogs.Defaults()
	}
	return &Harness{T: t, Cats: cats, Cfg: cfg, W: newWorld(t, cfg, cats)}
}

func newWorld(t *testing.T, cfg world.WorldConfig, cats *catalogs.Catalogs) *world.World {
	t.Helper()
	g := cfg.Gravity
	if g == (mgl64.Vec2{}) {
		g = mgl64.Vec2{0, -9.81}
	}
	cfg.Gravity = g
	w, err := world.New(cfg, cats, box2d.New(g))
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

func (h *Harness) Connect() *Player {
	h.T.Helper()
	conn, client := local.New()
	p := &Player{
		h:       h,
		client:  client,
		Poses:   map[int]protocol.MoveGameObject{},
		Removed: map[int]bool{},
	}
	h.W.AddPlayer(conn)
	h.players = append(h.players, p)
	p.drain()
	return p
}

// Step runs n ticks.
func (h *Harness) Step(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		if err := h.W.StepOnce(); err != nil {
			h.T.Fatalf("StepOnce at tick %d: %v", h.W.CurrentTick(), err)
		}
		for _, p := range h.players {
			p.drain()
		}
	}
}

// Reload saves the world, encodes and decodes the file, and loads it into a fresh
// world. Connected players are not carried over.
func (h *Harness) Reload() *Harness {
	h.T.Helper()
	raw, err := savefile.Marshal(h.W.Dump())
	if err != nil {
		h.T.Fatalf("Marshal: %v", err)
	}
	sf, err := savefile.Unmarshal(raw)
	if err != nil {
		h.T.Fatalf("Unmarshal: %v", err)
	}
	next := &Harness{T: h.T, Cats: h.Cats, Cfg: h.Cfg, W: newWorld(h.T, h.Cfg, h.Cats)}
	if err := next.W.Load(sf); err != nil {
		h.T.Fatalf("Load: %v", err)
	}
	return next
}

func (p *Player) Send(msgs ...protocol.Message) {
	for _, m := range msgs {
		p.client.Send(m)
	}
}

func (p *Player) Disconnect() { p.client.Close() }

// Take spawns an object through the protocol and returns its id once it is live.
func (p *Player) Take(objectType string, x, y float64) int {
	p.h.T.Helper()
	before := len(p.Received)
	p.Send(protocol.TakeObject{ObjectType: objectType, Position: protocol.Vec2{x, y}})
	p.h.Step(2)
	for _, m := range p.Received[before:] {
		if r, ok := m.(protocol.TakeObjectResponse); ok {
			return r.ID
		}
	}
	p.h.T.Fatalf("no TakeObjectResponse for %s", objectType)
	return 0
}

// Count returns how many messages of a type were received.
func (p *Player) Count(typ string) int {
	n := 0
	for _, m := range p.Received {
		if m.MessageType() == typ {
			n++
		}
	}
	return n
}

// Last returns the most recent message of a type, or nil.
func (p *Player) Last(typ string) protocol.Message {
	for i := len(p.Received) - 1; i >= 0; i-- {
		if p.Received[i].MessageType() == typ {
			return p.Received[i]
		}
	}
	return nil
}

func (p *Player) Position(id int) mgl64.Vec2 {
	p.h.T.Helper()
	pose, ok := p.Poses[id]
	if !ok {
		p.h.T.Fatalf("no pose seen for object %d", id)
	}
	return mgl64.Vec2(pose.Position)
}

func (p *Player) drain() {
	for _, m := range p.client.Receive() {
		p.Received = append(p.Received, m)
		switch msg := m.(type) {
		case protocol.AddGameObject:
			p.Poses[msg.ID] = protocol.MoveGameObject{ID: msg.ID, Position: msg.Position, Rotation: msg.Rotation}
		case protocol.MoveGameObject:
			p.Poses[msg.ID] = msg
		case protocol.RemoveGameObject:
			delete(p.Poses, msg.ID)
			p.Removed[msg.ID] = true
		}
	}
}
