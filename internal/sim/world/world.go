package world

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"scrapbox.gg/internal/persistence/savefile"
	"scrapbox.gg/internal/protocol"
	"scrapbox.gg/internal/sim/catalogs"
	"scrapbox.gg/internal/sim/physics"
	"scrapbox.gg/internal/sim/world/terrain"
)

var (
	ErrUnknownType = errors.New("world: unknown object type")
	ErrUnknownEdge = errors.New("world: unknown connection edge")
	ErrEdgeInUse   = errors.New("world: connection edge already in use")
	// ErrInvalidJoin rejects a join where neither side is a frame.
	ErrInvalidJoin = errors.New("world: join needs a frame side")
)

// Connection is a player's link to the world. Read drains queued intents without
// blocking; Send must not block the tick either.
type Connection interface {
	Read() []protocol.Message
	Send(m protocol.Message)
	Disconnected() bool
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// Announcer is told when the world should advertise itself on the LAN.
type Announcer interface {
	Announce()
}

// World is the simulation context. Everything in it is owned by the goroutine
// running Run (or StepOnce) and guarded by mu.
type World struct {
	mu sync.Mutex

	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	engine   physics.Engine
	terrain  *terrain.Field
	logger   *log.Logger

	terrainErr string // last logged rebuild failure

	tick   atomic.Uint64
	paused bool
	steps  uint64

	objects  map[int]*GameObject
	pending  []*GameObject
	vehicles map[int]*Vehicle
	nextID   int
	nextVeh  int

	players []*player

	tickLogger TickLogger
	announcer  Announcer
	saveSink   chan<- savefile.SaveFile
	saver      func(savefile.SaveFile) error

	stop     chan struct{}
	stopOnce sync.Once

	metrics atomic.Value // WorldMetrics
}

func New(cfg WorldConfig, cats *catalogs.Catalogs, engine physics.Engine) (*World, error) {
	cfg.applyDefaults()
	if cats == nil {
		cats = catalogs.Defaults()
	}
	if engine == nil {
		return nil, fmt.Errorf("world: nil physics engine")
	}
	materials := make(map[string]terrain.Material, len(cats.Materials.Defs))
	for id, m := range cats.Materials.Defs {
		materials[id] = terrain.Material{Friction: m.Friction, Restitution: m.Restitution}
	}
	w := &World{
		cfg:      cfg,
		catalogs: cats,
		engine:   engine,
		terrain:  terrain.New(engine, materials),
		objects:  map[int]*GameObject{},
		vehicles: map[int]*Vehicle{},
		stop:     make(chan struct{}),
	}
	engine.SetContactFilter(w.shouldCollide)
	w.metrics.Store(WorldMetrics{})
	return w, nil
}

func (w *World) ID() string                   { return w.cfg.ID }
func (w *World) Config() WorldConfig          { return w.cfg }
func (w *World) CurrentTick() uint64          { return w.tick.Load() }
func (w *World) Terrain() *terrain.Field      { return w.terrain }
func (w *World) Catalogs() *catalogs.Catalogs { return w.catalogs }

func (w *World) SetLogger(l *log.Logger) { w.logger = l }

func (w *World) SetTickLogger(t TickLogger) { w.tickLogger = t }

func (w *World) SetAnnouncer(a Announcer) { w.announcer = a }

// SetSaveSink receives the periodic autosaves. Sends never block the tick; a full
// sink skips that save.
func (w *World) SetSaveSink(ch chan<- savefile.SaveFile) { w.saveSink = ch }

// SetSaver is the synchronous writer used for the final save on shutdown and the
// best-effort save after a failed tick.
func (w *World) SetSaver(fn func(savefile.SaveFile) error) { w.saver = fn }

func (w *World) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}

func (w *World) Paused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

func (w *World) SetPaused(p bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = p
}

// PhysicsSteps counts engine steps since creation.
func (w *World) PhysicsSteps() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.steps
}

// Object returns a live or pending object.
func (w *World) Object(id int) *GameObject {
	if o, ok := w.objects[id]; ok {
		return o
	}
	for _, o := range w.pending {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// Objects lists live and pending objects ordered by id.
func (w *World) Objects() []*GameObject {
	out := make([]*GameObject, 0, len(w.objects)+len(w.pending))
	for _, o := range w.objects {
		out = append(out, o)
	}
	out = append(out, w.pending...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) liveObjects() []*GameObject {
	out := make([]*GameObject, 0, len(w.objects))
	for _, o := range w.objects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) broadcast(m protocol.Message) {
	for _, p := range w.players {
		p.conn.Send(m)
	}
}

func (w *World) terrainState() protocol.TerrainState {
	regions := w.terrain.State()
	out := make(map[string][][]protocol.Vec2, len(regions))
	for name, rings := range regions {
		conv := make([][]protocol.Vec2, len(rings))
		for i, ring := range rings {
			pts := make([]protocol.Vec2, len(ring))
			for j, p := range ring {
				pts[j] = protocol.Vec2(p)
			}
			conv[i] = pts
		}
		out[name] = conv
	}
	return protocol.TerrainState{Regions: out}
}

func (w *World) addMessage(o *GameObject) protocol.AddGameObject {
	return protocol.AddGameObject{
		ID:         o.ID,
		ObjectType: o.Type(),
		Position:   protocol.Vec2(o.Position()),
		Rotation:   o.Rotation(),
	}
}

// AddPlayer registers a connection and sends it the current terrain and objects.
// Safe to call from any goroutine.
func (w *World) AddPlayer(conn Connection) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := &player{conn: conn}
	w.players = append(w.players, p)
	conn.Send(w.terrainState())
	for _, o := range w.liveObjects() {
		conn.Send(w.addMessage(o))
	}
}

func (w *World) PlayerCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.players)
}
