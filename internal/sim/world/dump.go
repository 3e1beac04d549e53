package world

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"scrapbox.gg/internal/persistence/savefile"
)

// Dump captures the whole world. Objects already flagged for removal are left out.
func (w *World) Dump() savefile.SaveFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dumpLocked()
}

func (w *World) safeDump() (sf savefile.SaveFile, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("world: dump: %v", r)
		}
	}()
	return w.Dump(), nil
}

func (w *World) dumpLocked() savefile.SaveFile {
	sf := savefile.SaveFile{
		Header:  savefile.Header{Version: savefile.Version, WorldID: w.cfg.ID, Tick: w.tick.Load()},
		Terrain: w.terrain.Regions(),
	}
	for _, o := range w.Objects() {
		if o.removed {
			continue
		}
		if v := w.VehicleOf(o); v != nil && firstKept(v) == o {
			sv := savefile.SavedVehicle{Root: o.UUID}
			for _, m := range v.members {
				if !m.removed {
					sv.Members = append(sv.Members, m.UUID)
				}
			}
			sf.Vehicles = append(sf.Vehicles, sv)
		}
		sf.Objects = append(sf.Objects, savefile.SavedGameObject{
			Type:     o.Type(),
			UUID:     o.UUID,
			Position: o.Position(),
			Rotation: o.Rotation(),
			Data:     o.part.Save(),
		})

		edges := make([]string, 0, len(o.connections))
		for edge := range o.connections {
			edges = append(edges, edge)
		}
		sort.Strings(edges)
		for _, edge := range edges {
			c := o.connections[edge]
			peer := w.Object(c.Peer)
			if o.ID > c.Peer || peer == nil || peer.removed {
				continue
			}
			sf.Joints = append(sf.Joints, savefile.SavedJoint{
				First:      o.UUID,
				FirstEdge:  edge,
				Second:     peer.UUID,
				SecondEdge: c.PeerEdge,
			})
		}
	}
	return sf
}

func firstKept(v *Vehicle) *GameObject {
	for _, m := range v.members {
		if !m.removed {
			return m
		}
	}
	return nil
}

// Load replaces the world with sf. Every object is respawned with its UUID, joints
// are replayed through Join, then payloads are loaded and vehicles regrouped.
// Problems with single records are collected and returned; the rest still loads.
func (w *World) Load(sf savefile.SaveFile) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.clearAll()
	var errs []error

	byUUID := make(map[uuid.UUID]*GameObject, len(sf.Objects))
	for _, so := range sf.Objects {
		o, err := w.Spawn(so.Type, so.Position, so.Rotation, so.UUID)
		if err != nil {
			errs = append(errs, fmt.Errorf("object %s: %w", so.UUID, err))
			continue
		}
		byUUID[so.UUID] = o
	}

	for _, j := range sf.Joints {
		a, b := byUUID[j.First], byUUID[j.Second]
		if a == nil || b == nil {
			errs = append(errs, fmt.Errorf("joint %s/%s: missing object", j.First, j.Second))
			continue
		}
		if err := w.Join(a, j.FirstEdge, b, j.SecondEdge); err != nil {
			errs = append(errs, fmt.Errorf("joint %s/%s: %w", j.First, j.Second, err))
		}
	}

	if err := w.terrain.Replace(sf.Terrain); err != nil {
		errs = append(errs, fmt.Errorf("terrain: %w", err))
	}

	for _, so := range sf.Objects {
		if o := byUUID[so.UUID]; o != nil {
			if err := o.part.Load(so.Data); err != nil {
				errs = append(errs, fmt.Errorf("object %s payload: %w", so.UUID, err))
			}
		}
	}

	for _, sv := range sf.Vehicles {
		root := byUUID[sv.Root]
		if root == nil {
			continue
		}
		rv := w.VehicleOf(root)
		for _, id := range sv.Members {
			if m := byUUID[id]; m != nil {
				w.merge(rv, w.VehicleOf(m))
			}
		}
		rv.setRoot(root)
	}

	if sf.Header.Tick > 0 {
		w.tick.Store(sf.Header.Tick)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("world: load: %w", err)
	}
	return nil
}

func (v *Vehicle) setRoot(o *GameObject) {
	for i, m := range v.members {
		if m == o {
			copy(v.members[1:i+1], v.members[:i])
			v.members[0] = o
			return
		}
	}
}
