package world

import (
	"fmt"
	"time"

	"scrapbox.gg/internal/protocol"
)

func (w *World) stepInternal() error {
	start := time.Now()
	nowTick := w.tick.Load()

	admitted := w.admitPending()
	reaped := w.reapRemoved()
	for id, o := range w.objects {
		if w.vehicles[o.vehicle] == nil {
			return fmt.Errorf("world: object %d lost its vehicle %d", id, o.vehicle)
		}
	}

	// A failed region stays dirty and fails again every tick until it is edited.
	rebuilt, err := w.terrain.RebuildIfNeeded()
	if err != nil {
		if msg := err.Error(); msg != w.terrainErr {
			w.terrainErr = msg
			w.logf("tick %d: terrain rebuild: %v", nowTick, err)
		}
	} else {
		w.terrainErr = ""
	}
	if len(rebuilt) > 0 {
		w.broadcast(w.terrainState())
	}

	if !w.paused {
		for _, o := range w.liveObjects() {
			if !o.removed {
				o.part.Tick(w, o)
			}
		}
		dt := 1 / float64(w.cfg.TickRateHz) / float64(w.cfg.Substeps)
		for i := 0; i < w.cfg.Substeps; i++ {
			w.engine.Step(dt, w.cfg.VelocityIterations, w.cfg.PositionIterations)
			w.steps++
		}
	}

	w.broadcastPositions()

	intents := 0
	for _, p := range w.players {
		intents += w.handlePlayer(p)
	}
	w.dropDisconnected()

	if w.announcer != nil && nowTick%uint64(w.cfg.AnnounceEveryTicks) == 1 {
		w.announcer.Announce()
	}

	stepMS := float64(time.Since(start).Microseconds()) / 1000
	if w.tickLogger != nil {
		entry := TickLogEntry{
			Tick:     nowTick,
			Admitted: admitted,
			Reaped:   reaped,
			Intents:  intents,
			Rebuilt:  rebuilt,
			Paused:   w.paused,
			StepMS:   stepMS,
		}
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.logf("tick log: %v", err)
		}
	}

	if w.saveSink != nil && w.cfg.SaveEveryTicks > 0 && nowTick > 0 && nowTick%uint64(w.cfg.SaveEveryTicks) == 0 {
		select {
		case w.saveSink <- w.dumpLocked():
		default:
			w.logf("tick %d: save sink full, skipping autosave", nowTick)
		}
	}

	w.metrics.Store(WorldMetrics{
		Tick:           nowTick,
		Objects:        len(w.objects),
		Pending:        len(w.pending),
		Vehicles:       len(w.vehicles),
		Players:        len(w.players),
		TerrainRegions: len(w.terrain.Names()),
		Paused:         w.paused,
		PhysicsSteps:   w.steps,
		StepMS:         stepMS,
	})

	w.tick.Add(1)
	return nil
}

func (w *World) broadcastPositions() {
	if len(w.players) == 0 {
		return
	}
	for _, o := range w.liveObjects() {
		w.broadcast(protocol.MoveGameObject{
			ID:       o.ID,
			Position: protocol.Vec2(o.Position()),
			Rotation: o.Rotation(),
			Mode:     w.ModeOf(o).String(),
		})
	}
}
