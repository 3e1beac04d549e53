package world

import (
	"context"
	"fmt"
	"time"
)

// Run ticks the world at TickRateHz until ctx is done or Stop is called, then writes
// one final save. A tick that fails or panics ends the loop after a best-effort
// save; its error is returned.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.finalSave("shutdown")
			return ctx.Err()
		case <-w.stop:
			w.finalSave("stop")
			return nil
		case <-ticker.C:
			if err := w.safeStep(); err != nil {
				w.logf("tick aborted: %v", err)
				w.finalSave("abort")
				return err
			}
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (w *World) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// StepOnce runs exactly one tick. Tests and tools drive the world with it.
func (w *World) StepOnce() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stepInternal()
}

func (w *World) safeStep() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("world: panic in tick %d: %v", w.tick.Load(), r)
		}
	}()
	return w.StepOnce()
}

func (w *World) finalSave(reason string) {
	if w.saver == nil {
		return
	}
	sf, err := w.safeDump()
	if err != nil {
		w.logf("%s save: %v", reason, err)
		return
	}
	if err := w.saver(sf); err != nil {
		w.logf("%s save: %v", reason, err)
		return
	}
	w.logf("%s save written at tick %d", reason, sf.Header.Tick)
}
