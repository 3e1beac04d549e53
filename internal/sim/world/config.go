package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"scrapbox.gg/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	TickRateHz int

	// Physics integration: each tick runs Substeps engine steps of 1/TickRateHz/Substeps.
	Substeps           int
	VelocityIterations int
	PositionIterations int
	Gravity            mgl64.Vec2

	// Operational parameters.
	SaveEveryTicks     int
	AnnounceEveryTicks int

	PinchMaxForce      float64
	PinchRotateImpulse float64
	WeldDistance       float64
	ExplosionPushScale float64
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "WORLD"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.Substeps <= 0 {
		c.Substeps = 10
	}
	if c.VelocityIterations <= 0 {
		c.VelocityIterations = 10
	}
	if c.PositionIterations <= 0 {
		c.PositionIterations = 10
	}
	if c.Gravity == (mgl64.Vec2{}) {
		c.Gravity = mgl64.Vec2{0, -9.81}
	}
	if c.AnnounceEveryTicks <= 0 {
		c.AnnounceEveryTicks = 20
	}
	if c.PinchMaxForce <= 0 {
		c.PinchMaxForce = 10000
	}
	if c.PinchRotateImpulse == 0 {
		c.PinchRotateImpulse = 5
	}
	if c.WeldDistance <= 0 {
		c.WeldDistance = 0.6
	}
	if c.ExplosionPushScale <= 0 {
		c.ExplosionPushScale = 50
	}
}

// ConfigFromTuning maps tuning.yaml onto a world config. SaveEveryTicks of zero
// disables autosave, so it is copied as is.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		Substeps:           t.Substeps,
		VelocityIterations: t.VelocityIterations,
		PositionIterations: t.PositionIterations,
		Gravity:            mgl64.Vec2{t.Gravity[0], t.Gravity[1]},
		SaveEveryTicks:     t.SaveEveryTicks,
		AnnounceEveryTicks: t.Discovery.EveryTicks,
		PinchMaxForce:      t.Pinch.MaxForce,
		PinchRotateImpulse: t.Pinch.RotateImpulse,
		WeldDistance:       t.Pinch.WeldDistance,
		ExplosionPushScale: t.Explosion.PushScale,
	}
}
