package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"scrapbox.gg/internal/sim/world/terrain"
)

// Explode carves a disc of radius 2*strength out of every terrain region and pushes
// nearby bodies away. Bullets are not pushed; tnt in range is armed.
func (w *World) Explode(pos mgl64.Vec2, strength float64) {
	if err := w.terrain.PlaceCircle(terrain.Removal, pos, strength*2, false); err != nil {
		w.logf("explosion at %v: %v", pos, err)
	}
	for _, o := range w.liveObjects() {
		if o.removed || o.Type() == TypeBullet {
			continue
		}
		d := o.body.Position().Sub(pos)
		power := strength*4 - d.Len()
		if power <= 0 {
			continue
		}
		if t, ok := o.part.(*TNT); ok {
			t.Arm()
		}
		if w.ModeOf(o) == ModeStatic {
			continue
		}
		o.body.ApplyLinearImpulse(d.Mul(power*w.cfg.ExplosionPushScale), o.body.WorldCenter())
	}
}
