package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int        `yaml:"tick_rate_hz"`
	Substeps           int        `yaml:"substeps"`
	VelocityIterations int        `yaml:"velocity_iterations"`
	PositionIterations int        `yaml:"position_iterations"`
	Gravity            [2]float64 `yaml:"gravity"`
	SaveEveryTicks     int        `yaml:"save_every_ticks"`

	Discovery Discovery `yaml:"discovery"`
	Pinch     Pinch     `yaml:"pinch"`
	Explosion Explosion `yaml:"explosion"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

type Discovery struct {
	Group      string `yaml:"group"`
	Port       int    `yaml:"port"`
	EveryTicks int    `yaml:"every_ticks"`
}

type Pinch struct {
	MaxForce      float64 `yaml:"max_force"`
	RotateImpulse float64 `yaml:"rotate_impulse"`
	WeldDistance  float64 `yaml:"weld_distance"`
}

type Explosion struct {
	PushScale float64 `yaml:"push_scale"`
}

// RateLimit bounds inbound messages per websocket connection.
type RateLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

func Default() Tuning {
	var t Tuning
	t.ApplyDefaults()
	return t
}

// ApplyDefaults fills every zero field. Gravity is only defaulted when both
// components are zero.
func (t *Tuning) ApplyDefaults() {
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = "1.0"
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 20
	}
	if t.Substeps <= 0 {
		t.Substeps = 10
	}
	if t.VelocityIterations <= 0 {
		t.VelocityIterations = 10
	}
	if t.PositionIterations <= 0 {
		t.PositionIterations = 10
	}
	if t.Gravity == [2]float64{} {
		t.Gravity = [2]float64{0, -9.81}
	}
	if t.SaveEveryTicks <= 0 {
		t.SaveEveryTicks = 6000
	}
	if t.Discovery.Group == "" {
		t.Discovery.Group = "230.1.2.3"
	}
	if t.Discovery.Port <= 0 {
		t.Discovery.Port = 4321
	}
	if t.Discovery.EveryTicks <= 0 {
		t.Discovery.EveryTicks = 20
	}
	if t.Pinch.MaxForce <= 0 {
		t.Pinch.MaxForce = 10000
	}
	if t.Pinch.RotateImpulse == 0 {
		t.Pinch.RotateImpulse = 5
	}
	if t.Pinch.WeldDistance <= 0 {
		t.Pinch.WeldDistance = 0.6
	}
	if t.Explosion.PushScale <= 0 {
		t.Explosion.PushScale = 50
	}
	if t.RateLimit.PerSecond <= 0 {
		t.RateLimit.PerSecond = 120
	}
	if t.RateLimit.Burst <= 0 {
		t.RateLimit.Burst = 240
	}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.ApplyDefaults()
	return t, nil
}

// Digest hashes the effective values, so two files that only differ in comments
// or omitted defaults agree.
func (t Tuning) Digest() string {
	b, err := yaml.Marshal(t)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
