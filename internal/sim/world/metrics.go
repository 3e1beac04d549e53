package world

type WorldMetrics struct {
	Tick           uint64  `json:"tick"`
	Objects        int     `json:"objects"`
	Pending        int     `json:"pending"`
	Vehicles       int     `json:"vehicles"`
	Players        int     `json:"players"`
	TerrainRegions int     `json:"terrain_regions"`
	Paused         bool    `json:"paused"`
	PhysicsSteps   uint64  `json:"physics_steps"`
	StepMS         float64 `json:"step_ms"`
}

// Metrics is the snapshot published at the end of the last tick. Safe from any goroutine.
func (w *World) Metrics() WorldMetrics {
	if v := w.metrics.Load(); v != nil {
		if m, ok := v.(WorldMetrics); ok {
			return m
		}
	}
	return WorldMetrics{}
}

type TickLogEntry struct {
	Tick     uint64   `json:"tick"`
	Admitted int      `json:"admitted"`
	Reaped   int      `json:"reaped"`
	Intents  int      `json:"intents"`
	Rebuilt  []string `json:"rebuilt,omitempty"`
	Paused   bool     `json:"paused,omitempty"`
	StepMS   float64  `json:"step_ms"`
}
