package observerproto

// Version is the observer protocol version (separate from the player WS protocol).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection. After it the server
// streams the same state envelopes players get and ignores anything else the client
// sends.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	Parts           []string    `json:"parts"`
	Materials       []string    `json:"materials"`
	Stats           WorldStats  `json:"stats"`
}

type WorldParams struct {
	TickRateHz int        `json:"tick_rate_hz"`
	Substeps   int        `json:"substeps"`
	Gravity    [2]float64 `json:"gravity"`
}

type WorldStats struct {
	Objects        int  `json:"objects"`
	Vehicles       int  `json:"vehicles"`
	Players        int  `json:"players"`
	TerrainRegions int  `json:"terrain_regions"`
	Paused         bool `json:"paused"`
}
