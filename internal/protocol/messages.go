package protocol

// Vec2 is an [x, y] pair in world units.
type Vec2 = [2]float64

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	ServerID        string         `json:"server_id"`
	SessionID       string         `json:"session_id"`
	TickRateHz      int            `json:"tick_rate_hz"`
	Parts           []string       `json:"parts"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CatalogDigests struct {
	MaterialsDigest string `json:"materials_digest"`
	PartsDigest     string `json:"parts_digest"`
	TuningDigest    string `json:"tuning_digest,omitempty"`
}

// ERROR (server -> client), sent before closing a rejected connection.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

type ToggleGamePaused struct{}

type GameObjectPinch struct {
	ID     int  `json:"id"`
	Offset Vec2 `json:"offset"`
}

type GameObjectRelease struct{}

type MouseMoved struct {
	Position Vec2 `json:"position"`
}

type TrashObject struct {
	ID int `json:"id"`
}

type TakeObject struct {
	ObjectType string `json:"object_type"`
	Position   Vec2   `json:"position"`
	Offset     Vec2   `json:"offset"`
}

// PlaceTerrain edits terrain with either Polygon or, when empty, a disc brush of
// radius Strength at Position. An empty Material erases every material.
type PlaceTerrain struct {
	Material string  `json:"material"`
	Position Vec2    `json:"position"`
	Strength float64 `json:"strength"`
	Polygon  []Vec2  `json:"polygon,omitempty"`
	Subtract bool    `json:"subtract,omitempty"`
}

type PinchingSetGhost struct {
	Ghost bool `json:"ghost"`
}

type CommitWeld struct{}

type LockGameObject struct{}

type PinchingRotate struct {
	Rotation float64 `json:"rotation"`
}

type TerrainState struct {
	Regions map[string][][]Vec2 `json:"regions"`
}

type AddGameObject struct {
	ID         int     `json:"id"`
	ObjectType string  `json:"object_type"`
	Position   Vec2    `json:"position"`
	Rotation   float64 `json:"rotation"`
}

type MoveGameObject struct {
	ID       int     `json:"id"`
	Position Vec2    `json:"position"`
	Rotation float64 `json:"rotation"`
	Mode     string  `json:"mode"`
}

type RemoveGameObject struct {
	ID int `json:"id"`
}

type PossibleWeld struct {
	First  Vec2 `json:"first"`
	Second Vec2 `json:"second"`
}

type ShowActivePossibleWelds struct {
	Welds []PossibleWeld `json:"welds"`
}

type TakeObjectResponse struct {
	ID     int  `json:"id"`
	Offset Vec2 `json:"offset"`
}

func (ToggleGamePaused) MessageType() string        { return TypeToggleGamePaused }
func (GameObjectPinch) MessageType() string         { return TypeGameObjectPinch }
func (GameObjectRelease) MessageType() string       { return TypeGameObjectRelease }
func (MouseMoved) MessageType() string              { return TypeMouseMoved }
func (TrashObject) MessageType() string             { return TypeTrashObject }
func (TakeObject) MessageType() string              { return TypeTakeObject }
func (PlaceTerrain) MessageType() string            { return TypePlaceTerrain }
func (PinchingSetGhost) MessageType() string        { return TypePinchingSetGhost }
func (CommitWeld) MessageType() string              { return TypeCommitWeld }
func (LockGameObject) MessageType() string          { return TypeLockGameObject }
func (PinchingRotate) MessageType() string          { return TypePinchingRotate }
func (TerrainState) MessageType() string            { return TypeTerrainState }
func (AddGameObject) MessageType() string           { return TypeAddGameObject }
func (MoveGameObject) MessageType() string          { return TypeMoveGameObject }
func (RemoveGameObject) MessageType() string        { return TypeRemoveGameObject }
func (ShowActivePossibleWelds) MessageType() string { return TypeShowActivePossibleWelds }
func (TakeObjectResponse) MessageType() string      { return TypeTakeObjectResponse }
