package protocol

import (
	"encoding/json"
	"fmt"
)

const Version = "1.0"

// Handshake message types. These travel as flat JSON objects.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeError   = "ERROR"
)

// Intent message types (client -> server).
const (
	TypeToggleGamePaused  = "TOGGLE_GAME_PAUSED"
	TypeGameObjectPinch   = "GAME_OBJECT_PINCH"
	TypeGameObjectRelease = "GAME_OBJECT_RELEASE"
	TypeMouseMoved        = "MOUSE_MOVED"
	TypeTrashObject       = "TRASH_OBJECT"
	TypeTakeObject        = "TAKE_OBJECT"
	TypePlaceTerrain      = "PLACE_TERRAIN"
	TypePinchingSetGhost  = "PINCHING_SET_GHOST"
	TypeCommitWeld        = "COMMIT_WELD"
	TypeLockGameObject    = "LOCK_GAME_OBJECT"
	TypePinchingRotate    = "PINCHING_ROTATE"
)

// State message types (server -> client).
const (
	TypeTerrainState            = "TERRAIN_STATE"
	TypeAddGameObject           = "ADD_GAME_OBJECT"
	TypeMoveGameObject          = "MOVE_GAME_OBJECT"
	TypeRemoveGameObject        = "REMOVE_GAME_OBJECT"
	TypeShowActivePossibleWelds = "SHOW_ACTIVE_POSSIBLE_WELDS"
	TypeTakeObjectResponse      = "TAKE_OBJECT_RESPONSE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Message is anything exchanged after the handshake.
type Message interface {
	MessageType() string
}

// Envelope is the wire form of a Message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type decoder func(data json.RawMessage) (Message, error)

func decodeAs[T Message](data json.RawMessage) (Message, error) {
	var m T
	if len(data) == 0 || string(data) == "null" {
		return m, nil
	}
	err := json.Unmarshal(data, &m)
	return m, err
}

var registry = map[string]decoder{
	TypeToggleGamePaused:        decodeAs[ToggleGamePaused],
	TypeGameObjectPinch:         decodeAs[GameObjectPinch],
	TypeGameObjectRelease:       decodeAs[GameObjectRelease],
	TypeMouseMoved:              decodeAs[MouseMoved],
	TypeTrashObject:             decodeAs[TrashObject],
	TypeTakeObject:              decodeAs[TakeObject],
	TypePlaceTerrain:            decodeAs[PlaceTerrain],
	TypePinchingSetGhost:        decodeAs[PinchingSetGhost],
	TypeCommitWeld:              decodeAs[CommitWeld],
	TypeLockGameObject:          decodeAs[LockGameObject],
	TypePinchingRotate:          decodeAs[PinchingRotate],
	TypeTerrainState:            decodeAs[TerrainState],
	TypeAddGameObject:           decodeAs[AddGameObject],
	TypeMoveGameObject:          decodeAs[MoveGameObject],
	TypeRemoveGameObject:        decodeAs[RemoveGameObject],
	TypeShowActivePossibleWelds: decodeAs[ShowActivePossibleWelds],
	TypeTakeObjectResponse:      decodeAs[TakeObjectResponse],
}

func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: m.MessageType(), Data: data})
}

// Decode parses an envelope into the concrete message value.
func Decode(b []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	dec, ok := registry[env.Type]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown message type %q", env.Type)
	}
	m, err := dec(env.Data)
	if err != nil {
		return nil, fmt.Errorf("protocol: %s: %w", env.Type, err)
	}
	return m, nil
}

// IsIntent reports whether a message type may be sent by clients.
func IsIntent(typ string) bool {
	switch typ {
	case TypeToggleGamePaused, TypeGameObjectPinch, TypeGameObjectRelease, TypeMouseMoved,
		TypeTrashObject, TypeTakeObject, TypePlaceTerrain, TypePinchingSetGhost,
		TypeCommitWeld, TypeLockGameObject, TypePinchingRotate:
		return true
	}
	return false
}
