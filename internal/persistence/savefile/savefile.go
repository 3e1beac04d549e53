// Package savefile reads and writes world saves.
//
// A save file is a zstd stream holding the magic "SBS\x01", one JSON header line and
// the binary body: terrain regions, game objects, joints, vehicles, in that order.
// All integers and floats are big-endian.
package savefile

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

const Version = 1

var magic = [4]byte{'S', 'B', 'S', 1}

var (
	ErrBadMagic  = errors.New("savefile: bad magic")
	ErrTruncated = errors.New("savefile: truncated")
)

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SaveFile struct {
	Header Header

	// Terrain maps region name to rings. A clockwise ring starts a polygon and the
	// counter-clockwise rings after it are its holes.
	Terrain  map[string][][]mgl64.Vec2
	Objects  []SavedGameObject
	Joints   []SavedJoint
	Vehicles []SavedVehicle
}

type SavedGameObject struct {
	Type     string
	UUID     uuid.UUID
	Position mgl64.Vec2
	Rotation float64
	Data     []byte
}

type SavedJoint struct {
	First      uuid.UUID
	FirstEdge  string
	Second     uuid.UUID
	SecondEdge string
}

type SavedVehicle struct {
	Root    uuid.UUID
	Members []uuid.UUID
}
