package savefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

func sample() SaveFile {
	a, b := uuid.New(), uuid.New()
	return SaveFile{
		Header: Header{Version: Version, WorldID: "W1", Tick: 42},
		Terrain: map[string][][]mgl64.Vec2{
			"dirt":  {{{0, 0}, {0, 4}, {4, 4}, {4, 0}}, {{1, 1}, {2, 1}, {2, 2}, {1, 2}}},
			"stone": {{{10, 0}, {10, 1}, {11, 1}}},
		},
		Objects: []SavedGameObject{
			{Type: "frame", UUID: a, Position: mgl64.Vec2{0, 1}, Rotation: 0.5},
			{Type: "math_unit", UUID: b, Position: mgl64.Vec2{2, 1}, Data: []byte{0, 0, 0, 1, 0, 0, 0, 3}},
		},
		Joints:   []SavedJoint{{First: a, FirstEdge: "right", Second: b, SecondEdge: "center"}},
		Vehicles: []SavedVehicle{{Root: a, Members: []uuid.UUID{a, b}}},
	}
}

func TestEncodeDecode_PreservesLayout(t *testing.T) {
	sf := sample()
	var buf bytes.Buffer
	if err := Encode(&buf, sf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got.Objects[0].Data = nil
	sf.Objects[0].Data = nil
	if !reflect.DeepEqual(got.Objects, sf.Objects) {
		t.Fatalf("objects: got %+v want %+v", got.Objects, sf.Objects)
	}
	if !reflect.DeepEqual(got.Terrain, sf.Terrain) || !reflect.DeepEqual(got.Joints, sf.Joints) || !reflect.DeepEqual(got.Vehicles, sf.Vehicles) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Header != sf.Header {
		t.Fatalf("header: %+v", got.Header)
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("NOPE\n"))); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, sample()); err != nil {
		t.Fatal(err)
	}
	cut := buf.Bytes()[:buf.Len()-5]
	if _, err := Decode(bytes.NewReader(cut)); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecode_HostileCountsAreTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, SaveFile{}); err != nil {
		t.Fatal(err)
	}
	// An empty save ends with four zero counts: regions, objects, joints, vehicles.
	tail := buf.Len() - 16
	for i, name := range []string{"regions", "objects", "joints", "vehicles"} {
		t.Run(name, func(t *testing.T) {
			b := append([]byte(nil), buf.Bytes()...)
			binary.BigEndian.PutUint32(b[tail+4*i:], maxCount-1)
			if _, err := Decode(bytes.NewReader(b)); !errors.Is(err, ErrTruncated) {
				t.Fatalf("expected ErrTruncated, got %v", err)
			}
		})
	}
}

func TestWriteRead_AndLatest(t *testing.T) {
	dir := t.TempDir()
	if p, err := Latest(filepath.Join(dir, "missing")); err != nil || p != "" {
		t.Fatalf("Latest on missing dir: %q %v", p, err)
	}
	sf := sample()
	if err := Write(Path(dir, 10), sf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	sf.Header.Tick = 200
	if err := Write(Path(dir, 200), sf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	p, err := Latest(dir)
	if err != nil || p != Path(dir, 200) {
		t.Fatalf("Latest = %q, %v", p, err)
	}
	got, err := Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Header.Tick != 200 || len(got.Objects) != 2 {
		t.Fatalf("got %+v", got.Header)
	}
}
