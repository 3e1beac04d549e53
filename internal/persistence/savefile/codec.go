package savefile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// maxCount bounds every length prefix so a corrupt file cannot request huge allocations.
const maxCount = 1 << 24

// Smallest encoded size of each counted record. A count that could not fit in the
// bytes left is rejected before anything is allocated for it.
const (
	minRegion  = 2 + 4
	minRing    = 4
	minPoint   = 16
	minObject  = 2 + 16 + 16 + 8 + 4
	minJoint   = 16 + 2 + 16 + 2
	minVehicle = 16 + 4
	minMember  = 16
)

// Encode writes the uncompressed save (magic, header line, body) to w.
func Encode(w io.Writer, sf SaveFile) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}

	e.bytes(magic[:])
	h := sf.Header
	if h.Version == 0 {
		h.Version = Version
	}
	hb, err := json.Marshal(h)
	if err != nil {
		return err
	}
	e.bytes(hb)
	e.bytes([]byte{'\n'})

	names := make([]string, 0, len(sf.Terrain))
	for name := range sf.Terrain {
		names = append(names, name)
	}
	sort.Strings(names)
	e.u32(len(names))
	for _, name := range names {
		rings := sf.Terrain[name]
		e.str(name)
		e.u32(len(rings))
		for _, ring := range rings {
			e.u32(len(ring))
			for _, p := range ring {
				e.vec(p)
			}
		}
	}

	e.u32(len(sf.Objects))
	for _, o := range sf.Objects {
		e.str(o.Type)
		e.bytes(o.UUID[:])
		e.vec(o.Position)
		e.f64(o.Rotation)
		e.u32(len(o.Data))
		e.bytes(o.Data)
	}

	e.u32(len(sf.Joints))
	for _, j := range sf.Joints {
		e.bytes(j.First[:])
		e.str(j.FirstEdge)
		e.bytes(j.Second[:])
		e.str(j.SecondEdge)
	}

	e.u32(len(sf.Vehicles))
	for _, v := range sf.Vehicles {
		e.bytes(v.Root[:])
		e.u32(len(v.Members))
		for _, m := range v.Members {
			e.bytes(m[:])
		}
	}

	if e.err != nil {
		return e.err
	}
	return bw.Flush()
}

// Decode reads a save produced by Encode.
func Decode(r io.Reader) (SaveFile, error) {
	var sf SaveFile
	br := bufio.NewReader(r)

	var m [4]byte
	if _, err := io.ReadFull(br, m[:]); err != nil {
		return sf, truncated(err)
	}
	if m != magic {
		return sf, ErrBadMagic
	}
	line, err := br.ReadBytes('\n')
	if err != nil {
		return sf, truncated(err)
	}
	if err := json.Unmarshal(line, &sf.Header); err != nil {
		return sf, fmt.Errorf("savefile: header: %w", err)
	}
	if sf.Header.Version != Version {
		return sf, fmt.Errorf("savefile: unsupported version %d", sf.Header.Version)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return sf, err
	}
	d := &decoder{r: bytes.NewReader(body)}

	regions := d.count(minRegion)
	sf.Terrain = make(map[string][][]mgl64.Vec2, regions)
	for i := 0; i < regions && d.err == nil; i++ {
		name := d.str()
		rings := make([][]mgl64.Vec2, d.count(minRing))
		for j := range rings {
			ring := make([]mgl64.Vec2, d.count(minPoint))
			for k := range ring {
				ring[k] = d.vec()
			}
			rings[j] = ring
			if d.err != nil {
				break
			}
		}
		sf.Terrain[name] = rings
	}

	n := d.count(minObject)
	for i := 0; i < n && d.err == nil; i++ {
		var o SavedGameObject
		o.Type = d.str()
		o.UUID = d.uuid()
		o.Position = d.vec()
		o.Rotation = d.f64()
		o.Data = make([]byte, d.count(1))
		d.read(o.Data)
		sf.Objects = append(sf.Objects, o)
	}

	n = d.count(minJoint)
	for i := 0; i < n && d.err == nil; i++ {
		var j SavedJoint
		j.First = d.uuid()
		j.FirstEdge = d.str()
		j.Second = d.uuid()
		j.SecondEdge = d.str()
		sf.Joints = append(sf.Joints, j)
	}

	n = d.count(minVehicle)
	for i := 0; i < n && d.err == nil; i++ {
		var v SavedVehicle
		v.Root = d.uuid()
		v.Members = make([]uuid.UUID, d.count(minMember))
		for k := range v.Members {
			v.Members[k] = d.uuid()
		}
		sf.Vehicles = append(sf.Vehicles, v)
	}
	return sf, d.err
}

type encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

func (e *encoder) bytes(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) u32(n int) {
	binary.BigEndian.PutUint32(e.buf[:4], uint32(n))
	e.bytes(e.buf[:4])
}

func (e *encoder) f64(f float64) {
	binary.BigEndian.PutUint64(e.buf[:8], math.Float64bits(f))
	e.bytes(e.buf[:8])
}

func (e *encoder) vec(v mgl64.Vec2) {
	e.f64(v[0])
	e.f64(v[1])
}

func (e *encoder) str(s string) {
	if len(s) > math.MaxUint16 {
		e.err = fmt.Errorf("savefile: string too long (%d bytes)", len(s))
		return
	}
	binary.BigEndian.PutUint16(e.buf[:2], uint16(len(s)))
	e.bytes(e.buf[:2])
	e.bytes([]byte(s))
}

type decoder struct {
	r   *bytes.Reader
	buf [8]byte
	err error
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}

func (d *decoder) read(b []byte) {
	if d.err != nil {
		return
	}
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = truncated(err)
	}
}

// count reads a length prefix for records of at least size bytes each.
func (d *decoder) count(size int) int {
	d.read(d.buf[:4])
	if d.err != nil {
		return 0
	}
	n := binary.BigEndian.Uint32(d.buf[:4])
	if n > maxCount {
		d.err = fmt.Errorf("savefile: count %d out of range", n)
		return 0
	}
	if uint64(n)*uint64(size) > uint64(d.r.Len()) {
		d.err = ErrTruncated
		return 0
	}
	return int(n)
}

func (d *decoder) f64() float64 {
	d.read(d.buf[:8])
	if d.err != nil {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(d.buf[:8]))
}

func (d *decoder) vec() mgl64.Vec2 {
	x := d.f64()
	return mgl64.Vec2{x, d.f64()}
}

func (d *decoder) str() string {
	d.read(d.buf[:2])
	if d.err != nil {
		return ""
	}
	b := make([]byte, binary.BigEndian.Uint16(d.buf[:2]))
	d.read(b)
	return string(b)
}

func (d *decoder) uuid() uuid.UUID {
	var u uuid.UUID
	d.read(u[:])
	return u
}
