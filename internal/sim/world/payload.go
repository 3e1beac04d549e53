package world

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var errBadPayload = errors.New("world: malformed part payload")

// Part payloads are big-endian like the rest of the save file.
type payloadWriter struct{ b []byte }

func (w *payloadWriter) i32(v int32) { w.b = binary.BigEndian.AppendUint32(w.b, uint32(v)) }

func (w *payloadWriter) f64(v float64) {
	w.b = binary.BigEndian.AppendUint64(w.b, math.Float64bits(v))
}

func (w *payloadWriter) bool(v bool) {
	if v {
		w.b = append(w.b, 1)
	} else {
		w.b = append(w.b, 0)
	}
}

type payloadReader struct {
	b   []byte
	err error
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = errBadPayload
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *payloadReader) i32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *payloadReader) f64() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

func (r *payloadReader) bool() bool {
	b := r.take(1)
	return b != nil && b[0] != 0
}

func rotate(v mgl64.Vec2, angle float64) mgl64.Vec2 {
	s, c := math.Sincos(angle)
	return mgl64.Vec2{c*v[0] - s*v[1], s*v[0] + c*v[1]}
}

// SnapQuarterTurn rounds an angle to the nearest multiple of 90 degrees.
func SnapQuarterTurn(angle float64) float64 {
	return math.Round(angle/(math.Pi/2)) * (math.Pi / 2)
}
