package wkb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbwkb "github.com/paulmach/orb/encoding/wkb"
)

// WKB type constants (ISO SQL/MM specification)
const (
	wkbPolygon            = 3
	wkbGeometryCollection = 7

	// SRID flag for EWKB (PostGIS extended WKB)
	wkbSRIDFlag = 0x20000000
)

// SRID2193 is NZGD2000 / New Zealand Transverse Mercator 2000
const SRID2193 = 2193

// Format selects the envelope written around the WKB body
type Format int

const (
	// FormatEWKB is PostGIS extended WKB with an embedded SRID
	FormatEWKB Format = iota
	// FormatGeoPackage is the GeoPackage binary header followed by ISO WKB
	FormatGeoPackage
)

// GeoPackage header flags
const (
	gpkgLittleEndian = 0x01
	gpkgEnvelopeXY   = 0x02 // envelope indicator 1 shifted into bits 1-3
	gpkgEmpty        = 0x10
)

// Encoder encodes tile footprints to WKB.
// Uses little-endian byte order throughout.
type Encoder struct {
	buf    []byte
	srid   uint32
	format Format
}

// NewEncoder creates an encoder for the given format and SRID
func NewEncoder(format Format, srid int) *Encoder {
	return &Encoder{
		buf:    make([]byte, 0, 128),
		srid:   uint32(srid),
		format: format,
	}
}

// SRID returns the encoder's SRID
func (e *Encoder) SRID() int {
	return int(e.srid)
}

// Reset clears the buffer for reuse
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// EncodeBound encodes an axis-aligned box as a closed five-point polygon.
// The returned slice is a copy and safe to retain.
func (e *Encoder) EncodeBound(b orb.Bound) []byte {
	ring := []float64{
		b.Min[0], b.Min[1],
		b.Max[0], b.Min[1],
		b.Max[0], b.Max[1],
		b.Min[0], b.Max[1],
		b.Min[0], b.Min[1],
	}
	return e.EncodePolygon(ring, b)
}

// EncodePolygon encodes a single-ring polygon.
// ring is a flat array of [x1, y1, x2, y2, ...]
func (e *Encoder) EncodePolygon(ring []float64, env orb.Bound) []byte {
	e.Reset()
	numPoints := len(ring) / 2
	e.ensureCapacity(40 + 17 + numPoints*16)

	e.appendHeader(env, false)

	// Byte order (little-endian)
	e.buf = append(e.buf, 0x01)

	if e.format == FormatEWKB {
		e.appendUint32(wkbPolygon | wkbSRIDFlag)
		e.appendUint32(e.srid)
	} else {
		e.appendUint32(wkbPolygon)
	}

	// Single outer ring
	e.appendUint32(1)
	e.appendUint32(uint32(numPoints))
	for i := 0; i+1 < len(ring); i += 2 {
		e.appendFloat64(ring[i])
		e.appendFloat64(ring[i+1])
	}

	return append([]byte(nil), e.buf...)
}

// EncodeEmptyCollection encodes an empty GEOMETRYCOLLECTION
func (e *Encoder) EncodeEmptyCollection() []byte {
	e.Reset()
	e.appendHeader(orb.Bound{}, true)
	e.buf = append(e.buf, 0x01)
	if e.format == FormatEWKB {
		e.appendUint32(wkbGeometryCollection | wkbSRIDFlag)
		e.appendUint32(e.srid)
	} else {
		e.appendUint32(wkbGeometryCollection)
	}
	e.appendUint32(0)
	return append([]byte(nil), e.buf...)
}

func (e *Encoder) appendHeader(env orb.Bound, empty bool) {
	if e.format != FormatGeoPackage {
		return
	}
	e.buf = append(e.buf, 'G', 'P', 0x00)
	if empty {
		e.buf = append(e.buf, gpkgLittleEndian|gpkgEmpty)
		e.appendUint32(e.srid)
		return
	}
	e.buf = append(e.buf, gpkgLittleEndian|gpkgEnvelopeXY)
	e.appendUint32(e.srid)
	// GeoPackage envelope order is minx, maxx, miny, maxy
	e.appendFloat64(env.Min[0])
	e.appendFloat64(env.Max[0])
	e.appendFloat64(env.Min[1])
	e.appendFloat64(env.Max[1])
}

func (e *Encoder) ensureCapacity(n int) {
	if cap(e.buf) < n {
		e.buf = make([]byte, 0, n)
	}
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}

// ErrNotGeoPackage is returned for blobs without the "GP" magic
var ErrNotGeoPackage = errors.New("not a GeoPackage geometry blob")

// DecodeGeoPackage strips the GeoPackage header and decodes the WKB body.
// Empty geometries decode to nil.
func DecodeGeoPackage(blob []byte) (orb.Geometry, int, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, ErrNotGeoPackage
	}
	flags := blob[3]

	var order binary.ByteOrder = binary.BigEndian
	if flags&gpkgLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srid := int(int32(order.Uint32(blob[4:8])))

	var envSize int
	switch (flags >> 1) & 0x07 {
	case 0:
		envSize = 0
	case 1:
		envSize = 32
	case 2, 3:
		envSize = 48
	case 4:
		envSize = 64
	default:
		return nil, srid, fmt.Errorf("invalid envelope indicator in flags 0x%02x", flags)
	}

	body := 8 + envSize
	if len(blob) < body {
		return nil, srid, fmt.Errorf("geometry blob truncated: %d bytes", len(blob))
	}
	if flags&gpkgEmpty != 0 {
		return nil, srid, nil
	}

	geom, err := orbwkb.Unmarshal(blob[body:])
	if err != nil {
		return nil, srid, fmt.Errorf("failed to decode WKB: %w", err)
	}
	return geom, srid, nil
}
