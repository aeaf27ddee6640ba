// Package testutil builds synthetic mmWave UART frames for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
)

// radarMagic mirrors the TI mmWave frame marker. It is duplicated here so
// the builder does not depend on the packages it is used to test.
var radarMagic = []byte{0x02, 0x01, 0x04, 0x03, 0x06, 0x05, 0x08, 0x07}

// radarHeaderSize is magic plus eight u32 header fields.
const radarHeaderSize = 40

// TLV is one type-length-value record inside a synthetic frame.
type TLV struct {
	Type    uint32
	Payload []byte
}

// FrameSpec describes a synthetic TI mmWave frame. DeclaredTLVs and
// DeclaredLength override the computed header fields when non-zero, which
// lets tests produce inconsistent frames.
type FrameSpec struct {
	Version            uint32
	Platform           uint32
	FrameNumber        uint32
	CPUCycles          uint32
	NumDetectedObjects uint32
	SubFrame           uint32
	TLVs               []TLV

	DeclaredTLVs   uint32
	DeclaredLength uint32
}

// Bytes encodes the frame exactly as the sensor emits it.
func (f FrameSpec) Bytes() []byte {
	var body bytes.Buffer
	for _, t := range f.TLVs {
		_ = binary.Write(&body, binary.LittleEndian, t.Type)
		_ = binary.Write(&body, binary.LittleEndian, uint32(len(t.Payload)))
		body.Write(t.Payload)
	}

	length := uint32(radarHeaderSize + body.Len())
	if f.DeclaredLength != 0 {
		length = f.DeclaredLength
	}
	numTLVs := uint32(len(f.TLVs))
	if f.DeclaredTLVs != 0 {
		numTLVs = f.DeclaredTLVs
	}
	version := f.Version
	if version == 0 {
		version = 0x03060000
	}

	var out bytes.Buffer
	out.Write(radarMagic)
	for _, v := range []uint32{
		version, length, f.Platform, f.FrameNumber, f.CPUCycles,
		f.NumDetectedObjects, numTLVs, f.SubFrame,
	} {
		_ = binary.Write(&out, binary.LittleEndian, v)
	}
	out.Write(body.Bytes())
	return out.Bytes()
}

// Frame builds a well-formed frame with the given number and TLVs.
func Frame(frameNumber uint32, tlvs ...TLV) []byte {
	return FrameSpec{FrameNumber: frameNumber, TLVs: tlvs}.Bytes()
}

// Stream concatenates frames and noise into one byte stream.
func Stream(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

// LE packs fixed-size values (ints of explicit width, floats, and slices of
// them) in little-endian order.
func LE(values ...interface{}) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			panic(err)
		}
	}
	return buf.Bytes()
}

// HeatmapTLV returns a type 5 range-Doppler TLV holding samples.
func HeatmapTLV(samples []uint16) TLV {
	return TLV{Type: 5, Payload: LE(samples)}
}

// PointsTLV returns a type 1 TLV of x, y, z, doppler float32 quadruples.
func PointsTLV(points ...[4]float32) TLV {
	return TLV{Type: 1, Payload: LE(points)}
}
