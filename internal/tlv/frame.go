// Package tlv decodes TI mmWave frames into structured records.
//
// Frame layout (little-endian):
//
//	offset  size  field
//	     0     8  magic word 02 01 04 03 06 05 08 07
//	     8     4  version
//	    12     4  total packet length
//	    16     4  platform
//	    20     4  frame number
//	    24     4  CPU cycle time
//	    28     4  number of detected objects
//	    32     4  number of TLVs
//	    36     4  sub-frame number
//	    40     -  TLVs: type u32, length u32, length bytes of payload
//
// Parse never panics and never returns an error. A frame too short for its
// header is flagged with Error; a truncated TLV tail ends decoding but keeps
// everything decoded before it; a TLV whose payload does not unpack cleanly
// contributes what it can and records a DecodeError.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed frame header length in bytes.
const HeaderSize = 40

// tlvHeaderSize is the type and length prefix of each TLV.
const tlvHeaderSize = 8

// MagicWord is the frame marker read as a little-endian u64.
const MagicWord uint64 = 0x0708050603040102

// TLV type codes.
const (
	TypeDetectedPoints      uint32 = 1
	TypeRangeProfile        uint32 = 2
	TypeRangeDopplerHeatmap uint32 = 5
	TypeSideInfo            uint32 = 7
	TypeExtPointCloud       uint32 = 301
	TypeSphericalPoints     uint32 = 1000
	TypeTracks              uint32 = 1010
	TypeCompressedPoints    uint32 = 1020
	TypeVitals              uint32 = 1040
)

// ErrTlvDecode is the sentinel matched by every *DecodeError.
var ErrTlvDecode = errors.New("tlv decode failed")

// Decode failure causes carried inside a DecodeError.
var (
	ErrShortPayload  = errors.New("payload shorter than one record")
	ErrTrailingBytes = errors.New("payload ends in a partial record")
	ErrSideInfoOrder = errors.New("side info without a preceding point cloud")
	ErrSideInfoCount = errors.New("side info count exceeds point count")
)

// DecodeError records a TLV that could not be fully decoded. Index is the
// TLV's position within the frame.
type DecodeError struct {
	Type  uint32
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("tlv type %d (index %d): %v", e.Type, e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is reports true for ErrTlvDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrTlvDecode }

// Header holds the fixed frame header fields.
type Header struct {
	Magic              uint64
	Version            uint32
	TotalPacketLength  uint32
	Platform           uint32
	FrameNumber        uint32
	CPUCycleTime       uint32
	NumDetectedObjects uint32
	NumTLVs            uint32
	SubFrameNumber     uint32
}

// RadarFrame is one decoded frame. Optional fields are nil when the frame
// carried no TLV of that kind. When a kind repeats the last one wins, unless
// it failed to decode and produced nothing.
type RadarFrame struct {
	Header Header
	// Error is set when the buffer is too short for the header or the magic
	// word does not match.
	Error bool
	// Truncated is set when the TLV loop stopped before NumTLVs records.
	Truncated bool

	Heatmap      []uint16
	RangeProfile []uint16
	PointCloud   *PointCloud
	Tracks       []Track
	Vitals       *Vitals

	DecodeErrors []error
}

// FrameNumber is a shorthand for Header.FrameNumber.
func (f *RadarFrame) FrameNumber() uint32 { return f.Header.FrameNumber }

// Options selects firmware-specific decoding behaviour.
type Options struct {
	// PointFormat is the record layout of TLV type 1. The firmware build
	// determines it; the payload does not.
	PointFormat PointFormat
}

// Parse decodes a raw frame.
func Parse(raw []byte, opts Options) *RadarFrame {
	frame := &RadarFrame{}
	if len(raw) < HeaderSize {
		frame.Error = true
		return frame
	}

	le := binary.LittleEndian
	frame.Header = Header{
		Magic:              le.Uint64(raw[0:8]),
		Version:            le.Uint32(raw[8:12]),
		TotalPacketLength:  le.Uint32(raw[12:16]),
		Platform:           le.Uint32(raw[16:20]),
		FrameNumber:        le.Uint32(raw[20:24]),
		CPUCycleTime:       le.Uint32(raw[24:28]),
		NumDetectedObjects: le.Uint32(raw[28:32]),
		NumTLVs:            le.Uint32(raw[32:36]),
		SubFrameNumber:     le.Uint32(raw[36:40]),
	}
	if frame.Header.Magic != MagicWord {
		frame.Error = true
		return frame
	}

	data := raw[HeaderSize:]
	for i := 0; i < int(frame.Header.NumTLVs); i++ {
		if len(data) < tlvHeaderSize {
			frame.Truncated = true
			break
		}
		typ := le.Uint32(data[0:4])
		length := le.Uint32(data[4:8])
		data = data[tlvHeaderSize:]
		if uint64(len(data)) < uint64(length) {
			frame.Truncated = true
			break
		}
		frame.decodeTLV(typ, i, data[:length], opts)
		data = data[length:]
	}
	return frame
}

func (f *RadarFrame) decodeTLV(typ uint32, index int, payload []byte, opts Options) {
	var err error
	switch typ {
	case TypeRangeDopplerHeatmap:
		var v []uint16
		if v, err = decodeUint16s(payload); !keepPrior(err, len(v), f.Heatmap != nil) {
			f.Heatmap = v
		}
	case TypeRangeProfile:
		var v []uint16
		if v, err = decodeUint16s(payload); !keepPrior(err, len(v), f.RangeProfile != nil) {
			f.RangeProfile = v
		}
	case TypeDetectedPoints:
		err = f.setPointCloud(decodePoints(typ, payload, opts.PointFormat))
	case TypeSphericalPoints:
		err = f.setPointCloud(decodePoints(typ, payload, PointFormatSpherical))
	case TypeExtPointCloud:
		err = f.setPointCloud(decodeExtPoints(payload))
	case TypeCompressedPoints:
		err = f.setPointCloud(decodeCompressedPoints(payload))
	case TypeSideInfo:
		err = f.mergeSideInfo(payload)
	case TypeTracks:
		var v []Track
		if v, err = decodeTracks(payload); !keepPrior(err, len(v), f.Tracks != nil) {
			f.Tracks = v
		}
	case TypeVitals:
		var v *Vitals
		if v, err = decodeVitals(payload); v != nil || f.Vitals == nil {
			f.Vitals = v
		}
	default:
		return
	}
	if err != nil {
		f.DecodeErrors = append(f.DecodeErrors, &DecodeError{Type: typ, Index: index, Err: err})
	}
}

func (f *RadarFrame) setPointCloud(pc *PointCloud, err error) error {
	n := 0
	if pc != nil {
		n = len(pc.Points)
	}
	if !keepPrior(err, n, f.PointCloud != nil) {
		f.PointCloud = pc
	}
	return err
}

// keepPrior reports whether a failed decode that yielded n records should
// leave an earlier record of the same kind in place.
func keepPrior(err error, n int, hasPrior bool) bool {
	return err != nil && n == 0 && hasPrior
}

// recordCount returns how many whole records of size fit in n bytes and an
// error if bytes are left over.
func recordCount(n, size int) (int, error) {
	count := n / size
	if n%size != 0 {
		return count, ErrTrailingBytes
	}
	return count, nil
}

func decodeUint16s(payload []byte) ([]uint16, error) {
	n, err := recordCount(len(payload), 2)
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(payload[2*i:])
	}
	return out, err
}
