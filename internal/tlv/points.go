package tlv

import (
	"encoding/binary"
	"math"
)

// PointFormat is the record layout of a plain point cloud TLV.
type PointFormat int

const (
	// PointFormatCartesian records are x, y, z, doppler as float32.
	PointFormatCartesian PointFormat = iota
	// PointFormatSpherical records are range, azimuth, elevation, doppler
	// as float32 and are converted to Cartesian on decode.
	PointFormatSpherical
)

func (f PointFormat) String() string {
	switch f {
	case PointFormatCartesian:
		return "cartesian"
	case PointFormatSpherical:
		return "spherical"
	default:
		return "unknown"
	}
}

// Record sizes in bytes.
const (
	pointSize           = 16 // 4 x f32
	extUnitsSize        = 20 // 4 x f32 + 2 x i16
	extPointSize        = 10 // 4 x i16 + 2 x u8
	compressedUnitsSize = 20 // 5 x f32
	compressedPointSize = 8  // 2 x i8 + i16 + 2 x u16
	sideInfoSize        = 4  // 2 x u16
	sideInfoScale       = 0.1
)

// Point is one detection in Cartesian coordinates (metres, m/s). SNR and
// Noise are in dB and are zero unless the firmware reported them.
type Point struct {
	X, Y, Z float32
	Doppler float32
	SNR     float32
	Noise   float32
}

// PointCloud is the set of detections from one point cloud TLV.
type PointCloud struct {
	// Source is the TLV type the points were decoded from.
	Source uint32
	Points []Point
	// HasSideInfo is set once SNR and Noise have been populated.
	HasSideInfo bool
}

// SphericalToCartesian converts range, azimuth and elevation (radians) to
// x, y, z with y along boresight.
func SphericalToCartesian(r, az, el float64) (x, y, z float64) {
	cosEl := math.Cos(el)
	return r * math.Sin(az) * cosEl, r * math.Cos(az) * cosEl, r * math.Sin(el)
}

func f32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func decodePoints(source uint32, payload []byte, format PointFormat) (*PointCloud, error) {
	n, err := recordCount(len(payload), pointSize)
	pc := &PointCloud{Source: source, Points: make([]Point, n)}
	for i := range pc.Points {
		rec := payload[i*pointSize:]
		a, b, c, d := f32(rec[0:]), f32(rec[4:]), f32(rec[8:]), f32(rec[12:])
		if format == PointFormatSpherical {
			x, y, z := SphericalToCartesian(float64(a), float64(b), float64(c))
			pc.Points[i] = Point{X: float32(x), Y: float32(y), Z: float32(z), Doppler: d}
			continue
		}
		pc.Points[i] = Point{X: a, Y: b, Z: c, Doppler: d}
	}
	return pc, err
}

// decodeExtPoints decodes the compressed Cartesian cloud of the xWRL6432
// SDK: a units header followed by int16 coordinates and uint8 SNR/noise.
func decodeExtPoints(payload []byte) (*PointCloud, error) {
	pc := &PointCloud{Source: TypeExtPointCloud, HasSideInfo: true}
	if len(payload) < extUnitsSize {
		return pc, ErrShortPayload
	}
	xyzUnit, dopplerUnit := f32(payload[0:]), f32(payload[4:])
	snrUnit, noiseUnit := f32(payload[8:]), f32(payload[12:])

	body := payload[extUnitsSize:]
	n, err := recordCount(len(body), extPointSize)
	pc.Points = make([]Point, n)
	le := binary.LittleEndian
	for i := range pc.Points {
		rec := body[i*extPointSize:]
		pc.Points[i] = Point{
			X:       float32(int16(le.Uint16(rec[0:]))) * xyzUnit,
			Y:       float32(int16(le.Uint16(rec[2:]))) * xyzUnit,
			Z:       float32(int16(le.Uint16(rec[4:]))) * xyzUnit,
			Doppler: float32(int16(le.Uint16(rec[6:]))) * dopplerUnit,
			SNR:     float32(rec[8]) * snrUnit,
			Noise:   float32(rec[9]) * noiseUnit,
		}
	}
	return pc, err
}

// decodeCompressedPoints decodes the spherical cloud of the Capon chain:
// a units header (elevation, azimuth, doppler, range, snr) followed by
// int8 elevation, int8 azimuth, int16 doppler, uint16 range, uint16 snr.
func decodeCompressedPoints(payload []byte) (*PointCloud, error) {
	pc := &PointCloud{Source: TypeCompressedPoints, HasSideInfo: true}
	if len(payload) < compressedUnitsSize {
		return pc, ErrShortPayload
	}
	elUnit, azUnit := f32(payload[0:]), f32(payload[4:])
	dopplerUnit, rangeUnit, snrUnit := f32(payload[8:]), f32(payload[12:]), f32(payload[16:])

	body := payload[compressedUnitsSize:]
	n, err := recordCount(len(body), compressedPointSize)
	pc.Points = make([]Point, n)
	le := binary.LittleEndian
	for i := range pc.Points {
		rec := body[i*compressedPointSize:]
		el := float64(float32(int8(rec[0])) * elUnit)
		az := float64(float32(int8(rec[1])) * azUnit)
		doppler := float32(int16(le.Uint16(rec[2:]))) * dopplerUnit
		r := float64(float32(le.Uint16(rec[4:])) * rangeUnit)
		snr := float32(le.Uint16(rec[6:])) * snrUnit

		x, y, z := SphericalToCartesian(r, az, el)
		pc.Points[i] = Point{X: float32(x), Y: float32(y), Z: float32(z), Doppler: doppler, SNR: snr}
	}
	return pc, err
}

// mergeSideInfo applies per-point SNR and noise (0.1 dB units) to the
// point cloud by index. The firmware always sends the point cloud TLV
// first; side info arriving without one is reported, not applied.
func (f *RadarFrame) mergeSideInfo(payload []byte) error {
	if f.PointCloud == nil {
		return ErrSideInfoOrder
	}
	n, err := recordCount(len(payload), sideInfoSize)
	points := f.PointCloud.Points
	if n > len(points) {
		n = len(points)
		if err == nil {
			err = ErrSideInfoCount
		}
	}
	le := binary.LittleEndian
	for i := 0; i < n; i++ {
		rec := payload[i*sideInfoSize:]
		points[i].SNR = float32(float64(le.Uint16(rec[0:])) * sideInfoScale)
		points[i].Noise = float32(float64(le.Uint16(rec[2:])) * sideInfoScale)
	}
	f.PointCloud.HasSideInfo = true
	return err
}
