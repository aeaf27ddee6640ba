package tlv

import "encoding/binary"

const (
	trackSize      = 112 // u32 + 27 x f32
	vitalsSize     = 136 // 2 x u16 + 33 x f32
	waveformLength = 15
)

// Track is one tracked target from the group tracker.
type Track struct {
	ID               uint32
	X, Y, Z          float32
	VelX, VelY, VelZ float32
	AccX, AccY, AccZ float32
	G                float32
	Confidence       float32
}

// Vitals is the vital-signs record for the monitored patient.
type Vitals struct {
	ID              uint16
	RangeBin        uint16
	BreathDeviation float32
	HeartRate       float32
	BreathRate      float32
	HeartWaveform   [waveformLength]float32
	BreathWaveform  [waveformLength]float32
}

func decodeTracks(payload []byte) ([]Track, error) {
	n, err := recordCount(len(payload), trackSize)
	tracks := make([]Track, n)
	for i := range tracks {
		rec := payload[i*trackSize:]
		// float fields start at byte 4; index k of the 27 lives at 4+4k
		fk := func(k int) float32 { return f32(rec[4+4*k:]) }
		tracks[i] = Track{
			ID:         binary.LittleEndian.Uint32(rec[0:]),
			X:          fk(0),
			Y:          fk(1),
			Z:          fk(2),
			VelX:       fk(3),
			VelY:       fk(4),
			VelZ:       fk(5),
			AccX:       fk(6),
			AccY:       fk(7),
			AccZ:       fk(8),
			G:          fk(25),
			Confidence: fk(26),
		}
	}
	return tracks, err
}

func decodeVitals(payload []byte) (*Vitals, error) {
	if len(payload) < vitalsSize {
		return nil, ErrShortPayload
	}
	le := binary.LittleEndian
	v := &Vitals{
		ID:              le.Uint16(payload[0:]),
		RangeBin:        le.Uint16(payload[2:]),
		BreathDeviation: f32(payload[4:]),
		HeartRate:       f32(payload[8:]),
		BreathRate:      f32(payload[12:]),
	}
	for i := 0; i < waveformLength; i++ {
		v.HeartWaveform[i] = f32(payload[16+4*i:])
		v.BreathWaveform[i] = f32(payload[16+4*waveformLength+4*i:])
	}
	var err error
	if len(payload) > vitalsSize {
		err = ErrTrailingBytes
	}
	return v, err
}
