package dsp

import "math"

// Amplitude floor added before taking the logarithm so empty bins map to
// -120 dB rather than -Inf.
const dbEpsilon = 1e-6

// DefaultFloorDB is the display floor used for gated rows.
const DefaultFloorDB = -80

// FFTShift rotates each row so the zero-Doppler bin moves to the centre.
// Odd row lengths shift by floor(cols/2), the usual fftshift convention.
func FFTShift(m Matrix) Matrix {
	return rollCols(m, m.Cols/2)
}

// IFFTShift undoes FFTShift for both even and odd row lengths.
func IFFTShift(m Matrix) Matrix {
	return rollCols(m, -(m.Cols / 2))
}

func rollCols(m Matrix, shift int) Matrix {
	out := NewMatrix(m.Rows, m.Cols)
	if m.Cols == 0 {
		return out
	}
	shift = ((shift % m.Cols) + m.Cols) % m.Cols
	for r := 0; r < m.Rows; r++ {
		src := m.Row(r)
		dst := out.Row(r)
		copy(dst[shift:], src[:m.Cols-shift])
		copy(dst[:shift], src[m.Cols-shift:])
	}
	return out
}

// ToDB converts amplitudes to decibels: 20*log10(|x| + 1e-6).
func ToDB(m Matrix) Matrix {
	out := NewMatrix(m.Rows, m.Cols)
	for i, v := range m.Data {
		out.Data[i] = float32(20 * math.Log10(math.Abs(float64(v))+dbEpsilon))
	}
	return out
}

// MinRangeBin returns the number of leading range bins closer than
// minRangeM, never less than one. A non-positive resolution yields 1.
func MinRangeBin(minRangeM, rangeResM float64) int {
	if rangeResM <= 0 {
		return 1
	}
	bin := int(math.Floor(minRangeM / rangeResM))
	if bin < 1 {
		return 1
	}
	return bin
}

// GateRange overwrites the first bins rows of m with floor, in place.
func GateRange(m Matrix, bins int, floor float32) {
	if bins > m.Rows {
		bins = m.Rows
	}
	for i := 0; i < bins*m.Cols; i++ {
		m.Data[i] = floor
	}
}

// CropBins returns how many range bins cover maxRangeM, capped at
// rangeBins. A non-positive maxRangeM or resolution disables cropping.
func CropBins(maxRangeM, rangeResM float64, rangeBins int) int {
	if maxRangeM <= 0 || rangeResM <= 0 {
		return rangeBins
	}
	bins := int(math.Floor(maxRangeM / rangeResM))
	if bins > rangeBins {
		return rangeBins
	}
	if bins < 0 {
		return 0
	}
	return bins
}

// CropRows returns a copy of the first n rows of m.
func CropRows(m Matrix, n int) Matrix {
	if n > m.Rows {
		n = m.Rows
	}
	if n < 0 {
		n = 0
	}
	out := NewMatrix(n, m.Cols)
	copy(out.Data, m.Data[:n*m.Cols])
	return out
}
