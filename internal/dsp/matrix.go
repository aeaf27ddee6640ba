// Package dsp turns decoded range-Doppler heatmaps into analysis-ready
// matrices: Doppler FFT-shift, log-power conversion, clutter background
// subtraction, range gating and cropping, percentile display levels, and
// micro-Doppler cadence extraction over a recording.
package dsp

import (
	"errors"
	"fmt"
)

// ErrShape is returned when data does not match the requested dimensions.
var ErrShape = errors.New("dsp: shape mismatch")

// Matrix is a dense row-major float32 matrix. For range-Doppler data rows
// are range bins and columns are Doppler bins.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// NewMatrix allocates a zeroed rows x cols matrix.
func NewMatrix(rows, cols int) Matrix {
	return Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// At returns the element at row r, column c.
func (m Matrix) At(r, c int) float32 { return m.Data[r*m.Cols+c] }

// Set assigns the element at row r, column c.
func (m Matrix) Set(r, c int, v float32) { m.Data[r*m.Cols+c] = v }

// Row returns row r as a slice sharing the matrix storage.
func (m Matrix) Row(r int) []float32 { return m.Data[r*m.Cols : (r+1)*m.Cols] }

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	out := Matrix{Rows: m.Rows, Cols: m.Cols, Data: make([]float32, len(m.Data))}
	copy(out.Data, m.Data)
	return out
}

// Reshape interprets a flat heatmap as a rows x cols matrix, range varying
// slowest.
func Reshape(flat []uint16, rows, cols int) (Matrix, error) {
	if rows <= 0 || cols <= 0 || len(flat) != rows*cols {
		return Matrix{}, fmt.Errorf("%w: %d samples for %dx%d", ErrShape, len(flat), rows, cols)
	}
	m := NewMatrix(rows, cols)
	for i, v := range flat {
		m.Data[i] = float32(v)
	}
	return m, nil
}
