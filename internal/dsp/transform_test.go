package dsp

import (
	"errors"
	"math"
	"testing"
)

func matrixOf(rows, cols int, vals ...float32) Matrix {
	m := NewMatrix(rows, cols)
	copy(m.Data, vals)
	return m
}

func equalData(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReshape(t *testing.T) {
	m, err := Reshape([]uint16{1, 2, 3, 4, 5, 6}, 2, 3)
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if m.At(0, 2) != 3 || m.At(1, 0) != 4 {
		t.Errorf("unexpected layout: %v", m.Data)
	}

	for _, tc := range []struct {
		n, rows, cols int
	}{
		{5, 2, 3},
		{6, 0, 6},
		{0, 0, 0},
	} {
		if _, err := Reshape(make([]uint16, tc.n), tc.rows, tc.cols); !errors.Is(err, ErrShape) {
			t.Errorf("Reshape(%d, %d, %d) error = %v, want ErrShape", tc.n, tc.rows, tc.cols, err)
		}
	}
}

func TestClone(t *testing.T) {
	m := matrixOf(1, 2, 1, 2)
	c := m.Clone()
	c.Set(0, 0, 9)
	if m.At(0, 0) != 1 {
		t.Error("Clone shares storage")
	}
}

func TestFFTShift_Even(t *testing.T) {
	m := matrixOf(2, 4, 0, 1, 2, 3, 4, 5, 6, 7)
	got := FFTShift(m)
	want := []float32{2, 3, 0, 1, 6, 7, 4, 5}
	if !equalData(got.Data, want) {
		t.Errorf("FFTShift = %v, want %v", got.Data, want)
	}
	if !equalData(FFTShift(got).Data, m.Data) {
		t.Error("FFTShift applied twice should be the identity on even rows")
	}
	if !equalData(m.Data, []float32{0, 1, 2, 3, 4, 5, 6, 7}) {
		t.Error("FFTShift modified its input")
	}
}

func TestFFTShift_Odd(t *testing.T) {
	m := matrixOf(1, 5, 0, 1, 2, 3, 4)
	got := FFTShift(m)
	// fftshift([0 1 2 3 4]) == [3 4 0 1 2]
	if want := []float32{3, 4, 0, 1, 2}; !equalData(got.Data, want) {
		t.Errorf("FFTShift = %v, want %v", got.Data, want)
	}
	if back := IFFTShift(got); !equalData(back.Data, m.Data) {
		t.Errorf("IFFTShift(FFTShift(x)) = %v, want %v", back.Data, m.Data)
	}
}

func TestToDB(t *testing.T) {
	m := matrixOf(1, 4, 0, 1, -10, 1000)
	got := ToDB(m)
	want := []float64{
		20 * math.Log10(1e-6),
		20 * math.Log10(1+1e-6),
		20 * math.Log10(10+1e-6),
		20 * math.Log10(1000+1e-6),
	}
	for i, w := range want {
		if math.Abs(float64(got.Data[i])-w) > 1e-4 {
			t.Errorf("ToDB[%d] = %v, want %v", i, got.Data[i], w)
		}
	}
	if got.Data[0] != -120 {
		t.Errorf("zero amplitude = %v dB, want -120", got.Data[0])
	}
}

func TestMinRangeBin(t *testing.T) {
	tests := []struct {
		minRange, res float64
		want          int
	}{
		{0.5, 0.0441, 11},
		{0.5, 0.1, 5},
		{0.01, 0.0441, 1},
		{0, 0.0441, 1},
		{0.5, 0, 1},
	}
	for _, tt := range tests {
		if got := MinRangeBin(tt.minRange, tt.res); got != tt.want {
			t.Errorf("MinRangeBin(%v, %v) = %d, want %d", tt.minRange, tt.res, got, tt.want)
		}
	}
}

func TestGateRange(t *testing.T) {
	m := matrixOf(3, 2, 1, 2, 3, 4, 5, 6)
	GateRange(m, 2, -80)
	if want := []float32{-80, -80, -80, -80, 5, 6}; !equalData(m.Data, want) {
		t.Errorf("GateRange = %v, want %v", m.Data, want)
	}
	GateRange(m, 10, -1)
	for _, v := range m.Data {
		if v != -1 {
			t.Fatalf("GateRange beyond rows left %v", m.Data)
		}
	}
}

func TestCropBins(t *testing.T) {
	tests := []struct {
		maxRange, res float64
		bins, want    int
	}{
		{5.0, 0.0441, 256, 113},
		{50, 0.0441, 256, 256},
		{0, 0.0441, 256, 256},
		{5, 0, 256, 256},
	}
	for _, tt := range tests {
		if got := CropBins(tt.maxRange, tt.res, tt.bins); got != tt.want {
			t.Errorf("CropBins(%v, %v, %d) = %d, want %d", tt.maxRange, tt.res, tt.bins, got, tt.want)
		}
	}
}

func TestCropRows(t *testing.T) {
	m := matrixOf(3, 2, 1, 2, 3, 4, 5, 6)
	c := CropRows(m, 2)
	if c.Rows != 2 || !equalData(c.Data, []float32{1, 2, 3, 4}) {
		t.Errorf("CropRows = %+v", c)
	}
	c.Set(0, 0, 99)
	if m.At(0, 0) != 1 {
		t.Error("CropRows shares storage")
	}
	if c := CropRows(m, 9); c.Rows != 3 {
		t.Errorf("CropRows beyond rows = %d rows", c.Rows)
	}
}
