package dsp

import (
	"math"
	"testing"

	"github.com/baxasd/OST-Radar/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func filled(rows, cols int, v float32) Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = v
	}
	return m
}

func TestBackground_FirstFrameSeeds(t *testing.T) {
	b := NewBackground(0.98)
	if b.Primed() {
		t.Fatal("new background should not be primed")
	}
	out := b.Apply(matrixOf(1, 3, -10, -20, -30))
	if !b.Primed() {
		t.Fatal("background should be primed after first frame")
	}
	for i, v := range out.Data {
		if v != 0 {
			t.Errorf("first output[%d] = %v, want 0", i, v)
		}
	}
	if est := b.Estimate(); !equalData(est.Data, []float32{-10, -20, -30}) {
		t.Errorf("estimate = %v", est.Data)
	}
}

func TestBackground_EMAUpdate(t *testing.T) {
	b := NewBackground(0.9)
	b.Apply(filled(1, 2, 0))
	out := b.Apply(filled(1, 2, 10))
	// background = 0.9*0 + 0.1*10 = 1, output = 10 - 1
	for _, v := range out.Data {
		if math.Abs(float64(v)-9) > 1e-5 {
			t.Errorf("output = %v, want 9", v)
		}
	}
}

func TestBackground_ConvergesToConstantInput(t *testing.T) {
	const alpha = 0.9
	b := NewBackground(alpha)
	b.Apply(filled(4, 4, 0))

	target := filled(4, 4, 10)
	var out Matrix
	frames := 150
	for i := 0; i < frames; i++ {
		out = b.Apply(target)
	}
	// residual decays as alpha^k times the initial step
	bound := 10*math.Pow(alpha, float64(frames)) + 1e-4
	for i, v := range out.Data {
		if math.Abs(float64(v)) > bound {
			t.Fatalf("output[%d] = %v after %d frames, want |x| <= %v", i, v, frames, bound)
		}
	}
}

func TestBackground_Reset(t *testing.T) {
	b := NewBackground(0.5)
	b.Apply(filled(1, 1, 5))
	b.Reset()
	if b.Primed() {
		t.Fatal("Reset should unprime")
	}
	if est := b.Estimate(); est.Rows != 0 {
		t.Errorf("Estimate after Reset = %+v", est)
	}
	out := b.Apply(filled(1, 1, 7))
	if out.Data[0] != 0 {
		t.Errorf("first frame after Reset = %v, want 0", out.Data[0])
	}
}

func TestBackground_ShapeChangeReseeds(t *testing.T) {
	b := NewBackground(0.5)
	b.Apply(filled(2, 2, 1))
	out := b.Apply(filled(3, 2, 4))
	if out.Rows != 3 {
		t.Fatalf("rows = %d, want 3", out.Rows)
	}
	for _, v := range out.Data {
		if v != 0 {
			t.Fatalf("reseeded output = %v, want zeros", out.Data)
		}
	}
}
