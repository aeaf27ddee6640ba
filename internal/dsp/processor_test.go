package dsp

import (
	"errors"
	"testing"
	"time"

	"github.com/baxasd/OST-Radar/internal/chirp"
)

const iskProfile = `channelCfg 15 7 0
profileCfg 0 60 7 3 24 0 0 166 1 256 12500 0 0 30
frameCfg 0 2 16 0 100 1 0
`

func mustConfig(t *testing.T) *chirp.RadarConfig {
	t.Helper()
	cfg, err := chirp.Parse(iskProfile)
	if err != nil {
		t.Fatalf("chirp.Parse failed: %v", err)
	}
	return cfg
}

func rampHeatmap(n int) []uint16 {
	h := make([]uint16, n)
	for i := range h {
		h[i] = uint16(i % 1000)
	}
	return h
}

func TestNewProcessor_Validation(t *testing.T) {
	if _, err := NewProcessor(ProcessorConfig{RangeBins: 0, DopplerBins: 16}); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
	_, err := NewProcessor(ProcessorConfig{RangeBins: 4, DopplerBins: 4, SubtractBackground: true, ClutterAlpha: 1})
	if err == nil {
		t.Error("expected alpha validation error")
	}
}

func TestProcessor_ChainWithDefaults(t *testing.T) {
	cfg := mustConfig(t)
	pc := ConfigFor(cfg)
	pc.MaxRangeM = 5.0
	p, err := NewProcessor(pc)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}
	if p.CropRows() != 113 {
		t.Errorf("CropRows = %d, want 113", p.CropRows())
	}
	if p.GateRows() != 11 {
		t.Errorf("GateRows = %d, want 11", p.GateRows())
	}

	heatmap := rampHeatmap(256 * 16)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	pf, err := p.Process(42, ts, heatmap)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if pf.FrameNumber != 42 || !pf.Timestamp.Equal(ts) {
		t.Errorf("metadata = %d %v", pf.FrameNumber, pf.Timestamp)
	}
	m := pf.RangeDopplerDB
	if m.Rows != 113 || m.Cols != 16 {
		t.Fatalf("shape = %dx%d, want 113x16", m.Rows, m.Cols)
	}
	if len(pf.Raw) != 113*16 {
		t.Errorf("len(Raw) = %d, want %d", len(pf.Raw), 113*16)
	}
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			want := float32(0)
			if r < 11 {
				want = DefaultFloorDB
			}
			if got := m.At(r, c); got != want {
				t.Fatalf("first frame [%d,%d] = %v, want %v", r, c, got, want)
			}
		}
	}
	if !p.Background().Primed() {
		t.Error("background should be primed")
	}

	heatmap[0] = 9
	if pf.Raw[0] != 0 {
		t.Error("Raw shares storage with the input heatmap")
	}
}

func TestProcessor_NoBackground(t *testing.T) {
	p, err := NewProcessor(ProcessorConfig{RangeBins: 2, DopplerBins: 4})
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}
	pf, err := p.Process(1, time.Time{}, []uint16{0, 9, 99, 999, 1, 1, 1, 1})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	// shifted row 0 is [99 999 0 9]
	want := ToDB(matrixOf(2, 4, 99, 999, 0, 9, 1, 1, 1, 1))
	if !equalData(pf.RangeDopplerDB.Data, want.Data) {
		t.Errorf("RangeDopplerDB = %v, want %v", pf.RangeDopplerDB.Data, want.Data)
	}
	if p.Background().Primed() {
		t.Error("background should stay unseeded when disabled")
	}
}

func TestProcessor_ShapeMismatch(t *testing.T) {
	p, err := NewProcessor(ProcessorConfig{RangeBins: 4, DopplerBins: 4})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Process(1, time.Time{}, make([]uint16, 15)); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestProcessor_Reset(t *testing.T) {
	pc := ConfigFor(mustConfig(t))
	p, err := NewProcessor(pc)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Process(1, time.Time{}, rampHeatmap(256*16)); err != nil {
		t.Fatal(err)
	}
	p.Reset()
	if p.Background().Primed() {
		t.Error("Reset should clear the background")
	}
}

func TestAxes(t *testing.T) {
	cfg := mustConfig(t)
	r := RangeAxis(cfg, 3)
	if r[0] != 0 || r[2] != 2*cfg.RangeResolutionM {
		t.Errorf("RangeAxis = %v", r)
	}
	v := VelocityAxis(cfg)
	if len(v) != 16 {
		t.Fatalf("len(VelocityAxis) = %d", len(v))
	}
	if v[0] != -cfg.DopplerMaxMps {
		t.Errorf("v[0] = %v, want %v", v[0], -cfg.DopplerMaxMps)
	}
	if diff := v[15] - cfg.DopplerMaxMps; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("v[15] = %v, want %v", v[15], cfg.DopplerMaxMps)
	}
}
