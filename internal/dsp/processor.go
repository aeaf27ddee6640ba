package dsp

import (
	"fmt"
	"time"

	"github.com/baxasd/OST-Radar/internal/chirp"
)

// ProcessedFrame is the display and analysis form of one heatmap. Every
// field is freshly allocated and must not be modified by consumers.
type ProcessedFrame struct {
	FrameNumber uint32
	Timestamp   time.Time
	// RangeDopplerDB has zero Doppler in the centre column, is cropped to
	// the configured range and, when enabled, background subtracted and
	// range gated.
	RangeDopplerDB Matrix
	Levels         Levels
	// Raw is the cropped heatmap before shifting, in sensor counts, as
	// kept by recordings.
	Raw []uint16
}

// ProcessorConfig selects the per-frame transform chain.
type ProcessorConfig struct {
	RangeBins        int
	DopplerBins      int
	RangeResolutionM float64

	// MaxRangeM crops rows beyond this range; zero keeps all rows.
	MaxRangeM float64
	// MinRangeM gates rows nearer than this to FloorDB; zero disables gating.
	MinRangeM float64
	FloorDB   float32

	// SubtractBackground enables clutter removal with ClutterAlpha.
	SubtractBackground bool
	ClutterAlpha       float32

	// Levels configures the display bounds; nil uses NewLevelTracker.
	Levels *LevelTracker
}

// ConfigFor returns the live-view processing defaults for a chirp profile.
func ConfigFor(cfg *chirp.RadarConfig) ProcessorConfig {
	return ProcessorConfig{
		RangeBins:          cfg.RangeBins(),
		DopplerBins:        cfg.DopplerBins(),
		RangeResolutionM:   cfg.RangeResolutionM,
		MinRangeM:          0.5,
		FloorDB:            DefaultFloorDB,
		SubtractBackground: true,
		ClutterAlpha:       DefaultClutterAlpha,
	}
}

// Processor applies reshape, crop, shift, dB, background, gate and levels
// to each heatmap of one live stream. It is not safe for concurrent use.
type Processor struct {
	cfg        ProcessorConfig
	cropRows   int
	gateRows   int
	background *Background
	levels     *LevelTracker
}

// NewProcessor validates cfg and returns a Processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.RangeBins <= 0 || cfg.DopplerBins <= 0 {
		return nil, fmt.Errorf("%w: %dx%d heatmap", ErrShape, cfg.RangeBins, cfg.DopplerBins)
	}
	if cfg.SubtractBackground && (cfg.ClutterAlpha < 0 || cfg.ClutterAlpha >= 1) {
		return nil, fmt.Errorf("dsp: clutter alpha must be in [0, 1), got %v", cfg.ClutterAlpha)
	}
	p := &Processor{
		cfg:        cfg,
		cropRows:   CropBins(cfg.MaxRangeM, cfg.RangeResolutionM, cfg.RangeBins),
		background: NewBackground(cfg.ClutterAlpha),
		levels:     cfg.Levels,
	}
	if cfg.MinRangeM > 0 {
		p.gateRows = MinRangeBin(cfg.MinRangeM, cfg.RangeResolutionM)
	}
	if p.levels == nil {
		p.levels = NewLevelTracker()
	}
	return p, nil
}

// CropRows is the number of range rows kept after cropping.
func (p *Processor) CropRows() int { return p.cropRows }

// GateRows is the number of leading rows forced to the floor.
func (p *Processor) GateRows() int { return p.gateRows }

// Background exposes the clutter estimator.
func (p *Processor) Background() *Background { return p.background }

// Reset clears the background estimate and display levels, as when a new
// recording starts.
func (p *Processor) Reset() {
	p.background.Reset()
	p.levels.Reset()
}

// Process runs the transform chain over one flat heatmap.
func (p *Processor) Process(frameNumber uint32, ts time.Time, heatmap []uint16) (*ProcessedFrame, error) {
	m, err := Reshape(heatmap, p.cfg.RangeBins, p.cfg.DopplerBins)
	if err != nil {
		return nil, err
	}
	raw := make([]uint16, p.cropRows*p.cfg.DopplerBins)
	copy(raw, heatmap)

	m = CropRows(m, p.cropRows)
	db := ToDB(FFTShift(m))
	if p.cfg.SubtractBackground {
		db = p.background.Apply(db)
	}
	if p.gateRows > 0 {
		GateRange(db, p.gateRows, p.cfg.FloorDB)
	}

	return &ProcessedFrame{
		FrameNumber:    frameNumber,
		Timestamp:      ts,
		RangeDopplerDB: db,
		Levels:         p.levels.Update(db),
		Raw:            raw,
	}, nil
}
