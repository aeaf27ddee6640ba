package dsp

import (
	"math"
	"sort"
)

// Percentile returns the p-th percentile (0-100) of values using linear
// interpolation between closest ranks (Hyndman-Fan type 7).
// It returns NaN for an empty input. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Levels are the display bounds for a dB matrix.
type Levels struct {
	Low  float32
	High float32
}

// DefaultLevels is the fixed scale used until enough signal is present.
var DefaultLevels = Levels{Low: DefaultFloorDB, High: 0}

// LevelTracker computes percentile display levels, refreshing them only
// every Every frames so the colour scale does not flicker.
type LevelTracker struct {
	// Every is the refresh interval in frames.
	Every int
	// LowPct and HighPct are the percentiles used for the bounds.
	LowPct  float64
	HighPct float64
	// Threshold excludes values at or below it from the statistics.
	Threshold float32
	// MinCount is the number of values above Threshold required; with
	// fewer, Default is used.
	MinCount int
	Default  Levels

	frames  int
	current Levels
	primed  bool
}

// NewLevelTracker returns a tracker with the live-view defaults: 5th/95th
// percentile of values 10 dB above the floor, refreshed every 10 frames.
func NewLevelTracker() *LevelTracker {
	return &LevelTracker{
		Every:     10,
		LowPct:    5,
		HighPct:   95,
		Threshold: DefaultFloorDB + 10,
		MinCount:  100,
		Default:   DefaultLevels,
	}
}

// Update feeds one frame and returns the levels to display for it.
func (t *LevelTracker) Update(m Matrix) Levels {
	every := t.Every
	if every < 1 {
		every = 1
	}
	if !t.primed {
		t.current = t.Default
		t.primed = true
	}
	if t.frames%every == 0 {
		t.current = t.compute(m)
	}
	t.frames++
	return t.current
}

// Reset restarts the refresh cycle and returns to the default levels.
func (t *LevelTracker) Reset() {
	t.frames = 0
	t.primed = false
}

func (t *LevelTracker) compute(m Matrix) Levels {
	valid := make([]float64, 0, len(m.Data))
	for _, v := range m.Data {
		if v > t.Threshold {
			valid = append(valid, float64(v))
		}
	}
	if len(valid) <= t.MinCount {
		return t.Default
	}
	sort.Float64s(valid)
	return Levels{
		Low:  float32(percentileSorted(valid, t.LowPct)),
		High: float32(percentileSorted(valid, t.HighPct)),
	}
}

// MatrixLevels returns the lowPct and highPct percentiles of every element,
// as used for the micro-Doppler image.
func MatrixLevels(m Matrix, lowPct, highPct float64) Levels {
	if len(m.Data) == 0 {
		return DefaultLevels
	}
	values := make([]float64, len(m.Data))
	for i, v := range m.Data {
		values[i] = float64(v)
	}
	sort.Float64s(values)
	return Levels{
		Low:  float32(percentileSorted(values, lowPct)),
		High: float32(percentileSorted(values, highPct)),
	}
}
