package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/baxasd/OST-Radar/internal/units"
)

// ErrInsufficientData is returned when a recording is too short to analyse.
var ErrInsufficientData = errors.New("dsp: not enough frames for cadence analysis")

// DefaultGuardVelocityMps excludes Doppler bins slower than this from the
// moving-limb energy.
const DefaultGuardVelocityMps = 0.5

// CadenceBand is the frequency range searched for the step rate.
type CadenceBand struct {
	MinHz float64
	MaxHz float64
}

// HumanCadenceBand covers plausible human step frequencies.
var HumanCadenceBand = CadenceBand{MinHz: 0.8, MaxHz: 4.0}

// CadenceResult is the outcome of a cadence search.
type CadenceResult struct {
	// Found is false when no spectrum bin falls inside the band.
	Found          bool
	Hz             float64
	StepsPerMinute float64
	PeakMagnitude  float64
	// Freqs and Magnitudes are the full one-sided spectrum.
	Freqs      []float64
	Magnitudes []float64
}

// MicroDoppler sums |x| over range for each frame, producing a time x
// Doppler matrix. Frames must share the same column count.
func MicroDoppler(frames []Matrix) (Matrix, error) {
	if len(frames) == 0 {
		return Matrix{}, ErrInsufficientData
	}
	cols := frames[0].Cols
	md := NewMatrix(len(frames), cols)
	for t, f := range frames {
		if f.Cols != cols {
			return Matrix{}, fmt.Errorf("%w: frame %d has %d doppler bins, want %d", ErrShape, t, f.Cols, cols)
		}
		row := md.Row(t)
		for r := 0; r < f.Rows; r++ {
			for c, v := range f.Row(r) {
				row[c] += float32(math.Abs(float64(v)))
			}
		}
	}
	return md, nil
}

// GuardBins is the number of Doppler bins either side of zero excluded from
// the moving energy: floor(minVelocity / resolution).
func GuardBins(minVelocityMps, dopplerResMps float64) int {
	if dopplerResMps <= 0 {
		return 0
	}
	return int(math.Floor(minVelocityMps / dopplerResMps))
}

// MovingEnergy sums each micro-Doppler row outside centre±guardBins, where
// the centre is column Cols/2.
func MovingEnergy(md Matrix, guardBins int) []float64 {
	center := md.Cols / 2
	lo := center - guardBins
	if lo < 0 {
		lo = 0
	}
	hi := center + guardBins
	if hi > md.Cols {
		hi = md.Cols
	}

	energy := make([]float64, md.Rows)
	row := make([]float64, md.Cols)
	for t := 0; t < md.Rows; t++ {
		for c, v := range md.Row(t) {
			row[c] = float64(v)
		}
		energy[t] = floats.Sum(row[:lo]) + floats.Sum(row[hi:])
	}
	return energy
}

// Cadence finds the dominant frequency of energy inside band. The signal is
// assumed evenly sampled over durationSec.
func Cadence(energy []float64, durationSec float64, band CadenceBand) (CadenceResult, error) {
	n := len(energy)
	if n < 2 || durationSec <= 0 {
		return CadenceResult{}, ErrInsufficientData
	}

	detrended := make([]float64, n)
	copy(detrended, energy)
	floats.AddConst(-stat.Mean(energy, nil), detrended)

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, detrended)
	dt := durationSec / float64(n)

	res := CadenceResult{
		Freqs:      make([]float64, len(coeffs)),
		Magnitudes: make([]float64, len(coeffs)),
	}
	best := -1
	for i, c := range coeffs {
		res.Freqs[i] = fft.Freq(i) / dt
		res.Magnitudes[i] = cmplx.Abs(c)
		if res.Freqs[i] < band.MinHz || res.Freqs[i] > band.MaxHz {
			continue
		}
		if best < 0 || res.Magnitudes[i] > res.Magnitudes[best] {
			best = i
		}
	}
	if best < 0 {
		return res, nil
	}
	res.Found = true
	res.Hz = res.Freqs[best]
	res.StepsPerMinute = units.HzToPerMinute(res.Hz)
	res.PeakMagnitude = res.Magnitudes[best]
	return res, nil
}

// Analysis is the offline summary of a recording.
type Analysis struct {
	// MicroDopplerDB is the time x velocity image in dB.
	MicroDopplerDB Matrix
	// Levels spans the 50th to 99.9th percentile of MicroDopplerDB.
	Levels      Levels
	Cadence     CadenceResult
	DurationSec float64
	AvgFPS      float64
}

// Analyze builds the micro-Doppler image of unshifted range-Doppler frames
// and searches its moving-limb energy for a cadence inside band. Doppler bins
// slower than guardMps are left out of the energy.
func Analyze(frames []Matrix, durationSec, dopplerResMps, guardMps float64, band CadenceBand) (*Analysis, error) {
	shifted := make([]Matrix, len(frames))
	for i, f := range frames {
		shifted[i] = FFTShift(f)
	}
	md, err := MicroDoppler(shifted)
	if err != nil {
		return nil, err
	}
	mdDB := ToDB(md)

	a := &Analysis{
		MicroDopplerDB: mdDB,
		Levels:         MatrixLevels(mdDB, 50, 99.9),
		DurationSec:    durationSec,
	}
	if durationSec > 0 {
		a.AvgFPS = float64(len(frames)) / durationSec
	}
	energy := MovingEnergy(md, GuardBins(guardMps, dopplerResMps))
	a.Cadence, err = Cadence(energy, durationSec, band)
	if err != nil {
		return nil, err
	}
	return a, nil
}
