package dsp

import "github.com/baxasd/OST-Radar/internal/chirp"

// RangeAxis returns the range in metres of each of the first n range bins.
func RangeAxis(cfg *chirp.RadarConfig, n int) []float64 {
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = cfg.RangeResolutionM * float64(i)
	}
	return axis
}

// VelocityAxis returns NumLoops evenly spaced velocities from -DopplerMaxMps
// to +DopplerMaxMps inclusive, matching the shifted Doppler columns.
func VelocityAxis(cfg *chirp.RadarConfig) []float64 {
	n := cfg.DopplerBins()
	axis := make([]float64, n)
	if n == 1 {
		axis[0] = -cfg.DopplerMaxMps
		return axis
	}
	step := 2 * cfg.DopplerMaxMps / float64(n-1)
	for i := range axis {
		axis[i] = -cfg.DopplerMaxMps + step*float64(i)
	}
	return axis
}
