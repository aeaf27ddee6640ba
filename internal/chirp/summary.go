package chirp

import (
	"fmt"
	"strings"

	"github.com/baxasd/OST-Radar/internal/units"
)

// MaxRFBandwidthGHz is the widest sweep the IWR devices can emit.
const MaxRFBandwidthGHz = 4.0

// Check is the outcome of one chirp timing or bandwidth sanity check.
type Check struct {
	Name   string
	Detail string
	OK     bool
}

func (c Check) String() string {
	status := "OK"
	if !c.OK {
		status = "FAIL"
	}
	return fmt.Sprintf("%s: %s [%s]", c.Name, c.Detail, status)
}

// Summary renders the derived parameters as a short human-readable report.
func (c *RadarConfig) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Frame periodicity   : %.2f ms (%.2f Hz)\n", c.PeriodicityMs, c.FrameRateHz())
	fmt.Fprintf(&b, "Virtual antennas    : %d (%d tx x %d rx)\n", c.NumVirtualChannels, c.TxAntennas, c.RxAntennas)
	fmt.Fprintf(&b, "Effective bandwidth : %.2f GHz\n", c.BandwidthHz*1e-9)
	fmt.Fprintf(&b, "Range resolution    : %.2f cm\n", units.MetersToCentimeters(c.RangeResolutionM))
	fmt.Fprintf(&b, "Maximum range       : %.2f m\n", c.RangeMaxM)
	fmt.Fprintf(&b, "Doppler resolution  : %.2f m/s (%.2f km/h)\n",
		c.DopplerResolutionMps, units.ConvertSpeed(c.DopplerResolutionMps, units.KMPH))
	fmt.Fprintf(&b, "Maximum velocity    : %.2f m/s (%.2f km/h)\n",
		c.DopplerMaxMps, units.ConvertSpeed(c.DopplerMaxMps, units.KMPH))
	fmt.Fprintf(&b, "Heatmap             : %d range x %d doppler bins\n", c.RangeBins(), c.DopplerBins())
	return b.String()
}

// Checks evaluates the chirp timing constraints: the ramp must outlast ADC
// sampling, the emission window must cover the acquisition window, and the
// swept RF bandwidth must stay below MaxRFBandwidthGHz.
func (c *RadarConfig) Checks() []Check {
	adcTimeUs := c.ChirpTimeUs + c.ADCStartTimeUs
	emissionUs := c.RampEndTimeUs - c.ADCStartTimeUs
	endFreq := c.StartFreqGHz + c.EmissionBandwidthGHz

	return []Check{
		{
			Name:   "ramp time",
			Detail: fmt.Sprintf("ramp %.2f us > ADC time %.2f us", c.RampEndTimeUs, adcTimeUs),
			OK:     c.RampEndTimeUs > adcTimeUs,
		},
		{
			Name:   "emission time",
			Detail: fmt.Sprintf("emission %.2f us > acquisition %.2f us", emissionUs, c.ChirpTimeUs),
			OK:     emissionUs > c.ChirpTimeUs,
		},
		{
			Name: "rf bandwidth",
			Detail: fmt.Sprintf("%.2f-%.2f GHz, %.3f GHz < %.0f GHz",
				c.StartFreqGHz, endFreq, c.EmissionBandwidthGHz, MaxRFBandwidthGHz),
			OK: c.EmissionBandwidthGHz < MaxRFBandwidthGHz,
		},
	}
}

// CommandLines returns the trimmed, non-empty, non-comment lines of a
// configuration text in order, ready to be sent to the sensor's CLI port.
func CommandLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
