// Package units provides shared constants and conversions for the physical
// quantities reported by the radar (speeds, distances, frequencies).
package units

// Speed unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid speed unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Radar resolutions are always derived in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedMPS
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// MetersToCentimeters converts a distance in metres to centimetres.
func MetersToCentimeters(m float64) float64 { return m * 100 }

// HzToPerMinute converts a frequency in Hz to events per minute, e.g. a step
// frequency to steps per minute.
func HzToPerMinute(hz float64) float64 { return hz * 60 }

// PeriodMsToHz converts a period in milliseconds to a frequency in Hz. A zero
// period yields zero.
func PeriodMsToHz(periodMs float64) float64 {
	if periodMs == 0 {
		return 0
	}
	return 1e3 / periodMs
}
