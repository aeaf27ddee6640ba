package units

import (
	"math"
	"testing"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name     string
		speedMPS float64
		units    string
		expected float64
	}{
		{"10 m/s to mph", 10.0, MPH, 22.3694},
		{"10 m/s to kmph", 10.0, KMPH, 36.0},
		{"10 m/s to kph", 10.0, KPH, 36.0},
		{"10 m/s to mps", 10.0, MPS, 10.0},
		{"unknown units default to mps", 10.0, "unknown", 10.0},
		{"doppler resolution 0.13 m/s to kph", 0.13, KPH, 0.468},
		{"walking speed 1.4 m/s to mph", 1.4, MPH, 3.13172},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertSpeed(tt.speedMPS, tt.units)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("ConvertSpeed(%f, %s) = %f, want %f", tt.speedMPS, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		unit     string
		expected bool
	}{
		{MPS, true},
		{MPH, true},
		{KMPH, true},
		{KPH, true},
		{"invalid", false},
		{"", false},
		{"MPH", false},
	}

	for _, tt := range tests {
		if got := IsValid(tt.unit); got != tt.expected {
			t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
		}
	}
}

func TestConversions(t *testing.T) {
	if got := MetersToCentimeters(0.0439); math.Abs(got-4.39) > 1e-9 {
		t.Errorf("MetersToCentimeters = %f, want 4.39", got)
	}
	if got := HzToPerMinute(2.0); got != 120 {
		t.Errorf("HzToPerMinute(2) = %f, want 120", got)
	}
	if got := PeriodMsToHz(50); got != 20 {
		t.Errorf("PeriodMsToHz(50) = %f, want 20", got)
	}
	if got := PeriodMsToHz(0); got != 0 {
		t.Errorf("PeriodMsToHz(0) = %f, want 0", got)
	}
}
