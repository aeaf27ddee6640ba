package chirp

import (
	"errors"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/baxasd/OST-Radar/internal/fsutil"
)

func loadTestdata(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("testdata/iwr6843_isk.cfg")
	if err != nil {
		t.Fatalf("failed to read testdata: %v", err)
	}
	return string(data)
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestParse_ISKProfile(t *testing.T) {
	cfg, err := Parse(loadTestdata(t))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.TxAntennas != 4 || cfg.RxAntennas != 3 {
		t.Errorf("antennas = %d tx, %d rx; want 4 tx, 3 rx", cfg.TxAntennas, cfg.RxAntennas)
	}
	if cfg.NumVirtualChannels != 12 {
		t.Errorf("NumVirtualChannels = %d, want 12", cfg.NumVirtualChannels)
	}
	if cfg.NumADCSamples != 256 || cfg.RangeBins() != 256 {
		t.Errorf("range bins = %d, want 256", cfg.RangeBins())
	}
	if cfg.DopplerBins() != 16 {
		t.Errorf("doppler bins = %d, want 16", cfg.DopplerBins())
	}
	if cfg.NumChirpsPerFrame != 48 {
		t.Errorf("NumChirpsPerFrame = %d, want 48", cfg.NumChirpsPerFrame)
	}

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"bandwidth", cfg.BandwidthHz, 3.39968e9},
		{"range resolution", cfg.RangeResolutionM, 0.04412179969879518},
		{"range max", cfg.RangeMaxM, 11.25105892319277},
		{"doppler resolution", cfg.DopplerResolutionMps, 1.6801075268817205},
		{"doppler max", cfg.DopplerMaxMps, 13.440860215053764},
		{"emission bandwidth", cfg.EmissionBandwidthGHz, 3.984},
		{"chirp time", cfg.ChirpTimeUs, 20.48},
		{"frame rate", cfg.FrameRateHz(), 10},
	}
	for _, tt := range tests {
		if !approxEqual(tt.got, tt.want, math.Abs(tt.want)*1e-9) {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestParse_Deterministic(t *testing.T) {
	text := loadTestdata(t)
	a, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	b, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("re-parse differs (-first +second):\n%s", diff)
	}
}

func TestParse_LastDirectiveWins(t *testing.T) {
	text := loadTestdata(t) + "\nframeCfg 0 2 32 0 50 1 0\n"
	cfg, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.NumLoops != 32 {
		t.Errorf("NumLoops = %d, want 32", cfg.NumLoops)
	}
	if cfg.PeriodicityMs != 50 {
		t.Errorf("PeriodicityMs = %v, want 50", cfg.PeriodicityMs)
	}
}

func TestParse_AntennaPopcount(t *testing.T) {
	text := "channelCfg 15 1 0\nprofileCfg 0 60 7 3 24 0 0 166 1 256 12500 0 0 30\nframeCfg 0 0 16 0 100 1 0\n"
	cfg, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.TxAntennas != 4 || cfg.RxAntennas != 1 || cfg.NumVirtualChannels != 4 {
		t.Errorf("got tx=%d rx=%d nv=%d, want 4, 1, 4", cfg.TxAntennas, cfg.RxAntennas, cfg.NumVirtualChannels)
	}
}

func TestParse_Errors(t *testing.T) {
	const (
		channel = "channelCfg 15 7 0"
		profile = "profileCfg 0 60 7 3 24 0 0 166 1 256 12500 0 0 30"
		frame   = "frameCfg 0 2 16 0 100 1 0"
	)
	tests := []struct {
		name      string
		text      string
		directive string
		line      int
	}{
		{"missing channel", profile + "\n" + frame, DirectiveChannel, 0},
		{"missing profile", channel + "\n" + frame, DirectiveProfile, 0},
		{"missing frame", channel + "\n" + profile, DirectiveFrame, 0},
		{"short profile", channel + "\nprofileCfg 0 60 7\n" + frame, DirectiveProfile, 2},
		{"bad float", channel + "\n" + strings.Replace(profile, " 60 ", " sixty ", 1) + "\n" + frame, DirectiveProfile, 2},
		{"bad mask", "channelCfg 0x0F 7 0\n" + profile + "\n" + frame, DirectiveChannel, 1},
		{"zero slope", channel + "\nprofileCfg 0 60 7 3 24 0 0 0 1 256 12500 0 0 30\n" + frame, DirectiveProfile, 0},
		{"zero sample rate", channel + "\nprofileCfg 0 60 7 3 24 0 0 166 1 256 0 0 0 30\n" + frame, DirectiveProfile, 0},
		{"zero start freq", channel + "\nprofileCfg 0 0 7 3 24 0 0 166 1 256 12500 0 0 30\n" + frame, DirectiveProfile, 0},
		{"zero chirp time", channel + "\nprofileCfg 0 60 0 3 0 0 0 166 1 256 12500 0 0 30\n" + frame, DirectiveProfile, 0},
		{"zero loops", channel + "\n" + profile + "\nframeCfg 0 2 0 0 100 1 0", DirectiveFrame, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if cfgErr.Directive != tt.directive {
				t.Errorf("Directive = %q, want %q", cfgErr.Directive, tt.directive)
			}
			if cfgErr.Line != tt.line {
				t.Errorf("Line = %d, want %d", cfgErr.Line, tt.line)
			}
		})
	}
}

func TestParse_NumericErrorUnwraps(t *testing.T) {
	text := "channelCfg 15 7 0\nprofileCfg 0 60 7 3 24 0 0 166 1 many 12500 0 0 30\nframeCfg 0 2 16 0 100 1 0"
	_, err := Parse(text)
	if !errors.Is(err, strconv.ErrSyntax) {
		t.Errorf("expected wrapped strconv.ErrSyntax, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	if err := fsys.WriteFile("/etc/radar/profile.cfg", []byte(loadTestdata(t)), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(fsys, "/etc/radar/profile.cfg")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.NumLoops != 16 {
		t.Errorf("NumLoops = %d, want 16", cfg.NumLoops)
	}

	if _, err := Load(fsys, "/etc/radar/missing.cfg"); err == nil {
		t.Error("expected error for missing file")
	} else if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}

	if err := fsys.WriteFile("/etc/radar/huge.cfg", []byte(strings.Repeat("% comment\n", MaxProfileSize/8)), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(fsys, "/etc/radar/huge.cfg"); err == nil {
		t.Error("expected error for oversized profile")
	}
}
