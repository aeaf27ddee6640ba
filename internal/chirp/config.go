// Package chirp parses TI mmWave chirp configuration text and derives the
// physical radar parameters (range and velocity resolution, bin counts) that
// the frame parser and signal processor depend on.
package chirp

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/baxasd/OST-Radar/internal/fsutil"
)

// SpeedOfLight is the propagation speed used by the TI reference formulas.
const SpeedOfLight = 3e8

// Directive names recognised in the configuration text.
const (
	DirectiveChannel = "channelCfg"
	DirectiveProfile = "profileCfg"
	DirectiveFrame   = "frameCfg"
)

// Minimum token counts (including the directive name) for each directive.
const (
	minChannelTokens = 3
	minProfileTokens = 12
	minFrameTokens   = 6
)

// ErrConfig is the sentinel matched by every *ConfigError.
var ErrConfig = errors.New("invalid chirp configuration")

// ConfigError describes a malformed or incomplete configuration. Line is the
// 1-based source line, or 0 when the problem is not tied to a single line.
type ConfigError struct {
	Line      int
	Directive string
	Err       error
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("chirp config line %d (%s): %v", e.Line, e.Directive, e.Err)
	}
	if e.Directive != "" {
		return fmt.Sprintf("chirp config (%s): %v", e.Directive, e.Err)
	}
	return fmt.Sprintf("chirp config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is reports true for ErrConfig so callers can match any configuration
// failure without knowing its cause.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// RadarConfig holds the chirp parameters read from the configuration and the
// quantities derived from them. Values are computed once by Parse and must
// be treated as read-only.
type RadarConfig struct {
	// channelCfg
	TxAntennas         int
	RxAntennas         int
	NumVirtualChannels int

	// profileCfg
	StartFreqGHz      float64
	IdleTimeUs        float64
	ADCStartTimeUs    float64
	RampEndTimeUs     float64
	FreqSlopeMHzPerUs float64
	NumADCSamples     int
	SampleRateKsps    float64

	// frameCfg
	ChirpStartIndex int
	ChirpEndIndex   int
	NumLoops        int
	PeriodicityMs   float64

	// Derived
	BandwidthHz          float64
	RangeResolutionM     float64
	RangeMaxM            float64
	NumChirpsPerFrame    int
	DopplerResolutionMps float64
	DopplerMaxMps        float64
	EmissionBandwidthGHz float64
	ChirpTimeUs          float64
}

// RangeBins is the number of range bins in a range-Doppler heatmap.
func (c *RadarConfig) RangeBins() int { return c.NumADCSamples }

// DopplerBins is the number of Doppler bins in a range-Doppler heatmap.
func (c *RadarConfig) DopplerBins() int { return c.NumLoops }

// FrameRateHz is the nominal frame rate implied by the frame periodicity.
func (c *RadarConfig) FrameRateHz() float64 {
	if c.PeriodicityMs == 0 {
		return 0
	}
	return 1e3 / c.PeriodicityMs
}

// MaxProfileSize bounds chirp configuration files.
const MaxProfileSize = 64 * 1024

// ReadProfile returns the text of the configuration file at path.
func ReadProfile(fsys fsutil.FileSystem, path string) (string, error) {
	data, err := fsutil.ReadLimited(fsys, path, MaxProfileSize)
	if err != nil {
		return "", fmt.Errorf("failed to read chirp config %s: %w", path, err)
	}
	return string(data), nil
}

// Load reads the configuration file at path and parses it.
func Load(fsys fsutil.FileSystem, path string) (*RadarConfig, error) {
	text, err := ReadProfile(fsys, path)
	if err != nil {
		return nil, err
	}
	return Parse(text)
}

// Parse scans the configuration text once and computes the derived radar
// parameters. When a directive appears more than once, the last occurrence
// wins.
func Parse(text string) (*RadarConfig, error) {
	var cfg RadarConfig
	var txMask, rxMask uint64
	var haveChannel, haveProfile, haveFrame bool

	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "%") {
			continue
		}
		tokens := strings.Fields(trimmed)
		p := tokenParser{line: lineNo, directive: tokens[0], tokens: tokens}

		switch tokens[0] {
		case DirectiveChannel:
			if err := p.need(minChannelTokens); err != nil {
				return nil, err
			}
			txMask = p.uintAt(1)
			rxMask = p.uintAt(2)
			haveChannel = true
		case DirectiveProfile:
			if err := p.need(minProfileTokens); err != nil {
				return nil, err
			}
			cfg.StartFreqGHz = p.floatAt(2)
			cfg.IdleTimeUs = p.floatAt(3)
			cfg.ADCStartTimeUs = p.floatAt(4)
			cfg.RampEndTimeUs = p.floatAt(5)
			cfg.FreqSlopeMHzPerUs = p.floatAt(8)
			cfg.NumADCSamples = p.intAt(10)
			cfg.SampleRateKsps = p.floatAt(11)
			haveProfile = true
		case DirectiveFrame:
			if err := p.need(minFrameTokens); err != nil {
				return nil, err
			}
			cfg.ChirpStartIndex = p.intAt(1)
			cfg.ChirpEndIndex = p.intAt(2)
			cfg.NumLoops = p.intAt(3)
			cfg.PeriodicityMs = p.floatAt(5)
			haveFrame = true
		default:
			continue
		}
		if p.err != nil {
			return nil, p.err
		}
	}

	switch {
	case !haveChannel:
		return nil, &ConfigError{Directive: DirectiveChannel, Err: errors.New("directive missing")}
	case !haveProfile:
		return nil, &ConfigError{Directive: DirectiveProfile, Err: errors.New("directive missing")}
	case !haveFrame:
		return nil, &ConfigError{Directive: DirectiveFrame, Err: errors.New("directive missing")}
	}

	cfg.TxAntennas = bits.OnesCount64(txMask)
	cfg.RxAntennas = bits.OnesCount64(rxMask)
	cfg.NumVirtualChannels = cfg.TxAntennas * cfg.RxAntennas

	if err := cfg.derive(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *RadarConfig) derive() error {
	if c.SampleRateKsps == 0 {
		return &ConfigError{Directive: DirectiveProfile, Err: errors.New("sample rate is zero")}
	}
	c.BandwidthHz = c.FreqSlopeMHzPerUs * float64(c.NumADCSamples) / c.SampleRateKsps * 1e9
	if c.BandwidthHz == 0 {
		return &ConfigError{Directive: DirectiveProfile, Err: errors.New("bandwidth is zero")}
	}
	if c.StartFreqGHz == 0 {
		return &ConfigError{Directive: DirectiveProfile, Err: errors.New("start frequency is zero")}
	}
	chirpTimeUs := c.IdleTimeUs + c.RampEndTimeUs
	if chirpTimeUs == 0 {
		return &ConfigError{Directive: DirectiveProfile, Err: errors.New("total chirp time is zero")}
	}
	c.NumChirpsPerFrame = (c.ChirpEndIndex - c.ChirpStartIndex + 1) * c.NumLoops
	if c.NumChirpsPerFrame <= 0 {
		return &ConfigError{Directive: DirectiveFrame, Err: fmt.Errorf("chirps per frame must be positive, got %d", c.NumChirpsPerFrame)}
	}

	c.RangeResolutionM = SpeedOfLight / (2 * c.BandwidthHz)
	c.RangeMaxM = c.RangeResolutionM * float64(c.NumADCSamples-1)
	c.DopplerResolutionMps = SpeedOfLight / (2 * c.StartFreqGHz * 1e9 * chirpTimeUs * 1e-6 * float64(c.NumChirpsPerFrame))
	c.DopplerMaxMps = float64(c.NumLoops) * c.DopplerResolutionMps / 2
	c.EmissionBandwidthGHz = c.FreqSlopeMHzPerUs * c.RampEndTimeUs * 1e-3
	c.ChirpTimeUs = 1e3 * float64(c.NumADCSamples) / c.SampleRateKsps
	return nil
}

// tokenParser reads positional numeric tokens, keeping the first failure.
type tokenParser struct {
	line      int
	directive string
	tokens    []string
	err       error
}

func (p *tokenParser) need(n int) error {
	if len(p.tokens) < n {
		return &ConfigError{
			Line:      p.line,
			Directive: p.directive,
			Err:       fmt.Errorf("expected at least %d tokens, got %d", n, len(p.tokens)),
		}
	}
	return nil
}

func (p *tokenParser) fail(idx int, err error) {
	if p.err == nil {
		p.err = &ConfigError{
			Line:      p.line,
			Directive: p.directive,
			Err:       fmt.Errorf("token %d %q: %w", idx, p.tokens[idx], err),
		}
	}
}

func (p *tokenParser) floatAt(idx int) float64 {
	v, err := strconv.ParseFloat(p.tokens[idx], 64)
	if err != nil {
		p.fail(idx, err)
	}
	return v
}

func (p *tokenParser) intAt(idx int) int {
	v, err := strconv.Atoi(p.tokens[idx])
	if err != nil {
		p.fail(idx, err)
	}
	return v
}

func (p *tokenParser) uintAt(idx int) uint64 {
	v, err := strconv.ParseUint(p.tokens[idx], 10, 64)
	if err != nil {
		p.fail(idx, err)
	}
	return v
}
