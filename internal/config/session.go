// Package config loads the radar session configuration: serial ports, the
// chirp profile path, signal-processing tuning and sink settings. Every field
// is optional; the Get* accessors supply defaults for anything omitted.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/baxasd/OST-Radar/internal/fsutil"
	"github.com/baxasd/OST-Radar/internal/serialmux"
)

// DefaultConfigPath is where the daemon looks for a session file when none
// is given on the command line.
const DefaultConfigPath = "config/radar.yaml"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// SessionConfig is the root session configuration. The same schema is
// accepted as JSON or YAML.
type SessionConfig struct {
	// Serial transport
	CLIPort         *string `json:"cli_port,omitempty" yaml:"cli_port,omitempty"`
	DataPort        *string `json:"data_port,omitempty" yaml:"data_port,omitempty"`
	CLIBaudRate     *int    `json:"cli_baud_rate,omitempty" yaml:"cli_baud_rate,omitempty"`
	DataBaudRate    *int    `json:"data_baud_rate,omitempty" yaml:"data_baud_rate,omitempty"`
	ReadTimeout     *string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"` // duration string like "600ms"
	StrictHandshake *bool   `json:"strict_handshake,omitempty" yaml:"strict_handshake,omitempty"`

	// Radar profile
	ChirpConfig *string `json:"chirp_config,omitempty" yaml:"chirp_config,omitempty"`
	PointFormat *string `json:"point_format,omitempty" yaml:"point_format,omitempty"` // "cartesian" or "spherical"

	// Per-frame processing
	SubtractBackground  *bool    `json:"subtract_background,omitempty" yaml:"subtract_background,omitempty"`
	ClutterAlpha        *float64 `json:"clutter_alpha,omitempty" yaml:"clutter_alpha,omitempty"`
	MinRangeM           *float64 `json:"min_range_m,omitempty" yaml:"min_range_m,omitempty"`
	MaxRangeM           *float64 `json:"max_range_m,omitempty" yaml:"max_range_m,omitempty"`
	FloorDB             *float64 `json:"floor_db,omitempty" yaml:"floor_db,omitempty"`
	LevelLowPercentile  *float64 `json:"level_low_percentile,omitempty" yaml:"level_low_percentile,omitempty"`
	LevelHighPercentile *float64 `json:"level_high_percentile,omitempty" yaml:"level_high_percentile,omitempty"`
	LevelUpdateEvery    *int     `json:"level_update_every,omitempty" yaml:"level_update_every,omitempty"`
	LevelMinCount       *int     `json:"level_min_count,omitempty" yaml:"level_min_count,omitempty"`
	NoiseThresholdDB    *float64 `json:"noise_threshold_db,omitempty" yaml:"noise_threshold_db,omitempty"`
	FPSWindow           *int     `json:"fps_window,omitempty" yaml:"fps_window,omitempty"`

	// Cadence analysis
	GuardVelocityMps *float64 `json:"guard_velocity_mps,omitempty" yaml:"guard_velocity_mps,omitempty"`
	CadenceMinHz     *float64 `json:"cadence_min_hz,omitempty" yaml:"cadence_min_hz,omitempty"`
	CadenceMaxHz     *float64 `json:"cadence_max_hz,omitempty" yaml:"cadence_max_hz,omitempty"`

	// Sinks
	RecordDB     *string `json:"record_db,omitempty" yaml:"record_db,omitempty"`
	CapturePath  *string `json:"capture_path,omitempty" yaml:"capture_path,omitempty"`
	MQTTBroker   *string `json:"mqtt_broker,omitempty" yaml:"mqtt_broker,omitempty"`
	MQTTTopic    *string `json:"mqtt_topic,omitempty" yaml:"mqtt_topic,omitempty"`
	MQTTClientID *string `json:"mqtt_client_id,omitempty" yaml:"mqtt_client_id,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySessionConfig returns a SessionConfig with all fields set to nil.
func EmptySessionConfig() *SessionConfig {
	return &SessionConfig{}
}

// DefaultSessionConfig returns a SessionConfig with every field populated
// from its default.
func DefaultSessionConfig() *SessionConfig {
	c := EmptySessionConfig()
	return &SessionConfig{
		CLIPort:             ptrString(c.GetCLIPort()),
		DataPort:            ptrString(c.GetDataPort()),
		CLIBaudRate:         ptrInt(c.GetCLIBaudRate()),
		DataBaudRate:        ptrInt(c.GetDataBaudRate()),
		ReadTimeout:         ptrString(c.GetReadTimeout().String()),
		StrictHandshake:     ptrBool(c.GetStrictHandshake()),
		ChirpConfig:         ptrString(c.GetChirpConfig()),
		PointFormat:         ptrString(c.GetPointFormat()),
		SubtractBackground:  ptrBool(c.GetSubtractBackground()),
		ClutterAlpha:        ptrFloat64(c.GetClutterAlpha()),
		MinRangeM:           ptrFloat64(c.GetMinRangeM()),
		MaxRangeM:           ptrFloat64(c.GetMaxRangeM()),
		FloorDB:             ptrFloat64(c.GetFloorDB()),
		LevelLowPercentile:  ptrFloat64(c.GetLevelLowPercentile()),
		LevelHighPercentile: ptrFloat64(c.GetLevelHighPercentile()),
		LevelUpdateEvery:    ptrInt(c.GetLevelUpdateEvery()),
		LevelMinCount:       ptrInt(c.GetLevelMinCount()),
		NoiseThresholdDB:    ptrFloat64(c.GetNoiseThresholdDB()),
		FPSWindow:           ptrInt(c.GetFPSWindow()),
		GuardVelocityMps:    ptrFloat64(c.GetGuardVelocityMps()),
		CadenceMinHz:        ptrFloat64(c.GetCadenceMinHz()),
		CadenceMaxHz:        ptrFloat64(c.GetCadenceMaxHz()),
		MQTTTopic:           ptrString(c.GetMQTTTopic()),
		MQTTClientID:        ptrString(c.GetMQTTClientID()),
	}
}

// LoadSessionConfig loads a SessionConfig from a .json, .yaml or .yml file.
// Fields omitted from the file keep their defaults, so partial configs are
// safe.
func LoadSessionConfig(fsys fsutil.FileSystem, path string) (*SessionConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	data, err := fsutil.ReadLimited(fsys, cleanPath, maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySessionConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *SessionConfig) Validate() error {
	if c.CLIBaudRate != nil && *c.CLIBaudRate <= 0 {
		return fmt.Errorf("cli_baud_rate must be positive, got %d", *c.CLIBaudRate)
	}
	if c.DataBaudRate != nil && *c.DataBaudRate <= 0 {
		return fmt.Errorf("data_baud_rate must be positive, got %d", *c.DataBaudRate)
	}
	if c.ReadTimeout != nil && *c.ReadTimeout != "" {
		d, err := time.ParseDuration(*c.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid read_timeout '%s': %w", *c.ReadTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("read_timeout must be positive, got %s", d)
		}
	}
	if c.PointFormat != nil {
		switch strings.ToLower(*c.PointFormat) {
		case "", "cartesian", "spherical":
		default:
			return fmt.Errorf("point_format must be cartesian or spherical, got %q", *c.PointFormat)
		}
	}
	if c.ClutterAlpha != nil && (*c.ClutterAlpha <= 0 || *c.ClutterAlpha >= 1) {
		return fmt.Errorf("clutter_alpha must be between 0 and 1 exclusive, got %f", *c.ClutterAlpha)
	}
	if c.MinRangeM != nil && *c.MinRangeM < 0 {
		return fmt.Errorf("min_range_m must be non-negative, got %f", *c.MinRangeM)
	}
	if c.MaxRangeM != nil && *c.MaxRangeM < 0 {
		return fmt.Errorf("max_range_m must be non-negative, got %f", *c.MaxRangeM)
	}
	if c.MaxRangeM != nil && *c.MaxRangeM > 0 && *c.MaxRangeM <= c.GetMinRangeM() {
		return fmt.Errorf("max_range_m (%f) must exceed min_range_m (%f)", *c.MaxRangeM, c.GetMinRangeM())
	}
	low, high := c.GetLevelLowPercentile(), c.GetLevelHighPercentile()
	if low < 0 || high > 100 || low >= high {
		return fmt.Errorf("level percentiles must satisfy 0 <= low < high <= 100, got %f and %f", low, high)
	}
	if c.LevelUpdateEvery != nil && *c.LevelUpdateEvery <= 0 {
		return fmt.Errorf("level_update_every must be positive, got %d", *c.LevelUpdateEvery)
	}
	if c.LevelMinCount != nil && *c.LevelMinCount < 0 {
		return fmt.Errorf("level_min_count must be non-negative, got %d", *c.LevelMinCount)
	}
	if c.FPSWindow != nil && *c.FPSWindow < 2 {
		return fmt.Errorf("fps_window must be at least 2, got %d", *c.FPSWindow)
	}
	if c.GuardVelocityMps != nil && *c.GuardVelocityMps < 0 {
		return fmt.Errorf("guard_velocity_mps must be non-negative, got %f", *c.GuardVelocityMps)
	}
	if minHz, maxHz := c.GetCadenceMinHz(), c.GetCadenceMaxHz(); minHz < 0 || minHz >= maxHz {
		return fmt.Errorf("cadence band must satisfy 0 <= min < max, got [%f, %f]", minHz, maxHz)
	}
	return nil
}

// GetCLIPort returns the cli_port value or the default ("" means discover).
func (c *SessionConfig) GetCLIPort() string {
	if c.CLIPort == nil {
		return ""
	}
	return *c.CLIPort
}

// GetDataPort returns the data_port value or the default ("" means discover).
func (c *SessionConfig) GetDataPort() string {
	if c.DataPort == nil {
		return ""
	}
	return *c.DataPort
}

// GetCLIBaudRate returns the cli_baud_rate value or the default.
func (c *SessionConfig) GetCLIBaudRate() int {
	if c.CLIBaudRate == nil {
		return serialmux.DefaultCLIBaudRate
	}
	return *c.CLIBaudRate
}

// GetDataBaudRate returns the data_baud_rate value or the default.
func (c *SessionConfig) GetDataBaudRate() int {
	if c.DataBaudRate == nil {
		return serialmux.DefaultDataBaudRate
	}
	return *c.DataBaudRate
}

// GetReadTimeout parses and returns the ReadTimeout as a time.Duration.
func (c *SessionConfig) GetReadTimeout() time.Duration {
	if c.ReadTimeout == nil || *c.ReadTimeout == "" {
		return serialmux.DefaultReadTimeout
	}
	d, err := time.ParseDuration(*c.ReadTimeout)
	if err != nil || d <= 0 {
		return serialmux.DefaultReadTimeout
	}
	return d
}

// GetStrictHandshake returns the strict_handshake value or the default.
func (c *SessionConfig) GetStrictHandshake() bool {
	if c.StrictHandshake == nil {
		return false
	}
	return *c.StrictHandshake
}

// CLIPortOptions returns the serial options for the CLI port.
func (c *SessionConfig) CLIPortOptions() serialmux.PortOptions {
	return serialmux.PortOptions{BaudRate: c.GetCLIBaudRate()}
}

// DataPortOptions returns the serial options for the data port.
func (c *SessionConfig) DataPortOptions() serialmux.PortOptions {
	return serialmux.PortOptions{BaudRate: c.GetDataBaudRate()}
}

// GetChirpConfig returns the chirp_config path or the default.
func (c *SessionConfig) GetChirpConfig() string {
	if c.ChirpConfig == nil {
		return "config/profile.cfg"
	}
	return *c.ChirpConfig
}

// GetPointFormat returns the lower-cased point_format or the default.
func (c *SessionConfig) GetPointFormat() string {
	if c.PointFormat == nil || *c.PointFormat == "" {
		return "cartesian"
	}
	return strings.ToLower(*c.PointFormat)
}

// GetSubtractBackground returns the subtract_background value or the default.
func (c *SessionConfig) GetSubtractBackground() bool {
	if c.SubtractBackground == nil {
		return true
	}
	return *c.SubtractBackground
}

// GetClutterAlpha returns the clutter_alpha value or the default.
func (c *SessionConfig) GetClutterAlpha() float64 {
	if c.ClutterAlpha == nil {
		return 0.98
	}
	return *c.ClutterAlpha
}

// GetMinRangeM returns the min_range_m value or the default.
func (c *SessionConfig) GetMinRangeM() float64 {
	if c.MinRangeM == nil {
		return 0.5
	}
	return *c.MinRangeM
}

// GetMaxRangeM returns the max_range_m value or the default (0 keeps every
// range bin).
func (c *SessionConfig) GetMaxRangeM() float64 {
	if c.MaxRangeM == nil {
		return 0
	}
	return *c.MaxRangeM
}

// GetFloorDB returns the floor_db value or the default.
func (c *SessionConfig) GetFloorDB() float64 {
	if c.FloorDB == nil {
		return -80
	}
	return *c.FloorDB
}

// GetLevelLowPercentile returns the level_low_percentile value or the default.
func (c *SessionConfig) GetLevelLowPercentile() float64 {
	if c.LevelLowPercentile == nil {
		return 5
	}
	return *c.LevelLowPercentile
}

// GetLevelHighPercentile returns the level_high_percentile value or the default.
func (c *SessionConfig) GetLevelHighPercentile() float64 {
	if c.LevelHighPercentile == nil {
		return 95
	}
	return *c.LevelHighPercentile
}

// GetLevelUpdateEvery returns the level_update_every value or the default.
func (c *SessionConfig) GetLevelUpdateEvery() int {
	if c.LevelUpdateEvery == nil {
		return 10
	}
	return *c.LevelUpdateEvery
}

// GetLevelMinCount returns the level_min_count value or the default.
func (c *SessionConfig) GetLevelMinCount() int {
	if c.LevelMinCount == nil {
		return 100
	}
	return *c.LevelMinCount
}

// GetNoiseThresholdDB returns the noise_threshold_db value or the default.
func (c *SessionConfig) GetNoiseThresholdDB() float64 {
	if c.NoiseThresholdDB == nil {
		return -70
	}
	return *c.NoiseThresholdDB
}

// GetFPSWindow returns the fps_window value or the default.
func (c *SessionConfig) GetFPSWindow() int {
	if c.FPSWindow == nil {
		return 30
	}
	return *c.FPSWindow
}

// GetGuardVelocityMps returns the guard_velocity_mps value or the default.
func (c *SessionConfig) GetGuardVelocityMps() float64 {
	if c.GuardVelocityMps == nil {
		return 0.5
	}
	return *c.GuardVelocityMps
}

// GetCadenceMinHz returns the cadence_min_hz value or the default.
func (c *SessionConfig) GetCadenceMinHz() float64 {
	if c.CadenceMinHz == nil {
		return 0.8
	}
	return *c.CadenceMinHz
}

// GetCadenceMaxHz returns the cadence_max_hz value or the default.
func (c *SessionConfig) GetCadenceMaxHz() float64 {
	if c.CadenceMaxHz == nil {
		return 4.0
	}
	return *c.CadenceMaxHz
}

// GetRecordDB returns the record_db path ("" disables the sqlite sink).
func (c *SessionConfig) GetRecordDB() string {
	if c.RecordDB == nil {
		return ""
	}
	return *c.RecordDB
}

// GetCapturePath returns the capture_path ("" disables raw capture).
func (c *SessionConfig) GetCapturePath() string {
	if c.CapturePath == nil {
		return ""
	}
	return *c.CapturePath
}

// GetMQTTBroker returns the mqtt_broker URL ("" disables the MQTT sink).
func (c *SessionConfig) GetMQTTBroker() string {
	if c.MQTTBroker == nil {
		return ""
	}
	return *c.MQTTBroker
}

// GetMQTTTopic returns the mqtt_topic value or the default.
func (c *SessionConfig) GetMQTTTopic() string {
	if c.MQTTTopic == nil || *c.MQTTTopic == "" {
		return "ost-radar/frames"
	}
	return *c.MQTTTopic
}

// GetMQTTClientID returns the mqtt_client_id value or the default.
func (c *SessionConfig) GetMQTTClientID() string {
	if c.MQTTClientID == nil || *c.MQTTClientID == "" {
		return "ost-radar"
	}
	return *c.MQTTClientID
}
