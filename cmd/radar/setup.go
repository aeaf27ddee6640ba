package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/baxasd/OST-Radar/internal/config"
	"github.com/baxasd/OST-Radar/internal/fsutil"
	"github.com/baxasd/OST-Radar/internal/serialmux"
)

// replayCLIPort names the stand-in CLI port used while replaying.
const replayCLIPort = "replay:cli"

// overrides holds command-line values that take precedence over the config
// file. Empty strings leave the config value alone.
type overrides struct {
	CLIPort    string
	DataPort   string
	Chirp      string
	RecordDB   string
	Capture    string
	MQTTBroker string
	MQTTTopic  string
}

func overridesFromFlags() overrides {
	return overrides{
		CLIPort:    *cliPort,
		DataPort:   *dataPort,
		Chirp:      *chirpFile,
		RecordDB:   *dbFile,
		Capture:    *captureTo,
		MQTTBroker: *mqttBroker,
		MQTTTopic:  *mqttTopic,
	}
}

func applyOverrides(cfg *config.SessionConfig, o overrides) {
	set := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	set(&cfg.CLIPort, o.CLIPort)
	set(&cfg.DataPort, o.DataPort)
	set(&cfg.ChirpConfig, o.Chirp)
	set(&cfg.RecordDB, o.RecordDB)
	set(&cfg.CapturePath, o.Capture)
	set(&cfg.MQTTBroker, o.MQTTBroker)
	set(&cfg.MQTTTopic, o.MQTTTopic)
}

// loadConfig reads the session config at path. A missing file at the default
// location falls back to defaults; any other missing file is an error.
func loadConfig(fsys fsutil.FileSystem, path string) (*config.SessionConfig, error) {
	cfg, err := config.LoadSessionConfig(fsys, path)
	if err == nil {
		return cfg, nil
	}
	if path == config.DefaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		log.Printf("no config at %s, using defaults", path)
		return config.EmptySessionConfig(), nil
	}
	return nil, err
}

// replaySetup points both ports at a replay factory: the data port plays the
// capture back and the CLI port acknowledges every command.
func replaySetup(cfg *config.SessionConfig, capture string, latency time.Duration) (serialmux.SerialPortFactory, *config.SessionConfig) {
	applyOverrides(cfg, overrides{CLIPort: replayCLIPort, DataPort: capture})
	return &serialmux.ReplayPortFactory{
		FS:          fsutil.OSFileSystem{},
		CapturePath: capture,
		ReadLatency: latency,
	}, cfg
}

// captureFile writes the raw data-port stream, optionally zstd-compressed.
type captureFile struct {
	file *os.File
	enc  *zstd.Encoder
}

func (c *captureFile) Write(p []byte) (int, error) {
	if c.enc != nil {
		return c.enc.Write(p)
	}
	return c.file.Write(p)
}

func (c *captureFile) Close() error {
	var errs []error
	if c.enc != nil {
		errs = append(errs, c.enc.Close())
	}
	errs = append(errs, c.file.Close())
	return errors.Join(errs...)
}

// openCapture creates the capture file at path. It returns nil when path is
// empty. Paths ending in ".zst" are compressed, which ReplayPortFactory
// reads back.
func openCapture(path string) (io.WriteCloser, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	c := &captureFile{file: f}
	if strings.HasSuffix(path, ".zst") {
		c.enc, err = zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to start capture compression: %w", err)
		}
	}
	return c, nil
}
