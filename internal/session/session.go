// Package session drives one TI mmWave sensor: it opens the CLI and data
// ports, runs the configuration handshake, then synchronises, parses and
// processes frames and fans them out to subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/baxasd/OST-Radar/internal/chirp"
	"github.com/baxasd/OST-Radar/internal/config"
	"github.com/baxasd/OST-Radar/internal/dsp"
	"github.com/baxasd/OST-Radar/internal/framesync"
	"github.com/baxasd/OST-Radar/internal/fsutil"
	"github.com/baxasd/OST-Radar/internal/monitoring"
	"github.com/baxasd/OST-Radar/internal/serialmux"
	"github.com/baxasd/OST-Radar/internal/timeutil"
	"github.com/baxasd/OST-Radar/internal/tlv"
)

var logf = monitoring.Component("session")

// Options carries the collaborators of a Session. The zero value uses the
// real filesystem, clock and port discovery, and records no metrics.
type Options struct {
	FS      fsutil.FileSystem
	Clock   timeutil.Clock
	Metrics *monitoring.SessionMetrics
	// Ports lists serial devices when the config leaves a port unset.
	Ports serialmux.PortLister
	// Tap, when set, receives every byte read from the data port.
	Tap io.Writer
	// IdleTimeouts ends Run after this many consecutive sync timeouts;
	// zero waits forever.
	IdleTimeouts int
}

// Stats is a snapshot of session counters.
type Stats struct {
	FramesDecoded  uint64
	ParseErrors    uint64
	DecodeErrors   uint64
	ProcessErrors  uint64
	Sync           framesync.Stats
	FPS            float64
	Subscribers    int
	SkippedSends   uint64
	Recording      bool
	RecordedFrames int
}

// Session owns the two radar ports and the per-stream processing state.
type Session struct {
	cfg      *config.SessionConfig
	radar    *chirp.RadarConfig
	commands []string
	profile  string

	cli     serialmux.Port
	data    serialmux.Port
	command *serialmux.CommandPort
	reader  *framesync.Reader
	tlvOpts tlv.Options

	processor    *dsp.Processor
	resetPending atomic.Bool
	recorder     *Recorder
	hub          *Hub

	clock        timeutil.Clock
	metrics      *monitoring.SessionMetrics
	idleTimeouts int

	framesDecoded atomic.Uint64
	parseErrors   atomic.Uint64
	decodeErrors  atomic.Uint64
	processErrors atomic.Uint64

	fpsMu sync.Mutex
	fps   *fpsWindow

	closeOnce sync.Once
	closeErr  error
}

// Open loads the chirp profile named by cfg, opens the CLI and data ports
// through factory and prepares the processing chain. Ports left unset in
// cfg are discovered. A port that fails to open is fatal.
func Open(cfg *config.SessionConfig, factory serialmux.SerialPortFactory, opts Options) (*Session, error) {
	if cfg == nil {
		cfg = config.EmptySessionConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	if opts.FS == nil {
		opts.FS = fsutil.OSFileSystem{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	profilePath := cfg.GetChirpConfig()
	text, err := chirp.ReadProfile(opts.FS, profilePath)
	if err != nil {
		return nil, err
	}
	radar, err := chirp.Parse(text)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:          cfg,
		radar:        radar,
		commands:     chirp.CommandLines(text),
		profile:      filepath.Base(profilePath),
		tlvOpts:      tlv.Options{PointFormat: pointFormat(cfg.GetPointFormat())},
		hub:          NewHub(),
		clock:        opts.Clock,
		metrics:      opts.Metrics,
		idleTimeouts: opts.IdleTimeouts,
		fps:          newFPSWindow(cfg.GetFPSWindow()),
	}

	s.processor, err = dsp.NewProcessor(processorConfig(cfg, radar))
	if err != nil {
		return nil, err
	}
	s.recorder = NewRecorder(radar, s.processor.CropRows(), opts.Clock)

	cliPath, dataPath := cfg.GetCLIPort(), cfg.GetDataPort()
	if cliPath == "" || dataPath == "" {
		found, err := serialmux.DiscoverPorts(opts.Ports)
		if err != nil {
			return nil, err
		}
		if cliPath == "" {
			cliPath = found.CLI
		}
		if dataPath == "" {
			dataPath = found.Data
		}
		logf("using CLI port %s, data port %s", cliPath, dataPath)
	}

	cliMode, err := cfg.CLIPortOptions().Mode()
	if err != nil {
		return nil, err
	}
	dataMode, err := cfg.DataPortOptions().Mode()
	if err != nil {
		return nil, err
	}

	if s.cli, err = factory.Open(cliPath, cliMode); err != nil {
		return nil, fmt.Errorf("failed to open CLI port %s: %w", cliPath, err)
	}
	if s.data, err = factory.Open(dataPath, dataMode); err != nil {
		s.cli.Close()
		return nil, fmt.Errorf("failed to open data port %s: %w", dataPath, err)
	}
	for _, p := range []serialmux.Port{s.cli, s.data} {
		if err := p.SetReadTimeout(cfg.GetReadTimeout()); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	s.command = serialmux.NewCommandPort(s.cli, cliMode, opts.Clock)
	s.command.Strict = cfg.GetStrictHandshake()

	var src io.Reader = s.data
	if opts.Tap != nil {
		src = io.TeeReader(s.data, opts.Tap)
	}
	s.reader = framesync.NewReader(src)
	return s, nil
}

func pointFormat(name string) tlv.PointFormat {
	if name == "spherical" {
		return tlv.PointFormatSpherical
	}
	return tlv.PointFormatCartesian
}

func processorConfig(cfg *config.SessionConfig, radar *chirp.RadarConfig) dsp.ProcessorConfig {
	pc := dsp.ConfigFor(radar)
	pc.MaxRangeM = cfg.GetMaxRangeM()
	pc.MinRangeM = cfg.GetMinRangeM()
	pc.FloorDB = float32(cfg.GetFloorDB())
	pc.SubtractBackground = cfg.GetSubtractBackground()
	pc.ClutterAlpha = float32(cfg.GetClutterAlpha())

	levels := dsp.NewLevelTracker()
	levels.Every = cfg.GetLevelUpdateEvery()
	levels.LowPct = cfg.GetLevelLowPercentile()
	levels.HighPct = cfg.GetLevelHighPercentile()
	levels.Threshold = float32(cfg.GetNoiseThresholdDB())
	levels.MinCount = cfg.GetLevelMinCount()
	levels.Default = dsp.Levels{Low: pc.FloorDB, High: 0}
	pc.Levels = levels
	return pc
}

// Radar returns the parsed chirp profile.
func (s *Session) Radar() *chirp.RadarConfig { return s.radar }

// Profile is the file name of the chirp profile.
func (s *Session) Profile() string { return s.profile }

// Hub is the delivery fan-out used by Run.
func (s *Session) Hub() *Hub { return s.hub }

// Recorder is the session's recording buffer.
func (s *Session) Recorder() *Recorder { return s.recorder }

// CLIPort exposes the CLI port for console monitoring once configured.
func (s *Session) CLIPort() serialmux.Port { return s.cli }

// Configure sends the chirp profile to the sensor over the CLI port.
func (s *Session) Configure(ctx context.Context) error {
	logf("sending %d configuration commands", len(s.commands))
	if err := s.command.SendConfig(ctx, s.commands); err != nil {
		return fmt.Errorf("configuration handshake failed: %w", err)
	}
	for _, check := range s.radar.Checks() {
		if !check.OK {
			logf("profile check %s", check)
		}
	}
	return nil
}

// Next returns the next decoded frame. Dropped and unparseable frames are
// counted and skipped. A read timeout with no frame returns
// framesync.ErrSyncTimeout, which is not fatal; any other error is.
func (s *Session) Next() (*tlv.RadarFrame, error) {
	for {
		raw, err := s.reader.Next()
		if err != nil {
			switch {
			case errors.Is(err, framesync.ErrSyncTimeout):
				s.metrics.RecordTimeout()
				return nil, err
			case framesync.IsRecoverable(err):
				s.metrics.RecordDrop(dropReason(err))
				continue
			default:
				return nil, err
			}
		}

		start := s.clock.Now()
		frame := tlv.Parse(raw, s.tlvOpts)
		if frame.Error {
			s.parseErrors.Add(1)
			s.metrics.RecordDrop(monitoring.DropParseError)
			continue
		}
		for _, err := range frame.DecodeErrors {
			s.decodeErrors.Add(1)
			var de *tlv.DecodeError
			if errors.As(err, &de) {
				s.metrics.RecordDecodeError(strconv.FormatUint(uint64(de.Type), 10))
			}
		}

		s.framesDecoded.Add(1)
		s.metrics.RecordFrame(frame.FrameNumber(), s.clock.Since(start))
		s.fpsMu.Lock()
		fps := s.fps.Tick(start)
		s.fpsMu.Unlock()
		s.metrics.SetFPS(fps)
		return frame, nil
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, framesync.ErrTruncatedHeader):
		return monitoring.DropTruncatedHeader
	case errors.Is(err, framesync.ErrTruncatedPayload):
		return monitoring.DropTruncatedPayload
	default:
		return monitoring.DropOversize
	}
}

// Process runs the heatmap of frame through the session's processor. It
// returns nil when the frame has no heatmap. Only the Run goroutine, or a
// caller driving Next itself, may call it.
func (s *Session) Process(frame *tlv.RadarFrame, ts time.Time) (*dsp.ProcessedFrame, error) {
	if s.resetPending.Swap(false) {
		s.processor.Reset()
	}
	if frame.Heatmap == nil {
		return nil, nil
	}
	pf, err := s.processor.Process(frame.FrameNumber(), ts, frame.Heatmap)
	if err != nil {
		s.processErrors.Add(1)
		return nil, err
	}
	s.recorder.Append(pf)
	return pf, nil
}

// Run reads, processes and publishes frames until ctx is done, a fatal read
// error occurs, or Options.IdleTimeouts consecutive timeouts pass.
func (s *Session) Run(ctx context.Context) error {
	idle := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := s.Next()
		if errors.Is(err, framesync.ErrSyncTimeout) {
			idle++
			if s.idleTimeouts > 0 && idle >= s.idleTimeouts {
				logf("no data for %d read timeouts, stopping", idle)
				return nil
			}
			continue
		}
		if err != nil {
			return err
		}
		idle = 0

		now := s.clock.Now()
		pf, err := s.Process(frame, now)
		if err != nil {
			logf("frame %d not processed: %v", frame.FrameNumber(), err)
		}
		s.hub.Publish(Delivery{Frame: frame, Processed: pf, Received: now})
	}
}

// StartRecording begins a recording and resets the clutter background so
// the recording starts from a fresh estimate.
func (s *Session) StartRecording(meta Metadata) (string, error) {
	if meta.Profile == "" {
		meta.Profile = s.profile
	}
	id, err := s.recorder.Start(meta)
	if err != nil {
		return "", err
	}
	s.resetPending.Store(true)
	logf("recording %s started (%s, %s)", id, meta.Subject, meta.Activity)
	return id, nil
}

// StopRecording ends the current recording and returns it.
func (s *Session) StopRecording() (*Recording, error) {
	rec, err := s.recorder.Stop()
	if err != nil {
		return nil, err
	}
	logf("recording %s stopped with %d frames", rec.ID, len(rec.Frames))
	return rec, nil
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.fpsMu.Lock()
	fps := s.fps.Rate()
	s.fpsMu.Unlock()
	return Stats{
		FramesDecoded:  s.framesDecoded.Load(),
		ParseErrors:    s.parseErrors.Load(),
		DecodeErrors:   s.decodeErrors.Load(),
		ProcessErrors:  s.processErrors.Load(),
		Sync:           s.reader.Stats(),
		FPS:            fps,
		Subscribers:    s.hub.Len(),
		SkippedSends:   s.hub.Skipped(),
		Recording:      s.recorder.Active(),
		RecordedFrames: s.recorder.Len(),
	}
}

// Close closes both ports and every subscriber channel. It is safe to call
// more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.hub.Close()
		var errs []error
		for _, p := range []serialmux.Port{s.cli, s.data} {
			if p == nil {
				continue
			}
			if err := p.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
