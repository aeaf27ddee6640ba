package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baxasd/OST-Radar/internal/chirp"
	"github.com/baxasd/OST-Radar/internal/dsp"
	"github.com/baxasd/OST-Radar/internal/timeutil"
)

var (
	ErrNotRecording    = errors.New("session: not recording")
	ErrMissingMetadata = errors.New("session: recording metadata incomplete")
)

// Metadata describes what a recording captured.
type Metadata struct {
	Subject      string   `json:"subject"`
	Activity     string   `json:"activity"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	// Profile names the chirp configuration in use.
	Profile string `json:"profile,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// Validate requires a subject, an activity and the room temperature.
func (m Metadata) Validate() error {
	var missing []string
	if strings.TrimSpace(m.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(m.Activity) == "" {
		missing = append(missing, "activity")
	}
	if m.TemperatureC == nil {
		missing = append(missing, "temperature")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMissingMetadata, strings.Join(missing, ", "))
	}
	return nil
}

// RecordedFrame is one cropped raw heatmap, in sensor counts, laid out
// range-major with DopplerBins columns.
type RecordedFrame struct {
	FrameNumber uint32
	Timestamp   time.Time
	Heatmap     []uint16
}

// Recording is a captured sequence of heatmaps plus the geometry needed to
// analyse it later.
type Recording struct {
	ID        string
	Metadata  Metadata
	StartedAt time.Time
	StoppedAt time.Time

	RangeBins            int
	DopplerBins          int
	RangeResolutionM     float64
	DopplerResolutionMps float64
	DopplerMaxMps        float64
	FrameRateHz          float64

	Frames []RecordedFrame
}

// DurationSec spans the first to the last frame timestamp.
func (r *Recording) DurationSec() float64 {
	if len(r.Frames) < 2 {
		return 0
	}
	return r.Frames[len(r.Frames)-1].Timestamp.Sub(r.Frames[0].Timestamp).Seconds()
}

// AvgFPS is the mean frame rate over DurationSec.
func (r *Recording) AvgFPS() float64 {
	d := r.DurationSec()
	if d <= 0 {
		return 0
	}
	return float64(len(r.Frames)) / d
}

// Matrices reshapes every frame to RangeBins x DopplerBins.
func (r *Recording) Matrices() ([]dsp.Matrix, error) {
	out := make([]dsp.Matrix, len(r.Frames))
	for i, f := range r.Frames {
		m, err := dsp.Reshape(f.Heatmap, r.RangeBins, r.DopplerBins)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		out[i] = m
	}
	return out, nil
}

// Analyze runs the micro-Doppler cadence analysis over the recording.
func (r *Recording) Analyze(guardMps float64, band dsp.CadenceBand) (*dsp.Analysis, error) {
	frames, err := r.Matrices()
	if err != nil {
		return nil, err
	}
	return dsp.Analyze(frames, r.DurationSec(), r.DopplerResolutionMps, guardMps, band)
}

// Recorder accumulates processed frames between Start and Stop. It is safe
// for concurrent use: the session appends while control surfaces toggle it.
type Recorder struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	radar   *chirp.RadarConfig
	rows    int
	current *Recording
}

// NewRecorder returns an idle recorder for heatmaps cropped to rangeRows.
func NewRecorder(radar *chirp.RadarConfig, rangeRows int, clock timeutil.Clock) *Recorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recorder{clock: clock, radar: radar, rows: rangeRows}
}

// Start begins a new recording, discarding any recording in progress, and
// returns its ID.
func (r *Recorder) Start(meta Metadata) (string, error) {
	if err := meta.Validate(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.current = &Recording{
		ID:                   uuid.NewString(),
		Metadata:             meta,
		StartedAt:            r.clock.Now(),
		RangeBins:            r.rows,
		DopplerBins:          r.radar.DopplerBins(),
		RangeResolutionM:     r.radar.RangeResolutionM,
		DopplerResolutionMps: r.radar.DopplerResolutionMps,
		DopplerMaxMps:        r.radar.DopplerMaxMps,
		FrameRateHz:          r.radar.FrameRateHz(),
	}
	return r.current.ID, nil
}

// Stop ends the current recording and returns it.
func (r *Recorder) Stop() (*Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil, ErrNotRecording
	}
	rec := r.current
	rec.StoppedAt = r.clock.Now()
	r.current = nil
	return rec, nil
}

// Append adds pf when recording and reports whether it was kept.
func (r *Recorder) Append(pf *dsp.ProcessedFrame) bool {
	if pf == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return false
	}
	r.current.Frames = append(r.current.Frames, RecordedFrame{
		FrameNumber: pf.FrameNumber,
		Timestamp:   pf.Timestamp,
		Heatmap:     pf.Raw,
	})
	return true
}

// Active reports whether a recording is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// Len is the number of frames in the current recording.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return 0
	}
	return len(r.current.Frames)
}
