package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label on the dropped frames counter.
const (
	DropTruncatedHeader  = "truncated_header"
	DropTruncatedPayload = "truncated_payload"
	DropOversize         = "oversize"
	DropParseError       = "parse_error"
)

// SessionMetrics holds the Prometheus collectors for one sensor session.
// A nil *SessionMetrics is valid and records nothing.
type SessionMetrics struct {
	framesDecoded     prometheus.Counter
	framesDropped     *prometheus.CounterVec
	syncTimeouts      prometheus.Counter
	tlvDecodeErrors   *prometheus.CounterVec
	lastFrameNumber   prometheus.Gauge
	framesPerSecond   prometheus.Gauge
	processingSeconds prometheus.Histogram
}

// NewSessionMetrics registers the session collectors with reg. Pass
// prometheus.DefaultRegisterer in the daemon and a fresh registry in tests.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	factory := promauto.With(reg)
	return &SessionMetrics{
		framesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "radar_frames_decoded_total",
			Help: "Frames synchronised and decoded",
		}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_frames_dropped_total",
			Help: "Frames dropped before delivery, by reason",
		}, []string{"reason"}),
		syncTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "radar_sync_timeouts_total",
			Help: "Read timeouts while seeking the magic word",
		}),
		tlvDecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_tlv_decode_errors_total",
			Help: "TLV sub-decoder failures, by TLV type",
		}, []string{"type"}),
		lastFrameNumber: factory.NewGauge(prometheus.GaugeOpts{
			Name: "radar_last_frame_number",
			Help: "Frame number from the most recent header",
		}),
		framesPerSecond: factory.NewGauge(prometheus.GaugeOpts{
			Name: "radar_frames_per_second",
			Help: "Rolling frame rate estimate",
		}),
		processingSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "radar_frame_processing_seconds",
			Help:    "Time spent parsing and processing one frame",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
	}
}

// RecordFrame counts a decoded frame and records its number and processing time.
func (m *SessionMetrics) RecordFrame(frameNumber uint32, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.framesDecoded.Inc()
	m.lastFrameNumber.Set(float64(frameNumber))
	m.processingSeconds.Observe(elapsed.Seconds())
}

// RecordDrop counts a dropped frame under the given reason.
func (m *SessionMetrics) RecordDrop(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

// RecordTimeout counts a synchroniser timeout.
func (m *SessionMetrics) RecordTimeout() {
	if m == nil {
		return
	}
	m.syncTimeouts.Inc()
}

// RecordDecodeError counts a TLV sub-decoder failure.
func (m *SessionMetrics) RecordDecodeError(tlvType string) {
	if m == nil {
		return
	}
	m.tlvDecodeErrors.WithLabelValues(tlvType).Inc()
}

// SetFPS publishes the current frame rate estimate.
func (m *SessionMetrics) SetFPS(fps float64) {
	if m == nil {
		return
	}
	m.framesPerSecond.Set(fps)
}
