package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSessionMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSessionMetrics(reg)

	m.RecordFrame(41, 2*time.Millisecond)
	m.RecordFrame(42, 3*time.Millisecond)
	m.RecordDrop(DropOversize)
	m.RecordDrop(DropOversize)
	m.RecordDrop(DropTruncatedPayload)
	m.RecordTimeout()
	m.RecordDecodeError("1040")
	m.SetFPS(9.5)

	if got := promtest.ToFloat64(m.framesDecoded); got != 2 {
		t.Errorf("frames decoded = %v, want 2", got)
	}
	if got := promtest.ToFloat64(m.lastFrameNumber); got != 42 {
		t.Errorf("last frame number = %v, want 42", got)
	}
	if got := promtest.ToFloat64(m.framesDropped.WithLabelValues(DropOversize)); got != 2 {
		t.Errorf("oversize drops = %v, want 2", got)
	}
	if got := promtest.ToFloat64(m.framesDropped.WithLabelValues(DropTruncatedPayload)); got != 1 {
		t.Errorf("truncated payload drops = %v, want 1", got)
	}
	if got := promtest.ToFloat64(m.syncTimeouts); got != 1 {
		t.Errorf("sync timeouts = %v, want 1", got)
	}
	if got := promtest.ToFloat64(m.tlvDecodeErrors.WithLabelValues("1040")); got != 1 {
		t.Errorf("decode errors = %v, want 1", got)
	}
	if got := promtest.ToFloat64(m.framesPerSecond); got != 9.5 {
		t.Errorf("fps = %v, want 9.5", got)
	}
}

func TestSessionMetrics_NilSafe(t *testing.T) {
	var m *SessionMetrics
	m.RecordFrame(1, time.Millisecond)
	m.RecordDrop(DropParseError)
	m.RecordTimeout()
	m.RecordDecodeError("5")
	m.SetFPS(1)
}

func TestSessionMetrics_SeparateRegistries(t *testing.T) {
	// Each registry accepts its own set of collectors.
	NewSessionMetrics(prometheus.NewRegistry())
	NewSessionMetrics(prometheus.NewRegistry())
}
