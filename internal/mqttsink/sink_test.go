package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxasd/OST-Radar/internal/dsp"
	"github.com/baxasd/OST-Radar/internal/monitoring"
	"github.com/baxasd/OST-Radar/internal/session"
	"github.com/baxasd/OST-Radar/internal/tlv"
)

func init() {
	monitoring.SetLogger(nil)
}

type fakeToken struct {
	err     error
	timeout bool
	done    chan struct{}
}

func newFakeToken(err error, timeout bool) *fakeToken {
	t := &fakeToken{err: err, timeout: timeout, done: make(chan struct{})}
	if !timeout {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type message struct {
	Topic   string
	QoS     byte
	Payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []message
	err          error
	timeout      bool
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{Topic: topic, QoS: qos, Payload: payload.([]byte)})
	return newFakeToken(c.err, c.timeout)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) snapshot() ([]message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.messages...), c.disconnected
}

func sampleDelivery() session.Delivery {
	frame := &tlv.RadarFrame{
		Header:  tlv.Header{FrameNumber: 42, SubFrameNumber: 1},
		Heatmap: []uint16{1, 2, 3, 4},
		PointCloud: &tlv.PointCloud{Points: []tlv.Point{
			{X: 0.5, Y: 2, Z: 0.1, Doppler: -0.3, SNR: 12},
		}},
		Tracks: []tlv.Track{{ID: 7, X: 1, Y: 3, VelY: -1.2}},
		Vitals: &tlv.Vitals{HeartRate: 72, BreathRate: 14},
	}
	m := dsp.NewMatrix(2, 2)
	copy(m.Data, []float32{-60, -20, -45, -70})
	return session.Delivery{
		Frame: frame,
		Processed: &dsp.ProcessedFrame{
			FrameNumber:    42,
			RangeDopplerDB: m,
			Levels:         dsp.Levels{Low: -65, High: -25},
		},
		Received: time.UnixMilli(1_700_000_000_123),
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleDelivery())

	assert.Equal(t, uint32(42), s.FrameNumber)
	assert.Equal(t, int64(1_700_000_000_123), s.Timestamp)
	assert.Equal(t, uint32(1), s.SubFrame)
	assert.True(t, s.HasHeatmap)
	assert.Equal(t, float32(-20), s.PeakDB)
	assert.Equal(t, float32(-65), s.LevelLowDB)
	assert.Equal(t, float32(-25), s.LevelHighDB)
	require.Len(t, s.Points, 1)
	assert.Equal(t, Point{X: 0.5, Y: 2, Z: 0.1, Doppler: -0.3, SNR: 12}, s.Points[0])
	require.Len(t, s.Tracks, 1)
	assert.Equal(t, uint32(7), s.Tracks[0].ID)
	assert.Equal(t, float32(-1.2), s.Tracks[0].VelY)
	assert.Equal(t, float32(72), s.HeartRate)
	assert.Equal(t, float32(14), s.BreathRate)
}

func TestSummarize_BareFrame(t *testing.T) {
	s := Summarize(session.Delivery{Frame: &tlv.RadarFrame{
		DecodeErrors: []error{errors.New("bad tlv")},
	}})
	assert.False(t, s.HasHeatmap)
	assert.Nil(t, s.Points)
	assert.Nil(t, s.Tracks)
	assert.Equal(t, 1, s.DecodeErrors)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "points")
	assert.NotContains(t, string(data), "peak_db")
}

func TestSink_Publish(t *testing.T) {
	client := &fakeClient{}
	sink := NewSink(client, "ost-radar/frames", 1)

	require.NoError(t, sink.Publish(sampleDelivery()))
	require.NoError(t, sink.Publish(session.Delivery{}), "delivery without frame is ignored")

	msgs, _ := client.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ost-radar/frames", msgs[0].Topic)
	assert.Equal(t, byte(1), msgs[0].QoS)

	var got FrameSummary
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	assert.Equal(t, uint32(42), got.FrameNumber)
	assert.Equal(t, uint64(1), sink.Published())
	assert.Zero(t, sink.Failed())
}

func TestSink_PublishFailures(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	sink := NewSink(client, "t", 0)
	assert.ErrorContains(t, sink.Publish(sampleDelivery()), "not connected")

	client.err = nil
	client.timeout = true
	assert.ErrorIs(t, sink.Publish(sampleDelivery()), ErrPublishTimeout)
	assert.Equal(t, uint64(2), sink.Failed())
	assert.Zero(t, sink.Published())
}

func TestSink_RunUntilHubCloses(t *testing.T) {
	client := &fakeClient{}
	sink := NewSink(client, "t", 0)
	hub := session.NewHub()

	done := make(chan struct{})
	go func() {
		sink.Run(context.Background(), hub)
		close(done)
	}()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, time.Millisecond)
	hub.Publish(sampleDelivery())
	require.Eventually(t, func() bool { return sink.Published() == 1 }, time.Second, time.Millisecond)
	hub.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after hub closed")
	}
	_, disconnected := client.snapshot()
	assert.True(t, disconnected)
}

func TestSink_RunUntilCancelled(t *testing.T) {
	client := &fakeClient{}
	sink := NewSink(client, "t", 0)
	hub := session.NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sink.Run(ctx, hub)
		close(done)
	}()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 0, hub.Len())
}
