// Package mqttsink publishes a JSON summary of every radar frame to an MQTT
// broker.
package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/baxasd/OST-Radar/internal/monitoring"
	"github.com/baxasd/OST-Radar/internal/session"
	"github.com/baxasd/OST-Radar/internal/tlv"
)

var logf = monitoring.Component("mqttsink")

// DefaultPublishTimeout bounds the wait for a broker acknowledgement.
const DefaultPublishTimeout = 2 * time.Second

// ErrPublishTimeout is returned when the broker does not acknowledge a
// message within the publish timeout.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Client is the subset of mqtt.Client the sink uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Config selects the broker and topic.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

// Dial connects to the broker with automatic reconnection.
func Dial(cfg Config) (Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "ost-radar"
	}
	opts.SetClientID(clientID + "_" + uuid.NewString()[:8])
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		logf("connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logf("connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return client, nil
}

// Point is a detection in a frame summary.
type Point struct {
	X       float32 `json:"x"`
	Y       float32 `json:"y"`
	Z       float32 `json:"z"`
	Doppler float32 `json:"doppler"`
	SNR     float32 `json:"snr,omitempty"`
}

// Track is a tracked target in a frame summary.
type Track struct {
	ID   uint32  `json:"id"`
	X    float32 `json:"x"`
	Y    float32 `json:"y"`
	Z    float32 `json:"z"`
	VelX float32 `json:"vx"`
	VelY float32 `json:"vy"`
	VelZ float32 `json:"vz"`
}

// FrameSummary is the message published for each frame.
type FrameSummary struct {
	FrameNumber  uint32  `json:"frame_number"`
	Timestamp    int64   `json:"timestamp_ms"`
	SubFrame     uint32  `json:"sub_frame"`
	HasHeatmap   bool    `json:"has_heatmap"`
	LevelLowDB   float32 `json:"level_low_db,omitempty"`
	LevelHighDB  float32 `json:"level_high_db,omitempty"`
	PeakDB       float32 `json:"peak_db,omitempty"`
	Points       []Point `json:"points,omitempty"`
	Tracks       []Track `json:"tracks,omitempty"`
	HeartRate    float32 `json:"heart_rate,omitempty"`
	BreathRate   float32 `json:"breath_rate,omitempty"`
	DecodeErrors int     `json:"decode_errors,omitempty"`
}

// Summarize reduces a delivery to its published form.
func Summarize(d session.Delivery) FrameSummary {
	f := d.Frame
	s := FrameSummary{
		FrameNumber:  f.FrameNumber(),
		Timestamp:    d.Received.UnixMilli(),
		SubFrame:     f.Header.SubFrameNumber,
		HasHeatmap:   f.Heatmap != nil,
		DecodeErrors: len(f.DecodeErrors),
	}
	if pf := d.Processed; pf != nil {
		s.LevelLowDB = pf.Levels.Low
		s.LevelHighDB = pf.Levels.High
		for i, v := range pf.RangeDopplerDB.Data {
			if i == 0 || v > s.PeakDB {
				s.PeakDB = v
			}
		}
	}
	if f.PointCloud != nil {
		s.Points = make([]Point, len(f.PointCloud.Points))
		for i, p := range f.PointCloud.Points {
			s.Points[i] = Point{X: p.X, Y: p.Y, Z: p.Z, Doppler: p.Doppler, SNR: p.SNR}
		}
	}
	for _, t := range f.Tracks {
		s.Tracks = append(s.Tracks, trackSummary(t))
	}
	if v := f.Vitals; v != nil {
		s.HeartRate = v.HeartRate
		s.BreathRate = v.BreathRate
	}
	return s
}

func trackSummary(t tlv.Track) Track {
	return Track{ID: t.ID, X: t.X, Y: t.Y, Z: t.Z, VelX: t.VelX, VelY: t.VelY, VelZ: t.VelZ}
}

// Sink publishes hub deliveries to one topic.
type Sink struct {
	client  Client
	topic   string
	qos     byte
	timeout time.Duration

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewSink returns a sink that publishes to topic through client.
func NewSink(client Client, topic string, qos byte) *Sink {
	return &Sink{client: client, topic: topic, qos: qos, timeout: DefaultPublishTimeout}
}

// Publish sends the summary of one delivery.
func (s *Sink) Publish(d session.Delivery) error {
	if d.Frame == nil {
		return nil
	}
	data, err := json.Marshal(Summarize(d))
	if err != nil {
		s.failed.Add(1)
		return fmt.Errorf("failed to marshal frame %d: %w", d.Frame.FrameNumber(), err)
	}
	token := s.client.Publish(s.topic, s.qos, false, data)
	if !token.WaitTimeout(s.timeout) {
		s.failed.Add(1)
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		s.failed.Add(1)
		return fmt.Errorf("failed to publish to %s: %w", s.topic, err)
	}
	s.published.Add(1)
	return nil
}

// Run publishes every delivery from hub until ctx is done or the hub
// closes, then disconnects from the broker.
func (s *Sink) Run(ctx context.Context, hub *session.Hub) {
	id, deliveries := hub.Subscribe(session.DefaultSubscriberBuffer)
	defer hub.Unsubscribe(id)
	defer s.client.Disconnect(250)

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := s.Publish(d); err != nil {
				logf("%v", err)
			}
		}
	}
}

// Published and Failed count publish outcomes.
func (s *Sink) Published() uint64 { return s.published.Load() }
func (s *Sink) Failed() uint64    { return s.failed.Load() }
