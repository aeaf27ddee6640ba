package serialmux

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/baxasd/OST-Radar/internal/monitoring"
	"github.com/baxasd/OST-Radar/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func newAckedPort() *TestableSerialPort {
	port := NewTestableSerialPort()
	port.Responder = AcknowledgeCommands
	return port
}

func TestCommandPort_SendReadsTwoAcks(t *testing.T) {
	port := newAckedPort()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	cp := NewCommandPort(port, nil, clock)

	acks, err := cp.Send("sensorStop")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	want := []string{"mmwDemo:/>sensorStop", "Done"}
	if diff := cmp.Diff(want, acks); diff != "" {
		t.Errorf("acks mismatch (-want +got):\n%s", diff)
	}
	if got := string(port.GetWrittenData()); got != "sensorStop\n" {
		t.Errorf("written = %q, want %q", got, "sensorStop\n")
	}
	if diff := cmp.Diff([]time.Duration{DefaultLineDelay}, clock.Sleeps()); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandPort_SendConfig(t *testing.T) {
	port := newAckedPort()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	cp := NewCommandPort(port, nil, clock)

	commands := []string{
		"% comment",
		"sensorStop",
		"",
		"flushCfg",
		"baudRate 921600",
		"sensorStart",
	}
	if err := cp.SendConfig(context.Background(), commands); err != nil {
		t.Fatalf("SendConfig() error = %v", err)
	}

	want := "sensorStop\nflushCfg\nbaudRate 921600\nsensorStart\n"
	if got := string(port.GetWrittenData()); got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
	if len(port.Modes) != 1 || port.Modes[0].BaudRate != 921600 {
		t.Errorf("Modes = %+v, want a single switch to 921600", port.Modes)
	}
	if cp.Mode().BaudRate != 921600 {
		t.Errorf("Mode().BaudRate = %d, want 921600", cp.Mode().BaudRate)
	}
	if port.InputResets != 1 {
		t.Errorf("InputResets = %d, want 1", port.InputResets)
	}
	// One delay per command plus the settle delay before the flush.
	if got := len(clock.Sleeps()); got != 5 {
		t.Errorf("sleeps = %d, want 5", got)
	}
}

func TestCommandPort_SlowBaudPacesCharacters(t *testing.T) {
	port := newAckedPort()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	cp := NewCommandPort(port, &SerialPortMode{BaudRate: slowBaudRate}, clock)

	if _, err := cp.Send("sensorStart"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if port.WriteCalls != len("sensorStart\n") {
		t.Errorf("WriteCalls = %d, want one per character", port.WriteCalls)
	}
	sleeps := clock.Sleeps()
	if len(sleeps) != 1+len("sensorStart\n") {
		t.Fatalf("sleeps = %d, want %d", len(sleeps), 1+len("sensorStart\n"))
	}
	for _, d := range sleeps[1:] {
		if d != charDelay {
			t.Errorf("character delay = %v, want %v", d, charDelay)
		}
	}
}

func TestCommandPort_AckTimeout(t *testing.T) {
	t.Run("lenient", func(t *testing.T) {
		port := NewTestableSerialPort()
		cp := NewCommandPort(port, nil, timeutil.NewMockClock(time.Unix(0, 0)))

		if err := cp.SendConfig(context.Background(), []string{"sensorStop", "sensorStart"}); err != nil {
			t.Fatalf("SendConfig() error = %v, want nil", err)
		}
		if got := string(port.GetWrittenData()); got != "sensorStop\nsensorStart\n" {
			t.Errorf("written = %q", got)
		}
	})

	t.Run("strict", func(t *testing.T) {
		port := NewTestableSerialPort()
		cp := NewCommandPort(port, nil, timeutil.NewMockClock(time.Unix(0, 0)))
		cp.Strict = true

		err := cp.SendConfig(context.Background(), []string{"sensorStop", "sensorStart"})
		if !errors.Is(err, ErrAckTimeout) {
			t.Fatalf("SendConfig() error = %v, want ErrAckTimeout", err)
		}
		if got := string(port.GetWrittenData()); got != "sensorStop\n" {
			t.Errorf("written = %q, want only the first command", got)
		}
	})

	t.Run("partial", func(t *testing.T) {
		port := NewTestableSerialPort()
		port.AddReadData([]byte("Done\r\n"))
		cp := NewCommandPort(port, nil, timeutil.NewMockClock(time.Unix(0, 0)))

		acks, err := cp.Send("sensorStop")
		if !errors.Is(err, ErrAckTimeout) {
			t.Fatalf("Send() error = %v, want ErrAckTimeout", err)
		}
		if len(acks) != 1 || acks[0] != "Done" {
			t.Errorf("acks = %q, want [Done]", acks)
		}
	})
}

func TestCommandPort_Rejected(t *testing.T) {
	port := NewTestableSerialPort()
	port.Responder = func(written []byte) []byte {
		return []byte("mmwDemo:/>" + strings.TrimSpace(string(written)) + "\r\nError -1\r\n")
	}
	cp := NewCommandPort(port, nil, timeutil.NewMockClock(time.Unix(0, 0)))

	_, err := cp.Send("profileCfg 0 60")
	if !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("Send() error = %v, want ErrCommandRejected", err)
	}

	cp.Strict = true
	if err := cp.SendConfig(context.Background(), []string{"profileCfg 0 60"}); !errors.Is(err, ErrCommandRejected) {
		t.Errorf("strict SendConfig() error = %v, want ErrCommandRejected", err)
	}
}

func TestCommandPort_InvalidBaudRate(t *testing.T) {
	for _, command := range []string{"baudRate", "baudRate fast", "baudRate -1"} {
		port := newAckedPort()
		cp := NewCommandPort(port, nil, timeutil.NewMockClock(time.Unix(0, 0)))

		err := cp.SendConfig(context.Background(), []string{command})
		if !errors.Is(err, ErrInvalidBaudRate) {
			t.Errorf("%q: error = %v, want ErrInvalidBaudRate", command, err)
		}
		if len(port.Modes) != 0 {
			t.Errorf("%q: mode changed to %+v", command, port.Modes)
		}
	}
}

func TestCommandPort_WriteError(t *testing.T) {
	port := newAckedPort()
	port.WriteError = errors.New("usb unplugged")
	cp := NewCommandPort(port, nil, timeutil.NewMockClock(time.Unix(0, 0)))

	if err := cp.SendConfig(context.Background(), []string{"sensorStop"}); err == nil {
		t.Fatal("expected write error")
	}
}

func TestCommandPort_ContextCancelled(t *testing.T) {
	port := newAckedPort()
	cp := NewCommandPort(port, nil, timeutil.NewMockClock(time.Unix(0, 0)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cp.SendConfig(ctx, []string{"sensorStop"}); !errors.Is(err, context.Canceled) {
		t.Errorf("SendConfig() error = %v, want context.Canceled", err)
	}
	if port.WriteCalls != 0 {
		t.Errorf("WriteCalls = %d, want 0", port.WriteCalls)
	}
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		line, command, want string
	}{
		{"Done", "sensorStop", ResponseDone},
		{"  Done\r", "", ResponseDone},
		{"Error -1", "profileCfg", ResponseError},
		{"'foo' is not recognized as a CLI command", "foo", ResponseError},
		{"Ignored: Sensor is already stopped", "sensorStop", ResponseIgnored},
		{"mmwDemo:/>sensorStop", "sensorStop", ResponseEcho},
		{"sensorStop", "sensorStop", ResponseEcho},
		{"Debug: Init Calibration Status = 0x1ffe", "sensorStart", ResponseUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyResponse(tt.line, tt.command); got != tt.want {
			t.Errorf("ClassifyResponse(%q, %q) = %q, want %q", tt.line, tt.command, got, tt.want)
		}
	}
}

func TestLineReader(t *testing.T) {
	port := NewTestableSerialPort()
	lr := newLineReader(port)

	if _, err := lr.ReadLine(); !errors.Is(err, errNoData) {
		t.Fatalf("empty read error = %v, want errNoData", err)
	}

	port.AddReadData([]byte("par"))
	if _, err := lr.ReadLine(); !errors.Is(err, errNoData) {
		t.Fatalf("partial line error = %v, want errNoData", err)
	}
	port.AddReadData([]byte("tial\r\nnext\n"))
	for _, want := range []string{"partial", "next"} {
		got, err := lr.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine() error = %v", err)
		}
		if got != want {
			t.Errorf("ReadLine() = %q, want %q", got, want)
		}
	}

	port.AddReadData([]byte(strings.Repeat("x", maxLineLength+10)))
	got, err := lr.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine() error = %v", err)
	}
	if len(got) < maxLineLength {
		t.Errorf("long line returned %d bytes, want at least %d", len(got), maxLineLength)
	}
}
