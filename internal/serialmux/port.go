package serialmux

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// Port is a SerialPorter that can also be reconfigured while open. The radar
// CLI port changes baud rate mid-handshake and both ports drop stale input
// before streaming starts.
type Port interface {
	SerialPorter
	// SetReadTimeout bounds each Read. A read that times out returns 0
	// bytes and a nil error.
	SetReadTimeout(timeout time.Duration) error
	// SetMode applies a new line configuration to the open port.
	SetMode(mode *SerialPortMode) error
	// ResetInputBuffer discards any bytes received but not yet read.
	ResetInputBuffer() error
}

// SerialPortMode defines serial port configuration parameters.
type SerialPortMode struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

// Parity defines serial port parity options.
type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

// StopBits defines serial port stop bit options.
type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// Default line rates for the two UARTs exposed by TI mmWave evaluation boards.
const (
	DefaultCLIBaudRate  = 115200
	DefaultDataBaudRate = 921600
)

// DefaultReadTimeout is the per-read timeout applied to both radar ports.
const DefaultReadTimeout = 600 * time.Millisecond

// DefaultSerialPortMode returns the 8N1 mode used by the radar CLI port.
func DefaultSerialPortMode() *SerialPortMode {
	return &SerialPortMode{
		BaudRate: DefaultCLIBaudRate,
		DataBits: 8,
		Parity:   NoParity,
		StopBits: OneStopBit,
	}
}

// DataPortMode returns the 8N1 mode used by the radar data port.
func DataPortMode() *SerialPortMode {
	mode := DefaultSerialPortMode()
	mode.BaudRate = DefaultDataBaudRate
	return mode
}

// SerialPortFactory defines an interface for creating serial ports.
// This abstraction enables dependency injection of serial port creation.
type SerialPortFactory interface {
	// Open opens a serial port at the specified path with the given mode.
	Open(path string, mode *SerialPortMode) (Port, error)
}

// SerialPortOpener adapts a plain function to SerialPortFactory.
type SerialPortOpener func(path string, mode *SerialPortMode) (Port, error)

// Open calls f.
func (f SerialPortOpener) Open(path string, mode *SerialPortMode) (Port, error) {
	return f(path, mode)
}
