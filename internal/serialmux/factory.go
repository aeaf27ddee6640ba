package serialmux

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// RealSerialPortFactory opens hardware ports through go.bug.st/serial.
type RealSerialPortFactory struct {
	// ReadTimeout is applied to every opened port. Zero means
	// DefaultReadTimeout.
	ReadTimeout time.Duration
}

// Open opens the device at path and applies the read timeout.
func (f RealSerialPortFactory) Open(path string, mode *SerialPortMode) (Port, error) {
	smode, err := SerialMode(mode)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, smode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	timeout := f.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}

	return &hardwarePort{Port: port}, nil
}

// hardwarePort adapts serial.Port to Port.
type hardwarePort struct {
	serial.Port
}

func (p *hardwarePort) SetMode(mode *SerialPortMode) error {
	smode, err := SerialMode(mode)
	if err != nil {
		return err
	}
	return p.Port.SetMode(smode)
}
