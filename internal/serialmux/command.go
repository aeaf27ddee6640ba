package serialmux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/baxasd/OST-Radar/internal/timeutil"
)

var (
	ErrWriteFailed     = fmt.Errorf("failed to write to serial port")
	ErrAckTimeout      = errors.New("timed out waiting for command acknowledgement")
	ErrCommandRejected = errors.New("command rejected by radar")
	ErrInvalidBaudRate = errors.New("invalid baud rate")
)

const (
	// DefaultLineDelay is the pause before each configuration line.
	DefaultLineDelay = 30 * time.Millisecond
	// AckLines is the number of lines the demo firmware returns per command.
	AckLines = 2
	// slowBaudRate needs characters paced individually or the firmware
	// drops them.
	slowBaudRate = 1250000
	charDelay    = time.Millisecond
)

// CommandPort drives the radar CLI UART: it writes configuration commands,
// collects their acknowledgements and follows baudRate changes.
type CommandPort struct {
	port  Port
	lines *lineReader
	clock timeutil.Clock
	mode  SerialPortMode
	mu    sync.Mutex

	// LineDelay is slept before every command. Zero disables the delay.
	LineDelay time.Duration
	// Strict makes SendConfig fail on a missing or rejected
	// acknowledgement. Otherwise those are logged and the handshake
	// continues.
	Strict bool
}

// NewCommandPort wraps an open CLI port. mode is the mode the port was opened
// with; nil means DefaultSerialPortMode.
func NewCommandPort(port Port, mode *SerialPortMode, clock timeutil.Clock) *CommandPort {
	if mode == nil {
		mode = DefaultSerialPortMode()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &CommandPort{
		port:      port,
		lines:     newLineReader(port),
		clock:     clock,
		mode:      *mode,
		LineDelay: DefaultLineDelay,
	}
}

// Mode returns the current line configuration of the CLI port.
func (c *CommandPort) Mode() SerialPortMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Send writes a single command and reads its acknowledgement lines. The
// returned lines are valid even when err is non-nil.
func (c *CommandPort) Send(command string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(strings.TrimSpace(command))
}

func (c *CommandPort) send(command string) ([]string, error) {
	if c.LineDelay > 0 {
		c.clock.Sleep(c.LineDelay)
	}
	if err := c.write(command + "\n"); err != nil {
		return nil, fmt.Errorf("command %q: %w", command, err)
	}

	acks := make([]string, 0, AckLines)
	var ackErr error
	for len(acks) < AckLines {
		line, err := c.lines.ReadLine()
		if errors.Is(err, errNoData) || errors.Is(err, io.EOF) {
			ackErr = fmt.Errorf("command %q: got %d of %d lines: %w", command, len(acks), AckLines, ErrAckTimeout)
			break
		}
		if err != nil {
			return acks, fmt.Errorf("command %q: failed to read acknowledgement: %w", command, err)
		}
		acks = append(acks, line)
	}
	if ackErr == nil {
		for _, ack := range acks {
			if ClassifyResponse(ack, command) == ResponseError {
				ackErr = fmt.Errorf("command %q: %s: %w", command, strings.TrimSpace(ack), ErrCommandRejected)
				break
			}
		}
	}

	// The new rate takes effect once the firmware has acknowledged at the
	// old one.
	if baud, ok, err := parseBaudRate(command); err != nil {
		return acks, err
	} else if ok {
		mode := c.mode
		mode.BaudRate = baud
		if err := c.port.SetMode(&mode); err != nil {
			return acks, fmt.Errorf("failed to switch CLI port to %d baud: %w", baud, err)
		}
		c.mode = mode
		logf("CLI port now at %d baud", baud)
	}
	return acks, ackErr
}

func (c *CommandPort) write(line string) error {
	if c.mode.BaudRate != slowBaudRate {
		n, err := c.port.Write([]byte(line))
		if err != nil {
			return err
		}
		if n != len(line) {
			return ErrWriteFailed
		}
		return nil
	}
	for i := 0; i < len(line); i++ {
		c.clock.Sleep(charDelay)
		n, err := c.port.Write([]byte{line[i]})
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrWriteFailed
		}
	}
	return nil
}

// SendConfig runs the configuration handshake: every command is sent in
// order, then the port input is flushed. It stops early when ctx is done.
func (c *CommandPort) SendConfig(ctx context.Context, commands []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, command := range commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		command = strings.TrimSpace(command)
		if command == "" || strings.HasPrefix(command, "%") {
			continue
		}
		acks, err := c.send(command)
		switch {
		case err == nil:
		case errors.Is(err, ErrAckTimeout), errors.Is(err, ErrCommandRejected):
			if c.Strict {
				return err
			}
			logf("%v (acks %q)", err, acks)
		default:
			return err
		}
	}

	if c.LineDelay > 0 {
		c.clock.Sleep(c.LineDelay)
	}
	c.lines.Discard()
	if err := c.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to reset CLI input buffer: %w", err)
	}
	return nil
}

// parseBaudRate recognises "baudRate <n>" commands.
func parseBaudRate(command string) (int, bool, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 || fields[0] != "baudRate" {
		return 0, false, nil
	}
	if len(fields) < 2 {
		return 0, false, fmt.Errorf("command %q: %w", command, ErrInvalidBaudRate)
	}
	baud, err := strconv.Atoi(fields[1])
	if err != nil || baud <= 0 {
		return 0, false, fmt.Errorf("command %q: %w", command, ErrInvalidBaudRate)
	}
	return baud, true, nil
}
