package serialmux

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/baxasd/OST-Radar/internal/fsutil"
)

// ReplayPortFactory stands in for radar hardware. Opening CapturePath yields
// a port that plays back a recorded data-port byte stream (zstd-compressed
// when the name ends in ".zst"); any other path yields a CLI port that
// acknowledges every command.
type ReplayPortFactory struct {
	FS          fsutil.FileSystem
	CapturePath string
	// ReadLatency paces playback; each read of up to one buffer waits
	// this long.
	ReadLatency time.Duration
}

func (f *ReplayPortFactory) Open(path string, mode *SerialPortMode) (Port, error) {
	port := NewTestableSerialPort()
	if path != f.CapturePath {
		port.Responder = AcknowledgeCommands
		return port, nil
	}

	fsys := f.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture %s: %w", path, err)
	}
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("failed to decompress capture %s: %w", path, err)
		}
	}

	port.ReadBuffer = bytes.NewBuffer(data)
	port.ReadLatency = f.ReadLatency
	return port, nil
}
