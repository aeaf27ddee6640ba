package framesync

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/baxasd/OST-Radar/internal/monitoring"
)

// Frame size bounds. HeaderPrefixSize covers magic, version and length.
const (
	HeaderPrefixSize = 16
	MinFrameLength   = 16
	MaxFrameLength   = 100000
)

// readChunk is the size of each read issued against the byte source.
const readChunk = 4096

// Recoverable conditions. The next call to Next resumes scanning.
var (
	ErrSyncTimeout      = errors.New("framesync: no magic word before read timeout")
	ErrTruncatedHeader  = errors.New("framesync: truncated frame header")
	ErrTruncatedPayload = errors.New("framesync: truncated frame payload")
	ErrOversizeFrame    = errors.New("framesync: frame length out of range")
)

// IsRecoverable reports whether err is one of the synchroniser conditions
// that only drop data rather than end the stream.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrSyncTimeout) ||
		errors.Is(err, ErrTruncatedHeader) ||
		errors.Is(err, ErrTruncatedPayload) ||
		errors.Is(err, ErrOversizeFrame)
}

// RawFrame is one complete frame: magic, version, length and payload.
type RawFrame []byte

// Version returns the header version field.
func (f RawFrame) Version() uint32 {
	if len(f) < HeaderPrefixSize {
		return 0
	}
	return binary.LittleEndian.Uint32(f[8:12])
}

// Length returns the declared total frame length.
func (f RawFrame) Length() uint32 {
	if len(f) < HeaderPrefixSize {
		return 0
	}
	return binary.LittleEndian.Uint32(f[12:16])
}

// Stats counts synchroniser outcomes since the Reader was created.
type Stats struct {
	Frames            uint64
	Timeouts          uint64
	TruncatedHeaders  uint64
	TruncatedPayloads uint64
	Oversize          uint64
	BytesDiscarded    uint64
}

// Dropped is the number of frames lost after the magic word was matched.
func (s Stats) Dropped() uint64 {
	return s.TruncatedHeaders + s.TruncatedPayloads + s.Oversize
}

type counters struct {
	frames            atomic.Uint64
	timeouts          atomic.Uint64
	truncatedHeaders  atomic.Uint64
	truncatedPayloads atomic.Uint64
	oversize          atomic.Uint64
	bytesDiscarded    atomic.Uint64
}

// Reader pulls frames from a byte source whose Read returns (0, nil) or
// io.EOF when its read timeout expires, as a serial port does. Next must be
// called from a single goroutine; Stats and State are safe from any.
type Reader struct {
	src   io.Reader
	buf   []byte
	start int
	end   int

	scan  Scanner
	state atomic.Int32
	stats counters
}

// NewReader returns a Reader consuming src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, buf: make([]byte, readChunk)}
}

// State returns the synchroniser state.
func (r *Reader) State() State { return State(r.state.Load()) }

func (r *Reader) setState(s State) { r.state.Store(int32(s)) }

// Stats returns a snapshot of the counters.
func (r *Reader) Stats() Stats {
	return Stats{
		Frames:            r.stats.frames.Load(),
		Timeouts:          r.stats.timeouts.Load(),
		TruncatedHeaders:  r.stats.truncatedHeaders.Load(),
		TruncatedPayloads: r.stats.truncatedPayloads.Load(),
		Oversize:          r.stats.oversize.Load(),
		BytesDiscarded:    r.stats.bytesDiscarded.Load(),
	}
}

// Next returns the next complete frame. Recoverable failures return one of
// the sentinel errors above and leave the Reader seeking; any other error
// from the byte source is returned wrapped and should end the stream.
//
// A timeout while seeking keeps the partial magic match, since no bytes were
// lost, only delayed.
func (r *Reader) Next() (RawFrame, error) {
	r.setState(StateSeeking)
	for {
		b, ok, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if !ok {
			r.stats.timeouts.Add(1)
			return nil, ErrSyncTimeout
		}
		before := r.scan.Matched()
		if r.scan.Feed(b) {
			break
		}
		if after := r.scan.Matched(); after <= before {
			r.stats.bytesDiscarded.Add(uint64(before + 1 - after))
		}
	}
	r.setState(StateMatchedMagic)

	r.setState(StateReadingHeader)
	var hdr [HeaderPrefixSize - len(Magic)]byte
	n, err := r.readFull(hdr[:])
	if err != nil {
		return nil, err
	}
	if n < len(hdr) {
		return nil, r.drop(&r.stats.truncatedHeaders, ErrTruncatedHeader, len(Magic)+n,
			"short header: %d of %d bytes", n, len(hdr))
	}
	length := binary.LittleEndian.Uint32(hdr[4:8])
	if length < MinFrameLength || length > MaxFrameLength {
		return nil, r.drop(&r.stats.oversize, ErrOversizeFrame, HeaderPrefixSize,
			"declared length %d outside [%d, %d]", length, MinFrameLength, MaxFrameLength)
	}

	r.setState(StateReadingPayload)
	frame := make(RawFrame, length)
	copy(frame, Magic[:])
	copy(frame[len(Magic):], hdr[:])
	n, err = r.readFull(frame[HeaderPrefixSize:])
	if err != nil {
		return nil, err
	}
	if want := int(length) - HeaderPrefixSize; n < want {
		return nil, r.drop(&r.stats.truncatedPayloads, ErrTruncatedPayload, HeaderPrefixSize+n,
			"short payload: %d of %d bytes", n, want)
	}

	r.stats.frames.Add(1)
	r.setState(StateSeeking)
	return frame, nil
}

func (r *Reader) drop(counter *atomic.Uint64, sentinel error, discarded int, format string, args ...interface{}) error {
	counter.Add(1)
	r.stats.bytesDiscarded.Add(uint64(discarded))
	r.scan.Reset()
	r.setState(StateSeeking)
	err := fmt.Errorf("%w: "+format, append([]interface{}{sentinel}, args...)...)
	monitoring.Logf("%v", err)
	return err
}

// fill issues one read against the source. It returns false when the read
// produced no bytes, which is how a timed-out serial read presents.
func (r *Reader) fill() (bool, error) {
	n, err := r.src.Read(r.buf)
	r.start, r.end = 0, n
	if n > 0 {
		return true, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return false, nil
	}
	return false, fmt.Errorf("framesync: read: %w", err)
}

func (r *Reader) readByte() (byte, bool, error) {
	if r.start == r.end {
		ok, err := r.fill()
		if !ok || err != nil {
			return 0, false, err
		}
	}
	b := r.buf[r.start]
	r.start++
	return b, true, nil
}

// readFull copies into dst until it is full or a read returns no data.
func (r *Reader) readFull(dst []byte) (int, error) {
	n := 0
	for n < len(dst) {
		if r.start == r.end {
			ok, err := r.fill()
			if err != nil {
				return n, err
			}
			if !ok {
				return n, nil
			}
		}
		c := copy(dst[n:], r.buf[r.start:r.end])
		r.start += c
		n += c
	}
	return n, nil
}
