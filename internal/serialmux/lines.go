package serialmux

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// errNoData reports a read that returned nothing before its timeout.
var errNoData = errors.New("no data before read timeout")

// maxLineLength caps a single CLI line; longer runs are returned in pieces.
const maxLineLength = 4096

// lineReader splits CLI port output into lines. Unlike bufio.Scanner it
// surfaces each empty timed-out read immediately so callers can apply their
// own deadline, and it keeps partial lines across calls.
type lineReader struct {
	r       io.Reader
	pending []byte
	buf     []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: r, buf: make([]byte, 256)}
}

// ReadLine returns the next line without its terminator. It returns
// errNoData when a read yields no bytes, io.EOF at end of input and any
// other read error unchanged. Partial input is kept for the next call.
func (l *lineReader) ReadLine() (string, error) {
	for {
		if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
			line := string(l.pending[:i])
			l.pending = l.pending[i+1:]
			return strings.TrimRight(line, "\r"), nil
		}
		if len(l.pending) >= maxLineLength {
			line := string(l.pending)
			l.pending = nil
			return line, nil
		}

		n, err := l.r.Read(l.buf)
		if n > 0 {
			l.pending = append(l.pending, l.buf[:n]...)
			continue
		}
		if err != nil {
			return "", err
		}
		return "", errNoData
	}
}

// Discard drops any buffered partial line.
func (l *lineReader) Discard() {
	l.pending = nil
}
