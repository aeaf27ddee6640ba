// Package framesync recovers delimited TI mmWave frames from a raw UART byte
// stream. Frames start with an 8-byte magic word followed by a version and a
// little-endian total length; the synchroniser locks onto the magic word,
// validates the length and reassembles the payload, dropping and resyncing
// after any corruption.
package framesync

// Magic is the frame start marker emitted by the TI mmWave demo firmware.
var Magic = [8]byte{0x02, 0x01, 0x04, 0x03, 0x06, 0x05, 0x08, 0x07}

// State is the synchroniser position within the current frame.
type State int

const (
	// StateSeeking scans for the magic word.
	StateSeeking State = iota
	// StateMatchedMagic has seen the full magic word.
	StateMatchedMagic
	// StateReadingHeader reads the version and length fields.
	StateReadingHeader
	// StateReadingPayload reads the remaining length-16 bytes.
	StateReadingPayload
)

func (s State) String() string {
	switch s {
	case StateSeeking:
		return "seeking"
	case StateMatchedMagic:
		return "matched_magic"
	case StateReadingHeader:
		return "reading_header"
	case StateReadingPayload:
		return "reading_payload"
	default:
		return "unknown"
	}
}

// Scanner matches the magic word one byte at a time. It holds no I/O and can
// be driven directly in tests.
type Scanner struct {
	matched int
}

// Feed advances the matcher by one byte and reports whether the byte
// completed the magic word. On a mismatch a byte equal to Magic[0] starts a
// new candidate, so a false start such as 02 01 02 01 04 ... still locks on
// the second occurrence.
func (s *Scanner) Feed(b byte) bool {
	if b == Magic[s.matched] {
		s.matched++
		if s.matched == len(Magic) {
			s.matched = 0
			return true
		}
		return false
	}
	if b == Magic[0] {
		s.matched = 1
	} else {
		s.matched = 0
	}
	return false
}

// Matched returns the number of magic bytes matched so far.
func (s *Scanner) Matched() int { return s.matched }

// Reset discards any partial match.
func (s *Scanner) Reset() { s.matched = 0 }
