// Package vantage holds the wire formats spoken by Davis VantagePro consoles:
// control bytes, CRC framing, packed dates, LOOP packets and archive pages.
package vantage

import (
	"errors"
	"fmt"

	"github.com/chrissnell/vantaged/pkg/crc16"
)

// Console control bytes.
const (
	ACK    byte = 0x06
	NAK    byte = 0x21
	Cancel byte = 0x1B
	BadCRC byte = 0x18
	CR     byte = 0x0D
	LF     byte = 0x0A
)

// Framed message sizes, CRC included.
const (
	LoopSize            = 99
	ArchivePageSize     = 267
	DumpHeaderSize      = 6
	ArchiveIntervalSize = 3
	TimeBlockSize       = 8
	RecordsPerPage      = 5
)

var (
	// ErrCRC is returned when a framed block fails its CRC check.
	ErrCRC = errors.New("vantage: crc mismatch")
	// ErrNAK is returned when the console answers with NAK or BadCRC.
	ErrNAK = errors.New("vantage: console refused request")
	// ErrShortFrame is returned when a block is shorter than its fixed size.
	ErrShortFrame = errors.New("vantage: short frame")
)

// Command returns an ASCII console command terminated with a line feed.
func Command(format string, args ...any) []byte {
	return append([]byte(fmt.Sprintf(format, args...)), LF)
}

// Frame appends the big-endian CRC of payload.
func Frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+2)
	out = append(out, payload...)
	return crc16.Append(out)
}

// CheckFrame verifies a block of the expected size and returns its payload.
func CheckFrame(frame []byte, size int) ([]byte, error) {
	if len(frame) < size {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrShortFrame, len(frame), size)
	}
	if !crc16.Verify(frame[:size]) {
		return nil, ErrCRC
	}
	return frame[:size-2], nil
}

// AckResult classifies a single acknowledgement byte. LF and CR are not
// acknowledgements and must be skipped by the caller.
func AckResult(b byte) error {
	switch b {
	case ACK:
		return nil
	case NAK, BadCRC:
		return ErrNAK
	default:
		return fmt.Errorf("vantage: unexpected ack byte 0x%02x", b)
	}
}

// IsLineByte reports whether b is a stray line terminator.
func IsLineByte(b byte) bool {
	return b == LF || b == CR
}
