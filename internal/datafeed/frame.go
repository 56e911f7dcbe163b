// Package datafeed pushes live LOOP and archive packets to TCP clients and
// answers their archive catch-up requests.
package datafeed

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/vantaged/internal/types"
)

// StartSequence opens every frame.
var StartSequence = [4]byte{0xF3, 0xD1, 0x7C, 0xA5}

// FrameType identifies a frame's payload.
type FrameType uint8

const (
	FrameLoop FrameType = iota + 1
	FrameArchive
	// FrameArchiveRequest is sent by clients to get the first archive
	// record after a time.
	FrameArchiveRequest
)

const (
	headerLen = len(StartSequence) + 1 + 4
	// MaxPayload bounds a frame so a corrupt length cannot stall a
	// connection.
	MaxPayload = 64 * 1024
)

var (
	// ErrShortFrame means more bytes are needed.
	ErrShortFrame = errors.New("datafeed: incomplete frame")
	// ErrFrameTooLarge is returned for a length above MaxPayload.
	ErrFrameTooLarge = errors.New("datafeed: frame too large")
)

// Frame is one decoded message.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// ArchiveRequest asks for the first archive record after After.
type ArchiveRequest struct {
	After time.Time `msgpack:"after"`
}

// Encode builds the wire form of a frame carrying v as msgpack.
func Encode(t FrameType, v any) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("datafeed: encoding frame: %w", err)
	}
	if len(payload) > MaxPayload {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, headerLen, headerLen+len(payload))
	copy(buf, StartSequence[:])
	buf[4] = byte(t)
	binary.BigEndian.PutUint32(buf[5:], uint32(len(payload)))
	return append(buf, payload...), nil
}

// Decode parses the first frame in buf. It returns the number of bytes
// consumed, which includes garbage skipped before the start sequence, and
// ErrShortFrame when buf holds only part of a frame.
func Decode(buf []byte) (Frame, int, error) {
	start := bytes.Index(buf, StartSequence[:])
	if start < 0 {
		// Keep a possible partial start sequence at the tail.
		skip := max(len(buf)-len(StartSequence)+1, 0)
		return Frame{}, skip, ErrShortFrame
	}
	buf = buf[start:]
	if len(buf) < headerLen {
		return Frame{}, start, ErrShortFrame
	}
	n := binary.BigEndian.Uint32(buf[5:])
	if n > MaxPayload {
		// Skip this start sequence and resynchronize.
		return Frame{}, start + len(StartSequence), ErrFrameTooLarge
	}
	end := headerLen + int(n)
	if len(buf) < end {
		return Frame{}, start, ErrShortFrame
	}
	f := Frame{Type: FrameType(buf[4]), Payload: append([]byte(nil), buf[headerLen:end]...)}
	return f, start + end, nil
}

// ReadFrame reads one frame from r, skipping bytes until a start sequence.
func ReadFrame(r io.Reader) (Frame, error) {
	var (
		win [4]byte
		one [1]byte
	)
	for win != StartSequence {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return Frame{}, err
		}
		copy(win[:], win[1:])
		win[3] = one[0]
	}

	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(hdr[1:])
	if n > MaxPayload {
		return Frame{}, ErrFrameTooLarge
	}
	f := Frame{Type: FrameType(hdr[0]), Payload: make([]byte, n)}
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Loop decodes a FrameLoop payload.
func (f Frame) Loop() (types.LoopPacket, error) {
	var p types.LoopPacket
	err := msgpack.Unmarshal(f.Payload, &p)
	return p, err
}

// Archive decodes a FrameArchive payload.
func (f Frame) Archive() (types.ArchivePacket, error) {
	var p types.ArchivePacket
	err := msgpack.Unmarshal(f.Payload, &p)
	return p, err
}

// ArchiveRequest decodes a FrameArchiveRequest payload.
func (f Frame) ArchiveRequest() (ArchiveRequest, error) {
	var r ArchiveRequest
	err := msgpack.Unmarshal(f.Payload, &r)
	return r, err
}
