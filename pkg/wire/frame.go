// Package wire implements the serial framing and the request/response
// message codec from spec §6: a length-prefixed frame
// (messageType:u8, length:u16_le, payload:bytes) carrying
// protobuf-wire-compatible payloads. The codec is hand-written against
// google.golang.org/protobuf/encoding/protowire instead of
// protoc-generated types, since no code generation is run in this
// module (see DESIGN.md); proto/cistern.proto documents the same shapes
// for a real client.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MessageType distinguishes the live API channel from the test-harness
// loopback channel mentioned in §6.
type MessageType uint8

const (
	MessageAPI  MessageType = 1
	MessageTest MessageType = 2
)

// MaxPayloadLength is the largest payload the u16 length prefix can
// describe; WriteFrame refuses anything longer.
const MaxPayloadLength = 1<<16 - 1

var ErrPayloadTooLarge = errors.New("wire: payload exceeds MaxPayloadLength")

// Frame is one decoded messageType/payload pair.
type Frame struct {
	Type    MessageType
	Payload []byte
}

// WriteFrame writes messageType, the little-endian u16 length, and
// payload to w.
func WriteFrame(w io.Writer, typ MessageType, payload []byte) error {
	if len(payload) > MaxPayloadLength {
		return ErrPayloadTooLarge
	}
	header := make([]byte, 3)
	header[0] = byte(typ)
	binary.LittleEndian.PutUint16(header[1:], uint16(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame blocks on r until a full frame (header + payload) has been
// read, or returns an error. Callers needing READ_TIMEOUT truncation
// semantics should use the incremental Reader instead, which never
// blocks past a single byte read.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, 3)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}
	length := binary.LittleEndian.Uint16(header[1:])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: MessageType(header[0]), Payload: payload}, nil
}
