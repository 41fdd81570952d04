package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFrameSize is the maximum allowed frame body size (64 KB)
	MaxFrameSize = 64 * 1024

	// ProtocolVersion is the current protocol version.
	// Version 1 was the unframed "<version><command><data>" layout.
	ProtocolVersion = 2

	// headerSize is version (1) + command (1)
	headerSize = 2

	// MaxPayloadSize is the largest payload that fits in one frame
	MaxPayloadSize = MaxFrameSize - headerSize
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrFrameTooLarge  = fmt.Errorf("%w: frame exceeds maximum size (64 KB)", ErrMalformedFrame)
	ErrInvalidVersion = fmt.Errorf("%w: invalid protocol version", ErrMalformedFrame)
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", ErrMalformedFrame)
)

// Frame represents a protocol frame
// Stream format: [Length (4 bytes)][Version (1 byte)][Command (1 byte)][Payload (N bytes)]
type Frame struct {
	Version uint8   // Protocol version (currently 2)
	Command Command // Opcode
	Payload []byte  // UTF-8 text
}

// Encode lays out a frame body: one version byte, one command byte, then payload.
func Encode(version uint8, cmd Command, payload []byte) []byte {
	buf := make([]byte, 0, headerSize+len(payload))
	buf = append(buf, version, byte(cmd))
	return append(buf, payload...)
}

// Decode parses a frame body produced by Encode.
func Decode(body []byte) (*Frame, error) {
	if len(body) < headerSize {
		return nil, ErrMalformedFrame
	}
	if body[0] != ProtocolVersion {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidVersion, body[0])
	}
	cmd := Command(body[1])
	if !cmd.Valid() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, body[1])
	}

	payload := make([]byte, len(body)-headerSize)
	copy(payload, body[headerSize:])

	return &Frame{
		Version: body[0],
		Command: cmd,
		Payload: payload,
	}, nil
}

// EncodeFrame writes a length-prefixed frame to the writer
func EncodeFrame(w io.Writer, f *Frame) error {
	body := Encode(f.Version, f.Command, f.Payload)
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	// Single write so concurrent writers on an unbuffered conn never split a frame
	buf := make([]byte, 4, 4+len(body))
	putUint32(buf, uint32(len(body)))
	buf = append(buf, body...)

	_, err := w.Write(buf)
	return err
}

// DecodeFrame reads exactly one length-prefixed frame from the reader
func DecodeFrame(r io.Reader) (*Frame, error) {
	length, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}

	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	// Length must be at least 2 (version + command)
	if length < headerSize {
		return nil, ErrMalformedFrame
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return Decode(body)
}

// EncodeMessage is a helper that encodes a frame to a byte slice
func EncodeMessage(cmd Command, payload []byte) ([]byte, error) {
	frame := &Frame{
		Version: ProtocolVersion,
		Command: cmd,
		Payload: payload,
	}

	buf := new(bytes.Buffer)
	if err := EncodeFrame(buf, frame); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeMessage is a helper that decodes a frame from a byte slice
func DecodeMessage(data []byte) (*Frame, error) {
	return DecodeFrame(bytes.NewReader(data))
}
