package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

var ErrInvalidUTF8 = fmt.Errorf("%w: invalid UTF-8 text", ErrMalformedFrame)

// ReadUint32 reads a 32-bit unsigned integer in big-endian
func ReadUint32(r io.Reader) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// WriteUint32 writes a 32-bit unsigned integer in big-endian
func WriteUint32(w io.Writer, v uint32) error {
	buf := make([]byte, 4)
	putUint32(buf, v)
	_, err := w.Write(buf)
	return err
}

func putUint32(buf []byte, v uint32) {
	binary.BigEndian.PutUint32(buf, v)
}

// decodeText converts a payload to a string, rejecting invalid UTF-8
func decodeText(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", ErrInvalidUTF8
	}
	return string(payload), nil
}
