package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantErr bool
	}{
		{
			name: "valid frame - empty payload",
			frame: Frame{
				Version: ProtocolVersion,
				Command: CmdPrompt,
				Payload: []byte{},
			},
			wantErr: false,
		},
		{
			name: "valid frame - with payload",
			frame: Frame{
				Version: ProtocolVersion,
				Command: CmdLogin,
				Payload: []byte("alice"),
			},
			wantErr: false,
		},
		{
			name: "multi-byte UTF-8 payload",
			frame: Frame{
				Version: ProtocolVersion,
				Command: CmdText,
				Payload: []byte("héllo wörld ✓"),
			},
			wantErr: false,
		},
		{
			name: "max payload size",
			frame: Frame{
				Version: ProtocolVersion,
				Command: CmdText,
				Payload: make([]byte, MaxFrameSize-headerSize),
			},
			wantErr: false,
		},
		{
			name: "oversized payload (should fail)",
			frame: Frame{
				Version: ProtocolVersion,
				Command: CmdText,
				Payload: make([]byte, MaxFrameSize),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := EncodeFrame(&buf, &tt.frame)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrFrameTooLarge)
				return
			}
			require.NoError(t, err)

			decoded, err := DecodeFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.frame.Version, decoded.Version)
			assert.Equal(t, tt.frame.Command, decoded.Command)
			assert.Equal(t, len(tt.frame.Payload), len(decoded.Payload))
			assert.True(t, bytes.Equal(tt.frame.Payload, decoded.Payload))
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	body := Encode(ProtocolVersion, CmdConnect, []byte("bob"))
	assert.Equal(t, []byte{ProtocolVersion, byte(CmdConnect), 'b', 'o', 'b'}, body)

	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, &Frame{Version: ProtocolVersion, Command: CmdConnect, Payload: []byte("bob")}))
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x05, ProtocolVersion, byte(CmdConnect), 'b', 'o', 'b'}, buf.Bytes())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    []byte
		wantErr error
	}{
		{"empty body", []byte{}, ErrMalformedFrame},
		{"single byte", []byte{ProtocolVersion}, ErrMalformedFrame},
		{"wrong version", []byte{1, byte(CmdHelp)}, ErrInvalidVersion},
		{"unknown command", []byte{ProtocolVersion, 0x7F}, ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.body)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	t.Run("clean EOF", func(t *testing.T) {
		_, err := DecodeFrame(bytes.NewReader(nil))
		assert.Equal(t, io.EOF, err)
	})

	t.Run("truncated length", func(t *testing.T) {
		_, err := DecodeFrame(bytes.NewReader([]byte{0x00, 0x00}))
		assert.Equal(t, io.ErrUnexpectedEOF, err)
	})

	t.Run("truncated body", func(t *testing.T) {
		_, err := DecodeFrame(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x05, ProtocolVersion, byte(CmdText)}))
		assert.Equal(t, io.ErrUnexpectedEOF, err)
	})

	t.Run("length below header", func(t *testing.T) {
		_, err := DecodeFrame(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x01, ProtocolVersion}))
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("length above max", func(t *testing.T) {
		_, err := DecodeFrame(bytes.NewReader([]byte{0x00, 0x10, 0x00, 0x00}))
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})
}

func TestEncodeMessageHelpers(t *testing.T) {
	data, err := EncodeMessage(CmdDisplay, []byte("hello"))
	require.NoError(t, err)

	frame, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, CmdDisplay, frame.Command)
	assert.Equal(t, "hello", string(frame.Payload))

	_, err = EncodeMessage(CmdText, make([]byte, MaxFrameSize))
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
}
