package tcp

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthPrefixCodec_EncodeLayout(t *testing.T) {
	codec := &LengthPrefixCodec{MaxSize: MaxMessageSize}

	frame, err := codec.Encode([]byte(`{"message":"HELLO"}`))
	require.NoError(t, err)

	assert.Equal(t, uint32(19), binary.BigEndian.Uint32(frame[:4]))
	assert.Equal(t, `{"message":"HELLO"}`, string(frame[4:]))
}

func TestLengthPrefixCodec_DecodeAcrossPartialReads(t *testing.T) {
	codec := &LengthPrefixCodec{MaxSize: MaxMessageSize}
	payloads := []string{
		`{"endpoint":"/api/","message":"hello"}`,
		`{"endpoint":"/api/hello","message":"x"}`,
		``,
	}

	var stream bytes.Buffer
	for _, p := range payloads {
		frame, err := codec.Encode([]byte(p))
		require.NoError(t, err)
		stream.Write(frame)
	}

	// one byte per Read => every frame arrives in pieces
	r := bufio.NewReader(iotest.OneByteReader(&stream))
	for _, want := range payloads {
		got, err := codec.Decode(r)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	_, err := codec.Decode(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLengthPrefixCodec_DecodeErrors(t *testing.T) {
	codec := &LengthPrefixCodec{MaxSize: 16}

	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{
			name:    "empty stream is a clean close",
			input:   nil,
			wantErr: io.EOF,
		},
		{
			name:    "truncated length prefix",
			input:   []byte{0x00, 0x00},
			wantErr: ErrFraming,
		},
		{
			name:    "truncated payload",
			input:   append([]byte{0x00, 0x00, 0x00, 0x08}, "abc"...),
			wantErr: ErrFraming,
		},
		{
			name:    "length over max",
			input:   []byte{0x00, 0x00, 0x00, 0x11},
			wantErr: ErrFraming,
		},
		{
			name:    "huge length",
			input:   []byte{0xff, 0xff, 0xff, 0xff},
			wantErr: ErrFraming,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(bufio.NewReader(bytes.NewReader(tt.input)))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLengthPrefixCodec_TransportErrorIsIOError(t *testing.T) {
	codec := &LengthPrefixCodec{}
	boom := errors.New("connection reset")

	_, err := codec.Decode(bufio.NewReader(iotest.ErrReader(boom)))
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrFraming)
}

func TestLengthPrefixCodec_EncodeTooLarge(t *testing.T) {
	codec := &LengthPrefixCodec{MaxSize: 4}
	_, err := codec.Encode([]byte("12345"))
	assert.ErrorIs(t, err, ErrFraming)
}

func TestLineCodec_RoundTrip(t *testing.T) {
	codec := &LineCodec{MaxSize: MaxMessageSize}

	frame, err := codec.Encode([]byte(`{"message":"HELLO"}`))
	require.NoError(t, err)
	assert.Equal(t, "{\"message\":\"HELLO\"}\r\n", string(frame))

	r := bufio.NewReader(strings.NewReader("first\r\nsecond\nthird\r\n"))
	for _, want := range []string{"first", "second", "third"} {
		got, err := codec.Decode(r)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	_, err = codec.Decode(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineCodec_DecodeErrors(t *testing.T) {
	t.Run("closed mid line", func(t *testing.T) {
		codec := &LineCodec{MaxSize: MaxMessageSize}
		_, err := codec.Decode(bufio.NewReader(strings.NewReader("no terminator")))
		assert.ErrorIs(t, err, ErrFraming)
	})

	t.Run("line longer than max", func(t *testing.T) {
		codec := &LineCodec{MaxSize: 8}
		_, err := codec.Decode(bufio.NewReader(strings.NewReader("0123456789abcdef\r\n")))
		assert.ErrorIs(t, err, ErrFraming)
	})

	t.Run("line longer than the bufio buffer but under max", func(t *testing.T) {
		codec := &LineCodec{MaxSize: 64 * 1024}
		long := strings.Repeat("a", 10000)
		got, err := codec.Decode(bufio.NewReaderSize(strings.NewReader(long+"\r\n"), 16))
		require.NoError(t, err)
		assert.Equal(t, long, string(got))
	})
}

func TestLineCodec_EncodeRejectsEmbeddedNewline(t *testing.T) {
	codec := &LineCodec{}
	_, err := codec.Encode([]byte("a\nb"))
	assert.ErrorIs(t, err, ErrFraming)
}

func TestNewCodec(t *testing.T) {
	c, err := NewCodec("", 0)
	require.NoError(t, err)
	assert.Equal(t, FramingLength, c.Name())

	c, err = NewCodec(FramingCRLF, 10)
	require.NoError(t, err)
	assert.Equal(t, FramingCRLF, c.Name())

	_, err = NewCodec("xml", 10)
	assert.Error(t, err)
}
