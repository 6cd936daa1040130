package tcp

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const MaxMessageSize = 1024 * 1024 // 1MB max frame payload

const lengthPrefixSize = 4

// Codec splits a TCP byte stream into frames
type Codec interface {
	// Decode reads exactly one frame payload from r
	// returns io.EOF when the stream closes cleanly between frames
	Decode(r *bufio.Reader) ([]byte, error)
	// Encode returns the on-wire bytes for one payload
	Encode(payload []byte) ([]byte, error)
	// Name identifies the framing in logs and config
	Name() string
}

// NewCodec returns the codec registered under name ("length" or "crlf")
func NewCodec(name string, maxSize int) (Codec, error) {
	if maxSize <= 0 {
		maxSize = MaxMessageSize
	}
	switch name {
	case "", FramingLength:
		return &LengthPrefixCodec{MaxSize: maxSize}, nil
	case FramingCRLF:
		return &LineCodec{MaxSize: maxSize}, nil
	default:
		return nil, fmt.Errorf("unknown framing %q", name)
	}
}

const (
	FramingLength = "length"
	FramingCRLF   = "crlf"
)

// LengthPrefixCodec frames payloads with a 4-byte big-endian length header
type LengthPrefixCodec struct {
	MaxSize int
}

func (c *LengthPrefixCodec) Name() string { return FramingLength }

func (c *LengthPrefixCodec) Decode(r *bufio.Reader) ([]byte, error) {
	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF // nothing read => clean close between frames
		}
		return nil, classifyReadErr(err, "length prefix")
	}

	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(c.maxSize()) {
		return nil, fmt.Errorf("%w: frame length %d exceeds max %d", ErrFraming, size, c.maxSize())
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, classifyReadErr(err, "payload")
	}
	return payload, nil
}

func (c *LengthPrefixCodec) Encode(payload []byte) ([]byte, error) {
	if len(payload) > c.maxSize() {
		return nil, fmt.Errorf("%w: payload length %d exceeds max %d", ErrFraming, len(payload), c.maxSize())
	}
	frame := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[lengthPrefixSize:], payload)
	return frame, nil
}

func (c *LengthPrefixCodec) maxSize() int {
	if c.MaxSize <= 0 {
		return MaxMessageSize
	}
	return c.MaxSize
}

// LineCodec terminates payloads with CRLF, a bare LF is accepted on read
type LineCodec struct {
	MaxSize int
}

var crlf = []byte("\r\n")

func (c *LineCodec) Name() string { return FramingCRLF }

func (c *LineCodec) Decode(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		// ReadSlice keeps memory bounded => a client can't make us buffer forever
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > c.maxSize()+len(crlf) {
			return nil, fmt.Errorf("%w: line exceeds max %d bytes", ErrFraming, c.maxSize())
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return nil, io.EOF
			}
			err = io.ErrUnexpectedEOF
		}
		return nil, classifyReadErr(err, "line")
	}

	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line, nil
}

func (c *LineCodec) Encode(payload []byte) ([]byte, error) {
	if len(payload) > c.maxSize() {
		return nil, fmt.Errorf("%w: payload length %d exceeds max %d", ErrFraming, len(payload), c.maxSize())
	}
	if bytes.IndexByte(payload, '\n') >= 0 {
		return nil, fmt.Errorf("%w: payload contains a line terminator", ErrFraming)
	}
	frame := make([]byte, 0, len(payload)+len(crlf))
	frame = append(frame, payload...)
	return append(frame, crlf...), nil
}

func (c *LineCodec) maxSize() int {
	if c.MaxSize <= 0 {
		return MaxMessageSize
	}
	return c.MaxSize
}

// premature close is a framing problem, everything else belongs to the transport
func classifyReadErr(err error, part string) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: stream closed while reading %s", ErrFraming, part)
	}
	return fmt.Errorf("%w: reading %s: %w", ErrIO, part, err)
}
