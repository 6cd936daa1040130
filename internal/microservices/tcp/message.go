package tcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request is one decoded inbound frame
type Request struct {
	Endpoint string `json:"endpoint"` // routing key, defaults to ""
	Message  string `json:"message"`
}

// Response is written back on the connection that carried the Request
type Response struct {
	Message string `json:"message"`
}

// wire shape used only for decoding => tells a missing message apart from ""
type requestWire struct {
	Endpoint string  `json:"endpoint"`
	Message  *string `json:"message"`
}

// ParseRequest decodes one JSON request payload
func ParseRequest(data []byte) (Request, error) {
	var wire requestWire
	// Unmarshal rejects trailing data => exactly one JSON value per frame
	if err := json.Unmarshal(data, &wire); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if wire.Message == nil {
		return Request{}, fmt.Errorf("%w: missing required field \"message\"", ErrDecode)
	}
	return Request{Endpoint: wire.Endpoint, Message: *wire.Message}, nil
}

// SerializeResponse encodes a Response as compact JSON without HTML escaping
func SerializeResponse(resp Response) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
