package tcp

import "errors"

// error classes for a single connection
// wrap one of these with fmt.Errorf("%w: ...") and classify with errors.Is
var (
	ErrFraming = errors.New("framing error") // malformed frame boundary or stream closed mid-frame
	ErrDecode  = errors.New("decode error")  // invalid JSON or missing required field
	ErrIO      = errors.New("io error")      // transport level failure
)
