package stream

import "errors"

// Error kinds surfaced by the entropy coding layers. Callers classify with errors.Is,
// every layer wraps these with context.
var (
	// ErrUnexpectedEOF signals the end of data inside an entropy coded segment
	ErrUnexpectedEOF = errors.New("unexpected end of stream")
	// ErrUnexpectedMarker signals a genuine marker where entropy coded bits were expected
	ErrUnexpectedMarker = errors.New("unexpected marker in entropy coded segment")
	// ErrMalformedStream signals an invalid code point or a coder out of sync
	ErrMalformedStream = errors.New("malformed stream")
	// ErrInvalidRestartMarker signals a restart marker that could not be resynchronized
	ErrInvalidRestartMarker = errors.New("invalid restart marker")
	// ErrOverflow signals a write past the end of a fixed size stream
	ErrOverflow = errors.New("stream overflow")
	// ErrInvalidParameter signals a caller supplied value the coder cannot represent
	ErrInvalidParameter = errors.New("invalid parameter")
)
