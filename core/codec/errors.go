package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEvent is matched by every error about a payload that cannot be decoded
	ErrInvalidEvent = errors.New("invalid event")
	// ErrUnsupportedValue is matched by every error about data that has no JSON representation
	ErrUnsupportedValue = errors.New("unsupported value")
	// ErrMissingCodec is matched when no codec is registered for a message format
	ErrMissingCodec = errors.New("missing codec")
)

// maxExcerpt is the number of payload bytes kept in an InvalidEventError
const maxExcerpt = 256

// InvalidEventError is returned by Decode for malformed payloads
type InvalidEventError struct {
	// Topic is the topic the payload was received on
	Topic string
	// Excerpt holds the start of the payload, at most 256 bytes
	Excerpt []byte
	// Truncated is true if the payload was longer than the excerpt
	Truncated bool
	// Err is the parser or validator error
	Err error
}

// NewInvalidEventError returns the error for a payload of msg which cannot be decoded.
// Custom codecs use it to report malformed payloads.
func NewInvalidEventError(msg RawMessage, err error) *InvalidEventError {
	e := &InvalidEventError{Topic: msg.Topic, Err: err}
	n := len(msg.Payload)
	if n > maxExcerpt {
		n = maxExcerpt
		e.Truncated = true
	}
	e.Excerpt = make([]byte, n)
	copy(e.Excerpt, msg.Payload)
	return e
}

func (e *InvalidEventError) Error() string {
	excerpt := fmt.Sprintf("%q", e.Excerpt)
	if e.Truncated {
		excerpt += "..."
	}
	if e.Topic != "" {
		return fmt.Sprintf("invalid event on %s: unable to parse payload=%s: %v", e.Topic, excerpt, e.Err)
	}
	return fmt.Sprintf("invalid event: unable to parse payload=%s: %v", excerpt, e.Err)
}

// Unwrap returns the underlying parser or validator error
func (e *InvalidEventError) Unwrap() error { return e.Err }

// Is makes the error match ErrInvalidEvent
func (e *InvalidEventError) Is(target error) bool { return target == ErrInvalidEvent }

// EncodeError is returned by Encode and ValueOf for data without JSON representation
type EncodeError struct {
	// Reason describes the offending data
	Reason string
	// Err is the underlying serializer error, if any
	Err error
}

func (e *EncodeError) Error() string {
	if e.Err != nil {
		return "cannot encode " + e.Reason + ": " + e.Err.Error()
	}
	return "cannot encode " + e.Reason
}

// Unwrap returns the underlying serializer error
func (e *EncodeError) Unwrap() error { return e.Err }

// Is makes the error match ErrUnsupportedValue
func (e *EncodeError) Is(target error) bool { return target == ErrUnsupportedValue }

// MissingCodecError is returned by Registry.Lookup for unknown formats
type MissingCodecError struct {
	Format string
}

func (e *MissingCodecError) Error() string {
	return fmt.Sprintf("no codec registered for message format %q", e.Format)
}

// Is makes the error match ErrMissingCodec
func (e *MissingCodecError) Is(target error) bool { return target == ErrMissingCodec }
