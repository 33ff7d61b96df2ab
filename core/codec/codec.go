package codec

import (
	"time"
)

// RawMessage is a payload as received from or handed to a transport
type RawMessage struct {
	// Topic is the topic the payload was published on
	Topic string
	// Payload is the message body
	Payload []byte
	// ReceivedAt is set by the transport when the message arrives
	ReceivedAt time.Time
}

// Message is a decoded RawMessage
type Message struct {
	// Topic is passed through from the RawMessage
	Topic string
	// Data is the decoded payload
	Data Value
	// Timestamp is the ReceivedAt time of the RawMessage
	Timestamp time.Time
}

// Codec converts between payload bytes and application data. Implementations must be
// stateless or otherwise safe for concurrent use.
type Codec interface {
	// Format returns the message format name, e.g. "json"
	Format() string
	// Decode decodes the payload of msg. On malformed payloads it returns a nil message
	// and an error matching ErrInvalidEvent.
	Decode(msg RawMessage) (*Message, error)
	// Encode serializes data. Data without representation in the format fails with an
	// error matching ErrUnsupportedValue.
	Encode(data any) ([]byte, error)
}

// PayloadValidator checks a payload which has already been parsed successfully
type PayloadValidator interface {
	Validate(payload []byte) error
}

// Validating decorates c so that decoded payloads are checked with validator as well.
// A payload rejected by the validator is reported as an *InvalidEventError.
func Validating(c Codec, validator PayloadValidator) Codec {
	return &validating{Codec: c, validator: validator}
}

type validating struct {
	Codec
	validator PayloadValidator
}

func (c *validating) Decode(msg RawMessage) (*Message, error) {
	m, err := c.Codec.Decode(msg)
	if err != nil {
		return nil, err
	}
	if err := c.validator.Validate(msg.Payload); err != nil {
		return nil, NewInvalidEventError(msg, err)
	}
	return m, nil
}
