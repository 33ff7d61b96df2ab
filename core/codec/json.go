package codec

// FormatJSON is the format name of the JSON codec
const FormatJSON = "json"

// JSON is the codec for UTF-8 encoded JSON payloads
type JSON struct{}

var _ Codec = JSON{}

// Format returns "json"
func (JSON) Format() string { return FormatJSON }

// Decode parses the payload as JSON. Malformed payloads are reported as *InvalidEventError.
func (JSON) Decode(msg RawMessage) (*Message, error) {
	data, err := parse(msg.Payload)
	if err != nil {
		return nil, NewInvalidEventError(msg, err)
	}
	return &Message{
		Topic:     msg.Topic,
		Data:      data,
		Timestamp: msg.ReceivedAt,
	}, nil
}

// Encode serializes data as JSON text. See ValueOf for the data that can be encoded.
func (JSON) Encode(data any) ([]byte, error) {
	v, err := ValueOf(data)
	if err != nil {
		return nil, err
	}
	return v.MarshalJSON()
}
