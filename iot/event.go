package iot

import (
	"time"

	"github.com/relabs-tech/iotf/core/codec"
)

// Event is a decoded device event
type Event struct {
	DeviceType string
	DeviceID   string
	Event      string
	Format     string
	// Data is the decoded payload
	Data codec.Value
	// Timestamp is the time the transport received the event
	Timestamp time.Time
	// Topic and Payload are the raw message
	Topic   string
	Payload []byte
}

// Command is a decoded device command
type Command struct {
	DeviceType string
	DeviceID   string
	Command    string
	Format     string
	Data       codec.Value
	Timestamp  time.Time
	Topic      string
	Payload    []byte
}

// decodeMessage parses the topic of raw and decodes the payload with the codec of its format
func decodeMessage(reg *codec.Registry, raw codec.RawMessage, kind TopicKind) (Topic, *codec.Message, error) {
	t, err := parseTopicOfKind(raw.Topic, kind)
	if err != nil {
		return Topic{}, nil, err
	}
	c, err := reg.Lookup(t.Format)
	if err != nil {
		return Topic{}, nil, err
	}
	m, err := c.Decode(raw)
	if err != nil {
		return Topic{}, nil, err
	}
	return t, m, nil
}

func encodeMessage(reg *codec.Registry, topic Topic, data any) (codec.RawMessage, error) {
	if err := checkSegments(topic.DeviceType, topic.DeviceID, topic.Name, topic.Format); err != nil {
		return codec.RawMessage{}, err
	}
	c, err := reg.Lookup(topic.Format)
	if err != nil {
		return codec.RawMessage{}, err
	}
	payload, err := c.Encode(data)
	if err != nil {
		return codec.RawMessage{}, err
	}
	return codec.RawMessage{Topic: topic.String(), Payload: payload}, nil
}

// DecodeEvent decodes a message received on an event topic. It fails with ErrInvalidTopic
// for other topics, with a *codec.MissingCodecError if reg has no codec for the format and
// with a *codec.InvalidEventError for malformed payloads. A nil reg is the default registry.
func DecodeEvent(reg *codec.Registry, raw codec.RawMessage) (*Event, error) {
	t, m, err := decodeMessage(reg, raw, TopicEvent)
	if err != nil {
		return nil, err
	}
	return &Event{
		DeviceType: t.DeviceType,
		DeviceID:   t.DeviceID,
		Event:      t.Name,
		Format:     t.Format,
		Data:       m.Data,
		Timestamp:  m.Timestamp,
		Topic:      raw.Topic,
		Payload:    raw.Payload,
	}, nil
}

// EncodeEvent encodes data as event of the given device with the codec for format
func EncodeEvent(reg *codec.Registry, deviceType, deviceID, event, format string, data any) (codec.RawMessage, error) {
	return encodeMessage(reg, Topic{Kind: TopicEvent, DeviceType: deviceType, DeviceID: deviceID, Name: event, Format: format}, data)
}

// DecodeCommand decodes a message received on a command topic, see DecodeEvent
func DecodeCommand(reg *codec.Registry, raw codec.RawMessage) (*Command, error) {
	t, m, err := decodeMessage(reg, raw, TopicCommand)
	if err != nil {
		return nil, err
	}
	return &Command{
		DeviceType: t.DeviceType,
		DeviceID:   t.DeviceID,
		Command:    t.Name,
		Format:     t.Format,
		Data:       m.Data,
		Timestamp:  m.Timestamp,
		Topic:      raw.Topic,
		Payload:    raw.Payload,
	}, nil
}

// EncodeCommand encodes data as command to the given device with the codec for format
func EncodeCommand(reg *codec.Registry, deviceType, deviceID, command, format string, data any) (codec.RawMessage, error) {
	return encodeMessage(reg, Topic{Kind: TopicCommand, DeviceType: deviceType, DeviceID: deviceID, Name: command, Format: format}, data)
}
