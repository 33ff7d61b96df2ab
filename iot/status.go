package iot

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/iotf/core/codec"
)

// Status actions
const (
	StatusConnect    = "Connect"
	StatusDisconnect = "Disconnect"
)

// Status is a connection status message of a device or an application. DeviceType,
// DeviceID and AppID come from the topic, the rest from the payload.
type Status struct {
	DeviceType string `json:"-"`
	DeviceID   string `json:"-"`
	AppID      string `json:"-"`

	Action     string    `json:"Action"`
	Time       time.Time `json:"Time"`
	ClientAddr string    `json:"ClientAddr"`
	ClientID   string    `json:"ClientID"`
	Port       int       `json:"Port,omitempty"`
	SSL        bool      `json:"SSL"`
	Protocol   string    `json:"Protocol,omitempty"`
	User       string    `json:"User,omitempty"`
	Reason     string    `json:"Reason,omitempty"`

	// Topic is the topic the status was received on
	Topic string `json:"-"`
}

// Device returns "{device_type}:{device_id}" for device status and the application id otherwise
func (s *Status) Device() string {
	if s.AppID != "" {
		return s.AppID
	}
	return s.DeviceType + ":" + s.DeviceID
}

// Summary describes the status in one line
func (s *Status) Summary() string {
	if s.Action == StatusDisconnect {
		return fmt.Sprintf("%s %s (%s)", s.Action, s.ClientAddr, s.Reason)
	}
	return fmt.Sprintf("%s %s", s.Action, s.ClientAddr)
}

// DecodeStatus decodes a message received on a device or application status topic.
// Malformed payloads are reported as *codec.InvalidEventError.
func DecodeStatus(raw codec.RawMessage) (*Status, error) {
	t, err := ParseTopic(raw.Topic)
	if err != nil {
		return nil, err
	}
	if t.Kind != TopicDeviceStatus && t.Kind != TopicAppStatus {
		return nil, fmt.Errorf("%w: %q is not a status topic", ErrInvalidTopic, raw.Topic)
	}
	if _, err := (codec.JSON{}).Decode(raw); err != nil {
		return nil, err
	}

	status := &Status{}
	if err := json.Unmarshal(raw.Payload, status); err != nil {
		return nil, codec.NewInvalidEventError(raw, err)
	}
	status.DeviceType = t.DeviceType
	status.DeviceID = t.DeviceID
	status.AppID = t.AppID
	status.Topic = raw.Topic
	return status, nil
}

// EncodeStatus encodes a device status message, or an application status message if
// status has an AppID
func EncodeStatus(status *Status) (codec.RawMessage, error) {
	var topic string
	if status.AppID != "" {
		if err := checkSegments(status.AppID); err != nil {
			return codec.RawMessage{}, err
		}
		topic = AppStatusTopic(status.AppID)
	} else {
		if err := checkSegments(status.DeviceType, status.DeviceID); err != nil {
			return codec.RawMessage{}, err
		}
		topic = DeviceStatusTopic(status.DeviceType, status.DeviceID)
	}
	payload, err := json.Marshal(status)
	if err != nil {
		return codec.RawMessage{}, &codec.EncodeError{Reason: "status", Err: err}
	}
	return codec.RawMessage{Topic: topic, Payload: payload}, nil
}
