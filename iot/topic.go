package iot

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTopic is returned for topics outside of the namespace and for segments which
// cannot be part of a topic
var ErrInvalidTopic = errors.New("invalid topic")

// TopicPrefix is the first segment of every topic
const TopicPrefix = "iot-2"

// Wildcard matches any single topic segment in subscriptions
const Wildcard = "+"

// TopicKind tells which kind of message a topic carries
type TopicKind int

// The topic kinds
const (
	TopicUnknown TopicKind = iota
	TopicEvent
	TopicCommand
	TopicDeviceStatus
	TopicAppStatus
)

func (k TopicKind) String() string {
	switch k {
	case TopicEvent:
		return "event"
	case TopicCommand:
		return "command"
	case TopicDeviceStatus:
		return "device status"
	case TopicAppStatus:
		return "application status"
	}
	return "unknown"
}

// Topic is a parsed topic. Name is the event or command name, AppID is only set for
// application status topics.
type Topic struct {
	Kind       TopicKind
	DeviceType string
	DeviceID   string
	AppID      string
	Name       string
	Format     string
}

// String builds the topic. Empty segments become wildcards.
func (t Topic) String() string {
	switch t.Kind {
	case TopicEvent:
		return EventTopic(t.DeviceType, t.DeviceID, t.Name, t.Format)
	case TopicCommand:
		return CommandTopic(t.DeviceType, t.DeviceID, t.Name, t.Format)
	case TopicDeviceStatus:
		return DeviceStatusTopic(t.DeviceType, t.DeviceID)
	case TopicAppStatus:
		return AppStatusTopic(t.AppID)
	}
	return ""
}

func segment(s string) string {
	if s == "" {
		return Wildcard
	}
	return s
}

// EventTopic returns the topic of device events. Pass empty strings to subscribe to all
// device types, devices, events or formats.
func EventTopic(deviceType, deviceID, event, format string) string {
	return TopicPrefix + "/type/" + segment(deviceType) + "/id/" + segment(deviceID) +
		"/evt/" + segment(event) + "/fmt/" + segment(format)
}

// CommandTopic returns the topic of device commands. Empty strings become wildcards.
func CommandTopic(deviceType, deviceID, command, format string) string {
	return TopicPrefix + "/type/" + segment(deviceType) + "/id/" + segment(deviceID) +
		"/cmd/" + segment(command) + "/fmt/" + segment(format)
}

// DeviceStatusTopic returns the topic of device status messages
func DeviceStatusTopic(deviceType, deviceID string) string {
	return TopicPrefix + "/type/" + segment(deviceType) + "/id/" + segment(deviceID) + "/mon"
}

// AppStatusTopic returns the topic of application status messages
func AppStatusTopic(appID string) string {
	return TopicPrefix + "/app/" + segment(appID) + "/mon"
}

// ParseTopic parses a concrete topic, a topic without wildcards
func ParseTopic(topic string) (Topic, error) {
	s := strings.Split(topic, "/")
	invalid := fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	if s[0] != TopicPrefix {
		return Topic{}, invalid
	}
	for _, part := range s {
		if part == "" || part == Wildcard || part == "#" {
			return Topic{}, invalid
		}
	}

	var t Topic
	switch {
	case len(s) == 4 && s[1] == "app" && s[3] == "mon":
		t = Topic{Kind: TopicAppStatus, AppID: s[2]}
	case len(s) == 6 && s[1] == "type" && s[3] == "id" && s[5] == "mon":
		t = Topic{Kind: TopicDeviceStatus, DeviceType: s[2], DeviceID: s[4]}
	case len(s) == 9 && s[1] == "type" && s[3] == "id" && s[7] == "fmt" && (s[5] == "evt" || s[5] == "cmd"):
		t = Topic{DeviceType: s[2], DeviceID: s[4], Name: s[6], Format: s[8]}
		if s[5] == "evt" {
			t.Kind = TopicEvent
		} else {
			t.Kind = TopicCommand
		}
	default:
		return Topic{}, invalid
	}
	return t, nil
}

func parseTopicOfKind(topic string, kind TopicKind) (Topic, error) {
	t, err := ParseTopic(topic)
	if err != nil {
		return Topic{}, err
	}
	if t.Kind != kind {
		return Topic{}, fmt.Errorf("%w: %q is not a %s topic", ErrInvalidTopic, topic, kind)
	}
	return t, nil
}

// ParseEventTopic parses a device event topic
func ParseEventTopic(topic string) (Topic, error) {
	return parseTopicOfKind(topic, TopicEvent)
}

// ParseCommandTopic parses a device command topic
func ParseCommandTopic(topic string) (Topic, error) {
	return parseTopicOfKind(topic, TopicCommand)
}

// ParseDeviceStatusTopic parses a device status topic
func ParseDeviceStatusTopic(topic string) (Topic, error) {
	return parseTopicOfKind(topic, TopicDeviceStatus)
}

// checkSegments verifies that each segment can be published to
func checkSegments(segments ...string) error {
	for _, s := range segments {
		if s == "" || strings.ContainsAny(s, "/+#") {
			return fmt.Errorf("%w: segment %q", ErrInvalidTopic, s)
		}
	}
	return nil
}
